package allocator

import (
	"context"
	"testing"
	"time"

	"papertrade/internal/domain"
	"papertrade/internal/ledger"
	"papertrade/internal/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T, initialBalance float64) (*Service, *memstore.MemStore) {
	t.Helper()
	st := memstore.New()
	led := ledger.New(st, initialBalance, 0, nil)
	return New(st, led, 0.1, map[string]string{"AAPL": "Tech", "XOM": "Energy"}), st
}

func seedStrategy(t *testing.T, st *memstore.MemStore, allocationPct float64, maxPositions int) *domain.Strategy {
	t.Helper()
	strategy := &domain.Strategy{
		Name:          "sentiment-core",
		Type:          domain.StrategyTypeSentiment,
		AllocationPct: allocationPct,
		MaxPositions:  maxPositions,
		Active:        true,
	}
	require.NoError(t, st.Strategies().Create(context.Background(), strategy))
	return strategy
}

func seedPosition(t *testing.T, st *memstore.MemStore, strategyID int64, symbol string, entry float64, qty int64) *domain.Position {
	t.Helper()
	pos := &domain.Position{
		StrategyID:        strategyID,
		Symbol:            symbol,
		EntryPrice:        entry,
		Quantity:          qty,
		RemainingQuantity: qty,
		PositionSize:      entry * float64(qty),
		Status:            domain.PositionStatusOpen,
		OpenedAt:          time.Now(),
	}
	require.NoError(t, st.Positions().Create(context.Background(), pos))
	return pos
}

func TestAvailableCapitalSubtractsOpenPositions(t *testing.T) {
	// 10% of a 100,000 portfolio is a 10,000 budget; one open position of
	// 4,000 leaves 6,000 available, so a 7,000 order is rejected.
	ctx := context.Background()
	alloc, st := newTestAllocator(t, 96000)
	strategy := seedStrategy(t, st, 0.10, 10)
	seedPosition(t, st, strategy.ID, "AAPL", 40, 100) // cost basis 4,000

	total, err := alloc.TotalPortfolioValue(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 100000.0, total, 1e-9)

	status, err := alloc.StrategyStatus(ctx, strategy)
	require.NoError(t, err)
	assert.InDelta(t, 10000.0, status.Allocated, 1e-9)
	assert.InDelta(t, 4000.0, status.Utilized, 1e-9)
	assert.InDelta(t, 6000.0, status.Available, 1e-9)

	err = alloc.CanOpenPosition(ctx, strategy, "MSFT", 7000)
	assert.ErrorIs(t, err, domain.ErrInsufficientCapital)

	assert.NoError(t, alloc.CanOpenPosition(ctx, strategy, "MSFT", 6000))
}

func TestGateIdempotentWithoutStateChange(t *testing.T) {
	ctx := context.Background()
	alloc, st := newTestAllocator(t, 100000)
	strategy := seedStrategy(t, st, 0.10, 10)

	first := alloc.CanOpenPosition(ctx, strategy, "AAPL", 5000)
	second := alloc.CanOpenPosition(ctx, strategy, "AAPL", 5000)
	assert.NoError(t, first)
	assert.NoError(t, second)

	// Consuming the whole budget flips the answer and keeps it flipped.
	seedPosition(t, st, strategy.ID, "AAPL", 100, 100) // 10,000 = full budget

	err := alloc.CanOpenPosition(ctx, strategy, "MSFT", 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientCapital)
	err = alloc.CanOpenPosition(ctx, strategy, "MSFT", 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientCapital)
}

func TestGateRejectsAtMaxPositions(t *testing.T) {
	ctx := context.Background()
	alloc, st := newTestAllocator(t, 100000)
	strategy := seedStrategy(t, st, 0.50, 2)
	seedPosition(t, st, strategy.ID, "AAPL", 10, 10)
	seedPosition(t, st, strategy.ID, "MSFT", 10, 10)

	err := alloc.CanOpenPosition(ctx, strategy, "NVDA", 100)
	assert.ErrorIs(t, err, domain.ErrInsufficientCapital)
	assert.ErrorContains(t, err, "max positions")
}

func TestGateRejectsDuplicateSymbol(t *testing.T) {
	ctx := context.Background()
	alloc, st := newTestAllocator(t, 100000)
	strategy := seedStrategy(t, st, 0.50, 10)
	seedPosition(t, st, strategy.ID, "AAPL", 10, 10)

	err := alloc.CanOpenPosition(ctx, strategy, "aapl", 100)
	assert.ErrorIs(t, err, domain.ErrInsufficientCapital)
	assert.ErrorContains(t, err, "already holds")
}

func TestGateRejectsInactiveStrategy(t *testing.T) {
	ctx := context.Background()
	alloc, st := newTestAllocator(t, 100000)
	strategy := seedStrategy(t, st, 0.50, 10)
	strategy.Active = false
	require.NoError(t, st.Strategies().Update(ctx, strategy))

	err := alloc.CanOpenPosition(ctx, strategy, "AAPL", 100)
	assert.ErrorIs(t, err, domain.ErrInsufficientCapital)
}

func TestPortfolioStatusAdvisory(t *testing.T) {
	ctx := context.Background()
	alloc, st := newTestAllocator(t, 90000)
	strategy := seedStrategy(t, st, 0.20, 10)
	seedPosition(t, st, strategy.ID, "AAPL", 40, 150) // 6,000 Tech
	seedPosition(t, st, strategy.ID, "XOM", 40, 100)  // 4,000 Energy

	status, err := alloc.PortfolioStatus(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 100000.0, status.TotalValue, 1e-9)
	assert.InDelta(t, 90000.0, status.CashBalance, 1e-9)
	assert.InDelta(t, 10000.0, status.CashReserveRequired, 1e-9)
	assert.InDelta(t, 0.06, status.LargestPositionPct, 1e-9)
	assert.InDelta(t, 0.06, status.SectorConcentration["Tech"], 1e-9)
	assert.InDelta(t, 0.04, status.SectorConcentration["Energy"], 1e-9)
	require.Len(t, status.Strategies, 1)
	assert.InDelta(t, 20000.0, status.Strategies[0].Allocated, 1e-9)
	assert.Equal(t, 2, status.Strategies[0].OpenPositions)
}
