package position

import (
	"context"
	"testing"
	"time"

	"papertrade/internal/allocator"
	"papertrade/internal/domain"
	"papertrade/internal/ledger"
	"papertrade/internal/market"
	"papertrade/internal/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store  *memstore.MemStore
	ledger *ledger.Service
	prices *market.StaticSource
	svc    *Service
}

func newFixture(t *testing.T, initialBalance float64) *fixture {
	t.Helper()
	st := memstore.New()
	prices := market.NewStaticSource(nil)
	quote := func(ctx context.Context, symbol string) (float64, error) {
		q, err := prices.GetPrice(ctx, symbol)
		if err != nil {
			return 0, err
		}
		return q.Price, nil
	}
	led := ledger.New(st, initialBalance, 0, quote)
	alloc := allocator.New(st, led, 0, nil)
	return &fixture{
		store:  st,
		ledger: led,
		prices: prices,
		svc:    NewService(st, led, alloc, prices),
	}
}

func (f *fixture) seedStrategy(t *testing.T, params domain.StrategyParams) *domain.Strategy {
	t.Helper()
	strategy := &domain.Strategy{
		Name:          "sentiment-core",
		Type:          domain.StrategyTypeSentiment,
		Params:        params,
		AllocationPct: 1.0,
		MaxPositions:  10,
		Active:        true,
	}
	require.NoError(t, f.store.Strategies().Create(context.Background(), strategy))
	return strategy
}

func TestOpenCreatesPositionAndEntryTrade(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100000)
	strategy := f.seedStrategy(t, domain.StrategyParams{
		StopLossPct:   0.05,
		TakeProfitPct: 0.10,
		MaxHoldHours:  24,
	})

	pos, err := f.svc.Open(ctx, OpenRequest{
		StrategyID: strategy.ID,
		Symbol:     "aapl",
		Quantity:   20,
		EntryPrice: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, "AAPL", pos.Symbol)
	assert.Equal(t, domain.PositionStatusOpen, pos.Status)
	assert.Equal(t, int64(20), pos.RemainingQuantity)
	assert.InDelta(t, 1000.0, pos.PositionSize, 1e-9)
	assert.InDelta(t, 47.5, pos.StopLossPrice, 1e-9)
	assert.InDelta(t, 55.0, pos.TakeProfitPrice, 1e-9)
	assert.Equal(t, 24*time.Hour, pos.MaxHold)

	trades, err := f.store.Trades().ListByPosition(ctx, pos.ID)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, domain.TradeSideBuy, trades[0].Side)
	assert.Equal(t, "sentiment-core", trades[0].StrategyTag)

	balance, err := f.ledger.Balance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 99000.0, balance, 1e-9)
}

func TestOpenRejectsUnknownStrategy(t *testing.T) {
	f := newFixture(t, 100000)
	_, err := f.svc.Open(context.Background(), OpenRequest{
		StrategyID: 99, Symbol: "AAPL", Quantity: 1, EntryPrice: 10,
	})
	assert.ErrorIs(t, err, domain.ErrStrategyNotFound)
}

func TestOpenGatedByCapital(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000)
	strategy := f.seedStrategy(t, domain.StrategyParams{})
	strategy.AllocationPct = 0.5 // 500 budget
	require.NoError(t, f.store.Strategies().Update(ctx, strategy))

	_, err := f.svc.Open(ctx, OpenRequest{
		StrategyID: strategy.ID, Symbol: "AAPL", Quantity: 10, EntryPrice: 100,
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientCapital)

	// Nothing was written.
	positions, err := f.store.Positions().ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
	trades, err := f.store.Trades().ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestFullCloseRealizesPnL(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100000)
	strategy := f.seedStrategy(t, domain.StrategyParams{})

	pos, err := f.svc.Open(ctx, OpenRequest{
		StrategyID: strategy.ID, Symbol: "AAPL", Quantity: 10, EntryPrice: 180,
	})
	require.NoError(t, err)

	event, err := f.svc.Close(ctx, CloseRequest{
		PositionID: pos.ID,
		ExitType:   domain.ExitTypeManual,
		Price:      190,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), event.QuantityClosed)
	assert.InDelta(t, 100.0, event.RealizedPnL, 1e-9)
	assert.NotEmpty(t, event.ID)

	closed, _, err := f.svc.Get(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, closed.Status)
	assert.Zero(t, closed.RemainingQuantity)
	assert.InDelta(t, 100.0, closed.RealizedPnL, 1e-9)
	assert.NotNil(t, closed.ClosedAt)

	// The mirrored SELL returns principal plus P&L through reconciliation.
	balance, err := f.ledger.Balance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 100100.0, balance, 1e-9)
}

func TestPartialClosesKeepQuantityInvariant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100000)
	strategy := f.seedStrategy(t, domain.StrategyParams{})

	pos, err := f.svc.Open(ctx, OpenRequest{
		StrategyID: strategy.ID, Symbol: "AAPL", Quantity: 10, EntryPrice: 100,
	})
	require.NoError(t, err)

	_, err = f.svc.Close(ctx, CloseRequest{
		PositionID: pos.ID, ExitType: domain.ExitTypeManual, Quantity: 4, Price: 110,
	})
	require.NoError(t, err)

	mid, events, err := f.svc.Get(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusPartiallyClosed, mid.Status)
	assert.Equal(t, int64(6), mid.RemainingQuantity)
	assert.InDelta(t, 40.0, mid.RealizedPnL, 1e-9)

	_, err = f.svc.Close(ctx, CloseRequest{
		PositionID: pos.ID, ExitType: domain.ExitTypeManual, Quantity: 6, Price: 90,
	})
	require.NoError(t, err)

	final, events, err := f.svc.Get(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, final.Status)
	assert.Zero(t, final.RemainingQuantity)
	assert.InDelta(t, -20.0, final.RealizedPnL, 1e-9) // +40 then -60

	var closedTotal int64
	for _, e := range events {
		closedTotal += e.QuantityClosed
	}
	assert.Equal(t, final.Quantity, closedTotal+final.RemainingQuantity)
}

func TestCloseValidations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100000)
	strategy := f.seedStrategy(t, domain.StrategyParams{})

	pos, err := f.svc.Open(ctx, OpenRequest{
		StrategyID: strategy.ID, Symbol: "AAPL", Quantity: 5, EntryPrice: 100,
	})
	require.NoError(t, err)

	_, err = f.svc.Close(ctx, CloseRequest{
		PositionID: pos.ID, ExitType: domain.ExitTypeManual, Quantity: 6, Price: 100,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTrade)

	_, err = f.svc.Close(ctx, CloseRequest{
		PositionID: pos.ID, ExitType: domain.ExitTypeManual, Price: 100,
	})
	require.NoError(t, err)

	// Closing a terminal position is a state error, and re-running the same
	// close changes nothing.
	_, err = f.svc.Close(ctx, CloseRequest{
		PositionID: pos.ID, ExitType: domain.ExitTypeManual, Price: 100,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.svc.Close(ctx, CloseRequest{
		PositionID: 404, ExitType: domain.ExitTypeManual, Price: 100,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckExitConditionsStopLoss(t *testing.T) {
	// Scenario: qty 20 @ 50 with a 5% stop. The price path 50, 48, 47 must
	// close the position on the cycle that sees 47.
	ctx := context.Background()
	f := newFixture(t, 100000)
	strategy := f.seedStrategy(t, domain.StrategyParams{StopLossPct: 0.05})

	f.prices.SetPrice("AAPL", 50)
	pos, err := f.svc.Open(ctx, OpenRequest{
		StrategyID: strategy.ID, Symbol: "AAPL", Quantity: 20,
	})
	require.NoError(t, err)
	assert.InDelta(t, 50.0, pos.EntryPrice, 1e-9)

	for _, price := range []float64{50, 48} {
		f.prices.SetPrice("AAPL", price)
		events, err := f.svc.CheckExitConditions(ctx)
		require.NoError(t, err)
		assert.Empty(t, events)
	}

	f.prices.SetPrice("AAPL", 47)
	events, err := f.svc.CheckExitConditions(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.ExitTypeStopLoss, events[0].ExitType)
	assert.Equal(t, int64(20), events[0].QuantityClosed)
	assert.InDelta(t, -60.0, events[0].RealizedPnL, 1e-9)

	// Idempotent: the position is terminal, the next cycle closes nothing.
	events, err = f.svc.CheckExitConditions(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestCheckExitConditionsTimeBasedExpires(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100000)
	strategy := f.seedStrategy(t, domain.StrategyParams{MaxHoldHours: 1})

	f.prices.SetPrice("AAPL", 100)
	pos, err := f.svc.Open(ctx, OpenRequest{
		StrategyID: strategy.ID, Symbol: "AAPL", Quantity: 5,
	})
	require.NoError(t, err)

	f.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	events, err := f.svc.CheckExitConditions(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.ExitTypeTimeBased, events[0].ExitType)

	expired, _, err := f.svc.Get(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusExpired, expired.Status)
}

func TestCheckExitConditionsRatchetsTrailingStop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100000)
	strategy := f.seedStrategy(t, domain.StrategyParams{TrailingStopPct: 0.03})

	f.prices.SetPrice("AAPL", 100)
	pos, err := f.svc.Open(ctx, OpenRequest{
		StrategyID: strategy.ID, Symbol: "AAPL", Quantity: 10,
	})
	require.NoError(t, err)
	assert.InDelta(t, 97.0, pos.TrailingStopPrice, 1e-9)

	f.prices.SetPrice("AAPL", 110)
	events, err := f.svc.CheckExitConditions(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)

	refreshed, _, err := f.svc.Get(ctx, pos.ID)
	require.NoError(t, err)
	assert.InDelta(t, 106.7, refreshed.TrailingStopPrice, 1e-9)
	assert.InDelta(t, 100.0, refreshed.UnrealizedPnL, 1e-9)

	// The retreat to 106 is below the ratcheted stop and closes the position
	// with the gain locked in.
	f.prices.SetPrice("AAPL", 106)
	events, err = f.svc.CheckExitConditions(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.ExitTypeTrailingStop, events[0].ExitType)
	assert.InDelta(t, 60.0, events[0].RealizedPnL, 1e-9)
}

func TestCheckExitConditionsPriceUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100000)
	strategy := f.seedStrategy(t, domain.StrategyParams{StopLossPct: 0.05})

	pos, err := f.svc.Open(ctx, OpenRequest{
		StrategyID: strategy.ID, Symbol: "AAPL", Quantity: 10, EntryPrice: 100,
	})
	require.NoError(t, err)

	// No price for AAPL: the cycle treats the position as flat and keeps it.
	events, err := f.svc.CheckExitConditions(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)

	kept, _, err := f.svc.Get(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusOpen, kept.Status)
	assert.InDelta(t, 0.0, kept.UnrealizedPnL, 1e-9)
}
