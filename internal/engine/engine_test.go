package engine

import (
	"context"
	"testing"

	"papertrade/internal/allocator"
	"papertrade/internal/domain"
	"papertrade/internal/ledger"
	"papertrade/internal/market"
	"papertrade/internal/performance"
	"papertrade/internal/position"
	"papertrade/internal/signal"
	"papertrade/internal/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store  *memstore.MemStore
	ledger *ledger.Service
	prices *market.StaticSource
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New()
	prices := market.NewStaticSource(map[string]float64{"AAPL": 180})
	quote := func(ctx context.Context, symbol string) (float64, error) {
		q, err := prices.GetPrice(ctx, symbol)
		if err != nil {
			return 0, err
		}
		return q.Price, nil
	}
	led := ledger.New(st, 100000, 0, quote)
	alloc := allocator.New(st, led, 0, nil)
	pos := position.NewService(st, led, alloc, prices)
	perf := performance.NewAggregator(st, alloc)
	return &fixture{
		store:  st,
		ledger: led,
		prices: prices,
		engine: New(st, pos, led, perf),
	}
}

func (f *fixture) seedStrategy(t *testing.T, minConfidence float64, active bool) *domain.Strategy {
	t.Helper()
	strategy := &domain.Strategy{
		Name: "sentiment-core",
		Type: domain.StrategyTypeSentiment,
		Params: domain.StrategyParams{
			StopLossPct:   0.05,
			TakeProfitPct: 0.10,
			MinConfidence: minConfidence,
		},
		AllocationPct: 1.0,
		MaxPositions:  10,
		Active:        active,
	}
	require.NoError(t, f.store.Strategies().Create(context.Background(), strategy))
	return strategy
}

func buySignal(confidence float64) *signal.Signal {
	return &signal.Signal{
		Strategy:   "sentiment-core",
		Symbol:     "AAPL",
		Action:     "buy",
		Quantity:   10,
		Price:      180,
		Confidence: confidence,
		Score:      0.8,
		Reasoning:  "earnings beat",
	}
}

func TestExecuteSignalBuyOpensPosition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedStrategy(t, 0.6, true)

	res, err := f.engine.ExecuteSignal(ctx, buySignal(0.9))
	require.NoError(t, err)
	assert.True(t, res.Executed)
	require.NotNil(t, res.Position)
	assert.Equal(t, "AAPL", res.Position.Symbol)
	assert.Equal(t, int64(10), res.Position.RemainingQuantity)

	balance, err := f.ledger.Balance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 98200.0, balance, 1e-9)
}

func TestExecuteSignalBuyBelowConfidenceSkips(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedStrategy(t, 0.7, true)

	res, err := f.engine.ExecuteSignal(ctx, buySignal(0.5))
	require.NoError(t, err)
	assert.False(t, res.Executed)
	assert.Contains(t, res.Reason, "below strategy floor")
	assert.Nil(t, res.Position)

	active, err := f.store.Positions().ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestExecuteSignalInactiveStrategy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedStrategy(t, 0.6, false)

	res, err := f.engine.ExecuteSignal(ctx, buySignal(0.9))
	require.NoError(t, err)
	assert.False(t, res.Executed)
	assert.Contains(t, res.Reason, "inactive")
}

func TestExecuteSignalUnknownStrategy(t *testing.T) {
	f := newFixture(t)
	sig := buySignal(0.9)
	sig.Strategy = "never-registered"

	_, err := f.engine.ExecuteSignal(context.Background(), sig)
	assert.ErrorIs(t, err, domain.ErrStrategyNotFound)
}

func TestExecuteSignalCloseRealizesPnL(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedStrategy(t, 0.6, true)

	_, err := f.engine.ExecuteSignal(ctx, buySignal(0.9))
	require.NoError(t, err)

	res, err := f.engine.ExecuteSignal(ctx, &signal.Signal{
		Strategy:  "sentiment-core",
		Symbol:    "aapl", // symbol match is case-insensitive
		Action:    "close",
		Price:     190,
		Reasoning: "sentiment reversal",
	})
	require.NoError(t, err)
	assert.True(t, res.Executed)
	require.NotNil(t, res.Event)
	assert.Equal(t, domain.ExitTypeManual, res.Event.ExitType)
	assert.Equal(t, "sentiment reversal", res.Event.Reason)
	assert.InDelta(t, 100.0, res.Event.RealizedPnL, 1e-9)

	balance, err := f.ledger.Balance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 100100.0, balance, 1e-9)
}

func TestExecuteSignalCloseWithoutPosition(t *testing.T) {
	f := newFixture(t)
	f.seedStrategy(t, 0.6, true)

	_, err := f.engine.ExecuteSignal(context.Background(), &signal.Signal{
		Strategy: "sentiment-core",
		Symbol:   "AAPL",
		Action:   "close",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExecuteSignalUnsupportedAction(t *testing.T) {
	f := newFixture(t)
	f.seedStrategy(t, 0.6, true)

	sig := buySignal(0.9)
	sig.Action = "short"
	_, err := f.engine.ExecuteSignal(context.Background(), sig)
	assert.ErrorIs(t, err, domain.ErrInvalidTrade)
}

func TestRunCycleClosesBreachedPositions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedStrategy(t, 0.6, true)

	_, err := f.engine.ExecuteSignal(ctx, buySignal(0.9))
	require.NoError(t, err)

	// Price above the stop: nothing fires.
	result, err := f.engine.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Checked)
	assert.Empty(t, result.ExitEvents)
	assert.InDelta(t, 98200.0, result.Balance, 1e-9)

	// 5% stop on a 180 entry is 171.
	f.prices.SetPrice("AAPL", 170)
	result, err = f.engine.RunCycle(ctx)
	require.NoError(t, err)
	require.Len(t, result.ExitEvents, 1)
	assert.Equal(t, domain.ExitTypeStopLoss, result.ExitEvents[0].ExitType)
	assert.InDelta(t, 98200.0+1700.0, result.Balance, 1e-9)

	// Re-running finds nothing to check.
	result, err = f.engine.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Checked)
	assert.Empty(t, result.ExitEvents)
}

func TestSnapshotPerformance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	strategy := f.seedStrategy(t, 0.6, true)

	_, err := f.engine.ExecuteSignal(ctx, buySignal(0.9))
	require.NoError(t, err)
	require.NoError(t, f.engine.SnapshotPerformance(ctx))

	rows, err := f.store.Performance().ListByStrategy(ctx, strategy.ID, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].OpenPositions)
}
