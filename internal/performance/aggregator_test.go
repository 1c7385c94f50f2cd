package performance

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"papertrade/internal/allocator"
	"papertrade/internal/domain"
	"papertrade/internal/ledger"
	"papertrade/internal/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closedPosition(strategyID int64, pnl float64, closedAt time.Time) domain.Position {
	return domain.Position{
		StrategyID:  strategyID,
		Symbol:      "AAPL",
		EntryPrice:  100,
		Quantity:    10,
		Status:      domain.PositionStatusClosed,
		RealizedPnL: pnl,
		OpenedAt:    closedAt.Add(-time.Hour),
		ClosedAt:    &closedAt,
	}
}

func TestMetricsOnEmptyInput(t *testing.T) {
	m := FromPositions(nil)
	assert.Zero(t, m.ClosedPositions)
	assert.Zero(t, m.WinRate)
	assert.Zero(t, m.ProfitFactor)
	assert.Zero(t, m.MaxDrawdown)
	assert.Nil(t, m.SharpeRatio)
	assert.Nil(t, m.SortinoRatio)
	assert.False(t, math.IsNaN(m.WinRate))
	assert.False(t, math.IsNaN(m.AvgWin))
}

func TestMetricsKnownValues(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	positions := []domain.Position{
		closedPosition(1, 100, base),
		closedPosition(1, -50, base.Add(time.Hour)),
		closedPosition(1, 200, base.Add(2*time.Hour)),
		closedPosition(1, -30, base.Add(3*time.Hour)),
	}

	m := FromPositions(positions)
	assert.Equal(t, 4, m.ClosedPositions)
	assert.Equal(t, 2, m.Wins)
	assert.Equal(t, 2, m.Losses)
	assert.InDelta(t, 0.5, m.WinRate, 1e-9)
	assert.InDelta(t, 150.0, m.AvgWin, 1e-9)
	assert.InDelta(t, 40.0, m.AvgLoss, 1e-9)
	assert.InDelta(t, 300.0, m.GrossProfit, 1e-9)
	assert.InDelta(t, 80.0, m.GrossLoss, 1e-9)
	assert.InDelta(t, 3.75, m.ProfitFactor, 1e-9)
	assert.InDelta(t, 220.0, m.RealizedPnL, 1e-9)
	// Cumulative series 100, 50, 250, 220: largest peak-to-trough falls are
	// 100->50 and 250->220.
	assert.InDelta(t, 50.0, m.MaxDrawdown, 1e-9)
	require.NotNil(t, m.SharpeRatio)
	require.NotNil(t, m.SortinoRatio)
	assert.Greater(t, *m.SortinoRatio, *m.SharpeRatio)
}

func TestMetricsOrdersByCloseTime(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	// Inserted out of order: the drawdown must follow close-time order
	// (-80 first, then +100), which shows a drawdown of 80, not 0.
	positions := []domain.Position{
		closedPosition(1, 100, base.Add(time.Hour)),
		closedPosition(1, -80, base),
	}
	m := FromPositions(positions)
	assert.InDelta(t, 80.0, m.MaxDrawdown, 1e-9)
}

func TestProfitFactorAllWins(t *testing.T) {
	base := time.Now()
	m := FromPositions([]domain.Position{
		closedPosition(1, 10, base),
		closedPosition(1, 20, base.Add(time.Minute)),
	})
	assert.True(t, math.IsInf(m.ProfitFactor, 1))
	assert.Zero(t, m.MaxDrawdown)

	// JSON encoding replaces the unrepresentable infinity.
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"profit_factor":"inf"`)
}

func TestRatiosNilWhenDegenerate(t *testing.T) {
	base := time.Now()

	single := FromPositions([]domain.Position{closedPosition(1, 10, base)})
	assert.Nil(t, single.SharpeRatio)
	assert.Nil(t, single.SortinoRatio)

	// Identical returns have zero deviation.
	flat := FromPositions([]domain.Position{
		closedPosition(1, 10, base),
		closedPosition(1, 10, base.Add(time.Minute)),
	})
	assert.Nil(t, flat.SharpeRatio)
	assert.Nil(t, flat.SortinoRatio)
}

func TestExpiredPositionsCountedSeparately(t *testing.T) {
	base := time.Now()
	expired := closedPosition(1, -5, base)
	expired.Status = domain.PositionStatusExpired
	m := FromPositions([]domain.Position{closedPosition(1, 10, base.Add(time.Minute)), expired})
	assert.Equal(t, 1, m.ClosedPositions)
	assert.Equal(t, 1, m.ExpiredPositions)
	// Win rate covers both terminal kinds.
	assert.InDelta(t, 0.5, m.WinRate, 1e-9)
}

func TestComputeFiltersByStrategyAndTime(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	led := ledger.New(st, 100000, 0, nil)
	agg := NewAggregator(st, allocator.New(st, led, 0, nil))

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seed := []domain.Position{
		closedPosition(1, 100, base),
		closedPosition(1, -40, base.Add(48*time.Hour)),
		closedPosition(2, 70, base.Add(time.Hour)),
	}
	for i := range seed {
		require.NoError(t, st.Positions().Create(ctx, &seed[i]))
	}

	all, err := agg.Compute(ctx, 0, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 3, all.ClosedPositions)

	one, err := agg.Compute(ctx, 1, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, one.ClosedPositions)
	assert.InDelta(t, 60.0, one.RealizedPnL, 1e-9)

	recent, err := agg.Compute(ctx, 1, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, recent.ClosedPositions)
	assert.InDelta(t, -40.0, recent.RealizedPnL, 1e-9)
}

func TestSnapshotDailyUpserts(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	led := ledger.New(st, 100000, 0, nil)
	agg := NewAggregator(st, allocator.New(st, led, 0, nil))

	strategy := &domain.Strategy{
		Name: "sentiment-core", Type: domain.StrategyTypeSentiment,
		AllocationPct: 0.1, MaxPositions: 5, Active: true,
	}
	require.NoError(t, st.Strategies().Create(ctx, strategy))
	pos := closedPosition(strategy.ID, 250, time.Now())
	require.NoError(t, st.Positions().Create(ctx, &pos))

	require.NoError(t, agg.SnapshotDaily(ctx))
	require.NoError(t, agg.SnapshotDaily(ctx)) // same period overwrites

	snaps, err := agg.History(ctx, strategy.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.InDelta(t, 250.0, snaps[0].RealizedPnL, 1e-9)
	assert.InDelta(t, 1.0, snaps[0].WinRate, 1e-9)
	assert.InDelta(t, 10000.0, snaps[0].AllocatedCapital, 1e-9)
}