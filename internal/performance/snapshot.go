package performance

import (
	"context"
	"fmt"
	"time"

	"papertrade/internal/domain"
	"papertrade/internal/logger"
)

// SnapshotDaily upserts one StrategyPerformance row per strategy for the
// current day. Re-running within the same day overwrites that day's row;
// past periods are never touched.
func (a *Aggregator) SnapshotDaily(ctx context.Context) error {
	strategies, err := a.store.Strategies().List(ctx)
	if err != nil {
		return fmt.Errorf("performance snapshot: listing strategies: %w", err)
	}
	now := a.now()
	period := now.UTC().Truncate(24 * time.Hour)
	for i := range strategies {
		strategy := &strategies[i]
		snapshot, err := a.buildSnapshot(ctx, strategy, period)
		if err != nil {
			logger.Errorf("performance snapshot for %s: %v", strategy.Name, err)
			continue
		}
		if err := a.store.Performance().Upsert(ctx, snapshot); err != nil {
			logger.Errorf("performance snapshot upsert for %s: %v", strategy.Name, err)
		}
	}
	return nil
}

func (a *Aggregator) buildSnapshot(ctx context.Context, strategy *domain.Strategy, period time.Time) (*domain.StrategyPerformance, error) {
	metrics, err := a.Compute(ctx, strategy.ID, time.Time{})
	if err != nil {
		return nil, err
	}
	active, err := a.store.Positions().ListActiveByStrategy(ctx, strategy.ID)
	if err != nil {
		return nil, err
	}
	var unrealized float64
	for i := range active {
		unrealized += active[i].UnrealizedPnL
	}
	status, err := a.allocator.StrategyStatus(ctx, strategy)
	if err != nil {
		return nil, err
	}
	return &domain.StrategyPerformance{
		StrategyID:       strategy.ID,
		Period:           period,
		OpenPositions:    len(active),
		ClosedPositions:  metrics.ClosedPositions,
		ExpiredPositions: metrics.ExpiredPositions,
		RealizedPnL:      metrics.RealizedPnL,
		UnrealizedPnL:    unrealized,
		TotalPnL:         metrics.RealizedPnL + unrealized,
		WinRate:          metrics.WinRate,
		ProfitFactor:     metrics.ProfitFactor,
		AllocatedCapital: status.Allocated,
		UtilizedCapital:  status.Utilized,
		AvailableCapital: status.Available,
	}, nil
}

// History returns the stored snapshots for one strategy, newest first.
func (a *Aggregator) History(ctx context.Context, strategyID int64) ([]domain.StrategyPerformance, error) {
	return a.store.Performance().ListByStrategy(ctx, strategyID, 90)
}
