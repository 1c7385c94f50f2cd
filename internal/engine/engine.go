// Package engine orchestrates signal execution and the periodic trading
// cycle.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"papertrade/internal/domain"
	"papertrade/internal/ledger"
	"papertrade/internal/logger"
	"papertrade/internal/performance"
	"papertrade/internal/position"
	"papertrade/internal/signal"
	"papertrade/internal/store"
)

// Engine wires signals and the cycle clock to the position lifecycle.
type Engine struct {
	store       store.Store
	positions   *position.Service
	ledger      *ledger.Service
	performance *performance.Aggregator
}

func New(st store.Store, pos *position.Service, led *ledger.Service, perf *performance.Aggregator) *Engine {
	return &Engine{store: st, positions: pos, ledger: led, performance: perf}
}

// SignalResult reports what a signal turned into.
type SignalResult struct {
	Executed bool                      `json:"executed"`
	Reason   string                    `json:"reason,omitempty"`
	Position *domain.Position          `json:"position,omitempty"`
	Event    *domain.PositionExitEvent `json:"event,omitempty"`
}

// ExecuteSignal routes a parsed signal to its strategy. Buy signals below the
// strategy's confidence floor are skipped, not errored: a quiet signal is a
// normal outcome.
func (e *Engine) ExecuteSignal(ctx context.Context, sig *signal.Signal) (*SignalResult, error) {
	strategy, err := e.store.Strategies().FindByName(ctx, sig.Strategy)
	if err != nil {
		return nil, fmt.Errorf("signal for %q: %w", sig.Strategy, err)
	}
	if !strategy.Active {
		return &SignalResult{Reason: fmt.Sprintf("strategy %s is inactive", strategy.Name)}, nil
	}

	switch sig.Action {
	case "buy":
		if sig.Confidence < strategy.Params.MinConfidence {
			logger.Debugf("signal for %s skipped: confidence %.2f below floor %.2f",
				sig.Symbol, sig.Confidence, strategy.Params.MinConfidence)
			return &SignalResult{Reason: fmt.Sprintf(
				"confidence %.2f below strategy floor %.2f", sig.Confidence, strategy.Params.MinConfidence)}, nil
		}
		pos, err := e.positions.Open(ctx, position.OpenRequest{
			StrategyID: strategy.ID,
			Symbol:     sig.Symbol,
			Quantity:   sig.Quantity,
			EntryPrice: sig.Price,
			Signal:     sig.Snapshot(),
		})
		if err != nil {
			return nil, err
		}
		return &SignalResult{Executed: true, Position: pos}, nil

	case "close":
		pos, err := e.findActivePosition(ctx, strategy.ID, sig.Symbol)
		if err != nil {
			return nil, err
		}
		event, err := e.positions.Close(ctx, position.CloseRequest{
			PositionID: pos.ID,
			ExitType:   domain.ExitTypeManual,
			Reason:     closeReason(sig),
			Quantity:   sig.Quantity,
			Price:      sig.Price,
		})
		if err != nil {
			return nil, err
		}
		return &SignalResult{Executed: true, Event: event}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported action %q", domain.ErrInvalidTrade, sig.Action)
	}
}

// CycleResult summarizes one evaluation pass.
type CycleResult struct {
	StartedAt  time.Time                  `json:"started_at"`
	Duration   time.Duration              `json:"duration"`
	Checked    int                        `json:"checked"`
	ExitEvents []domain.PositionExitEvent `json:"exit_events"`
	Balance    float64                    `json:"balance"`
}

// RunCycle evaluates exit conditions across all open positions and
// reconciles the ledger. Safe to re-run: positions closed by one pass are
// terminal in the next.
func (e *Engine) RunCycle(ctx context.Context) (*CycleResult, error) {
	started := time.Now()
	active, err := e.positions.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	events, err := e.positions.CheckExitConditions(ctx)
	if err != nil {
		return nil, err
	}
	recon, err := e.ledger.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	result := &CycleResult{
		StartedAt:  started,
		Duration:   time.Since(started),
		Checked:    len(active),
		ExitEvents: events,
		Balance:    recon.Balance,
	}
	logger.Infof("cycle done: checked=%d closed=%d balance=%.2f elapsed=%s",
		result.Checked, len(events), result.Balance, result.Duration.Round(time.Millisecond))
	return result, nil
}

// SnapshotPerformance persists the daily per-strategy metrics row.
func (e *Engine) SnapshotPerformance(ctx context.Context) error {
	return e.performance.SnapshotDaily(ctx)
}

func (e *Engine) findActivePosition(ctx context.Context, strategyID int64, symbol string) (*domain.Position, error) {
	active, err := e.store.Positions().ListActiveByStrategy(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	for i := range active {
		if strings.EqualFold(active[i].Symbol, symbol) {
			return &active[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no active position for %s", domain.ErrNotFound, symbol)
}

func closeReason(sig *signal.Signal) string {
	if sig.Reasoning != "" {
		return sig.Reasoning
	}
	return "close signal"
}
