// Package performance aggregates per-strategy trading metrics from closed
// positions.
package performance

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"papertrade/internal/allocator"
	"papertrade/internal/domain"
	"papertrade/internal/store"

	"github.com/shopspring/decimal"
)

// Metrics is the aggregate view over a set of closed positions. Sharpe and
// Sortino are nil when fewer than two samples exist or the deviation is zero.
// ProfitFactor is math.Inf(1) when there are wins and no losses, and 0 when
// nothing has closed.
type Metrics struct {
	StrategyID int64 `json:"strategy_id,omitempty"`

	ClosedPositions  int `json:"closed_positions"`
	ExpiredPositions int `json:"expired_positions"`
	Wins             int `json:"wins"`
	Losses           int `json:"losses"`

	RealizedPnL  float64 `json:"realized_pnl"`
	WinRate      float64 `json:"win_rate"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	GrossProfit  float64 `json:"gross_profit"`
	GrossLoss    float64 `json:"gross_loss"`
	ProfitFactor float64 `json:"profit_factor"`
	MaxDrawdown  float64 `json:"max_drawdown"`

	SharpeRatio  *float64 `json:"sharpe_ratio"`
	SortinoRatio *float64 `json:"sortino_ratio"`
}

// MarshalJSON renders an infinite profit factor (wins, zero losses) as the
// string "inf", which encoding/json cannot represent as a number.
func (m Metrics) MarshalJSON() ([]byte, error) {
	type alias Metrics
	out := struct {
		alias
		ProfitFactor any `json:"profit_factor"`
	}{alias: alias(m), ProfitFactor: m.ProfitFactor}
	if math.IsInf(m.ProfitFactor, 1) {
		out.ProfitFactor = "inf"
	}
	return json.Marshal(out)
}

// Aggregator computes metrics and writes periodic per-strategy snapshots.
type Aggregator struct {
	store     store.Store
	allocator *allocator.Service
	now       func() time.Time
}

func NewAggregator(st store.Store, alloc *allocator.Service) *Aggregator {
	return &Aggregator{store: st, allocator: alloc, now: time.Now}
}

// Compute aggregates closed and expired positions for one strategy since the
// given time. A strategyID of 0 aggregates across all strategies; a zero
// since covers all history.
func (a *Aggregator) Compute(ctx context.Context, strategyID int64, since time.Time) (Metrics, error) {
	positions, err := a.store.Positions().ListClosedSince(ctx, strategyID, since)
	if err != nil {
		return Metrics{}, fmt.Errorf("performance: listing closed positions: %w", err)
	}
	m := FromPositions(positions)
	m.StrategyID = strategyID
	return m, nil
}

// FromPositions computes metrics over an in-memory slice. Safe on empty
// input: every field is zero or nil, never NaN.
func FromPositions(positions []domain.Position) Metrics {
	var m Metrics
	if len(positions) == 0 {
		return m
	}

	sort.SliceStable(positions, func(i, j int) bool {
		ti, tj := closeTime(&positions[i]), closeTime(&positions[j])
		return ti.Before(tj)
	})

	grossProfit := decimal.Zero
	grossLoss := decimal.Zero
	returns := make([]float64, 0, len(positions))
	for i := range positions {
		p := &positions[i]
		if p.Status == domain.PositionStatusExpired {
			m.ExpiredPositions++
		} else {
			m.ClosedPositions++
		}
		pnl := decimal.NewFromFloat(p.RealizedPnL)
		if pnl.IsPositive() {
			m.Wins++
			grossProfit = grossProfit.Add(pnl)
		} else if pnl.IsNegative() {
			m.Losses++
			grossLoss = grossLoss.Add(pnl.Abs())
		}
		returns = append(returns, p.RealizedPnL)
	}

	total := m.ClosedPositions + m.ExpiredPositions
	m.RealizedPnL, _ = grossProfit.Sub(grossLoss).Float64()
	m.GrossProfit, _ = grossProfit.Float64()
	m.GrossLoss, _ = grossLoss.Float64()
	m.WinRate = float64(m.Wins) / float64(total)
	if m.Wins > 0 {
		m.AvgWin, _ = grossProfit.Div(decimal.NewFromInt(int64(m.Wins))).Float64()
	}
	if m.Losses > 0 {
		m.AvgLoss, _ = grossLoss.Div(decimal.NewFromInt(int64(m.Losses))).Float64()
	}
	switch {
	case !grossLoss.IsZero():
		m.ProfitFactor, _ = grossProfit.Div(grossLoss).Float64()
	case !grossProfit.IsZero():
		m.ProfitFactor = math.Inf(1)
	}
	m.MaxDrawdown = maxDrawdown(returns)
	m.SharpeRatio = sharpe(returns)
	m.SortinoRatio = sortino(returns)
	return m
}

// maxDrawdown is the largest peak-to-trough decline of the cumulative
// realized P&L series, in currency units.
func maxDrawdown(returns []float64) float64 {
	cumulative := decimal.Zero
	peak := decimal.Zero
	worst := decimal.Zero
	for _, r := range returns {
		cumulative = cumulative.Add(decimal.NewFromFloat(r))
		if cumulative.GreaterThan(peak) {
			peak = cumulative
		}
		if dd := peak.Sub(cumulative); dd.GreaterThan(worst) {
			worst = dd
		}
	}
	v, _ := worst.Float64()
	return v
}

func sharpe(returns []float64) *float64 {
	mean, stdev, ok := meanStdev(returns)
	if !ok || stdev == 0 {
		return nil
	}
	v := mean / stdev
	return &v
}

func sortino(returns []float64) *float64 {
	mean, _, ok := meanStdev(returns)
	if !ok {
		return nil
	}
	var downSq, n float64
	for _, r := range returns {
		if r < 0 {
			downSq += r * r
		}
		n++
	}
	downside := math.Sqrt(downSq / n)
	if downside == 0 {
		return nil
	}
	v := mean / downside
	return &v
}

func meanStdev(returns []float64) (mean, stdev float64, ok bool) {
	n := float64(len(returns))
	if n < 2 {
		return 0, 0, false
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean = sum / n
	var sqDiff float64
	for _, r := range returns {
		d := r - mean
		sqDiff += d * d
	}
	stdev = math.Sqrt(sqDiff / (n - 1))
	return mean, stdev, true
}

func closeTime(p *domain.Position) time.Time {
	if p.ClosedAt != nil {
		return *p.ClosedAt
	}
	return p.OpenedAt
}
