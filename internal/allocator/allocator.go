// Package allocator computes per-strategy capital budgets and gates new
// positions. The gate fails closed and never clamps an oversized order; the
// caller sizes requests within the reported capacity.
package allocator

import (
	"context"
	"fmt"
	"strings"

	"papertrade/internal/domain"
	"papertrade/internal/ledger"
	"papertrade/internal/store"

	"github.com/shopspring/decimal"
)

// Status reports the capital state of one strategy.
type Status struct {
	StrategyID    int64   `json:"strategy_id"`
	StrategyName  string  `json:"strategy_name"`
	Allocated     float64 `json:"allocated"`
	Utilized      float64 `json:"utilized"`
	Available     float64 `json:"available"`
	OpenPositions int     `json:"open_positions"`
	MaxPositions  int     `json:"max_positions"`
}

// PortfolioStatus is the advisory portfolio-wide risk view. None of these
// values gate trading.
type PortfolioStatus struct {
	TotalValue          float64            `json:"total_value"`
	CashBalance         float64            `json:"cash_balance"`
	CashReservePct      float64            `json:"cash_reserve_pct"`
	CashReserveRequired float64            `json:"cash_reserve_required"`
	LargestPositionPct  float64            `json:"largest_position_pct"`
	SectorConcentration map[string]float64 `json:"sector_concentration"`
	Strategies          []Status           `json:"strategies"`
}

// Service is the capital allocator.
type Service struct {
	store          store.Store
	ledger         *ledger.Service
	cashReservePct float64
	sectors        map[string]string
}

func New(st store.Store, led *ledger.Service, cashReservePct float64, sectors map[string]string) *Service {
	normalized := make(map[string]string, len(sectors))
	for sym, sector := range sectors {
		normalized[strings.ToUpper(strings.TrimSpace(sym))] = sector
	}
	return &Service{
		store:          st,
		ledger:         led,
		cashReservePct: cashReservePct,
		sectors:        normalized,
	}
}

// TotalPortfolioValue is reconciled cash plus the cost basis of remaining
// open exposure.
func (s *Service) TotalPortfolioValue(ctx context.Context) (float64, error) {
	cash, err := s.ledger.Balance(ctx)
	if err != nil {
		return 0, err
	}
	positions, err := s.store.Positions().ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("allocator: listing positions: %w", err)
	}
	total := decimal.NewFromFloat(cash)
	for i := range positions {
		total = total.Add(exposure(&positions[i]))
	}
	v, _ := total.Float64()
	return v, nil
}

// StrategyStatus reports allocated, utilized and available capital for one
// strategy: available = total_portfolio_value * allocation_pct - sum of the
// strategy's open position sizes.
func (s *Service) StrategyStatus(ctx context.Context, strategy *domain.Strategy) (Status, error) {
	total, err := s.TotalPortfolioValue(ctx)
	if err != nil {
		return Status{}, err
	}
	positions, err := s.store.Positions().ListActiveByStrategy(ctx, strategy.ID)
	if err != nil {
		return Status{}, fmt.Errorf("allocator: listing positions for strategy %d: %w", strategy.ID, err)
	}
	allocated := decimal.NewFromFloat(total).Mul(decimal.NewFromFloat(strategy.AllocationPct))
	utilized := decimal.Zero
	for i := range positions {
		utilized = utilized.Add(decimal.NewFromFloat(positions[i].PositionSize))
	}
	allocatedF, _ := allocated.Float64()
	utilizedF, _ := utilized.Float64()
	availableF, _ := allocated.Sub(utilized).Float64()
	return Status{
		StrategyID:    strategy.ID,
		StrategyName:  strategy.Name,
		Allocated:     allocatedF,
		Utilized:      utilizedF,
		Available:     availableF,
		OpenPositions: len(positions),
		MaxPositions:  strategy.MaxPositions,
	}, nil
}

// CanOpenPosition is the hard gate evaluated before any position is created.
// It rejects when the strategy is at its position limit, already holds the
// symbol, has no available capital, or the requested notional exceeds the
// available capital.
func (s *Service) CanOpenPosition(ctx context.Context, strategy *domain.Strategy, symbol string, notional float64) error {
	if !strategy.Active {
		return fmt.Errorf("%w: strategy %q is deactivated", domain.ErrInsufficientCapital, strategy.Name)
	}
	positions, err := s.store.Positions().ListActiveByStrategy(ctx, strategy.ID)
	if err != nil {
		return fmt.Errorf("allocator: listing positions for strategy %d: %w", strategy.ID, err)
	}
	if strategy.MaxPositions > 0 && len(positions) >= strategy.MaxPositions {
		return fmt.Errorf("%w: strategy %q at max positions (%d)",
			domain.ErrInsufficientCapital, strategy.Name, strategy.MaxPositions)
	}
	for i := range positions {
		if strings.EqualFold(positions[i].Symbol, symbol) {
			return fmt.Errorf("%w: strategy %q already holds %s",
				domain.ErrInsufficientCapital, strategy.Name, symbol)
		}
	}
	status, err := s.StrategyStatus(ctx, strategy)
	if err != nil {
		return err
	}
	if status.Available <= 0 {
		return fmt.Errorf("%w: strategy %q has no available capital (allocated %.2f, utilized %.2f)",
			domain.ErrInsufficientCapital, strategy.Name, status.Allocated, status.Utilized)
	}
	if notional > status.Available {
		return fmt.Errorf("%w: strategy %q requested %.2f, available %.2f",
			domain.ErrInsufficientCapital, strategy.Name, notional, status.Available)
	}
	return nil
}

// PortfolioStatus builds the advisory portfolio view: cash reserve
// requirement, largest single-position concentration and a sector breakdown.
func (s *Service) PortfolioStatus(ctx context.Context) (PortfolioStatus, error) {
	cash, err := s.ledger.Balance(ctx)
	if err != nil {
		return PortfolioStatus{}, err
	}
	positions, err := s.store.Positions().ListActive(ctx)
	if err != nil {
		return PortfolioStatus{}, fmt.Errorf("allocator: listing positions: %w", err)
	}
	total := decimal.NewFromFloat(cash)
	largest := decimal.Zero
	bySector := make(map[string]decimal.Decimal)
	for i := range positions {
		exp := exposure(&positions[i])
		total = total.Add(exp)
		if exp.GreaterThan(largest) {
			largest = exp
		}
		sector := s.sectorFor(positions[i].Symbol)
		bySector[sector] = bySector[sector].Add(exp)
	}
	out := PortfolioStatus{
		CashBalance:         cash,
		CashReservePct:      s.cashReservePct,
		SectorConcentration: make(map[string]float64, len(bySector)),
	}
	out.TotalValue, _ = total.Float64()
	out.CashReserveRequired, _ = total.Mul(decimal.NewFromFloat(s.cashReservePct)).Float64()
	if total.IsPositive() {
		out.LargestPositionPct, _ = largest.Div(total).Float64()
		for sector, exp := range bySector {
			pct, _ := exp.Div(total).Float64()
			out.SectorConcentration[sector] = pct
		}
	}
	strategies, err := s.store.Strategies().ListActive(ctx)
	if err != nil {
		return PortfolioStatus{}, fmt.Errorf("allocator: listing strategies: %w", err)
	}
	for i := range strategies {
		status, serr := s.StrategyStatus(ctx, &strategies[i])
		if serr != nil {
			return PortfolioStatus{}, serr
		}
		out.Strategies = append(out.Strategies, status)
	}
	return out, nil
}

func (s *Service) sectorFor(symbol string) string {
	if sector, ok := s.sectors[strings.ToUpper(symbol)]; ok {
		return sector
	}
	return "Unclassified"
}

// exposure is the cost basis of the remaining quantity.
func exposure(p *domain.Position) decimal.Decimal {
	return decimal.NewFromFloat(p.EntryPrice).Mul(decimal.NewFromInt(p.RemainingQuantity))
}
