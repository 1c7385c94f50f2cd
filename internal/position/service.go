// Package position manages the open/partial/closed lifecycle of strategy
// positions and their exit evaluation.
package position

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"papertrade/internal/allocator"
	"papertrade/internal/domain"
	"papertrade/internal/ledger"
	"papertrade/internal/logger"
	"papertrade/internal/market"
	"papertrade/internal/position/exit"
	"papertrade/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service drives the position state machine. Mutations are serialized behind
// one mutex so the capital gate and the commit it guards cannot interleave.
type Service struct {
	store     store.Store
	ledger    *ledger.Service
	allocator *allocator.Service
	market    market.Source

	mu  sync.Mutex
	now func() time.Time
}

func NewService(st store.Store, led *ledger.Service, alloc *allocator.Service, src market.Source) *Service {
	return &Service{
		store:     st,
		ledger:    led,
		allocator: alloc,
		market:    src,
		now:       time.Now,
	}
}

// OpenRequest carries the inputs for opening a position.
type OpenRequest struct {
	StrategyID int64
	Symbol     string
	Quantity   int64
	// EntryPrice of 0 resolves the current market quote.
	EntryPrice float64
	Signal     *domain.SignalSnapshot
}

// Open gates the request through the capital allocator, derives exit
// thresholds from the strategy parameters and commits the Position together
// with its entry BUY trade in one transaction. If either write fails, neither
// is committed.
func (s *Service) Open(ctx context.Context, req OpenRequest) (*domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	strategy, err := s.store.Strategies().FindByID(ctx, req.StrategyID)
	if err != nil {
		return nil, fmt.Errorf("open position: strategy %d: %w", req.StrategyID, err)
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol required", domain.ErrInvalidTrade)
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive, got %d", domain.ErrInvalidTrade, req.Quantity)
	}

	entry := req.EntryPrice
	if entry <= 0 {
		quote, qerr := s.market.GetPrice(ctx, symbol)
		if qerr != nil {
			return nil, fmt.Errorf("%w: no entry price for %s: %v", domain.ErrInvalidTrade, symbol, qerr)
		}
		entry = quote.Price
	}

	notional := mulQty(entry, req.Quantity)
	if err := s.allocator.CanOpenPosition(ctx, strategy, symbol, notional); err != nil {
		return nil, err
	}
	balance, err := s.ledger.Balance(ctx)
	if err != nil {
		return nil, err
	}
	if notional > balance {
		return nil, fmt.Errorf("%w: position needs %.2f, cash balance %.2f",
			domain.ErrInsufficientBalance, notional, balance)
	}

	thresholds := exit.ThresholdsFor(entry, strategy.Params)
	now := s.now()
	pos := &domain.Position{
		StrategyID:        strategy.ID,
		Symbol:            symbol,
		EntryPrice:        entry,
		Quantity:          req.Quantity,
		RemainingQuantity: req.Quantity,
		PositionSize:      notional,
		Status:            domain.PositionStatusOpen,
		StopLossPrice:     thresholds.StopLoss,
		TakeProfitPrice:   thresholds.TakeProfit,
		MaxHold:           thresholds.MaxHold,
		TrailingStopPct:   thresholds.TrailingPct,
		EntrySignal:       req.Signal,
		OpenedAt:          now,
	}
	exit.Ratchet(pos, entry) // seed the trailing stop from the entry price

	uow, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("open position: begin: %w", err)
	}
	if err := uow.Positions().Create(ctx, pos); err != nil {
		_ = uow.Rollback()
		return nil, fmt.Errorf("open position: %w", err)
	}
	entryTrade := &domain.Trade{
		Symbol:      symbol,
		Side:        domain.TradeSideBuy,
		Quantity:    req.Quantity,
		Price:       entry,
		TotalValue:  notional,
		Status:      domain.TradeStatusOpen,
		StrategyTag: strategy.Name,
		PositionID:  pos.ID,
		ExecutedAt:  now,
	}
	if err := uow.Trades().Create(ctx, entryTrade); err != nil {
		_ = uow.Rollback()
		return nil, fmt.Errorf("open position: entry trade: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("open position: commit: %w", err)
	}

	s.ledger.Invalidate()
	if _, err := s.ledger.Reconcile(ctx); err != nil {
		return nil, err
	}
	logger.Infof("position %d opened: %s x%d @ %.4f (strategy=%s, stop=%.4f, target=%.4f)",
		pos.ID, symbol, req.Quantity, entry, strategy.Name, pos.StopLossPrice, pos.TakeProfitPrice)
	return pos, nil
}

// CloseRequest carries the inputs for a full or partial close.
type CloseRequest struct {
	PositionID int64
	ExitType   domain.ExitType
	Reason     string
	// Quantity of 0 closes the full remaining quantity.
	Quantity int64
	// Price of 0 resolves the current market quote, degrading to the entry
	// price when the quote is unavailable.
	Price float64
}

// Close realizes P&L for the closed portion, writes the exit event, updates
// the position and appends the mirrored SELL trade in one transaction.
func (s *Service) Close(ctx context.Context, req CloseRequest) (*domain.PositionExitEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked(ctx, req)
}

func (s *Service) closeLocked(ctx context.Context, req CloseRequest) (*domain.PositionExitEvent, error) {
	pos, err := s.store.Positions().FindByID(ctx, req.PositionID)
	if err != nil {
		return nil, fmt.Errorf("close position %d: %w", req.PositionID, err)
	}
	if !pos.Status.Active() {
		return nil, fmt.Errorf("%w: position %d already %s", domain.ErrInvalidState, pos.ID, pos.Status)
	}

	qty := req.Quantity
	if qty == 0 {
		qty = pos.RemainingQuantity
	}
	if qty < 0 || qty > pos.RemainingQuantity {
		return nil, fmt.Errorf("%w: close quantity %d outside remaining %d",
			domain.ErrInvalidTrade, qty, pos.RemainingQuantity)
	}

	price := req.Price
	if price <= 0 {
		quote, qerr := s.market.GetPrice(ctx, pos.Symbol)
		if qerr != nil || quote.Price <= 0 {
			logger.Warnf("position %d: quote for %s unavailable, closing at entry price: %v",
				pos.ID, pos.Symbol, qerr)
			price = pos.EntryPrice
		} else {
			price = quote.Price
		}
	}

	pnl := realizedPnL(pos.EntryPrice, price, qty)
	now := s.now()
	event := &domain.PositionExitEvent{
		ID:             uuid.NewString(),
		PositionID:     pos.ID,
		ExitType:       req.ExitType,
		TriggerPrice:   price,
		ExitPrice:      price,
		QuantityClosed: qty,
		RealizedPnL:    pnl,
		Reason:         req.Reason,
		CreatedAt:      now,
	}

	wasOpen := pos.Status == domain.PositionStatusOpen
	pos.RemainingQuantity -= qty
	pos.RealizedPnL = addMoney(pos.RealizedPnL, pnl)
	if pos.RemainingQuantity == 0 {
		if req.ExitType == domain.ExitTypeTimeBased && wasOpen {
			pos.Status = domain.PositionStatusExpired
		} else {
			pos.Status = domain.PositionStatusClosed
		}
		pos.UnrealizedPnL = 0
		pos.ClosedAt = &now
	} else {
		pos.Status = domain.PositionStatusPartiallyClosed
		pos.UnrealizedPnL = realizedPnL(pos.EntryPrice, price, pos.RemainingQuantity)
	}

	// Trade-level P&L is derived from the authoritative position-level value.
	mirror := &domain.Trade{
		Symbol:      pos.Symbol,
		Side:        domain.TradeSideSell,
		Quantity:    qty,
		Price:       price,
		TotalValue:  mulQty(price, qty),
		Status:      domain.TradeStatusOpen,
		StrategyTag: req.Reason,
		PositionID:  pos.ID,
		RealizedPnL: pnl,
		ExecutedAt:  now,
	}
	if tag := s.strategyTag(ctx, pos.StrategyID); tag != "" {
		mirror.StrategyTag = tag
	}

	uow, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("close position %d: begin: %w", pos.ID, err)
	}
	if err := uow.ExitEvents().Insert(ctx, event); err != nil {
		_ = uow.Rollback()
		return nil, fmt.Errorf("close position %d: exit event: %w", pos.ID, err)
	}
	if err := uow.Positions().Update(ctx, pos); err != nil {
		_ = uow.Rollback()
		return nil, fmt.Errorf("close position %d: %w", pos.ID, err)
	}
	if err := uow.Trades().Create(ctx, mirror); err != nil {
		_ = uow.Rollback()
		return nil, fmt.Errorf("close position %d: mirror trade: %w", pos.ID, err)
	}
	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("close position %d: commit: %w", pos.ID, err)
	}

	s.ledger.Invalidate()
	if _, err := s.ledger.Reconcile(ctx); err != nil {
		return nil, err
	}
	logger.Infof("position %d %s: %s x%d @ %.4f, pnl=%.2f (%s)",
		pos.ID, pos.Status, pos.Symbol, qty, price, pnl, event.ExitType)
	return event, nil
}

// CheckExitConditions scans every open position against the current price,
// closing those whose exit condition fires and refreshing unrealized P&L and
// the trailing-stop ratchet for the rest. Prices that cannot be fetched fall
// back to the entry price for the cycle. Idempotent: positions closed in one
// cycle are terminal in the next.
func (s *Service) CheckExitConditions(ctx context.Context) ([]domain.PositionExitEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	positions, err := s.store.Positions().ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("exit check: listing positions: %w", err)
	}
	now := s.now()
	var events []domain.PositionExitEvent
	for i := range positions {
		pos := &positions[i]
		price := pos.EntryPrice
		quote, qerr := s.market.GetPrice(ctx, pos.Symbol)
		if qerr != nil || quote.Price <= 0 {
			logger.Warnf("exit check: price for %s unavailable, treating position %d as flat: %v",
				pos.Symbol, pos.ID, qerr)
		} else {
			price = quote.Price
		}

		if trig := exit.Evaluate(pos, price, now); trig != nil {
			event, cerr := s.closeLocked(ctx, CloseRequest{
				PositionID: pos.ID,
				ExitType:   trig.Type,
				Reason:     trig.Reason,
				Price:      price,
			})
			if cerr != nil {
				logger.Errorf("exit check: closing position %d: %v", pos.ID, cerr)
				continue
			}
			events = append(events, *event)
			continue
		}

		// No trigger: refresh the mark and ratchet the trailing stop.
		pos.UnrealizedPnL = realizedPnL(pos.EntryPrice, price, pos.RemainingQuantity)
		moved := exit.Ratchet(pos, price)
		if err := s.store.Positions().Update(ctx, pos); err != nil {
			logger.Errorf("exit check: refreshing position %d: %v", pos.ID, err)
			continue
		}
		if moved {
			logger.Debugf("position %d trailing stop raised to %.4f", pos.ID, pos.TrailingStopPrice)
		}
	}
	return events, nil
}

// Get returns a position with its exit events.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Position, []domain.PositionExitEvent, error) {
	pos, err := s.store.Positions().FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	events, err := s.store.ExitEvents().ListByPosition(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return pos, events, nil
}

// ListActive returns all positions still carrying exposure.
func (s *Service) ListActive(ctx context.Context) ([]domain.Position, error) {
	return s.store.Positions().ListActive(ctx)
}

func (s *Service) strategyTag(ctx context.Context, strategyID int64) string {
	strategy, err := s.store.Strategies().FindByID(ctx, strategyID)
	if err != nil {
		return ""
	}
	return strategy.Name
}

func realizedPnL(entry, price float64, qty int64) float64 {
	v, _ := decimal.NewFromFloat(price).
		Sub(decimal.NewFromFloat(entry)).
		Mul(decimal.NewFromInt(qty)).
		Float64()
	return v
}

func addMoney(a, b float64) float64 {
	v, _ := decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).Float64()
	return v
}

func mulQty(price float64, qty int64) float64 {
	v, _ := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(qty)).Float64()
	return v
}
