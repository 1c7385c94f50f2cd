// Package ledger reconstructs the cash balance from the full trade history.
// The trade log is the source of truth; the cached balance is a disposable
// projection invalidated on every mutation.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"papertrade/internal/domain"
	"papertrade/internal/logger"
	"papertrade/internal/store"

	"github.com/shopspring/decimal"
)

// QuoteFn resolves the current price for a symbol. A failing quote never
// aborts a close; callers fall back to the entry price.
type QuoteFn func(ctx context.Context, symbol string) (float64, error)

// Reconciliation is the result of a full balance recomputation.
type Reconciliation struct {
	Balance      float64
	TradeCount   int
	Warnings     []domain.IntegrityWarning
	ReconciledAt time.Time
}

// Service owns the canonical cash-balance derivation and the manual trade
// operations. All mutations re-reconcile from the full log afterwards.
type Service struct {
	store   store.Store
	quote   QuoteFn
	initial float64

	mu sync.Mutex // serializes mutations (single-writer guard)

	cacheMu    sync.Mutex
	cacheTTL   time.Duration
	cached     Reconciliation
	cachedAt   time.Time
	cacheValid bool
}

func New(st store.Store, initialBalance float64, cacheTTL time.Duration, quote QuoteFn) *Service {
	return &Service{
		store:    st,
		quote:    quote,
		initial:  initialBalance,
		cacheTTL: cacheTTL,
	}
}

// InitialBalance returns the configured starting cash.
func (s *Service) InitialBalance() float64 { return s.initial }

// ReconcileTrades recomputes balance from an ordered trade history.
//
// Per-trade contribution: CANCELLED and malformed trades contribute nothing
// (malformed ones are surfaced as integrity warnings); BUY entries debit
// total_value and SELL entries credit it; a CLOSED trade additionally books
// its close leg, which reverses the open-leg principal and adds realized
// P&L, so a closed round trip nets out to exactly its P&L.
func ReconcileTrades(initial float64, trades []domain.Trade) Reconciliation {
	balance := decimal.NewFromFloat(initial)
	rec := Reconciliation{ReconciledAt: time.Now()}
	for i := range trades {
		t := &trades[i]
		if t.Status == domain.TradeStatusCancelled {
			continue
		}
		if warn, ok := validateHistorical(t); !ok {
			rec.Warnings = append(rec.Warnings, warn)
			continue
		}
		rec.TradeCount++
		total := decimal.NewFromFloat(t.TotalValue)
		switch t.Side {
		case domain.TradeSideBuy:
			balance = balance.Sub(total)
		case domain.TradeSideSell:
			balance = balance.Add(total)
		}
		if t.Status == domain.TradeStatusClosed {
			pnl := decimal.NewFromFloat(t.RealizedPnL)
			switch t.Side {
			case domain.TradeSideBuy:
				balance = balance.Add(total).Add(pnl)
			case domain.TradeSideSell:
				balance = balance.Sub(total).Add(pnl)
			}
		}
	}
	rec.Balance, _ = balance.Float64()
	return rec
}

func validateHistorical(t *domain.Trade) (domain.IntegrityWarning, bool) {
	switch {
	case !t.Side.Valid():
		return domain.IntegrityWarning{TradeID: t.ID, Field: "side", Detail: fmt.Sprintf("unknown side %q", t.Side)}, false
	case t.Quantity <= 0:
		return domain.IntegrityWarning{TradeID: t.ID, Field: "quantity", Detail: "non-positive quantity"}, false
	case t.TotalValue <= 0:
		return domain.IntegrityWarning{TradeID: t.ID, Field: "total_value", Detail: "missing or non-positive total value"}, false
	}
	return domain.IntegrityWarning{}, true
}

// Reconcile recomputes the balance from the persisted trade log and refreshes
// the cached projection.
func (s *Service) Reconcile(ctx context.Context) (Reconciliation, error) {
	trades, err := s.store.Trades().ListAll(ctx)
	if err != nil {
		return Reconciliation{}, fmt.Errorf("ledger: loading trade history: %w", err)
	}
	rec := ReconcileTrades(s.initial, trades)
	for _, w := range rec.Warnings {
		logger.Warnf("ledger: data integrity: %s", w)
	}
	s.cacheMu.Lock()
	s.cached = rec
	s.cachedAt = time.Now()
	s.cacheValid = true
	s.cacheMu.Unlock()
	return rec, nil
}

// Balance returns the reconciled cash balance, serving the short-TTL cache
// when fresh.
func (s *Service) Balance(ctx context.Context) (float64, error) {
	s.cacheMu.Lock()
	if s.cacheValid && time.Since(s.cachedAt) < s.cacheTTL {
		bal := s.cached.Balance
		s.cacheMu.Unlock()
		return bal, nil
	}
	s.cacheMu.Unlock()
	rec, err := s.Reconcile(ctx)
	if err != nil {
		return 0, err
	}
	return rec.Balance, nil
}

// Invalidate drops the cached balance. Every mutating code path calls this
// before re-reconciling.
func (s *Service) Invalidate() {
	s.cacheMu.Lock()
	s.cacheValid = false
	s.cacheMu.Unlock()
}

// ListTrades returns the full trade log in execution order.
func (s *Service) ListTrades(ctx context.Context) ([]domain.Trade, error) {
	return s.store.Trades().ListAll(ctx)
}

// CreateTradeRequest carries the manual trade inputs.
type CreateTradeRequest struct {
	Symbol      string
	Side        domain.TradeSide
	Quantity    int64
	Price       float64
	StrategyTag string
}

// CreateTrade validates and appends a manual trade. BUY orders larger than
// the reconciled balance fail with ErrInsufficientBalance; SELL orders larger
// than the open position quantity for the symbol fail with
// ErrInsufficientShares. Validation happens before any write.
func (s *Service) CreateTrade(ctx context.Context, req CreateTradeRequest) (*domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol required", domain.ErrInvalidTrade)
	}
	if !req.Side.Valid() {
		return nil, fmt.Errorf("%w: side must be BUY or SELL, got %q", domain.ErrInvalidTrade, req.Side)
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive, got %d", domain.ErrInvalidTrade, req.Quantity)
	}
	if req.Price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive, got %v", domain.ErrInvalidTrade, req.Price)
	}

	total := mulQty(req.Price, req.Quantity)

	switch req.Side {
	case domain.TradeSideBuy:
		balance, err := s.Balance(ctx)
		if err != nil {
			return nil, err
		}
		if total > balance {
			return nil, fmt.Errorf("%w: BUY %s needs %.2f, balance %.2f",
				domain.ErrInsufficientBalance, symbol, total, balance)
		}
	case domain.TradeSideSell:
		held, err := s.openQuantity(ctx, symbol)
		if err != nil {
			return nil, err
		}
		if req.Quantity > held {
			return nil, fmt.Errorf("%w: SELL %s wants %d, holding %d",
				domain.ErrInsufficientShares, symbol, req.Quantity, held)
		}
	}

	now := time.Now()
	trade := &domain.Trade{
		Symbol:      symbol,
		Side:        req.Side,
		Quantity:    req.Quantity,
		Price:       req.Price,
		TotalValue:  total,
		Status:      domain.TradeStatusOpen,
		StrategyTag: req.StrategyTag,
		ExecutedAt:  now,
	}
	if err := s.store.Trades().Create(ctx, trade); err != nil {
		return nil, fmt.Errorf("ledger: creating trade: %w", err)
	}
	s.Invalidate()
	if _, err := s.Reconcile(ctx); err != nil {
		return nil, err
	}
	return trade, nil
}

// CloseTrade closes an open manual trade at closePrice. When closePrice is
// nil the current market quote is used, degrading to the entry price (flat
// P&L) if the quote is unavailable.
func (s *Service) CloseTrade(ctx context.Context, id int64, closePrice *float64) (*domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trade, err := s.store.Trades().FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("close trade %d: %w", id, err)
	}
	if trade.Terminal() {
		return nil, fmt.Errorf("%w: trade %d already %s", domain.ErrInvalidState, id, trade.Status)
	}

	price := trade.Price
	switch {
	case closePrice != nil:
		if *closePrice <= 0 {
			return nil, fmt.Errorf("%w: close price must be positive, got %v", domain.ErrInvalidTrade, *closePrice)
		}
		price = *closePrice
	case s.quote != nil:
		quoted, qerr := s.quote(ctx, trade.Symbol)
		if qerr != nil || quoted <= 0 {
			logger.Warnf("ledger: quote for %s unavailable, closing trade %d flat: %v", trade.Symbol, id, qerr)
		} else {
			price = quoted
		}
	}

	pnl := tradePnL(trade.Side, trade.Price, price, trade.Quantity)
	now := time.Now()
	trade.Status = domain.TradeStatusClosed
	trade.ClosePrice = price
	trade.RealizedPnL = pnl
	trade.ClosedAt = &now
	if err := s.store.Trades().Update(ctx, trade); err != nil {
		return nil, fmt.Errorf("ledger: closing trade %d: %w", id, err)
	}
	s.Invalidate()
	if _, err := s.Reconcile(ctx); err != nil {
		return nil, err
	}
	return trade, nil
}

// CancelTrade voids an open trade. Cancelled trades contribute nothing to the
// reconciled balance.
func (s *Service) CancelTrade(ctx context.Context, id int64) (*domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trade, err := s.store.Trades().FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("cancel trade %d: %w", id, err)
	}
	if trade.Terminal() {
		return nil, fmt.Errorf("%w: trade %d already %s", domain.ErrInvalidState, id, trade.Status)
	}
	trade.Status = domain.TradeStatusCancelled
	if err := s.store.Trades().Update(ctx, trade); err != nil {
		return nil, fmt.Errorf("ledger: cancelling trade %d: %w", id, err)
	}
	s.Invalidate()
	if _, err := s.Reconcile(ctx); err != nil {
		return nil, err
	}
	return trade, nil
}

// openQuantity sums the remaining quantity of active positions for a symbol.
func (s *Service) openQuantity(ctx context.Context, symbol string) (int64, error) {
	positions, err := s.store.Positions().ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("ledger: listing positions: %w", err)
	}
	var held int64
	for i := range positions {
		if strings.EqualFold(positions[i].Symbol, symbol) {
			held += positions[i].RemainingQuantity
		}
	}
	return held, nil
}

// tradePnL computes realized P&L for a round trip: (close - entry) * qty for
// BUY-opened trades, sign inverted for SELL-opened ones.
func tradePnL(side domain.TradeSide, entry, close float64, qty int64) float64 {
	diff := decimal.NewFromFloat(close).Sub(decimal.NewFromFloat(entry))
	if side == domain.TradeSideSell {
		diff = diff.Neg()
	}
	pnl, _ := diff.Mul(decimal.NewFromInt(qty)).Float64()
	return pnl
}

// mulQty multiplies price by quantity without float drift.
func mulQty(price float64, qty int64) float64 {
	v, _ := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(qty)).Float64()
	return v
}
