package domain

import (
	"fmt"
	"time"
)

// TradeSide is the direction of an executed trade.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

func (s TradeSide) Valid() bool {
	switch s {
	case TradeSideBuy, TradeSideSell:
		return true
	default:
		return false
	}
}

type TradeStatus int

const (
	TradeStatusUnknown   TradeStatus = 0
	TradeStatusOpen      TradeStatus = 1
	TradeStatusClosed    TradeStatus = 2
	TradeStatusCancelled TradeStatus = 3
)

func (s TradeStatus) String() string {
	switch s {
	case TradeStatusOpen:
		return "OPEN"
	case TradeStatusClosed:
		return "CLOSED"
	case TradeStatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Trade is a single buy or sell execution. Once Status becomes CLOSED the
// entry-side fields (Price, Quantity, TotalValue) are frozen; only the
// close-side fields may still be written.
type Trade struct {
	ID          int64
	Symbol      string
	Side        TradeSide
	Quantity    int64
	Price       float64
	TotalValue  float64
	Status      TradeStatus
	StrategyTag string
	PositionID  int64 // 0 when the trade is not linked to a position

	RealizedPnL float64
	ClosePrice  float64
	ClosedAt    *time.Time

	ExecutedAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Terminal reports whether no further state transitions are allowed.
func (t *Trade) Terminal() bool {
	return t.Status == TradeStatusClosed || t.Status == TradeStatusCancelled
}

// IntegrityWarning flags a malformed historical trade encountered during
// balance reconciliation. It is surfaced, never raised as an error.
type IntegrityWarning struct {
	TradeID int64
	Field   string
	Detail  string
}

func (w IntegrityWarning) String() string {
	return fmt.Sprintf("trade %d: %s: %s", w.TradeID, w.Field, w.Detail)
}
