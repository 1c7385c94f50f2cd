package domain

import "time"

type PositionStatus int

const (
	PositionStatusUnknown         PositionStatus = 0
	PositionStatusOpen            PositionStatus = 1
	PositionStatusPartiallyClosed PositionStatus = 2
	PositionStatusClosed          PositionStatus = 3
	PositionStatusExpired         PositionStatus = 4
)

func (s PositionStatus) String() string {
	switch s {
	case PositionStatusOpen:
		return "OPEN"
	case PositionStatusPartiallyClosed:
		return "PARTIALLY_CLOSED"
	case PositionStatusClosed:
		return "CLOSED"
	case PositionStatusExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Active reports whether the position still carries exposure.
func (s PositionStatus) Active() bool {
	return s == PositionStatusOpen || s == PositionStatusPartiallyClosed
}

// ExitType identifies which exit condition closed (part of) a position.
// The declaration order is the evaluation priority: a position can only
// trigger the first matching condition in a cycle.
type ExitType int

const (
	ExitTypeStopLoss     ExitType = 1
	ExitTypeTakeProfit   ExitType = 2
	ExitTypeTimeBased    ExitType = 3
	ExitTypeTrailingStop ExitType = 4
	ExitTypeManual       ExitType = 5
)

func (t ExitType) String() string {
	switch t {
	case ExitTypeStopLoss:
		return "STOP_LOSS"
	case ExitTypeTakeProfit:
		return "TAKE_PROFIT"
	case ExitTypeTimeBased:
		return "TIME_BASED"
	case ExitTypeTrailingStop:
		return "TRAILING_STOP"
	case ExitTypeManual:
		return "MANUAL"
	default:
		return "UNKNOWN"
	}
}

// SignalSnapshot records the signal that caused a position to be opened.
// It is never consulted again during exit evaluation.
type SignalSnapshot struct {
	Symbol           string         `json:"symbol"`
	Action           string         `json:"action"`
	Confidence       float64        `json:"confidence"`
	Score            float64        `json:"score"`
	Reasoning        string         `json:"reasoning,omitempty"`
	MarketConditions map[string]any `json:"market_conditions,omitempty"`
}

// Position is a strategy-scoped exposure opened by one BUY entry and reduced
// by zero or more full/partial closes.
//
// Invariants: 0 <= RemainingQuantity <= Quantity, and the quantities of all
// exit events for the position plus RemainingQuantity equal Quantity.
type Position struct {
	ID         int64
	StrategyID int64
	Symbol     string

	EntryPrice        float64
	Quantity          int64 // original quantity
	RemainingQuantity int64
	PositionSize      float64 // original notional (EntryPrice * Quantity)
	Status            PositionStatus

	StopLossPrice     float64 // 0 disables the check
	TakeProfitPrice   float64 // 0 disables the check
	MaxHold           time.Duration
	TrailingStopPct   float64
	TrailingStopPrice float64 // ratcheted upward per cycle, never lowered

	RealizedPnL   float64 // authoritative; set/incremented on close events only
	UnrealizedPnL float64 // valid only while the position is active

	EntrySignal *SignalSnapshot

	OpenedAt  time.Time
	ClosedAt  *time.Time
	UpdatedAt time.Time
}

// ClosedQuantity returns the cumulative quantity removed by exit events.
func (p *Position) ClosedQuantity() int64 {
	return p.Quantity - p.RemainingQuantity
}

// HeldFor returns the elapsed hold time at the given instant.
func (p *Position) HeldFor(now time.Time) time.Duration {
	return now.Sub(p.OpenedAt)
}

// PositionExitEvent is the append-only record of one full or partial close.
type PositionExitEvent struct {
	ID             string
	PositionID     int64
	ExitType       ExitType
	TriggerPrice   float64
	ExitPrice      float64
	QuantityClosed int64
	RealizedPnL    float64
	Reason         string
	CreatedAt      time.Time
}
