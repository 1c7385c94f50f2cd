package domain

import "time"

// StrategyType is the closed set of trading policies the engine understands.
type StrategyType string

const (
	StrategyTypeSentiment     StrategyType = "sentiment"
	StrategyTypeMomentum      StrategyType = "momentum"
	StrategyTypeMeanReversion StrategyType = "mean_reversion"
)

func (t StrategyType) Valid() bool {
	switch t {
	case StrategyTypeSentiment, StrategyTypeMomentum, StrategyTypeMeanReversion:
		return true
	default:
		return false
	}
}

// StrategyParams are the validated, typed exit and sizing parameters of a
// strategy. Defaults are applied at construction; zero values disable the
// corresponding exit check.
type StrategyParams struct {
	StopLossPct     float64 `json:"stop_loss_pct" mapstructure:"stop_loss_pct"`
	TakeProfitPct   float64 `json:"take_profit_pct" mapstructure:"take_profit_pct"`
	MaxHoldHours    float64 `json:"max_hold_hours" mapstructure:"max_hold_hours"`
	TrailingStopPct float64 `json:"trailing_stop_pct" mapstructure:"trailing_stop_pct"`
	PositionSizePct float64 `json:"position_size_pct" mapstructure:"position_size_pct"`
	MinConfidence   float64 `json:"min_confidence" mapstructure:"min_confidence"`
}

// Strategy is a named trading policy. Strategies are never deleted, only
// deactivated.
type Strategy struct {
	ID            int64
	Name          string
	Type          StrategyType
	Params        StrategyParams
	AllocationPct float64 // share of total portfolio value, 0..1
	MaxPositions  int
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StrategyPerformance is the periodic per-strategy snapshot of aggregated
// metrics. It is upserted once per period and never recomputed for past
// periods.
type StrategyPerformance struct {
	ID         int64
	StrategyID int64
	Period     time.Time // truncated to the snapshot period (daily)

	OpenPositions   int
	ClosedPositions int
	ExpiredPositions int

	RealizedPnL   float64
	UnrealizedPnL float64
	TotalPnL      float64
	WinRate       float64
	ProfitFactor  float64

	AllocatedCapital float64
	UtilizedCapital  float64
	AvailableCapital float64

	CreatedAt time.Time
	UpdatedAt time.Time
}
