package model

import (
	"time"

	"gorm.io/datatypes"
)

type TradeModel struct {
	ID          int64          `gorm:"column:id;primaryKey"`
	Symbol      string         `gorm:"column:symbol;index"`
	Side        string         `gorm:"column:side"`
	Quantity    int64          `gorm:"column:quantity"`
	Price       float64        `gorm:"column:price"`
	TotalValue  float64        `gorm:"column:total_value"`
	Status      int            `gorm:"column:status;index"`
	StrategyTag string         `gorm:"column:strategy_tag;index"`
	PositionID  int64          `gorm:"column:position_id;index"`
	RealizedPnL float64        `gorm:"column:realized_pnl"`
	ClosePrice  float64        `gorm:"column:close_price"`
	ClosedAt    *time.Time     `gorm:"column:closed_at"`
	ExecutedAt  time.Time      `gorm:"column:executed_at;index"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at"`
}

func (TradeModel) TableName() string { return "trades" }

type PositionModel struct {
	ID                int64          `gorm:"column:id;primaryKey"`
	StrategyID        int64          `gorm:"column:strategy_id;index"`
	Symbol            string         `gorm:"column:symbol;index"`
	EntryPrice        float64        `gorm:"column:entry_price"`
	Quantity          int64          `gorm:"column:quantity"`
	RemainingQuantity int64          `gorm:"column:remaining_quantity"`
	PositionSize      float64        `gorm:"column:position_size"`
	Status            int            `gorm:"column:status;index"`
	StopLossPrice     float64        `gorm:"column:stop_loss_price"`
	TakeProfitPrice   float64        `gorm:"column:take_profit_price"`
	MaxHoldSeconds    int64          `gorm:"column:max_hold_seconds"`
	TrailingStopPct   float64        `gorm:"column:trailing_stop_pct"`
	TrailingStopPrice float64        `gorm:"column:trailing_stop_price"`
	RealizedPnL       float64        `gorm:"column:realized_pnl"`
	UnrealizedPnL     float64        `gorm:"column:unrealized_pnl"`
	EntrySignal       datatypes.JSON `gorm:"column:entry_signal;type:TEXT"`
	OpenedAt          time.Time      `gorm:"column:opened_at;index"`
	ClosedAt          *time.Time     `gorm:"column:closed_at;index"`
	UpdatedAt         time.Time      `gorm:"column:updated_at"`
}

func (PositionModel) TableName() string { return "positions" }

type PositionExitEventModel struct {
	ID             string    `gorm:"column:id;primaryKey"`
	PositionID     int64     `gorm:"column:position_id;index"`
	ExitType       int       `gorm:"column:exit_type"`
	TriggerPrice   float64   `gorm:"column:trigger_price"`
	ExitPrice      float64   `gorm:"column:exit_price"`
	QuantityClosed int64     `gorm:"column:quantity_closed"`
	RealizedPnL    float64   `gorm:"column:realized_pnl"`
	Reason         string    `gorm:"column:reason"`
	CreatedAt      time.Time `gorm:"column:created_at;index"`
}

func (PositionExitEventModel) TableName() string { return "position_exit_events" }

type StrategyModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	Name          string         `gorm:"column:name;uniqueIndex"`
	Type          string         `gorm:"column:type"`
	ParamsJSON    datatypes.JSON `gorm:"column:params_json;type:TEXT"`
	AllocationPct float64        `gorm:"column:allocation_pct"`
	MaxPositions  int            `gorm:"column:max_positions"`
	Active        bool           `gorm:"column:active;index"`
	CreatedAt     time.Time      `gorm:"column:created_at"`
	UpdatedAt     time.Time      `gorm:"column:updated_at"`
}

func (StrategyModel) TableName() string { return "strategies" }

type StrategyPerformanceModel struct {
	ID               int64     `gorm:"column:id;primaryKey"`
	StrategyID       int64     `gorm:"column:strategy_id;uniqueIndex:idx_strategy_period,priority:1"`
	Period           time.Time `gorm:"column:period;uniqueIndex:idx_strategy_period,priority:2"`
	OpenPositions    int       `gorm:"column:open_positions"`
	ClosedPositions  int       `gorm:"column:closed_positions"`
	ExpiredPositions int       `gorm:"column:expired_positions"`
	RealizedPnL      float64   `gorm:"column:realized_pnl"`
	UnrealizedPnL    float64   `gorm:"column:unrealized_pnl"`
	TotalPnL         float64   `gorm:"column:total_pnl"`
	WinRate          float64   `gorm:"column:win_rate"`
	ProfitFactor     float64   `gorm:"column:profit_factor"`
	AllocatedCapital float64   `gorm:"column:allocated_capital"`
	UtilizedCapital  float64   `gorm:"column:utilized_capital"`
	AvailableCapital float64   `gorm:"column:available_capital"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

func (StrategyPerformanceModel) TableName() string { return "strategy_performance" }
