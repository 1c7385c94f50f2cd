package gormstore

import (
	"encoding/json"
	"time"

	"papertrade/internal/domain"
	storemodel "papertrade/internal/store/model"

	"gorm.io/datatypes"
)

func newTradeModel(t *domain.Trade) storemodel.TradeModel {
	return storemodel.TradeModel{
		ID:          t.ID,
		Symbol:      t.Symbol,
		Side:        string(t.Side),
		Quantity:    t.Quantity,
		Price:       t.Price,
		TotalValue:  t.TotalValue,
		Status:      int(t.Status),
		StrategyTag: t.StrategyTag,
		PositionID:  t.PositionID,
		RealizedPnL: t.RealizedPnL,
		ClosePrice:  t.ClosePrice,
		ClosedAt:    t.ClosedAt,
		ExecutedAt:  t.ExecutedAt,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func tradeModelToDomain(m storemodel.TradeModel) domain.Trade {
	return domain.Trade{
		ID:          m.ID,
		Symbol:      m.Symbol,
		Side:        domain.TradeSide(m.Side),
		Quantity:    m.Quantity,
		Price:       m.Price,
		TotalValue:  m.TotalValue,
		Status:      domain.TradeStatus(m.Status),
		StrategyTag: m.StrategyTag,
		PositionID:  m.PositionID,
		RealizedPnL: m.RealizedPnL,
		ClosePrice:  m.ClosePrice,
		ClosedAt:    m.ClosedAt,
		ExecutedAt:  m.ExecutedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func newPositionModel(p *domain.Position) storemodel.PositionModel {
	var signalJSON datatypes.JSON
	if p.EntrySignal != nil {
		if raw, err := json.Marshal(p.EntrySignal); err == nil {
			signalJSON = datatypes.JSON(raw)
		}
	}
	return storemodel.PositionModel{
		ID:                p.ID,
		StrategyID:        p.StrategyID,
		Symbol:            p.Symbol,
		EntryPrice:        p.EntryPrice,
		Quantity:          p.Quantity,
		RemainingQuantity: p.RemainingQuantity,
		PositionSize:      p.PositionSize,
		Status:            int(p.Status),
		StopLossPrice:     p.StopLossPrice,
		TakeProfitPrice:   p.TakeProfitPrice,
		MaxHoldSeconds:    int64(p.MaxHold / time.Second),
		TrailingStopPct:   p.TrailingStopPct,
		TrailingStopPrice: p.TrailingStopPrice,
		RealizedPnL:       p.RealizedPnL,
		UnrealizedPnL:     p.UnrealizedPnL,
		EntrySignal:       signalJSON,
		OpenedAt:          p.OpenedAt,
		ClosedAt:          p.ClosedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func positionModelToDomain(m storemodel.PositionModel) domain.Position {
	var signal *domain.SignalSnapshot
	if len(m.EntrySignal) > 0 {
		var snap domain.SignalSnapshot
		if err := json.Unmarshal(m.EntrySignal, &snap); err == nil {
			signal = &snap
		}
	}
	return domain.Position{
		ID:                m.ID,
		StrategyID:        m.StrategyID,
		Symbol:            m.Symbol,
		EntryPrice:        m.EntryPrice,
		Quantity:          m.Quantity,
		RemainingQuantity: m.RemainingQuantity,
		PositionSize:      m.PositionSize,
		Status:            domain.PositionStatus(m.Status),
		StopLossPrice:     m.StopLossPrice,
		TakeProfitPrice:   m.TakeProfitPrice,
		MaxHold:           time.Duration(m.MaxHoldSeconds) * time.Second,
		TrailingStopPct:   m.TrailingStopPct,
		TrailingStopPrice: m.TrailingStopPrice,
		RealizedPnL:       m.RealizedPnL,
		UnrealizedPnL:     m.UnrealizedPnL,
		EntrySignal:       signal,
		OpenedAt:          m.OpenedAt,
		ClosedAt:          m.ClosedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func newExitEventModel(e *domain.PositionExitEvent) storemodel.PositionExitEventModel {
	return storemodel.PositionExitEventModel{
		ID:             e.ID,
		PositionID:     e.PositionID,
		ExitType:       int(e.ExitType),
		TriggerPrice:   e.TriggerPrice,
		ExitPrice:      e.ExitPrice,
		QuantityClosed: e.QuantityClosed,
		RealizedPnL:    e.RealizedPnL,
		Reason:         e.Reason,
		CreatedAt:      e.CreatedAt,
	}
}

func exitEventModelToDomain(m storemodel.PositionExitEventModel) domain.PositionExitEvent {
	return domain.PositionExitEvent{
		ID:             m.ID,
		PositionID:     m.PositionID,
		ExitType:       domain.ExitType(m.ExitType),
		TriggerPrice:   m.TriggerPrice,
		ExitPrice:      m.ExitPrice,
		QuantityClosed: m.QuantityClosed,
		RealizedPnL:    m.RealizedPnL,
		Reason:         m.Reason,
		CreatedAt:      m.CreatedAt,
	}
}

func newStrategyModel(s *domain.Strategy) storemodel.StrategyModel {
	var paramsJSON datatypes.JSON
	if raw, err := json.Marshal(s.Params); err == nil {
		paramsJSON = datatypes.JSON(raw)
	}
	return storemodel.StrategyModel{
		ID:            s.ID,
		Name:          s.Name,
		Type:          string(s.Type),
		ParamsJSON:    paramsJSON,
		AllocationPct: s.AllocationPct,
		MaxPositions:  s.MaxPositions,
		Active:        s.Active,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func strategyModelToDomain(m storemodel.StrategyModel) domain.Strategy {
	var params domain.StrategyParams
	if len(m.ParamsJSON) > 0 {
		_ = json.Unmarshal(m.ParamsJSON, &params)
	}
	return domain.Strategy{
		ID:            m.ID,
		Name:          m.Name,
		Type:          domain.StrategyType(m.Type),
		Params:        params,
		AllocationPct: m.AllocationPct,
		MaxPositions:  m.MaxPositions,
		Active:        m.Active,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func newPerformanceModel(s *domain.StrategyPerformance) storemodel.StrategyPerformanceModel {
	return storemodel.StrategyPerformanceModel{
		ID:               s.ID,
		StrategyID:       s.StrategyID,
		Period:           s.Period,
		OpenPositions:    s.OpenPositions,
		ClosedPositions:  s.ClosedPositions,
		ExpiredPositions: s.ExpiredPositions,
		RealizedPnL:      s.RealizedPnL,
		UnrealizedPnL:    s.UnrealizedPnL,
		TotalPnL:         s.TotalPnL,
		WinRate:          s.WinRate,
		ProfitFactor:     s.ProfitFactor,
		AllocatedCapital: s.AllocatedCapital,
		UtilizedCapital:  s.UtilizedCapital,
		AvailableCapital: s.AvailableCapital,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

func performanceModelToDomain(m storemodel.StrategyPerformanceModel) domain.StrategyPerformance {
	return domain.StrategyPerformance{
		ID:               m.ID,
		StrategyID:       m.StrategyID,
		Period:           m.Period,
		OpenPositions:    m.OpenPositions,
		ClosedPositions:  m.ClosedPositions,
		ExpiredPositions: m.ExpiredPositions,
		RealizedPnL:      m.RealizedPnL,
		UnrealizedPnL:    m.UnrealizedPnL,
		TotalPnL:         m.TotalPnL,
		WinRate:          m.WinRate,
		ProfitFactor:     m.ProfitFactor,
		AllocatedCapital: m.AllocatedCapital,
		UtilizedCapital:  m.UtilizedCapital,
		AvailableCapital: m.AvailableCapital,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}
