// Package exit decides whether an open position must be closed and why.
// Conditions are checked in a fixed priority order; the first match wins and
// a position never triggers two exit types in the same cycle.
package exit

import (
	"fmt"
	"time"

	"papertrade/internal/domain"
)

// Trigger describes a matched exit condition.
type Trigger struct {
	Type         domain.ExitType
	TriggerPrice float64 // the threshold that fired
	Reason       string
}

// Thresholds are the exit parameters derived from strategy configuration at
// position open time. Zero values disable the corresponding check.
type Thresholds struct {
	StopLoss    float64
	TakeProfit  float64
	MaxHold     time.Duration
	TrailingPct float64
}

// ThresholdsFor derives exit thresholds from an entry price and strategy
// parameters.
func ThresholdsFor(entry float64, params domain.StrategyParams) Thresholds {
	return Thresholds{
		StopLoss:    stopLossFor(entry, params.StopLossPct),
		TakeProfit:  takeProfitFor(entry, params.TakeProfitPct),
		MaxHold:     time.Duration(params.MaxHoldHours * float64(time.Hour)),
		TrailingPct: params.TrailingStopPct,
	}
}

// Evaluate checks the position against the current price, in priority order:
// stop-loss, take-profit, time-based, trailing-stop. Returns nil when no
// condition fires.
func Evaluate(p *domain.Position, price float64, now time.Time) *Trigger {
	if !p.Status.Active() || price <= 0 {
		return nil
	}
	if p.StopLossPrice > 0 && decimalLTE(price, p.StopLossPrice) {
		return &Trigger{
			Type:         domain.ExitTypeStopLoss,
			TriggerPrice: p.StopLossPrice,
			Reason:       fmt.Sprintf("price %.4f at or below stop loss %.4f", price, p.StopLossPrice),
		}
	}
	if p.TakeProfitPrice > 0 && decimalGTE(price, p.TakeProfitPrice) {
		return &Trigger{
			Type:         domain.ExitTypeTakeProfit,
			TriggerPrice: p.TakeProfitPrice,
			Reason:       fmt.Sprintf("price %.4f at or above take profit %.4f", price, p.TakeProfitPrice),
		}
	}
	if p.MaxHold > 0 && p.HeldFor(now) >= p.MaxHold {
		return &Trigger{
			Type:         domain.ExitTypeTimeBased,
			TriggerPrice: price,
			Reason:       fmt.Sprintf("held %s, max hold %s", p.HeldFor(now).Truncate(time.Second), p.MaxHold),
		}
	}
	if p.TrailingStopPct > 0 && p.TrailingStopPrice > 0 && decimalLTE(price, p.TrailingStopPrice) {
		return &Trigger{
			Type:         domain.ExitTypeTrailingStop,
			TriggerPrice: p.TrailingStopPrice,
			Reason:       fmt.Sprintf("price %.4f at or below trailing stop %.4f", price, p.TrailingStopPrice),
		}
	}
	return nil
}

// Ratchet raises the position's trailing stop to price*(1-trailing_pct) when
// that is higher than the stored stop. The stop is never lowered. Returns
// true when the stop moved.
func Ratchet(p *domain.Position, price float64) bool {
	if p.TrailingStopPct <= 0 || price <= 0 {
		return false
	}
	candidate := trailingStopFor(price, p.TrailingStopPct)
	if !shouldRaiseStop(candidate, p.TrailingStopPrice) {
		return false
	}
	p.TrailingStopPrice = candidate
	return true
}
