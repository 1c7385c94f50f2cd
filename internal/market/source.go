// Package market supplies current prices to the engine. A failing or stale
// source must never crash exit evaluation; callers degrade to the entry
// price when no quote is available.
package market

import (
	"context"
	"time"
)

// Quote is a point-in-time price observation.
type Quote struct {
	Symbol string
	Price  float64
	At     time.Time
	Stale  bool
}

// Source provides current prices for symbols.
type Source interface {
	GetPrice(ctx context.Context, symbol string) (Quote, error)
}
