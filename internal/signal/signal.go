// Package signal parses inbound sentiment signal payloads.
package signal

import (
	"fmt"
	"strings"
	"time"

	"papertrade/internal/domain"

	"github.com/tidwall/gjson"
)

// Signal is a parsed sentiment signal ready for execution.
type Signal struct {
	Strategy   string
	Symbol     string
	Action     string // "buy" or "close"
	Quantity   int64
	Price      float64 // optional, 0 = resolve from market
	Confidence float64
	Score      float64
	Reasoning  string
	Conditions map[string]any
	ReceivedAt time.Time
}

// Snapshot converts the signal to the form persisted on the position.
func (s *Signal) Snapshot() *domain.SignalSnapshot {
	return &domain.SignalSnapshot{
		Symbol:           s.Symbol,
		Action:           s.Action,
		Confidence:       s.Confidence,
		Score:            s.Score,
		Reasoning:        s.Reasoning,
		MarketConditions: s.Conditions,
	}
}

// Parse validates a raw webhook payload and extracts the signal fields.
// Required: strategy, symbol, action, quantity (for buy). Malformed payloads
// are rejected before anything touches storage.
func Parse(raw []byte) (*Signal, error) {
	body := strings.TrimSpace(string(raw))
	if body == "" {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrInvalidTrade)
	}
	if !gjson.Valid(body) {
		return nil, fmt.Errorf("%w: payload is not valid json", domain.ErrInvalidTrade)
	}
	parsed := gjson.Parse(body)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("%w: payload root must be an object", domain.ErrInvalidTrade)
	}

	sig := &Signal{
		Strategy:   strings.TrimSpace(parsed.Get("strategy").String()),
		Symbol:     strings.ToUpper(strings.TrimSpace(parsed.Get("symbol").String())),
		Action:     strings.ToLower(strings.TrimSpace(parsed.Get("action").String())),
		Quantity:   parsed.Get("quantity").Int(),
		Price:      parsed.Get("price").Float(),
		Confidence: parsed.Get("confidence").Float(),
		Score:      parsed.Get("score").Float(),
		Reasoning:  strings.TrimSpace(parsed.Get("reasoning").String()),
		ReceivedAt: time.Now(),
	}
	if conditions := parsed.Get("market_conditions"); conditions.IsObject() {
		sig.Conditions = conditions.Value().(map[string]any)
	}

	if sig.Strategy == "" {
		return nil, fmt.Errorf("%w: strategy required", domain.ErrInvalidTrade)
	}
	if sig.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol required", domain.ErrInvalidTrade)
	}
	switch sig.Action {
	case "buy":
		if sig.Quantity <= 0 {
			return nil, fmt.Errorf("%w: buy signal needs a positive quantity", domain.ErrInvalidTrade)
		}
	case "close":
	default:
		return nil, fmt.Errorf("%w: unknown action %q", domain.ErrInvalidTrade, sig.Action)
	}
	if sig.Confidence < 0 || sig.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v outside [0, 1]", domain.ErrInvalidTrade, sig.Confidence)
	}
	if sig.Score < -1 || sig.Score > 1 {
		return nil, fmt.Errorf("%w: score %v outside [-1, 1]", domain.ErrInvalidTrade, sig.Score)
	}
	return sig, nil
}
