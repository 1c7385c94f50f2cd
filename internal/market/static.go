package market

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// StaticSource serves prices set at runtime. It backs the memory driver and
// tests, and doubles as the sink for prices pushed over the API.
type StaticSource struct {
	mu     sync.RWMutex
	prices map[string]Quote
}

func NewStaticSource(initial map[string]float64) *StaticSource {
	s := &StaticSource{prices: make(map[string]Quote, len(initial))}
	now := time.Now()
	for sym, price := range initial {
		key := strings.ToUpper(strings.TrimSpace(sym))
		s.prices[key] = Quote{Symbol: key, Price: price, At: now}
	}
	return s
}

var _ Source = (*StaticSource)(nil)

func (s *StaticSource) SetPrice(symbol string, price float64) {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	s.mu.Lock()
	s.prices[key] = Quote{Symbol: key, Price: price, At: time.Now()}
	s.mu.Unlock()
}

func (s *StaticSource) GetPrice(ctx context.Context, symbol string) (Quote, error) {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	s.mu.RLock()
	q, ok := s.prices[key]
	s.mu.RUnlock()
	if !ok {
		return Quote{}, fmt.Errorf("no price for %s", key)
	}
	return q, nil
}
