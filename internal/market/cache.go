package market

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"papertrade/internal/logger"
	"papertrade/internal/pkg/circuit"

	"golang.org/x/sync/singleflight"
)

// CachedSource wraps a Source with a short-TTL cache, request deduplication
// and a circuit breaker. When the upstream fails, the last known quote is
// returned marked Stale so callers can decide how to degrade.
type CachedSource struct {
	upstream Source
	ttl      time.Duration
	breaker  *circuit.CircuitBreaker
	group    singleflight.Group

	mu    sync.RWMutex
	cache map[string]Quote
}

func NewCachedSource(upstream Source, ttl time.Duration, breaker *circuit.CircuitBreaker) *CachedSource {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &CachedSource{
		upstream: upstream,
		ttl:      ttl,
		breaker:  breaker,
		cache:    make(map[string]Quote),
	}
}

var _ Source = (*CachedSource)(nil)

func (s *CachedSource) GetPrice(ctx context.Context, symbol string) (Quote, error) {
	key := strings.ToUpper(strings.TrimSpace(symbol))

	s.mu.RLock()
	cached, ok := s.cache[key]
	s.mu.RUnlock()
	if ok && time.Since(cached.At) < s.ttl {
		return cached, nil
	}

	if s.breaker != nil && !s.breaker.Allow() {
		if ok {
			cached.Stale = true
			return cached, nil
		}
		return Quote{}, fmt.Errorf("market: breaker open, no cached quote for %s", key)
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		q, ferr := s.upstream.GetPrice(ctx, key)
		if ferr != nil {
			if s.breaker != nil {
				s.breaker.RecordFailure()
			}
			return nil, ferr
		}
		if s.breaker != nil {
			s.breaker.RecordSuccess()
		}
		s.mu.Lock()
		s.cache[key] = q
		s.mu.Unlock()
		return q, nil
	})
	if err != nil {
		if ok {
			logger.Warnf("market: refresh for %s failed, serving stale quote: %v", key, err)
			cached.Stale = true
			return cached, nil
		}
		return Quote{}, err
	}
	return v.(Quote), nil
}
