package circuitbreaker

import (
	"sync"

	"go.uber.org/zap"
)

// Breakers hands out one circuit breaker per platform, created lazily
// with default settings. Outages on one platform never gate another.
type Breakers struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	logger   *zap.Logger
}

// NewBreakers creates an empty per-platform breaker registry.
func NewBreakers(logger *zap.Logger) *Breakers {
	return &Breakers{
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger,
	}
}

// For returns the breaker for the platform, creating it on first use.
func (b *Breakers) For(platform string) *CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	cb, ok := b.breakers[platform]
	if !ok {
		cb = New(DefaultConfig(platform), b.logger)
		b.breakers[platform] = cb
	}
	return cb
}

// Stats returns a snapshot of every breaker, for the health endpoint.
func (b *Breakers) Stats() []Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := make([]Stats, 0, len(b.breakers))
	for _, cb := range b.breakers {
		stats = append(stats, cb.Stats())
	}
	return stats
}
