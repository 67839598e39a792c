// Package breaker protects remote embedding providers with a circuit
// breaker. After a run of consecutive failures the breaker opens and
// rejects calls immediately instead of piling latency onto a provider
// that is already down; after a cooldown it lets test calls through.
package breaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/becomeliminal/memcore/memory"
)

// Config tunes the breaker.
type Config struct {
	// MaxFailures is the consecutive-failure count that trips the
	// circuit. Default: 3.
	MaxFailures uint32

	// Cooldown is how long the circuit stays open before allowing test
	// calls. Default: 30s.
	Cooldown time.Duration

	// HalfOpenMaxCalls is how many test calls the half-open state
	// admits. Default: 2.
	HalfOpenMaxCalls uint32
}

// Embedder wraps another embedder with a gobreaker circuit breaker.
type Embedder struct {
	inner   memory.Embedder
	breaker *gobreaker.CircuitBreaker
}

// New wraps inner with a breaker.
func New(inner memory.Embedder, cfg Config) *Embedder {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenMaxCalls == 0 {
		cfg.HalfOpenMaxCalls = 2
	}
	return &Embedder{
		inner: inner,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "embedder",
			MaxRequests: cfg.HalfOpenMaxCalls,
			Timeout:     cfg.Cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.MaxFailures
			},
		}),
	}
}

// Embed delegates through the breaker. When the circuit is open the call
// fails immediately with gobreaker.ErrOpenState.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := e.breaker.Execute(func() (any, error) {
		return e.inner.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

// Dimensions returns the wrapped embedder's dimensions.
func (e *Embedder) Dimensions() int {
	return e.inner.Dimensions()
}
