// Package cached memoizes embedding calls with a ristretto cache.
//
// Embedding providers are deterministic per input, so identical texts map
// to identical vectors and caching is safe. This cache sits in front of
// the embedding provider only — never in front of the search backend,
// whose reads must stay live.
package cached

import (
	"context"

	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"

	"github.com/becomeliminal/memcore/memory"
)

// Embedder wraps another embedder with an in-process cache keyed by the
// exact input text.
type Embedder struct {
	inner memory.Embedder
	cache *ristretto.Cache
}

// Config sizes the cache.
type Config struct {
	// MaxBytes bounds the total cached vector payload. Default: 16 MiB.
	MaxBytes int64

	// NumCounters sizes ristretto's frequency sketch. Default: 100k.
	NumCounters int64
}

// New wraps inner with a cache.
func New(inner memory.Embedder, cfg Config) (*Embedder, error) {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 16 << 20
	}
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = 100_000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "create embedding cache")
	}
	return &Embedder{inner: inner, cache: cache}, nil
}

// Embed returns a cached vector when the exact text has been embedded
// before, otherwise delegates and caches the result.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return append([]float32(nil), vec...), nil
		}
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, append([]float32(nil), vec...), int64(len(vec)*4))
	return vec, nil
}

// Dimensions returns the wrapped embedder's dimensions.
func (e *Embedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Wait blocks until pending cache writes are applied. Ristretto admits
// entries asynchronously; tests call this to make hits deterministic.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Close releases the cache.
func (e *Embedder) Close() {
	e.cache.Close()
}
