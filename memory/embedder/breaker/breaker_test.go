package breaker_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/memcore/memory/embedder/breaker"
	"github.com/becomeliminal/memcore/memory/embedder/mock"
)

// flakyEmbedder fails until told otherwise.
type flakyEmbedder struct {
	fail  bool
	calls int
}

func (f *flakyEmbedder) Embed(context.Context, string) ([]float32, error) {
	f.calls++
	if f.fail {
		return nil, goerr.New("provider down")
	}
	return []float32{1, 0}, nil
}

func (f *flakyEmbedder) Dimensions() int { return 2 }

func TestPassThrough(t *testing.T) {
	e := breaker.New(mock.New(8), breaker.Config{})

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 8)
	assert.Equal(t, 8, e.Dimensions())
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	inner := &flakyEmbedder{fail: true}
	e := breaker.New(inner, breaker.Config{MaxFailures: 3})

	for i := 0; i < 3; i++ {
		_, err := e.Embed(ctx, "text")
		require.Error(t, err)
	}
	assert.Equal(t, 3, inner.calls)

	// Circuit is open: the provider is no longer called at all.
	_, err := e.Embed(ctx, "text")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, inner.calls)
}
