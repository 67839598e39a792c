package memory_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/memcore/memory"
	"github.com/becomeliminal/memcore/memory/embedder/mock"
	"github.com/becomeliminal/memcore/memory/store/local"
)

func newTestClient(t *testing.T, opts ...memory.Option) *memory.Client {
	t.Helper()
	backend, err := local.New()
	require.NoError(t, err)

	client, err := memory.New(
		memory.Scope{WorkspaceID: "test", UserID: t.Name()},
		backend,
		mock.New(32),
		opts...,
	)
	require.NoError(t, err)
	return client
}

func TestRememberAndRecall(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	id, err := client.Remember(ctx, memory.RememberInput{
		Text:       "Derek prefers navy ties",
		Importance: memory.ImportanceHigh,
		Tags:       []string{"preference"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	results, err := client.Recall(ctx, memory.RecallOptions{
		Query: "What tie should I recommend?",
		Limit: 5,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	got := results[0]
	assert.Equal(t, id, got.Item.ID)
	assert.Equal(t, "Derek prefers navy ties", got.Item.Text)
	assert.Equal(t, memory.TypeSemantic, got.Item.Type, "type defaults to semantic")
	assert.Equal(t, memory.ImportanceHigh, got.Item.Importance)
	assert.Equal(t, []string{"preference"}, got.Item.Tags)
	assert.Greater(t, got.Score, 0.0)
	assert.LessOrEqual(t, got.Score, 1.0)
}

func TestRecallLimitCeiling(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	for i := 0; i < 15; i++ {
		_, err := client.Remember(ctx, memory.RememberInput{
			Text: fmt.Sprintf("note %d about the project roadmap", i),
		})
		require.NoError(t, err)
	}

	results, err := client.Recall(ctx, memory.RecallOptions{
		Query: "project roadmap",
		Limit: 1000,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 10, "requested limits are clamped to 10")
	assert.NotEmpty(t, results)

	// Zero limit falls back to the default of 5.
	results, err = client.Recall(ctx, memory.RecallOptions{Query: "project roadmap"})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 5)
}

func TestRecallWithoutQuery(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	for _, imp := range []memory.Importance{
		memory.ImportanceLow, memory.ImportanceHigh, memory.ImportanceMedium,
	} {
		_, err := client.Remember(ctx, memory.RememberInput{
			Text:       "a fact of " + string(imp) + " importance",
			Importance: imp,
		})
		require.NoError(t, err)
	}

	results, err := client.Recall(ctx, memory.RecallOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Composite order: importance first, then recency. No fused scores in
	// this mode, so every result carries the constant 1.0.
	assert.Equal(t, memory.ImportanceHigh, results[0].Item.Importance)
	assert.Equal(t, memory.ImportanceMedium, results[1].Item.Importance)
	assert.Equal(t, memory.ImportanceLow, results[2].Item.Importance)
	for _, r := range results {
		assert.Equal(t, 1.0, r.Score)
	}
}

func TestRecallTypeFilter(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, err := client.Remember(ctx, memory.RememberInput{
		Text: "a durable semantic fact about deployment",
		Type: memory.TypeSemantic,
	})
	require.NoError(t, err)
	_, err = client.Remember(ctx, memory.RememberInput{
		Text: "an episodic record of the deployment conversation",
		Type: memory.TypeEpisodic,
	})
	require.NoError(t, err)

	results, err := client.Recall(ctx, memory.RecallOptions{
		Types: []memory.Type{memory.TypeEpisodic},
		Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, memory.TypeEpisodic, results[0].Item.Type)
}

func TestRecallTagFilterIsConjunctive(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	both, err := client.Remember(ctx, memory.RememberInput{
		Text: "tagged with both billing and urgent",
		Tags: []string{"billing", "urgent"},
	})
	require.NoError(t, err)
	_, err = client.Remember(ctx, memory.RememberInput{
		Text: "tagged with billing only",
		Tags: []string{"billing"},
	})
	require.NoError(t, err)

	results, err := client.Recall(ctx, memory.RecallOptions{
		Tags:  []string{"billing", "urgent"},
		Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, results, 1, "every requested tag must be present")
	assert.Equal(t, both, results[0].Item.ID)
}

func TestRecallSinceFilter(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, err := client.Remember(ctx, memory.RememberInput{Text: "a fact written just now"})
	require.NoError(t, err)

	results, err := client.Recall(ctx, memory.RecallOptions{
		Since: time.Now().Add(-time.Hour),
		Limit: 10,
	})
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = client.Recall(ctx, memory.RecallOptions{
		Since: time.Now().Add(time.Hour),
		Limit: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRememberRejectsEmptyText(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := client.Remember(ctx, memory.RememberInput{Text: text})
		require.Error(t, err)
		assert.True(t, goerr.HasTag(err, memory.TagValidation))
	}
}

func TestNewRejectsEmptyWorkspace(t *testing.T) {
	backend, err := local.New()
	require.NoError(t, err)

	_, err = memory.New(memory.Scope{UserID: "u"}, backend, mock.New(32))
	require.Error(t, err)
	assert.True(t, goerr.HasTag(err, memory.TagInvalidScope))
}

func TestNewRejectsNegativeWeights(t *testing.T) {
	backend, err := local.New()
	require.NoError(t, err)

	_, err = memory.New(memory.Scope{WorkspaceID: "w"}, backend, mock.New(32),
		memory.WithWeights(memory.Weights{Semantic: -1}))
	require.Error(t, err)
	assert.True(t, goerr.HasTag(err, memory.TagValidation))
}

func TestRecallRejectsInvalidPerCallWeights(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, err := client.Recall(ctx, memory.RecallOptions{
		Query:   "anything",
		Weights: &memory.Weights{Keyword: -0.5},
	})
	require.Error(t, err)
	assert.True(t, goerr.HasTag(err, memory.TagValidation))
}

func TestRememberRoutesShortTermToBuffer(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	id, err := client.Remember(ctx, memory.RememberInput{
		Text: "the user just asked about invoice formatting",
		Type: memory.TypeShortTerm,
	})
	require.NoError(t, err)

	items := client.Buffer().Items()
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)

	// Short-term items are also durable and queryable.
	results, err := client.Recall(ctx, memory.RecallOptions{
		Types: []memory.Type{memory.TypeShortTerm},
		Limit: 10,
	})
	require.NoError(t, err)
	assert.Len(t, results, 1)

	client.ClearShortTerm()
	assert.Empty(t, client.Buffer().Items())
}

func TestIsolationBetweenScopes(t *testing.T) {
	ctx := context.Background()
	backend, err := local.New()
	require.NoError(t, err)
	embedder := mock.New(32)

	alice, err := memory.New(memory.Scope{WorkspaceID: "w", UserID: "alice"}, backend, embedder)
	require.NoError(t, err)
	bob, err := memory.New(memory.Scope{WorkspaceID: "w", UserID: "bob"}, backend, embedder)
	require.NoError(t, err)

	_, err = alice.Remember(ctx, memory.RememberInput{Text: "alice's private note about taxes"})
	require.NoError(t, err)

	results, err := bob.Recall(ctx, memory.RecallOptions{Query: "taxes", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, results, "scoped namespaces never leak")
}

// failBackend fails reads and/or writes; used to exercise error tagging.
type failBackend struct {
	failWrites bool
	failReads  bool
}

func (f *failBackend) Upsert(context.Context, string, []memory.Row) error {
	if f.failWrites {
		return goerr.New("backend down")
	}
	return nil
}

func (f *failBackend) Query(context.Context, string, memory.SearchQuery) ([]memory.Row, error) {
	if f.failReads {
		return nil, goerr.New("backend down")
	}
	return nil, nil
}

func TestRememberTagsBackendWriteFailure(t *testing.T) {
	ctx := context.Background()
	client, err := memory.New(memory.Scope{WorkspaceID: "w"},
		&failBackend{failWrites: true}, mock.New(32))
	require.NoError(t, err)

	_, err = client.Remember(ctx, memory.RememberInput{Text: "will not land"})
	require.Error(t, err)
	assert.True(t, goerr.HasTag(err, memory.TagBackendWrite))
}

func TestRecallTagsBackendQueryFailure(t *testing.T) {
	ctx := context.Background()
	client, err := memory.New(memory.Scope{WorkspaceID: "w"},
		&failBackend{failReads: true}, mock.New(32))
	require.NoError(t, err)

	// Semantic mode: either sub-query failing fails the whole call.
	_, err = client.Recall(ctx, memory.RecallOptions{Query: "anything"})
	require.Error(t, err)
	assert.True(t, goerr.HasTag(err, memory.TagBackendQuery))

	// Composite-sort mode surfaces the same tag.
	_, err = client.Recall(ctx, memory.RecallOptions{})
	require.Error(t, err)
	assert.True(t, goerr.HasTag(err, memory.TagBackendQuery))
}

// failEmbedder always errors.
type failEmbedder struct{}

func (failEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, goerr.New("model unavailable")
}
func (failEmbedder) Dimensions() int { return 32 }

func TestEmbeddingFailureIsTagged(t *testing.T) {
	ctx := context.Background()
	backend, err := local.New()
	require.NoError(t, err)
	client, err := memory.New(memory.Scope{WorkspaceID: "w"}, backend, failEmbedder{})
	require.NoError(t, err)

	_, err = client.Remember(ctx, memory.RememberInput{Text: "cannot embed this"})
	require.Error(t, err)
	assert.True(t, goerr.HasTag(err, memory.TagEmbedding))

	_, err = client.Recall(ctx, memory.RecallOptions{Query: "cannot embed this"})
	require.Error(t, err)
	assert.True(t, goerr.HasTag(err, memory.TagEmbedding))
}
