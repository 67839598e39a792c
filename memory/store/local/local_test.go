package local_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/memcore/memory"
	"github.com/becomeliminal/memcore/memory/store/local"
)

const ns = "memory:test"

func row(id, text string, vec []float32, attrs map[string]any) memory.Row {
	base := map[string]any{
		memory.FieldNamespace: ns,
		memory.FieldType:      string(memory.TypeSemantic),
		memory.FieldText:      text,
		memory.FieldCreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range attrs {
		base[k] = v
	}
	return memory.Row{ID: id, Vector: vec, Attributes: base}
}

func TestVectorRank(t *testing.T) {
	ctx := context.Background()
	b, err := local.New()
	require.NoError(t, err)

	require.NoError(t, b.Upsert(ctx, ns, []memory.Row{
		row("a", "exactly aligned", []float32{1, 0, 0}, nil),
		row("b", "orthogonal", []float32{0, 1, 0}, nil),
		row("c", "mostly aligned", []float32{0.994, 0.110, 0}, nil),
	}))

	rows, err := b.Query(ctx, ns, memory.SearchQuery{
		TopK: 2,
		Rank: memory.Rank{Kind: memory.RankVector, Vector: []float32{1, 0, 0}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0].ID)
	assert.Equal(t, "c", rows[1].ID)
}

func TestTextRankExcludesNonMatches(t *testing.T) {
	ctx := context.Background()
	b, err := local.New()
	require.NoError(t, err)

	require.NoError(t, b.Upsert(ctx, ns, []memory.Row{
		row("hit2", "postgres database tuning for the postgres database", []float32{1, 0, 0}, nil),
		row("hit1", "the database is slow", []float32{0, 1, 0}, nil),
		row("miss", "completely unrelated gardening tips", []float32{0, 0, 1}, nil),
	}))

	rows, err := b.Query(ctx, ns, memory.SearchQuery{
		TopK: 10,
		Rank: memory.Rank{Kind: memory.RankText, Text: "postgres database"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2, "rows without term overlap are excluded")
	assert.Equal(t, "hit2", rows[0].ID, "more term hits rank higher")
	assert.Equal(t, "hit1", rows[1].ID)
}

func TestFieldsRank(t *testing.T) {
	ctx := context.Background()
	b, err := local.New()
	require.NoError(t, err)

	require.NoError(t, b.Upsert(ctx, ns, []memory.Row{
		row("low", "low", []float32{1, 0, 0}, map[string]any{memory.FieldImportanceScore: 1}),
		row("high", "high", []float32{0, 1, 0}, map[string]any{memory.FieldImportanceScore: 3}),
		row("mid", "mid", []float32{0, 0, 1}, map[string]any{memory.FieldImportanceScore: 2}),
	}))

	rows, err := b.Query(ctx, ns, memory.SearchQuery{
		TopK: 10,
		Rank: memory.Rank{
			Kind:   memory.RankFields,
			Fields: []memory.SortField{{Field: memory.FieldImportanceScore, Desc: true}},
		},
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "high", rows[0].ID)
	assert.Equal(t, "mid", rows[1].ID)
	assert.Equal(t, "low", rows[2].ID)
}

func TestFilters(t *testing.T) {
	ctx := context.Background()
	b, err := local.New()
	require.NoError(t, err)

	old := time.Now().Add(-48 * time.Hour).UTC().Format(time.RFC3339Nano)
	require.NoError(t, b.Upsert(ctx, ns, []memory.Row{
		row("sem", "semantic and tagged", []float32{1, 0, 0}, map[string]any{
			memory.FieldTags: []string{"billing"},
		}),
		row("epi", "episodic record", []float32{0, 1, 0}, map[string]any{
			memory.FieldType: string(memory.TypeEpisodic),
		}),
		row("stale", "old semantic row", []float32{0, 0, 1}, map[string]any{
			memory.FieldCreatedAt: old,
		}),
	}))

	query := func(filters ...memory.Filter) []memory.Row {
		rows, err := b.Query(ctx, ns, memory.SearchQuery{
			Filters: filters,
			TopK:    10,
			Rank:    memory.Rank{Kind: memory.RankFields},
		})
		require.NoError(t, err)
		return rows
	}

	rows := query(memory.Filter{
		Field: memory.FieldType, Op: memory.OpIn,
		Value: []string{string(memory.TypeEpisodic)},
	})
	require.Len(t, rows, 1)
	assert.Equal(t, "epi", rows[0].ID)

	rows = query(memory.Filter{
		Field: memory.FieldTags, Op: memory.OpContains, Value: "billing",
	})
	require.Len(t, rows, 1)
	assert.Equal(t, "sem", rows[0].ID)

	rows = query(memory.Filter{
		Field: memory.FieldCreatedAt, Op: memory.OpGTE,
		Value: time.Now().Add(-time.Hour).UTC(),
	})
	require.Len(t, rows, 2, "the stale row falls outside the window")
	for _, r := range rows {
		assert.NotEqual(t, "stale", r.ID)
	}
}

func TestUpsertOverwritesByID(t *testing.T) {
	ctx := context.Background()
	b, err := local.New()
	require.NoError(t, err)

	require.NoError(t, b.Upsert(ctx, ns, []memory.Row{
		row("a", "first version", []float32{1, 0, 0}, nil),
	}))
	require.NoError(t, b.Upsert(ctx, ns, []memory.Row{
		row("a", "second version", []float32{1, 0, 0}, nil),
	}))

	rows, err := b.Query(ctx, ns, memory.SearchQuery{
		TopK: 10,
		Rank: memory.Rank{Kind: memory.RankFields},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "second version", rows[0].Attributes[memory.FieldText])
}

func TestEmptyNamespaceAndZeroTopK(t *testing.T) {
	ctx := context.Background()
	b, err := local.New()
	require.NoError(t, err)

	rows, err := b.Query(ctx, "memory:empty", memory.SearchQuery{
		TopK: 5,
		Rank: memory.Rank{Kind: memory.RankFields},
	})
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, b.Upsert(ctx, ns, []memory.Row{
		row("a", "something", []float32{1, 0, 0}, nil),
	}))
	rows, err = b.Query(ctx, ns, memory.SearchQuery{
		TopK: 0,
		Rank: memory.Rank{Kind: memory.RankFields},
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
