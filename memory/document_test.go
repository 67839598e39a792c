package memory

import (
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	item := MemoryItem{
		ID:         "id-1",
		Type:       TypeSemantic,
		Text:       "Derek prefers navy ties",
		Tags:       []string{"preference", "style"},
		Importance: ImportanceHigh,
		CreatedAt:  now,
		TTL:        "30d",
		Attributes: map[string]any{"source_turn": "t-7"},
		Source:     "chat",
	}

	row := encodeDocument(item, "memory:w:u", []float32{0.1, 0.2}, now)
	assert.Equal(t, "memory:w:u", row.Attributes[FieldNamespace])
	assert.Equal(t, len(item.Text), row.Attributes[FieldTextLength])
	assert.Equal(t, 3, row.Attributes[FieldImportanceScore])

	got, err := decodeRow(row)
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)
	assert.Equal(t, item.Type, got.Type)
	assert.Equal(t, item.Text, got.Text)
	assert.Equal(t, item.Tags, got.Tags)
	assert.Equal(t, item.Importance, got.Importance)
	assert.True(t, item.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, item.TTL, got.TTL)
	assert.Equal(t, item.Source, got.Source)
	assert.Equal(t, item.Attributes, got.Attributes)
}

func TestDecodeRowTolerantRepresentations(t *testing.T) {
	// Backends hand back whatever concrete types survive their storage
	// round trip; decoding accepts the common variants.
	now := time.Now().UTC()
	row := Row{
		ID: "id-2",
		Attributes: map[string]any{
			FieldText:       "stored elsewhere",
			FieldType:       "episodic",
			FieldCreatedAt:  now,
			FieldTags:       []any{"a", "b"},
			FieldAttributes: `{"k":"v"}`,
		},
	}

	got, err := decodeRow(row)
	require.NoError(t, err)
	assert.Equal(t, TypeEpisodic, got.Type)
	assert.Equal(t, []string{"a", "b"}, got.Tags)
	assert.True(t, now.Equal(got.CreatedAt))
	assert.Equal(t, map[string]any{"k": "v"}, got.Attributes)
}

func TestDecodeRowStrictOnPresence(t *testing.T) {
	_, err := decodeRow(Row{ID: "x", Attributes: map[string]any{
		FieldCreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}})
	require.Error(t, err, "text is mandatory")
	assert.True(t, goerr.HasTag(err, TagBackendQuery))

	_, err = decodeRow(Row{ID: "x", Attributes: map[string]any{
		FieldText:      "has text",
		FieldCreatedAt: "not a timestamp",
	}})
	require.Error(t, err, "createdAt must parse")
	assert.True(t, goerr.HasTag(err, TagBackendQuery))
}
