package memory

import (
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// encodeDocument projects an item into its persisted row. The stored
// recencyScore is only a hint for server-side composite sorts; fusion
// always recomputes recency client-side from createdAt.
func encodeDocument(item MemoryItem, namespace string, vector []float32, now time.Time) Row {
	attrs := map[string]any{
		FieldNamespace:       namespace,
		FieldType:            string(item.Type),
		FieldText:            item.Text,
		FieldCreatedAt:       item.CreatedAt.UTC().Format(time.RFC3339Nano),
		FieldTextLength:      len(item.Text),
		FieldImportanceScore: item.Importance.Score(),
		FieldRecencyScore:    recencyScore(item.CreatedAt, now),
	}
	if len(item.Tags) > 0 {
		attrs[FieldTags] = append([]string(nil), item.Tags...)
	}
	if item.Importance != "" {
		attrs[FieldImportance] = string(item.Importance)
	}
	if item.TTL != "" {
		attrs[FieldTTL] = item.TTL
	}
	if item.Source != "" {
		attrs[FieldSource] = item.Source
	}
	if len(item.Attributes) > 0 {
		attrs[FieldAttributes] = item.Attributes
	}
	return Row{ID: item.ID, Vector: vector, Attributes: attrs}
}

// decodeRow is the single boundary between backend row bags and typed
// items. Backends return attributes with whatever concrete types survive
// their storage round trip (JSON numbers, []any slices, time strings), so
// decoding is tolerant about representation but strict about presence.
func decodeRow(row Row) (MemoryItem, error) {
	text, ok := row.Attributes[FieldText].(string)
	if !ok || text == "" {
		return MemoryItem{}, goerr.New("stored row is missing text",
			goerr.T(TagBackendQuery), goerr.V("id", row.ID))
	}

	createdAt, err := attrTimeValue(row.Attributes[FieldCreatedAt])
	if err != nil {
		return MemoryItem{}, goerr.Wrap(err, "stored row has malformed createdAt",
			goerr.T(TagBackendQuery), goerr.V("id", row.ID))
	}

	item := MemoryItem{
		ID:         row.ID,
		Type:       Type(attrStringValue(row.Attributes[FieldType])),
		Text:       text,
		Tags:       attrStringSliceValue(row.Attributes[FieldTags]),
		Importance: Importance(attrStringValue(row.Attributes[FieldImportance])),
		CreatedAt:  createdAt,
		TTL:        attrStringValue(row.Attributes[FieldTTL]),
		Source:     attrStringValue(row.Attributes[FieldSource]),
	}
	if raw, ok := row.Attributes[FieldAttributes]; ok {
		item.Attributes = attrMapValue(raw)
	}
	return item, nil
}

func attrStringValue(v any) string {
	s, _ := v.(string)
	return s
}

func attrStringSliceValue(v any) []string {
	switch vv := v.(type) {
	case []string:
		return append([]string(nil), vv...)
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func attrTimeValue(v any) (time.Time, error) {
	switch vv := v.(type) {
	case time.Time:
		return vv, nil
	case string:
		return time.Parse(time.RFC3339Nano, vv)
	default:
		return time.Time{}, goerr.New("unsupported timestamp representation")
	}
}

func attrMapValue(v any) map[string]any {
	switch vv := v.(type) {
	case map[string]any:
		return vv
	case string:
		// pgvector stores free-form attributes as a JSON column.
		var out map[string]any
		if err := json.Unmarshal([]byte(vv), &out); err == nil {
			return out
		}
		return nil
	default:
		return nil
	}
}
