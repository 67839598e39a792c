// Package local is an in-process SearchBackend built on chromem-go, an
// embedded pure-Go vector database. chromem only ranks by vector
// similarity, so the backend keeps a per-namespace attribute mirror and
// implements keyword ranking, composite sorts, and filtering against it.
// Suitable for local development and tests; production scopes use
// store/pgvector.
package local

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/memcore/memory"
	"github.com/m-mizutani/goerr/v2"
)

// Backend implements memory.SearchBackend in process memory.
type Backend struct {
	db         *chromem.DB
	mu         sync.RWMutex
	namespaces map[string]*namespaceState
}

type namespaceState struct {
	collection *chromem.Collection
	rows       map[string]memory.Row
}

// New creates an empty backend.
func New() (*Backend, error) {
	return &Backend{
		db:         chromem.NewDB(),
		namespaces: make(map[string]*namespaceState),
	}, nil
}

func (b *Backend) namespace(name string) (*namespaceState, error) {
	b.mu.RLock()
	ns, ok := b.namespaces[name]
	b.mu.RUnlock()
	if ok {
		return ns, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if ns, ok := b.namespaces[name]; ok {
		return ns, nil
	}

	// chromem collection names disallow some characters namespaces use.
	collection, err := b.db.CreateCollection(
		strings.ReplaceAll(name, ":", "_"), nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "create collection", goerr.V("namespace", name))
	}
	ns = &namespaceState{
		collection: collection,
		rows:       make(map[string]memory.Row),
	}
	b.namespaces[name] = ns
	return ns, nil
}

// Upsert writes rows by ID into the namespace.
func (b *Backend) Upsert(ctx context.Context, namespace string, rows []memory.Row) error {
	ns, err := b.namespace(namespace)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, row := range rows {
		if err := ns.collection.AddDocument(ctx, chromem.Document{
			ID:        row.ID,
			Content:   stringAttr(row, memory.FieldText),
			Embedding: row.Vector,
		}); err != nil {
			return goerr.Wrap(err, "add document", goerr.V("id", row.ID))
		}
		ns.rows[row.ID] = row
	}
	return nil
}

// Query returns rows ordered per q.Rank.
func (b *Backend) Query(ctx context.Context, namespace string, q memory.SearchQuery) ([]memory.Row, error) {
	ns, err := b.namespace(namespace)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	candidates := make(map[string]memory.Row, len(ns.rows))
	for id, row := range ns.rows {
		if matchesFilters(row, q.Filters) {
			candidates[id] = row
		}
	}
	if len(candidates) == 0 || q.TopK <= 0 {
		return nil, nil
	}

	switch q.Rank.Kind {
	case memory.RankVector:
		return b.rankByVector(ctx, ns, candidates, q)
	case memory.RankText:
		return rankByText(candidates, q), nil
	case memory.RankFields:
		return rankByFields(candidates, q), nil
	default:
		return nil, goerr.New("unsupported rank kind", goerr.V("kind", q.Rank.Kind))
	}
}

// rankByVector asks chromem for the full similarity ordering and keeps the
// candidates that passed the filters, in order, up to TopK.
func (b *Backend) rankByVector(ctx context.Context, ns *namespaceState, candidates map[string]memory.Row, q memory.SearchQuery) ([]memory.Row, error) {
	total := ns.collection.Count()
	if total == 0 {
		return nil, nil
	}

	results, err := ns.collection.QueryEmbedding(ctx, q.Rank.Vector, total, nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "chromem query")
	}

	out := make([]memory.Row, 0, q.TopK)
	for _, result := range results {
		row, ok := candidates[result.ID]
		if !ok {
			continue
		}
		out = append(out, row)
		if len(out) == q.TopK {
			break
		}
	}
	return out, nil
}

// rankByText scores candidates by query-term overlap against the stored
// text. Rows without any overlap are excluded, matching full-text engines
// that only return matching documents.
func rankByText(candidates map[string]memory.Row, q memory.SearchQuery) []memory.Row {
	terms := tokenize(q.Rank.Text)
	if len(terms) == 0 {
		return nil
	}

	type scored struct {
		row   memory.Row
		score float64
	}
	var matched []scored
	for _, row := range candidates {
		docTerms := make(map[string]int)
		for _, t := range tokenize(stringAttr(row, memory.FieldText)) {
			docTerms[t]++
		}
		hits := 0.0
		for _, t := range terms {
			hits += float64(docTerms[t])
		}
		if hits == 0 {
			continue
		}
		matched = append(matched, scored{row: row, score: hits / float64(len(terms))})
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].score != matched[j].score {
			return matched[i].score > matched[j].score
		}
		return matched[i].row.ID < matched[j].row.ID
	})
	if len(matched) > q.TopK {
		matched = matched[:q.TopK]
	}
	out := make([]memory.Row, len(matched))
	for i, m := range matched {
		out[i] = m.row
	}
	return out
}

// rankByFields sorts candidates by the composite field list.
func rankByFields(candidates map[string]memory.Row, q memory.SearchQuery) []memory.Row {
	out := make([]memory.Row, 0, len(candidates))
	for _, row := range candidates {
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool {
		for _, f := range q.Rank.Fields {
			a := numericAttr(out[i], f.Field)
			b := numericAttr(out[j], f.Field)
			if a == b {
				continue
			}
			if f.Desc {
				return a > b
			}
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > q.TopK {
		out = out[:q.TopK]
	}
	return out
}

func matchesFilters(row memory.Row, filters []memory.Filter) bool {
	for _, f := range filters {
		if !matchesFilter(row, f) {
			return false
		}
	}
	return true
}

func matchesFilter(row memory.Row, f memory.Filter) bool {
	attr := row.Attributes[f.Field]
	switch f.Op {
	case memory.OpIn:
		values, ok := f.Value.([]string)
		if !ok {
			return false
		}
		s, _ := attr.(string)
		for _, v := range values {
			if s == v {
				return true
			}
		}
		return false

	case memory.OpContains:
		want, ok := f.Value.(string)
		if !ok {
			return false
		}
		list, _ := attr.([]string)
		for _, v := range list {
			if v == want {
				return true
			}
		}
		return false

	case memory.OpGTE:
		switch want := f.Value.(type) {
		case time.Time:
			s, _ := attr.(string)
			ts, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return false
			}
			return !ts.Before(want)
		case float64:
			return numericAttr(row, f.Field) >= want
		case int:
			return numericAttr(row, f.Field) >= float64(want)
		default:
			return false
		}

	default:
		return false
	}
}

func stringAttr(row memory.Row, field string) string {
	s, _ := row.Attributes[field].(string)
	return s
}

func numericAttr(row memory.Row, field string) float64 {
	switch v := row.Attributes[field].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}
