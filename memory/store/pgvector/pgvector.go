// Package pgvector is the production SearchBackend on PostgreSQL: vector
// ranking via the pgvector extension's cosine operator, keyword ranking
// via tsvector/ts_rank, and composite sorts in SQL. One table holds every
// namespace; all queries are namespace-scoped.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/m-mizutani/goerr/v2"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/becomeliminal/memcore/memory"
)

// Backend implements memory.SearchBackend on a *sql.DB opened with lib/pq.
type Backend struct {
	db   *sql.DB
	dims int
}

// New creates a backend for the given connection. dims must match the
// embedding provider's vector length.
func New(db *sql.DB, dims int) *Backend {
	return &Backend{db: db, dims: dims}
}

// EnsureSchema creates the extension, table, and indexes if missing.
func (b *Backend) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memories (
			id               TEXT PRIMARY KEY,
			namespace        TEXT NOT NULL,
			embedding        vector(%d) NOT NULL,
			content          TEXT NOT NULL,
			memory_type      TEXT NOT NULL,
			tags             TEXT[] NOT NULL DEFAULT '{}',
			importance       TEXT,
			created_at       TIMESTAMPTZ NOT NULL,
			ttl              TEXT,
			source           TEXT,
			attributes       JSONB,
			text_length      INTEGER NOT NULL,
			importance_score INTEGER NOT NULL,
			recency_score    DOUBLE PRECISION NOT NULL,
			content_tsv      TSVECTOR GENERATED ALWAYS AS (to_tsvector('english', content)) STORED
		)`, b.dims),
		`CREATE INDEX IF NOT EXISTS idx_memories_namespace ON memories (namespace)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_tsv ON memories USING GIN (content_tsv)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_vec ON memories USING ivfflat (embedding vector_cosine_ops)`,
	}
	for _, stmt := range statements {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return goerr.Wrap(err, "ensure schema")
		}
	}
	return nil
}

const upsertSQL = `
	INSERT INTO memories (
		id, namespace, embedding, content, memory_type, tags, importance,
		created_at, ttl, source, attributes, text_length, importance_score, recency_score
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (id) DO UPDATE SET
		embedding = EXCLUDED.embedding,
		content = EXCLUDED.content,
		memory_type = EXCLUDED.memory_type,
		tags = EXCLUDED.tags,
		importance = EXCLUDED.importance,
		created_at = EXCLUDED.created_at,
		ttl = EXCLUDED.ttl,
		source = EXCLUDED.source,
		attributes = EXCLUDED.attributes,
		text_length = EXCLUDED.text_length,
		importance_score = EXCLUDED.importance_score,
		recency_score = EXCLUDED.recency_score
`

// Upsert writes rows by ID into the namespace.
func (b *Backend) Upsert(ctx context.Context, namespace string, rows []memory.Row) error {
	for _, row := range rows {
		doc, err := rowColumns(row, namespace)
		if err != nil {
			return err
		}
		if _, err := b.db.ExecContext(ctx, upsertSQL,
			row.ID, namespace, pgv.NewVector(row.Vector),
			doc.content, doc.memoryType, pq.Array(doc.tags), doc.importance,
			doc.createdAt, doc.ttl, doc.source, doc.attributes,
			doc.textLength, doc.importanceScore, doc.recencyScore,
		); err != nil {
			return goerr.Wrap(err, "upsert memory row",
				goerr.V("namespace", namespace), goerr.V("id", row.ID))
		}
	}
	return nil
}

// Query returns rows ordered per q.Rank.
func (b *Backend) Query(ctx context.Context, namespace string, q memory.SearchQuery) ([]memory.Row, error) {
	where := []string{"namespace = $1"}
	args := []any{namespace}

	for _, f := range q.Filters {
		clause, arg, err := filterClause(f, len(args)+1)
		if err != nil {
			return nil, err
		}
		where = append(where, clause)
		args = append(args, arg)
	}

	var orderBy string
	switch q.Rank.Kind {
	case memory.RankVector:
		args = append(args, pgv.NewVector(q.Rank.Vector))
		orderBy = fmt.Sprintf("embedding <=> $%d", len(args))

	case memory.RankText:
		args = append(args, q.Rank.Text)
		where = append(where,
			fmt.Sprintf("content_tsv @@ plainto_tsquery('english', $%d)", len(args)))
		orderBy = fmt.Sprintf("ts_rank(content_tsv, plainto_tsquery('english', $%d)) DESC", len(args))

	case memory.RankFields:
		var parts []string
		for _, f := range q.Rank.Fields {
			column, ok := sortColumns[f.Field]
			if !ok {
				return nil, goerr.New("unsupported sort field", goerr.V("field", f.Field))
			}
			direction := "ASC"
			if f.Desc {
				direction = "DESC"
			}
			parts = append(parts, column+" "+direction)
		}
		if len(parts) == 0 {
			parts = []string{"created_at DESC"}
		}
		orderBy = strings.Join(parts, ", ")

	default:
		return nil, goerr.New("unsupported rank kind", goerr.V("kind", q.Rank.Kind))
	}

	args = append(args, q.TopK)
	query := fmt.Sprintf(`
		SELECT id, embedding, content, memory_type, tags, importance,
		       created_at, ttl, source, attributes, text_length,
		       importance_score, recency_score
		FROM memories
		WHERE %s
		ORDER BY %s
		LIMIT $%d`,
		strings.Join(where, " AND "), orderBy, len(args))

	dbRows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "query memories", goerr.V("namespace", namespace))
	}
	defer func() { _ = dbRows.Close() }()

	var out []memory.Row
	for dbRows.Next() {
		row, err := scanRow(dbRows, namespace)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := dbRows.Err(); err != nil {
		return nil, goerr.Wrap(err, "iterate memories")
	}
	return out, nil
}

// sortColumns whitelists composite-sort fields against their columns.
var sortColumns = map[string]string{
	memory.FieldImportanceScore: "importance_score",
	memory.FieldRecencyScore:    "recency_score",
	memory.FieldCreatedAt:       "created_at",
	memory.FieldTextLength:      "text_length",
}

// filterClause renders one predicate as SQL with a positional argument.
func filterClause(f memory.Filter, position int) (string, any, error) {
	switch {
	case f.Field == memory.FieldType && f.Op == memory.OpIn:
		values, ok := f.Value.([]string)
		if !ok {
			return "", nil, goerr.New("type filter requires []string")
		}
		return fmt.Sprintf("memory_type = ANY($%d)", position), pq.Array(values), nil

	case f.Field == memory.FieldTags && f.Op == memory.OpContains:
		tag, ok := f.Value.(string)
		if !ok {
			return "", nil, goerr.New("tag filter requires string")
		}
		return fmt.Sprintf("$%d = ANY(tags)", position), tag, nil

	case f.Field == memory.FieldCreatedAt && f.Op == memory.OpGTE:
		ts, ok := f.Value.(time.Time)
		if !ok {
			return "", nil, goerr.New("createdAt filter requires time.Time")
		}
		return fmt.Sprintf("created_at >= $%d", position), ts, nil

	default:
		return "", nil, goerr.New("unsupported filter",
			goerr.V("field", f.Field), goerr.V("op", f.Op))
	}
}

type columns struct {
	content         string
	memoryType      string
	tags            []string
	importance      sql.NullString
	createdAt       time.Time
	ttl             sql.NullString
	source          sql.NullString
	attributes      []byte
	textLength      int
	importanceScore int
	recencyScore    float64
}

// rowColumns projects a generic attribute bag onto the table columns.
func rowColumns(row memory.Row, namespace string) (*columns, error) {
	text, _ := row.Attributes[memory.FieldText].(string)
	if text == "" {
		return nil, goerr.New("row is missing text", goerr.V("id", row.ID))
	}
	createdAtRaw, _ := row.Attributes[memory.FieldCreatedAt].(string)
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtRaw)
	if err != nil {
		return nil, goerr.Wrap(err, "row has malformed createdAt", goerr.V("id", row.ID))
	}

	doc := &columns{
		content:         text,
		memoryType:      stringAttr(row, memory.FieldType),
		createdAt:       createdAt,
		importance:      nullString(stringAttr(row, memory.FieldImportance)),
		ttl:             nullString(stringAttr(row, memory.FieldTTL)),
		source:          nullString(stringAttr(row, memory.FieldSource)),
		textLength:      intAttr(row, memory.FieldTextLength),
		importanceScore: intAttr(row, memory.FieldImportanceScore),
		recencyScore:    floatAttr(row, memory.FieldRecencyScore),
	}
	if tags, ok := row.Attributes[memory.FieldTags].([]string); ok {
		doc.tags = tags
	} else {
		doc.tags = []string{}
	}
	if attrs, ok := row.Attributes[memory.FieldAttributes]; ok {
		data, err := json.Marshal(attrs)
		if err != nil {
			return nil, goerr.Wrap(err, "marshal attributes", goerr.V("id", row.ID))
		}
		doc.attributes = data
	}
	return doc, nil
}

// scanRow rebuilds the generic attribute bag from table columns.
func scanRow(rows *sql.Rows, namespace string) (memory.Row, error) {
	var (
		id  string
		vec pgv.Vector
		c   columns
	)
	if err := rows.Scan(&id, &vec, &c.content, &c.memoryType, pq.Array(&c.tags),
		&c.importance, &c.createdAt, &c.ttl, &c.source, &c.attributes,
		&c.textLength, &c.importanceScore, &c.recencyScore); err != nil {
		return memory.Row{}, goerr.Wrap(err, "scan memory row")
	}

	attrs := map[string]any{
		memory.FieldNamespace:       namespace,
		memory.FieldType:            c.memoryType,
		memory.FieldText:            c.content,
		memory.FieldCreatedAt:       c.createdAt.UTC().Format(time.RFC3339Nano),
		memory.FieldTextLength:      c.textLength,
		memory.FieldImportanceScore: c.importanceScore,
		memory.FieldRecencyScore:    c.recencyScore,
	}
	if len(c.tags) > 0 {
		attrs[memory.FieldTags] = c.tags
	}
	if c.importance.Valid {
		attrs[memory.FieldImportance] = c.importance.String
	}
	if c.ttl.Valid {
		attrs[memory.FieldTTL] = c.ttl.String
	}
	if c.source.Valid {
		attrs[memory.FieldSource] = c.source.String
	}
	if len(c.attributes) > 0 {
		attrs[memory.FieldAttributes] = string(c.attributes)
	}
	return memory.Row{ID: id, Vector: vec.Slice(), Attributes: attrs}, nil
}

func stringAttr(row memory.Row, field string) string {
	s, _ := row.Attributes[field].(string)
	return s
}

func intAttr(row memory.Row, field string) int {
	switch v := row.Attributes[field].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func floatAttr(row memory.Row, field string) float64 {
	switch v := row.Attributes[field].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
