package memory

import "context"

// Embedder converts text to a fixed-dimension vector.
// Implementations: mock (testing), onnx (local), or any remote provider.
// Repeated calls on identical text must produce usable vectors for the
// duplicate-suppression check, so providers should be deterministic.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Well-known attribute fields shared by every SearchBackend. Backends may
// rely on these keys for text ranking and composite sorts; filters and
// sort fields reference them by name.
const (
	FieldNamespace       = "namespace"
	FieldType            = "type"
	FieldText            = "text"
	FieldTags            = "tags"
	FieldImportance      = "importance"
	FieldCreatedAt       = "createdAt"
	FieldTTL             = "ttl"
	FieldAttributes      = "attributes"
	FieldSource          = "source"
	FieldTextLength      = "textLength"
	FieldImportanceScore = "importanceScore"
	FieldRecencyScore    = "recencyScore"
)

// Row is the wire shape exchanged with a SearchBackend. Attributes are an
// open bag; the engine decodes them through decodeRow at the boundary and
// never threads raw maps through ranking.
type Row struct {
	ID         string
	Vector     []float32
	Attributes map[string]any
}

// FilterOp is a predicate operator applied to a stored attribute.
type FilterOp string

const (
	// OpIn matches rows whose attribute equals any of the listed values.
	OpIn FilterOp = "in"

	// OpContains matches rows whose list-valued attribute contains the value.
	OpContains FilterOp = "contains"

	// OpGTE matches rows whose attribute is >= the value.
	OpGTE FilterOp = "gte"
)

// Filter is a single attribute predicate. Filters in a Query combine with
// AND semantics.
type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

// RankKind selects the backend's ranking strategy for a query.
type RankKind int

const (
	// RankVector orders rows by vector similarity to Rank.Vector.
	RankVector RankKind = iota

	// RankText orders rows by full-text relevance to Rank.Text.
	RankText

	// RankFields orders rows by a composite multi-field sort.
	RankFields
)

// SortField is one component of a composite sort.
type SortField struct {
	Field string
	Desc  bool
}

// Rank describes how a query's rows are ordered.
type Rank struct {
	Kind   RankKind
	Vector []float32
	Text   string
	Fields []SortField
}

// SearchQuery is a namespace-scoped backend query.
type SearchQuery struct {
	Filters []Filter
	TopK    int
	Rank    Rank
}

// SearchBackend is the namespace-scoped storage boundary.
// Implementations: store/local (chromem-go, in-process) and
// store/pgvector (PostgreSQL). Documents are owned by the backend once
// written; the engine never mutates them afterwards.
type SearchBackend interface {
	// Upsert writes rows by ID into the namespace.
	Upsert(ctx context.Context, namespace string, rows []Row) error

	// Query returns rows ordered per q.Rank, at most q.TopK of them.
	Query(ctx context.Context, namespace string, q SearchQuery) ([]Row, error)
}
