package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Client is the memory engine façade for one scope. It owns the scope's
// short-term buffer and fact extractor, and talks to durable storage only
// through the injected SearchBackend and Embedder.
//
// A Client has no global state and never reads the environment; hosts
// construct one per scope with explicit dependencies.
type Client struct {
	scope     Scope
	namespace string
	backend   SearchBackend
	embedder  Embedder

	extractor  FactExtractor
	summarizer Summarizer
	buffer     *ShortTermBuffer
	shortTerm  ShortTermConfig

	weights Weights
	clock   func() time.Time
	log     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client's logger. The default logger is disabled.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithWeights sets the default fusion weights for this client.
func WithWeights(w Weights) Option {
	return func(c *Client) {
		c.weights = w
	}
}

// WithExtractor replaces the heuristic fact extractor.
func WithExtractor(e FactExtractor) Option {
	return func(c *Client) {
		c.extractor = e
	}
}

// WithSummarizer replaces the extractive summarizer used on buffer overflow.
func WithSummarizer(s Summarizer) Option {
	return func(c *Client) {
		c.summarizer = s
	}
}

// WithShortTerm sets the short-term buffer policy.
func WithShortTerm(cfg ShortTermConfig) Option {
	return func(c *Client) {
		c.shortTerm = cfg
	}
}

// withClock overrides the time source. Test hook.
func withClock(clock func() time.Time) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// New creates a memory client for the given scope.
func New(scope Scope, backend SearchBackend, embedder Embedder, opts ...Option) (*Client, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		scope:      scope,
		namespace:  scope.Namespace(),
		backend:    backend,
		embedder:   embedder,
		extractor:  &HeuristicExtractor{},
		summarizer: &ExtractiveSummarizer{},
		shortTerm:  DefaultShortTermConfig,
		weights:    DefaultWeights,
		clock:      time.Now,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "memory").Str("namespace", c.namespace).Logger()

	if err := c.weights.Validate(); err != nil {
		return nil, err
	}

	// The buffer persists its summaries through the client, but bypasses
	// short-term routing so a summary write can never re-enter the buffer.
	c.buffer = NewShortTermBuffer(c.shortTerm, c.summarizer, func(ctx context.Context, in RememberInput) (string, error) {
		return c.remember(ctx, in, false)
	})
	c.buffer.log = c.log
	return c, nil
}

// Scope returns the scope this client serves.
func (c *Client) Scope() Scope {
	return c.scope
}

// Buffer returns the client's short-term buffer.
func (c *Client) Buffer() *ShortTermBuffer {
	return c.buffer
}

// ClearShortTerm empties the short-term buffer and its running summary.
// Callers use this when a conversation thread is explicitly reset.
func (c *Client) ClearShortTerm() {
	c.buffer.Clear()
}

// Remember persists a new memory and returns its ID. The write is all or
// nothing: if embedding or the backend upsert fails, nothing is considered
// durable. Each call mints a fresh ID, so retrying a failed call is safe
// but a retry of a write that actually landed produces a duplicate
// document; callers must tolerate or dedupe upstream.
func (c *Client) Remember(ctx context.Context, in RememberInput) (string, error) {
	return c.remember(ctx, in, true)
}

func (c *Client) remember(ctx context.Context, in RememberInput, routeShortTerm bool) (string, error) {
	if strings.TrimSpace(in.Text) == "" {
		return "", goerr.New("remember requires non-empty text", goerr.T(TagValidation))
	}
	typ := in.Type
	if typ == "" {
		typ = TypeSemantic
	}

	vector, err := c.embedder.Embed(ctx, in.Text)
	if err != nil {
		return "", goerr.Wrap(err, "embed memory text",
			goerr.T(TagEmbedding), goerr.V("namespace", c.namespace))
	}
	if len(vector) == 0 {
		return "", goerr.New("embedding provider returned an empty vector",
			goerr.T(TagEmbedding), goerr.V("namespace", c.namespace))
	}

	now := c.clock().UTC()
	item := MemoryItem{
		ID:         uuid.New().String(),
		Type:       typ,
		Text:       in.Text,
		Tags:       in.Tags,
		Importance: in.Importance,
		CreatedAt:  now,
		TTL:        in.TTL,
		Attributes: in.Attributes,
		Source:     in.Source,
	}

	row := encodeDocument(item, c.namespace, vector, now)
	if err := c.backend.Upsert(ctx, c.namespace, []Row{row}); err != nil {
		return "", goerr.Wrap(err, "upsert memory document",
			goerr.T(TagBackendWrite), goerr.V("namespace", c.namespace), goerr.V("id", item.ID))
	}

	c.log.Debug().Str("id", item.ID).Str("type", string(typ)).Msg("memory stored")

	if routeShortTerm && typ == TypeShortTerm {
		if err := c.buffer.Add(ctx, item); err != nil {
			return "", err
		}
	}
	return item.ID, nil
}

// Recall retrieves the most relevant memories for the given options.
//
// With a query, the vector and keyword sub-queries run concurrently and
// their candidate lists are fused; failure of either sub-query fails the
// whole call rather than silently degrading to single-signal ranking.
// Without a query, a single composite sort (importance desc, recency desc)
// is issued and every result carries the constant score 1.0 — ordering is
// the only signal in that mode.
func (c *Client) Recall(ctx context.Context, opts RecallOptions) ([]RecallResult, error) {
	limit := clampLimit(opts.Limit)
	weights := c.weights
	if opts.Weights != nil {
		if err := opts.Weights.Validate(); err != nil {
			return nil, err
		}
		weights = *opts.Weights
	}
	filters := buildFilters(opts)

	if opts.Query == "" {
		return c.recallByOrder(ctx, filters, limit)
	}
	return c.recallSemantic(ctx, opts.Query, filters, limit, weights)
}

func (c *Client) recallByOrder(ctx context.Context, filters []Filter, limit int) ([]RecallResult, error) {
	rows, err := c.backend.Query(ctx, c.namespace, SearchQuery{
		Filters: filters,
		TopK:    limit,
		Rank: Rank{
			Kind: RankFields,
			Fields: []SortField{
				{Field: FieldImportanceScore, Desc: true},
				{Field: FieldRecencyScore, Desc: true},
			},
		},
	})
	if err != nil {
		return nil, goerr.Wrap(err, "composite-sort query",
			goerr.T(TagBackendQuery), goerr.V("namespace", c.namespace))
	}

	results := make([]RecallResult, 0, len(rows))
	for _, row := range rows {
		item, err := decodeRow(row)
		if err != nil {
			return nil, err
		}
		results = append(results, RecallResult{Item: item, Score: 1.0})
	}
	return results, nil
}

func (c *Client) recallSemantic(ctx context.Context, query string, filters []Filter, limit int, weights Weights) ([]RecallResult, error) {
	vector, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "embed recall query",
			goerr.T(TagEmbedding), goerr.V("namespace", c.namespace))
	}

	// Both sub-queries fetch limit*2 candidates so the fused ranking has
	// room to reorder before truncation.
	topK := limit * 2
	var vectorItems, keywordItems []MemoryItem

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		rows, err := c.backend.Query(egCtx, c.namespace, SearchQuery{
			Filters: filters,
			TopK:    topK,
			Rank:    Rank{Kind: RankVector, Vector: vector},
		})
		if err != nil {
			return goerr.Wrap(err, "vector sub-query",
				goerr.T(TagBackendQuery), goerr.V("namespace", c.namespace))
		}
		vectorItems, err = decodeRows(rows)
		return err
	})
	eg.Go(func() error {
		rows, err := c.backend.Query(egCtx, c.namespace, SearchQuery{
			Filters: filters,
			TopK:    topK,
			Rank:    Rank{Kind: RankText, Text: query},
		})
		if err != nil {
			return goerr.Wrap(err, "keyword sub-query",
				goerr.T(TagBackendQuery), goerr.V("namespace", c.namespace))
		}
		keywordItems, err = decodeRows(rows)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	fused := fuse(vectorItems, keywordItems, weights, c.clock().UTC())
	if len(fused) > limit {
		fused = fused[:limit]
	}
	c.log.Debug().Int("vector", len(vectorItems)).Int("keyword", len(keywordItems)).
		Int("returned", len(fused)).Msg("recall fused")
	return fused, nil
}

func decodeRows(rows []Row) ([]MemoryItem, error) {
	items := make([]MemoryItem, 0, len(rows))
	for _, row := range rows {
		item, err := decodeRow(row)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// buildFilters translates recall options into backend predicates. The same
// filter set applies to both sub-queries of semantic mode.
func buildFilters(opts RecallOptions) []Filter {
	var filters []Filter
	if len(opts.Types) > 0 {
		values := make([]string, len(opts.Types))
		for i, t := range opts.Types {
			values[i] = string(t)
		}
		filters = append(filters, Filter{Field: FieldType, Op: OpIn, Value: values})
	}
	for _, tag := range opts.Tags {
		filters = append(filters, Filter{Field: FieldTags, Op: OpContains, Value: tag})
	}
	if !opts.Since.IsZero() {
		filters = append(filters, Filter{Field: FieldCreatedAt, Op: OpGTE, Value: opts.Since.UTC()})
	}
	return filters
}
