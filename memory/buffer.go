package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ShortTermConfig is the buffer policy.
type ShortTermConfig struct {
	// TokenLimit is the estimated token budget. Default: 4000.
	TokenLimit int `yaml:"tokenLimit"`

	// SummarizeOverflow folds evicted items into a running extractive
	// summary that is persisted as a durable memory. When false, overflow
	// only trims the oldest items.
	SummarizeOverflow bool `yaml:"summarizeOverflow"`
}

// DefaultShortTermConfig matches the engine defaults.
var DefaultShortTermConfig = ShortTermConfig{
	TokenLimit:        4000,
	SummarizeOverflow: true,
}

// PersistFunc stores a durable memory on behalf of the buffer.
// The owning client supplies one that writes through its backend.
type PersistFunc func(ctx context.Context, in RememberInput) (string, error)

// ShortTermBuffer is a per-scope rolling window of recent conversational
// items bounded by an estimated token budget. Items are ephemeral: they
// exist only in process memory until folded into a persisted summary or
// trimmed. The buffer is owned by a single client; concurrent Add calls on
// the same scope are serialized by the buffer's own lock because overflow
// handling is a check-and-mutate sequence that issues a nested write.
type ShortTermBuffer struct {
	mu         sync.Mutex
	items      []MemoryItem
	summary    string
	cfg        ShortTermConfig
	summarizer Summarizer
	persist    PersistFunc
	log        zerolog.Logger
}

// NewShortTermBuffer creates a buffer with the given policy. A nil persist
// function disables summary persistence (the in-memory summary still
// accumulates).
func NewShortTermBuffer(cfg ShortTermConfig, summarizer Summarizer, persist PersistFunc) *ShortTermBuffer {
	if cfg.TokenLimit <= 0 {
		cfg.TokenLimit = DefaultShortTermConfig.TokenLimit
	}
	if summarizer == nil {
		summarizer = &ExtractiveSummarizer{}
	}
	return &ShortTermBuffer{
		cfg:        cfg,
		summarizer: summarizer,
		persist:    persist,
		log:        zerolog.Nop(),
	}
}

// estimateTokens approximates the prompt cost of one buffered item:
// ~4 characters per token plus a fixed per-item overhead.
func estimateTokens(item MemoryItem) int {
	return (len(item.Text)+3)/4 + 20
}

// Add appends an item and handles overflow when the estimated total
// exceeds the token budget.
func (b *ShortTermBuffer) Add(ctx context.Context, item MemoryItem) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = append(b.items, item)
	if b.totalTokens() <= b.cfg.TokenLimit {
		return nil
	}
	if !b.cfg.SummarizeOverflow {
		b.trimOldest()
		return nil
	}
	return b.summarizeAndEvict(ctx)
}

// Items returns a copy of the buffered items in chronological order.
func (b *ShortTermBuffer) Items() []MemoryItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]MemoryItem(nil), b.items...)
}

// Summary returns the accumulated summary text.
func (b *ShortTermBuffer) Summary() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.summary
}

// Clear empties items and summary. Used when a conversation thread is
// explicitly reset by the caller.
func (b *ShortTermBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = nil
	b.summary = ""
}

func (b *ShortTermBuffer) totalTokens() int {
	total := 0
	for _, item := range b.items {
		total += estimateTokens(item)
	}
	return total
}

// trimOldest removes the oldest items until under budget. Overflow alone
// never empties the buffer: the newest item always survives.
func (b *ShortTermBuffer) trimOldest() {
	for len(b.items) > 1 && b.totalTokens() > b.cfg.TokenLimit {
		b.items = b.items[1:]
	}
}

// summarizeAndEvict walks backward from the most recent item spending the
// token budget; everything that does not fit is the eviction set. The set
// is folded into the running summary, which is then persisted as a
// shortTerm memory through the owning client.
func (b *ShortTermBuffer) summarizeAndEvict(ctx context.Context) error {
	budget := b.cfg.TokenLimit
	keepFrom := len(b.items)
	for i := len(b.items) - 1; i >= 0; i-- {
		cost := estimateTokens(b.items[i])
		if cost > budget {
			break
		}
		budget -= cost
		keepFrom = i
	}

	evicted := b.items[:keepFrom]
	if len(evicted) == 0 {
		return nil
	}

	texts := make([]string, len(evicted))
	for i, item := range evicted {
		texts[i] = item.Text
	}
	fresh, err := b.summarizer.Summarize(ctx, strings.Join(texts, " "))
	if err != nil {
		// Undo nothing: the items stay buffered so a later Add retries.
		return err
	}

	// Summaries accumulate monotonically for the buffer's lifetime.
	if b.summary != "" && fresh != "" {
		b.summary = b.summary + " " + fresh
	} else if fresh != "" {
		b.summary = fresh
	}
	b.items = append([]MemoryItem(nil), b.items[keepFrom:]...)

	b.log.Debug().Int("evicted", len(evicted)).Int("kept", len(b.items)).
		Msg("short-term buffer folded into summary")

	if b.persist == nil || b.summary == "" {
		return nil
	}
	_, err = b.persist(ctx, RememberInput{
		Text:       b.summary,
		Type:       TypeShortTerm,
		Tags:       []string{"summary", "conversation"},
		Importance: ImportanceMedium,
	})
	return err
}
