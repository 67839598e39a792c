package memory

import (
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Type classifies a memory item.
type Type string

const (
	// TypeShortTerm marks items that live in the rolling conversation
	// buffer until folded into a durable summary.
	TypeShortTerm Type = "shortTerm"

	// TypeEpisodic marks records of individual agent interactions.
	TypeEpisodic Type = "episodic"

	// TypeSemantic marks durable facts. This is the default for Remember.
	TypeSemantic Type = "semantic"
)

// Importance expresses how much ranking weight an item should carry.
type Importance string

const (
	ImportanceLow    Importance = "low"
	ImportanceMedium Importance = "medium"
	ImportanceHigh   Importance = "high"
)

// Score maps an importance level to its numeric ranking value.
// Unset importance counts as medium.
func (i Importance) Score() int {
	switch i {
	case ImportanceHigh:
		return 3
	case ImportanceLow:
		return 1
	default:
		return 2
	}
}

// Scope identifies a retrieval namespace. WorkspaceID is required; the
// remaining fields narrow the namespace further. Two scopes with identical
// field values always resolve to the same namespace.
type Scope struct {
	WorkspaceID string `json:"workspaceId" yaml:"workspaceId"`
	UserID      string `json:"userId,omitempty" yaml:"userId"`
	AgentID     string `json:"agentId,omitempty" yaml:"agentId"`
	ThreadID    string `json:"threadId,omitempty" yaml:"threadId"`
}

// namespacePrefix is the fixed literal every namespace name starts with.
const namespacePrefix = "memory"

// Namespace returns the colon-joined namespace name for this scope.
func (s Scope) Namespace() string {
	parts := []string{namespacePrefix, s.WorkspaceID}
	for _, p := range []string{s.UserID, s.AgentID, s.ThreadID} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ":")
}

// Validate checks that the scope can address a namespace.
func (s Scope) Validate() error {
	if strings.TrimSpace(s.WorkspaceID) == "" {
		return goerr.New("scope requires a workspace ID", goerr.T(TagInvalidScope))
	}
	return nil
}

// MemoryItem is a single durable or transient unit of memory. Items are
// immutable after creation; updates are new writes with new IDs.
type MemoryItem struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	Text       string         `json:"text"`
	Tags       []string       `json:"tags,omitempty"`
	Importance Importance     `json:"importance,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	TTL        string         `json:"ttl,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Source     string         `json:"source,omitempty"`
}

// HasTag reports whether the item carries the given tag.
func (m MemoryItem) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Fact is a candidate durable statement derived from an agent interaction.
type Fact struct {
	Text       string
	Importance Importance
	Tags       []string
}

// RememberInput describes a new memory to persist.
type RememberInput struct {
	// Text is the memory content. Required.
	Text string

	// Type defaults to TypeSemantic.
	Type Type

	Tags       []string
	Importance Importance

	// TTL is a duration string such as "90d". Absence means no expiry.
	// Retention is applied externally; the engine only records the value.
	TTL string

	Attributes map[string]any

	// Source tags provenance, e.g. "chat" or "agent".
	Source string
}

// RecallOptions parameterize a recall query.
type RecallOptions struct {
	// Query switches recall into semantic mode when non-empty.
	Query string

	// Types is an inclusion filter on memory type.
	Types []Type

	// Tags is an AND filter: every listed tag must be present.
	Tags []string

	// Since is an inclusive lower bound on CreatedAt.
	Since time.Time

	// Limit defaults to 5 and is clamped to 10.
	Limit int

	// Weights overrides the client's fusion weights for this call.
	Weights *Weights
}

// RecallResult pairs an item with its score. The score is only meaningful
// relative to other results from the same Recall call; it is not persisted.
type RecallResult struct {
	Item  MemoryItem
	Score float64
}

// Weights control the fusion of ranking signals in semantic recall.
// All weights must be non-negative.
type Weights struct {
	Semantic float64 `json:"semantic" yaml:"semantic"`
	Keyword  float64 `json:"keyword" yaml:"keyword"`
	Recency  float64 `json:"recency" yaml:"recency"`
}

// DefaultWeights is the standard fusion weighting.
var DefaultWeights = Weights{Semantic: 0.6, Keyword: 0.25, Recency: 0.15}

// Validate rejects negative weights.
func (w Weights) Validate() error {
	if w.Semantic < 0 || w.Keyword < 0 || w.Recency < 0 {
		return goerr.New("fusion weights must be non-negative",
			goerr.T(TagValidation),
			goerr.V("weights", w))
	}
	return nil
}
