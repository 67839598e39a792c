package memory

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

// Summarizer condenses evicted conversation text into a compact summary.
// The default is extractive and purely heuristic; hosts can substitute an
// LLM-backed implementation (see summarize/anthropic) without changing the
// buffer contract.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// domainKeywords are terms whose presence marks a sentence as worth
// keeping in a conversation summary.
var domainKeywords = []string{
	"important", "decision", "decided", "prefer", "user", "need",
	"must", "remember", "always", "never", "agreed",
}

var entityPattern = regexp.MustCompile(`\b[A-Z][a-z]+`)

// ExtractiveSummarizer picks the highest-scoring sentences from the input
// rather than generating new text.
type ExtractiveSummarizer struct {
	// MaxSentences caps the summary length. Default: 3.
	MaxSentences int
}

// Summarize splits the text into sentences, scores each one, and joins the
// top scorers in score order.
func (s *ExtractiveSummarizer) Summarize(_ context.Context, text string) (string, error) {
	max := s.MaxSentences
	if max <= 0 {
		max = 3
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		// Nothing sentence-shaped survived the fragment filter; keep a
		// head of the raw text so the eviction still leaves a trace.
		trimmed := strings.TrimSpace(text)
		if len(trimmed) > 160 {
			trimmed = trimmed[:160]
		}
		return trimmed, nil
	}

	type scored struct {
		text  string
		score float64
	}
	ranked := make([]scored, len(sentences))
	for i, sentence := range sentences {
		ranked[i] = scored{text: sentence, score: scoreSentence(sentence, i, len(sentences))}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	if len(ranked) > max {
		ranked = ranked[:max]
	}

	parts := make([]string, len(ranked))
	for i, r := range ranked {
		parts[i] = r.text
	}
	return strings.Join(parts, " "), nil
}

// scoreSentence blends length closeness to an ideal ~50 characters, domain
// keyword hits, a small positional bonus for early sentences, and
// capitalized-entity matches.
func scoreSentence(sentence string, position, total int) float64 {
	const idealLength = 50.0

	diff := float64(len(sentence)) - idealLength
	if diff < 0 {
		diff = -diff
	}
	lengthScore := 1 - diff/idealLength
	if lengthScore < 0 {
		lengthScore = 0
	}

	lower := strings.ToLower(sentence)
	keywordScore := 0.0
	for _, kw := range domainKeywords {
		if strings.Contains(lower, kw) {
			keywordScore += 0.5
		}
	}

	positionScore := 0.0
	if position < total/3+1 {
		positionScore = 0.15
	}

	entityScore := float64(len(entityPattern.FindAllString(sentence, -1))) * 0.25

	return lengthScore + keywordScore + positionScore + entityScore
}

// splitSentences breaks text on sentence delimiters and discards fragments
// shorter than 10 characters ("Yes.", "Ok.", etc.).
func splitSentences(text string) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	sentences := make([]string, 0, len(raw))
	for _, fragment := range raw {
		fragment = strings.TrimSpace(fragment)
		if len(fragment) < 10 {
			continue
		}
		sentences = append(sentences, fragment)
	}
	return sentences
}
