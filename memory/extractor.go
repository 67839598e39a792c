package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// FactExtractor derives candidate durable facts from one agent turn.
// The default is heuristic; hosts can substitute an LLM-backed extractor
// (see summarize/anthropic) without changing the attach contract.
type FactExtractor interface {
	// ExtractFacts analyzes an input/output pair. Structured values are
	// stringified before analysis. Returns zero or more candidates.
	ExtractFacts(ctx context.Context, input, output any) ([]Fact, error)
}

var (
	preferenceVerbs = []string{
		"prefer", "prefers", "like", "likes", "want", "wants", "need", "needs",
	}
	linkingPhrases = []string{
		"works at", "works for", "lives in", "based in", "married to",
		"reports to", "is a", "is the", "is from",
	}
	urgencyMarkers = []string{
		"important", "critical", "remember this", "must", "urgent",
	}
	trivialityMarkers = []string{
		"minor", "just a small", "by the way", "trivial",
	}
	opinionMarkers = []string{
		"i think", "i feel", "i guess", "in my opinion", "looks nice", "seems like",
	}
)

// minFactLength filters out fragments like "Yes." and "Ok.": any candidate
// whose text is this many characters or shorter is discarded.
const minFactLength = 10

// HeuristicExtractor detects preferences, entity relationships, and
// declarative factual statements with keyword heuristics. No model calls.
type HeuristicExtractor struct{}

// ExtractFacts scans the sentences of the stringified input and output.
// A sentence may trigger several detection classes; its tags accumulate.
// When factual statements and subjective opinions co-occur in the same
// turn, the factual statements win and the opinions are dropped.
func (e *HeuristicExtractor) ExtractFacts(_ context.Context, input, output any) ([]Fact, error) {
	text := stringifyTurnValue(input) + " " + stringifyTurnValue(output)

	type candidate struct {
		fact    Fact
		factual bool
		opinion bool
	}
	var candidates []candidate
	anyFactual := false
	seen := make(map[string]bool)

	for _, sentence := range splitSentences(text) {
		if len(sentence) <= minFactLength || seen[sentence] {
			continue
		}

		lower := strings.ToLower(sentence)
		var tags []string
		if containsWord(lower, preferenceVerbs) {
			tags = append(tags, "preference")
		}
		if isRelationship(sentence, lower) {
			tags = append(tags, "relationship")
		}

		factual := isFactual(sentence)
		opinion := containsAny(lower, opinionMarkers)
		if len(tags) == 0 && !factual {
			continue
		}
		if opinion && !factual && len(tags) == 0 {
			continue
		}
		if factual {
			anyFactual = true
		}

		seen[sentence] = true
		candidates = append(candidates, candidate{
			fact: Fact{
				Text:       sentence,
				Importance: assessImportance(lower),
				Tags:       tags,
			},
			factual: factual,
			opinion: opinion,
		})
	}

	facts := make([]Fact, 0, len(candidates))
	for _, c := range candidates {
		if anyFactual && c.opinion && !c.factual {
			continue
		}
		facts = append(facts, c.fact)
	}
	return facts, nil
}

// assessImportance maps urgency and triviality markers onto importance
// levels; unmarked sentences are medium.
func assessImportance(lower string) Importance {
	if containsAny(lower, urgencyMarkers) {
		return ImportanceHigh
	}
	if containsAny(lower, trivialityMarkers) {
		return ImportanceLow
	}
	return ImportanceMedium
}

// isRelationship requires two or more capitalized entity tokens plus a
// linking verb phrase.
func isRelationship(sentence, lower string) bool {
	if len(entityPattern.FindAllString(sentence, -1)) < 2 {
		return false
	}
	return containsAny(lower, linkingPhrases)
}

// isFactual marks declarative statements carrying concrete content:
// numbers (ports, amounts, dates) or multiple proper nouns.
func isFactual(sentence string) bool {
	if strings.ContainsAny(sentence, "0123456789") {
		return true
	}
	return len(entityPattern.FindAllString(sentence, -1)) >= 2
}

func containsAny(lower string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// containsWord matches whole words only, so "unlike" does not trigger the
// "like" preference verb.
func containsWord(lower string, words []string) bool {
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	for _, f := range fields {
		for _, w := range words {
			if f == w {
				return true
			}
		}
	}
	return false
}

// stringifyTurnValue renders arbitrary turn values as analyzable text.
func stringifyTurnValue(v any) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return vv
	case fmt.Stringer:
		return vv.String()
	default:
		data, err := json.Marshal(vv)
		if err != nil {
			return fmt.Sprintf("%v", vv)
		}
		return string(data)
	}
}
