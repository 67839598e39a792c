package memory

import (
	"sort"
	"time"
)

// recencyWindowDays is the linear decay window: items newer than now score
// close to 1, items 30 days or older contribute no recency signal but are
// never excluded.
const recencyWindowDays = 30.0

// recencyScore computes max(0, 1 - ageInDays/30) for the given timestamp.
func recencyScore(createdAt, now time.Time) float64 {
	ageDays := now.Sub(createdAt).Hours() / 24
	score := 1 - ageDays/recencyWindowDays
	if score < 0 {
		return 0
	}
	return score
}

// fuse merges the vector-similarity and keyword-relevance candidate lists
// into one ranking. Per-list scores are rank-normalized (1 - rank/len) so
// fusion stays robust to the two backends scoring on incompatible scales;
// recency is recomputed from each item's true timestamp rather than
// trusting the stored hint.
func fuse(vector, keyword []MemoryItem, w Weights, now time.Time) []RecallResult {
	type entry struct {
		item  MemoryItem
		score float64
	}
	entries := make(map[string]*entry, len(vector)+len(keyword))
	order := make([]string, 0, len(vector)+len(keyword))

	nv := float64(len(vector))
	for i, item := range vector {
		semantic := 1 - float64(i)/nv
		score := w.Semantic*semantic + w.Recency*recencyScore(item.CreatedAt, now)
		entries[item.ID] = &entry{item: item, score: score}
		order = append(order, item.ID)
	}

	nk := float64(len(keyword))
	for j, item := range keyword {
		kw := (1 - float64(j)/nk) * w.Keyword
		if e, ok := entries[item.ID]; ok {
			e.score += kw
			continue
		}
		entries[item.ID] = &entry{
			item:  item,
			score: kw + w.Recency*recencyScore(item.CreatedAt, now),
		}
		order = append(order, item.ID)
	}

	results := make([]RecallResult, 0, len(order))
	for _, id := range order {
		e := entries[id]
		results = append(results, RecallResult{Item: e.item, Score: e.score})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Item.CreatedAt.After(results[j].Item.CreatedAt)
	})
	return results
}

// clampLimit applies the default and the hard ceiling. The ceiling bounds
// fan-out and prompt-injection size, so it is enforced even when callers
// ask for more.
func clampLimit(requested int) int {
	const (
		defaultLimit = 5
		maxLimit     = 10
	)
	if requested <= 0 {
		return defaultLimit
	}
	if requested > maxLimit {
		return maxLimit
	}
	return requested
}
