package memstore

import (
	"sort"
	"strconv"
	"strings"
)

// SearchResult is one scored hit from Search.
type SearchResult struct {
	Entry     Entry
	Relevance float64
}

// Search returns up to limit entries. If requiredTags is non-empty,
// the candidate set is the intersection of the per-tag id sets; else
// the full entry set. If query is non-empty, each candidate's text is
// scored by token-overlap similarity; else candidates are scored by
// recency. Results are sorted by score descending, recency as
// tiebreaker. Increments total_searches.
func (s *Store) Search(query string, requiredTags []string, limit int) ([]SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInitLocked(); err != nil {
		return nil, err
	}
	s.counters.TotalSearches++

	var candidates []Entry
	if len(requiredTags) > 0 {
		allowed := s.tagIndex.intersect(requiredTags)
		for _, e := range s.entries {
			if allowed[e.MemoryID] {
				candidates = append(candidates, e)
			}
		}
	} else {
		candidates = append(candidates, s.entries...)
	}

	queryTokens := tokenize(query)
	results := make([]SearchResult, len(candidates))
	for i, e := range candidates {
		var score float64
		if query != "" {
			score = tokenOverlapScore(queryTokens, tokenize(e.Text))
			if strings.Contains(strings.ToLower(e.Text), strings.ToLower(query)) {
				score += 0.5 // substring hits rank above pure token overlap
			}
		} else {
			score = float64(e.Timestamp.Unix())
		}
		results[i] = SearchResult{Entry: e, Relevance: score}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Relevance != results[j].Relevance {
			return results[i].Relevance > results[j].Relevance
		}
		return results[i].Entry.Timestamp.After(results[j].Entry.Timestamp)
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// tokenize splits text into lowercase whitespace-delimited tokens.
func tokenize(text string) map[string]bool {
	fields := strings.Fields(strings.ToLower(text))
	out := make(map[string]bool, len(fields))
	for _, f := range fields {
		out[f] = true
	}
	return out
}

// tokenOverlapScore is the fraction of query tokens present in the
// candidate's token set — deterministic, cheap, no embedding model
// required.
func tokenOverlapScore(query, candidate map[string]bool) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for t := range query {
		if candidate[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}

// Summarize produces a deterministic abstract of the last windowSize
// turns, optionally filtered to entries whose text contains
// focusTopic. The summary is a rule-based digest concatenating the
// highest-importance preview lines, not an LLM call.
func (s *Store) Summarize(windowSize int, focusTopic string) (summary string, keyPoints []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := 0
	if len(s.entries) > windowSize {
		start = len(s.entries) - windowSize
	}
	window := s.entries[start:]

	var candidates []Entry
	for _, e := range window {
		if focusTopic != "" && !strings.Contains(strings.ToLower(e.Text), strings.ToLower(focusTopic)) {
			continue
		}
		candidates = append(candidates, e)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Importance > candidates[j].Importance
	})

	const maxKeyPoints = 5
	for i, e := range candidates {
		if i >= maxKeyPoints {
			break
		}
		keyPoints = append(keyPoints, preview(e.Text, 120))
	}

	var sb strings.Builder
	sb.WriteString("Summary of last ")
	sb.WriteString(strconv.Itoa(len(window)))
	sb.WriteString(" turn(s)")
	if focusTopic != "" {
		sb.WriteString(" focused on \"" + focusTopic + "\"")
	}
	sb.WriteString(":\n")
	for _, kp := range keyPoints {
		sb.WriteString("- ")
		sb.WriteString(kp)
		sb.WriteString("\n")
	}
	return sb.String(), keyPoints
}

func preview(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
