package memory

import "strings"

// Scorer ranks a candidate entry against the query terms. Higher is better;
// a score <= 0 drops the entry from results.
type Scorer interface {
	Score(terms []string, entry Entry) float64
}

type ScorerFunc func(terms []string, entry Entry) float64

func (f ScorerFunc) Score(terms []string, entry Entry) float64 { return f(terms, entry) }

// OverlapScorer counts keyword hits twice and plain substring hits once,
// with a small bump for tag matches and high priority entries.
type OverlapScorer struct{}

func (OverlapScorer) Score(terms []string, entry Entry) float64 {
	if len(terms) == 0 {
		return 0
	}
	keywords := make(map[string]struct{}, len(entry.Keywords))
	for _, k := range entry.Keywords {
		keywords[k] = struct{}{}
	}
	tags := make(map[string]struct{}, len(entry.Tags))
	for _, t := range entry.Tags {
		tags[t] = struct{}{}
	}
	content := strings.ToLower(entry.Content)

	score := 0.0
	for _, term := range terms {
		switch {
		case has(keywords, term):
			score += 2
		case strings.Contains(content, term):
			score++
		}
		if has(tags, term) {
			score += 0.5
		}
	}
	if score > 0 && entry.Priority == "high" {
		score += 0.25
	}
	return score / float64(len(terms))
}

func has(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
