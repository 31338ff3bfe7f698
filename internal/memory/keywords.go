package memory

import (
	"strings"
	"unicode"
)

const DefaultKeywordLimit = 10

const minKeywordRunes = 3

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {}, "you": {}, "all": {},
	"any": {}, "can": {}, "had": {}, "her": {}, "was": {}, "one": {}, "our": {}, "out": {},
	"day": {}, "get": {}, "has": {}, "him": {}, "his": {}, "how": {}, "its": {}, "may": {},
	"new": {}, "now": {}, "old": {}, "see": {}, "two": {}, "who": {}, "did": {}, "she": {},
	"use": {}, "way": {}, "too": {}, "this": {}, "that": {}, "with": {}, "have": {}, "from": {},
	"they": {}, "will": {}, "been": {}, "were": {}, "what": {}, "when": {}, "your": {}, "said": {},
	"each": {}, "which": {}, "their": {}, "there": {}, "would": {}, "about": {}, "could": {},
	"into": {}, "them": {}, "then": {}, "than": {}, "some": {}, "very": {}, "just": {},
	"also": {}, "only": {}, "over": {}, "such": {}, "here": {}, "where": {}, "after": {},
	"before": {}, "because": {}, "should": {}, "remember": {}, "please": {}, "today": {},
}

// ExtractKeywords lowercases text, strips punctuation, splits on whitespace,
// drops stop words and tokens shorter than three runes, dedupes and keeps the
// first limit tokens. limit <= 0 means no cap.
func ExtractKeywords(text string, limit int) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, text)

	seen := make(map[string]struct{})
	out := make([]string, 0, 8)
	for _, tok := range strings.Fields(cleaned) {
		if len([]rune(tok)) < minKeywordRunes {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// SplitTags parses a comma separated tag list, as sent by upload forms.
func SplitTags(raw string) []string {
	return normalizeTags(strings.Split(raw, ","))
}
