package intent

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Label is the classified category of a user message.
type Label string

// Fallback is returned when no rule matches.
const Fallback Label = "general"

var (
	ErrEmptyLabel   = errors.New("rule label is required")
	ErrNilMatcher   = errors.New("rule matcher is required")
	ErrNoFallback   = errors.New("fallback label is required")
	ErrEmptyPattern = errors.New("matcher pattern is empty")
)

// Matcher tests a case-folded message.
type Matcher interface {
	Match(normalized string) bool
}

// Keywords matches when any keyword occurs as a substring.
type Keywords []string

func (k Keywords) Match(normalized string) bool {
	for _, kw := range k {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(normalized, kw) {
			return true
		}
	}
	return false
}

// Pattern matches a regular expression against the message.
type Pattern struct {
	re *regexp.Regexp
}

// NewPattern compiles expr case-insensitively.
func NewPattern(expr string) (Pattern, error) {
	if strings.TrimSpace(expr) == "" {
		return Pattern{}, ErrEmptyPattern
	}
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("compile pattern %q: %w", expr, err)
	}
	return Pattern{re: re}, nil
}

func (p Pattern) Match(normalized string) bool {
	return p.re != nil && p.re.MatchString(normalized)
}

func (p Pattern) String() string {
	if p.re == nil {
		return ""
	}
	return strings.TrimPrefix(p.re.String(), "(?i)")
}

// Always matches every message. It backs the fallback rule.
type Always struct{}

func (Always) Match(string) bool { return true }

// Rule maps a matcher to a label. Order is the declaration index.
type Rule struct {
	Label   Label
	Matcher Matcher
	Order   int
}

// RuleSet is an ordered, immutable list of rules closed by one fallback.
type RuleSet struct {
	rules    []Rule
	fallback Label
}

// NewRuleSet validates rules and fixes their order to the declaration order.
func NewRuleSet(fallback Label, rules ...Rule) (*RuleSet, error) {
	if strings.TrimSpace(string(fallback)) == "" {
		return nil, ErrNoFallback
	}
	out := make([]Rule, 0, len(rules))
	for i, r := range rules {
		if strings.TrimSpace(string(r.Label)) == "" {
			return nil, fmt.Errorf("rule %d: %w", i, ErrEmptyLabel)
		}
		if r.Matcher == nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, r.Label, ErrNilMatcher)
		}
		r.Order = i
		out = append(out, r)
	}
	return &RuleSet{rules: out, fallback: fallback}, nil
}

// Classify returns the label of the first matching rule, or the fallback.
func (s *RuleSet) Classify(message string) Label {
	return Classify(message, s.rules, s.fallback)
}

// Fallback returns the unconditional last-resort label.
func (s *RuleSet) Fallback() Label { return s.fallback }

// Rules returns the declared rules followed by the fallback rule.
func (s *RuleSet) Rules() []Rule {
	out := make([]Rule, 0, len(s.rules)+1)
	out = append(out, s.rules...)
	out = append(out, Rule{Label: s.fallback, Matcher: Always{}, Order: len(s.rules)})
	return out
}

// Labels lists every label the set can produce, in first-declared order.
func (s *RuleSet) Labels() []Label {
	seen := make(map[Label]struct{}, len(s.rules)+1)
	out := make([]Label, 0, len(s.rules)+1)
	for _, r := range s.Rules() {
		if _, ok := seen[r.Label]; ok {
			continue
		}
		seen[r.Label] = struct{}{}
		out = append(out, r.Label)
	}
	return out
}

// Normalize case-folds the message. Nothing else is changed.
func Normalize(message string) string {
	return strings.ToLower(message)
}

// Classify evaluates rules strictly in slice order. Overlapping rules are
// resolved by position only.
func Classify(message string, rules []Rule, fallback Label) Label {
	normalized := Normalize(message)
	for _, r := range rules {
		if r.Matcher != nil && r.Matcher.Match(normalized) {
			return r.Label
		}
	}
	return fallback
}
