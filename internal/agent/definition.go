package agent

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const defaultHistoryLimit = 10

var ErrInvalidDefinition = errors.New("invalid agent definition")

// reservedIDs are top-level service routes that would shadow an agent.
var reservedIDs = map[string]struct{}{
	"healthz": {},
	"readyz":  {},
	"metrics": {},
	"v1":      {},
}

// Definition is the YAML form of one agent.
type Definition struct {
	ID            string              `yaml:"id" json:"id"`
	Name          string              `yaml:"name" json:"name"`
	Title         string              `yaml:"title" json:"title"`
	Description   string              `yaml:"description" json:"description"`
	Rating        float64             `yaml:"rating" json:"rating"`
	HistoryLimit  int                 `yaml:"history_limit" json:"history_limit"`
	Fallback      string              `yaml:"fallback" json:"fallback"`
	DefaultText   string              `yaml:"default_text" json:"-"`
	Fields        []string            `yaml:"fields" json:"fields"`
	Rules         []RuleDef           `yaml:"rules" json:"-"`
	Intents       map[string]Template `yaml:"intents" json:"-"`
	Facets        []FacetDef          `yaml:"facets" json:"-"`
	RatingPattern string              `yaml:"rating_pattern" json:"-"`
	Memory        *MemoryDef          `yaml:"memory,omitempty" json:"-"`
}

// RuleDef matches by keywords or by a regular expression, not both.
type RuleDef struct {
	Intent   string   `yaml:"intent"`
	Keywords []string `yaml:"keywords"`
	Pattern  string   `yaml:"pattern"`
}

type FacetDef struct {
	Name     string    `yaml:"name"`
	Fallback string    `yaml:"fallback"`
	Rules    []RuleDef `yaml:"rules"`
}

// MemoryDef makes chats with Intent persist into the knowledge store.
type MemoryDef struct {
	Intent   string `yaml:"intent"`
	Type     string `yaml:"type"`
	Priority string `yaml:"priority"`
}

// Template renders one intent's reply. Variants are picked by message hash.
type Template struct {
	Header   string                   `yaml:"header"`
	Variants []string                 `yaml:"variants"`
	Fields   map[string]FieldTemplate `yaml:"fields"`
}

type FieldTemplate struct {
	Scores          map[string][]float64 `yaml:"scores"`
	Insights        []string             `yaml:"insights"`
	Recommendations []string             `yaml:"recommendations"`
}

func (d Definition) Capacity() int {
	if d.HistoryLimit <= 0 {
		return defaultHistoryLimit
	}
	return d.HistoryLimit
}

func (d Definition) FallbackLabel() string {
	if f := strings.TrimSpace(d.Fallback); f != "" {
		return f
	}
	return "general"
}

// MemoryIntent returns the intent whose chats are stored as memories.
func (d Definition) MemoryIntent() (string, bool) {
	if d.Memory == nil || strings.TrimSpace(d.Memory.Intent) == "" {
		return "", false
	}
	return d.Memory.Intent, true
}

// Validate checks the parts yaml decoding cannot. Handler totality is
// checked later when the engine is built.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDefinition)
	}
	if strings.ContainsAny(d.ID, "/ ") {
		return fmt.Errorf("%w: %s: id must be a single path segment", ErrInvalidDefinition, d.ID)
	}
	if _, ok := reservedIDs[d.ID]; ok {
		return fmt.Errorf("%w: %s: id collides with a service route", ErrInvalidDefinition, d.ID)
	}
	if len(d.Rules) == 0 {
		return fmt.Errorf("%w: %s: at least one rule is required", ErrInvalidDefinition, d.ID)
	}
	for i, r := range d.Rules {
		if err := r.validate(); err != nil {
			return fmt.Errorf("%w: %s: rule %d: %v", ErrInvalidDefinition, d.ID, i, err)
		}
	}
	for name, tpl := range d.Intents {
		for field, ft := range tpl.Fields {
			for score, bounds := range ft.Scores {
				if len(bounds) != 2 || bounds[0] > bounds[1] {
					return fmt.Errorf("%w: %s: intent %s field %s score %s needs [min, max]", ErrInvalidDefinition, d.ID, name, field, score)
				}
			}
		}
	}
	for _, f := range d.Facets {
		if strings.TrimSpace(f.Name) == "" || strings.TrimSpace(f.Fallback) == "" {
			return fmt.Errorf("%w: %s: facet needs name and fallback", ErrInvalidDefinition, d.ID)
		}
		for i, r := range f.Rules {
			if err := r.validate(); err != nil {
				return fmt.Errorf("%w: %s: facet %s rule %d: %v", ErrInvalidDefinition, d.ID, f.Name, i, err)
			}
		}
	}
	if d.RatingPattern != "" {
		if _, err := regexp.Compile(d.RatingPattern); err != nil {
			return fmt.Errorf("%w: %s: rating_pattern: %v", ErrInvalidDefinition, d.ID, err)
		}
	}
	return nil
}

func (r RuleDef) validate() error {
	if strings.TrimSpace(r.Intent) == "" {
		return errors.New("intent is required")
	}
	hasKeywords := len(r.Keywords) > 0
	hasPattern := strings.TrimSpace(r.Pattern) != ""
	if hasKeywords == hasPattern {
		return errors.New("exactly one of keywords or pattern is required")
	}
	return nil
}
