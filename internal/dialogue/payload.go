package dialogue

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/switchboard/internal/intent"
)

var (
	ErrMessageRequired = errors.New("message is required")
	ErrMissingHandler  = errors.New("no handler registered for intent")
	ErrNoFields        = errors.New("schema declares no fields")
	ErrReservedField   = errors.New("field name is reserved")
)

// DefaultText is used when neither the generator nor the schema supplies text.
const DefaultText = "I'm here to help. Could you tell me a bit more about what you need?"

// AnalysisBlock is the fixed-shape record behind every payload field.
type AnalysisBlock struct {
	Scores          map[string]float64 `json:"scores"`
	Insights        []string           `json:"insights"`
	Recommendations []string           `json:"recommendations"`
}

// Payload is a generator's reply before and after assembly.
type Payload struct {
	Text   string                   `json:"text"`
	Fields map[string]AnalysisBlock `json:"fields"`
}

// reserved names collide with the top-level chat response keys.
var reserved = map[string]struct{}{
	"success":         {},
	"response":        {},
	"message":         {},
	"intent":          {},
	"confidence":      {},
	"processing_time": {},
	"source":          {},
	"facets":          {},
	"memory_id":       {},
}

// Schema is the constant set of field keys an agent always returns.
type Schema struct {
	Fields      []string
	DefaultText string
}

func (s Schema) Validate() error {
	if len(s.Fields) == 0 {
		return ErrNoFields
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("empty field name in schema")
		}
		if _, ok := reserved[f]; ok {
			return fmt.Errorf("%q: %w", f, ErrReservedField)
		}
		if _, ok := seen[f]; ok {
			return fmt.Errorf("duplicate field %q in schema", f)
		}
		seen[f] = struct{}{}
	}
	return nil
}

// Assemble returns a payload carrying exactly the declared fields, with no
// nil collections and non-empty text. Undeclared fields are dropped.
func (s Schema) Assemble(p Payload) Payload {
	out := Payload{
		Text:   strings.TrimSpace(p.Text),
		Fields: make(map[string]AnalysisBlock, len(s.Fields)),
	}
	if out.Text == "" {
		out.Text = strings.TrimSpace(s.DefaultText)
	}
	if out.Text == "" {
		out.Text = DefaultText
	}
	for _, name := range s.Fields {
		out.Fields[name] = normalizeBlock(p.Fields[name])
	}
	return out
}

func normalizeBlock(b AnalysisBlock) AnalysisBlock {
	out := AnalysisBlock{
		Scores:          make(map[string]float64, len(b.Scores)),
		Insights:        make([]string, 0, len(b.Insights)),
		Recommendations: make([]string, 0, len(b.Recommendations)),
	}
	for k, v := range b.Scores {
		out.Scores[k] = v
	}
	out.Insights = append(out.Insights, b.Insights...)
	out.Recommendations = append(out.Recommendations, b.Recommendations...)
	return out
}

// Generator produces a payload from the raw message. Only cosmetic values
// may come from metrics; everything else depends on intent and message.
type Generator interface {
	Generate(message string, metrics MetricsSource) Payload
}

type GeneratorFunc func(message string, metrics MetricsSource) Payload

func (f GeneratorFunc) Generate(message string, metrics MetricsSource) Payload {
	return f(message, metrics)
}

// Registry maps every label of a rule set to exactly one generator.
type Registry struct {
	handlers map[intent.Label]Generator
	fallback intent.Label
}

// NewRegistry fails when any label the rules can produce has no handler.
func NewRegistry(rules *intent.RuleSet, handlers map[intent.Label]Generator) (*Registry, error) {
	if rules == nil {
		return nil, errors.New("rule set is required")
	}
	out := make(map[intent.Label]Generator, len(handlers))
	for _, label := range rules.Labels() {
		h, ok := handlers[label]
		if !ok || h == nil {
			return nil, fmt.Errorf("%w: %q", ErrMissingHandler, label)
		}
		out[label] = h
	}
	return &Registry{handlers: out, fallback: rules.Fallback()}, nil
}

// Dispatch returns the generator for label. Labels outside the rule set
// cannot be produced by Classify; they resolve to the fallback handler.
func (r *Registry) Dispatch(label intent.Label) Generator {
	if h, ok := r.handlers[label]; ok {
		return h
	}
	return r.handlers[r.fallback]
}

func (r *Registry) Labels() []intent.Label {
	out := make([]intent.Label, 0, len(r.handlers))
	for l := range r.handlers {
		out = append(out, l)
	}
	return out
}
