package dialogue

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ent0n29/switchboard/internal/analytics"
	"github.com/ent0n29/switchboard/internal/brain"
	"github.com/ent0n29/switchboard/internal/intent"
	"github.com/ent0n29/switchboard/internal/observability"
	"github.com/ent0n29/switchboard/internal/reliability"
	"github.com/ent0n29/switchboard/internal/session"
)

const (
	SourceLocal = "local"
	SourceBrain = "brain"

	summaryMaxRunes = 120
	brainContext    = 3
)

var ErrSessionRequired = errors.New("session id is required")

// Config parameterizes one agent's engine.
type Config struct {
	Agent    string
	Rules    *intent.RuleSet
	Handlers map[intent.Label]Generator
	Schema   Schema
	// Facets label record sub-fields, e.g. "emotion", with their own rules.
	Facets map[string]*intent.RuleSet
	// RatingPattern extracts a numeric rating; group 1 wins when present.
	RatingPattern *regexp.Regexp
}

// Reply is the assembled result of one chat call.
type Reply struct {
	Agent          string            `json:"agent"`
	SessionID      string            `json:"session_id"`
	Intent         intent.Label      `json:"intent"`
	Payload        Payload           `json:"payload"`
	Facets         map[string]string `json:"facets,omitempty"`
	Confidence     float64           `json:"confidence"`
	ProcessingTime float64           `json:"processing_time"`
	Source         string            `json:"source"`
	Record         session.Record    `json:"record"`
}

type Option func(*Engine)

func WithBrain(a brain.Adapter) Option { return func(e *Engine) { e.brain = a } }

func WithMetricsSource(m MetricsSource) Option { return func(e *Engine) { e.cosmetic = m } }

func WithObservability(m *observability.Metrics) Option { return func(e *Engine) { e.metrics = m } }

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithRedactor masks messages before they are written to history.
func WithRedactor(fn func(string) string) Option { return func(e *Engine) { e.redact = fn } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// Engine routes messages for one agent: classify, dispatch, assemble, record.
type Engine struct {
	agent      string
	rules      *intent.RuleSet
	registry   *Registry
	schema     Schema
	facets     map[string]*intent.RuleSet
	facetNames []string
	rating     *regexp.Regexp

	history  session.HistoryStore
	brain    brain.Adapter
	cosmetic MetricsSource
	metrics  *observability.Metrics
	logger   *zap.Logger
	redact   func(string) string
	now      func() time.Time

	conversations atomic.Int64
}

// New validates cfg. Any label without a handler is a configuration error.
func New(cfg Config, history session.HistoryStore, opts ...Option) (*Engine, error) {
	if strings.TrimSpace(cfg.Agent) == "" {
		return nil, errors.New("agent id is required")
	}
	if cfg.Rules == nil {
		return nil, fmt.Errorf("agent %s: rule set is required", cfg.Agent)
	}
	if history == nil {
		return nil, fmt.Errorf("agent %s: history store is required", cfg.Agent)
	}
	if err := cfg.Schema.Validate(); err != nil {
		return nil, fmt.Errorf("agent %s: %w", cfg.Agent, err)
	}
	registry, err := NewRegistry(cfg.Rules, cfg.Handlers)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", cfg.Agent, err)
	}

	names := make([]string, 0, len(cfg.Facets))
	for name, rs := range cfg.Facets {
		if rs == nil {
			return nil, fmt.Errorf("agent %s: facet %q has no rules", cfg.Agent, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	e := &Engine{
		agent:      cfg.Agent,
		rules:      cfg.Rules,
		registry:   registry,
		schema:     cfg.Schema,
		facets:     cfg.Facets,
		facetNames: names,
		rating:     cfg.RatingPattern,
		history:    history,
		cosmetic:   RandomMetrics{},
		logger:     zap.NewNop(),
		redact:     func(s string) string { return s },
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Chat handles one message synchronously. A blank message never reaches
// the classifier.
func (e *Engine) Chat(ctx context.Context, sessionID, message string) (Reply, error) {
	if strings.TrimSpace(message) == "" {
		e.metrics.ObserveValidationError(e.agent)
		return Reply{}, ErrMessageRequired
	}
	if strings.TrimSpace(sessionID) == "" {
		return Reply{}, ErrSessionRequired
	}

	start := time.Now()
	label := e.rules.Classify(message)
	payload := e.registry.Dispatch(label).Generate(message, e.cosmetic)

	source := SourceLocal
	if text, ok := e.askBrain(ctx, sessionID, label, message); ok {
		payload.Text = text
		source = SourceBrain
	}
	payload = e.schema.Assemble(payload)

	facets := e.classifyFacets(message)
	record := session.Record{
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		Agent:          e.agent,
		Timestamp:      e.now(),
		RawMessage:     e.redact(message),
		Intent:         string(label),
		Facets:         facets,
		Rating:         extractRating(e.rating, message),
		PayloadSummary: summarize(payload.Text),
	}
	if e.history.Append(sessionID, record) {
		e.metrics.ObserveEviction(e.agent)
	}
	e.conversations.Add(1)
	e.metrics.ObserveChat(e.agent, string(label), time.Since(start))

	e.logger.Debug("chat handled",
		zap.String("agent", e.agent),
		zap.String("session_id", sessionID),
		zap.String("intent", string(label)),
		zap.String("source", source))

	return Reply{
		Agent:          e.agent,
		SessionID:      sessionID,
		Intent:         label,
		Payload:        payload,
		Facets:         facets,
		Confidence:     e.cosmetic.Confidence(),
		ProcessingTime: e.cosmetic.ProcessingTime(),
		Source:         source,
		Record:         record,
	}, nil
}

// askBrain calls the external responder once. Any failure is logged and
// the local text is kept.
func (e *Engine) askBrain(ctx context.Context, sessionID string, label intent.Label, message string) (string, bool) {
	if e.brain == nil {
		return "", false
	}
	recent := e.history.Recent(sessionID, brainContext)
	history := make([]string, 0, len(recent))
	for _, r := range recent {
		history = append(history, r.RawMessage)
	}

	resp, err := e.brain.Respond(ctx, brain.Request{
		Agent:     e.agent,
		SessionID: sessionID,
		Intent:    string(label),
		InputText: e.redact(message),
		Context:   history,
	})
	if err != nil {
		e.logger.Warn("brain call failed, using local generator",
			zap.String("agent", e.agent),
			zap.String("brain", e.brain.Name()),
			zap.Bool("retryable", reliability.IsRetryable(err)),
			zap.Error(err))
		e.metrics.ObserveBrainFallback(e.agent, reliability.FallbackReason(err))
		return "", false
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		e.metrics.ObserveBrainFallback(e.agent, reliability.ReasonEmpty)
		return "", false
	}
	return text, true
}

func (e *Engine) classifyFacets(message string) map[string]string {
	if len(e.facetNames) == 0 {
		return nil
	}
	out := make(map[string]string, len(e.facetNames))
	for _, name := range e.facetNames {
		out[name] = string(e.facets[name].Classify(message))
	}
	return out
}

// Classify runs only the intent rules.
func (e *Engine) Classify(message string) intent.Label {
	return e.rules.Classify(message)
}

// Recent returns up to n records of the session, oldest first.
func (e *Engine) Recent(sessionID string, n int) []session.Record {
	return e.history.Recent(sessionID, n)
}

// Summary aggregates the session's retained history.
func (e *Engine) Summary(sessionID string) analytics.Summary {
	state, ok := e.history.Get(sessionID)
	var records []session.Record
	if ok {
		records = state.History
	}
	return analytics.Summarize(records, e.now(), analytics.SummaryOptions{Facets: e.facetNames})
}

// Forget drops the session's history, e.g. when the session expires.
func (e *Engine) Forget(sessionID string) {
	e.history.Drop(sessionID)
}

func (e *Engine) Agent() string { return e.agent }

func (e *Engine) Conversations() int64 { return e.conversations.Load() }

func (e *Engine) HistoryCapacity() int { return e.history.Capacity() }

func (e *Engine) Fields() []string { return append([]string(nil), e.schema.Fields...) }

func (e *Engine) FacetNames() []string { return append([]string(nil), e.facetNames...) }

// Intents lists the labels in rule declaration order, fallback last.
func (e *Engine) Intents() []intent.Label { return e.rules.Labels() }

func (e *Engine) BrainName() string {
	if e.brain == nil {
		return "off"
	}
	return e.brain.Name()
}

func extractRating(re *regexp.Regexp, message string) *float64 {
	if re == nil {
		return nil
	}
	m := re.FindStringSubmatch(message)
	if m == nil {
		return nil
	}
	raw := m[0]
	if len(m) > 1 && m[1] != "" {
		raw = m[1]
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return nil
	}
	return &v
}

func summarize(text string) string {
	line := text
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	runes := []rune(strings.TrimSpace(line))
	if len(runes) <= summaryMaxRunes {
		return string(runes)
	}
	return string(runes[:summaryMaxRunes-1]) + "…"
}
