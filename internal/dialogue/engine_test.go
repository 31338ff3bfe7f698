package dialogue

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/ent0n29/switchboard/internal/analytics"
	"github.com/ent0n29/switchboard/internal/brain"
	"github.com/ent0n29/switchboard/internal/intent"
	"github.com/ent0n29/switchboard/internal/session"
)

func testRules(t *testing.T) *intent.RuleSet {
	t.Helper()
	rs, err := intent.NewRuleSet(intent.Fallback,
		intent.Rule{Label: "vulnerability", Matcher: intent.Keywords{"vulnerab", "sql injection"}},
		intent.Rule{Label: "threat", Matcher: intent.Keywords{"malware", "phishing"}},
	)
	if err != nil {
		t.Fatalf("NewRuleSet() error = %v", err)
	}
	return rs
}

func staticGenerator(text string, recs ...string) Generator {
	return GeneratorFunc(func(message string, m MetricsSource) Payload {
		return Payload{
			Text: text,
			Fields: map[string]AnalysisBlock{
				"analysis": {
					Scores:          map[string]float64{"risk": m.Score(1, 3)},
					Recommendations: recs,
				},
			},
		}
	})
}

func testConfig(t *testing.T) Config {
	return Config{
		Agent: "security",
		Rules: testRules(t),
		Handlers: map[intent.Label]Generator{
			"vulnerability": staticGenerator("Vulnerability Assessment Report", "patch", "scan weekly"),
			"threat":        staticGenerator("Threat Brief", "isolate host"),
			intent.Fallback: staticGenerator(""),
		},
		Schema: Schema{Fields: []string{"analysis", "threat_intel"}},
	}
}

func newTestEngine(t *testing.T, capacity int, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithMetricsSource(FixedMetrics{Processing: 1.2, Confident: 0.9})}, opts...)
	e, err := New(testConfig(t), session.NewBoundedHistory(capacity), opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func TestNewRejectsMissingHandler(t *testing.T) {
	cfg := testConfig(t)
	delete(cfg.Handlers, "threat")
	_, err := New(cfg, session.NewBoundedHistory(5))
	if !errors.Is(err, ErrMissingHandler) {
		t.Fatalf("New() error = %v, want ErrMissingHandler", err)
	}

	cfg = testConfig(t)
	delete(cfg.Handlers, intent.Fallback)
	if _, err := New(cfg, session.NewBoundedHistory(5)); !errors.Is(err, ErrMissingHandler) {
		t.Fatalf("New() without fallback handler error = %v, want ErrMissingHandler", err)
	}
}

func TestNewRejectsReservedField(t *testing.T) {
	cfg := testConfig(t)
	for _, name := range []string{"processing_time", "memory_id"} {
		cfg.Schema.Fields = []string{name}
		if _, err := New(cfg, session.NewBoundedHistory(5)); !errors.Is(err, ErrReservedField) {
			t.Fatalf("New() with field %q error = %v, want ErrReservedField", name, err)
		}
	}
}

func TestChatBlankMessageIsValidationError(t *testing.T) {
	e := newTestEngine(t, 5)
	for _, msg := range []string{"", "   ", "\n\t"} {
		if _, err := e.Chat(context.Background(), "s1", msg); !errors.Is(err, ErrMessageRequired) {
			t.Fatalf("Chat(%q) error = %v, want ErrMessageRequired", msg, err)
		}
	}
	if got := e.Recent("s1", 10); len(got) != 0 {
		t.Fatalf("blank messages were recorded: %+v", got)
	}
}

func TestChatAssemblesStableShape(t *testing.T) {
	e := newTestEngine(t, 5)
	for _, msg := range []string{"scan for SQL injection", "phishing mail", "hello"} {
		reply, err := e.Chat(context.Background(), "s1", msg)
		if err != nil {
			t.Fatalf("Chat(%q) error = %v", msg, err)
		}
		if reply.Payload.Text == "" {
			t.Fatalf("Chat(%q) returned empty text", msg)
		}
		if len(reply.Payload.Fields) != 2 {
			t.Fatalf("Chat(%q) fields = %v, want analysis and threat_intel", msg, reply.Payload.Fields)
		}
		for _, name := range []string{"analysis", "threat_intel"} {
			block, ok := reply.Payload.Fields[name]
			if !ok {
				t.Fatalf("Chat(%q) missing field %q", msg, name)
			}
			if block.Scores == nil || block.Insights == nil || block.Recommendations == nil {
				t.Fatalf("Chat(%q) field %q has nil collections: %+v", msg, name, block)
			}
		}
	}
}

func TestChatRoutesByIntent(t *testing.T) {
	e := newTestEngine(t, 5)
	reply, err := e.Chat(context.Background(), "s1", "scan for SQL injection vulnerabilities")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if reply.Intent != "vulnerability" {
		t.Fatalf("Intent = %q, want vulnerability", reply.Intent)
	}
	if !strings.HasPrefix(reply.Payload.Text, "Vulnerability Assessment Report") {
		t.Fatalf("Text = %q", reply.Payload.Text)
	}
	if got := reply.Payload.Fields["analysis"].Recommendations; len(got) != 2 {
		t.Fatalf("Recommendations = %v, want 2 entries", got)
	}
	if reply.ProcessingTime != 1.2 || reply.Confidence != 0.9 {
		t.Fatalf("cosmetic metrics = %v/%v, want 1.2/0.9", reply.ProcessingTime, reply.Confidence)
	}
	if reply.Source != SourceLocal {
		t.Fatalf("Source = %q, want %q", reply.Source, SourceLocal)
	}
}

func TestChatHistoryCapKeepsLastFive(t *testing.T) {
	e := newTestEngine(t, 5)
	for i := 1; i <= 6; i++ {
		if _, err := e.Chat(context.Background(), "s1", fmt.Sprintf("message %d", i)); err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
	}
	got := e.Recent("s1", 5)
	if len(got) != 5 {
		t.Fatalf("len(Recent()) = %d, want 5", len(got))
	}
	for i, r := range got {
		want := fmt.Sprintf("message %d", i+2)
		if r.RawMessage != want {
			t.Fatalf("Recent()[%d].RawMessage = %q, want %q", i, r.RawMessage, want)
		}
	}
	if e.Conversations() != 6 {
		t.Fatalf("Conversations() = %d, want 6", e.Conversations())
	}
}

type failingBrain struct{ calls int }

func (b *failingBrain) Name() string { return "failing" }

func (b *failingBrain) Respond(context.Context, brain.Request) (brain.Response, error) {
	b.calls++
	return brain.Response{}, errors.New("upstream unavailable")
}

func TestChatFallsBackOnceWhenBrainFails(t *testing.T) {
	b := &failingBrain{}
	e := newTestEngine(t, 5, WithBrain(b))
	reply, err := e.Chat(context.Background(), "s1", "phishing campaign")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if b.calls != 1 {
		t.Fatalf("brain calls = %d, want exactly 1", b.calls)
	}
	if reply.Source != SourceLocal || reply.Payload.Text != "Threat Brief" {
		t.Fatalf("reply = %+v, want local threat text", reply)
	}
}

func TestChatUsesBrainText(t *testing.T) {
	e := newTestEngine(t, 5, WithBrain(brain.NewMockAdapter()))
	reply, err := e.Chat(context.Background(), "s1", "phishing campaign")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if reply.Source != SourceBrain || !strings.Contains(reply.Payload.Text, "I heard you: phishing campaign") {
		t.Fatalf("reply = %+v, want brain text", reply)
	}
	if len(reply.Payload.Fields["analysis"].Recommendations) != 1 {
		t.Fatalf("brain must not replace generator fields: %+v", reply.Payload.Fields)
	}
}

func TestChatRecordsFacetsRatingAndRedaction(t *testing.T) {
	emotion, err := intent.NewRuleSet("neutral",
		intent.Rule{Label: "sad", Matcher: intent.Keywords{"sad", "down"}},
		intent.Rule{Label: "happy", Matcher: intent.Keywords{"great", "happy"}},
	)
	if err != nil {
		t.Fatalf("NewRuleSet() error = %v", err)
	}
	cfg := testConfig(t)
	cfg.Facets = map[string]*intent.RuleSet{"emotion": emotion}
	cfg.RatingPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*/\s*10`)

	e, err := New(cfg, session.NewBoundedHistory(10),
		WithMetricsSource(FixedMetrics{}),
		WithRedactor(func(s string) string { return strings.ReplaceAll(s, "secret", "[x]") }),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, msg := range []string{"feeling down, 5/10", "a bit better 6/10", "great day secret 7/10"} {
		if _, err := e.Chat(context.Background(), "s1", msg); err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
	}

	records := e.Recent("s1", 10)
	if records[0].Facets["emotion"] != "sad" || records[1].Facets["emotion"] != "neutral" {
		t.Fatalf("facets = %v, %v", records[0].Facets, records[1].Facets)
	}
	if records[2].RawMessage != "great day [x] 7/10" {
		t.Fatalf("RawMessage = %q, want redacted", records[2].RawMessage)
	}
	if records[2].Rating == nil || *records[2].Rating != 7 {
		t.Fatalf("Rating = %v, want 7", records[2].Rating)
	}

	summary := e.Summary("s1")
	if summary.RatingTrend.Direction != analytics.Improving {
		t.Fatalf("RatingTrend = %+v, want improving", summary.RatingTrend)
	}
	if summary.TotalInteractions != 3 {
		t.Fatalf("TotalInteractions = %d, want 3", summary.TotalInteractions)
	}
}

func TestSummaryOnUnknownSession(t *testing.T) {
	e := newTestEngine(t, 5)
	s := e.Summary("nobody")
	if s.DominantIntent != analytics.NoCategory || s.TotalInteractions != 0 {
		t.Fatalf("Summary() = %+v, want empty defaults", s)
	}
}

func TestConcurrentChatsOnOneSession(t *testing.T) {
	e := newTestEngine(t, 50)
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := e.Chat(context.Background(), "tabbed", fmt.Sprintf("tab %d", i)); err != nil {
				t.Errorf("Chat() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	records := e.Recent("tabbed", 50)
	if len(records) != 40 {
		t.Fatalf("len(Recent()) = %d, want 40", len(records))
	}
	seen := map[string]bool{}
	for _, r := range records {
		if seen[r.RawMessage] {
			t.Fatalf("message %q stored twice", r.RawMessage)
		}
		seen[r.RawMessage] = true
	}
}

func TestAssembleFillsDefaultsAndDropsUnknown(t *testing.T) {
	s := Schema{Fields: []string{"a", "b"}, DefaultText: "fallback text"}
	out := s.Assemble(Payload{Fields: map[string]AnalysisBlock{
		"a":     {Insights: []string{"x"}},
		"extra": {Insights: []string{"y"}},
	}})
	if out.Text != "fallback text" {
		t.Fatalf("Text = %q, want schema default", out.Text)
	}
	if _, ok := out.Fields["extra"]; ok {
		t.Fatalf("undeclared field leaked into payload")
	}
	if len(out.Fields["a"].Insights) != 1 || out.Fields["b"].Insights == nil {
		t.Fatalf("Fields = %+v", out.Fields)
	}

	if got := (Schema{Fields: []string{"a"}}).Assemble(Payload{}).Text; got != DefaultText {
		t.Fatalf("Text = %q, want DefaultText", got)
	}
}
