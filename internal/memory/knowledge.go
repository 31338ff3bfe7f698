package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ent0n29/switchboard/internal/observability"
)

// Note is the caller-supplied part of a new entry.
type Note struct {
	Content     string   `json:"content"`
	Type        string   `json:"type"`
	Priority    string   `json:"priority"`
	Tags        []string `json:"tags"`
	Description string   `json:"description"`
	Source      string   `json:"source"`
}

type Result struct {
	Entry Entry   `json:"entry"`
	Score float64 `json:"score"`
}

type Export struct {
	UserID     string    `json:"user_id"`
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Entries    []Entry   `json:"entries"`
}

type Option func(*Knowledge)

func WithScorer(s Scorer) Option { return func(k *Knowledge) { k.scorer = s } }

func WithKeywordLimit(n int) Option {
	return func(k *Knowledge) {
		if n > 0 {
			k.keywordLimit = n
		}
	}
}

func WithRedactor(fn func(string) string) Option { return func(k *Knowledge) { k.redact = fn } }

func WithMetrics(m *observability.Metrics) Option { return func(k *Knowledge) { k.metrics = m } }

func WithLogger(l *zap.Logger) Option { return func(k *Knowledge) { k.logger = l } }

func WithClock(now func() time.Time) Option { return func(k *Knowledge) { k.now = now } }

// Knowledge indexes and retrieves user memory entries over a Store.
type Knowledge struct {
	store        Store
	scorer       Scorer
	keywordLimit int
	redact       func(string) string
	metrics      *observability.Metrics
	logger       *zap.Logger
	now          func() time.Time
}

func NewKnowledge(store Store, opts ...Option) *Knowledge {
	k := &Knowledge{
		store:        store,
		scorer:       OverlapScorer{},
		keywordLimit: DefaultKeywordLimit,
		redact:       func(s string) string { return s },
		logger:       zap.NewNop(),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Store indexes the note and appends it as a new entry.
func (k *Knowledge) Store(ctx context.Context, userID string, note Note) (Entry, error) {
	if strings.TrimSpace(userID) == "" {
		return Entry{}, ErrUserRequired
	}
	content := strings.TrimSpace(note.Content)
	if content == "" {
		return Entry{}, ErrEmptyContent
	}
	content = k.redact(content)

	entry := Entry{
		ID:          uuid.NewString(),
		UserID:      userID,
		Content:     content,
		Type:        orDefault(note.Type, DefaultType),
		Priority:    strings.ToLower(orDefault(note.Priority, DefaultPriority)),
		Tags:        normalizeTags(note.Tags),
		Keywords:    ExtractKeywords(content+" "+note.Description, k.keywordLimit),
		Description: strings.TrimSpace(note.Description),
		Source:      orDefault(note.Source, SourceAPI),
		CreatedAt:   k.now(),
	}
	if err := k.store.Save(ctx, entry); err != nil {
		return Entry{}, fmt.Errorf("store memory: %w", err)
	}
	k.metrics.ObserveMemoryOp("store")
	k.logger.Debug("memory stored",
		zap.String("user_id", userID),
		zap.String("entry_id", entry.ID),
		zap.Int("keywords", len(entry.Keywords)))
	return entry, nil
}

// Search ranks the user's entries against query. limit <= 0 returns all hits.
func (k *Knowledge) Search(ctx context.Context, userID, query string, limit int) ([]Result, error) {
	terms := ExtractKeywords(query, 0)
	k.metrics.ObserveMemoryOp("search")
	if len(terms) == 0 {
		return []Result{}, nil
	}
	candidates, err := k.store.Candidates(ctx, userID, terms)
	if err != nil {
		return nil, fmt.Errorf("search memory: %w", err)
	}

	results := make([]Result, 0, len(candidates))
	for _, e := range candidates {
		if score := k.scorer.Score(terms, e); score > 0 {
			results = append(results, Result{Entry: e, Score: score})
		}
	}
	// Candidates arrive oldest first; equal scores keep that order.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (k *Knowledge) List(ctx context.Context, userID string) ([]Entry, error) {
	entries, err := k.store.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list memory: %w", err)
	}
	return entries, nil
}

func (k *Knowledge) Delete(ctx context.Context, userID, id string) error {
	if err := k.store.Delete(ctx, userID, id); err != nil {
		return err
	}
	k.metrics.ObserveMemoryOp("delete")
	return nil
}

func (k *Knowledge) Export(ctx context.Context, userID string) (Export, error) {
	entries, err := k.List(ctx, userID)
	if err != nil {
		return Export{}, err
	}
	k.metrics.ObserveMemoryOp("export")
	return Export{
		UserID:     userID,
		ExportedAt: k.now(),
		Count:      len(entries),
		Entries:    entries,
	}, nil
}

func (k *Knowledge) Backend() string { return Backend(k.store) }

func (k *Knowledge) Close() error { return k.store.Close() }

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
