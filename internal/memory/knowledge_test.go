package memory

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractKeywords(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{"stop words and short tokens", "Remember my meeting notes from today", 10, []string{"meeting", "notes"}},
		{"punctuation stripped", "Budget: Q3-review, (draft)!", 10, []string{"budget", "q3review", "draft"}},
		{"dedupe keeps first", "Alpha beta ALPHA gamma beta", 10, []string{"alpha", "beta", "gamma"}},
		{"cap", "one2 two2 three four five six", 3, []string{"one2", "two2", "three"}},
		{"no cap", "apple banana cherry", 0, []string{"apple", "banana", "cherry"}},
		{"empty", "  ... ", 10, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, ExtractKeywords(tc.text, tc.limit)); diff != "" {
				t.Fatalf("ExtractKeywords(%q) mismatch (-want +got):\n%s", tc.text, diff)
			}
		})
	}
}

func TestExtractKeywordsDefaultCap(t *testing.T) {
	text := "alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima"
	require.Len(t, ExtractKeywords(text, DefaultKeywordLimit), DefaultKeywordLimit)
}

func TestSplitTags(t *testing.T) {
	assert.Equal(t, []string{"work", "q3"}, SplitTags(" Work, q3,,work "))
}

func TestStoredContentIsRetrievableByOwnKeyword(t *testing.T) {
	k := NewKnowledge(NewInMemoryStore())
	ctx := context.Background()

	entry, err := k.Store(ctx, "u1", Note{Content: "Remember my meeting notes from today", Type: "note", Priority: "high", Tags: []string{"Work"}})
	require.NoError(t, err)
	require.NotEmpty(t, entry.ID)
	assert.Equal(t, []string{"meeting", "notes"}, entry.Keywords)
	assert.Equal(t, []string{"work"}, entry.Tags)

	results, err := k.Search(ctx, "u1", "meeting", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, entry.ID, results[0].Entry.ID)
	assert.Greater(t, results[0].Score, 0.0)

	other, err := k.Search(ctx, "u2", "meeting", 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestStoreValidation(t *testing.T) {
	k := NewKnowledge(NewInMemoryStore())
	_, err := k.Store(context.Background(), "u1", Note{Content: "   "})
	assert.ErrorIs(t, err, ErrEmptyContent)
	_, err = k.Store(context.Background(), "", Note{Content: "hello there"})
	assert.ErrorIs(t, err, ErrUserRequired)
}

func TestStoreDefaultsAndRedaction(t *testing.T) {
	k := NewKnowledge(NewInMemoryStore(), WithRedactor(func(s string) string { return "[redacted] " + s }))
	e, err := k.Store(context.Background(), "u1", Note{Content: "call bob"})
	require.NoError(t, err)
	assert.Equal(t, DefaultType, e.Type)
	assert.Equal(t, DefaultPriority, e.Priority)
	assert.Equal(t, SourceAPI, e.Source)
	assert.Equal(t, "[redacted] call bob", e.Content)
}

func TestSearchRanksKeywordHitsFirst(t *testing.T) {
	base := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	tick := 0
	k := NewKnowledge(NewInMemoryStore(), WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}))
	ctx := context.Background()

	// "garden" only as part of a longer word: substring hit.
	sub, err := k.Store(ctx, "u1", Note{Content: "gardening tools list"})
	require.NoError(t, err)
	kw, err := k.Store(ctx, "u1", Note{Content: "garden layout plan"})
	require.NoError(t, err)
	_, err = k.Store(ctx, "u1", Note{Content: "unrelated grocery list"})
	require.NoError(t, err)

	results, err := k.Search(ctx, "u1", "garden", 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, kw.ID, results[0].Entry.ID)
	assert.Equal(t, sub.ID, results[1].Entry.ID)

	limited, err := k.Search(ctx, "u1", "garden", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSearchTiesKeepInsertionOrder(t *testing.T) {
	base := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	tick := 0
	k := NewKnowledge(NewInMemoryStore(), WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}))
	ctx := context.Background()

	first, err := k.Store(ctx, "u1", Note{Content: "budget review"})
	require.NoError(t, err)
	second, err := k.Store(ctx, "u1", Note{Content: "budget forecast"})
	require.NoError(t, err)

	results, err := k.Search(ctx, "u1", "budget", 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, results[0].Score, results[1].Score)
	assert.Equal(t, first.ID, results[0].Entry.ID)
	assert.Equal(t, second.ID, results[1].Entry.ID)
}

func TestSearchUsesPluggableScorer(t *testing.T) {
	k := NewKnowledge(NewInMemoryStore(), WithScorer(ScorerFunc(func([]string, Entry) float64 { return 0 })))
	_, err := k.Store(context.Background(), "u1", Note{Content: "meeting notes"})
	require.NoError(t, err)
	results, err := k.Search(context.Background(), "u1", "meeting", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeleteAndExport(t *testing.T) {
	k := NewKnowledge(NewInMemoryStore())
	ctx := context.Background()
	a, err := k.Store(ctx, "u1", Note{Content: "first entry here"})
	require.NoError(t, err)
	b, err := k.Store(ctx, "u1", Note{Content: "second entry here"})
	require.NoError(t, err)

	require.NoError(t, k.Delete(ctx, "u1", a.ID))
	assert.True(t, errors.Is(k.Delete(ctx, "u1", a.ID), ErrNotFound))

	exp, err := k.Export(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, exp.Count)
	assert.Equal(t, b.ID, exp.Entries[0].ID)
	assert.Equal(t, "u1", exp.UserID)
}

func TestConcurrentStoresLoseNothing(t *testing.T) {
	k := NewKnowledge(NewInMemoryStore())
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := k.Store(ctx, "shared", Note{Content: fmt.Sprintf("entry number %d", i)}); err != nil {
				t.Errorf("Store() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	entries, err := k.List(ctx, "shared")
	require.NoError(t, err)
	assert.Len(t, entries, 50)
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(ctx, "sqlite://"+filepath.Join(t.TempDir(), "knowledge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.Equal(t, "sqlite", Backend(store))

	k := NewKnowledge(store)
	entry, err := k.Store(ctx, "u1", Note{Content: "Remember my meeting notes from today", Tags: []string{"work"}, Description: "weekly sync"})
	require.NoError(t, err)
	_, err = k.Store(ctx, "u1", Note{Content: "buy oat milk"})
	require.NoError(t, err)

	results, err := k.Search(ctx, "u1", "meeting", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	got := results[0].Entry
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, []string{"meeting", "notes", "weekly", "sync"}, got.Keywords)
	assert.Equal(t, []string{"work"}, got.Tags)
	assert.True(t, entry.CreatedAt.Equal(got.CreatedAt))

	all, err := k.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, k.Delete(ctx, "u1", entry.ID))
	assert.ErrorIs(t, k.Delete(ctx, "u1", entry.ID), ErrNotFound)
}

func TestNewStoreSelectsBackend(t *testing.T) {
	s, err := NewStore(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "memory", Backend(s))

	_, err = NewStore(context.Background(), "mysql://nope")
	assert.Error(t, err)
}
