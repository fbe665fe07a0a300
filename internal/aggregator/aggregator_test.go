package aggregator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LJTian/AIUsageHub/internal/collector"
	"github.com/LJTian/AIUsageHub/internal/config"
	"github.com/LJTian/AIUsageHub/internal/scorer"
	"github.com/LJTian/AIUsageHub/internal/storage"
)

const seed = `{
  "current": {
    "categories": [
      {"name": "Productivité bureautique", "percentage": 20, "color": "#4e79a7"},
      {"name": "Créativité", "percentage": 20, "color": "#f28e2b"},
      {"name": "Apprentissage / Éducation", "percentage": 20, "color": "#59a14f"},
      {"name": "Développement / Technique", "percentage": 20, "color": "#e15759"},
      {"name": "Usage quotidien / Curiosité", "percentage": 20, "color": "#76b7b2"}
    ],
    "summary": "Estimation initiale."
  },
  "history": [
    {"date": "2024-01-01", "categories": [
      {"name": "Productivité bureautique", "percentage": 20},
      {"name": "Créativité", "percentage": 20},
      {"name": "Apprentissage / Éducation", "percentage": 20},
      {"name": "Développement / Technique", "percentage": 20},
      {"name": "Usage quotidien / Curiosité", "percentage": 20}
    ]}
  ]
}`

var fixedNow = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

func newTestAggregator(t *testing.T, docContent string, pages map[string]string) *Aggregator {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	cat := config.DefaultCatalog()
	cat.Sources = []config.Source{
		{Name: "one", URL: srv.URL + "/one"},
		{Name: "two", URL: srv.URL + "/two"},
		{Name: "down", URL: srv.URL + "/down"},
	}

	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(docContent), 0o644))

	return &Aggregator{
		Catalog:  cat,
		Fetcher:  &collector.HTTPFetcher{},
		Scorer:   scorer.NewKeywordScorer(scorer.KeywordSetFromCatalog(cat)),
		Store:    storage.NewStore(path),
		Timeout:  5 * time.Second,
		TextMode: config.TextModeRaw,
		Location: time.UTC,
		Now:      func() time.Time { return fixedNow },
	}
}

func TestRunDevelopmentOnlyEndToEnd(t *testing.T) {
	a := newTestAggregator(t, seed, map[string]string{
		"/one": strings.Repeat("debug ", 25),
		"/two": strings.Repeat("DEBUG ", 15),
	})

	res, err := a.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 40, res.Aggregate["development"])
	assert.Equal(t, 40, res.Aggregate.Total())
	assert.Equal(t, []int{0, 0, 0, 100, 0}, res.Percentages)
	assert.Equal(t, "2024-06-15", res.Date)
	assert.Equal(t, 1, res.Failed())
	assert.Equal(t, "down", res.Sources[2].Source)
	assert.NotEmpty(t, res.Sources[2].Error)

	doc, err := a.Store.Load()
	require.NoError(t, err)
	got := make([]int, len(doc.Current.Categories))
	for i, c := range doc.Current.Categories {
		got[i] = c.Percentage
	}
	assert.Equal(t, []int{0, 0, 0, 100, 0}, got)
	assert.Equal(t, "#e15759", doc.Current.Categories[3].Color)
	assert.Equal(t, "Estimation initiale.", doc.Current.Summary)

	require.Len(t, doc.History, 2)
	last := doc.History[1]
	assert.Equal(t, "2024-06-15", last.Date)
	require.Len(t, last.Categories, 5)
	for i, c := range last.Categories {
		assert.Equal(t, config.DefaultCatalog().Names()[i], c.Name)
		assert.Equal(t, got[i], c.Percentage)
	}
}

func TestRunTwiceAppendsOneEntryEach(t *testing.T) {
	a := newTestAggregator(t, seed, map[string]string{
		"/one": "email and image",
		"/two": "student",
	})

	_, err := a.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	first, err := a.Store.Load()
	require.NoError(t, err)
	require.Len(t, first.History, 2)

	_, err = a.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	second, err := a.Store.Load()
	require.NoError(t, err)
	require.Len(t, second.History, 3)
	assert.Equal(t, first.History, second.History[:2], "existing entries untouched")
}

func TestRunAllSourcesFailedWritesZeros(t *testing.T) {
	a := newTestAggregator(t, seed, map[string]string{})

	res, err := a.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Failed())
	assert.Equal(t, []int{0, 0, 0, 0, 0}, res.Percentages)

	doc, err := a.Store.Load()
	require.NoError(t, err)
	require.Len(t, doc.History, 2)
	for _, c := range doc.History[1].Categories {
		assert.Zero(t, c.Percentage)
	}
}

func TestRunCategoryMismatchAbortsWithoutWrite(t *testing.T) {
	reordered := strings.Replace(seed, `"Créativité", "percentage": 20, "color"`, `"Creativity", "percentage": 20, "color"`, 1)
	a := newTestAggregator(t, reordered, map[string]string{"/one": "debug"})

	_, err := a.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrCategoryMismatch))

	raw, err := os.ReadFile(a.Store.Path())
	require.NoError(t, err)
	assert.Equal(t, reordered, string(raw))
}

func TestRunMalformedDocumentIsLoadError(t *testing.T) {
	a := newTestAggregator(t, `{"current":`, map[string]string{"/one": "debug"})

	_, err := a.Run(context.Background(), RunOptions{})
	var le *storage.DocumentLoadError
	require.ErrorAs(t, err, &le)
}

func TestRunDryRunDoesNotWrite(t *testing.T) {
	a := newTestAggregator(t, seed, map[string]string{"/one": "code code"})

	res, err := a.Run(context.Background(), RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, []int{0, 0, 0, 100, 0}, res.Percentages)

	raw, err := os.ReadFile(a.Store.Path())
	require.NoError(t, err)
	assert.Equal(t, seed, string(raw))
}

func TestRunSlowSourceTimesOutInIsolation(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer slow.Close()

	a := newTestAggregator(t, seed, map[string]string{"/one": "quiz"})
	a.Catalog.Sources = []config.Source{a.Catalog.Sources[0], {Name: "slow", URL: slow.URL}}
	a.Timeout = 100 * time.Millisecond

	start := time.Now()
	res, err := a.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, res.Failed())
	assert.Equal(t, []int{0, 0, 100, 0, 0}, res.Percentages)
}

func TestRunCancelledLeavesDocumentUntouched(t *testing.T) {
	a := newTestAggregator(t, seed, map[string]string{
		"/one": "debug debug",
		"/two": "email",
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := a.Run(ctx, RunOptions{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)

	raw, err := os.ReadFile(a.Store.Path())
	require.NoError(t, err)
	assert.Equal(t, seed, string(raw))
}

func TestRunCancelledMidFetchLeavesDocumentUntouched(t *testing.T) {
	started := make(chan struct{}, 1)
	hang := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-r.Context().Done()
	}))
	defer hang.Close()

	a := newTestAggregator(t, seed, map[string]string{"/one": "debug"})
	a.Catalog.Sources = []config.Source{a.Catalog.Sources[0], {Name: "hang", URL: hang.URL}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := a.Run(ctx, RunOptions{})
	require.ErrorIs(t, err, context.Canceled)

	raw, err := os.ReadFile(a.Store.Path())
	require.NoError(t, err)
	assert.Equal(t, seed, string(raw))
}

func TestFormatPercentages(t *testing.T) {
	assert.Equal(t, "{A=10, B=90}", formatPercentages([]string{"A", "B"}, []int{10, 90}))
}
