package dedup

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/winnow/internal/arbitration"
	"horse.fit/winnow/internal/db"
	"horse.fit/winnow/internal/embedding"
)

type fakeStore struct {
	articles  []db.HistoricalArticle
	decisions []db.InsertDedupDecisionInput
	stages    []string
	bootstrap bool
	completed bool
	failed    bool
	failStage string
	counters  db.RunCounters

	countErr       error
	queryRecentErr error
	insertErr      error

	nextID int64
}

func (f *fakeStore) CountActiveArticles(_ context.Context) (int64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return int64(len(f.articles)), nil
}

func (f *fakeStore) QueryRecentArticles(_ context.Context, since time.Time) ([]db.HistoricalArticle, error) {
	if f.queryRecentErr != nil {
		return nil, f.queryRecentErr
	}
	recent := make([]db.HistoricalArticle, 0, len(f.articles))
	for _, record := range f.articles {
		if !record.CreatedAt.Before(since) {
			recent = append(recent, record)
		}
	}
	return recent, nil
}

func (f *fakeStore) QueryExistingURLs(_ context.Context, urls []string) (map[string]int64, error) {
	existing := make(map[string]int64, len(urls))
	for _, url := range urls {
		for _, record := range f.articles {
			if record.URL == url {
				existing[url] = record.ArticleID
			}
		}
	}
	return existing, nil
}

func (f *fakeStore) InsertArticle(_ context.Context, input db.InsertArticleInput) (int64, bool, error) {
	if f.insertErr != nil {
		return 0, false, f.insertErr
	}
	for _, record := range f.articles {
		if record.URL == input.URL {
			return record.ArticleID, false, nil
		}
	}
	f.nextID++
	f.articles = append(f.articles, db.HistoricalArticle{
		ArticleID:   f.nextID,
		URL:         input.URL,
		Title:       input.Title,
		Summary:     input.Summary,
		SourceName:  input.SourceName,
		SourceType:  input.SourceType,
		PublishedAt: input.PublishedAt,
		Embedding:   input.Embedding,
		CreatedAt:   input.CreatedAt,
	})
	return f.nextID, true, nil
}

func (f *fakeStore) InsertDedupRun(_ context.Context, _ time.Time, _ int) (int64, string, error) {
	return 1, "00000000-0000-0000-0000-000000000001", nil
}

func (f *fakeStore) UpdateDedupRunStage(_ context.Context, _ int64, stage string, _ time.Time) error {
	f.stages = append(f.stages, stage)
	return nil
}

func (f *fakeStore) MarkDedupRunBootstrap(_ context.Context, _ int64, _ time.Time) error {
	f.bootstrap = true
	return nil
}

func (f *fakeStore) CompleteDedupRun(_ context.Context, _ int64, counters db.RunCounters, _ time.Time) error {
	f.completed = true
	f.counters = counters
	return nil
}

func (f *fakeStore) FailDedupRun(_ context.Context, _ int64, stage, _ string, _ time.Time) error {
	f.failed = true
	f.failStage = stage
	return nil
}

func (f *fakeStore) InsertDedupDecision(_ context.Context, input db.InsertDedupDecisionInput) error {
	f.decisions = append(f.decisions, input)
	return nil
}

var _ Store = (*fakeStore)(nil)

type fakeEmbedder struct {
	vectors map[string][]float64
	calls   int
	err     error
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, items []embedding.Item) ([]embedding.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	results := make([]embedding.Result, 0, len(items))
	for _, item := range items {
		vec, ok := f.vectors[item.ID]
		if !ok {
			vec = []float64{1, 0}
		}
		results = append(results, embedding.Result{ID: item.ID, Vector: vec})
	}
	return results, nil
}

func (f *fakeEmbedder) ModelName() string { return "fake-embedding-model" }

func (f *fakeEmbedder) Dimensions() int { return 2 }

type fakeArbiter struct {
	calls    int
	received [][]arbitration.Pair
	verdicts []arbitration.Verdict
	err      error
}

func (f *fakeArbiter) ConfirmPairs(_ context.Context, pairs []arbitration.Pair) ([]arbitration.Verdict, error) {
	f.calls++
	copied := make([]arbitration.Pair, len(pairs))
	copy(copied, pairs)
	f.received = append(f.received, copied)
	if f.err != nil {
		return nil, f.err
	}
	return f.verdicts, nil
}

func newTestService(store *fakeStore, embedder *fakeEmbedder, arbiter *fakeArbiter) *Service {
	resolver := NewResolver([]string{"rss", "html", "twitter"}, nil, zerolog.Nop())
	return NewService(store, embedder, arbiter, resolver, Config{LookbackHours: 48}, zerolog.Nop())
}

// vectorWithCosine builds a unit vector whose cosine against [1, 0] is the
// given value.
func vectorWithCosine(cos float64) []float64 {
	return []float64{cos, math.Sqrt(1 - cos*cos)}
}

func historicalRecord(id int64, url, title string, createdAt time.Time) db.HistoricalArticle {
	return db.HistoricalArticle{
		ArticleID:  id,
		URL:        url,
		Title:      title,
		Summary:    "stored summary",
		SourceName: "stored-source",
		SourceType: "rss",
		Embedding:  []float64{1, 0},
		CreatedAt:  createdAt,
	}
}

func rssBatch(articles ...Article) []ChannelBatch {
	return []ChannelBatch{{Channel: "rss", Articles: articles}}
}

func TestRunBootstrapSeedsEmptyStore(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	embedder := &fakeEmbedder{}
	arbiter := &fakeArbiter{}
	service := newTestService(store, embedder, arbiter)

	report, err := service.Run(context.Background(), rssBatch(
		Article{URL: "https://x.com/a", Title: "First story", Language: "en", SourceName: "feed"},
		Article{URL: "https://x.com/b", Title: "Second story", Language: "en", SourceName: "feed"},
		Article{URL: "https://x.com/c", Title: "Third story", Language: "en", SourceName: "feed"},
	))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if !report.Bootstrap {
		t.Fatal("expected bootstrap report")
	}
	if !store.bootstrap {
		t.Fatal("expected bootstrap flag on run row")
	}
	if arbiter.calls != 0 {
		t.Fatalf("bootstrap must not call arbitration, got %d calls", arbiter.calls)
	}
	if len(store.articles) != 3 {
		t.Fatalf("expected 3 seeded articles, got %d", len(store.articles))
	}
	if report.Summary.UniqueKept != 3 || report.Summary.Stored != 3 {
		t.Fatalf("unexpected counters: %+v", report.Summary)
	}
	for _, decision := range store.decisions {
		if decision.Outcome != string(OutcomeKeptUnique) {
			t.Fatalf("bootstrap decision outcome %q, want kept_unique", decision.Outcome)
		}
	}
	if !store.completed {
		t.Fatal("expected run marked completed")
	}
}

func TestRunAutoDiscardsHighSimilarityDuplicate(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	store := &fakeStore{
		articles: []db.HistoricalArticle{
			historicalRecord(7, "https://news.example/acme-series-a", "Acme raises $10M Series A", now.Add(-2*time.Hour)),
		},
		nextID: 7,
	}
	embedder := &fakeEmbedder{vectors: map[string][]float64{
		"https://news.example/acme-round": vectorWithCosine(0.92),
	}}
	arbiter := &fakeArbiter{}
	service := newTestService(store, embedder, arbiter)

	report, err := service.Run(context.Background(), rssBatch(
		Article{URL: "https://news.example/acme-round", Title: "Acme closes $10M Series A round", Language: "en", SourceName: "feed"},
	))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if arbiter.calls != 0 {
		t.Fatalf("auto-discard must not call arbitration, got %d calls", arbiter.calls)
	}
	if report.Summary.AutoDiscarded != 1 || report.Summary.UniqueKept != 0 {
		t.Fatalf("unexpected counters: %+v", report.Summary)
	}
	if len(store.articles) != 1 {
		t.Fatalf("duplicate must not be committed, store has %d articles", len(store.articles))
	}

	if len(store.decisions) != 1 {
		t.Fatalf("expected 1 decision, got %d", len(store.decisions))
	}
	decision := store.decisions[0]
	if decision.Outcome != string(OutcomeDiscardedDuplicate) {
		t.Fatalf("unexpected outcome %q", decision.Outcome)
	}
	if decision.MatchType == nil || *decision.MatchType != string(MatchSemanticAuto) {
		t.Fatalf("unexpected match type %+v", decision.MatchType)
	}
	if decision.Reason == nil || !strings.Contains(*decision.Reason, "https://news.example/acme-series-a") {
		t.Fatalf("discard reason must reference the matched URL, got %+v", decision.Reason)
	}
}

func TestRunAmbiguousPairGoesToArbitration(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	store := &fakeStore{
		articles: []db.HistoricalArticle{
			historicalRecord(7, "https://news.example/acme-series-a", "Acme raises $10M Series A", now.Add(-2*time.Hour)),
		},
		nextID: 7,
	}
	embedder := &fakeEmbedder{vectors: map[string][]float64{
		"https://news.example/acme-update": vectorWithCosine(0.80),
	}}
	arbiter := &fakeArbiter{verdicts: []arbitration.Verdict{
		{PairIndex: 0, IsDuplicate: false, Reason: "different funding events"},
	}}
	service := newTestService(store, embedder, arbiter)

	report, err := service.Run(context.Background(), rssBatch(
		Article{URL: "https://news.example/acme-update", Title: "Acme funding update", Language: "en", SourceName: "feed"},
	))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if arbiter.calls != 1 {
		t.Fatalf("expected exactly 1 arbitration call, got %d", arbiter.calls)
	}
	if len(arbiter.received[0]) != 1 {
		t.Fatalf("expected 1 pair submitted, got %d", len(arbiter.received[0]))
	}
	pair := arbiter.received[0][0]
	if pair.NewArticle.URL != "https://news.example/acme-update" || pair.ExistingArticle.URL != "https://news.example/acme-series-a" {
		t.Fatalf("unexpected pair contents: %+v", pair)
	}
	if math.Abs(pair.SimilarityScore-0.80) > 1e-9 {
		t.Fatalf("unexpected pair score %v", pair.SimilarityScore)
	}

	if report.Summary.ConfirmedUnique != 1 {
		t.Fatalf("unexpected counters: %+v", report.Summary)
	}
	if len(store.articles) != 2 {
		t.Fatalf("confirmed-unique article must be committed, store has %d articles", len(store.articles))
	}

	var outcome string
	for _, decision := range store.decisions {
		if decision.URL == "https://news.example/acme-update" {
			outcome = decision.Outcome
		}
	}
	if outcome != string(OutcomeKeptDuplicateConfirmedUnique) {
		t.Fatalf("unexpected outcome %q", outcome)
	}
}

func TestRunArbitrationFailureFailsOpen(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	store := &fakeStore{
		articles: []db.HistoricalArticle{
			historicalRecord(7, "https://news.example/acme-series-a", "Acme raises $10M Series A", now.Add(-2*time.Hour)),
		},
		nextID: 7,
	}
	embedder := &fakeEmbedder{vectors: map[string][]float64{
		"https://news.example/acme-update": vectorWithCosine(0.80),
	}}
	arbiter := &fakeArbiter{err: errors.New("arbitration endpoint down")}
	service := newTestService(store, embedder, arbiter)

	report, err := service.Run(context.Background(), rssBatch(
		Article{URL: "https://news.example/acme-update", Title: "Acme funding update", Language: "en", SourceName: "feed"},
	))
	if err != nil {
		t.Fatalf("arbitration failure must not fail the run: %v", err)
	}

	if report.Summary.ArbitrationFailures != 1 {
		t.Fatalf("unexpected counters: %+v", report.Summary)
	}
	for _, decision := range store.decisions {
		if strings.HasPrefix(decision.Outcome, "discarded") {
			t.Fatalf("fail-open must never discard, got %q for %s", decision.Outcome, decision.URL)
		}
	}
	if len(store.articles) != 2 {
		t.Fatalf("failed-open article must be committed, store has %d articles", len(store.articles))
	}
}

func TestRunMissingVerdictFailsOpen(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	store := &fakeStore{
		articles: []db.HistoricalArticle{
			historicalRecord(1, "https://news.example/one", "Event one coverage", now.Add(-2*time.Hour)),
			historicalRecord(2, "https://news.example/two", "Event two coverage", now.Add(-time.Hour)),
		},
		nextID: 2,
	}
	store.articles[1].Embedding = []float64{0, 1}

	embedder := &fakeEmbedder{vectors: map[string][]float64{
		"https://news.example/one-again": vectorWithCosine(0.80),
		"https://news.example/two-again": {math.Sqrt(1 - 0.80*0.80), 0.80},
	}}
	arbiter := &fakeArbiter{verdicts: []arbitration.Verdict{
		{PairIndex: 0, IsDuplicate: true, Reason: "same event"},
		// No verdict for pair 1.
	}}
	service := newTestService(store, embedder, arbiter)

	report, err := service.Run(context.Background(), rssBatch(
		Article{URL: "https://news.example/one-again", Title: "Event one again", Language: "en", SourceName: "feed"},
		Article{URL: "https://news.example/two-again", Title: "Event two again", Language: "en", SourceName: "feed"},
	))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if report.Summary.ConfirmedDuplicate != 1 || report.Summary.ArbitrationFailures != 1 {
		t.Fatalf("unexpected counters: %+v", report.Summary)
	}

	outcomes := make(map[string]string, len(store.decisions))
	for _, decision := range store.decisions {
		outcomes[decision.URL] = decision.Outcome
	}
	if outcomes["https://news.example/one-again"] != string(OutcomeDiscardedDuplicateConfirmed) {
		t.Fatalf("unexpected outcome for answered pair: %q", outcomes["https://news.example/one-again"])
	}
	if outcomes["https://news.example/two-again"] != string(OutcomeKeptUnique) {
		t.Fatalf("missing verdict must fail open to kept_unique, got %q", outcomes["https://news.example/two-again"])
	}
}

func TestRunExactURLMatchSkipsEmbedding(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	store := &fakeStore{
		articles: []db.HistoricalArticle{
			historicalRecord(3, "https://news.example/known", "Known story", now.Add(-time.Hour)),
		},
		nextID: 3,
	}
	embedder := &fakeEmbedder{}
	arbiter := &fakeArbiter{}
	service := newTestService(store, embedder, arbiter)

	report, err := service.Run(context.Background(), rssBatch(
		Article{URL: "https://news.example/known?utm_source=mail", Title: "Known story again", Language: "en", SourceName: "feed"},
	))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if report.Summary.URLDuplicates != 1 {
		t.Fatalf("unexpected counters: %+v", report.Summary)
	}
	if embedder.calls != 0 {
		t.Fatalf("exact URL duplicate must not be embedded, got %d embed calls", embedder.calls)
	}
	if len(store.decisions) != 1 {
		t.Fatalf("expected 1 decision, got %d", len(store.decisions))
	}
	decision := store.decisions[0]
	if decision.Outcome != string(OutcomeDiscardedDuplicate) {
		t.Fatalf("unexpected outcome %q", decision.Outcome)
	}
	if decision.MatchType == nil || *decision.MatchType != string(MatchURLExact) {
		t.Fatalf("unexpected match type %+v", decision.MatchType)
	}
}

func TestRunWithinBatchNearDuplicateIsCaught(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	store := &fakeStore{
		articles: []db.HistoricalArticle{
			// Orthogonal to both new articles so history never matches.
			{ArticleID: 1, URL: "https://news.example/other", Title: "Unrelated", SourceName: "s", SourceType: "rss", Embedding: []float64{0, 1}, CreatedAt: now.Add(-time.Hour)},
		},
		nextID: 1,
	}
	embedder := &fakeEmbedder{vectors: map[string][]float64{
		"https://a.example/story": {1, 0},
		"https://b.example/story": vectorWithCosine(0.95),
	}}
	arbiter := &fakeArbiter{}
	service := newTestService(store, embedder, arbiter)

	report, err := service.Run(context.Background(), rssBatch(
		Article{URL: "https://a.example/story", Title: "Same event from channel A", Language: "en", SourceName: "a"},
		Article{URL: "https://b.example/story", Title: "Same event from channel B", Language: "en", SourceName: "b"},
	))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if report.Summary.UniqueKept != 1 || report.Summary.AutoDiscarded != 1 {
		t.Fatalf("unexpected counters: %+v", report.Summary)
	}

	outcomes := make(map[string]string, len(store.decisions))
	for _, decision := range store.decisions {
		outcomes[decision.URL] = decision.Outcome
	}
	if outcomes["https://a.example/story"] != string(OutcomeKeptUnique) {
		t.Fatalf("first article should be kept, got %q", outcomes["https://a.example/story"])
	}
	if outcomes["https://b.example/story"] != string(OutcomeDiscardedDuplicate) {
		t.Fatalf("second article should be discarded against the first, got %q", outcomes["https://b.example/story"])
	}
}

func TestRunEmbeddingFailureIsFatal(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		articles: []db.HistoricalArticle{
			historicalRecord(1, "https://news.example/existing", "Existing", time.Now().UTC().Add(-time.Hour)),
		},
		nextID: 1,
	}
	embedder := &fakeEmbedder{err: errors.New("rate limited")}
	arbiter := &fakeArbiter{}
	service := newTestService(store, embedder, arbiter)

	_, err := service.Run(context.Background(), rssBatch(
		Article{URL: "https://news.example/new", Title: "New story", Language: "en", SourceName: "feed"},
	))
	if err == nil {
		t.Fatal("expected fatal run error")
	}
	if !store.failed || store.failStage != StageEmbedded {
		t.Fatalf("expected run failed at embedded stage, got failed=%v stage=%q", store.failed, store.failStage)
	}
	if store.completed {
		t.Fatal("failed run must not be marked completed")
	}
}

func TestRunHistoryLoadFailureIsFatal(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		articles: []db.HistoricalArticle{
			historicalRecord(1, "https://news.example/existing", "Existing", time.Now().UTC().Add(-time.Hour)),
		},
		queryRecentErr: errors.New("connection reset"),
		nextID:         1,
	}
	service := newTestService(store, &fakeEmbedder{}, &fakeArbiter{})

	_, err := service.Run(context.Background(), rssBatch(
		Article{URL: "https://news.example/new", Title: "New story", Language: "en", SourceName: "feed"},
	))
	if err == nil {
		t.Fatal("expected fatal run error")
	}
	if store.failStage != StageHistoryLoaded {
		t.Fatalf("expected failure at history_loaded, got %q", store.failStage)
	}
}

func TestRunCommitFailureIsPerArticle(t *testing.T) {
	t.Parallel()

	store := &fakeStore{insertErr: errors.New("disk full")}
	service := newTestService(store, &fakeEmbedder{}, &fakeArbiter{})

	report, err := service.Run(context.Background(), rssBatch(
		Article{URL: "https://news.example/a", Title: "Story a", Language: "en", SourceName: "feed"},
		Article{URL: "https://news.example/b", Title: "Story b", Language: "en", SourceName: "feed"},
	))
	if err != nil {
		t.Fatalf("per-article commit failures must not fail the run: %v", err)
	}

	if report.Summary.CommitFailures != 2 || report.Summary.Stored != 0 || report.Summary.UniqueKept != 0 {
		t.Fatalf("unexpected counters: %+v", report.Summary)
	}
	if len(report.Kept) != 0 {
		t.Fatalf("failed commits must be excluded from kept output, got %d", len(report.Kept))
	}
	if !store.completed {
		t.Fatal("run should still complete")
	}
}

func TestRunReportContents(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	service := newTestService(store, &fakeEmbedder{}, &fakeArbiter{})

	published := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	report, err := service.Run(context.Background(), []ChannelBatch{
		{Channel: "rss", Articles: []Article{
			{URL: "https://news.example/a", Title: "Story a", Language: "en", SourceName: "feed", PublishedAt: &published},
		}},
		{Channel: "html", Articles: []Article{
			{URL: "https://news.example/a?utm_source=x", Title: "Story a scraped", Language: "en", SourceName: "scraper"},
		}},
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if report.Summary.TotalInput != 2 || report.Summary.MergeCollisions != 1 {
		t.Fatalf("unexpected counters: %+v", report.Summary)
	}
	if report.BySourceType["rss"] != 1 {
		t.Fatalf("unexpected by_source_type: %+v", report.BySourceType)
	}
	if report.Merge["html"] != 1 {
		t.Fatalf("unexpected merge collision map: %+v", report.Merge)
	}
	if report.RunUUID == "" {
		t.Fatal("report must carry the run uuid")
	}
}
