package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/winnow/internal/arbitration"
	"horse.fit/winnow/internal/db"
	"horse.fit/winnow/internal/embedding"
	"horse.fit/winnow/internal/globaltime"
)

// Pipeline stages, persisted to the run ledger before each phase. A failed
// run keeps the last stage it reached.
const (
	StageMerged        = "merged"
	StageEmbedded      = "embedded"
	StageHistoryLoaded = "history_loaded"
	StageCompared      = "compared"
	StageArbitrated    = "arbitrated"
	StageCommitted     = "committed"
	StageReported      = "reported"
)

// Store is the durable similarity index and run ledger. *db.Pool implements
// it; tests substitute an in-memory fake.
type Store interface {
	CountActiveArticles(ctx context.Context) (int64, error)
	QueryRecentArticles(ctx context.Context, since time.Time) ([]db.HistoricalArticle, error)
	QueryExistingURLs(ctx context.Context, urls []string) (map[string]int64, error)
	InsertArticle(ctx context.Context, input db.InsertArticleInput) (int64, bool, error)
	InsertDedupRun(ctx context.Context, startedAt time.Time, lookbackHours int) (int64, string, error)
	UpdateDedupRunStage(ctx context.Context, runID int64, stage string, now time.Time) error
	MarkDedupRunBootstrap(ctx context.Context, runID int64, now time.Time) error
	CompleteDedupRun(ctx context.Context, runID int64, counters db.RunCounters, finishedAt time.Time) error
	FailDedupRun(ctx context.Context, runID int64, stage, message string, finishedAt time.Time) error
	InsertDedupDecision(ctx context.Context, input db.InsertDedupDecisionInput) error
}

var _ Store = (*db.Pool)(nil)

// Config carries the run parameters of the orchestrator.
type Config struct {
	LookbackHours      int
	AmbiguousThreshold float64
	DuplicateThreshold float64
}

func (c Config) withDefaults() Config {
	if c.LookbackHours < 1 {
		c.LookbackHours = 48
	}
	if c.AmbiguousThreshold == 0 {
		c.AmbiguousThreshold = DefaultAmbiguousThreshold
	}
	if c.DuplicateThreshold == 0 {
		c.DuplicateThreshold = DefaultDuplicateThreshold
	}
	return c
}

// Service sequences one dedup run: merge, embed, load history, compare,
// arbitrate, commit, report. Single-writer against its store; no two runs
// may share a store concurrently.
type Service struct {
	store    Store
	provider embedding.Provider
	arbiter  arbitration.Arbiter
	resolver *Resolver
	cfg      Config
	logger   zerolog.Logger
}

// NewService wires the orchestrator. All collaborators are injected; there
// are no ambient singletons.
func NewService(store Store, provider embedding.Provider, arbiter arbitration.Arbiter, resolver *Resolver, cfg Config, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		provider: provider,
		arbiter:  arbiter,
		resolver: resolver,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// ambiguousPair tracks one ambiguous match awaiting arbitration.
type ambiguousPair struct {
	article Article
	match   *Match
}

// Run executes one complete dedup run over the channel batches and returns
// the run report. Commits are individually durable: an aborted run needs no
// rollback because a restart re-observes committed URLs as exact duplicates.
func (s *Service) Run(ctx context.Context, batches []ChannelBatch) (*Report, error) {
	startedAt := globaltime.UTC()

	runID, runUUID, err := s.store.InsertDedupRun(ctx, startedAt, s.cfg.LookbackHours)
	if err != nil {
		return nil, fmt.Errorf("open run ledger: %w", err)
	}
	logger := s.logger.With().Str("run_uuid", runUUID).Logger()

	merged := s.resolver.Merge(batches)
	counters := db.RunCounters{
		TotalInput:      merged.TotalInput,
		MalformedInput:  len(merged.Malformed),
		MergeCollisions: merged.Collisions,
	}
	logger.Info().
		Int("total_input", merged.TotalInput).
		Int("merged", len(merged.Articles)).
		Int("collisions", merged.Collisions).
		Int("malformed", len(merged.Malformed)).
		Msg("merge stage complete")

	storedCount, err := s.store.CountActiveArticles(ctx)
	if err != nil {
		return nil, s.failRun(ctx, runID, StageMerged, logger, fmt.Errorf("count stored articles: %w", err))
	}
	bootstrap := storedCount == 0

	decisions := make([]Decision, 0, len(merged.Articles))
	pipeline := merged.Articles

	if !bootstrap {
		pipeline, decisions, err = s.discardExactURLMatches(ctx, pipeline, decisions, &counters)
		if err != nil {
			return nil, s.failRun(ctx, runID, StageMerged, logger, err)
		}
	}

	if err := s.store.UpdateDedupRunStage(ctx, runID, StageEmbedded, globaltime.UTC()); err != nil {
		logger.Warn().Err(err).Str("stage", StageEmbedded).Msg("record run stage failed")
	}
	pipeline, err = s.embedArticles(ctx, pipeline)
	if err != nil {
		return nil, s.failRun(ctx, runID, StageEmbedded, logger, err)
	}

	if bootstrap {
		if err := s.store.MarkDedupRunBootstrap(ctx, runID, globaltime.UTC()); err != nil {
			logger.Warn().Err(err).Msg("mark run bootstrap failed")
		}
		logger.Info().Int("articles", len(pipeline)).Msg("empty store, seeding without comparison")
		for _, article := range pipeline {
			decisions = append(decisions, Decision{
				Article: article,
				Outcome: OutcomeKeptUnique,
				Reason:  "bootstrap: store was empty, article seeded without comparison",
			})
		}
	} else {
		if err := s.store.UpdateDedupRunStage(ctx, runID, StageHistoryLoaded, globaltime.UTC()); err != nil {
			logger.Warn().Err(err).Str("stage", StageHistoryLoaded).Msg("record run stage failed")
		}
		since := startedAt.Add(-time.Duration(s.cfg.LookbackHours) * time.Hour)
		history, err := s.store.QueryRecentArticles(ctx, since)
		if err != nil {
			// Without history every article would pass as unique, silently
			// breaking the dedup guarantee, so a failed load aborts the run.
			return nil, s.failRun(ctx, runID, StageHistoryLoaded, logger, fmt.Errorf("load recent history: %w", err))
		}
		logger.Info().Int("candidates", len(history)).Int("lookback_hours", s.cfg.LookbackHours).Msg("history loaded")

		if err := s.store.UpdateDedupRunStage(ctx, runID, StageCompared, globaltime.UTC()); err != nil {
			logger.Warn().Err(err).Str("stage", StageCompared).Msg("record run stage failed")
		}
		var pairs []ambiguousPair
		decisions, pairs = s.compareArticles(pipeline, history, startedAt, decisions, &counters)

		if err := s.store.UpdateDedupRunStage(ctx, runID, StageArbitrated, globaltime.UTC()); err != nil {
			logger.Warn().Err(err).Str("stage", StageArbitrated).Msg("record run stage failed")
		}
		decisions = s.arbitratePairs(ctx, pairs, logger, decisions, &counters)
	}

	if err := s.store.UpdateDedupRunStage(ctx, runID, StageCommitted, globaltime.UTC()); err != nil {
		logger.Warn().Err(err).Str("stage", StageCommitted).Msg("record run stage failed")
	}
	kept := s.commitDecisions(ctx, runID, decisions, logger, &counters)

	finishedAt := globaltime.UTC()
	if err := s.store.CompleteDedupRun(ctx, runID, counters, finishedAt); err != nil {
		return nil, fmt.Errorf("close run ledger: %w", err)
	}

	report := buildReport(runUUID, finishedAt, bootstrap, counters, merged, decisions, kept)
	logger.Info().
		Int("unique_kept", counters.UniqueKept).
		Int("auto_discarded", counters.AutoDiscarded).
		Int("confirmed_duplicate", counters.ConfirmedDuplicate).
		Int("confirmed_unique", counters.ConfirmedUnique).
		Int("stored", counters.Stored).
		Msg("dedup run complete")
	return report, nil
}

// discardExactURLMatches removes articles whose canonical URL is already
// stored, before any embedding cost is paid. This is also what makes an
// interrupted-then-restarted run safe to repeat.
func (s *Service) discardExactURLMatches(ctx context.Context, pipeline []Article, decisions []Decision, counters *db.RunCounters) ([]Article, []Decision, error) {
	if len(pipeline) == 0 {
		return pipeline, decisions, nil
	}

	urls := make([]string, 0, len(pipeline))
	for _, article := range pipeline {
		urls = append(urls, article.URL)
	}

	existing, err := s.store.QueryExistingURLs(ctx, urls)
	if err != nil {
		return nil, nil, fmt.Errorf("check existing urls: %w", err)
	}

	remaining := make([]Article, 0, len(pipeline))
	for _, article := range pipeline {
		articleID, found := existing[article.URL]
		if !found {
			remaining = append(remaining, article)
			continue
		}
		counters.URLDuplicates++
		decisions = append(decisions, Decision{
			Article:          article,
			Outcome:          OutcomeDiscardedDuplicate,
			MatchType:        MatchURLExact,
			MatchedURL:       article.URL,
			MatchedArticleID: articleID,
			Reason:           fmt.Sprintf("canonical URL already stored as article %d", articleID),
		})
	}

	return remaining, decisions, nil
}

// embedArticles vectorizes the pipeline. Embeddings are load-bearing; any
// provider failure is fatal for the run.
func (s *Service) embedArticles(ctx context.Context, pipeline []Article) ([]Article, error) {
	if len(pipeline) == 0 {
		return pipeline, nil
	}

	items := make([]embedding.Item, 0, len(pipeline))
	for _, article := range pipeline {
		items = append(items, embedding.Item{
			ID:   article.URL,
			Text: embedding.BuildText(article.Title, article.Summary),
		})
	}

	results, err := s.provider.EmbedBatch(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("embed articles: %w", err)
	}
	if len(results) != len(pipeline) {
		return nil, fmt.Errorf("embedding provider returned %d vectors, want %d", len(results), len(pipeline))
	}

	vectors := make(map[string][]float64, len(results))
	for _, result := range results {
		vectors[result.ID] = result.Vector
	}
	for i := range pipeline {
		vec, ok := vectors[pipeline[i].URL]
		if !ok {
			return nil, fmt.Errorf("embedding provider returned no vector for %s", pipeline[i].URL)
		}
		pipeline[i].Embedding = vec
	}

	return pipeline, nil
}

// compareArticles classifies each article against recent history plus the
// articles already accepted as unique earlier in this batch, so within-run
// near-duplicates are caught too.
func (s *Service) compareArticles(pipeline []Article, history []db.HistoricalArticle, startedAt time.Time, decisions []Decision, counters *db.RunCounters) ([]Decision, []ambiguousPair) {
	pool := make([]Candidate, 0, len(history)+len(pipeline))
	for _, record := range history {
		pool = append(pool, Candidate{
			ArticleID:   record.ArticleID,
			URL:         record.URL,
			Title:       record.Title,
			Summary:     record.Summary,
			SourceName:  record.SourceName,
			SourceType:  record.SourceType,
			Embedding:   record.Embedding,
			PublishedAt: record.PublishedAt,
			CreatedAt:   record.CreatedAt,
		})
	}

	var pairs []ambiguousPair
	for _, article := range pipeline {
		match := BestMatch(article.Embedding, pool)
		if match == nil {
			decisions = append(decisions, Decision{
				Article: article,
				Outcome: OutcomeKeptUnique,
				Reason:  "no candidates within the lookback window",
			})
			pool = append(pool, candidateFromArticle(article, startedAt))
			continue
		}

		score := match.Score
		switch Classify(score, s.cfg.AmbiguousThreshold, s.cfg.DuplicateThreshold) {
		case TierDuplicate:
			counters.AutoDiscarded++
			decisions = append(decisions, Decision{
				Article:          article,
				Outcome:          OutcomeDiscardedDuplicate,
				MatchType:        MatchSemanticAuto,
				MatchedURL:       match.Candidate.URL,
				MatchedArticleID: match.Candidate.ArticleID,
				Score:            &score,
				Reason:           fmt.Sprintf("cosine similarity %.4f to %s at or above duplicate threshold %.2f", score, match.Candidate.URL, s.cfg.DuplicateThreshold),
			})
		case TierAmbiguous:
			pairs = append(pairs, ambiguousPair{article: article, match: match})
		default:
			decisions = append(decisions, Decision{
				Article:    article,
				Outcome:    OutcomeKeptUnique,
				MatchedURL: match.Candidate.URL,
				Score:      &score,
				Reason:     fmt.Sprintf("best cosine similarity %.4f below ambiguous threshold %.2f", score, s.cfg.AmbiguousThreshold),
			})
			pool = append(pool, candidateFromArticle(article, startedAt))
		}
	}

	return decisions, pairs
}

// arbitratePairs resolves ambiguous pairs through the arbiter. The policy
// is fail-open: on provider error or a missing verdict a pair resolves to
// not-a-duplicate, because losing one dedup opportunity is cheaper than
// silently discarding a genuinely new article.
func (s *Service) arbitratePairs(ctx context.Context, pairs []ambiguousPair, logger zerolog.Logger, decisions []Decision, counters *db.RunCounters) []Decision {
	if len(pairs) == 0 {
		return decisions
	}

	request := make([]arbitration.Pair, 0, len(pairs))
	for i, pair := range pairs {
		request = append(request, arbitration.Pair{
			PairIndex:       i,
			NewArticle:      pairArticle(pair.article.URL, pair.article.Title, pair.article.Summary, pair.article.SourceName, pair.article.PublishedAt),
			ExistingArticle: pairArticle(pair.match.Candidate.URL, pair.match.Candidate.Title, pair.match.Candidate.Summary, pair.match.Candidate.SourceName, pair.match.Candidate.PublishedAt),
			SimilarityScore: pair.match.Score,
		})
	}

	verdictByIndex := make(map[int]arbitration.Verdict, len(pairs))
	verdicts, err := s.arbiter.ConfirmPairs(ctx, request)
	if err != nil {
		logger.Warn().Err(err).Int("pairs", len(pairs)).Msg("arbitration failed, failing open to unique")
	} else {
		for _, verdict := range verdicts {
			verdictByIndex[verdict.PairIndex] = verdict
		}
	}

	for i, pair := range pairs {
		score := pair.match.Score
		verdict, answered := verdictByIndex[i]
		if !answered {
			counters.ArbitrationFailures++
			reason := "arbitration unavailable, failing open to unique"
			if err == nil {
				reason = "no arbitration verdict for pair, failing open to unique"
			}
			decisions = append(decisions, Decision{
				Article:    pair.article,
				Outcome:    OutcomeKeptUnique,
				MatchedURL: pair.match.Candidate.URL,
				Score:      &score,
				Reason:     reason,
			})
			continue
		}

		if verdict.IsDuplicate {
			counters.ConfirmedDuplicate++
			reason := verdict.Reason
			if reason == "" {
				reason = "arbitration confirmed duplicate"
			}
			decisions = append(decisions, Decision{
				Article:          pair.article,
				Outcome:          OutcomeDiscardedDuplicateConfirmed,
				MatchType:        MatchSemanticLLM,
				MatchedURL:       pair.match.Candidate.URL,
				MatchedArticleID: pair.match.Candidate.ArticleID,
				Score:            &score,
				Reason:           reason,
				Arbitrated:       true,
			})
			continue
		}

		counters.ConfirmedUnique++
		decisions = append(decisions, Decision{
			Article:    pair.article,
			Outcome:    OutcomeKeptDuplicateConfirmedUnique,
			MatchedURL: pair.match.Candidate.URL,
			Score:      &score,
			Reason:     verdict.Reason,
			Arbitrated: true,
		})
	}

	return decisions
}

// commitDecisions stores kept articles and appends every decision to the
// audit log. Per-article failures are absorbed: the run continues and the
// failed article is excluded from the kept output.
func (s *Service) commitDecisions(ctx context.Context, runID int64, decisions []Decision, logger zerolog.Logger, counters *db.RunCounters) []Article {
	kept := make([]Article, 0, len(decisions))

	for i := range decisions {
		decision := &decisions[i]
		committed := true

		if decision.Outcome.Kept() {
			_, inserted, err := s.store.InsertArticle(ctx, db.InsertArticleInput{
				URL:            decision.Article.URL,
				Title:          decision.Article.Title,
				Summary:        decision.Article.Summary,
				SourceName:     decision.Article.SourceName,
				SourceType:     decision.Article.SourceType,
				Language:       decision.Article.Language,
				Region:         decision.Article.Region,
				Category:       decision.Article.Category,
				Layer:          decision.Article.Layer,
				PublishedAt:    decision.Article.PublishedAt,
				Embedding:      decision.Article.Embedding,
				EmbeddingModel: s.provider.ModelName(),
				CreatedAt:      globaltime.UTC(),
			})
			if err != nil {
				committed = false
				counters.CommitFailures++
				logger.Error().Err(err).Str("url", decision.Article.URL).Msg("article commit failed, excluded from kept output")
			} else {
				if inserted {
					counters.Stored++
				}
				kept = append(kept, decision.Article)
			}
		}

		if decision.Outcome == OutcomeKeptUnique && committed {
			counters.UniqueKept++
		}

		if err := s.store.InsertDedupDecision(ctx, decisionInput(runID, *decision)); err != nil {
			logger.Error().Err(err).Str("url", decision.Article.URL).Msg("decision log write failed")
		}
	}

	return kept
}

func decisionInput(runID int64, decision Decision) db.InsertDedupDecisionInput {
	input := db.InsertDedupDecisionInput{
		RunID:      runID,
		URL:        decision.Article.URL,
		Title:      decision.Article.Title,
		SourceName: decision.Article.SourceName,
		SourceType: decision.Article.SourceType,
		Outcome:    string(decision.Outcome),
		Score:      decision.Score,
		Arbitrated: decision.Arbitrated,
		CreatedAt:  globaltime.UTC(),
	}
	if decision.MatchType != "" {
		matchType := string(decision.MatchType)
		input.MatchType = &matchType
	}
	if decision.MatchedURL != "" {
		matchedURL := decision.MatchedURL
		input.MatchedURL = &matchedURL
	}
	if decision.MatchedArticleID != 0 {
		matchedID := decision.MatchedArticleID
		input.MatchedArticleID = &matchedID
	}
	if decision.Reason != "" {
		reason := decision.Reason
		input.Reason = &reason
	}
	return input
}

func (s *Service) failRun(ctx context.Context, runID int64, stage string, logger zerolog.Logger, cause error) error {
	logger.Error().Err(cause).Str("stage", stage).Msg("dedup run failed")
	if err := s.store.FailDedupRun(ctx, runID, stage, cause.Error(), globaltime.UTC()); err != nil {
		logger.Error().Err(err).Msg("record run failure failed")
	}
	return fmt.Errorf("run failed at stage %s: %w", stage, cause)
}

func candidateFromArticle(article Article, createdAt time.Time) Candidate {
	return Candidate{
		URL:         article.URL,
		Title:       article.Title,
		Summary:     article.Summary,
		SourceName:  article.SourceName,
		SourceType:  article.SourceType,
		Embedding:   article.Embedding,
		PublishedAt: article.PublishedAt,
		CreatedAt:   createdAt,
	}
}

func pairArticle(url, title, summary, source string, publishedAt *time.Time) arbitration.PairArticle {
	date := ""
	if publishedAt != nil {
		date = publishedAt.UTC().Format(time.RFC3339)
	}
	return arbitration.PairArticle{
		URL:     url,
		Title:   title,
		Summary: summary,
		Source:  source,
		Date:    date,
	}
}
