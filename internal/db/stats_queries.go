package db

import (
	"context"
	"fmt"
	"time"
)

// StatsSourceTypeCount stores per-channel article counts.
type StatsSourceTypeCount struct {
	SourceType string `json:"source_type"`
	Articles   int64  `json:"articles"`
}

// StatsTotals stores totals across the whole store.
type StatsTotals struct {
	Articles  int64 `json:"articles"`
	Runs      int64 `json:"runs"`
	Decisions int64 `json:"decisions"`
}

// StatsToday stores today's run outcome counters.
type StatsToday struct {
	ArticlesStored     int64 `json:"articles_stored"`
	RunsCompleted      int64 `json:"runs_completed"`
	RunsFailed         int64 `json:"runs_failed"`
	UniqueKept         int64 `json:"unique_kept"`
	URLDuplicates      int64 `json:"url_duplicates"`
	AutoDiscarded      int64 `json:"auto_discarded"`
	ConfirmedDuplicate int64 `json:"confirmed_duplicate"`
	ConfirmedUnique    int64 `json:"confirmed_unique"`
}

// StoreStats is the read model returned by the stats command.
type StoreStats struct {
	Day         string                 `json:"day"`
	SourceTypes []StatsSourceTypeCount `json:"source_types"`
	Totals      StatsTotals            `json:"totals"`
	Today       StatsToday             `json:"today"`
}

// QueryStoreStats returns store totals, the per-channel breakdown and
// today's outcome counters.
func (p *Pool) QueryStoreStats(ctx context.Context, dayStart, dayEnd time.Time) (*StoreStats, error) {
	startUTC := dayStart.UTC()
	endUTC := dayEnd.UTC()
	if !startUTC.Before(endUTC) {
		return nil, fmt.Errorf("dayStart must be before dayEnd")
	}

	stats := &StoreStats{
		Day:         startUTC.Format("2006-01-02"),
		SourceTypes: make([]StatsSourceTypeCount, 0, 8),
	}

	const sourceTypeQuery = `
SELECT a.source_type, COUNT(*)::BIGINT AS articles
FROM news.articles a
WHERE a.deleted_at IS NULL
GROUP BY a.source_type
ORDER BY 1
`

	rows, err := p.Query(ctx, sourceTypeQuery)
	if err != nil {
		return nil, fmt.Errorf("query stats source types: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row StatsSourceTypeCount
		if err := rows.Scan(&row.SourceType, &row.Articles); err != nil {
			return nil, fmt.Errorf("scan stats source type row: %w", err)
		}
		stats.SourceTypes = append(stats.SourceTypes, row)
		stats.Totals.Articles += row.Articles
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats source type rows: %w", err)
	}

	const totalsQuery = `
SELECT
	(SELECT COUNT(*) FROM news.dedup_runs) AS runs,
	(SELECT COUNT(*) FROM news.dedup_decisions) AS decisions
`

	if err := p.QueryRow(ctx, totalsQuery).Scan(
		&stats.Totals.Runs,
		&stats.Totals.Decisions,
	); err != nil {
		return nil, fmt.Errorf("query stats totals: %w", err)
	}

	const todayQuery = `
SELECT
	(SELECT COUNT(*) FROM news.articles a WHERE a.created_at >= $1 AND a.created_at < $2 AND a.deleted_at IS NULL) AS articles_stored,
	(SELECT COUNT(*) FROM news.dedup_runs r WHERE r.started_at >= $1 AND r.started_at < $2 AND r.status = 'completed') AS runs_completed,
	(SELECT COUNT(*) FROM news.dedup_runs r WHERE r.started_at >= $1 AND r.started_at < $2 AND r.status = 'failed') AS runs_failed,
	(SELECT COUNT(*) FROM news.dedup_decisions d WHERE d.created_at >= $1 AND d.created_at < $2 AND d.outcome = 'kept_unique') AS unique_kept,
	(SELECT COUNT(*) FROM news.dedup_decisions d WHERE d.created_at >= $1 AND d.created_at < $2 AND d.outcome = 'discarded_duplicate' AND d.match_type = 'url_exact') AS url_duplicates,
	(SELECT COUNT(*) FROM news.dedup_decisions d WHERE d.created_at >= $1 AND d.created_at < $2 AND d.outcome = 'discarded_duplicate' AND d.match_type = 'semantic_auto') AS auto_discarded,
	(SELECT COUNT(*) FROM news.dedup_decisions d WHERE d.created_at >= $1 AND d.created_at < $2 AND d.outcome = 'discarded_duplicate_confirmed') AS confirmed_duplicate,
	(SELECT COUNT(*) FROM news.dedup_decisions d WHERE d.created_at >= $1 AND d.created_at < $2 AND d.outcome = 'kept_duplicate_confirmed_unique') AS confirmed_unique
`

	if err := p.QueryRow(ctx, todayQuery, startUTC, endUTC).Scan(
		&stats.Today.ArticlesStored,
		&stats.Today.RunsCompleted,
		&stats.Today.RunsFailed,
		&stats.Today.UniqueKept,
		&stats.Today.URLDuplicates,
		&stats.Today.AutoDiscarded,
		&stats.Today.ConfirmedDuplicate,
		&stats.Today.ConfirmedUnique,
	); err != nil {
		return nil, fmt.Errorf("query stats today: %w", err)
	}

	return stats, nil
}
