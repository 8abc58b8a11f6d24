package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RunCounters carries the per-run summary counters.
type RunCounters struct {
	TotalInput          int `json:"total_input"`
	MalformedInput      int `json:"malformed_input"`
	MergeCollisions     int `json:"merge_collisions"`
	URLDuplicates       int `json:"url_duplicates"`
	UniqueKept          int `json:"unique_kept"`
	AutoDiscarded       int `json:"auto_discarded"`
	ConfirmedDuplicate  int `json:"confirmed_duplicate"`
	ConfirmedUnique     int `json:"confirmed_unique"`
	ArbitrationFailures int `json:"arbitration_failures"`
	CommitFailures      int `json:"commit_failures"`
	Stored              int `json:"stored"`
}

// DedupRunSummary is the audit view of one run.
type DedupRunSummary struct {
	RunID         int64      `json:"run_id"`
	RunUUID       string     `json:"run_uuid"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	Status        string     `json:"status"`
	Stage         string     `json:"stage"`
	Bootstrap     bool       `json:"bootstrap"`
	LookbackHours int        `json:"lookback_hours"`
	Counters      RunCounters `json:"counters"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
}

// InsertDedupRun opens a new run ledger row in status running.
func (p *Pool) InsertDedupRun(ctx context.Context, startedAt time.Time, lookbackHours int) (int64, string, error) {
	if lookbackHours < 1 {
		return 0, "", fmt.Errorf("lookback hours must be >= 1")
	}

	const q = `
INSERT INTO news.dedup_runs (started_at, lookback_hours, status, stage)
VALUES ($1, $2, 'running', 'merged')
RETURNING run_id, run_uuid::text
`

	var runID int64
	var runUUID string
	if err := p.QueryRow(ctx, q, startedAt.UTC(), lookbackHours).Scan(&runID, &runUUID); err != nil {
		return 0, "", fmt.Errorf("insert dedup run: %w", err)
	}
	return runID, runUUID, nil
}

// UpdateDedupRunStage records the stage the run has reached.
func (p *Pool) UpdateDedupRunStage(ctx context.Context, runID int64, stage string, now time.Time) error {
	trimmed := strings.TrimSpace(stage)
	if trimmed == "" {
		return fmt.Errorf("stage is required")
	}

	const q = `
UPDATE news.dedup_runs
SET
	stage = $2,
	updated_at = $3
WHERE run_id = $1
`

	tag, err := p.Exec(ctx, q, runID, trimmed, now.UTC())
	if err != nil {
		return fmt.Errorf("update run stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

// MarkDedupRunBootstrap flags the run as a store-seeding bootstrap run.
func (p *Pool) MarkDedupRunBootstrap(ctx context.Context, runID int64, now time.Time) error {
	const q = `
UPDATE news.dedup_runs
SET
	bootstrap = TRUE,
	updated_at = $2
WHERE run_id = $1
`

	tag, err := p.Exec(ctx, q, runID, now.UTC())
	if err != nil {
		return fmt.Errorf("mark run bootstrap: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

// CompleteDedupRun closes the run as completed with its final counters.
func (p *Pool) CompleteDedupRun(ctx context.Context, runID int64, counters RunCounters, finishedAt time.Time) error {
	const q = `
UPDATE news.dedup_runs
SET
	status = 'completed',
	stage = 'reported',
	finished_at = $2,
	total_input = $3,
	malformed_input = $4,
	merge_collisions = $5,
	url_duplicates = $6,
	unique_kept = $7,
	auto_discarded = $8,
	confirmed_duplicate = $9,
	confirmed_unique = $10,
	arbitration_failures = $11,
	commit_failures = $12,
	stored = $13,
	updated_at = $2
WHERE run_id = $1
`

	tag, err := p.Exec(
		ctx,
		q,
		runID,
		finishedAt.UTC(),
		counters.TotalInput,
		counters.MalformedInput,
		counters.MergeCollisions,
		counters.URLDuplicates,
		counters.UniqueKept,
		counters.AutoDiscarded,
		counters.ConfirmedDuplicate,
		counters.ConfirmedUnique,
		counters.ArbitrationFailures,
		counters.CommitFailures,
		counters.Stored,
	)
	if err != nil {
		return fmt.Errorf("complete dedup run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

// FailDedupRun closes the run as failed at the given stage. The decision log
// of a failed run is incomplete by construction.
func (p *Pool) FailDedupRun(ctx context.Context, runID int64, stage, message string, finishedAt time.Time) error {
	trimmedStage := strings.TrimSpace(stage)
	if trimmedStage == "" {
		trimmedStage = "merged"
	}
	trimmedMessage := strings.TrimSpace(message)

	const q = `
UPDATE news.dedup_runs
SET
	status = 'failed',
	stage = $2,
	error_message = $3,
	finished_at = $4,
	updated_at = $4
WHERE run_id = $1
`

	tag, err := p.Exec(ctx, q, runID, trimmedStage, trimmedMessage, finishedAt.UTC())
	if err != nil {
		return fmt.Errorf("fail dedup run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

// QueryDedupRuns lists recent runs, newest first.
func (p *Pool) QueryDedupRuns(ctx context.Context, limit int) ([]DedupRunSummary, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	q := dedupRunSelect + `
ORDER BY r.started_at DESC, r.run_id DESC
LIMIT $1
`

	rows, err := p.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query dedup runs: %w", err)
	}
	defer rows.Close()

	items := make([]DedupRunSummary, 0, limit)
	for rows.Next() {
		row, err := scanDedupRun(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dedup runs: %w", err)
	}

	return items, nil
}

// GetDedupRunByUUID loads one run by its public UUID.
func (p *Pool) GetDedupRunByUUID(ctx context.Context, runUUID string) (*DedupRunSummary, error) {
	trimmed := strings.TrimSpace(runUUID)
	if trimmed == "" {
		return nil, fmt.Errorf("run UUID is required")
	}

	q := dedupRunSelect + `
WHERE r.run_uuid = $1::uuid
LIMIT 1
`

	rows, err := p.Query(ctx, q, trimmed)
	if err != nil {
		return nil, fmt.Errorf("query dedup run: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query dedup run: %w", err)
		}
		return nil, ErrNoRows
	}

	row, err := scanDedupRun(rows)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// GetLatestDedupRun loads the most recent run, optionally only completed ones.
func (p *Pool) GetLatestDedupRun(ctx context.Context, completedOnly bool) (*DedupRunSummary, error) {
	q := dedupRunSelect + `
WHERE ($1 = FALSE OR r.status = 'completed')
ORDER BY r.started_at DESC, r.run_id DESC
LIMIT 1
`

	rows, err := p.Query(ctx, q, completedOnly)
	if err != nil {
		return nil, fmt.Errorf("query latest dedup run: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query latest dedup run: %w", err)
		}
		return nil, ErrNoRows
	}

	row, err := scanDedupRun(rows)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

const dedupRunSelect = `
SELECT
	r.run_id,
	r.run_uuid::text,
	r.started_at,
	r.finished_at,
	r.status::text,
	r.stage,
	r.bootstrap,
	r.lookback_hours,
	r.total_input,
	r.malformed_input,
	r.merge_collisions,
	r.url_duplicates,
	r.unique_kept,
	r.auto_discarded,
	r.confirmed_duplicate,
	r.confirmed_unique,
	r.arbitration_failures,
	r.commit_failures,
	r.stored,
	r.error_message
FROM news.dedup_runs r
`

func scanDedupRun(rows *Rows) (DedupRunSummary, error) {
	var row DedupRunSummary
	if err := rows.Scan(
		&row.RunID,
		&row.RunUUID,
		&row.StartedAt,
		&row.FinishedAt,
		&row.Status,
		&row.Stage,
		&row.Bootstrap,
		&row.LookbackHours,
		&row.Counters.TotalInput,
		&row.Counters.MalformedInput,
		&row.Counters.MergeCollisions,
		&row.Counters.URLDuplicates,
		&row.Counters.UniqueKept,
		&row.Counters.AutoDiscarded,
		&row.Counters.ConfirmedDuplicate,
		&row.Counters.ConfirmedUnique,
		&row.Counters.ArbitrationFailures,
		&row.Counters.CommitFailures,
		&row.Counters.Stored,
		&row.ErrorMessage,
	); err != nil {
		return DedupRunSummary{}, fmt.Errorf("scan dedup run row: %w", err)
	}
	return row, nil
}

// IsRunNotFound reports whether the error marks a missing run.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrNoRows)
}
