package db

import (
	"context"
	"fmt"
	"time"
)

// SoftDeleteArticlesBefore soft-deletes stored articles created before the
// cutoff. Soft-deleted rows leave the similarity candidate pool and the URL
// pre-check; a recommit of the same URL leaves the stored row untouched.
func (p *Pool) SoftDeleteArticlesBefore(ctx context.Context, before time.Time, now time.Time) (int64, error) {
	beforeUTC := before.UTC()
	if beforeUTC.IsZero() {
		return 0, fmt.Errorf("before time is required")
	}

	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const q = `
UPDATE news.articles
SET
	deleted_at = $2,
	updated_at = $2
WHERE created_at < $1
  AND deleted_at IS NULL
`
	tag, err := tx.Exec(ctx, q, beforeUTC, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("soft delete articles before=%s: %w", beforeUTC.Format(time.RFC3339), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	return tag.RowsAffected(), nil
}
