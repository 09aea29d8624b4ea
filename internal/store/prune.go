package store

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/rcliao/elara-memory/internal/logging"
)

// Default pruning thresholds.
const (
	DefaultPruneDays          = 90
	DefaultPruneMinImportance = 5
)

// Prune deletes every memory that is older than daysToKeep days AND has an
// importance below minImportance. Both conditions must hold. It returns the
// number of deleted entries.
func (s *SQLiteStore) Prune(ctx context.Context, daysToKeep, minImportance int) (int, error) {
	if daysToKeep < 0 {
		return 0, goerr.Wrap(ErrRecordValidation, "days to keep must not be negative", goerr.V("days", daysToKeep))
	}

	db, err := s.handle()
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-time.Duration(daysToKeep) * 24 * time.Hour).UnixMilli()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, goerr.Wrap(err, "begin prune")
	}
	defer tx.Rollback()

	const cond = `timestamp < ? AND importance < ?`
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM memory_tags WHERE memory_id IN (SELECT id FROM memories WHERE `+cond+`)`,
		cutoff, minImportance); err != nil {
		return 0, goerr.Wrap(err, "prune tags")
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE `+cond, cutoff, minImportance)
	if err != nil {
		return 0, goerr.Wrap(err, "prune memories")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, goerr.Wrap(err, "prune rows affected")
	}

	if err := tx.Commit(); err != nil {
		return 0, goerr.Wrap(err, "commit prune")
	}

	logging.From(ctx).Info("pruned memories",
		"deleted", n, "days_to_keep", daysToKeep, "min_importance", minImportance)
	return int(n), nil
}
