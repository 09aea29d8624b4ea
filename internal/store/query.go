package store

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/rcliao/elara-memory/internal/model"
)

// Query returns the memories matching every filter in p, sorted descending by
// p.SortBy (timestamp when empty). Ties keep insertion order.
func (s *SQLiteStore) Query(ctx context.Context, p QueryParams) ([]model.Memory, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	var where []string
	var args []any

	if p.Type != "" {
		if !p.Type.Valid() {
			return nil, goerr.Wrap(ErrRecordValidation, "unknown memory type", goerr.V("type", string(p.Type)))
		}
		where = append(where, "m.type = ?")
		args = append(args, string(p.Type))
	}
	if p.MinImportance != 0 {
		where = append(where, "m.importance >= ?")
		args = append(args, p.MinImportance)
	}
	if tags := model.NormalizeTags(p.Tags); len(tags) > 0 {
		where = append(where, "EXISTS (SELECT 1 FROM memory_tags t WHERE t.memory_id = m.id AND t.tag IN ("+placeholders(len(tags))+"))")
		for _, tag := range tags {
			args = append(args, tag)
		}
	}

	var order string
	switch p.SortBy {
	case "", SortByTimestamp:
		order = "m.timestamp DESC, m.seq ASC"
	case SortByImportance:
		order = "m.importance DESC, m.seq ASC"
	default:
		return nil, goerr.Wrap(ErrRecordValidation, "unknown sort key", goerr.V("sort_by", string(p.SortBy)))
	}

	if p.Limit < 0 {
		return nil, goerr.Wrap(ErrRecordValidation, "limit must not be negative", goerr.V("limit", p.Limit))
	}

	query := `SELECT ` + memoryColumns + ` FROM memories m`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY ` + order
	if p.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, p.Limit)
	}

	return queryMemories(ctx, db, query, args...)
}
