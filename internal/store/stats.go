package store

import (
	"context"
	"database/sql"

	"github.com/m-mizutani/goerr/v2"

	"github.com/rcliao/elara-memory/internal/model"
)

const topTagLimit = 10

// Stats holds aggregate statistics about the store.
type Stats struct {
	TotalCount    int                      `json:"total_count" yaml:"total_count"`
	ByType        map[model.MemoryType]int `json:"by_type" yaml:"by_type"`
	AvgImportance float64                  `json:"avg_importance" yaml:"avg_importance"`
	TopTags       []TagCount               `json:"top_tags" yaml:"top_tags"`
}

// TagCount is a tag and the number of entries carrying it.
type TagCount struct {
	Tag   string `json:"tag" yaml:"tag"`
	Count int    `json:"count" yaml:"count"`
}

// Stats computes counts per type, mean importance and the ten most frequent
// tags. Tag ties are broken alphabetically.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	st := &Stats{ByType: map[model.MemoryType]int{}, TopTags: []TagCount{}}

	var avg sql.NullFloat64
	err = db.QueryRowContext(ctx, `SELECT COUNT(*), AVG(importance) FROM memories`).Scan(&st.TotalCount, &avg)
	if err != nil {
		return nil, goerr.Wrap(err, "count memories")
	}
	st.AvgImportance = avg.Float64

	rows, err := db.QueryContext(ctx, `SELECT type, COUNT(*) FROM memories GROUP BY type ORDER BY type`)
	if err != nil {
		return nil, goerr.Wrap(err, "count by type")
	}
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			rows.Close()
			return nil, goerr.Wrap(err, "scan type count")
		}
		st.ByType[model.MemoryType(typ)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "iterate type counts")
	}

	rows, err = db.QueryContext(ctx,
		`SELECT tag, COUNT(*) AS n FROM memory_tags GROUP BY tag ORDER BY n DESC, tag ASC LIMIT ?`, topTagLimit)
	if err != nil {
		return nil, goerr.Wrap(err, "top tags")
	}
	defer rows.Close()
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, goerr.Wrap(err, "scan tag count")
		}
		st.TopTags = append(st.TopTags, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "iterate tag counts")
	}

	return st, nil
}
