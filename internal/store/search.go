package store

import (
	"context"
	"strings"

	"golang.org/x/text/cases"

	"github.com/rcliao/elara-memory/internal/model"
)

// Search returns the memories whose content or any tag contains text,
// compared case-insensitively. Results are in insertion order. Empty text
// matches everything.
func (s *SQLiteStore) Search(ctx context.Context, text string) ([]model.Memory, error) {
	all, err := s.GetAll(ctx, "")
	if err != nil {
		return nil, err
	}
	if text == "" {
		return all, nil
	}

	fold := cases.Fold()
	needle := fold.String(text)

	results := []model.Memory{}
	for _, m := range all {
		if matchesFolded(fold, m, needle) {
			results = append(results, m)
		}
	}
	return results, nil
}

func matchesFolded(fold cases.Caser, m model.Memory, needle string) bool {
	if strings.Contains(fold.String(m.Content), needle) {
		return true
	}
	for _, tag := range m.Tags {
		if strings.Contains(fold.String(tag), needle) {
			return true
		}
	}
	return false
}
