package store

import (
	"context"
	"errors"

	"github.com/rcliao/elara-memory/internal/model"
)

// RelatedResult is a memory together with the entries its RelatedTo list
// points at. References to deleted or unknown ids are reported in Dangling.
type RelatedResult struct {
	Memory   model.Memory   `json:"memory" yaml:"memory"`
	Related  []model.Memory `json:"related" yaml:"related"`
	Dangling []string       `json:"dangling,omitempty" yaml:"dangling,omitempty"`
}

// Related resolves the RelatedTo references of the memory with the given id.
func (s *SQLiteStore) Related(ctx context.Context, id string) (*RelatedResult, error) {
	root, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	res := &RelatedResult{Memory: *root, Related: []model.Memory{}}
	for _, ref := range root.RelatedTo {
		m, err := s.Get(ctx, ref)
		if errors.Is(err, ErrNotFound) {
			res.Dangling = append(res.Dangling, ref)
			continue
		}
		if err != nil {
			return nil, err
		}
		res.Related = append(res.Related, *m)
	}
	return res, nil
}

// Link adds targets to the RelatedTo list of id. Targets are not required to
// exist. Already linked ids and self references are ignored.
func (s *SQLiteStore) Link(ctx context.Context, id string, targets ...string) (*model.Memory, error) {
	return s.editLinks(ctx, id, func(cur []string) []string {
		out := append([]string(nil), cur...)
		for _, t := range targets {
			if t == "" || t == id || contains(out, t) {
				continue
			}
			out = append(out, t)
		}
		return out
	})
}

// Unlink removes targets from the RelatedTo list of id.
func (s *SQLiteStore) Unlink(ctx context.Context, id string, targets ...string) (*model.Memory, error) {
	return s.editLinks(ctx, id, func(cur []string) []string {
		var out []string
		for _, r := range cur {
			if !contains(targets, r) {
				out = append(out, r)
			}
		}
		return out
	})
}

func (s *SQLiteStore) editLinks(ctx context.Context, id string, edit func([]string) []string) (*model.Memory, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next := edit(cur.RelatedTo)
	return s.Update(ctx, id, UpdateParams{RelatedTo: &next})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
