package store

import (
	"context"
	"math"
	"sort"
	"unicode/utf8"

	"github.com/rcliao/elara-memory/internal/model"
)

// DefaultContextBudget is the token budget used when ContextParams.Budget is unset.
const DefaultContextBudget = 4000

// ContextParams holds parameters for context assembly.
type ContextParams struct {
	Query         string
	Type          model.MemoryType
	Tags          []string
	MinImportance int
	Budget        int // max tokens in output (rough proxy: 1 token ≈ 4 chars)
}

// ContextMemory is a scored memory for context output.
type ContextMemory struct {
	ID         string           `json:"id" yaml:"id"`
	Type       model.MemoryType `json:"type" yaml:"type"`
	Content    string           `json:"content" yaml:"content"`
	Importance int              `json:"importance" yaml:"importance"`
	Score      float64          `json:"score" yaml:"score"`
	Excerpt    bool             `json:"excerpt,omitempty" yaml:"excerpt,omitempty"`
}

// ContextResult is the assembled context response.
type ContextResult struct {
	Budget   int             `json:"budget" yaml:"budget"`
	Used     int             `json:"used" yaml:"used"`
	Memories []ContextMemory `json:"memories" yaml:"memories"`
}

// Context assembles the most relevant memories that fit within a token budget.
func (s *SQLiteStore) Context(ctx context.Context, p ContextParams) (*ContextResult, error) {
	budget := p.Budget
	if budget <= 0 {
		budget = DefaultContextBudget
	}
	charBudget := budget * 4

	found, err := s.Search(ctx, p.Query)
	if err != nil {
		return nil, err
	}

	tags := model.NormalizeTags(p.Tags)
	now := s.now()
	type scored struct {
		memory model.Memory
		score  float64
	}
	var candidates []scored

	for _, m := range found {
		if p.Type != "" && m.Type != p.Type {
			continue
		}
		if p.MinImportance != 0 && m.Importance < p.MinImportance {
			continue
		}
		if len(tags) > 0 && !hasAnyTag(m, tags) {
			continue
		}

		// A text match is worth more than an unfiltered listing.
		relevance := 0.5
		if p.Query != "" {
			relevance = 1.0
		}

		age := now.Sub(m.Timestamp).Hours() / 24.0
		recency := math.Exp(-0.1 * math.Max(age, 0))

		importance := math.Min(math.Max(float64(m.Importance)/10, 0), 1)

		score := relevance*0.4 + recency*0.3 + importance*0.3
		candidates = append(candidates, scored{memory: m, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	result := &ContextResult{Budget: budget, Memories: []ContextMemory{}}
	used := 0

	for _, c := range candidates {
		cm := ContextMemory{
			ID:         c.memory.ID,
			Type:       c.memory.Type,
			Content:    c.memory.Content,
			Importance: c.memory.Importance,
			Score:      math.Round(c.score*100) / 100,
		}
		contentLen := len(c.memory.Content)
		if used+contentLen <= charBudget {
			result.Memories = append(result.Memories, cm)
			used += contentLen
			continue
		}
		if remaining := charBudget - used; remaining >= 100 {
			cm.Content = truncateUTF8(c.memory.Content, remaining) + "..."
			cm.Excerpt = true
			result.Memories = append(result.Memories, cm)
			used += len(cm.Content)
		}
		break
	}

	result.Used = used / 4
	return result, nil
}

func hasAnyTag(m model.Memory, tags []string) bool {
	for _, t := range tags {
		if m.HasTag(t) {
			return true
		}
	}
	return false
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
