// Package model defines the core memory data types.
package model

import (
	"math"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Error taxonomy shared by the store and its callers. Call sites wrap these
// with goerr.Wrap so errors.Is keeps working through the chain.
var (
	ErrStorageUnavailable = goerr.New("storage unavailable")
	ErrNotFound           = goerr.New("not found")
	ErrMalformedSnapshot  = goerr.New("malformed snapshot")
	ErrRecordValidation   = goerr.New("invalid record")
)

// MemoryType classifies a memory entry. The set is closed.
type MemoryType string

const (
	TypeConversation   MemoryType = "conversation"
	TypeKnowledge      MemoryType = "knowledge"
	TypeUserPreference MemoryType = "user_preference"
	TypeContext        MemoryType = "context"
	TypeInsight        MemoryType = "insight"
)

// MemoryTypes lists every valid type in declaration order.
var MemoryTypes = []MemoryType{
	TypeConversation,
	TypeKnowledge,
	TypeUserPreference,
	TypeContext,
	TypeInsight,
}

// Valid reports whether t is one of MemoryTypes.
func (t MemoryType) Valid() bool {
	for _, v := range MemoryTypes {
		if t == v {
			return true
		}
	}
	return false
}

// ParseMemoryType converts s into a MemoryType, rejecting unknown values.
func ParseMemoryType(s string) (MemoryType, error) {
	t := MemoryType(strings.TrimSpace(s))
	if !t.Valid() {
		return "", goerr.Wrap(ErrRecordValidation, "unknown memory type", goerr.V("type", s))
	}
	return t, nil
}

// Memory is a single persisted entry of the agent's long-term memory.
type Memory struct {
	ID         string     `json:"id"`
	Type       MemoryType `json:"type"`
	Content    string     `json:"content"`
	Timestamp  time.Time  `json:"timestamp"`
	Importance int        `json:"importance"`
	Tags       []string   `json:"tags,omitempty"`
	Source     string     `json:"source,omitempty"`
	RelatedTo  []string   `json:"related_to,omitempty"`
	Embedding  []float64  `json:"embedding,omitempty"`
}

// Validate checks the shape constraints enforced on every write path.
// Importance is deliberately unchecked: out-of-range values are stored as given.
func (m *Memory) Validate() error {
	if !m.Type.Valid() {
		return goerr.Wrap(ErrRecordValidation, "unknown memory type", goerr.V("type", string(m.Type)))
	}
	if strings.TrimSpace(m.Content) == "" {
		return goerr.Wrap(ErrRecordValidation, "content is empty")
	}
	for i, v := range m.Embedding {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return goerr.Wrap(ErrRecordValidation, "embedding value is not finite", goerr.V("index", i))
		}
	}
	return nil
}

// HasTag reports whether tag is one of m's tags (exact match).
func (m *Memory) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers never share slices with the store.
func (m Memory) Clone() Memory {
	m.Tags = cloneStrings(m.Tags)
	m.RelatedTo = cloneStrings(m.RelatedTo)
	if m.Embedding != nil {
		m.Embedding = append([]float64(nil), m.Embedding...)
	}
	return m
}

// NormalizeTags drops empty tags and duplicates, keeping first-seen order.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
