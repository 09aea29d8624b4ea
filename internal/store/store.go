// Package store provides the memory storage interface and SQLite implementation.
package store

import (
	"context"
	"time"

	"github.com/rcliao/elara-memory/internal/model"
)

// Re-exported so callers of the store need not import model for error checks.
var (
	ErrStorageUnavailable = model.ErrStorageUnavailable
	ErrNotFound           = model.ErrNotFound
	ErrMalformedSnapshot  = model.ErrMalformedSnapshot
	ErrRecordValidation   = model.ErrRecordValidation
)

// PutParams holds parameters for storing a memory. The id is always assigned
// by the store. A zero Timestamp means "now".
type PutParams struct {
	Type       model.MemoryType
	Content    string
	Timestamp  time.Time
	Importance int
	Tags       []string
	Source     string
	RelatedTo  []string
	Embedding  []float64
}

// UpdateParams holds the fields to merge into an existing memory. Nil fields
// are left unchanged.
type UpdateParams struct {
	Type       *model.MemoryType
	Content    *string
	Timestamp  *time.Time
	Importance *int
	Tags       *[]string
	Source     *string
	RelatedTo  *[]string
	Embedding  *[]float64
}

// SortKey selects the ordering of query results. Both keys sort descending.
type SortKey string

const (
	SortByTimestamp  SortKey = "timestamp"
	SortByImportance SortKey = "importance"
)

// QueryParams filters, sorts and limits a query.
//
// Tags match if the entry carries ANY of the given tags (logical OR).
// MinImportance is an inclusive lower bound; 0 disables it. Limit 0 means no cap.
type QueryParams struct {
	Type          model.MemoryType
	MinImportance int
	Tags          []string
	Limit         int
	SortBy        SortKey
}

// Store defines the memory storage interface.
type Store interface {
	// Initialize opens the underlying database and ensures the schema. Idempotent.
	Initialize(ctx context.Context) error

	// Put stores a new memory under a freshly generated id.
	Put(ctx context.Context, p PutParams) (*model.Memory, error)

	// Get retrieves a memory by id.
	Get(ctx context.Context, id string) (*model.Memory, error)

	// GetAll returns every memory, or only those of typ when it is non-empty.
	GetAll(ctx context.Context, typ model.MemoryType) ([]model.Memory, error)

	// Update merges p into the memory with the given id.
	Update(ctx context.Context, id string, p UpdateParams) (*model.Memory, error)

	// Delete removes a memory permanently.
	Delete(ctx context.Context, id string) error

	// ClearAll removes every memory. Profiles are untouched.
	ClearAll(ctx context.Context) error

	// WipeAll removes memories and profiles.
	WipeAll(ctx context.Context) error

	Count(ctx context.Context) (int, error)
	AverageImportance(ctx context.Context) (float64, error)

	Query(ctx context.Context, p QueryParams) ([]model.Memory, error)
	Search(ctx context.Context, text string) ([]model.Memory, error)
	Prune(ctx context.Context, daysToKeep, minImportance int) (int, error)
	Stats(ctx context.Context) (*Stats, error)
	Context(ctx context.Context, p ContextParams) (*ContextResult, error)

	// Related resolves the RelatedTo references of a memory.
	Related(ctx context.Context, id string) (*RelatedResult, error)
	Link(ctx context.Context, id string, targets ...string) (*model.Memory, error)
	Unlink(ctx context.Context, id string, targets ...string) (*model.Memory, error)

	Export(ctx context.Context) (*Snapshot, error)
	Import(ctx context.Context, data []byte) (*ImportResult, error)

	SaveProfile(ctx context.Context, p *model.Profile) (*model.Profile, error)
	GetProfile(ctx context.Context, id string) (*model.Profile, error)

	// Close closes the store.
	Close() error
}

var _ Store = (*SQLiteStore)(nil)
