package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/rcliao/elara-memory/internal/model"
)

// SnapshotVersion is the snapshot format version written by Export and the
// newest version Import accepts.
const SnapshotVersion = 1

// Snapshot is the portable JSON document produced by Export and consumed by
// Import. Timestamps inside memories and the profile are epoch milliseconds.
type Snapshot struct {
	Version    int              `json:"version"`
	ExportDate time.Time        `json:"exportDate"`
	Memories   []SnapshotMemory `json:"memories"`
	Profile    *SnapshotProfile `json:"profile"`
}

// SnapshotMemory is a memory entry in snapshot form.
type SnapshotMemory struct {
	ID        string           `json:"id"`
	Type      model.MemoryType `json:"type"`
	Content   string           `json:"content"`
	Metadata  SnapshotMetadata `json:"metadata"`
	Embedding []float64        `json:"embedding,omitempty"`
}

// SnapshotMetadata groups the descriptive fields of a SnapshotMemory.
type SnapshotMetadata struct {
	Timestamp  int64    `json:"timestamp"`
	Importance int      `json:"importance"`
	Tags       []string `json:"tags"`
	RelatedTo  []string `json:"relatedTo,omitempty"`
	Source     string   `json:"source,omitempty"`
}

// SnapshotProfile is the user profile in snapshot form.
type SnapshotProfile struct {
	ID                 string            `json:"id"`
	Preferences        model.Preferences `json:"preferences"`
	InteractionHistory SnapshotHistory   `json:"interactionHistory"`
	LastUpdated        int64             `json:"lastUpdated"`
}

// SnapshotHistory mirrors model.InteractionHistory.
type SnapshotHistory struct {
	TotalMessages    int      `json:"totalMessages"`
	TopicsDiscussed  []string `json:"topicsDiscussed"`
	FavoriteFeatures []string `json:"favoriteFeatures"`
}

// Encode writes the snapshot as indented JSON.
func (sn *Snapshot) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sn)
}

// Export captures every memory (newest first) and the default profile.
func (s *SQLiteStore) Export(ctx context.Context) (*Snapshot, error) {
	mems, err := s.Query(ctx, QueryParams{})
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Version:    SnapshotVersion,
		ExportDate: toMillis(s.now()),
		Memories:   make([]SnapshotMemory, 0, len(mems)),
	}
	for _, m := range mems {
		snap.Memories = append(snap.Memories, toSnapshotMemory(m))
	}

	prof, err := s.GetProfile(ctx, model.DefaultProfileID)
	switch {
	case err == nil:
		snap.Profile = toSnapshotProfile(prof)
	case errors.Is(err, ErrNotFound):
	default:
		return nil, goerr.Wrap(err, "export profile")
	}

	return snap, nil
}

func toSnapshotMemory(m model.Memory) SnapshotMemory {
	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}
	return SnapshotMemory{
		ID:      m.ID,
		Type:    m.Type,
		Content: m.Content,
		Metadata: SnapshotMetadata{
			Timestamp:  m.Timestamp.UnixMilli(),
			Importance: m.Importance,
			Tags:       tags,
			RelatedTo:  m.RelatedTo,
			Source:     m.Source,
		},
		Embedding: m.Embedding,
	}
}

func toSnapshotProfile(p *model.Profile) *SnapshotProfile {
	return &SnapshotProfile{
		ID:          p.ID,
		Preferences: p.Preferences,
		InteractionHistory: SnapshotHistory{
			TotalMessages:    p.InteractionHistory.TotalMessages,
			TopicsDiscussed:  p.InteractionHistory.TopicsDiscussed,
			FavoriteFeatures: p.InteractionHistory.FavoriteFeatures,
		},
		LastUpdated: p.LastUpdated.UnixMilli(),
	}
}
