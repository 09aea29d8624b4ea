// Package agentmem is the agent-facing memory API. It wraps a store.Store and
// degrades to a stateless mode when the store cannot be opened, so the agent
// keeps working without persistence.
package agentmem

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/rcliao/elara-memory/internal/logging"
	"github.com/rcliao/elara-memory/internal/model"
	"github.com/rcliao/elara-memory/internal/store"
)

// Tags, importances and sources the agent uses when recording its own activity.
const (
	TagUserMessage       = "user-message"
	TagAssistantResponse = "assistant-response"
	TagLearning          = "learning"
	TagKnowledgeGap      = "knowledge-gap"

	SourceUserInput    = "user-input"
	SourceModel        = "gemini-api"
	SourceSelfLearning = "self-learning"

	ImportanceUserMessage = 5
	ImportanceResponse    = 6
	ImportanceKnowledge   = 8
)

// Memory is the agent's handle on long-term memory.
type Memory struct {
	store     store.Store
	logger    *slog.Logger
	available bool
}

// New initializes st. If the store is unavailable the returned Memory runs in
// stateless mode and New returns no error; any other failure is returned.
func New(ctx context.Context, st store.Store, logger *slog.Logger) (*Memory, error) {
	if logger == nil {
		logger = logging.From(ctx)
	}
	m := &Memory{store: st, logger: logger}

	if err := st.Initialize(ctx); err != nil {
		if !errors.Is(err, store.ErrStorageUnavailable) {
			return nil, err
		}
		logger.Warn("memory store unavailable, running without persistence", "error", err)
		return m, nil
	}

	m.available = true
	return m, nil
}

// Available reports whether memory is persisted.
func (m *Memory) Available() bool { return m.available }

// Store returns the underlying store.
func (m *Memory) Store() store.Store { return m.store }

// StoreMemory persists an entry and returns its id. In stateless mode it
// returns an empty id.
func (m *Memory) StoreMemory(ctx context.Context, p store.PutParams) (string, error) {
	if !m.available {
		return "", nil
	}
	mem, err := m.store.Put(ctx, p)
	if err != nil {
		return "", err
	}
	m.logger.Debug("stored memory", "id", mem.ID, "type", mem.Type, "importance", mem.Importance)
	return mem.ID, nil
}

func (m *Memory) QueryMemories(ctx context.Context, p store.QueryParams) ([]model.Memory, error) {
	if !m.available {
		return []model.Memory{}, nil
	}
	return m.store.Query(ctx, p)
}

func (m *Memory) SearchMemories(ctx context.Context, text string) ([]model.Memory, error) {
	if !m.available {
		return []model.Memory{}, nil
	}
	return m.store.Search(ctx, text)
}

func (m *Memory) PruneMemories(ctx context.Context, daysToKeep, minImportance int) (int, error) {
	if !m.available {
		return 0, nil
	}
	return m.store.Prune(ctx, daysToKeep, minImportance)
}

func (m *Memory) GetMemoryStats(ctx context.Context) (*store.Stats, error) {
	if !m.available {
		return &store.Stats{ByType: map[model.MemoryType]int{}, TopTags: []store.TagCount{}}, nil
	}
	return m.store.Stats(ctx)
}

func (m *Memory) ExportMemoryData(ctx context.Context) (*store.Snapshot, error) {
	if !m.available {
		return &store.Snapshot{
			Version:    store.SnapshotVersion,
			ExportDate: time.Now().UTC(),
			Memories:   []store.SnapshotMemory{},
		}, nil
	}
	return m.store.Export(ctx)
}

// ImportMemoryData imports a snapshot. In stateless mode the document is
// still validated, and a well-formed one fails with ErrStorageUnavailable
// since nothing can be saved.
func (m *Memory) ImportMemoryData(ctx context.Context, data []byte) (*store.ImportResult, error) {
	if !m.available {
		if err := store.ValidateSnapshot(data); err != nil {
			return nil, err
		}
		return nil, goerr.Wrap(store.ErrStorageUnavailable, "cannot import without persistence")
	}
	return m.store.Import(ctx, data)
}

// GetUserProfile returns the profile with the given id ("default" when empty),
// or a fresh one when none has been saved yet.
func (m *Memory) GetUserProfile(ctx context.Context, id string) (*model.Profile, error) {
	if id == "" {
		id = model.DefaultProfileID
	}
	if !m.available {
		return model.NewProfile(id), nil
	}
	p, err := m.store.GetProfile(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.NewProfile(id), nil
	}
	return p, err
}

func (m *Memory) SaveUserProfile(ctx context.Context, p *model.Profile) error {
	if !m.available {
		return nil
	}
	_, err := m.store.SaveProfile(ctx, p)
	return err
}

func (m *Memory) BuildContext(ctx context.Context, p store.ContextParams) (*store.ContextResult, error) {
	if !m.available {
		budget := p.Budget
		if budget <= 0 {
			budget = store.DefaultContextBudget
		}
		return &store.ContextResult{Budget: budget, Memories: []store.ContextMemory{}}, nil
	}
	return m.store.Context(ctx, p)
}

// Exchange is one user turn and the assistant's reply.
type Exchange struct {
	Tool      string // active tool, recorded as a tag and a discussed topic
	UserInput string
	Response  string
}

// RecordExchange stores both sides of an exchange as conversation entries and
// updates the profile's interaction history. Nothing is recorded when the
// response is empty.
func (m *Memory) RecordExchange(ctx context.Context, ex Exchange) ([]string, error) {
	if !m.available || ex.Response == "" {
		return nil, nil
	}

	entries := []store.PutParams{
		{
			Type:       model.TypeConversation,
			Content:    ex.UserInput,
			Importance: ImportanceUserMessage,
			Tags:       []string{ex.Tool, TagUserMessage},
			Source:     SourceUserInput,
		},
		{
			Type:       model.TypeConversation,
			Content:    ex.Response,
			Importance: ImportanceResponse,
			Tags:       []string{ex.Tool, TagAssistantResponse},
			Source:     SourceModel,
		},
	}

	var ids []string
	for _, e := range entries {
		id, err := m.StoreMemory(ctx, e)
		if err != nil {
			return ids, goerr.Wrap(err, "record exchange", goerr.V("tool", ex.Tool))
		}
		ids = append(ids, id)
	}

	prof, err := m.GetUserProfile(ctx, "")
	if err != nil {
		return ids, err
	}
	prof.InteractionHistory.TotalMessages += len(ids)
	prof.InteractionHistory.AddTopic(ex.Tool)
	if err := m.SaveUserProfile(ctx, prof); err != nil {
		return ids, err
	}
	return ids, nil
}

// RecordKnowledge stores a summary the agent learned to fill a knowledge gap.
func (m *Memory) RecordKnowledge(ctx context.Context, summary string) (string, error) {
	return m.StoreMemory(ctx, store.PutParams{
		Type:       model.TypeKnowledge,
		Content:    summary,
		Importance: ImportanceKnowledge,
		Tags:       []string{TagLearning, TagKnowledgeGap},
		Source:     SourceSelfLearning,
	})
}
