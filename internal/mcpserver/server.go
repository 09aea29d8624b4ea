// Package mcpserver exposes agent memory as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rcliao/elara-memory/internal/agentmem"
	"github.com/rcliao/elara-memory/internal/model"
	"github.com/rcliao/elara-memory/internal/store"
)

type Server struct {
	mem    *agentmem.Memory
	server *mcp.Server
}

// New registers every memory tool on a fresh MCP server.
func New(mem *agentmem.Memory, version string) *Server {
	s := &Server{
		mem: mem,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "elara-memory",
			Version: version,
		}, nil),
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "store_memory",
		Description: "Store a memory entry and return its id",
	}, s.storeMemory)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "query_memories",
		Description: "List memories filtered by type, minimum importance and tags (any match), sorted by timestamp or importance",
	}, s.queryMemories)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_memories",
		Description: "Case-insensitive substring search over memory content and tags",
	}, s.searchMemories)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "prune_memories",
		Description: "Delete memories that are both older than days_to_keep and less important than min_importance",
	}, s.pruneMemories)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "memory_stats",
		Description: "Count memories per type and report average importance and top tags",
	}, s.memoryStats)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "export_memories",
		Description: "Export all memories and the user profile as a JSON snapshot",
	}, s.exportMemories)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "import_memories",
		Description: "Import a JSON snapshot; every memory gets a new id",
	}, s.importMemories)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_profile",
		Description: "Return the user profile",
	}, s.getProfile)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "set_preference",
		Description: "Set a user preference (string, number, boolean or list of strings)",
	}, s.setPreference)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "build_context",
		Description: "Assemble the most relevant memories within a token budget",
	}, s.buildContext)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "related_memories",
		Description: "Resolve the related_to references of a memory",
	}, s.relatedMemories)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "record_exchange",
		Description: "Record a user message and the assistant reply as conversation memories",
	}, s.recordExchange)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "record_knowledge",
		Description: "Record a learned summary that fills a knowledge gap",
	}, s.recordKnowledge)

	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *mcp.Server { return s.server }

// Run serves over stdin/stdout until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

type storeMemoryParams struct {
	Type       string    `json:"type" jsonschema:"One of conversation, knowledge, user_preference, context, insight"`
	Content    string    `json:"content" jsonschema:"The memory text"`
	Importance int       `json:"importance,omitempty" jsonschema:"Importance, nominally 0-10"`
	Tags       []string  `json:"tags,omitempty" jsonschema:"Free-form labels"`
	Source     string    `json:"source,omitempty" jsonschema:"Where the memory came from"`
	RelatedTo  []string  `json:"related_to,omitempty" jsonschema:"Ids of related memories"`
	Timestamp  string    `json:"timestamp,omitempty" jsonschema:"RFC3339 time; defaults to now"`
	Embedding  []float64 `json:"embedding,omitempty" jsonschema:"Optional vector, stored opaquely"`
}

func (s *Server) storeMemory(ctx context.Context, _ *mcp.CallToolRequest, p *storeMemoryParams) (*mcp.CallToolResult, any, error) {
	typ, err := model.ParseMemoryType(p.Type)
	if err != nil {
		return nil, nil, err
	}
	var ts time.Time
	if p.Timestamp != "" {
		if ts, err = time.Parse(time.RFC3339, p.Timestamp); err != nil {
			return nil, nil, goerr.Wrap(store.ErrRecordValidation, "invalid timestamp", goerr.V("timestamp", p.Timestamp))
		}
	}

	id, err := s.mem.StoreMemory(ctx, store.PutParams{
		Type:       typ,
		Content:    p.Content,
		Timestamp:  ts,
		Importance: p.Importance,
		Tags:       p.Tags,
		Source:     p.Source,
		RelatedTo:  p.RelatedTo,
		Embedding:  p.Embedding,
	})
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(map[string]any{"id": id, "persisted": s.mem.Available()})
}

type queryMemoriesParams struct {
	Type          string   `json:"type,omitempty" jsonschema:"Only return memories of this type"`
	MinImportance int      `json:"min_importance,omitempty" jsonschema:"Inclusive lower bound on importance"`
	Tags          []string `json:"tags,omitempty" jsonschema:"Return memories carrying any of these tags"`
	Limit         int      `json:"limit,omitempty" jsonschema:"Maximum number of results; 0 means no limit"`
	SortBy        string   `json:"sort_by,omitempty" jsonschema:"timestamp (default) or importance, both descending"`
}

func (s *Server) queryMemories(ctx context.Context, _ *mcp.CallToolRequest, p *queryMemoriesParams) (*mcp.CallToolResult, any, error) {
	mems, err := s.mem.QueryMemories(ctx, store.QueryParams{
		Type:          model.MemoryType(p.Type),
		MinImportance: p.MinImportance,
		Tags:          p.Tags,
		Limit:         p.Limit,
		SortBy:        store.SortKey(p.SortBy),
	})
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(mems)
}

type searchMemoriesParams struct {
	Text string `json:"text" jsonschema:"Text to look for; empty matches everything"`
}

func (s *Server) searchMemories(ctx context.Context, _ *mcp.CallToolRequest, p *searchMemoriesParams) (*mcp.CallToolResult, any, error) {
	mems, err := s.mem.SearchMemories(ctx, p.Text)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(mems)
}

type pruneMemoriesParams struct {
	DaysToKeep    *int `json:"days_to_keep,omitempty" jsonschema:"Age threshold in days (default 90)"`
	MinImportance *int `json:"min_importance,omitempty" jsonschema:"Importance threshold (default 5)"`
}

func (s *Server) pruneMemories(ctx context.Context, _ *mcp.CallToolRequest, p *pruneMemoriesParams) (*mcp.CallToolResult, any, error) {
	days, minImp := store.DefaultPruneDays, store.DefaultPruneMinImportance
	if p.DaysToKeep != nil {
		days = *p.DaysToKeep
	}
	if p.MinImportance != nil {
		minImp = *p.MinImportance
	}
	n, err := s.mem.PruneMemories(ctx, days, minImp)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(map[string]int{"deleted": n})
}

type emptyParams struct{}

func (s *Server) memoryStats(ctx context.Context, _ *mcp.CallToolRequest, _ *emptyParams) (*mcp.CallToolResult, any, error) {
	st, err := s.mem.GetMemoryStats(ctx)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(st)
}

func (s *Server) exportMemories(ctx context.Context, _ *mcp.CallToolRequest, _ *emptyParams) (*mcp.CallToolResult, any, error) {
	snap, err := s.mem.ExportMemoryData(ctx)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(snap)
}

type importMemoriesParams struct {
	Snapshot string `json:"snapshot" jsonschema:"Snapshot JSON document as produced by export_memories"`
}

func (s *Server) importMemories(ctx context.Context, _ *mcp.CallToolRequest, p *importMemoriesParams) (*mcp.CallToolResult, any, error) {
	res, err := s.mem.ImportMemoryData(ctx, []byte(p.Snapshot))
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(res)
}

type getProfileParams struct {
	ID string `json:"id,omitempty" jsonschema:"Profile id, defaults to the default profile"`
}

func (s *Server) getProfile(ctx context.Context, _ *mcp.CallToolRequest, p *getProfileParams) (*mcp.CallToolResult, any, error) {
	prof, err := s.mem.GetUserProfile(ctx, p.ID)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(prof)
}

type setPreferenceParams struct {
	Key   string `json:"key" jsonschema:"Preference name"`
	Value any    `json:"value" jsonschema:"String, number, boolean or list of strings"`
}

func (s *Server) setPreference(ctx context.Context, _ *mcp.CallToolRequest, p *setPreferenceParams) (*mcp.CallToolResult, any, error) {
	if p.Key == "" {
		return nil, nil, goerr.Wrap(store.ErrRecordValidation, "key is required")
	}
	pref, err := model.PreferenceFrom(p.Value)
	if err != nil {
		return nil, nil, err
	}

	prof, err := s.mem.GetUserProfile(ctx, "")
	if err != nil {
		return nil, nil, err
	}
	prof.Preferences[p.Key] = pref
	if err := s.mem.SaveUserProfile(ctx, prof); err != nil {
		return nil, nil, err
	}
	return jsonResult(prof)
}

type buildContextParams struct {
	Query         string   `json:"query,omitempty" jsonschema:"Text the memories should mention"`
	Type          string   `json:"type,omitempty" jsonschema:"Only consider memories of this type"`
	Tags          []string `json:"tags,omitempty" jsonschema:"Only consider memories carrying any of these tags"`
	MinImportance int      `json:"min_importance,omitempty" jsonschema:"Inclusive lower bound on importance"`
	Budget        int      `json:"budget,omitempty" jsonschema:"Token budget (default 4000)"`
}

func (s *Server) buildContext(ctx context.Context, _ *mcp.CallToolRequest, p *buildContextParams) (*mcp.CallToolResult, any, error) {
	res, err := s.mem.BuildContext(ctx, store.ContextParams{
		Query:         p.Query,
		Type:          model.MemoryType(p.Type),
		Tags:          p.Tags,
		MinImportance: p.MinImportance,
		Budget:        p.Budget,
	})
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(res)
}

type relatedMemoriesParams struct {
	ID string `json:"id" jsonschema:"Memory id"`
}

func (s *Server) relatedMemories(ctx context.Context, _ *mcp.CallToolRequest, p *relatedMemoriesParams) (*mcp.CallToolResult, any, error) {
	res, err := s.mem.Store().Related(ctx, p.ID)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(res)
}

type recordExchangeParams struct {
	Tool      string `json:"tool" jsonschema:"Active tool, e.g. chat, search or maps"`
	UserInput string `json:"user_input" jsonschema:"What the user said"`
	Response  string `json:"response" jsonschema:"What the assistant answered"`
}

func (s *Server) recordExchange(ctx context.Context, _ *mcp.CallToolRequest, p *recordExchangeParams) (*mcp.CallToolResult, any, error) {
	ids, err := s.mem.RecordExchange(ctx, agentmem.Exchange{Tool: p.Tool, UserInput: p.UserInput, Response: p.Response})
	if err != nil {
		return nil, nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return jsonResult(map[string]any{"ids": ids})
}

type recordKnowledgeParams struct {
	Summary string `json:"summary" jsonschema:"What was learned"`
}

func (s *Server) recordKnowledge(ctx context.Context, _ *mcp.CallToolRequest, p *recordKnowledgeParams) (*mcp.CallToolResult, any, error) {
	id, err := s.mem.RecordKnowledge(ctx, p.Summary)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(map[string]string{"id": id})
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, goerr.Wrap(err, "encode tool result")
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}, nil, nil
}
