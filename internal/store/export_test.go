package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/rcliao/elara-memory/internal/model"
)

func exportJSON(t *testing.T, s *SQLiteStore) []byte {
	t.Helper()
	snap, err := s.Export(context.Background())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	var buf bytes.Buffer
	gt.NoError(t, snap.Encode(&buf))
	return buf.Bytes()
}

func TestExportShape(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mustPut(t, s, PutParams{Type: model.TypeConversation, Content: "older", Importance: 5, Timestamp: daysAgo(2), Tags: []string{"chat"}, Source: "user-input"})
	mustPut(t, s, PutParams{Type: model.TypeKnowledge, Content: "newer", Importance: 8, Timestamp: daysAgo(1)})

	snap, err := s.Export(ctx)
	gt.NoError(t, err)
	gt.Equal(t, snap.Version, SnapshotVersion)
	gt.Equal(t, snap.ExportDate, testNow)
	gt.A(t, snap.Memories).Length(2)
	gt.Equal(t, snap.Memories[0].Content, "newer")
	gt.Equal(t, snap.Memories[1].Metadata.Timestamp, daysAgo(2).UnixMilli())
	gt.True(t, snap.Profile == nil)

	var doc map[string]any
	gt.NoError(t, json.Unmarshal(exportJSON(t, s), &doc))
	gt.Equal[any](t, doc["exportDate"], "2025-05-01T12:00:00Z")
	gt.True(t, doc["profile"] == nil)

	mems := doc["memories"].([]any)
	meta := mems[1].(map[string]any)["metadata"].(map[string]any)
	gt.Equal[any](t, meta["source"], "user-input")
	gt.Equal[any](t, meta["tags"], []any{"chat"})

	// Entries without tags still export an empty list.
	meta = mems[0].(map[string]any)["metadata"].(map[string]any)
	gt.Equal[any](t, meta["tags"], []any{})
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)

	mustPut(t, src, PutParams{Type: model.TypeConversation, Content: "hi", Importance: 5, Tags: []string{"chat", "user-message"}, Source: "user-input", Timestamp: daysAgo(3)})
	mustPut(t, src, PutParams{Type: model.TypeInsight, Content: "likes maps", Importance: 7, RelatedTo: []string{"mem_x"}, Embedding: []float64{0.25, -1}, Timestamp: daysAgo(1)})

	prof := model.NewProfile("")
	prof.Preferences["theme"] = model.StringPref("dark")
	prof.InteractionHistory.TotalMessages = 12
	prof.InteractionHistory.AddTopic("maps")
	_, err := src.SaveProfile(ctx, prof)
	gt.NoError(t, err)

	data := exportJSON(t, src)

	dst := newTestStore(t)
	res, err := dst.Import(ctx, data)
	gt.NoError(t, err)
	gt.Equal(t, res.Imported, 2)
	gt.A(t, res.IDs).Length(2)
	gt.A(t, res.Skipped).Length(0)
	gt.True(t, res.ProfileImported)

	want, err := src.Query(ctx, QueryParams{})
	gt.NoError(t, err)
	got, err := dst.Query(ctx, QueryParams{})
	gt.NoError(t, err)
	gt.A(t, got).Length(len(want))
	for i := range want {
		gt.NotEqual(t, got[i].ID, want[i].ID)
		got[i].ID = want[i].ID
		gt.Equal(t, got[i], want[i])
	}

	gotProf, err := dst.GetProfile(ctx, "")
	gt.NoError(t, err)
	wantProf, err := src.GetProfile(ctx, "")
	gt.NoError(t, err)
	gotJSON, err := json.Marshal(gotProf)
	gt.NoError(t, err)
	wantJSON, err := json.Marshal(wantProf)
	gt.NoError(t, err)
	gt.Equal(t, string(gotJSON), string(wantJSON))
}

func TestImportDoesNotDeduplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mustPut(t, s, PutParams{Type: model.TypeKnowledge, Content: "one"})
	mustPut(t, s, PutParams{Type: model.TypeKnowledge, Content: "two"})

	_, err := s.Import(ctx, exportJSON(t, s))
	gt.NoError(t, err)

	n, err := s.Count(ctx)
	gt.NoError(t, err)
	gt.Equal(t, n, 4)
}

func TestImportRejectsMalformedSnapshot(t *testing.T) {
	cases := map[string]string{
		"not json":            `{"version": 1,`,
		"not an object":       `[1, 2, 3]`,
		"missing memories":    `{"version": 1, "exportDate": "2025-05-01T12:00:00Z"}`,
		"memories not array":  `{"version": 1, "exportDate": "2025-05-01T12:00:00Z", "memories": {}}`,
		"bad export date":     `{"version": 1, "exportDate": "yesterday", "memories": []}`,
		"future version":      `{"version": 2, "exportDate": "2025-05-01T12:00:00Z", "memories": []}`,
		"profile wrong type":  `{"version": 1, "exportDate": "2025-05-01T12:00:00Z", "memories": [], "profile": "me"}`,
		"profile object pref": `{"version": 1, "exportDate": "2025-05-01T12:00:00Z", "memories": [], "profile": {"id": "default", "preferences": {"x": {"y": 1}}}}`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newTestStore(t)
			mustPut(t, s, PutParams{Type: model.TypeContext, Content: "existing"})

			_, err := s.Import(ctx, []byte(doc))
			gt.Error(t, err)
			gt.True(t, errors.Is(err, ErrMalformedSnapshot))

			n, err := s.Count(ctx)
			gt.NoError(t, err)
			gt.Equal(t, n, 1)
		})
	}
}

func TestImportSkipsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	doc := `{
	  "version": 1,
	  "exportDate": "2024-05-01T10:00:00.000Z",
	  "memories": [
	    {"id": "1714557600000-abc", "type": "conversation", "content": "hello there",
	     "metadata": {"timestamp": 1714557600000, "importance": 5, "tags": ["chat", "user-message"], "source": "user-input"}},
	    {"id": "x", "type": "dream", "content": "nope", "metadata": {"timestamp": 1, "importance": 1, "tags": []}},
	    {"id": "y", "type": "knowledge", "content": "no metadata"},
	    42,
	    {"id": "z", "type": "knowledge", "content": "   ", "metadata": {"timestamp": 1, "importance": 1}},
	    {"id": "w", "type": "insight", "content": "fractional importance", "metadata": {"timestamp": 1, "importance": 2.5}},
	    {"id": "v", "type": "knowledge", "content": "null source ok",
	     "metadata": {"timestamp": 1714557600000.9, "importance": 8, "tags": ["learning"], "source": null}}
	  ],
	  "profile": null
	}`

	res, err := s.Import(ctx, []byte(doc))
	gt.NoError(t, err)
	gt.Equal(t, res.Imported, 2)
	gt.False(t, res.ProfileImported)
	gt.A(t, res.Skipped).Length(5)

	var skipped []int
	for _, sk := range res.Skipped {
		skipped = append(skipped, sk.Index)
		gt.True(t, sk.Reason != "")
	}
	gt.Equal(t, skipped, []int{1, 2, 3, 4, 5})

	first, err := s.Get(ctx, res.IDs[0])
	gt.NoError(t, err)
	gt.True(t, first.ID != "1714557600000-abc")
	gt.Equal(t, first.Timestamp, time.UnixMilli(1714557600000).UTC())
	gt.Equal(t, first.Tags, []string{"chat", "user-message"})
	gt.Equal(t, first.Source, "user-input")

	second, err := s.Get(ctx, res.IDs[1])
	gt.NoError(t, err)
	gt.Equal(t, second.Source, "")
	gt.Equal(t, second.Importance, 8)
}

func TestImportSkipsOutOfRangeNumbers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	doc := `{
	  "version": 1,
	  "exportDate": "2024-05-01T10:00:00.000Z",
	  "memories": [
	    {"id": "a", "type": "knowledge", "content": "far future", "metadata": {"timestamp": 1e300, "importance": 5}},
	    {"id": "b", "type": "knowledge", "content": "huge importance", "metadata": {"timestamp": 1, "importance": 1e20}},
	    {"id": "c", "type": "knowledge", "content": "latest date", "metadata": {"timestamp": 8640000000000000, "importance": -3}}
	  ]
	}`

	res, err := s.Import(ctx, []byte(doc))
	gt.NoError(t, err)
	gt.Equal(t, res.Imported, 1)
	gt.A(t, res.Skipped).Length(2)
	gt.Equal(t, res.Skipped[0].Index, 0)
	gt.Equal(t, res.Skipped[1].Index, 1)

	got, err := s.Get(ctx, res.IDs[0])
	gt.NoError(t, err)
	gt.Equal(t, got.Timestamp, time.UnixMilli(8640000000000000).UTC())
	gt.Equal(t, got.Importance, -3)
}

func TestImportProfileReplacesExisting(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	old := model.NewProfile("")
	old.Preferences["theme"] = model.StringPref("light")
	_, err := s.SaveProfile(ctx, old)
	gt.NoError(t, err)

	doc := `{"version": 1, "exportDate": "2025-05-01T12:00:00Z", "memories": [],
	  "profile": {"id": "default", "preferences": {"theme": "dark", "voice": true},
	    "interactionHistory": {"totalMessages": 3, "topicsDiscussed": ["weather"], "favoriteFeatures": []},
	    "lastUpdated": 1714557600000}}`

	res, err := s.Import(ctx, []byte(doc))
	gt.NoError(t, err)
	gt.True(t, res.ProfileImported)
	gt.Equal(t, res.Imported, 0)

	p, err := s.GetProfile(ctx, "")
	gt.NoError(t, err)
	theme, _ := p.Preferences["theme"].AsString()
	gt.Equal(t, theme, "dark")
	gt.Equal(t, p.InteractionHistory.TotalMessages, 3)
	gt.Equal(t, p.InteractionHistory.TopicsDiscussed, []string{"weather"})
	gt.Equal(t, p.LastUpdated, time.UnixMilli(1714557600000).UTC())
}
