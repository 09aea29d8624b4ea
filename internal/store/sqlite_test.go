package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/rcliao/elara-memory/internal/model"
)

var testNow = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, opts ...Option) *SQLiteStore {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), opts...)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustPut(t *testing.T, s *SQLiteStore, p PutParams) *model.Memory {
	t.Helper()
	m, err := s.Put(context.Background(), p)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	return m
}

func daysAgo(n int) time.Time {
	return testNow.Add(-time.Duration(n) * 24 * time.Hour)
}

func TestPutAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mem := mustPut(t, s, PutParams{
		Type:       model.TypeKnowledge,
		Content:    "SQLite stores everything in one file",
		Timestamp:  time.Date(2025, 4, 30, 8, 15, 0, 123456789, time.UTC),
		Importance: 8,
		Tags:       []string{"sqlite", "storage", "sqlite"},
		Source:     "self-learning",
		RelatedTo:  []string{"mem_unknown"},
		Embedding:  []float64{0.1, 0.2},
	})

	gt.True(t, strings.HasPrefix(mem.ID, IDPrefix))
	gt.Equal(t, mem.Tags, []string{"sqlite", "storage"})
	gt.Equal(t, mem.Timestamp, time.Date(2025, 4, 30, 8, 15, 0, 123000000, time.UTC))

	got, err := s.Get(ctx, mem.ID)
	gt.NoError(t, err)
	gt.Equal(t, *got, *mem)
}

func TestPutDefaultsTimestampToNow(t *testing.T) {
	s := newTestStore(t)
	mem := mustPut(t, s, PutParams{Type: model.TypeContext, Content: "session started"})
	gt.Equal(t, mem.Timestamp, testNow)
}

func TestPutRejectsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Put(ctx, PutParams{Type: "dream", Content: "x"})
	gt.True(t, errors.Is(err, ErrRecordValidation))

	_, err = s.Put(ctx, PutParams{Type: model.TypeInsight, Content: "   "})
	gt.True(t, errors.Is(err, ErrRecordValidation))

	n, err := s.Count(ctx)
	gt.NoError(t, err)
	gt.Equal(t, n, 0)
}

func TestPutAcceptsOutOfRangeImportance(t *testing.T) {
	s := newTestStore(t)
	mem := mustPut(t, s, PutParams{Type: model.TypeInsight, Content: "loud", Importance: 42})
	got, err := s.Get(context.Background(), mem.ID)
	gt.NoError(t, err)
	gt.Equal(t, got.Importance, 42)
}

func TestIDsAreUnique(t *testing.T) {
	s := newTestStore(t)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		m := mustPut(t, s, PutParams{Type: model.TypeConversation, Content: "same content", Importance: 5})
		gt.False(t, seen[m.ID])
		seen[m.ID] = true
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "mem_missing")
	gt.True(t, errors.Is(err, ErrNotFound))
}

func TestGetAllByType(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := mustPut(t, s, PutParams{Type: model.TypeKnowledge, Content: "a"})
	mustPut(t, s, PutParams{Type: model.TypeConversation, Content: "b"})
	c := mustPut(t, s, PutParams{Type: model.TypeKnowledge, Content: "c"})

	all, err := s.GetAll(ctx, "")
	gt.NoError(t, err)
	gt.A(t, all).Length(3)

	knowledge, err := s.GetAll(ctx, model.TypeKnowledge)
	gt.NoError(t, err)
	gt.A(t, knowledge).Length(2)
	gt.Equal(t, knowledge[0].ID, a.ID)
	gt.Equal(t, knowledge[1].ID, c.ID)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mem := mustPut(t, s, PutParams{Type: model.TypeKnowledge, Content: "draft", Importance: 3, Tags: []string{"old"}})

	content := "final"
	importance := 9
	tags := []string{"new", "final"}
	updated, err := s.Update(ctx, mem.ID, UpdateParams{Content: &content, Importance: &importance, Tags: &tags})
	gt.NoError(t, err)
	gt.Equal(t, updated.Content, "final")
	gt.Equal(t, updated.Importance, 9)
	gt.Equal(t, updated.Type, model.TypeKnowledge)

	got, err := s.Get(ctx, mem.ID)
	gt.NoError(t, err)
	gt.Equal(t, *got, *updated)

	old, err := s.Query(ctx, QueryParams{Tags: []string{"old"}})
	gt.NoError(t, err)
	gt.A(t, old).Length(0)

	_, err = s.Update(ctx, "mem_missing", UpdateParams{Content: &content})
	gt.True(t, errors.Is(err, ErrNotFound))

	blank := ""
	_, err = s.Update(ctx, mem.ID, UpdateParams{Content: &blank})
	gt.True(t, errors.Is(err, ErrRecordValidation))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mem := mustPut(t, s, PutParams{Type: model.TypeContext, Content: "temp", Tags: []string{"t"}})
	gt.NoError(t, s.Delete(ctx, mem.ID))

	_, err := s.Get(ctx, mem.ID)
	gt.True(t, errors.Is(err, ErrNotFound))

	err = s.Delete(ctx, mem.ID)
	gt.True(t, errors.Is(err, ErrNotFound))

	st, err := s.Stats(ctx)
	gt.NoError(t, err)
	gt.A(t, st.TopTags).Length(0)
}

func TestClearAllKeepsProfile(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mustPut(t, s, PutParams{Type: model.TypeConversation, Content: "hi", Tags: []string{"chat"}})
	_, err := s.SaveProfile(ctx, model.NewProfile(""))
	gt.NoError(t, err)

	gt.NoError(t, s.ClearAll(ctx))

	n, err := s.Count(ctx)
	gt.NoError(t, err)
	gt.Equal(t, n, 0)

	_, err = s.GetProfile(ctx, "")
	gt.NoError(t, err)

	gt.NoError(t, s.WipeAll(ctx))
	_, err = s.GetProfile(ctx, "")
	gt.True(t, errors.Is(err, ErrNotFound))
}

func TestCountAndAverageImportance(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	avg, err := s.AverageImportance(ctx)
	gt.NoError(t, err)
	gt.Equal(t, avg, 0.0)

	for _, imp := range []int{2, 4, 9} {
		mustPut(t, s, PutParams{Type: model.TypeInsight, Content: "x", Importance: imp})
	}

	n, err := s.Count(ctx)
	gt.NoError(t, err)
	gt.Equal(t, n, 3)

	avg, err = s.AverageImportance(ctx)
	gt.NoError(t, err)
	gt.Equal(t, avg, 5.0)
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "memory.db")

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mem := mustPut(t, s, PutParams{Type: model.TypeKnowledge, Content: "durable"})
	gt.NoError(t, s.Close())

	s2, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s2.Close()

	got, err := s2.Get(ctx, mem.ID)
	gt.NoError(t, err)
	gt.Equal(t, got.Content, "durable")
}

func TestInitializeFailsWhenParentIsFile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	gt.NoError(t, os.WriteFile(blocker, []byte("not a dir"), 0o644))

	s := New(filepath.Join(blocker, "memory.db"))
	err := s.Initialize(context.Background())
	gt.Error(t, err)
	gt.True(t, errors.Is(err, ErrStorageUnavailable))
}

func TestInitializeRejectsNewerSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memory.db")

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err = s.db.ExecContext(ctx, `PRAGMA user_version = 99`)
	gt.NoError(t, err)
	err = migrate(ctx, s.db)
	gt.Error(t, err)
	gt.S(t, err.Error()).Contains("newer than supported")
	gt.NoError(t, s.Close())

	_, err = Open(ctx, path)
	gt.True(t, errors.Is(err, ErrStorageUnavailable))
}

func TestInitializeIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	gt.NoError(t, s.Initialize(context.Background()))
	gt.NoError(t, s.Initialize(context.Background()))
}

func TestOperationsRequireInitialize(t *testing.T) {
	ctx := context.Background()
	s := New(filepath.Join(t.TempDir(), "memory.db"))

	_, err := s.Put(ctx, PutParams{Type: model.TypeContext, Content: "x"})
	gt.True(t, errors.Is(err, ErrStorageUnavailable))

	_, err = s.Query(ctx, QueryParams{})
	gt.True(t, errors.Is(err, ErrStorageUnavailable))

	gt.NoError(t, s.Initialize(ctx))
	gt.NoError(t, s.Close())

	_, err = s.Count(ctx)
	gt.True(t, errors.Is(err, ErrStorageUnavailable))
}

func TestNonFiniteEmbeddingRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := s.Put(ctx, PutParams{
			Type:      model.TypeKnowledge,
			Content:   "vector",
			Embedding: []float64{1, v},
		})
		gt.True(t, errors.Is(err, ErrRecordValidation))
	}

	n, err := s.Count(ctx)
	gt.NoError(t, err)
	gt.Equal(t, n, 0)

	mem := mustPut(t, s, PutParams{Type: model.TypeKnowledge, Content: "vector", Embedding: []float64{1, 2}})
	bad := []float64{math.NaN()}
	_, err = s.Update(ctx, mem.ID, UpdateParams{Embedding: &bad})
	gt.True(t, errors.Is(err, ErrRecordValidation))

	got, err := s.Get(ctx, mem.ID)
	gt.NoError(t, err)
	gt.Equal(t, got.Embedding, []float64{1, 2})
}

func TestConcurrentPutsToDistinctIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	const n = 100
	ids := make([]string, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := s.Put(ctx, PutParams{
				Type:       model.TypeConversation,
				Content:    fmt.Sprintf("message %d", i),
				Importance: i % 10,
				Tags:       []string{fmt.Sprintf("worker-%d", i)},
			})
			errs[i] = err
			if err == nil {
				ids[i] = m.ID
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		gt.NoError(t, errs[i])
		gt.False(t, seen[ids[i]])
		seen[ids[i]] = true

		got, err := s.Get(ctx, ids[i])
		gt.NoError(t, err)
		gt.Equal(t, got.Content, fmt.Sprintf("message %d", i))
		gt.Equal(t, got.Tags, []string{fmt.Sprintf("worker-%d", i)})
	}

	count, err := s.Count(ctx)
	gt.NoError(t, err)
	gt.Equal(t, count, n)
}
