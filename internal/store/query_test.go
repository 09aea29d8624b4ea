package store

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/rcliao/elara-memory/internal/model"
)

func ids(mems []model.Memory) []string {
	out := make([]string, 0, len(mems))
	for _, m := range mems {
		out = append(out, m.ID)
	}
	return out
}

func TestQuerySortByImportanceKeepsInsertionOrderOnTies(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var puts []*model.Memory
	for _, imp := range []int{1, 9, 9, 3, 7} {
		puts = append(puts, mustPut(t, s, PutParams{Type: model.TypeKnowledge, Content: "fact", Importance: imp}))
	}
	mustPut(t, s, PutParams{Type: model.TypeConversation, Content: "chatter", Importance: 10})

	got, err := s.Query(ctx, QueryParams{Type: model.TypeKnowledge, SortBy: SortByImportance, Limit: 2})
	gt.NoError(t, err)
	gt.Equal(t, ids(got), []string{puts[1].ID, puts[2].ID})
}

func TestQueryDefaultsToNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	old := mustPut(t, s, PutParams{Type: model.TypeContext, Content: "old", Timestamp: daysAgo(3)})
	mid := mustPut(t, s, PutParams{Type: model.TypeContext, Content: "mid", Timestamp: daysAgo(2)})
	newest := mustPut(t, s, PutParams{Type: model.TypeContext, Content: "new", Timestamp: daysAgo(1)})

	got, err := s.Query(ctx, QueryParams{})
	gt.NoError(t, err)
	gt.Equal(t, ids(got), []string{newest.ID, mid.ID, old.ID})
}

func TestQueryTagsMatchAny(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := mustPut(t, s, PutParams{Type: model.TypeConversation, Content: "a", Tags: []string{"chat", "user-message"}, Timestamp: daysAgo(3)})
	b := mustPut(t, s, PutParams{Type: model.TypeConversation, Content: "b", Tags: []string{"search"}, Timestamp: daysAgo(2)})
	mustPut(t, s, PutParams{Type: model.TypeConversation, Content: "c", Tags: []string{"maps"}, Timestamp: daysAgo(1)})
	mustPut(t, s, PutParams{Type: model.TypeConversation, Content: "d"})

	got, err := s.Query(ctx, QueryParams{Tags: []string{"search", "user-message"}})
	gt.NoError(t, err)
	gt.Equal(t, ids(got), []string{b.ID, a.ID})

	// Tag matching is exact.
	got, err = s.Query(ctx, QueryParams{Tags: []string{"Chat"}})
	gt.NoError(t, err)
	gt.A(t, got).Length(0)
}

func TestQueryMinImportance(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, imp := range []int{0, 4, 5, 6} {
		mustPut(t, s, PutParams{Type: model.TypeInsight, Content: "x", Importance: imp})
	}

	got, err := s.Query(ctx, QueryParams{MinImportance: 5})
	gt.NoError(t, err)
	gt.A(t, got).Length(2)
	for _, m := range got {
		gt.Number(t, m.Importance).GreaterOrEqual(5)
	}

	all, err := s.Query(ctx, QueryParams{})
	gt.NoError(t, err)
	gt.A(t, all).Length(4)
}

func TestQueryFiltersCombine(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	want := mustPut(t, s, PutParams{Type: model.TypeKnowledge, Content: "keep", Importance: 8, Tags: []string{"learning"}})
	mustPut(t, s, PutParams{Type: model.TypeKnowledge, Content: "low", Importance: 2, Tags: []string{"learning"}})
	mustPut(t, s, PutParams{Type: model.TypeInsight, Content: "other type", Importance: 8, Tags: []string{"learning"}})
	mustPut(t, s, PutParams{Type: model.TypeKnowledge, Content: "untagged", Importance: 8})

	got, err := s.Query(ctx, QueryParams{Type: model.TypeKnowledge, MinImportance: 5, Tags: []string{"learning"}})
	gt.NoError(t, err)
	gt.Equal(t, ids(got), []string{want.ID})
}

func TestQueryRejectsBadParams(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Query(ctx, QueryParams{SortBy: "content"})
	gt.True(t, errors.Is(err, ErrRecordValidation))

	_, err = s.Query(ctx, QueryParams{Type: "dream"})
	gt.True(t, errors.Is(err, ErrRecordValidation))

	_, err = s.Query(ctx, QueryParams{Limit: -1})
	gt.True(t, errors.Is(err, ErrRecordValidation))
}

func TestQueryEmptyStore(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Query(context.Background(), QueryParams{Tags: []string{"any"}})
	gt.NoError(t, err)
	gt.NotNil(t, got)
	gt.A(t, got).Length(0)
}
