package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/rcliao/elara-memory/internal/model"
)

func TestStatsEmpty(t *testing.T) {
	st, err := newTestStore(t).Stats(context.Background())
	gt.NoError(t, err)
	gt.Equal(t, st.TotalCount, 0)
	gt.Equal(t, st.AvgImportance, 0.0)
	gt.Equal(t, len(st.ByType), 0)
	gt.A(t, st.TopTags).Length(0)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mustPut(t, s, PutParams{Type: model.TypeConversation, Content: "q", Importance: 5, Tags: []string{"chat", "user-message"}})
	mustPut(t, s, PutParams{Type: model.TypeConversation, Content: "a", Importance: 6, Tags: []string{"chat", "assistant-response"}})
	mustPut(t, s, PutParams{Type: model.TypeKnowledge, Content: "k", Importance: 8, Tags: []string{"learning", "knowledge-gap"}})
	mustPut(t, s, PutParams{Type: model.TypeInsight, Content: "i", Importance: 1})

	st, err := s.Stats(ctx)
	gt.NoError(t, err)
	gt.Equal(t, st.TotalCount, 4)
	gt.Equal(t, st.AvgImportance, 5.0)
	gt.Equal(t, st.ByType, map[model.MemoryType]int{
		model.TypeConversation: 2,
		model.TypeKnowledge:    1,
		model.TypeInsight:      1,
	})
	gt.Equal(t, st.TopTags, []TagCount{
		{Tag: "chat", Count: 2},
		{Tag: "assistant-response", Count: 1},
		{Tag: "knowledge-gap", Count: 1},
		{Tag: "learning", Count: 1},
		{Tag: "user-message", Count: 1},
	})
}

func TestStatsTopTagsCappedAtTen(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var tags []string
	for i := 0; i < 15; i++ {
		tags = append(tags, fmt.Sprintf("tag-%02d", i))
	}
	mustPut(t, s, PutParams{Type: model.TypeContext, Content: "many tags", Tags: tags})
	mustPut(t, s, PutParams{Type: model.TypeContext, Content: "popular", Tags: []string{"tag-14"}})

	st, err := s.Stats(ctx)
	gt.NoError(t, err)
	gt.A(t, st.TopTags).Length(topTagLimit)
	gt.Equal(t, st.TopTags[0], TagCount{Tag: "tag-14", Count: 2})
	gt.Equal(t, st.TopTags[1].Tag, "tag-00")
	gt.Equal(t, st.TopTags[9].Tag, "tag-08")

	again, err := s.Stats(ctx)
	gt.NoError(t, err)
	gt.Equal(t, again, st)
}
