package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/rcliao/elara-memory/internal/model"
)

func TestProfileSaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetProfile(ctx, "")
	gt.True(t, errors.Is(err, ErrNotFound))

	p := &model.Profile{Preferences: model.Preferences{
		"theme":  model.StringPref("dark"),
		"volume": model.NumberPref(0.5),
		"langs":  model.ListPref("go", "sql"),
	}}
	p.InteractionHistory.TotalMessages = 4
	p.InteractionHistory.FavoriteFeatures = []string{"maps"}

	saved, err := s.SaveProfile(ctx, p)
	gt.NoError(t, err)
	gt.Equal(t, saved.ID, model.DefaultProfileID)
	gt.Equal(t, saved.LastUpdated, testNow)
	gt.True(t, p.LastUpdated.IsZero())

	got, err := s.GetProfile(ctx, model.DefaultProfileID)
	gt.NoError(t, err)
	gt.Equal(t, got.InteractionHistory.TotalMessages, 4)
	gt.Equal(t, got.InteractionHistory.FavoriteFeatures, []string{"maps"})
	gt.Equal(t, got.InteractionHistory.TopicsDiscussed, []string{})
	gt.Equal(t, got.Preferences.Keys(), []string{"langs", "theme", "volume"})
	vol, ok := got.Preferences["volume"].AsNumber()
	gt.True(t, ok)
	gt.Equal(t, vol, 0.5)
	gt.Equal(t, got.LastUpdated, testNow)
}

func TestProfileUpsertRestampsLastUpdated(t *testing.T) {
	ctx := context.Background()
	clock := testNow
	s := newTestStore(t, WithClock(func() time.Time { return clock }))

	p := model.NewProfile("alice")
	_, err := s.SaveProfile(ctx, p)
	gt.NoError(t, err)

	clock = clock.Add(time.Hour)
	p.InteractionHistory.TotalMessages = 9
	_, err = s.SaveProfile(ctx, p)
	gt.NoError(t, err)

	got, err := s.GetProfile(ctx, "alice")
	gt.NoError(t, err)
	gt.Equal(t, got.InteractionHistory.TotalMessages, 9)
	gt.Equal(t, got.LastUpdated, testNow.Add(time.Hour))

	_, err = s.GetProfile(ctx, "")
	gt.True(t, errors.Is(err, ErrNotFound))
}

func TestSaveProfileRejectsNil(t *testing.T) {
	_, err := newTestStore(t).SaveProfile(context.Background(), nil)
	gt.True(t, errors.Is(err, ErrRecordValidation))
}
