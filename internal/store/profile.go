package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/rcliao/elara-memory/internal/model"
)

// SaveProfile upserts p, stamping LastUpdated with the store clock. An empty
// id is stored as model.DefaultProfileID.
func (s *SQLiteStore) SaveProfile(ctx context.Context, p *model.Profile) (*model.Profile, error) {
	if p == nil {
		return nil, goerr.Wrap(ErrRecordValidation, "profile is nil")
	}
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	c := normalizeProfile(p)
	c.LastUpdated = toMillis(s.now())

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "begin save profile")
	}
	defer tx.Rollback()

	if err := upsertProfile(ctx, tx, c); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, goerr.Wrap(err, "commit profile", goerr.V("id", c.ID))
	}
	return c, nil
}

// GetProfile returns the profile with the given id ("default" when empty).
func (s *SQLiteStore) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = model.DefaultProfileID
	}

	var prefs, topics, features string
	var lastUpdated int64
	p := &model.Profile{ID: id}
	err = db.QueryRowContext(ctx,
		`SELECT preferences, total_messages, topics_discussed, favorite_features, last_updated
		 FROM profiles WHERE id = ?`, id).
		Scan(&prefs, &p.InteractionHistory.TotalMessages, &topics, &features, &lastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(ErrNotFound, "profile not found", goerr.V("id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "get profile", goerr.V("id", id))
	}

	if err := json.Unmarshal([]byte(prefs), &p.Preferences); err != nil {
		return nil, goerr.Wrap(err, "decode preferences", goerr.V("id", id))
	}
	if err := json.Unmarshal([]byte(topics), &p.InteractionHistory.TopicsDiscussed); err != nil {
		return nil, goerr.Wrap(err, "decode topics", goerr.V("id", id))
	}
	if err := json.Unmarshal([]byte(features), &p.InteractionHistory.FavoriteFeatures); err != nil {
		return nil, goerr.Wrap(err, "decode features", goerr.V("id", id))
	}
	p.LastUpdated = time.UnixMilli(lastUpdated).UTC()
	return normalizeProfile(p), nil
}

func normalizeProfile(p *model.Profile) *model.Profile {
	c := p.Clone()
	if c.ID == "" {
		c.ID = model.DefaultProfileID
	}
	if c.Preferences == nil {
		c.Preferences = model.Preferences{}
	}
	if c.InteractionHistory.TopicsDiscussed == nil {
		c.InteractionHistory.TopicsDiscussed = []string{}
	}
	if c.InteractionHistory.FavoriteFeatures == nil {
		c.InteractionHistory.FavoriteFeatures = []string{}
	}
	return c
}

func upsertProfile(ctx context.Context, tx execer, p *model.Profile) error {
	prefs, err := json.Marshal(p.Preferences)
	if err != nil {
		return goerr.Wrap(ErrRecordValidation, "encode preferences",
			goerr.V("id", p.ID), goerr.V("error", err.Error()))
	}
	topics, err := json.Marshal(p.InteractionHistory.TopicsDiscussed)
	if err != nil {
		return goerr.Wrap(err, "encode topics")
	}
	features, err := json.Marshal(p.InteractionHistory.FavoriteFeatures)
	if err != nil {
		return goerr.Wrap(err, "encode features")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (id, preferences, total_messages, topics_discussed, favorite_features, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   preferences = excluded.preferences,
		   total_messages = excluded.total_messages,
		   topics_discussed = excluded.topics_discussed,
		   favorite_features = excluded.favorite_features,
		   last_updated = excluded.last_updated`,
		p.ID, string(prefs), p.InteractionHistory.TotalMessages, string(topics), string(features),
		p.LastUpdated.UnixMilli())
	if err != nil {
		return goerr.Wrap(err, "upsert profile", goerr.V("id", p.ID))
	}
	return nil
}
