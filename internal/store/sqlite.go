package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/elara-memory/internal/logging"
	"github.com/rcliao/elara-memory/internal/model"
)

// SchemaVersion is the on-disk schema version recorded in PRAGMA user_version.
const SchemaVersion = 1

// IDPrefix is prepended to every generated memory id.
const IDPrefix = "mem_"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	path string
	now  func() time.Time

	mu sync.Mutex // guards db
	db *sql.DB

	idMu    sync.Mutex
	entropy io.Reader
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithClock overrides the clock used for default timestamps, pruning cutoffs
// and export dates.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns an unopened store for the database at dbPath. Call Initialize
// before use.
func New(dbPath string, opts ...Option) *SQLiteStore {
	s := &SQLiteStore{
		path:    dbPath,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates and initializes a store in one step.
func Open(ctx context.Context, dbPath string, opts ...Option) (*SQLiteStore, error) {
	s := New(dbPath, opts...)
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the database path.
func (s *SQLiteStore) Path() string { return s.path }

// Initialize opens the database (creating it if absent) and ensures the
// schema. Calling it on an initialized store is a no-op.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	if s.path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return goerr.Wrap(ErrStorageUnavailable, "create db dir",
				goerr.V("path", s.path), goerr.V("error", err.Error()))
		}
	}

	db, err := sql.Open("sqlite", s.path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return goerr.Wrap(ErrStorageUnavailable, "open db",
			goerr.V("path", s.path), goerr.V("error", err.Error()))
	}
	// A single connection serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return goerr.Wrap(ErrStorageUnavailable, "ping db",
			goerr.V("path", s.path), goerr.V("error", err.Error()))
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return goerr.Wrap(ErrStorageUnavailable, "migrate",
			goerr.V("path", s.path), goerr.V("error", err.Error()))
	}

	s.db = db
	logging.From(ctx).Debug("memory store initialized", "path", s.path, "schema_version", SchemaVersion)
	return nil
}

func (s *SQLiteStore) handle() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, goerr.Wrap(ErrStorageUnavailable, "store is not initialized", goerr.V("path", s.path))
	}
	return s.db, nil
}

func (s *SQLiteStore) newID() string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return IDPrefix + ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	type       TEXT NOT NULL,
	content    TEXT NOT NULL,
	timestamp  INTEGER NOT NULL,
	importance INTEGER NOT NULL,
	tags       TEXT,
	source     TEXT,
	related_to TEXT,
	embedding  TEXT
);
CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(type);
CREATE INDEX IF NOT EXISTS idx_memories_timestamp ON memories(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories(importance DESC);

CREATE TABLE IF NOT EXISTS memory_tags (
	memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	tag       TEXT NOT NULL,
	PRIMARY KEY (memory_id, tag)
);
CREATE INDEX IF NOT EXISTS idx_memory_tags_tag ON memory_tags(tag);

CREATE TABLE IF NOT EXISTS profiles (
	id                TEXT PRIMARY KEY,
	preferences       TEXT NOT NULL DEFAULT '{}',
	total_messages    INTEGER NOT NULL DEFAULT 0,
	topics_discussed  TEXT NOT NULL DEFAULT '[]',
	favorite_features TEXT NOT NULL DEFAULT '[]',
	last_updated      INTEGER NOT NULL
);
`

func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return goerr.Wrap(err, "read schema version")
	}
	if version > SchemaVersion {
		return goerr.New("schema version is newer than supported",
			goerr.V("version", version), goerr.V("supported", SchemaVersion))
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return goerr.Wrap(err, "create schema")
	}

	if version < SchemaVersion {
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, SchemaVersion)); err != nil {
			return goerr.Wrap(err, "set schema version", goerr.V("version", SchemaVersion))
		}
	}
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, p PutParams) (*model.Memory, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	ts := p.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	mem := model.Memory{
		Type:       p.Type,
		Content:    p.Content,
		Timestamp:  toMillis(ts),
		Importance: p.Importance,
		Tags:       model.NormalizeTags(p.Tags),
		Source:     p.Source,
		RelatedTo:  p.RelatedTo,
		Embedding:  p.Embedding,
	}.Clone()
	if err := mem.Validate(); err != nil {
		return nil, err
	}
	mem.ID = s.newID()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "begin put")
	}
	defer tx.Rollback()

	if err := insertMemory(ctx, tx, &mem); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, goerr.Wrap(err, "commit put", goerr.V("id", mem.ID))
	}

	return &mem, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Memory, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	return getMemory(ctx, db, id)
}

func (s *SQLiteStore) GetAll(ctx context.Context, typ model.MemoryType) ([]model.Memory, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + memoryColumns + ` FROM memories m`
	var args []any
	if typ != "" {
		query += ` WHERE m.type = ?`
		args = append(args, string(typ))
	}
	query += ` ORDER BY m.seq`

	return queryMemories(ctx, db, query, args...)
}

func (s *SQLiteStore) Update(ctx context.Context, id string, p UpdateParams) (*model.Memory, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "begin update")
	}
	defer tx.Rollback()

	cur, err := getMemory(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if p.Type != nil {
		cur.Type = *p.Type
	}
	if p.Content != nil {
		cur.Content = *p.Content
	}
	if p.Timestamp != nil {
		cur.Timestamp = toMillis(*p.Timestamp)
	}
	if p.Importance != nil {
		cur.Importance = *p.Importance
	}
	if p.Tags != nil {
		cur.Tags = model.NormalizeTags(*p.Tags)
	}
	if p.Source != nil {
		cur.Source = *p.Source
	}
	if p.RelatedTo != nil {
		cur.RelatedTo = append([]string(nil), *p.RelatedTo...)
	}
	if p.Embedding != nil {
		cur.Embedding = append([]float64(nil), *p.Embedding...)
	}
	if err := cur.Validate(); err != nil {
		return nil, err
	}

	cols, err := encodeColumns(cur)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE memories SET type = ?, content = ?, timestamp = ?, importance = ?,
		        tags = ?, source = ?, related_to = ?, embedding = ?
		 WHERE id = ?`,
		string(cur.Type), cur.Content, cur.Timestamp.UnixMilli(), cur.Importance,
		cols.tags, nullString(cur.Source), cols.related, cols.embedding,
		id)
	if err != nil {
		return nil, goerr.Wrap(err, "update memory", goerr.V("id", id))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_tags WHERE memory_id = ?`, id); err != nil {
		return nil, goerr.Wrap(err, "reset tags", goerr.V("id", id))
	}
	if err := insertTags(ctx, tx, id, cur.Tags); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, goerr.Wrap(err, "commit update", goerr.V("id", id))
	}
	return cur, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "begin delete")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_tags WHERE memory_id = ?`, id); err != nil {
		return goerr.Wrap(err, "delete tags", goerr.V("id", id))
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return goerr.Wrap(err, "delete memory", goerr.V("id", id))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goerr.Wrap(ErrNotFound, "memory not found", goerr.V("id", id))
	}
	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "commit delete", goerr.V("id", id))
	}
	return nil
}

// ClearAll removes every memory entry. Profiles are kept; use WipeAll for a
// full reset.
func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	return s.clear(ctx, `DELETE FROM memory_tags`, `DELETE FROM memories`)
}

// WipeAll removes every memory entry and every profile.
func (s *SQLiteStore) WipeAll(ctx context.Context) error {
	return s.clear(ctx, `DELETE FROM memory_tags`, `DELETE FROM memories`, `DELETE FROM profiles`)
}

func (s *SQLiteStore) clear(ctx context.Context, stmts ...string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "begin clear")
	}
	defer tx.Rollback()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return goerr.Wrap(err, "clear", goerr.V("stmt", stmt))
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n); err != nil {
		return 0, goerr.Wrap(err, "count memories")
	}
	return n, nil
}

// AverageImportance returns the mean importance, or 0 for an empty store.
func (s *SQLiteStore) AverageImportance(ctx context.Context) (float64, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	var avg sql.NullFloat64
	if err := db.QueryRowContext(ctx, `SELECT AVG(importance) FROM memories`).Scan(&avg); err != nil {
		return 0, goerr.Wrap(err, "average importance")
	}
	return avg.Float64, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertMemory(ctx context.Context, tx execer, m *model.Memory) error {
	cols, err := encodeColumns(m)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO memories (id, type, content, timestamp, importance, tags, source, related_to, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, string(m.Type), m.Content, m.Timestamp.UnixMilli(), m.Importance,
		cols.tags, nullString(m.Source), cols.related, cols.embedding)
	if err != nil {
		return goerr.Wrap(err, "insert memory", goerr.V("id", m.ID))
	}
	return insertTags(ctx, tx, m.ID, m.Tags)
}

func insertTags(ctx context.Context, tx execer, id string, tags []string) error {
	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memory_tags (memory_id, tag) VALUES (?, ?)`, id, tag); err != nil {
			return goerr.Wrap(err, "insert tag", goerr.V("id", id), goerr.V("tag", tag))
		}
	}
	return nil
}

const memoryColumns = `m.id, m.type, m.content, m.timestamp, m.importance, m.tags, m.source, m.related_to, m.embedding`

func getMemory(ctx context.Context, q querier, id string) (*model.Memory, error) {
	row := q.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories m WHERE m.id = ?`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(ErrNotFound, "memory not found", goerr.V("id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "get memory", goerr.V("id", id))
	}
	return &m, nil
}

func queryMemories(ctx context.Context, q querier, query string, args ...any) ([]model.Memory, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "query memories")
	}
	defer rows.Close()

	memories := []model.Memory{}
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "scan memory")
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "iterate memories")
	}
	return memories, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(row scanner) (model.Memory, error) {
	var m model.Memory
	var typ string
	var ts int64
	var tags, source, related, embedding sql.NullString

	err := row.Scan(&m.ID, &typ, &m.Content, &ts, &m.Importance, &tags, &source, &related, &embedding)
	if err != nil {
		return m, err
	}

	m.Type = model.MemoryType(typ)
	m.Timestamp = time.UnixMilli(ts).UTC()
	if source.Valid {
		m.Source = source.String
	}
	if tags.Valid {
		if err := json.Unmarshal([]byte(tags.String), &m.Tags); err != nil {
			return m, goerr.Wrap(err, "decode tags", goerr.V("id", m.ID))
		}
	}
	if related.Valid {
		if err := json.Unmarshal([]byte(related.String), &m.RelatedTo); err != nil {
			return m, goerr.Wrap(err, "decode related_to", goerr.V("id", m.ID))
		}
	}
	if embedding.Valid {
		if err := json.Unmarshal([]byte(embedding.String), &m.Embedding); err != nil {
			return m, goerr.Wrap(err, "decode embedding", goerr.V("id", m.ID))
		}
	}
	return m, nil
}

// toMillis normalizes t to the millisecond precision stored on disk.
func toMillis(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).UTC()
}

// jsonColumns holds the JSON-encoded list columns of a memory row.
type jsonColumns struct {
	tags, related, embedding any
}

func encodeColumns(m *model.Memory) (jsonColumns, error) {
	var cols jsonColumns
	var err error
	if cols.tags, err = jsonOrNull(m.Tags); err != nil {
		return cols, goerr.Wrap(err, "encode tags", goerr.V("id", m.ID))
	}
	if cols.related, err = jsonOrNull(m.RelatedTo); err != nil {
		return cols, goerr.Wrap(err, "encode related_to", goerr.V("id", m.ID))
	}
	if cols.embedding, err = jsonOrNull(m.Embedding); err != nil {
		return cols, goerr.Wrap(ErrRecordValidation, "encode embedding",
			goerr.V("id", m.ID), goerr.V("error", err.Error()))
	}
	return cols, nil
}

// jsonOrNull encodes v as JSON, or returns NULL for a nil slice.
func jsonOrNull[T any](v []T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
