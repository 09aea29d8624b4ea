package store

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/xeipuuv/gojsonschema"

	"github.com/rcliao/elara-memory/internal/logging"
	"github.com/rcliao/elara-memory/internal/model"
)

//go:embed schema/*.json
var schemaFS embed.FS

var (
	snapshotSchema = mustSchema("schema/snapshot.json")
	memorySchema   = mustSchema("schema/memory.json")
)

func mustSchema(name string) *gojsonschema.Schema {
	data, err := schemaFS.ReadFile(name)
	if err != nil {
		panic(err)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		panic(fmt.Sprintf("compile %s: %v", name, err))
	}
	return schema
}

// ImportResult reports what an Import wrote and which records it skipped.
type ImportResult struct {
	Imported        int             `json:"imported" yaml:"imported"`
	IDs             []string        `json:"ids" yaml:"ids"`
	Skipped         []SkippedRecord `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	ProfileImported bool            `json:"profile_imported" yaml:"profile_imported"`
}

// SkippedRecord identifies a memory record rejected during import.
type SkippedRecord struct {
	Index  int    `json:"index" yaml:"index"`
	Reason string `json:"reason" yaml:"reason"`
}

type importDoc struct {
	Version  int               `json:"version"`
	Memories []json.RawMessage `json:"memories"`
	Profile  *importProfile    `json:"profile"`
}

type importProfile struct {
	ID                 string            `json:"id"`
	Preferences        model.Preferences `json:"preferences"`
	InteractionHistory SnapshotHistory   `json:"interactionHistory"`
	LastUpdated        float64           `json:"lastUpdated"`
}

type importMemory struct {
	Type     model.MemoryType `json:"type"`
	Content  string           `json:"content"`
	Metadata struct {
		Timestamp  float64  `json:"timestamp"`
		Importance float64  `json:"importance"`
		Tags       []string `json:"tags"`
		RelatedTo  []string `json:"relatedTo"`
		Source     *string  `json:"source"`
	} `json:"metadata"`
	Embedding []float64 `json:"embedding"`
}

// Import merges a snapshot into the store. Every imported memory receives a
// fresh id; nothing is deduplicated against existing entries. A profile in
// the snapshot replaces the stored profile with the same id.
//
// A structurally malformed document fails with ErrMalformedSnapshot and
// writes nothing. Individual memory records that fail validation are skipped
// and listed in the result.
func (s *SQLiteStore) Import(ctx context.Context, data []byte) (*ImportResult, error) {
	doc, err := parseSnapshot(data)
	if err != nil {
		return nil, err
	}

	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	result := &ImportResult{IDs: []string{}}
	var mems []*model.Memory
	for i, raw := range doc.Memories {
		m, err := decodeSnapshotMemory(raw)
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedRecord{Index: i, Reason: err.Error()})
			continue
		}
		m.ID = s.newID()
		mems = append(mems, m)
	}

	var prof *model.Profile
	if doc.Profile != nil {
		prof = normalizeProfile(&model.Profile{
			ID:          doc.Profile.ID,
			Preferences: doc.Profile.Preferences,
			InteractionHistory: model.InteractionHistory{
				TotalMessages:    doc.Profile.InteractionHistory.TotalMessages,
				TopicsDiscussed:  doc.Profile.InteractionHistory.TopicsDiscussed,
				FavoriteFeatures: doc.Profile.InteractionHistory.FavoriteFeatures,
			},
		})
		if doc.Profile.LastUpdated > 0 {
			prof.LastUpdated = time.UnixMilli(int64(doc.Profile.LastUpdated)).UTC()
		} else {
			prof.LastUpdated = toMillis(s.now())
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "begin import")
	}
	defer tx.Rollback()

	for _, m := range mems {
		if err := insertMemory(ctx, tx, m); err != nil {
			return nil, err
		}
	}
	if prof != nil {
		if err := upsertProfile(ctx, tx, prof); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, goerr.Wrap(err, "commit import")
	}

	for _, m := range mems {
		result.IDs = append(result.IDs, m.ID)
	}
	result.Imported = len(mems)
	result.ProfileImported = prof != nil

	logging.From(ctx).Info("imported snapshot",
		"imported", result.Imported, "skipped", len(result.Skipped), "profile", result.ProfileImported)
	return result, nil
}

// ValidateSnapshot checks the document structure without writing anything.
// It fails with ErrMalformedSnapshot exactly when Import would.
func ValidateSnapshot(data []byte) error {
	_, err := parseSnapshot(data)
	return err
}

func parseSnapshot(data []byte) (*importDoc, error) {
	res, err := snapshotSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, goerr.Wrap(ErrMalformedSnapshot, "snapshot is not valid JSON", goerr.V("error", err.Error()))
	}
	if !res.Valid() {
		return nil, goerr.Wrap(ErrMalformedSnapshot, "snapshot does not match schema",
			goerr.V("errors", describeErrors(res.Errors())))
	}

	var doc importDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, goerr.Wrap(ErrMalformedSnapshot, "decode snapshot", goerr.V("error", err.Error()))
	}
	if doc.Version > SnapshotVersion {
		return nil, goerr.Wrap(ErrMalformedSnapshot, "unsupported snapshot version",
			goerr.V("version", doc.Version), goerr.V("supported", SnapshotVersion))
	}
	return &doc, nil
}

func decodeSnapshotMemory(raw json.RawMessage) (*model.Memory, error) {
	res, err := memorySchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, goerr.Wrap(ErrRecordValidation, "record is not valid JSON")
	}
	if !res.Valid() {
		return nil, goerr.Wrap(ErrRecordValidation, describeErrors(res.Errors()))
	}

	var in importMemory
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, goerr.Wrap(ErrRecordValidation, "decode record", goerr.V("error", err.Error()))
	}

	m := &model.Memory{
		Type:       in.Type,
		Content:    in.Content,
		Timestamp:  time.UnixMilli(int64(in.Metadata.Timestamp)).UTC(),
		Importance: int(in.Metadata.Importance),
		Tags:       model.NormalizeTags(in.Metadata.Tags),
		RelatedTo:  in.Metadata.RelatedTo,
		Embedding:  in.Embedding,
	}
	if in.Metadata.Source != nil {
		m.Source = *in.Metadata.Source
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// describeErrors joins at most three schema errors into one line.
func describeErrors(errs []gojsonschema.ResultError) string {
	msgs := make([]string, 0, 3)
	for i, e := range errs {
		if i == 3 {
			msgs = append(msgs, fmt.Sprintf("and %d more", len(errs)-3))
			break
		}
		msgs = append(msgs, e.String())
	}
	return strings.Join(msgs, "; ")
}
