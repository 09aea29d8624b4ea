// Package inbox imports snapshot files dropped into a directory. Each file
// whose name matches the configured pattern is imported once it has been
// quiet for the debounce window, then moved to imported/ or failed/.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/m-mizutani/goerr/v2"

	"github.com/rcliao/elara-memory/internal/logging"
	"github.com/rcliao/elara-memory/internal/store"
)

const (
	ImportedDir = "imported"
	FailedDir   = "failed"
)

// Importer consumes snapshot documents. *agentmem.Memory implements it.
type Importer interface {
	ImportMemoryData(ctx context.Context, data []byte) (*store.ImportResult, error)
}

type Config struct {
	Dir      string
	Pattern  string
	Debounce time.Duration
}

// Result describes the outcome for one inbox file.
type Result struct {
	Path    string
	MovedTo string
	Import  *store.ImportResult
	Err     error
}

type Option func(*Watcher)

// WithLogger sets the logger. Defaults to the logger in the Run context.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithResultHook registers fn to be called after each processed file.
func WithResultHook(fn func(Result)) Option {
	return func(w *Watcher) { w.onResult = fn }
}

type Watcher struct {
	cfg      Config
	importer Importer
	logger   *slog.Logger
	onResult func(Result)

	procMu sync.Mutex // serializes imports
}

// New prepares the inbox directory and its imported/ and failed/ subdirectories.
func New(cfg Config, importer Importer, opts ...Option) (*Watcher, error) {
	if cfg.Pattern == "" {
		cfg.Pattern = "*.json"
	}
	if !doublestar.ValidatePattern(cfg.Pattern) {
		return nil, goerr.New("invalid inbox pattern", goerr.V("pattern", cfg.Pattern))
	}
	for _, dir := range []string{cfg.Dir, filepath.Join(cfg.Dir, ImportedDir), filepath.Join(cfg.Dir, FailedDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, goerr.Wrap(err, "create inbox dir", goerr.V("dir", dir))
		}
	}

	w := &Watcher{cfg: cfg, importer: importer}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Matches reports whether path is an inbox file the watcher should import.
func (w *Watcher) Matches(path string) bool {
	if filepath.Dir(path) != filepath.Clean(w.cfg.Dir) {
		return false
	}
	ok, err := doublestar.Match(w.cfg.Pattern, filepath.Base(path))
	return err == nil && ok
}

// Run imports files already waiting in the inbox, then watches for new ones
// until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if w.logger == nil {
		w.logger = logging.From(ctx)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return goerr.Wrap(err, "create fs watcher")
	}
	defer fsw.Close()

	if err := fsw.Add(w.cfg.Dir); err != nil {
		return goerr.Wrap(err, "watch inbox", goerr.V("dir", w.cfg.Dir))
	}

	// Pending files are still imported when ctx is cancelled.
	flushCtx := context.WithoutCancel(ctx)
	deb := newDebouncer(w.cfg.Debounce, func(paths []string) {
		for _, p := range paths {
			w.Process(flushCtx, p)
		}
	})
	defer deb.Stop()

	if err := w.ProcessExisting(ctx); err != nil {
		return err
	}

	w.logger.Info("watching inbox", "dir", w.cfg.Dir, "pattern", w.cfg.Pattern)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.Matches(event.Name) {
				continue
			}
			w.logger.Debug("inbox event", "path", event.Name, "op", event.Op.String())
			deb.Add(event.Name)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("inbox watcher error", "error", err)
		}
	}
}

// ProcessExisting imports every matching file currently in the inbox.
func (w *Watcher) ProcessExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return goerr.Wrap(err, "read inbox", goerr.V("dir", w.cfg.Dir))
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.cfg.Dir, e.Name())
		if w.Matches(path) {
			w.Process(ctx, path)
		}
	}
	return nil
}

// Process imports a single file and moves it out of the inbox. Files are left
// in place when the store is unavailable.
func (w *Watcher) Process(ctx context.Context, path string) Result {
	w.procMu.Lock()
	defer w.procMu.Unlock()

	logger := w.logger
	if logger == nil {
		logger = logging.From(ctx)
	}

	res := Result{Path: path}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		// Already handled by an earlier event.
		return res
	}
	if err == nil {
		res.Import, err = w.importer.ImportMemoryData(ctx, data)
	}
	res.Err = err

	if errors.Is(err, store.ErrStorageUnavailable) {
		// Left in the inbox so a later run with working storage picks it up.
		logger.Warn("inbox import deferred, storage unavailable", "path", path, "error", err)
		if w.onResult != nil {
			w.onResult(res)
		}
		return res
	}

	dest := ImportedDir
	if err != nil {
		dest = FailedDir
		logger.Warn("inbox import failed", "path", path, "error", err)
	} else {
		logger.Info("inbox import done", "path", path,
			"imported", res.Import.Imported, "skipped", len(res.Import.Skipped))
	}

	moved, err := moveInto(path, filepath.Join(w.cfg.Dir, dest))
	if err != nil {
		logger.Error("move inbox file", "path", path, "error", err)
	}
	res.MovedTo = moved

	if w.onResult != nil {
		w.onResult(res)
	}
	return res
}

func moveInto(path, dir string) (string, error) {
	target := filepath.Join(dir, filepath.Base(path))
	if _, err := os.Stat(target); err == nil {
		target = filepath.Join(dir, fmt.Sprintf("%d-%s", time.Now().UnixNano(), filepath.Base(path)))
	}
	if err := os.Rename(path, target); err != nil {
		return "", goerr.Wrap(err, "rename", goerr.V("from", path), goerr.V("to", target))
	}
	return target, nil
}
