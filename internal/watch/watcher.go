// Package watch ingests PDFs dropped into the knowledge directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/config"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

const defaultDebounce = 2 * time.Second

// Ingester ingests a single file and returns the number of chunks added.
type Ingester interface {
	IngestFile(ctx context.Context, path, project, tahun string) (int, error)
}

// Result reports one ingestion attempt.
type Result struct {
	Path   string
	Chunks int
	Err    error
}

// Watcher ingests *.pdf files created or written in a directory. Bursts of
// events for the same file are collapsed into one ingestion after the
// debounce interval.
type Watcher struct {
	dir      string
	project  string
	tahun    string
	debounce time.Duration
	ingester Ingester
	logger   *zap.Logger

	fsw     *fsnotify.Watcher
	ready   chan string
	results chan Result
	done    chan struct{}

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New creates a Watcher for dir.
func New(cfg config.WatchConfig, dir string, ingester Ingester, logger *zap.Logger) (*Watcher, error) {
	if ingester == nil {
		return nil, errors.New("ingester is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	debounce := cfg.Debounce.Duration()
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	return &Watcher{
		dir:      dir,
		project:  cfg.Project,
		tahun:    cfg.Tahun,
		debounce: debounce,
		ingester: ingester,
		logger:   logger,
		fsw:      fsw,
		ready:    make(chan string, 16),
		results:  make(chan Result, 16),
		done:     make(chan struct{}),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Results returns ingestion outcomes. Sends are non-blocking; results are
// dropped when nobody reads.
func (w *Watcher) Results() <-chan Result {
	return w.results
}

// Run watches until ctx is cancelled. Ingestion errors are logged and never
// stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.close()

	if err := os.MkdirAll(w.dir, 0o750); err != nil {
		return fmt.Errorf("creating watch dir: %w", err)
	}
	if err := w.fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("watching for new documents",
		zap.String("dir", w.dir),
		zap.String("project", w.project),
		zap.Duration("debounce", w.debounce),
	)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if strings.ToLower(filepath.Ext(event.Name)) != ".pdf" {
				continue
			}
			w.schedule(event.Name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))

		case path := <-w.ready:
			w.ingest(ctx, path)
		}
	}
}

// schedule (re)starts the debounce timer for path. A timer that already
// fired is replaced, never reset: its callback may still be waiting on mu
// and will hand the path over once.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok && t.Stop() {
		t.Reset(w.debounce)
		return
	}
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		if w.timers[path] == t {
			delete(w.timers, path)
		}
		w.mu.Unlock()

		select {
		case w.ready <- path:
		case <-w.done:
		}
	})
	w.timers[path] = t
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	n, err := w.ingester.IngestFile(ctx, path, w.project, w.tahun)
	if err != nil {
		w.logger.Error("failed to ingest document", zap.String("file", path), zap.Error(err))
	} else {
		w.logger.Info("document ingested", zap.String("file", path), zap.Int("chunks", n))
	}

	select {
	case w.results <- Result{Path: path, Chunks: n, Err: err}:
	default:
	}
}

func (w *Watcher) close() {
	w.mu.Lock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	close(w.done)
	_ = w.fsw.Close()
}
