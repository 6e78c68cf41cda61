// Package watcher streams passage files dropped into the documents tree
// into the vector index.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
	"github.com/custodia-labs/kgraph/internal/logger"
)

// PassageReader loads a passage from its documents-tree path.
type PassageReader interface {
	Root() string
	ReadPath(path string) (driven.StoredPassage, error)
}

// Sink receives passages to embed and index. Passages already indexed are
// skipped by the sink.
type Sink interface {
	IndexPassages(ctx context.Context, passages []driven.StoredPassage) error
}

// Stats counts watcher activity.
type Stats struct {
	Events  int
	Indexed int
	Errors  int
}

// Watcher watches every directory under the documents root. fsnotify is not
// recursive, so source and batch directories are added as they appear.
type Watcher struct {
	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	reader   PassageReader
	sink     Sink
	pending  map[string]time.Time
	debounce time.Duration
	tick     time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
	stats    Stats
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long a file must be quiet before it is indexed.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
			if d < w.tick {
				w.tick = d
			}
		}
	}
}

// New creates a watcher. Call Start to begin.
func New(reader PassageReader, sink Sink, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:      fsw,
		reader:   reader,
		sink:     sink,
		pending:  make(map[string]time.Time),
		debounce: 250 * time.Millisecond,
		tick:     100 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start adds watches for the existing tree and runs the event loop in a
// goroutine. Files already present are not indexed here; rebuilding from
// the store covers them. The watcher is only marked running once every
// watch is in place, so Stop after a failed Start just closes it.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	root := w.reader.Root()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.Debug("watcher: watching %s", root)

	w.running = true
	go w.run(ctx)
	return nil
}

// Stop ends the event loop and closes the underlying watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		_ = w.fsw.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if err := w.fsw.Close(); err != nil {
		logger.Warn("watcher: closing: %v", err)
	}
}

// Stats returns a snapshot of the counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("watcher: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.flush(ctx, false)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		w.addTree(ev.Name)
		return
	}
	if !isPassageFile(ev.Name) {
		return
	}
	w.mu.Lock()
	w.stats.Events++
	w.pending[ev.Name] = time.Now()
	w.mu.Unlock()
}

// addTree watches a new directory and queues files that landed before the
// watch was in place.
func (w *Watcher) addTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				logger.Warn("watcher: adding %s: %v", path, err)
			}
			return nil
		}
		if isPassageFile(path) {
			w.mu.Lock()
			w.pending[path] = time.Now()
			w.mu.Unlock()
		}
		return nil
	})
}

// flush indexes settled files, or all pending files when force is set.
func (w *Watcher) flush(ctx context.Context, force bool) {
	now := time.Now()
	var ready []string
	w.mu.Lock()
	for path, at := range w.pending {
		if force || now.Sub(at) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()
	if len(ready) == 0 {
		return
	}

	passages := make([]driven.StoredPassage, 0, len(ready))
	failed := 0
	for _, path := range ready {
		p, err := w.reader.ReadPath(path)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				logger.Warn("watcher: reading %s: %v", path, err)
				failed++
			}
			continue
		}
		passages = append(passages, p)
	}
	if len(passages) > 0 {
		if err := w.sink.IndexPassages(ctx, passages); err != nil {
			logger.Warn("watcher: indexing %d passages: %v", len(passages), err)
			failed += len(passages)
			passages = nil
		}
	}

	w.mu.Lock()
	w.stats.Indexed += len(passages)
	w.stats.Errors += failed
	w.mu.Unlock()
}

func isPassageFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, ".jsonl") && !strings.HasPrefix(base, ".")
}
