// Package watcher feeds the census with edge-list files created or changed
// under the watched directories.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/gsagostini/urban-graphlets/internal/logger"
)

var log = logger.ForComponent("watcher")

// Enqueuer receives the graph files the watcher sees. *census.Worker
// satisfies it.
type Enqueuer interface {
	EnqueuePath(path string, priority int) bool
	Remove(ctx context.Context, path string) error
}

type Watcher struct {
	config    WatcherConfig
	fsWatcher *fsnotify.Watcher
	fsMu      sync.Mutex
	debouncer *Debouncer
	census    Enqueuer

	mu      sync.RWMutex
	roots   []string
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(config WatcherConfig, census Enqueuer) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		config:    config,
		fsWatcher: fsWatcher,
		census:    census,
	}
	w.debouncer = NewDebouncer(config.DebounceWindow, config.MaxBatchSize, w.onFlush)
	return w, nil
}

func (w *Watcher) Roots() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.roots...)
}

// AddRoot watches path and every directory below it, queueing the graph
// files already present.
func (w *Watcher) AddRoot(path string) error {
	log.Info("adding root to watch", "path", path)

	if err := w.watch(path); err != nil {
		return err
	}

	w.mu.Lock()
	w.roots = append(w.roots, path)
	w.mu.Unlock()

	return w.walk(path)
}

func (w *Watcher) RemoveRoot(path string) {
	w.fsMu.Lock()
	_ = w.fsWatcher.Remove(path)
	w.fsMu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	for i, root := range w.roots {
		if root == path {
			w.roots = append(w.roots[:i], w.roots[i+1:]...)
			break
		}
	}
}

func (w *Watcher) watch(path string) error {
	w.fsMu.Lock()
	defer w.fsMu.Unlock()
	return w.fsWatcher.Add(path)
}

func (w *Watcher) walk(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Debug("failed to read directory", "path", dir, "error", err)
		return err
	}

	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())
		if w.ignored(full) {
			continue
		}
		if entry.IsDir() {
			if err := w.watch(full); err != nil {
				log.Debug("failed to watch directory", "path", full, "error", err)
				continue
			}
			_ = w.walk(full)
			continue
		}
		if w.Included(full) && w.census != nil {
			w.census.EnqueuePath(full, PriorityLow)
		}
	}
	return nil
}

func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	log.Info("starting graph watcher", "roots", len(w.roots))
	w.running = true
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.loop()
	return nil
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	log.Debug("file event", "path", event.Name, "op", event.Op.String())

	if w.ignored(event.Name) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watch(event.Name); err == nil {
				_ = w.walk(event.Name)
			}
			return
		}
	}

	if !w.Included(event.Name) {
		return
	}
	typ, ok := eventType(event.Op)
	if !ok {
		return
	}
	w.debouncer.Add(FileEvent{Path: event.Name, Type: typ, Timestamp: time.Now()})
}

func (w *Watcher) onFlush(events []FileEvent) {
	log.Info("flushing graph events", "count", len(events))
	if w.census == nil {
		return
	}

	priority := batchPriority(events)
	for _, event := range events {
		switch event.Type {
		case EventDelete, EventRename:
			if _, err := os.Stat(event.Path); os.IsNotExist(err) {
				if err := w.census.Remove(context.Background(), event.Path); err != nil {
					log.Warn("failed to drop removed graph", "path", event.Path, "error", err)
				}
				continue
			}
		}
		w.census.EnqueuePath(event.Path, priority)
	}
}

// Included reports whether a file matches the include patterns. An empty
// list includes everything.
func (w *Watcher) Included(path string) bool {
	if len(w.config.IncludePatterns) == 0 {
		return true
	}
	return matchAny(w.config.IncludePatterns, path)
}

func (w *Watcher) ignored(path string) bool {
	if !w.config.WatchHidden && strings.HasPrefix(filepath.Base(path), ".") {
		return true
	}
	return matchAny(w.config.IgnorePatterns, path)
}

func matchAny(patterns []string, path string) bool {
	p := strings.TrimPrefix(filepath.ToSlash(path), "/")
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(strings.TrimPrefix(pattern, "/"), p); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.closeFS()
	}
	log.Info("stopping graph watcher")
	w.running = false
	w.cancel()
	done := w.done
	w.mu.Unlock()

	<-done
	w.debouncer.Stop()
	return w.closeFS()
}

func (w *Watcher) closeFS() error {
	w.fsMu.Lock()
	defer w.fsMu.Unlock()
	return w.fsWatcher.Close()
}
