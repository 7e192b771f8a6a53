// Package census computes graphlet degree matrices for every edge-list file
// of a directory in the background and keeps them in the result store.
package census

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/gsagostini/urban-graphlets/internal/export"
	"github.com/gsagostini/urban-graphlets/internal/graphlet"
	"github.com/gsagostini/urban-graphlets/internal/logger"
	"github.com/gsagostini/urban-graphlets/internal/orca"
	"github.com/gsagostini/urban-graphlets/internal/store"
	"github.com/gsagostini/urban-graphlets/internal/tiles"
)

var log = logger.ForComponent("census")

// CoordinatesSuffix marks the node coordinate file that accompanies a graph:
// city.edgelist pairs with city.coords.csv.
const CoordinatesSuffix = ".coords.csv"

// GraphStore is the part of the result store the census writes to.
type GraphStore interface {
	GetGraphByPath(ctx context.Context, path string) (*store.GraphRecord, error)
	UpsertGraph(ctx context.Context, g *store.GraphRecord) error
	UpdateGraphStatus(ctx context.Context, name, path string, status store.GraphStatus, errMsg string) error
	DeleteGraphByPath(ctx context.Context, path string) error
}

type Config struct {
	// Root is the census directory. Graphs are named by their path relative
	// to it.
	Root            string
	Size            int
	WorkerCount     int
	MaxQueueSize    int
	RateLimit       int
	MaxFileSize     int64
	IncludePatterns []string
	ExcludePatterns []string
}

func DefaultConfig() Config {
	return Config{
		Size:         4,
		WorkerCount:  2,
		MaxQueueSize: 1000,
		RateLimit:    20,
		MaxFileSize:  256 * 1024 * 1024,
		IncludePatterns: []string{
			"**/*.edgelist",
			"**/*.edges",
			"**/*.txt",
			"**/*.csv",
		},
		ExcludePatterns: []string{
			"**/.git/**",
			"**/exports/**",
			"**/*" + CoordinatesSuffix,
		},
	}
}

type Worker struct {
	store   GraphStore
	counter graphlet.Counter
	sink    export.Sink
	config  Config
	runID   string

	highQueue   chan Job
	normalQueue chan Job
	lowQueue    chan Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	rateLimiter *time.Ticker

	processed atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
	unchanged atomic.Int64
	inQueue   atomic.Int64

	statsMu     sync.RWMutex
	running     bool
	startedAt   time.Time
	lastUpdated time.Time
}

// NewWorker wires the census. sink may be nil to disable exporting.
func NewWorker(gs GraphStore, counter graphlet.Counter, sink export.Sink, config Config) *Worker {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.MaxQueueSize <= 0 {
		config.MaxQueueSize = 1000
	}
	if config.Size == 0 {
		config.Size = 4
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		store:       gs,
		counter:     counter,
		sink:        sink,
		config:      config,
		runID:       uuid.NewString(),
		highQueue:   make(chan Job, 100),
		normalQueue: make(chan Job, config.MaxQueueSize),
		lowQueue:    make(chan Job, config.MaxQueueSize*2),
		ctx:         ctx,
		cancel:      cancel,
	}

	if config.RateLimit > 0 {
		w.rateLimiter = time.NewTicker(time.Second / time.Duration(config.RateLimit))
	}
	return w
}

func (w *Worker) RunID() string {
	return w.runID
}

func (w *Worker) Start() {
	w.statsMu.Lock()
	w.running = true
	w.startedAt = time.Now()
	w.statsMu.Unlock()

	log.Info("census started", "workers", w.config.WorkerCount, "run_id", w.runID, "size", w.config.Size)

	for i := 0; i < w.config.WorkerCount; i++ {
		w.wg.Add(1)
		go w.worker(i)
	}
}

func (w *Worker) Stop() {
	log.Info("census stopping")

	w.cancel()
	if w.rateLimiter != nil {
		w.rateLimiter.Stop()
	}
	w.wg.Wait()

	w.statsMu.Lock()
	w.running = false
	w.statsMu.Unlock()

	log.Info("census stopped")
}

func (w *Worker) Enqueue(job Job) bool {
	var queue chan Job
	switch job.Priority {
	case PriorityHigh:
		queue = w.highQueue
	case PriorityLow:
		queue = w.lowQueue
	default:
		queue = w.normalQueue
	}

	select {
	case queue <- job:
		w.inQueue.Add(1)
		return true
	default:
		log.Warn("job enqueue failed - queue full", "path", job.Path, "priority", job.Priority)
		return false
	}
}

// EnqueuePath queues path when it is a graph file the census accepts.
func (w *Worker) EnqueuePath(path string, priority int) bool {
	if !w.Accepts(path) {
		return false
	}
	return w.Enqueue(Job{Path: path, Priority: Priority(priority)})
}

// Scan walks dir and queues every accepted graph file at low priority.
func (w *Worker) Scan(dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if w.Accepts(path) && w.Enqueue(Job{Path: path, Priority: PriorityLow}) {
			count++
		}
		return nil
	})
	if err != nil {
		return count, err
	}
	log.Info("census scan queued graphs", "dir", dir, "count", count)
	return count, nil
}

// Remove forgets the graph stored for path.
func (w *Worker) Remove(ctx context.Context, path string) error {
	return w.store.DeleteGraphByPath(ctx, path)
}

func (w *Worker) Stats() Stats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	return Stats{
		RunID:       w.runID,
		Processed:   w.processed.Load(),
		Failed:      w.failed.Load(),
		Skipped:     w.skipped.Load(),
		Unchanged:   w.unchanged.Load(),
		InQueue:     w.inQueue.Load(),
		IsRunning:   w.running,
		StartedAt:   w.startedAt,
		LastUpdated: w.lastUpdated,
	}
}

func (w *Worker) worker(id int) {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		if w.rateLimiter != nil {
			select {
			case <-w.rateLimiter.C:
			case <-w.ctx.Done():
				return
			}
		}

		var job Job
		select {
		case job = <-w.highQueue:
		default:
			select {
			case job = <-w.normalQueue:
			default:
				select {
				case job = <-w.lowQueue:
				default:
					time.Sleep(10 * time.Millisecond)
					continue
				}
			}
		}

		w.inQueue.Add(-1)
		log.Debug("worker processing job", "worker_id", id, "path", job.Path)
		if _, err := w.ProcessFile(w.ctx, job.Path); err != nil {
			log.Warn("census failed", "path", job.Path, "error", err)
		}
	}
}

// Accepts reports whether path matches an include pattern and no exclude
// pattern.
func (w *Worker) Accepts(path string) bool {
	if w.excluded(path) {
		return false
	}
	if len(w.config.IncludePatterns) == 0 {
		return true
	}
	return matchAny(w.config.IncludePatterns, path)
}

func (w *Worker) excluded(path string) bool {
	return matchAny(w.config.ExcludePatterns, path)
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

// GraphName derives the census name of a graph file: its slash separated
// path relative to root without extension. Files outside root, or any file
// when root is empty, are named by their base name.
func GraphName(root, path string) string {
	name := filepath.Base(path)
	if root != "" {
		rel, err := filepath.Rel(root, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			name = rel
		}
	}
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return filepath.ToSlash(name)
}

// ProcessFile computes and stores the node GDM of the edge list at path. An
// unchanged file whose GDM is already stored is returned as is.
func (w *Worker) ProcessFile(ctx context.Context, path string) (*store.GraphRecord, error) {
	name := GraphName(w.config.Root, path)

	if w.excluded(path) {
		w.skipped.Add(1)
		log.Debug("skipped graph", "path", path, "reason", "excluded by pattern")
		return nil, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, w.fail(ctx, name, path, err)
	}
	if info.IsDir() {
		return nil, nil
	}
	if w.config.MaxFileSize > 0 && info.Size() > w.config.MaxFileSize {
		w.skipped.Add(1)
		_ = w.store.UpdateGraphStatus(ctx, name, path, store.StatusSkipped, "file too large")
		log.Debug("skipped graph", "path", path, "reason", "file too large")
		return nil, nil
	}

	content, enc, err := ReadFileAsUTF8(path)
	if err != nil {
		return nil, w.fail(ctx, name, path, err)
	}
	sum := sha256.Sum256([]byte(content))
	hash := hex.EncodeToString(sum[:])

	existing, err := w.store.GetGraphByPath(ctx, path)
	if err != nil {
		log.Debug("graph lookup failed", "path", path, "error", err)
	}
	if existing != nil && existing.ContentHash == hash && existing.Size == w.config.Size && existing.Status == store.StatusDone {
		w.unchanged.Add(1)
		log.Debug("skipped graph", "path", path, "reason", "content unchanged")
		return existing, nil
	}

	el, err := graphlet.ReadEdgeList(strings.NewReader(content))
	if err != nil {
		return nil, w.fail(ctx, name, path, err)
	}
	res, err := graphlet.OrbitCounts(ctx, w.counter, orca.TaskNode, w.config.Size, el)
	if err != nil {
		return nil, w.fail(ctx, name, path, err)
	}
	gdm, err := json.Marshal(res)
	if err != nil {
		return nil, w.fail(ctx, name, path, err)
	}

	rec := &store.GraphRecord{
		Name:        name,
		Path:        path,
		ContentHash: hash,
		Encoding:    enc.Name,
		Status:      store.StatusDone,
		RunID:       w.runID,
		Size:        w.config.Size,
		Nodes:       len(res.Labels),
		Edges:       len(graphlet.Simplify(el).Edges),
		GDM:         string(gdm),
	}
	if err := w.store.UpsertGraph(ctx, rec); err != nil {
		return nil, w.fail(ctx, name, path, err)
	}

	if w.sink != nil {
		if err := w.export(ctx, name, path, gdm, res); err != nil {
			log.Warn("census export failed", "graph", name, "error", err)
		}
	}

	w.processed.Add(1)
	w.statsMu.Lock()
	w.lastUpdated = time.Now()
	w.statsMu.Unlock()
	log.Info("graph census complete", "graph", name, "nodes", rec.Nodes, "edges", rec.Edges)
	return rec, nil
}

// export writes the artifacts of one graph under the graph's name, so files
// sharing a base name in different directories keep separate artifacts.
func (w *Worker) export(ctx context.Context, name, path string, gdm []byte, res *graphlet.Result) error {
	if err := w.sink.Put(ctx, w.runID, name+"/"+ArtifactGDM, gdm); err != nil {
		return err
	}

	gcm, err := graphlet.ComputeGCM(res.Counts)
	if err != nil {
		return err
	}
	if gcm != nil {
		data, err := json.Marshal(gcm)
		if err != nil {
			return err
		}
		if err := w.sink.Put(ctx, w.runID, name+"/"+ArtifactGCM, data); err != nil {
			return err
		}
	}

	coords := strings.TrimSuffix(path, filepath.Ext(path)) + CoordinatesSuffix
	f, err := os.Open(coords)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	points, err := tiles.ReadPoints(f)
	if err != nil {
		return fmt.Errorf("%s: %w", coords, err)
	}
	ts, err := tiles.Build(points, res, tiles.DefaultGrid())
	if err != nil {
		return err
	}
	data, err := json.Marshal(ts)
	if err != nil {
		return err
	}
	return w.sink.Put(ctx, w.runID, name+"/"+ArtifactTiles, data)
}

func (w *Worker) fail(ctx context.Context, name, path string, err error) error {
	w.failed.Add(1)
	if uerr := w.store.UpdateGraphStatus(context.WithoutCancel(ctx), name, path, store.StatusFailed, err.Error()); uerr != nil {
		log.Debug("failed to record census failure", "path", path, "error", uerr)
	}
	return err
}
