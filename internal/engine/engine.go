// Package engine puts an in-memory LRU and the persistent result store in
// front of the orbit counter.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gsagostini/urban-graphlets/internal/logger"
	"github.com/gsagostini/urban-graphlets/internal/orca"
	"github.com/gsagostini/urban-graphlets/internal/store"
)

var log = logger.ForComponent("engine")

const DefaultCacheSize = 256

// ResultStore is the persistent side of the cache. *store.Store satisfies it.
type ResultStore interface {
	GetCount(ctx context.Context, key string) (*store.CountRecord, error)
	PutCount(ctx context.Context, rec *store.CountRecord) error
}

type Config struct {
	Counter   orca.CounterConfig
	CacheSize int
}

type Engine struct {
	counter *orca.Counter
	cache   *lru.Cache[string, string]
	store   ResultStore

	hits     atomic.Int64
	stored   atomic.Int64
	computed atomic.Int64
	failed   atomic.Int64
}

type Stats struct {
	CacheEntries int   `json:"cache_entries"`
	CacheHits    int64 `json:"cache_hits"`
	StoreHits    int64 `json:"store_hits"`
	Computed     int64 `json:"computed"`
	Failed       int64 `json:"failed"`
}

// New builds an engine. rs may be nil, in which case results live only in
// the LRU.
func New(cfg Config, rs ResultStore) (*Engine, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &Engine{
		counter: orca.NewCounter(cfg.Counter),
		cache:   cache,
		store:   rs,
	}, nil
}

// Key identifies a count request by content.
func Key(task orca.Task, size int, text string) string {
	h := sha256.New()
	h.Write([]byte(task))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(size)))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// CountString has the same contract as orca.Counter.CountString. Only
// successful results are cached; store failures are logged and never fail
// the call.
func (e *Engine) CountString(ctx context.Context, task string, size int, text string) (string, error) {
	t, err := orca.ParseTask(task)
	if err != nil {
		e.failed.Add(1)
		return "", err
	}
	if err := orca.ValidateSize(size); err != nil {
		e.failed.Add(1)
		return "", err
	}

	key := Key(t, size, text)
	if out, ok := e.cache.Get(key); ok {
		e.hits.Add(1)
		return out, nil
	}

	if e.store != nil {
		rec, err := e.store.GetCount(ctx, key)
		if err != nil {
			log.Warn("result store lookup failed", "error", err)
		} else if rec != nil {
			e.stored.Add(1)
			e.cache.Add(key, rec.Output)
			return rec.Output, nil
		}
	}

	g, err := orca.ParseGraph(text)
	if err != nil {
		e.failed.Add(1)
		return "", err
	}
	res, err := e.counter.Count(ctx, g, t, size)
	if err != nil {
		e.failed.Add(1)
		return "", err
	}
	out := orca.FormatCounts(res.Counts)
	e.computed.Add(1)
	e.cache.Add(key, out)

	if e.store != nil {
		rec := &store.CountRecord{
			Key:       key,
			Task:      string(t),
			Size:      size,
			Nodes:     g.NodeCount(),
			Edges:     g.EdgeCount(),
			Output:    out,
			CreatedAt: time.Now(),
		}
		if err := e.store.PutCount(context.WithoutCancel(ctx), rec); err != nil {
			log.Warn("result store write failed", "error", err)
		}
	}
	return out, nil
}

// Count bypasses the cache and returns the structured result.
func (e *Engine) Count(ctx context.Context, g *orca.Graph, task orca.Task, size int) (*orca.Result, error) {
	return e.counter.Count(ctx, g, task, size)
}

func (e *Engine) Stats() Stats {
	return Stats{
		CacheEntries: e.cache.Len(),
		CacheHits:    e.hits.Load(),
		StoreHits:    e.stored.Load(),
		Computed:     e.computed.Load(),
		Failed:       e.failed.Load(),
	}
}

func (e *Engine) Purge() {
	e.cache.Purge()
}
