package orca

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/gsagostini/urban-graphlets/internal/logger"
)

var log = logger.ForComponent("orca")

type Task string

const (
	TaskNode Task = "node"
	TaskEdge Task = "edge"
)

func ParseTask(s string) (Task, error) {
	switch Task(strings.ToLower(strings.TrimSpace(s))) {
	case TaskNode:
		return TaskNode, nil
	case TaskEdge:
		return TaskEdge, nil
	}
	return "", unsupportedf("task", "unknown task %q (want node or edge)", s)
}

func ValidateSize(size int) error {
	if size != 4 && size != 5 {
		return unsupportedf("size", "graphlet size %d not supported (want 4 or 5)", size)
	}
	return nil
}

// Width returns the number of orbit columns produced for task and size.
func Width(task Task, size int) int {
	if task == TaskEdge {
		return EdgeOrbitCount(size)
	}
	return NodeOrbitCount(size)
}

type CounterConfig struct {
	Workers   int
	ChunkSize int
}

func DefaultCounterConfig() CounterConfig {
	return CounterConfig{
		Workers:   runtime.GOMAXPROCS(0),
		ChunkSize: 64,
	}
}

type Counter struct {
	config CounterConfig
}

func NewCounter(config CounterConfig) *Counter {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = 64
	}
	return &Counter{config: config}
}

type Result struct {
	Task   Task      `json:"task"`
	Size   int       `json:"size"`
	Width  int       `json:"width"`
	Counts [][]int64 `json:"counts"`
}

// CountString parses graph text, counts orbits and renders the result in the
// line format of FormatCounts.
func (c *Counter) CountString(ctx context.Context, task string, size int, text string) (string, error) {
	t, err := ParseTask(task)
	if err != nil {
		return "", err
	}
	if err := ValidateSize(size); err != nil {
		return "", err
	}
	g, err := ParseGraph(text)
	if err != nil {
		return "", err
	}
	res, err := c.Count(ctx, g, t, size)
	if err != nil {
		return "", err
	}
	return FormatCounts(res.Counts), nil
}

// Count enumerates every connected induced subgraph of g with at most size
// nodes exactly once and accumulates the orbit each node (or edge) occupies.
// Rows follow node ids for TaskNode and input edge order for TaskEdge.
func (c *Counter) Count(ctx context.Context, g *Graph, task Task, size int) (*Result, error) {
	const op = "count"

	if _, err := ParseTask(string(task)); err != nil {
		return nil, err
	}
	if err := ValidateSize(size); err != nil {
		return nil, err
	}
	if g == nil {
		return nil, invalidf(op, "nil graph")
	}

	cat := getCatalog()
	width := Width(task, size)
	rows := g.NodeCount()
	if task == TaskEdge {
		rows = g.EdgeCount()
	}
	flat := make([]int64, rows*width)

	var next int64
	n := int64(g.NodeCount())
	chunk := int64(c.config.ChunkSize)

	eg, egCtx := errgroup.WithContext(ctx)
	for w := 0; w < c.config.Workers; w++ {
		eg.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("orbit enumeration panicked", "panic", r, "stack", string(debug.Stack()))
					err = &Error{Kind: KindInternal, Op: op, Err: fmt.Errorf("panic: %v", r)}
				}
			}()

			e := newEnumerator(g, cat, task, size, width, flat)
			for {
				if err := egCtx.Err(); err != nil {
					return wrapContext(op, err)
				}
				start := atomic.AddInt64(&next, chunk) - chunk
				if start >= n {
					return nil
				}
				end := start + chunk
				if end > n {
					end = n
				}
				for v := start; v < end; v++ {
					e.root(int32(v))
				}
			}
		})
	}
	if err := eg.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, wrapContext(op, ctx.Err())
		}
		return nil, err
	}

	counts := make([][]int64, rows)
	for i := range counts {
		counts[i] = flat[i*width : (i+1)*width : (i+1)*width]
	}

	log.Debug("orbits counted", "task", task, "size", size, "nodes", g.NodeCount(), "edges", g.EdgeCount())
	return &Result{Task: task, Size: size, Width: width, Counts: counts}, nil
}

type enumerator struct {
	g     *Graph
	cat   *catalog
	task  Task
	size  int
	width int
	out   []int64

	vsub [MaxGraphletSize]int32
	mask [MaxGraphletSize + 1]uint16
	eids [MaxGraphletSize + 1][10]int32
	bufs [MaxGraphletSize + 1][]int32
}

func newEnumerator(g *Graph, cat *catalog, task Task, size, width int, out []int64) *enumerator {
	return &enumerator{g: g, cat: cat, task: task, size: size, width: width, out: out}
}

func (e *enumerator) root(v int32) {
	e.vsub[0] = v
	e.mask[1] = 0
	ext := e.bufs[0][:0]
	for _, u := range e.g.adj[v] {
		if u > v {
			ext = append(ext, u)
		}
	}
	e.bufs[0] = ext
	e.extend(1, ext, v)
}

// extend is the ESU recursion: depth vertices are fixed in vsub, ext holds
// the candidates, and only vertices greater than the root may join.
func (e *enumerator) extend(depth int, ext []int32, root int32) {
	if depth >= 2 {
		e.record(depth)
	}
	if depth == e.size {
		return
	}

	for len(ext) > 0 {
		w := ext[len(ext)-1]
		ext = ext[:len(ext)-1]

		next := append(e.bufs[depth][:0], ext...)
		for _, u := range e.g.adj[w] {
			if u <= root || e.excluded(depth, u) {
				continue
			}
			next = append(next, u)
		}
		e.bufs[depth] = next

		e.push(depth, w)
		e.extend(depth+1, next, root)
	}
}

// excluded reports whether u is already in the subgraph or adjacent to it,
// i.e. not part of the exclusive neighbourhood of the vertex being added.
func (e *enumerator) excluded(depth int, u int32) bool {
	for i := 0; i < depth; i++ {
		x := e.vsub[i]
		if x == u {
			return true
		}
		if _, ok := e.g.edgeID(x, u); ok {
			return true
		}
	}
	return false
}

func (e *enumerator) push(depth int, w int32) {
	e.vsub[depth] = w
	m := e.mask[depth]
	e.eids[depth+1] = e.eids[depth]
	for i := 0; i < depth; i++ {
		if id, ok := e.g.edgeID(e.vsub[i], w); ok {
			pi := e.cat.pairIndex[i][depth]
			m |= 1 << pi
			e.eids[depth+1][pi] = id
		}
	}
	e.mask[depth+1] = m
}

func (e *enumerator) record(s int) {
	cl := &e.cat.table[s][e.mask[s]]
	if e.task == TaskNode {
		for pos := 0; pos < s; pos++ {
			atomic.AddInt64(&e.out[int(e.vsub[pos])*e.width+int(cl.nodeOrbit[pos])], 1)
		}
		return
	}
	for _, pr := range e.cat.pairs[s] {
		pi := e.cat.pairIndex[pr[0]][pr[1]]
		if e.mask[s]&(1<<pi) == 0 {
			continue
		}
		o := cl.edgeOrbit[pi]
		if o == noEdgeOrbit {
			continue
		}
		id := e.eids[s][pi]
		atomic.AddInt64(&e.out[int(id)*e.width+int(o)], 1)
	}
}
