// Package graphlet turns raw orbit counts into the quantities used to compare
// street networks: labelled graphlet degree matrices, trimmed signatures,
// graphlet correlation matrices and the weighted GDV distance.
package graphlet

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gsagostini/urban-graphlets/internal/orca"
)

// Counter is the orbit counting boundary. *orca.Counter satisfies it, as does
// the caching engine.
type Counter interface {
	CountString(ctx context.Context, task string, size int, text string) (string, error)
}

// Result is a graphlet degree matrix keyed by the caller's labels. For the
// node task Labels holds one label per row; for the edge task Edges does.
type Result struct {
	Task   orca.Task      `json:"task"`
	Size   int            `json:"size"`
	Labels []string       `json:"labels,omitempty"`
	Edges  []LabelledEdge `json:"edges,omitempty"`
	Counts [][]int64      `json:"counts"`
}

// Row returns the counts of the given node label.
func (r *Result) Row(label string) ([]int64, bool) {
	for i, l := range r.Labels {
		if l == label {
			return r.Counts[i], true
		}
	}
	return nil, false
}

// Simplified is the integer-labelled simple graph handed to the counter.
type Simplified struct {
	Labels []string
	Edges  []LabelledEdge
	Text   string
}

// Simplify relabels nodes to integers in order of first appearance (declared
// nodes first, then edge endpoints), drops self-loops and collapses parallel
// edges. The header carries the number of edges actually written.
func Simplify(el *EdgeList) *Simplified {
	index := make(map[string]int)
	var labels []string
	id := func(label string) int {
		if i, ok := index[label]; ok {
			return i
		}
		index[label] = len(labels)
		labels = append(labels, label)
		return len(labels) - 1
	}

	for _, n := range el.Nodes {
		id(n)
	}

	type pair struct{ a, b int }
	seen := make(map[pair]bool, len(el.Edges))
	var kept []LabelledEdge
	var body strings.Builder
	for _, e := range el.Edges {
		u, v := id(e.U), id(e.V)
		if u == v {
			continue
		}
		key := pair{u, v}
		if u > v {
			key = pair{v, u}
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, e)
		body.WriteString(strconv.Itoa(u))
		body.WriteByte(' ')
		body.WriteString(strconv.Itoa(v))
		body.WriteByte('\n')
	}

	return &Simplified{
		Labels: labels,
		Edges:  kept,
		Text:   fmt.Sprintf("%d %d\n", len(labels), len(kept)) + body.String(),
	}
}

// OrbitCounts simplifies el, counts orbits through c and parses the result
// back into a matrix keyed by the original labels.
func OrbitCounts(ctx context.Context, c Counter, task orca.Task, size int, el *EdgeList) (*Result, error) {
	if el == nil {
		return nil, fmt.Errorf("%w: nil edge list", orca.ErrInvalidInput)
	}
	s := Simplify(el)

	out, err := c.CountString(ctx, string(task), size, s.Text)
	if err != nil {
		return nil, err
	}
	counts, err := orca.ParseCounts(out)
	if err != nil {
		return nil, err
	}

	res := &Result{Task: task, Size: size, Counts: counts}
	if task == orca.TaskEdge {
		res.Edges = s.Edges
		if len(counts) != len(s.Edges) {
			return nil, fmt.Errorf("%w: %d edge rows for %d edges", orca.ErrInternal, len(counts), len(s.Edges))
		}
	} else {
		res.Labels = s.Labels
		if len(counts) != len(s.Labels) {
			return nil, fmt.Errorf("%w: %d node rows for %d nodes", orca.ErrInternal, len(counts), len(s.Labels))
		}
	}
	return res, nil
}
