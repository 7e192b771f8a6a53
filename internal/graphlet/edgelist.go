package graphlet

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/gsagostini/urban-graphlets/internal/orca"
)

// LabelledEdge is an undirected edge between two arbitrary node labels.
type LabelledEdge struct {
	U string `json:"u"`
	V string `json:"v"`
}

// EdgeList is a labelled graph as read from disk. Nodes lists labels that
// must appear even when they have no edges.
type EdgeList struct {
	Nodes []string       `json:"nodes,omitempty"`
	Edges []LabelledEdge `json:"edges"`
}

// ReadEdgeList reads one edge per line. Fields are separated by whitespace,
// commas or tabs; lines starting with '#' are comments and a line holding a
// single label declares an isolated node.
func ReadEdgeList(r io.Reader) (*EdgeList, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	el := &EdgeList{}
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == ';'
		})
		switch {
		case len(fields) == 1:
			el.Nodes = append(el.Nodes, fields[0])
		case len(fields) >= 2:
			// extra columns (weights, lengths) are ignored
			el.Edges = append(el.Edges, LabelledEdge{U: fields[0], V: fields[1]})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read edge list line %d: %v", orca.ErrInvalidInput, lineNo, err)
	}
	return el, nil
}
