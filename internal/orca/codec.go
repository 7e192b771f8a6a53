package orca

import (
	"bufio"
	"strconv"
	"strings"
)

const maxLineSize = 1024 * 1024

// ParseGraph reads the edge-list text format:
//
//	<n> <m>
//	<u> <v>   (m lines)
//
// Blank lines are skipped. Exactly m edge lines must follow the header.
func ParseGraph(text string) (*Graph, error) {
	const op = "parse"

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		lineNo   int
		haveHead bool
		n, m     int
		edges    []Edge
	)

	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, invalidf(op, "line %d: expected 2 fields, got %d", lineNo, len(fields))
		}

		a, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, invalidf(op, "line %d: %q is not an integer", lineNo, fields[0])
		}
		b, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, invalidf(op, "line %d: %q is not an integer", lineNo, fields[1])
		}

		if !haveHead {
			if a < 0 || b < 0 {
				return nil, invalidf(op, "line %d: negative header values %d %d", lineNo, a, b)
			}
			n, m = a, b
			haveHead = true
			edges = make([]Edge, 0, m)
			continue
		}

		if len(edges) == m {
			return nil, invalidf(op, "line %d: more than %d edges", lineNo, m)
		}
		edges = append(edges, Edge{U: a, V: b})
	}

	if err := scanner.Err(); err != nil {
		return nil, invalidf(op, "read: %v", err)
	}
	if !haveHead {
		return nil, invalidf(op, "missing header line")
	}
	if len(edges) != m {
		return nil, invalidf(op, "header declares %d edges, found %d", m, len(edges))
	}

	return NewGraph(n, edges)
}

func FormatGraph(g *Graph) string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(g.n))
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(len(g.edges)))
	sb.WriteByte('\n')
	for _, e := range g.edges {
		sb.WriteString(strconv.Itoa(e.U))
		sb.WriteByte(' ')
		sb.WriteString(strconv.Itoa(e.V))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// FormatCounts renders one line per row with counts separated by single
// spaces. Every line, including the last, ends with a newline.
func FormatCounts(counts [][]int64) string {
	var sb strings.Builder
	buf := make([]byte, 0, 24)
	for _, row := range counts {
		for j, c := range row {
			if j > 0 {
				sb.WriteByte(' ')
			}
			buf = strconv.AppendInt(buf[:0], c, 10)
			sb.Write(buf)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func ParseCounts(text string) ([][]int64, error) {
	const op = "parse_counts"

	var rows [][]int64
	for i, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		row := make([]int64, len(fields))
		for j, f := range fields {
			v, err := strconv.ParseInt(f, 10, 64)
			if err != nil {
				return nil, invalidf(op, "line %d column %d: %q is not an integer", i+1, j, f)
			}
			row[j] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}
