package orca

import (
	"errors"
	"testing"
)

func TestParseGraph(t *testing.T) {
	g, err := ParseGraph("4 3\n0 1\n\n1 2\n  2   3  \n")
	if err != nil {
		t.Fatalf("ParseGraph failed: %v", err)
	}
	if g.NodeCount() != 4 || g.EdgeCount() != 3 {
		t.Fatalf("expected 4 nodes and 3 edges, got %d and %d", g.NodeCount(), g.EdgeCount())
	}
	if !g.HasEdge(2, 1) || g.HasEdge(0, 3) {
		t.Error("adjacency does not match input")
	}
	if g.Degree(1) != 2 {
		t.Errorf("expected degree 2 for node 1, got %d", g.Degree(1))
	}
}

func TestParseGraphIsolatedNodes(t *testing.T) {
	g, err := ParseGraph("5 1\n3 4\n")
	if err != nil {
		t.Fatalf("ParseGraph failed: %v", err)
	}
	for _, v := range []int{0, 1, 2} {
		if g.Degree(v) != 0 {
			t.Errorf("node %d should be isolated", v)
		}
	}
}

func TestParseGraphErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"blank only", "\n\n"},
		{"short header", "3\n"},
		{"non numeric header", "a b\n"},
		{"negative header", "-1 0\n"},
		{"too few edges", "3 2\n0 1\n"},
		{"too many edges", "3 1\n0 1\n1 2\n"},
		{"three fields", "3 1\n0 1 2\n"},
		{"out of range", "3 1\n0 3\n"},
		{"negative node", "3 1\n-1 2\n"},
		{"self loop", "3 1\n1 1\n"},
		{"duplicate", "3 2\n0 1\n1 0\n"},
		{"float", "3 1\n0 1.5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseGraph(tt.text)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestFormatGraphRoundTrip(t *testing.T) {
	text := "4 3\n0 1\n2 1\n3 2\n"
	g, err := ParseGraph(text)
	if err != nil {
		t.Fatalf("ParseGraph failed: %v", err)
	}
	if got := FormatGraph(g); got != text {
		t.Errorf("FormatGraph = %q, want %q", got, text)
	}
}

func TestFormatCounts(t *testing.T) {
	got := FormatCounts([][]int64{{1, 0, 12}, {0, 0, 0}})
	want := "1 0 12\n0 0 0\n"
	if got != want {
		t.Errorf("FormatCounts = %q, want %q", got, want)
	}
	if FormatCounts(nil) != "" {
		t.Error("expected empty output for no rows")
	}
}

func TestParseCounts(t *testing.T) {
	rows, err := ParseCounts("1 2 3\n4 5 6\n")
	if err != nil {
		t.Fatalf("ParseCounts failed: %v", err)
	}
	if len(rows) != 2 || rows[1][2] != 6 {
		t.Errorf("unexpected rows %v", rows)
	}

	if _, err := ParseCounts("1 x\n"); KindOf(err) != KindInvalidInput {
		t.Errorf("expected invalid input, got %v", err)
	}
}
