package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestCount(t *testing.T) {
	path := writeFile(t, "p3.txt", "3 2\n0 1\n1 2\n")
	var out bytes.Buffer
	require.NoError(t, count(context.Background(), []string{"-task", "edge", path}, &out))
	assert.Equal(t, "1 0 0 0 0 0 0 0 0 0 0 0\n1 0 0 0 0 0 0 0 0 0 0 0\n", out.String())
}

func TestGDM(t *testing.T) {
	path := writeFile(t, "star.edges", "hub a\nhub b\nhub c\n")
	var out bytes.Buffer
	require.NoError(t, gdm(context.Background(), []string{"-trim", path}, &out))

	var res struct {
		Labels []string  `json:"labels"`
		Counts [][]int64 `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, []string{"hub", "a", "b", "c"}, res.Labels)
	require.Len(t, res.Counts[0], 11)
	assert.Equal(t, int64(3), res.Counts[0][0])
}

func TestGCMDistance(t *testing.T) {
	a := writeFile(t, "a.edges", "a b\nb c\nc a\nc d\n")
	var out bytes.Buffer
	require.NoError(t, gcm(context.Background(), []string{a, a}, &out))

	var res map[string]float64
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.InDelta(t, 0.0, res["gcd"], 1e-9)

	assert.Error(t, gcm(context.Background(), nil, &out))
}
