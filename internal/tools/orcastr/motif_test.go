package orcastr

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsagostini/urban-graphlets/internal/orca"
	"github.com/gsagostini/urban-graphlets/internal/tools"
)

func newRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	require.NoError(t, Register(reg, orca.NewCounter(orca.CounterConfig{Workers: 1})))
	return reg
}

func TestModuleListsOneCallable(t *testing.T) {
	reg := newRegistry(t)

	mod, ok := reg.Module(ModuleName)
	require.True(t, ok)
	assert.Equal(t, "orca module", mod.Doc)
	assert.Equal(t, []string{"motif_counts_str"}, mod.Tools)

	tool, ok := reg.Get("motif_counts_str")
	require.True(t, ok)
	assert.Equal(t, "Count motifs", tool.Description())
}

func TestZeroArgumentCallFails(t *testing.T) {
	reg := newRegistry(t)
	for _, input := range []string{"", "null", "{}", `{"args": []}`} {
		_, err := reg.Execute(context.Background(), "motif_counts_str", json.RawMessage(input))
		require.Error(t, err, "input %q", input)

		var te *tools.ToolError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, tools.CodeInvalidParams, te.Code, "input %q", input)
	}
}

func TestWellFormedCall(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	named, err := reg.Execute(ctx, "motif_counts_str",
		json.RawMessage(`{"task": "node", "size": 4, "graph": "3 2\n0 1\n1 2\n"}`))
	require.NoError(t, err)
	out, ok := named.(string)
	require.True(t, ok)
	assert.Equal(t, "1 1 0 0 0 0 0 0 0 0 0 0 0 0 0\n2 0 1 0 0 0 0 0 0 0 0 0 0 0 0\n1 1 0 0 0 0 0 0 0 0 0 0 0 0 0\n", out)

	positional, err := reg.Execute(ctx, "motif_counts_str",
		json.RawMessage(`{"args": ["node", 4, "3 2\n0 1\n1 2\n"]}`))
	require.NoError(t, err)
	assert.Equal(t, named, positional)
}

func TestCallErrorsAreClassified(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input string
		kind  orca.ErrorKind
		cause error
	}{
		{"missing graph", `{"task": "node", "size": 4}`, orca.KindInvalidInput, nil},
		{"short positional", `{"args": ["node", 4]}`, orca.KindInvalidInput, nil},
		{"wrong type", `{"args": ["node", "four", "1 0\n"]}`, orca.KindInvalidInput, nil},
		{"bad graph", `{"task": "node", "size": 4, "graph": "2 1\n0 5\n"}`, orca.KindInvalidInput, orca.ErrInvalidInput},
		{"bad size", `{"task": "node", "size": 3, "graph": "1 0\n"}`, orca.KindUnsupported, orca.ErrUnsupported},
		{"bad task", `{"task": "vertex", "size": 4, "graph": "1 0\n"}`, orca.KindUnsupported, orca.ErrUnsupported},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reg.Execute(ctx, "motif_counts_str", json.RawMessage(tc.input))
			var te *tools.ToolError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tools.CodeInvalidParams, te.Code)
			assert.Equal(t, tc.kind, te.Kind)
			if tc.cause != nil {
				assert.ErrorIs(t, err, tc.cause)
			}
		})
	}
}

func TestCanceledCallIsCanceled(t *testing.T) {
	reg := newRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := reg.Execute(ctx, "motif_counts_str",
		json.RawMessage(`{"task": "node", "size": 4, "graph": "3 2\n0 1\n1 2\n"}`))
	var te *tools.ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, tools.CodeInternalError, te.Code)
	assert.Equal(t, orca.KindCanceled, te.Kind)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, orca.ErrCanceled)
}
