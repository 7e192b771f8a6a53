package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsagostini/urban-graphlets/internal/orca"
	"github.com/gsagostini/urban-graphlets/internal/tools"
	"github.com/gsagostini/urban-graphlets/internal/tools/orcastr"
	"github.com/gsagostini/urban-graphlets/pkg/protocol"
)

func newServer(t *testing.T) *Server {
	t.Helper()
	reg := tools.NewRegistry()
	require.NoError(t, orcastr.Register(reg, orca.NewCounter(orca.CounterConfig{Workers: 1})))
	require.NoError(t, reg.Register(tools.NewHealthTool(reg)))
	return NewServer(reg, time.Minute)
}

func request(id any, method string, params string) *Request {
	req := &Request{JSONRPC: "2.0", ID: id, Method: method}
	if params != "" {
		req.Params = json.RawMessage(params)
	}
	return req
}

func TestInitialize(t *testing.T) {
	s := newServer(t)

	resp := s.HandleRequest(context.Background(), request(1, "initialize",
		`{"protocolVersion": "2024-11-05", "clientInfo": {"name": "test", "version": "1"}}`))
	require.Nil(t, resp.Error)
	res := resp.Result.(*InitializeResult)
	assert.Equal(t, "2024-11-05", res.ProtocolVersion)
	assert.Equal(t, "orcastr", res.ServerInfo.Name)

	resp = s.HandleRequest(context.Background(), request(2, "initialize", `{"protocolVersion": "1999-01-01"}`))
	assert.Equal(t, "2025-06-18", resp.Result.(*InitializeResult).ProtocolVersion)
}

func TestNotificationsGetNoResponse(t *testing.T) {
	s := newServer(t)
	assert.Nil(t, s.HandleRequest(context.Background(), request(nil, "notifications/initialized", "")))
	assert.True(t, s.handler.Initialized())
}

func TestListToolsAndModules(t *testing.T) {
	s := newServer(t)

	resp := s.HandleRequest(context.Background(), request(1, "tools/list", ""))
	require.Nil(t, resp.Error)
	list := resp.Result.(*ListToolsResult).Tools
	require.Len(t, list, 2)
	assert.Equal(t, "health", list[0].Name)
	assert.Equal(t, "motif_counts_str", list[1].Name)
	assert.Equal(t, "Count motifs", list[1].Description)
	assert.True(t, json.Valid(list[1].InputSchema))

	resp = s.HandleRequest(context.Background(), request(2, "modules/list", ""))
	mods := resp.Result.(*ListModulesResult).Modules
	require.Len(t, mods, 1)
	assert.Equal(t, tools.ModuleInfo{Name: "orcastr", Doc: "orca module", Tools: []string{"motif_counts_str"}}, mods[0])
}

func TestCallTool(t *testing.T) {
	s := newServer(t)

	resp := s.HandleRequest(context.Background(), request(1, "tools/call",
		`{"name": "motif_counts_str", "arguments": {"args": ["edge", 4, "3 2\n0 1\n1 2\n"]}}`))
	require.Nil(t, resp.Error)
	res := resp.Result.(*protocol.CallToolResult)
	require.Len(t, res.Content, 1)
	assert.Equal(t, "text", res.Content[0].Type)
	lines := strings.Split(strings.TrimSuffix(res.Content[0].Text, "\n"), "\n")
	assert.Len(t, lines, 2)

	resp = s.HandleRequest(context.Background(), request(2, "tools/call", `{"name": "health"}`))
	require.Nil(t, resp.Error)
	var health map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Result.(*protocol.CallToolResult).Content[0].Text), &health))
	assert.Equal(t, "healthy", health["status"])
}

func TestCallToolErrors(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		params string
		code   int
		kind   string
	}{
		{"zero args", `{"name": "motif_counts_str"}`, protocol.CodeInvalidParams, "invalid_input"},
		{"unsupported size", `{"name": "motif_counts_str", "arguments": {"task": "node", "size": 6, "graph": "1 0\n"}}`, protocol.CodeInvalidParams, "unsupported"},
		{"unknown tool", `{"name": "nope"}`, protocol.CodeMethodNotFound, ""},
		{"missing name", `{}`, protocol.CodeInvalidParams, ""},
		{"bad params", `[1, 2]`, protocol.CodeInvalidParams, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := s.HandleRequest(ctx, request(7, "tools/call", tc.params))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.code, resp.Error.Code)
			if tc.kind != "" {
				assert.Equal(t, map[string]string{"kind": tc.kind}, resp.Error.Data)
			}
		})
	}

	resp := s.HandleRequest(ctx, request(8, "resources/list", ""))
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeMethodNotFound, resp.Error.Code)
}

func TestProcessStream(t *testing.T) {
	s := newServer(t)
	in := strings.Join([]string{
		`{"jsonrpc": "2.0", "id": 1, "method": "ping"}`,
		`not json`,
		``,
		`{"jsonrpc": "2.0", "method": "notifications/initialized"}`,
		`{"jsonrpc": "2.0", "id": 2, "method": "tools/list"}`,
	}, "\n")

	var out bytes.Buffer
	require.NoError(t, s.ProcessStream(context.Background(), strings.NewReader(in), &out))

	var responses []protocol.JSONRPCResponse
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var r protocol.JSONRPCResponse
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		responses = append(responses, r)
	}
	require.Len(t, responses, 3)
	assert.EqualValues(t, 1, responses[0].ID)
	require.NotNil(t, responses[1].Error)
	assert.Equal(t, protocol.CodeParseError, responses[1].Error.Code)
	assert.EqualValues(t, 2, responses[2].ID)
}
