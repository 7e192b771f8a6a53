package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gsagostini/urban-graphlets/internal/logger"
	"github.com/gsagostini/urban-graphlets/internal/tools"
	"github.com/gsagostini/urban-graphlets/pkg/protocol"
	"github.com/gsagostini/urban-graphlets/pkg/version"
)

var log = logger.ForComponent("mcp")

const (
	ServerName = "orcastr"

	DefaultToolTimeout = 4 * time.Minute
)

type Handler struct {
	registry *tools.Registry
	timeout  time.Duration

	mu          sync.Mutex
	initialized bool
	clientInfo  ClientInfo
}

// NewHandler returns a handler bounding every tool call by timeout. A zero
// timeout selects DefaultToolTimeout.
func NewHandler(registry *tools.Registry, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	return &Handler{
		registry: registry,
		timeout:  timeout,
	}
}

// Handle dispatches one request. Notifications get no response and Handle
// returns nil for them.
func (h *Handler) Handle(ctx context.Context, req *Request) *Response {
	if req.ID == nil && strings.HasPrefix(req.Method, "notifications/") {
		h.handleNotification(req)
		return nil
	}

	resp := &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
	}

	var (
		result any
		err    error
	)
	switch req.Method {
	case "initialize":
		result, err = h.handleInitialize(req)
	case "ping":
		result = map[string]any{}
	case "tools/list":
		result = h.handleListTools()
	case "modules/list":
		result = &ListModulesResult{Modules: h.registry.Modules()}
	case "tools/call":
		result, err = h.handleCallTool(ctx, req)
	case "notifications/initialized":
		h.handleNotification(req)
		result = map[string]any{}
	default:
		err = &protocol.JSONRPCError{
			Code:    protocol.CodeMethodNotFound,
			Message: fmt.Sprintf("Method not found: %s", req.Method),
		}
	}

	if err != nil {
		resp.Error = toRPCError(err)
		return resp
	}
	resp.Result = result
	return resp
}

func toRPCError(err error) *protocol.JSONRPCError {
	var rpcErr *protocol.JSONRPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	var te *tools.ToolError
	if errors.As(err, &te) {
		out := &protocol.JSONRPCError{Code: te.Code, Message: te.Message}
		if te.Kind != "" {
			out.Data = map[string]string{"kind": string(te.Kind)}
		}
		return out
	}
	return &protocol.JSONRPCError{
		Code:    protocol.CodeInternalError,
		Message: err.Error(),
	}
}

func decodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return &protocol.JSONRPCError{
			Code:    protocol.CodeInvalidParams,
			Message: fmt.Sprintf("invalid params: %v", err),
		}
	}
	return nil
}

func (h *Handler) handleInitialize(req *Request) (any, error) {
	var params InitializeParams
	if err := decodeParams(req.Params, &params); err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.clientInfo = params.ClientInfo
	h.mu.Unlock()
	log.Info("client connected", "client", params.ClientInfo.Name, "version", params.ClientInfo.Version)

	return &InitializeResult{
		ProtocolVersion: negotiateProtocolVersion(params.ProtocolVersion),
		Capabilities: map[string]any{
			"tools": map[string]any{},
		},
		ServerInfo: ServerInfo{
			Name:    ServerName,
			Version: version.Version,
		},
	}, nil
}

func negotiateProtocolVersion(clientVersion string) string {
	for _, v := range version.SupportedProtocolVersions {
		if clientVersion == v {
			return v
		}
	}
	return version.ProtocolVersion
}

func (h *Handler) handleListTools() *ListToolsResult {
	list := h.registry.List()
	out := &ListToolsResult{Tools: make([]Tool, 0, len(list))}

	for _, t := range list {
		tool := Tool{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: compactSchema(t.Schema()),
		}
		if annotated, ok := t.(tools.AnnotatedTool); ok {
			tool.Title = annotated.Title()
			tool.Annotations = annotated.Annotations()
		}
		out.Tools = append(out.Tools, tool)
	}
	return out
}

func compactSchema(schema json.RawMessage) json.RawMessage {
	var v any
	if err := json.Unmarshal(schema, &v); err != nil {
		log.Warn("tool schema is not valid JSON", "error", err)
		return json.RawMessage(`{"type":"object"}`)
	}
	data, _ := json.Marshal(v)
	return data
}

func (h *Handler) handleNotification(req *Request) {
	if req.Method == "notifications/initialized" {
		h.mu.Lock()
		h.initialized = true
		h.mu.Unlock()
	}
}

// Initialized reports whether the client has sent notifications/initialized.
func (h *Handler) Initialized() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.initialized
}

func (h *Handler) handleCallTool(ctx context.Context, req *Request) (any, error) {
	var params CallToolParams
	if err := decodeParams(req.Params, &params); err != nil {
		return nil, err
	}
	if params.Name == "" {
		return nil, &protocol.JSONRPCError{
			Code:    protocol.CodeInvalidParams,
			Message: "tool name is required",
		}
	}

	start := time.Now()
	result, err := h.registry.ExecuteWithTimeout(ctx, params.Name, params.Arguments, h.timeout)
	if err != nil {
		log.Debug("tool call failed", "tool", params.Name, "error", err, "duration", time.Since(start))
		return nil, err
	}
	log.Debug("tool call complete", "tool", params.Name, "duration", time.Since(start))

	text, ok := result.(string)
	if !ok {
		data, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}
		text = string(data)
	}

	return &protocol.CallToolResult{
		Content: []protocol.Content{{Type: "text", Text: text}},
	}, nil
}
