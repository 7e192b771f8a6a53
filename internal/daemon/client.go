package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/gsagostini/urban-graphlets/pkg/protocol"
)

const DefaultCallTimeout = 5 * time.Minute

// Client talks to a running daemon over its socket.
type Client struct {
	conn    *jsonrpc2.Conn
	timeout time.Duration
}

type noopHandler struct{}

func (noopHandler) Handle(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request) {}

func Dial(ctx context.Context, socketPath string) (*Client, error) {
	nc, err := dialSocket(ctx, socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon at %s: %w", socketPath, err)
	}
	stream := jsonrpc2.NewBufferedStream(nc, jsonrpc2.VSCodeObjectCodec{})
	return &Client{
		conn:    jsonrpc2.NewConn(context.Background(), stream, noopHandler{}),
		timeout: DefaultCallTimeout,
	}, nil
}

// Call invokes method and decodes the result into result when it is non-nil.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.conn.Call(ctx, method, params, result)
}

// CallTool runs a tool on the daemon and returns the text of its result.
func (c *Client) CallTool(ctx context.Context, name string, args any) (string, error) {
	var res protocol.CallToolResult
	params := map[string]any{"name": name, "arguments": args}
	if err := c.Call(ctx, "tools/call", params, &res); err != nil {
		return "", err
	}
	if len(res.Content) == 0 {
		return "", nil
	}
	return res.Content[0].Text, nil
}

// Forward relays one MCP request and maps the outcome back onto the caller's
// request ID. Notifications return nil.
func (c *Client) Forward(ctx context.Context, req *protocol.JSONRPCRequest) *protocol.JSONRPCResponse {
	var params any
	if len(req.Params) > 0 {
		params = req.Params
	}

	if req.ID == nil {
		if err := c.conn.Notify(ctx, req.Method, params); err != nil {
			log.Warn("notification relay failed", "method", req.Method, "error", err)
		}
		return nil
	}

	resp := &protocol.JSONRPCResponse{JSONRPC: "2.0", ID: req.ID}
	var result json.RawMessage
	if err := c.Call(ctx, req.Method, params, &result); err != nil {
		resp.Error = fromWireError(err)
		return resp
	}
	resp.Result = result
	return resp
}

func fromWireError(err error) *protocol.JSONRPCError {
	var we *jsonrpc2.Error
	if !errors.As(err, &we) {
		return &protocol.JSONRPCError{Code: protocol.CodeInternalError, Message: err.Error()}
	}
	out := &protocol.JSONRPCError{Code: int(we.Code), Message: we.Message}
	if we.Data != nil {
		out.Data = *we.Data
	}
	return out
}

// Proxy relays newline-delimited JSON-RPC from r to the daemon and writes the
// responses to w.
func (c *Client) Proxy(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	encoder := json.NewEncoder(w)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req protocol.JSONRPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			resp := &protocol.JSONRPCResponse{
				JSONRPC: "2.0",
				Error:   &protocol.JSONRPCError{Code: protocol.CodeParseError, Message: "Parse error"},
			}
			if err := encoder.Encode(resp); err != nil {
				return err
			}
			continue
		}

		resp := c.Forward(ctx, &req)
		if resp == nil {
			continue
		}
		if err := encoder.Encode(resp); err != nil {
			return err
		}
		select {
		case <-c.conn.DisconnectNotify():
			return errors.New("daemon closed the connection")
		default:
		}
	}
	return scanner.Err()
}

func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
