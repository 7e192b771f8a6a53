package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/gsagostini/urban-graphlets/internal/tools"
	"github.com/gsagostini/urban-graphlets/pkg/protocol"
)

const maxLineSize = 64 * 1024 * 1024

type Server struct {
	registry *tools.Registry
	handler  *Handler
}

func NewServer(registry *tools.Registry, timeout time.Duration) *Server {
	return &Server{
		registry: registry,
		handler:  NewHandler(registry, timeout),
	}
}

func (s *Server) HandleRequest(ctx context.Context, req *Request) *Response {
	return s.handler.Handle(ctx, req)
}

// ProcessStream serves newline-delimited JSON-RPC messages until reader is
// exhausted or ctx is done.
func (s *Server) ProcessStream(ctx context.Context, reader io.Reader, writer io.Writer) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	encoder := json.NewEncoder(writer)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			resp := &Response{
				JSONRPC: "2.0",
				Error: &protocol.JSONRPCError{
					Code:    protocol.CodeParseError,
					Message: "Parse error",
				},
			}
			if err := encoder.Encode(resp); err != nil {
				return err
			}
			continue
		}

		resp := s.HandleRequest(ctx, &req)
		if resp == nil {
			continue
		}
		if err := encoder.Encode(resp); err != nil {
			return err
		}
	}

	return scanner.Err()
}

func (s *Server) Registry() *tools.Registry {
	return s.registry
}
