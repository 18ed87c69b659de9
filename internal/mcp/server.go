package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mwiater/herald-mcp/internal/logging"
	"github.com/mwiater/herald-mcp/internal/tools"
)

// Server turns JSON-RPC messages into registry dispatches. It holds no
// per-session state, so one Server is shared by every session.
type Server struct {
	registry *tools.Registry
	info     ServerInfo
}

// NewServer creates a Server backed by registry.
func NewServer(registry *tools.Registry, info ServerInfo) *Server {
	if info.Name == "" {
		info.Name = "herald"
	}
	return &Server{registry: registry, info: info}
}

// Handle processes one raw message and returns the encoded reply, or nil
// when the message was a notification.
func (s *Server) Handle(ctx context.Context, raw []byte) []byte {
	resp := s.HandleMessage(ctx, raw)
	if resp == nil {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		data, _ = json.Marshal(newError(resp.ID, CodeInternalError, err.Error(), nil))
	}
	return data
}

// HandleMessage is Handle without the final encoding step.
func (s *Server) HandleMessage(ctx context.Context, raw []byte) *Response {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return newError(nil, CodeInvalidRequest, "Invalid Request", nil)
	}
	if raw[0] != '{' {
		if !json.Valid(raw) {
			return newError(nil, CodeParseError, "Parse error", nil)
		}
		return newError(nil, CodeInvalidRequest, "Invalid Request", nil)
	}

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return newError(nil, CodeParseError, "Parse error", nil)
	}
	if req.JSONRPC != jsonRPCVersion || req.Method == "" {
		return newError(req.ID, CodeInvalidRequest, "Invalid Request", nil)
	}
	if req.IsNotification() {
		logging.LogRequest("in", tools.SessionID(ctx), "", req.Method)
		return nil
	}
	return s.handleRequest(ctx, &req)
}

func (s *Server) handleRequest(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case MethodInitialize:
		var p InitializeParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &p); err != nil {
				return newError(req.ID, CodeInvalidParams, "Invalid params", err.Error())
			}
		}
		version := p.ProtocolVersion
		if version == "" {
			version = ProtocolVersion
		}
		return newResult(req.ID, InitializeResult{
			ProtocolVersion: version,
			Capabilities:    map[string]any{"tools": map[string]any{"listChanged": false}},
			ServerInfo:      s.info,
		})

	case MethodPing:
		return newResult(req.ID, map[string]any{})

	case MethodToolsList:
		return newResult(req.ID, ToolsListResult{Tools: s.registry.List()})

	case MethodToolsCall:
		var p ToolsCallParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &p); err != nil {
				return newError(req.ID, CodeInvalidParams, "Invalid params", err.Error())
			}
		}
		return s.callTool(ctx, req.ID, p)
	}

	return newError(req.ID, CodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
}

func (s *Server) callTool(ctx context.Context, id json.RawMessage, p ToolsCallParams) *Response {
	session := tools.SessionID(ctx)
	logging.LogRequest("in", session, p.Name, p.Arguments)

	content, err := s.registry.Dispatch(ctx, p.Name, p.Arguments)
	if err != nil {
		logging.LogEvent("tool %s on session %s: %v", p.Name, sessionLabel(session), err)

		var invalid *tools.InvalidArgumentsError
		switch {
		case errors.Is(err, tools.ErrUnknownTool):
			return newError(id, CodeInvalidParams, err.Error(), nil)
		case errors.As(err, &invalid):
			return newError(id, CodeInvalidParams, err.Error(), map[string]any{"violations": invalid.Violations})
		}
		return newResult(id, ToolsCallResult{Content: tools.Text(err.Error()), IsError: true})
	}

	logging.LogRequest("out", session, p.Name, content)
	return newResult(id, ToolsCallResult{Content: content})
}

func sessionLabel(id string) string {
	if id == "" {
		return "unknown"
	}
	return id
}
