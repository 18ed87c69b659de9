// Package mcp implements the server side of the Model Context Protocol
// envelope: JSON-RPC 2.0 requests in, responses out, with tools/call routed
// through a tools.Registry.
package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/mwiater/herald-mcp/internal/tools"
)

const (
	jsonRPCVersion = "2.0"

	// ProtocolVersion is offered when the client does not name one.
	ProtocolVersion = "2024-11-05"
)

// Methods served.
const (
	MethodInitialize = "initialize"
	MethodPing       = "ping"
	MethodToolsList  = "tools/list"
	MethodToolsCall  = "tools/call"
)

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is an inbound JSON-RPC 2.0 message. ID is kept raw so string and
// numeric ids round-trip unchanged; a missing ID marks a notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether no reply is expected.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response is an outbound JSON-RPC 2.0 message.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("mcp: rpc error %d: %s", e.Code, e.Message)
}

// ServerInfo identifies this server in the initialize result.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// InitializeParams is the subset of the initialize request the server reads.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
	ClientInfo      map[string]any `json:"clientInfo,omitempty"`
}

// InitializeResult answers the initialize request.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
}

// ToolsListResult answers tools/list.
type ToolsListResult struct {
	Tools []tools.Definition `json:"tools"`
}

// ToolsCallParams is the tools/call request body.
type ToolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolsCallResult answers tools/call. Handler and gateway failures are
// reported here with IsError set rather than as JSON-RPC errors.
type ToolsCallResult struct {
	Content []tools.ContentPart `json:"content"`
	IsError bool                `json:"isError,omitempty"`
}

var nullID = json.RawMessage("null")

func newResult(id json.RawMessage, result any) *Response {
	if len(id) == 0 {
		id = nullID
	}
	return &Response{JSONRPC: jsonRPCVersion, ID: id, Result: result}
}

func newError(id json.RawMessage, code int, msg string, data any) *Response {
	if len(id) == 0 {
		id = nullID
	}
	return &Response{JSONRPC: jsonRPCVersion, ID: id, Error: &RPCError{Code: code, Message: msg, Data: data}}
}
