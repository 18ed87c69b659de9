// Package transport binds the MCP server to a byte stream: a single implicit
// session over stdin/stdout, or many concurrent sessions over SSE.
package transport

import "context"

// Transport serves sessions until ctx ends or, for stream transports, the
// input closes.
type Transport interface {
	Name() string
	Serve(ctx context.Context) error
}
