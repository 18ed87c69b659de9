// Package tools holds the tool registry and the Herald tool set it serves.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
)

// Definition describes the metadata the MCP server exposes for a tool.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ContentPart represents a piece of data returned from a tool invocation.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Handler executes a tool with arguments that already passed schema
// validation. ctx is cancelled when the calling session goes away.
type Handler func(ctx context.Context, args map[string]any) ([]ContentPart, error)

// ContentTypeText is the only content kind tools emit.
const ContentTypeText = "text"

const (
	// HealthName is the canonical name for the service health tool.
	HealthName = "herald_health"
	// InventoryName is the canonical name for the coverage map tool.
	InventoryName = "herald_inventory"
	// AuditName is the canonical name for the audit log query tool.
	AuditName = "herald_audit"
	// RotateCacheName is the canonical name for the cache purge tool.
	RotateCacheName = "herald_rotate_cache"
	// SyncName is the canonical name for the secret materialization tool.
	SyncName = "herald_sync"
	// RotateName is the canonical name for the item rotation tool.
	RotateName = "herald_rotate"
	// ProvisionSecretName is the canonical name for the provisioning tool.
	ProvisionSecretName = "herald_provision_secret"
)

// Text wraps s as a single text content part.
func Text(s string) []ContentPart {
	return []ContentPart{{Type: ContentTypeText, Text: s}}
}

// prettyJSON re-indents a backend payload without altering its content.
func prettyJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

type sessionKey struct{}

// WithSessionID tags ctx with the id of the session a call arrived on.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionID returns the session id stored by WithSessionID, if any.
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}
