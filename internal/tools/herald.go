package tools

import (
	"context"
	"encoding/json"

	"github.com/mwiater/herald-mcp/internal/herald"
)

// HeraldAPI is the subset of the Herald client the tools depend on.
type HeraldAPI interface {
	Health(ctx context.Context) (*herald.HealthResponse, error)
	Inventory(ctx context.Context) (json.RawMessage, error)
	Audit(ctx context.Context, filter herald.AuditFilter) (json.RawMessage, error)
	PurgeCache(ctx context.Context, stack string) (json.RawMessage, error)
	Materialize(ctx context.Context, req herald.MaterializeRequest) (json.RawMessage, error)
	Rotate(ctx context.Context, itemID string) (json.RawMessage, error)
	Provision(ctx context.Context, req herald.ProvisionRequest) (*herald.ProvisionResponse, error)
}

var _ HeraldAPI = (*herald.Client)(nil)

type heraldTool struct {
	def     Definition
	handler func(api HeraldAPI) Handler
}

func heraldTools() []heraldTool {
	return []heraldTool{
		{HealthDefinition(), healthHandler},
		{InventoryDefinition(), inventoryHandler},
		{AuditDefinition(), auditHandler},
		{RotateCacheDefinition(), rotateCacheHandler},
		{SyncDefinition(), syncHandler},
		{RotateDefinition(), rotateHandler},
		{ProvisionSecretDefinition(), provisionSecretHandler},
	}
}

// Definitions returns the full Herald tool surface.
func Definitions() []Definition {
	all := heraldTools()
	defs := make([]Definition, 0, len(all))
	for _, t := range all {
		defs = append(defs, t.def)
	}
	return defs
}

// RegisterHerald binds every Herald tool to api on r.
func RegisterHerald(r *Registry, api HeraldAPI) error {
	for _, t := range heraldTools() {
		if err := r.Register(t.def, t.handler(api)); err != nil {
			return err
		}
	}
	return nil
}

func emptySchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}
