package tools

import (
	"context"

	"github.com/mwiater/herald-mcp/internal/herald"
)

type auditArgs struct {
	Stack  string  `json:"stack"`
	Secret string  `json:"secret"`
	Hours  float64 `json:"hours"`
}

// AuditDefinition describes the audit log query tool.
func AuditDefinition() Definition {
	return Definition{
		Name:        AuditName,
		Description: "Query audit log for secret access history",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"stack":  map[string]any{"type": "string", "description": "Only entries for this stack"},
				"secret": map[string]any{"type": "string", "description": "Only entries for this secret"},
				"hours":  map[string]any{"type": "number", "description": "Look back this many hours"},
			},
		},
	}
}

func auditHandler(api HeraldAPI) Handler {
	return func(ctx context.Context, args map[string]any) ([]ContentPart, error) {
		var in auditArgs
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		raw, err := api.Audit(ctx, herald.AuditFilter{Stack: in.Stack, Secret: in.Secret, Hours: in.Hours})
		if err != nil {
			return nil, err
		}
		return Text(prettyJSON(raw)), nil
	}
}
