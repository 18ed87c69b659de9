package tools

import (
	"context"

	"github.com/mwiater/herald-mcp/internal/herald"
)

type syncArgs struct {
	Stack       string `json:"stack"`
	EnvContent  string `json:"env_content"`
	OutPath     string `json:"out_path"`
	BypassCache *bool  `json:"bypass_cache"`
}

// SyncDefinition describes the secret materialization tool.
func SyncDefinition() Definition {
	return Definition{
		Name: SyncName,
		Description: "Resolve op:// secrets for a stack. env_content is the raw env file contents with op:// refs " +
			`(e.g. "KEY=op://Vault/Item/field\nKEY2=op://...").`,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"stack":        map[string]any{"type": "string", "description": "Stack the secrets belong to"},
				"env_content":  map[string]any{"type": "string", "description": "Env file contents containing op:// references"},
				"out_path":     map[string]any{"type": "string", "description": "Where Herald writes the materialized file"},
				"bypass_cache": map[string]any{"type": "boolean", "description": "Skip the secret cache for this sync"},
			},
			"required": []string{"stack", "env_content"},
		},
	}
}

func syncHandler(api HeraldAPI) Handler {
	return func(ctx context.Context, args map[string]any) ([]ContentPart, error) {
		var in syncArgs
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		raw, err := api.Materialize(ctx, herald.MaterializeRequest{
			Stack:       in.Stack,
			EnvContent:  in.EnvContent,
			OutPath:     in.OutPath,
			BypassCache: in.BypassCache,
		})
		if err != nil {
			return nil, err
		}
		return Text(prettyJSON(raw)), nil
	}
}
