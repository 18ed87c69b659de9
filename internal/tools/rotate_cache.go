package tools

import (
	"context"
)

type rotateCacheArgs struct {
	Stack string `json:"stack"`
}

// RotateCacheDefinition describes the cache purge tool.
func RotateCacheDefinition() Definition {
	return Definition{
		Name:        RotateCacheName,
		Description: "Force fresh secret fetch for a stack (purge cache)",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"stack": map[string]any{"type": "string", "description": "Stack whose cached secrets are dropped"},
			},
			"required": []string{"stack"},
		},
	}
}

func rotateCacheHandler(api HeraldAPI) Handler {
	return func(ctx context.Context, args map[string]any) ([]ContentPart, error) {
		var in rotateCacheArgs
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if _, err := api.PurgeCache(ctx, in.Stack); err != nil {
			return nil, err
		}
		return Text("Cache cleared for stack: " + in.Stack), nil
	}
}
