package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mwiater/herald-mcp/internal/herald"
	"github.com/mwiater/herald-mcp/internal/logging"
)

type rotateArgs struct {
	ItemID string `json:"item_id"`
}

// RotateDefinition describes the item rotation tool.
func RotateDefinition() Definition {
	return Definition{
		Name: RotateName,
		Description: "Trigger cache invalidation + redeployment for stacks using a 1Password item. " +
			"Does NOT change the secret value in 1Password. Update the value there first, then call this.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"item_id": map[string]any{"type": "string", "description": "1Password item id"},
			},
			"required": []string{"item_id"},
		},
	}
}

func rotateHandler(api HeraldAPI) Handler {
	return func(ctx context.Context, args map[string]any) ([]ContentPart, error) {
		var in rotateArgs
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}

		var (
			health *herald.HealthResponse
			result json.RawMessage
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			// The health lookup only shapes the hint text.
			h, err := api.Health(gctx)
			if err != nil {
				logging.LogEvent("%s: health lookup failed: %v", RotateName, err)
				return nil
			}
			health = h
			return nil
		})
		g.Go(func() error {
			raw, err := api.Rotate(gctx, in.ItemID)
			result = raw
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}

		hint := "To update the secret value: use the 1Password web UI or CLI, then run herald_rotate again."
		if p, ok := health.HealthyConnectServer(); ok {
			hint = fmt.Sprintf("To update the secret value: use the 1Password Connect REST API (%s) or the 1Password web UI, then run herald_rotate again.", p.Name)
		}
		lines := []string{
			"Rotation triggered: cache invalidated and affected stacks redeployed.",
			hint,
			"",
			prettyJSON(result),
		}
		return Text(strings.Join(lines, "\n")), nil
	}
}
