package tools

import (
	"context"
)

// InventoryDefinition describes the coverage map tool.
func InventoryDefinition() Definition {
	return Definition{
		Name:        InventoryName,
		Description: "Get full secret coverage map across all stacks",
		InputSchema: emptySchema(),
	}
}

func inventoryHandler(api HeraldAPI) Handler {
	return func(ctx context.Context, _ map[string]any) ([]ContentPart, error) {
		raw, err := api.Inventory(ctx)
		if err != nil {
			return nil, err
		}
		return Text(prettyJSON(raw)), nil
	}
}
