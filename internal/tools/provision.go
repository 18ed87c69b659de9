package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mwiater/herald-mcp/internal/herald"
	"github.com/mwiater/herald-mcp/internal/logging"
)

type provisionFieldArgs struct {
	Value     string `json:"value"`
	Concealed *bool  `json:"concealed"`
}

type provisionArgs struct {
	Vault    string                        `json:"vault"`
	Item     string                        `json:"item"`
	Category string                        `json:"category"`
	Fields   map[string]provisionFieldArgs `json:"fields"`
}

// ProvisionSecretDefinition describes the vault item provisioning tool.
func ProvisionSecretDefinition() Definition {
	categories := make([]any, 0, len(herald.Categories))
	for _, c := range herald.Categories {
		categories = append(categories, c)
	}
	return Definition{
		Name: ProvisionSecretName,
		Description: "Create or upsert a secret item in a 1Password vault. Fields with empty values are auto-generated. " +
			"Returns op:// refs for each field. Note: if the item already exists, only MISSING fields are added; " +
			"existing field values are never overwritten.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"vault": map[string]any{"type": "string", "description": `Vault name, e.g. "HomeLab"`},
				"item":  map[string]any{"type": "string", "description": `Item title, e.g. "my-app-prod"`},
				"category": map[string]any{
					"type":        "string",
					"enum":        categories,
					"description": "Item category (default: login)",
				},
				"fields": map[string]any{
					"type":        "object",
					"description": "Map of field names to their spec",
					"additionalProperties": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"value": map[string]any{
								"type":        "string",
								"description": "Field value; omit or leave empty to auto-generate",
							},
							"concealed": map[string]any{
								"type":        "boolean",
								"description": "Store as concealed/password field (auto-detected from field name if omitted)",
							},
						},
					},
				},
			},
			"required": []string{"vault", "item", "fields"},
		},
	}
}

func provisionRequest(in provisionArgs) herald.ProvisionRequest {
	category := in.Category
	if category == "" {
		category = herald.CategoryLogin
	}
	fields := make(map[string]herald.FieldSpec, len(in.Fields))
	for name, f := range in.Fields {
		fields[name] = herald.FieldSpec{
			Value:     f.Value,
			Concealed: f.Concealed,
			Generate:  f.Value == "",
		}
	}
	return herald.ProvisionRequest{Vault: in.Vault, Item: in.Item, Category: category, Fields: fields}
}

func provisionSecretHandler(api HeraldAPI) Handler {
	return func(ctx context.Context, args map[string]any) ([]ContentPart, error) {
		var in provisionArgs
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		req := provisionRequest(in)

		var (
			provisioner = "unknown"
			resp        *herald.ProvisionResponse
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			h, err := api.Health(gctx)
			if err != nil {
				logging.LogEvent("%s: health lookup failed: %v", ProvisionSecretName, err)
				return nil
			}
			if h.Provisioner != "" {
				provisioner = h.Provisioner
			}
			return nil
		})
		g.Go(func() error {
			r, err := api.Provision(gctx, req)
			resp = r
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}

		lines := []string{
			fmt.Sprintf("Created/updated item %q in vault %q", req.Item, req.Vault),
			"Item ID: " + resp.ItemID,
			"",
			"op:// references (use these in extra.env):",
		}
		for _, field := range refFields(req, resp) {
			lines = append(lines, fmt.Sprintf("  %s=%s", field, resp.Ref(req.Vault, req.Item, field)))
		}
		lines = append(lines, "", provisionerNote(provisioner))
		return Text(strings.Join(lines, "\n")), nil
	}
}

// refFields lists every requested or reported field once, sorted.
func refFields(req herald.ProvisionRequest, resp *herald.ProvisionResponse) []string {
	seen := make(map[string]struct{}, len(req.Fields)+len(resp.Refs))
	for name := range req.Fields {
		seen[name] = struct{}{}
	}
	for name := range resp.Refs {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func provisionerNote(provisioner string) string {
	switch provisioner {
	case herald.ProvisionerConnect:
		return "Provisioned via Connect server (local REST API, no rate limits).\n" +
			"Upsert limitation: if the item already existed, only new fields were added. Existing field values were NOT updated. " +
			"To update an existing field value, delete the item in 1Password and re-provision."
	case herald.ProvisionerSDK:
		return "Provisioned via SDK service account (cloud API). Upsert limitation applies equally: existing field values are never overwritten."
	default:
		return "Provisioner: " + provisioner
	}
}
