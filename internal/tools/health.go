package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mwiater/herald-mcp/internal/herald"
)

// HealthDefinition describes the service health tool.
func HealthDefinition() Definition {
	return Definition{
		Name:        HealthName,
		Description: "Check Herald service health and provider status",
		InputSchema: emptySchema(),
	}
}

func healthHandler(api HeraldAPI) Handler {
	return func(ctx context.Context, _ map[string]any) ([]ContentPart, error) {
		health, err := api.Health(ctx)
		if err != nil {
			return nil, err
		}
		return Text(healthSummary(health) + "\n\n" + prettyJSON(health.Raw)), nil
	}
}

func healthSummary(h *herald.HealthResponse) string {
	lines := []string{
		"Status: " + h.Status,
		"Uptime: " + strconv.FormatFloat(h.UptimeSeconds, 'f', -1, 64) + "s",
		"Provisioner: " + provisionerLabel(h.Provisioner),
		"",
		"Read providers (priority order):",
	}
	for _, p := range h.Providers {
		line := fmt.Sprintf("  %s [%s] - %s", p.Name, providerTypeLabel(p.Type), p.Status)
		if p.Error != "" {
			line += ": " + p.Error
		}
		if p.LatencyMS != nil {
			line += fmt.Sprintf(" (%sms)", strconv.FormatFloat(*p.LatencyMS, 'f', -1, 64))
		}
		if p.RateLimitedSince != "" {
			line += " WARNING: rate-limited since " + p.RateLimitedSince
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func providerTypeLabel(kind string) string {
	switch kind {
	case herald.ProviderConnectServer:
		return "Connect (local, no rate limits)"
	case herald.ProviderServiceAccount:
		return "Service Account (cloud API, rate-limited)"
	case "":
		return "unknown"
	default:
		return kind
	}
}

func provisionerLabel(provisioner string) string {
	switch provisioner {
	case herald.ProvisionerConnect:
		return "Connect (local REST API, no rate limits)"
	case herald.ProvisionerSDK:
		return "SDK service account (cloud API, rate-limited)"
	default:
		return "unavailable"
	}
}
