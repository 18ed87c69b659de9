package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mwiater/herald-mcp/internal/appconfig"
	"github.com/mwiater/herald-mcp/internal/herald"
	"github.com/mwiater/herald-mcp/internal/logging"
	"github.com/mwiater/herald-mcp/internal/mcp"
	"github.com/mwiater/herald-mcp/internal/telemetry"
	"github.com/mwiater/herald-mcp/internal/tools"
	"github.com/mwiater/herald-mcp/internal/transport"
)

// newServeCmd creates the "serve" subcommand. It is also what the bare root
// command runs.
func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the Herald tools on the configured transport",
		Long: `Serve the Herald tools over MCP. With --transport stdio (the default) one
session runs over stdin/stdout until the input closes. With --transport sse
clients connect to the SSE path and post calls to the message path; the
server runs until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, a.cfg)
		},
	}
}

func runServe(cmd *cobra.Command, cfg appconfig.Config) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, appVersion)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logging.LogEvent("telemetry shutdown: %v", err)
		}
	}()

	observer, err := telemetry.NewGlobalObserver(cfg.Transport)
	if err != nil {
		return fmt.Errorf("initializing tool observability: %w", err)
	}

	client := herald.New(herald.Config{
		BaseURL: cfg.HeraldURL,
		Token:   cfg.HeraldToken,
		Timeout: cfg.RequestTimeout(),
	})
	registry := tools.NewRegistry()
	registry.SetObserver(observer)
	if err := tools.RegisterHerald(registry, client); err != nil {
		return fmt.Errorf("registering tools: %w", err)
	}
	server := mcp.NewServer(registry, mcp.ServerInfo{Name: "herald", Version: appVersion})

	tr, err := transport.Select(cfg, server, transport.Options{
		Stdin:    cmd.InOrStdin(),
		Stdout:   cmd.OutOrStdout(),
		Observer: observer,
	})
	if err != nil {
		return err
	}

	logging.LogEvent("herald-mcp %s serving %d tools on %s (backend %s)", appVersion, len(registry.List()), tr.Name(), cfg.HeraldURL)
	if err := tr.Serve(ctx); err != nil {
		return err
	}
	logging.LogEvent("herald-mcp stopped")
	return nil
}
