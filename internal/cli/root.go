// internal/cli/root.go
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mwiater/herald-mcp/internal/appconfig"
	"github.com/mwiater/herald-mcp/internal/logging"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo allows the main package to inject build-time variables.
func SetVersionInfo(version, commit, date string) {
	if version != "" {
		appVersion = version
	}
	if commit != "" {
		appCommit = commit
	}
	if date != "" {
		appDate = date
	}
}

// app holds the state shared by every command of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     appconfig.Config
}

// flagKeys are the persistent flags bound one-to-one onto viper keys. The
// Herald token has no flag so it never shows up in a process listing.
var flagKeys = []string{
	"transport", "host", "port", "heraldURL", "ssePath", "messagePath",
	"maxSessions", "maxBody", "timeout", "logFile", "debug", "otlpEndpoint",
}

// NewRootCmd builds the herald-mcp command tree. Running it without a
// subcommand serves on the configured transport.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	d := appconfig.Defaults()

	rootCmd := &cobra.Command{
		Use:           "herald-mcp",
		Short:         "herald-mcp: MCP tool server for the Herald secret service",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", appVersion, appCommit, appDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, a.cfg)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (JSON or YAML)")
	flags.String("transport", d.Transport, "transport binding: stdio or sse")
	flags.String("host", d.Host, "SSE listen host")
	flags.Int("port", d.Port, "SSE listen port")
	flags.String("heraldURL", d.HeraldURL, "base URL of the Herald API")
	flags.String("ssePath", d.SSEPath, "SSE stream path")
	flags.String("messagePath", d.MessagePath, "SSE message POST path")
	flags.Int("maxSessions", d.MaxSessions, "maximum concurrent SSE sessions (0 = unlimited)")
	flags.Int64("maxBody", d.MaxBody, "maximum posted message size in bytes")
	flags.Int("timeout", d.TimeoutSeconds, "Herald request timeout in seconds")
	flags.String("logFile", "", "path to the log file")
	flags.Bool("debug", false, "log full request and response payloads")
	flags.String("otlpEndpoint", "", "OTLP/HTTP endpoint for trace export")

	for _, key := range flagKeys {
		_ = a.v.BindPFlag(key, flags.Lookup(key))
	}

	rootCmd.AddCommand(
		newServeCmd(a),
		newToolsCmd(),
		newConfigCmd(a),
		newCommandsCmd(rootCmd),
	)
	return rootCmd
}

// load reads the optional config file, merges flags, environment and
// defaults, and starts logging.
func (a *app) load(cmd *cobra.Command) error {
	if err := appconfig.Bind(a.v); err != nil {
		return err
	}
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	cfg, err := appconfig.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := logging.Init(cfg.LogFilePath(), cmd.ErrOrStderr()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logging.SetDebug(cfg.Debug)
	return nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	defer logging.Close()

	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		_ = logging.Close()
		os.Exit(1)
	}
}
