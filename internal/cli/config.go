package cli

import (
	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"

	"github.com/mwiater/herald-mcp/internal/appconfig"
)

// newConfigCmd creates the "config" subcommand.
func newConfigCmd(a *app) *cobra.Command {
	var dump bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show config settings",
		Long:  `Show the resolved configuration after flags, environment and the optional config file are merged. The Herald token is always redacted.`,
		Run: func(cmd *cobra.Command, args []string) {
			if dump {
				printer := pp.New()
				printer.SetOutput(cmd.OutOrStdout())
				printer.SetColoringEnabled(false)
				printer.Println(a.cfg.Redacted())
				return
			}
			appconfig.ShowConfig(cmd.OutOrStdout(), a.cfg)
		},
	}
	cmd.Flags().BoolVar(&dump, "dump", false, "pretty-print the full config struct")
	return cmd
}
