package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mwiater/herald-mcp/internal/tools"
)

// newToolsCmd creates the "tools" subcommand, which prints every tool with
// its parameters.
func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools this server exposes",
		Run: func(cmd *cobra.Command, args []string) {
			printTools(cmd.OutOrStdout(), tools.Definitions())
		},
	}
}

func printTools(out io.Writer, defs []tools.Definition) {
	name := color.New(color.FgCyan, color.Bold)
	param := color.New(color.FgYellow)
	faint := color.New(color.Faint)

	for i, def := range defs {
		if i > 0 {
			fmt.Fprintln(out)
		}
		name.Fprintln(out, def.Name)
		fmt.Fprintf(out, "  %s\n", def.Description)

		props, _ := def.InputSchema["properties"].(map[string]any)
		if len(props) == 0 {
			faint.Fprintln(out, "  (no parameters)")
			continue
		}
		required := requiredSet(def.InputSchema)
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			spec, _ := props[k].(map[string]any)
			kind, _ := spec["type"].(string)
			marker := "optional"
			if required[k] {
				marker = "required"
			}
			fmt.Fprint(out, "  - ")
			param.Fprint(out, k)
			fmt.Fprintf(out, " (%s, %s)", kind, marker)
			if enum, ok := spec["enum"].([]any); ok && len(enum) > 0 {
				fmt.Fprintf(out, " one of %v", enum)
			}
			fmt.Fprintln(out)
		}
	}
}

func requiredSet(schema map[string]any) map[string]bool {
	set := map[string]bool{}
	switch req := schema["required"].(type) {
	case []string:
		for _, r := range req {
			set[r] = true
		}
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				set[s] = true
			}
		}
	}
	return set
}
