// cmd/herald-mcp/main.go
package main

import (
	"github.com/mwiater/herald-mcp/internal/cli"
)

// Set via -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	setVersionInfo = cli.SetVersionInfo
	executeCmd     = cli.Execute
)

// main starts the herald-mcp CLI by delegating to the cobra root command.
func main() {
	setVersionInfo(version, commit, date)
	executeCmd()
}
