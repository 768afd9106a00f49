// Command tdsctl is an operator CLI for exercising and inspecting the
// TDS client session engine: opening ad-hoc connections, dumping
// resolved configuration, and serving the diagnostics debug endpoints.
package main

import (
	"os"

	"github.com/gotds/tds/cmd/tdsctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
