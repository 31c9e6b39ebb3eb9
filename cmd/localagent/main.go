// Command localagent is the CLI for the local-first personal-knowledge
// agent: it indexes files, searches them, and talks to the agent, all
// through the daemon when one is running and inline otherwise.
package main

import (
	"os"

	"github.com/Aman-CERP/localagent/cmd/localagent/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
