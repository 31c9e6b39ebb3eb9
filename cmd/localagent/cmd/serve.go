package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/localagent/internal/mcp"
	"github.com/Aman-CERP/localagent/internal/search"
	"github.com/Aman-CERP/localagent/internal/tools"
)

var serveMCPCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Serve the agent's tools over MCP on stdio",
	Long: `Serve-mcp exposes search, read_file, list_directory, index_status,
write_file and run_command as a Model Context Protocol server over this
process's stdin/stdout, for editors and other MCP clients. The same
safety classification the agent loop applies governs remote callers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		rt, err := newLocalRuntime(ctx, false)
		if err != nil {
			return err
		}
		defer rt.Close()

		var engine search.SearchEngine = rt.Engine
		registry := tools.NewRegistry()
		if err := tools.RegisterBuiltins(registry, rt.Store, engine); err != nil {
			return err
		}

		server := mcp.NewServer(registry, rt.Settings.Agent.AutoApproveSafe)
		return server.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveMCPCmd)
}
