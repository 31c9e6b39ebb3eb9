package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/localagent/internal/ui"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and index status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor())

		info := ui.StatusInfo{}
		if client := daemonClient(ctx); client != nil {
			status, err := client.Status(ctx)
			if err != nil {
				return err
			}
			info = ui.StatusInfo{
				Running:        status.Running,
				PID:            status.PID,
				Uptime:         status.Uptime,
				DocumentCount:  status.DocumentCount,
				ChunkCount:     status.ChunkCount,
				EmbeddedChunks: status.EmbeddedChunks,
				EmbeddingState: status.EmbeddingState,
				EmbeddingModel: status.EmbeddingModel,
				ModelState:     status.ModelState,
				VectorEnabled:  status.VectorEnabled,
				WatchedRoots:   status.WatchedRoots,
			}
		} else {
			// No daemon: report on the on-disk index directly.
			rt, err := newLocalRuntime(ctx, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			if stats, err := rt.Store.GetStats(ctx); err == nil {
				info.DocumentCount = stats.DocumentCount
				info.ChunkCount = stats.ChunkCount
				info.EmbeddedChunks = stats.EmbeddedChunkCount
			}
			info.EmbeddingState = string(rt.Embedder.Status())
			info.ModelState = "unloaded"
			info.VectorEnabled = rt.Store.VectorEnabled()
		}

		if statusJSON {
			return renderer.RenderJSON(info)
		}
		return renderer.Render(info)
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "emit machine-readable JSON")
	rootCmd.AddCommand(statusCmd)
}
