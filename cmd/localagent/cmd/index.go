package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/localagent/internal/daemon"
	"github.com/Aman-CERP/localagent/internal/ui"
)

var indexCmd = &cobra.Command{
	Use:   "index <path>",
	Short: "Index a file or directory into the corpus",
	Long: `Index walks the given path, extracts text from supported files,
chunks and embeds it, and stores everything in the local index.
Re-indexing an unchanged file is a no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err != nil {
			return err
		}

		ctx := cmd.Context()
		start := time.Now()

		if client := daemonClient(ctx); client != nil {
			result, err := client.Index(ctx, daemon.IndexParams{Path: path})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d of %d files (%d failed) in %s\n",
				result.Indexed, result.Total, result.Failed, time.Since(start).Round(100*time.Millisecond))
			return nil
		}

		rt, err := newLocalRuntime(ctx, true)
		if err != nil {
			return err
		}
		defer rt.Close()

		renderer := ui.NewIndexRenderer(cmd.OutOrStdout(), noColor())

		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			renderer.Update(ui.ProgressEvent{Current: 1, Total: 1, File: path})
			if err := rt.Pipeline.IngestFile(ctx, path); err != nil {
				return err
			}
			renderer.Done(1, 0, time.Since(start))
			return rt.Store.Flush()
		}

		result, err := rt.Pipeline.IngestDirectory(ctx, path)
		if err != nil {
			return err
		}
		renderer.Done(result.Indexed, result.Failed, time.Since(start))
		return rt.Store.Flush()
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
}
