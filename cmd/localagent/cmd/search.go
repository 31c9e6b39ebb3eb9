package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/localagent/internal/daemon"
	"github.com/Aman-CERP/localagent/internal/search"
	"github.com/Aman-CERP/localagent/internal/ui"
)

var (
	searchLimit     int
	searchExtension string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the indexed corpus",
	Long: `Search runs a hybrid query: keyword matching and semantic similarity,
fused into one ranking. Without an embedding backend it degrades to
keyword-only.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		styles := ui.GetStyles(noColor())

		type row struct {
			filename, path, snippet, source string
			score                           float64
		}
		var rows []row

		if client := daemonClient(ctx); client != nil {
			results, err := client.Search(ctx, daemon.SearchParams{
				Query: query, Limit: searchLimit, Extension: searchExtension,
			})
			if err != nil {
				return err
			}
			for _, r := range results {
				rows = append(rows, row{r.Filename, r.Path, r.Snippet, r.Source, r.Score})
			}
		} else {
			rt, err := newLocalRuntime(ctx, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			results, err := rt.Engine.Search(ctx, query, search.SearchOptions{
				Limit: searchLimit, Extension: searchExtension,
			})
			if err != nil {
				return err
			}
			for _, r := range results {
				rows = append(rows, row{r.Filename, r.Path, r.Snippet, string(r.Source), r.Score})
			}
		}

		if len(rows) == 0 {
			fmt.Fprintln(out, "No results found.")
			return nil
		}

		for i, r := range rows {
			fmt.Fprintf(out, "%2d. %s  %s\n", i+1, styles.Label.Render(r.filename), styles.Muted.Render(r.path))
			fmt.Fprintf(out, "    %s  %s\n", styles.Muted.Render(fmt.Sprintf("score=%.4f source=%s", r.score, r.source)), styles.Snippet.Render(r.snippet))
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().StringVar(&searchExtension, "extension", "", "restrict semantic results to this file extension (e.g. .md)")
	rootCmd.AddCommand(searchCmd)
}
