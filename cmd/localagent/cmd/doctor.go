package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/localagent/internal/lifecycle"
	"github.com/Aman-CERP/localagent/internal/preflight"
)

var doctorVerbose bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that this machine can run localagent",
	RunE: func(cmd *cobra.Command, args []string) error {
		checker := preflight.New(
			preflight.WithVerbose(doctorVerbose),
			preflight.WithOutput(cmd.OutOrStdout()),
		)

		results := checker.RunAll(cmd.Context(), cfg.DataDir)
		checker.PrintResults(results)

		if checker.HasCriticalFailures(results) {
			return fmt.Errorf("critical checks failed")
		}

		// Offer install guidance when no inference backend answered and
		// someone is actually at the terminal.
		for _, r := range results {
			if r.Name == "inference backend" && r.Status == preflight.StatusWarn && lifecycle.IsTTY() {
				installed, _, _ := lifecycle.NewOllamaManager().IsInstalled()
				if !installed {
					choice, err := lifecycle.PromptNoEmbedder(cmd.OutOrStdout(), os.Stdin)
					if err == nil && choice == lifecycle.ChoiceShowInstall {
						lifecycle.ShowInstallInstructions(cmd.OutOrStdout())
					}
				}
			}
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVarP(&doctorVerbose, "verbose", "v", false, "show check details")
	rootCmd.AddCommand(doctorCmd)
}
