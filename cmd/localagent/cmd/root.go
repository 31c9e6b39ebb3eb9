// Package cmd implements the localagent CLI commands.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/localagent/internal/config"
	"github.com/Aman-CERP/localagent/internal/logging"
	"github.com/Aman-CERP/localagent/internal/profiling"
	"github.com/Aman-CERP/localagent/pkg/version"
)

var (
	flagDebug      bool
	flagNoColor    bool
	flagCPUProfile string

	cfg         config.Config
	stopProfile func()
)

var rootCmd = &cobra.Command{
	Use:   "localagent",
	Short: "Private local-first personal-knowledge agent",
	Long: `localagent indexes your files into a private searchable corpus and
answers questions about them with a locally-running language model.
Nothing leaves this machine.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load("")
		if err != nil {
			return err
		}

		logCfg := logging.DefaultConfig()
		logCfg.FilePath = logging.CLILogPath()
		logCfg.WriteToStderr = false
		if flagDebug {
			logCfg.Level = "debug"
			logCfg.WriteToStderr = true
		} else {
			logCfg.Level = cfg.LogLevel
		}
		logger, _, err := logging.Setup(logCfg)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)

		if flagCPUProfile != "" {
			stop, err := profiling.NewProfiler().StartCPU(flagCPUProfile)
			if err != nil {
				return err
			}
			stopProfile = stop
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if stopProfile != nil {
			stopProfile()
		}
	},
}

// Execute runs the CLI.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging to stderr")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&flagCPUProfile, "cpuprofile", "", "write a CPU profile to this file")
}

func noColor() bool {
	return flagNoColor || os.Getenv("NO_COLOR") != ""
}
