package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/localagent/configs"
	"github.com/Aman-CERP/localagent/internal/config"
	"github.com/Aman-CERP/localagent/internal/settings"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the initial configuration and settings files",
	Long: `Init creates the data directory, a commented config.yaml under the
user config directory, and a default settings.json. Existing files are
left alone unless --force is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return err
		}
		fmt.Fprintf(out, "data directory: %s\n", cfg.DataDir)

		confDir, err := os.UserConfigDir()
		if err != nil {
			return err
		}
		confDir = filepath.Join(confDir, "localagent")
		if err := os.MkdirAll(confDir, 0o755); err != nil {
			return err
		}

		confPath := filepath.Join(confDir, config.ConfigFilename)
		if _, err := os.Stat(confPath); os.IsNotExist(err) || initForce {
			if err := os.WriteFile(confPath, []byte(configs.ConfigTemplate), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(out, "wrote %s\n", confPath)
		} else {
			fmt.Fprintf(out, "kept existing %s\n", confPath)
		}

		settingsPath := settings.Path(cfg.DataDir)
		if _, err := os.Stat(settingsPath); os.IsNotExist(err) || initForce {
			if err := settings.Save(cfg.DataDir, settings.Default()); err != nil {
				return err
			}
			fmt.Fprintf(out, "wrote %s\n", settingsPath)
		} else {
			fmt.Fprintf(out, "kept existing %s\n", settingsPath)
		}

		fmt.Fprintln(out, "\nNext: add directories to watched_directories in settings.json,")
		fmt.Fprintln(out, "then run: localagent index <path>")
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing files")
	rootCmd.AddCommand(initCmd)
}
