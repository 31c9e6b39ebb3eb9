package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/localagent/internal/daemon"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the background daemon",
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if client := daemonClient(ctx); client != nil {
			fmt.Fprintln(cmd.OutOrStdout(), "daemon already running")
			return nil
		}

		bin, err := findDaemonBinary()
		if err != nil {
			return err
		}

		proc := exec.Command(bin)
		proc.Stdout = nil
		proc.Stderr = nil
		proc.Stdin = nil
		if err := proc.Start(); err != nil {
			return fmt.Errorf("start %s: %w", bin, err)
		}
		if err := proc.Process.Release(); err != nil {
			return err
		}

		client := daemon.NewClient(cfg.Daemon.SocketPath)
		deadline := time.Now().Add(10 * time.Second)
		for time.Now().Before(deadline) {
			if client.IsRunning(ctx) {
				fmt.Fprintln(cmd.OutOrStdout(), "daemon started")
				return nil
			}
			time.Sleep(200 * time.Millisecond)
		}
		return fmt.Errorf("daemon did not answer within 10s; check the logs with localagent-logs")
	},
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client := daemonClient(ctx)
		if client == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "daemon not running")
			return nil
		}
		if err := client.Shutdown(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "daemon stopping")
		return nil
	},
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the daemon is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		if client := daemonClient(cmd.Context()); client != nil {
			fmt.Fprintln(cmd.OutOrStdout(), "running")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "not running")
		return nil
	},
}

// findDaemonBinary looks for localagentd next to this executable, then
// on PATH.
func findDaemonBinary() (string, error) {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "localagentd")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	if path, err := exec.LookPath("localagentd"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("localagentd binary not found next to localagent or on PATH")
}

func init() {
	daemonCmd.AddCommand(daemonStartCmd, daemonStopCmd, daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}
