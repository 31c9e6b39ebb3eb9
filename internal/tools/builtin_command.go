package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	agenterrors "github.com/Aman-CERP/localagent/internal/errors"
)

// CommandTimeout is the wall-clock cap on run_command: timing
// out returns an error result and counts as a completed (failed) tool
// call, it does not hang the run.
const CommandTimeout = 30 * time.Second

const (
	maxStdoutBytes = 10 * 1024
	maxStderrBytes = 5 * 1024
)

const runCommandParamsSchema = `{
	"type": "object",
	"properties": {
		"command": {"type": "string", "description": "shell command line to execute"},
		"working_directory": {"type": "string", "description": "directory to run the command in, defaults to the current directory"}
	},
	"required": ["command"]
}`

// NewRunCommandTool executes a command through the host's default
// shell with a sanitized environment, a 30s timeout, truncated
// stdout/stderr, and secrets redaction.
func NewRunCommandTool() (Tool, Handler) {
	tool := Tool{
		Name:             ToolRunCommand,
		Description:      "Run a shell command and return its stdout/stderr.",
		Parameters:       []byte(runCommandParamsSchema),
		Source:           BuiltinSource,
		RequiresApproval: true,
	}

	handler := func(ctx context.Context, args map[string]any) (string, error) {
		command, _ := stringArg(args, "command")
		if strings.TrimSpace(command) == "" {
			return "", agenterrors.New(agenterrors.ErrCodeInvalidInput, "run_command requires a non-empty command", nil)
		}
		if strings.ContainsRune(command, 0) {
			return "", agenterrors.New(agenterrors.ErrCodeInvalidInput, "run_command rejects NUL bytes in the command", nil)
		}

		workDir, _ := stringArg(args, "working_directory")
		if workDir != "" {
			if info, err := os.Stat(workDir); err != nil || !info.IsDir() {
				return "", agenterrors.New(agenterrors.ErrCodeInvalidPath, fmt.Sprintf("working directory %q does not exist", workDir), err)
			}
		}

		runCtx, cancel := context.WithTimeout(ctx, CommandTimeout)
		defer cancel()

		cmd := shellCommand(runCtx, command)
		if workDir != "" {
			cmd.Dir = workDir
		}
		cmd.Env = SanitizeEnv(os.Environ())

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		runErr := cmd.Run()

		out := TruncateBytes(Redact(stdout.String()), maxStdoutBytes, fmt.Sprintf("[truncated: stdout exceeded %d bytes]", maxStdoutBytes))
		errOut := TruncateBytes(Redact(stderr.String()), maxStderrBytes, fmt.Sprintf("[truncated: stderr exceeded %d bytes]", maxStderrBytes))

		if runCtx.Err() != nil {
			return "", agenterrors.New(agenterrors.ErrCodeInternal, fmt.Sprintf("command timed out after %s", CommandTimeout), runCtx.Err())
		}

		var b strings.Builder
		fmt.Fprintf(&b, "exit_code=%d\n", exitCode(runErr))
		if out != "" {
			fmt.Fprintf(&b, "stdout:\n%s\n", out)
		}
		if errOut != "" {
			fmt.Fprintf(&b, "stderr:\n%s\n", errOut)
		}
		return strings.TrimRight(b.String(), "\n"), nil
	}

	return tool, handler
}

// shellCommand builds the host's default shell invocation for a
// command line.
func shellCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}
	return exec.CommandContext(ctx, "sh", "-c", command)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
