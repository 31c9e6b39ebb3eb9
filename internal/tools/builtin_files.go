package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	agenterrors "github.com/Aman-CERP/localagent/internal/errors"
)

// MaxReadFileBytes caps read_file output.
const MaxReadFileBytes = 100 * 1024

const readFileParamsSchema = `{
	"type": "object",
	"properties": {"path": {"type": "string", "description": "absolute or relative path to a UTF-8 text file"}},
	"required": ["path"]
}`

// NewReadFileTool reads a UTF-8 text file, truncating to ~100 KiB on a
// codepoint boundary.
func NewReadFileTool() (Tool, Handler) {
	tool := Tool{
		Name:        ToolReadFile,
		Description: "Read the contents of a UTF-8 text file.",
		Parameters:  []byte(readFileParamsSchema),
		Source:      BuiltinSource,
	}

	handler := func(ctx context.Context, args map[string]any) (string, error) {
		path, ok := stringArg(args, "path")
		if !ok || strings.TrimSpace(path) == "" {
			return "", agenterrors.New(agenterrors.ErrCodeInvalidInput, "read_file requires a path", nil)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return "", agenterrors.New(agenterrors.ErrCodeFileNotFound, fmt.Sprintf("cannot read %s", path), err)
		}
		if !utf8.Valid(data) {
			return "", agenterrors.New(agenterrors.ErrCodeInvalidInput, fmt.Sprintf("%s is not valid UTF-8 text", path), nil)
		}

		return TruncateBytes(string(data), MaxReadFileBytes, fmt.Sprintf("[truncated: file exceeded %d bytes]", MaxReadFileBytes)), nil
	}

	return tool, handler
}

const listDirectoryParamsSchema = `{
	"type": "object",
	"properties": {"path": {"type": "string", "description": "directory to list"}},
	"required": ["path"]
}`

// NewListDirectoryTool lists non-hidden entries with size, a trailing
// "/" on directories, sorted by name.
func NewListDirectoryTool() (Tool, Handler) {
	tool := Tool{
		Name:        ToolListDirectory,
		Description: "List the non-hidden entries of a directory.",
		Parameters:  []byte(listDirectoryParamsSchema),
		Source:      BuiltinSource,
	}

	handler := func(ctx context.Context, args map[string]any) (string, error) {
		path, ok := stringArg(args, "path")
		if !ok || strings.TrimSpace(path) == "" {
			return "", agenterrors.New(agenterrors.ErrCodeInvalidInput, "list_directory requires a path", nil)
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			return "", agenterrors.New(agenterrors.ErrCodeFileNotFound, fmt.Sprintf("cannot list %s", path), err)
		}

		var visible []os.DirEntry
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".") {
				continue
			}
			visible = append(visible, e)
		}
		sort.Slice(visible, func(i, j int) bool { return visible[i].Name() < visible[j].Name() })

		if len(visible) == 0 {
			return "(empty directory)", nil
		}

		var b strings.Builder
		for _, e := range visible {
			name := e.Name()
			if e.IsDir() {
				fmt.Fprintf(&b, "%s/\n", name)
				continue
			}
			info, err := e.Info()
			size := int64(0)
			if err == nil {
				size = info.Size()
			}
			fmt.Fprintf(&b, "%s %d\n", name, size)
		}
		return strings.TrimRight(b.String(), "\n"), nil
	}

	return tool, handler
}

const writeFileParamsSchema = `{
	"type": "object",
	"properties": {
		"path": {"type": "string", "description": "file to create or overwrite"},
		"content": {"type": "string", "description": "UTF-8 text to write"}
	},
	"required": ["path", "content"]
}`

// NewWriteFileTool creates parent directories and writes UTF-8 content.
// Risk classification (Moderate, escalated to Dangerous on sensitive
// paths) happens in the ReAct loop before this handler is invoked.
func NewWriteFileTool() (Tool, Handler) {
	tool := Tool{
		Name:             ToolWriteFile,
		Description:      "Create or overwrite a UTF-8 text file, creating parent directories as needed.",
		Parameters:       []byte(writeFileParamsSchema),
		Source:           BuiltinSource,
		RequiresApproval: true,
	}

	handler := func(ctx context.Context, args map[string]any) (string, error) {
		path, ok := stringArg(args, "path")
		if !ok || strings.TrimSpace(path) == "" {
			return "", agenterrors.New(agenterrors.ErrCodeInvalidInput, "write_file requires a path", nil)
		}
		content, _ := stringArg(args, "content")

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", agenterrors.New(agenterrors.ErrCodeFilePermission, fmt.Sprintf("cannot create parent directories for %s", path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return "", agenterrors.New(agenterrors.ErrCodeFilePermission, fmt.Sprintf("cannot write %s", path), err)
		}
		return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
	}

	return tool, handler
}
