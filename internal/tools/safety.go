package tools

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Risk is the three-level safety classification every tool invocation
// receives before execution.
type Risk string

const (
	Safe      Risk = "safe"
	Moderate  Risk = "moderate"
	Dangerous Risk = "dangerous"
)

// Built-in tool names, used by Classify to apply the fixed risk table
// rather than the verb-heuristic used for external (MCP) tools.
const (
	ToolSearch        = "search"
	ToolReadFile      = "read_file"
	ToolListDirectory = "list_directory"
	ToolIndexStatus   = "index_status"
	ToolWriteFile     = "write_file"
	ToolRunCommand    = "run_command"
)

// sensitivePathPatterns matches system directories, dotfiles under the
// home directory, and well-known credential stores. A write_file call
// targeting one of these is escalated from Moderate to Dangerous.
var sensitivePathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^/etc(/|$)`),
	regexp.MustCompile(`^/boot(/|$)`),
	regexp.MustCompile(`^/sys(/|$)`),
	regexp.MustCompile(`^/private/etc(/|$)`),
	regexp.MustCompile(`(^|/)\.ssh(/|$)`),
	regexp.MustCompile(`(^|/)\.aws(/|$)`),
	regexp.MustCompile(`(^|/)\.gnupg(/|$)`),
	regexp.MustCompile(`(^|/)\.kube(/|$)`),
	regexp.MustCompile(`(^|/)\.netrc$`),
	regexp.MustCompile(`(^|/)\.bash_history$`),
	regexp.MustCompile(`(^|/)\.zsh_history$`),
	regexp.MustCompile(`(^|/)id_rsa$`),
	regexp.MustCompile(`(^|/)\.env(\.\w+)?$`),
}

// destructiveCommandPatterns matches shell-command invocations that
// escalate the already-Dangerous shell tool to approval-required
//: recursive delete, disk format, raw device writes,
// privilege elevation combined with destructive verbs, piped
// installers.
var destructiveCommandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+(-\w*r\w*f\w*|-\w*f\w*r\w*)\b`),
	regexp.MustCompile(`\brm\s+-r\s+-f\b`),
	regexp.MustCompile(`\bmkfs(\.\w+)?\b`),
	regexp.MustCompile(`\bdd\s+.*\bof=/dev/`),
	regexp.MustCompile(`\bshred\b`),
	regexp.MustCompile(`\bsudo\b.*\b(rm|dd|mkfs|shutdown|reboot)\b`),
	regexp.MustCompile(`\bchmod\s+-R\s+777\b`),
	regexp.MustCompile(`curl[^|]*\|\s*(sudo\s+)?(sh|bash)\b`),
	regexp.MustCompile(`wget[^|]*\|\s*(sudo\s+)?(sh|bash)\b`),
	regexp.MustCompile(`>\s*/dev/sd[a-z]\b`),
}

// External-tool verb heuristics.
var (
	safeVerbs = []string{"read", "get", "list", "search", "find", "query", "show"}
	moderateVerbs = []string{"write", "create", "update", "edit", "set", "add", "insert", "modify", "save"}
	dangerousVerbs = []string{"delete", "remove", "drop", "truncate", "destroy", "execute", "run", "exec", "deploy", "push", "send", "post"}
)

// Classify assigns a Risk to a tool invocation. For built-in tools the
// args are inspected for path/command escalation; for external (MCP)
// tools the name is matched against verb heuristics.
func Classify(tool Tool, args map[string]any) Risk {
	if tool.Source == BuiltinSource {
		return classifyBuiltin(tool.Name, args)
	}
	return classifyExternal(tool.Name)
}

func classifyBuiltin(name string, args map[string]any) Risk {
	switch name {
	case ToolSearch, ToolReadFile, ToolListDirectory, ToolIndexStatus:
		return Safe
	case ToolWriteFile:
		if path, ok := stringArg(args, "path"); ok && isSensitivePath(path) {
			return Dangerous
		}
		return Moderate
	case ToolRunCommand:
		if cmd, ok := stringArg(args, "command"); ok && isDestructiveCommand(cmd) {
			return Dangerous
		}
		return Dangerous
	default:
		// Unknown built-in: treat conservatively.
		return Moderate
	}
}

func classifyExternal(name string) Risk {
	lower := strings.ToLower(name)
	// Strip an "mcp-server::" style qualifier so the verb heuristic
	// looks at the bare tool name.
	if idx := strings.LastIndex(lower, "::"); idx >= 0 {
		lower = lower[idx+2:]
	}

	for _, v := range dangerousVerbs {
		if containsVerb(lower, v) {
			return Dangerous
		}
	}
	for _, v := range safeVerbs {
		if containsVerb(lower, v) {
			return Safe
		}
	}
	for _, v := range moderateVerbs {
		if containsVerb(lower, v) {
			return Moderate
		}
	}
	return Moderate
}

// containsVerb matches v as a whole "word" within name, where name is
// typically snake_case, kebab-case, or camelCase (e.g. "list_files",
// "getFile", "find-in-project" all match their respective verb).
func containsVerb(name, verb string) bool {
	return strings.HasPrefix(name, verb) || strings.Contains(name, "_"+verb) ||
		strings.Contains(name, "-"+verb) || strings.Contains(name, verb+"_") ||
		strings.Contains(name, verb+"-") || name == verb
}

func isSensitivePath(path string) bool {
	clean := filepath.ToSlash(path)
	for _, p := range sensitivePathPatterns {
		if p.MatchString(clean) {
			return true
		}
	}
	return false
}

func isDestructiveCommand(cmd string) bool {
	for _, p := range destructiveCommandPatterns {
		if p.MatchString(cmd) {
			return true
		}
	}
	return false
}

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// AutoApprove implements the auto-approval table: Safe is
// always auto-approved, Moderate only when autoApproveSafe is set, and
// Dangerous is never auto-approved regardless of settings.
func AutoApprove(risk Risk, autoApproveSafe bool) bool {
	switch risk {
	case Safe:
		return true
	case Moderate:
		return autoApproveSafe
	default:
		return false
	}
}
