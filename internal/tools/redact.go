package tools

import (
	"regexp"
	"strings"
)

// RedactedPlaceholder replaces a detected secret value.
const RedactedPlaceholder = "[REDACTED]"

// secretKeyNames are env-var-style key names whose value is treated as
// a secret wherever it appears as KEY=value in tool output.
var secretKeyNames = []string{
	"TOKEN", "API_KEY", "APIKEY", "SECRET", "PASSWORD", "PASSWD",
	"ACCESS_KEY", "ACCESS_TOKEN", "PRIVATE_KEY", "CLIENT_SECRET",
	"AUTH_TOKEN", "SESSION_KEY", "ENCRYPTION_KEY", "CREDENTIALS",
	"GITHUB_TOKEN", "GH_TOKEN", "OPENAI_API_KEY", "ANTHROPIC_API_KEY",
	"AWS_SECRET_ACCESS_KEY", "AWS_ACCESS_KEY_ID", "NPM_TOKEN",
	"DATABASE_URL", "DB_PASSWORD",
}

// envPairPattern matches KEY=value pairs where KEY contains one of the
// recognized secret key names as a substring (case-sensitive, matching
// the conventional SCREAMING_SNAKE_CASE of environment variables).
var envPairPattern *regexp.Regexp

func init() {
	// (?:^|[\s'"]) anchors the key at a boundary so we don't match
	// inside an unrelated longer identifier; value runs until
	// whitespace or a quote.
	envPairPattern = regexp.MustCompile(`(?m)([A-Z][A-Z0-9_]*)=([^\s'"]+)`)
}

// knownTokenPrefixes are recognized third-party API-key formats that
// are redacted regardless of surrounding KEY= context.
var knownTokenPrefixes = []*regexp.Regexp{
	regexp.MustCompile(`\bghp_[A-Za-z0-9]{20,}\b`),          // GitHub personal access token
	regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{20,}\b`),  // GitHub fine-grained PAT
	regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}\b`),           // OpenAI/Anthropic-style secret key
	regexp.MustCompile(`\bsk-ant-[A-Za-z0-9\-_]{20,}\b`),    // Anthropic API key
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),              // AWS access key ID
	regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`),  // Slack token
	regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._\-]{10,}\b`),
}

func hasSecretKeyName(key string) bool {
	for _, name := range secretKeyNames {
		if strings.Contains(key, name) {
			return true
		}
	}
	return false
}

// Redact scans tool output for recognized secret shapes and replaces
// them with RedactedPlaceholder. It is applied before any tool result
// is returned to the model or persisted.
func Redact(s string) string {
	out := envPairPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := strings.SplitN(match, "=", 2)
		if len(parts) != 2 {
			return match
		}
		if hasSecretKeyName(parts[0]) {
			return parts[0] + "=" + RedactedPlaceholder
		}
		return match
	})

	for _, p := range knownTokenPrefixes {
		out = p.ReplaceAllString(out, RedactedPlaceholder)
	}

	return out
}

// sensitiveEnvKeys are stripped from a spawned command tool's
// environment before launch.
func SanitizeEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		key, _, ok := strings.Cut(kv, "=")
		if !ok {
			out = append(out, kv)
			continue
		}
		if hasSecretKeyName(key) {
			continue
		}
		out = append(out, kv)
	}
	return out
}
