package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyBuiltinReadOnlyToolsAreSafe(t *testing.T) {
	for _, name := range []string{ToolSearch, ToolReadFile, ToolListDirectory, ToolIndexStatus} {
		tool := Tool{Name: name, Source: BuiltinSource}
		assert.Equal(t, Safe, Classify(tool, nil), name)
	}
}

func TestClassifyWriteFileEscalatesOnSensitivePath(t *testing.T) {
	tool := Tool{Name: ToolWriteFile, Source: BuiltinSource}

	assert.Equal(t, Moderate, Classify(tool, map[string]any{"path": "/home/user/notes.txt"}))
	assert.Equal(t, Dangerous, Classify(tool, map[string]any{"path": "/etc/passwd"}))
	assert.Equal(t, Dangerous, Classify(tool, map[string]any{"path": "/home/user/.ssh/authorized_keys"}))
}

func TestClassifyRunCommandAlwaysDangerous(t *testing.T) {
	tool := Tool{Name: ToolRunCommand, Source: BuiltinSource}
	assert.Equal(t, Dangerous, Classify(tool, map[string]any{"command": "ls -la"}))
	assert.Equal(t, Dangerous, Classify(tool, map[string]any{"command": "rm -rf /"}))
}

func TestClassifyExternalToolsByVerb(t *testing.T) {
	cases := map[string]Risk{
		"get_file":       Safe,
		"list_issues":    Safe,
		"search_web":     Safe,
		"write_note":     Moderate,
		"create_ticket":  Moderate,
		"delete_branch":  Dangerous,
		"exec_script":    Dangerous,
		"deploy_service": Dangerous,
		"frobnicate":     Moderate, // unknown verb defaults to Moderate
	}
	for name, want := range cases {
		tool := Tool{Name: name, Source: MCPSource("github")}
		assert.Equal(t, want, Classify(tool, nil), name)
	}
}

func TestAutoApproveTable(t *testing.T) {
	assert.True(t, AutoApprove(Safe, false))
	assert.True(t, AutoApprove(Safe, true))
	assert.False(t, AutoApprove(Moderate, false))
	assert.True(t, AutoApprove(Moderate, true))
	assert.False(t, AutoApprove(Dangerous, false))
	assert.False(t, AutoApprove(Dangerous, true), "auto_approve_safe must never upgrade Dangerous")
}
