package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTTYFalseForBuffer(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
}

func TestDetectNoColorHonorsEnv(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
}

func TestStatusRendererHumanOutput(t *testing.T) {
	var buf bytes.Buffer
	r := NewStatusRenderer(&buf, true)

	require.NoError(t, r.Render(StatusInfo{
		Running:        true,
		PID:            42,
		Uptime:         "1m0s",
		DocumentCount:  3,
		ChunkCount:     9,
		EmbeddedChunks: 7,
		EmbeddingState: "ready",
		EmbeddingModel: "all-MiniLM-L6-v2",
		ModelState:     "loading",
		VectorEnabled:  true,
	}))

	out := buf.String()
	assert.Contains(t, out, "3 documents, 9 chunks (7 with embeddings)")
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "all-MiniLM-L6-v2")
}

func TestStatusRendererNotRunning(t *testing.T) {
	var buf bytes.Buffer
	r := NewStatusRenderer(&buf, true)
	require.NoError(t, r.Render(StatusInfo{Running: false}))
	assert.Contains(t, buf.String(), "not running")
}

func TestStatusRendererJSON(t *testing.T) {
	var buf bytes.Buffer
	r := NewStatusRenderer(&buf, true)
	require.NoError(t, r.RenderJSON(StatusInfo{Running: true, DocumentCount: 1}))

	var decoded StatusInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.True(t, decoded.Running)
	assert.Equal(t, 1, decoded.DocumentCount)
}

func TestPlainIndexRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := NewIndexRenderer(&buf, true)

	r.Update(ProgressEvent{Current: 1, Total: 2, File: "a.txt"})
	r.Update(ProgressEvent{Current: 2, Total: 2, File: "b.txt"})
	r.Done(2, 0, 1500*time.Millisecond)

	out := buf.String()
	assert.Contains(t, out, "[1/2] a.txt")
	assert.Contains(t, out, "Indexed 2 files (0 failed)")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.0 KiB", FormatBytes(1024))
	assert.Equal(t, "1.5 MiB", FormatBytes(3*1024*1024/2))
}
