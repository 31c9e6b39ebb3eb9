package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWatchRootPicksUpChanges drives the debounced watcher end-to-end:
// a new file appears in the store, a deleted file disappears.
func TestWatchRootPicksUpChanges(t *testing.T) {
	if testing.Short() {
		t.Skip("watcher timing test")
	}

	st, pipeline, _ := newStack(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	docs := t.TempDir()
	go func() { _ = pipeline.WatchRoot(ctx, docs) }()

	// Give the watcher a moment to arm before the first write.
	time.Sleep(300 * time.Millisecond)

	path := filepath.Join(docs, "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("watched words here"), 0o644))

	require.Eventually(t, func() bool {
		_, found, err := st.GetDocumentByPath(context.Background(), path)
		return err == nil && found
	}, 5*time.Second, 100*time.Millisecond, "created file was not ingested")

	require.NoError(t, os.Remove(path))

	require.Eventually(t, func() bool {
		_, found, err := st.GetDocumentByPath(context.Background(), path)
		return err == nil && !found
	}, 5*time.Second, 100*time.Millisecond, "removed file was not deleted from the store")
}

// TestWatchRootIgnoresHiddenAndUnsupported writes files the pipeline
// must never touch and asserts the store stays empty.
func TestWatchRootIgnoresHiddenAndUnsupported(t *testing.T) {
	if testing.Short() {
		t.Skip("watcher timing test")
	}

	st, pipeline, _ := newStack(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	docs := t.TempDir()
	go func() { _ = pipeline.WatchRoot(ctx, docs) }()
	time.Sleep(300 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(docs, ".hidden.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "image.png"), []byte{0x89, 0x50}, 0o644))

	// Allow well past the debounce window for any misrouted event.
	time.Sleep(1500 * time.Millisecond)

	stats, err := st.GetStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.DocumentCount, "hidden/unsupported files must produce zero store writes")
}
