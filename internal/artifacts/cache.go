// Package artifacts is the content-addressed cache for downloaded model
// weights. Files live under <dir>/<repo-id>/<filename>; a cross-process
// file lock guards downloads so concurrent processes fetch once, and
// writes are atomic (temp file + rename).
package artifacts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// DownloadTimeout is the maximum time to wait for a single artifact
// download.
const DownloadTimeout = 30 * time.Minute

// ProgressFunc reports download progress; total is -1 when unknown.
type ProgressFunc func(downloaded, total int64)

// Cache manages one artifact directory.
type Cache struct {
	dir string
}

// NewCache creates a cache rooted at dir (typically
// <data-dir>/models).
func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// Dir returns the cache root.
func (c *Cache) Dir() string { return c.dir }

// Path returns where the artifact for (repoID, filename) lives,
// whether or not it has been downloaded yet.
func (c *Cache) Path(repoID, filename string) string {
	return filepath.Join(c.dir, sanitize(repoID), filename)
}

// Present reports whether the artifact exists with non-zero size.
func (c *Cache) Present(repoID, filename string) bool {
	info, err := os.Stat(c.Path(repoID, filename))
	return err == nil && info.Size() > 0
}

// Ensure returns the artifact's path, downloading it from url first if
// it is not already cached. Concurrent processes serialize on a lock
// file next to the artifact.
func (c *Cache) Ensure(ctx context.Context, repoID, filename, url string, progress ProgressFunc) (string, error) {
	dest := c.Path(repoID, filename)
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		return dest, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create artifact directory: %w", err)
	}

	lock := flock.New(dest + ".lock")
	if err := lock.Lock(); err != nil {
		return "", fmt.Errorf("acquire download lock: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	// Another process may have finished the download while we waited.
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		return dest, nil
	}

	if err := c.download(ctx, url, dest, progress); err != nil {
		return "", err
	}
	return dest, nil
}

func (c *Cache) download(ctx context.Context, url, dest string, progress ProgressFunc) error {
	tmp := dest + ".tmp"
	defer os.Remove(tmp)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create download request: %w", err)
	}
	req.Header.Set("User-Agent", "localagent/1.0")

	client := &http.Client{Timeout: DownloadTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}

	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	total := resp.ContentLength
	var downloaded int64
	buf := make([]byte, 1<<20)
	for {
		if ctx.Err() != nil {
			out.Close()
			return ctx.Err()
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				return fmt.Errorf("write artifact: %w", werr)
			}
			downloaded += int64(n)
			if progress != nil {
				progress(downloaded, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Close()
			return fmt.Errorf("read download stream: %w", readErr)
		}
	}
	if err := out.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, dest)
}

// sanitize flattens a repo id like "org/name" into a single path
// segment so the cache layout stays one level deep per repo.
func sanitize(repoID string) string {
	return strings.ReplaceAll(repoID, "/", "--")
}
