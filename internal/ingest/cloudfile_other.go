//go:build !windows

package ingest

// isCloudPlaceholder reports whether path is a cloud-placeholder file.
// Only Windows exposes a recall-on-data-access attribute through a
// stable API, so this always returns false elsewhere. macOS's iCloud
// "ubiquity" xattrs would be the natural follow-up if a target host
// needs it.
func isCloudPlaceholder(path string) (bool, error) {
	return false, nil
}
