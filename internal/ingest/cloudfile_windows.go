//go:build windows

package ingest

import (
	"golang.org/x/sys/windows"
)

// windowsRecallAttrs are the file attributes that mark a file as a cloud
// placeholder: its bytes live remotely and reading them would trigger a
// network fetch rather than a local read.
const windowsRecallAttrs = windows.FILE_ATTRIBUTE_RECALL_ON_DATA_ACCESS | windows.FILE_ATTRIBUTE_OFFLINE

// isCloudPlaceholder reports whether path is a cloud-placeholder file
// (OneDrive/iCloud "files on demand" style) on Windows.
func isCloudPlaceholder(path string) (bool, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return false, err
	}
	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return false, err
	}
	return attrs&windowsRecallAttrs != 0, nil
}
