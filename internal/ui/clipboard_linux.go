//go:build linux

package ui

import "fmt"

// ClipboardAvailable reports whether CopyToClipboard can work on this platform.
const ClipboardAvailable = false

// CopyToClipboard returns an error indicating clipboard is not available.
func CopyToClipboard(string) error {
	return fmt.Errorf("clipboard not available on this platform (Linux without X11)")
}
