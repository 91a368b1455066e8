//go:build !linux

package ui

import (
	"sync"

	"golang.design/x/clipboard"
)

// ClipboardAvailable reports whether CopyToClipboard can work on this platform.
const ClipboardAvailable = true

var (
	clipboardOnce sync.Once
	clipboardErr  error
)

// CopyToClipboard writes text to the system clipboard.
func CopyToClipboard(text string) error {
	clipboardOnce.Do(func() {
		clipboardErr = clipboard.Init()
	})
	if clipboardErr != nil {
		return clipboardErr
	}
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}
