package workbook

import (
	"path/filepath"
	"strings"
)

// ComOpener attaches to a workbook already open in a running Excel instance
type ComOpener struct {
	Path  string
	Sheet string
	// Keys presses the refresh button when running its macro fails. Optional.
	Keys KeySender
}

// KeySender drives the keyboard of the desktop session
type KeySender interface {
	PressButton() error
}

func baseName(path string) string {
	return strings.TrimSpace(filepath.Base(path))
}
