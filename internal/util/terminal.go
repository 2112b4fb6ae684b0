package util

import (
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

// IsTerminal checks if the given file descriptor is a terminal
func IsTerminal(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

// ShowProgress reports whether progress bars should be drawn on stderr
func ShowProgress() bool {
	return IsTerminal(os.Stderr.Fd()) && !IsQuiet()
}

// FormatCount renders a count with thousands separators
func FormatCount(n int) string {
	return humanize.Comma(int64(n))
}
