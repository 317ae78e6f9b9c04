package utils

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

const ellipsis = "..."

// Truncate cuts s to maxLen terminal cells and appends "...". Wide runes
// count as two cells and escape sequences as none. Newlines are folded to
// spaces so a message fits on one line.
func Truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if ansi.StringWidth(s) <= maxLen {
		return s
	}
	return ansi.Truncate(s, maxLen+len(ellipsis), ellipsis)
}

// FormatBytes renders n with a binary unit, e.g. "1.5 KiB".
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
