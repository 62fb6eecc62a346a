package prompt

import (
	"os"
	"strings"
)

// Tail returns the last maxLines lines of the file at path, capped at
// maxBytes. When the selected tail exceeds maxBytes, whole lines are dropped
// from the front until it fits. A maxBytes of 0 disables the byte cap.
// A missing or unreadable file yields an empty string.
func Tail(path string, maxLines, maxBytes int) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}

	if maxBytes > 0 {
		total := 0
		for _, l := range lines {
			total += len(l) + 1
		}
		for len(lines) > 0 && total > maxBytes {
			total -= len(lines[0]) + 1
			lines = lines[1:]
		}
	}

	return strings.Join(lines, "\n")
}
