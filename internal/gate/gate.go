// Package gate classifies iteration outcomes by searching captured logs for
// literal gate tokens. Token presence in the log is the sole signal used;
// process exit codes never drive the classification.
package gate

import (
	"os"
	"strings"
)

// Result is the three-valued outcome of classifying a log.
type Result int

const (
	// Unknown means neither token was found, or the log could not be read.
	Unknown Result = iota
	// Pass means the pass token was found.
	Pass
	// Fail means the fail token was found and the pass token was not.
	Fail
)

// String returns a human-readable name for the result.
func (r Result) String() string {
	switch r {
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	default:
		return "unknown"
	}
}

// Classify searches the log at logPath for the given tokens using literal
// substring matching. Pass-token presence short-circuits: a fail token left
// over in forwarded feedback cannot override a pass. Only the log file is
// inspected, never the composed prompt, which may quote a prior token.
// A missing or unreadable log classifies as Unknown.
func Classify(logPath, passToken, failToken string) Result {
	data, err := os.ReadFile(logPath)
	if err != nil {
		return Unknown
	}
	content := string(data)

	if passToken != "" && strings.Contains(content, passToken) {
		return Pass
	}
	if failToken != "" && strings.Contains(content, failToken) {
		return Fail
	}
	return Unknown
}
