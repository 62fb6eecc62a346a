package invoker

import "strings"

// ErrorClass describes whether a failed invocation is worth retrying.
type ErrorClass int

const (
	ErrorUnknown ErrorClass = iota
	ErrorTransient
	ErrorPermanent
)

// Stderr patterns that indicate permanent (non-retryable) errors.
var permanentErrorPatterns = []string{
	"max_tokens must be at least",
	"input tokens >",
	"exceeds the model's maximum context length",
	"context_length_exceeded",
	"maximum context length",
	"This model's maximum context length is",
	"max_tokens",
}

// Stderr patterns that indicate transient (retryable) errors.
var transientErrorPatterns = []string{
	"upstream connect error",
	"502 Bad Gateway",
	"503 Service Unavailable",
	"504 Gateway Timeout",
	"Connection refused",
	"Connection reset",
	"ECONNRESET",
	"ETIMEDOUT",
	"rate_limit",
	"Rate limit",
}

// ClassifyStderr inspects captured stderr output and classifies the failure.
// Unknown failures are retried like transient ones.
func ClassifyStderr(stderr string) ErrorClass {
	for _, pat := range permanentErrorPatterns {
		if strings.Contains(stderr, pat) {
			return ErrorPermanent
		}
	}
	for _, pat := range transientErrorPatterns {
		if strings.Contains(stderr, pat) {
			return ErrorTransient
		}
	}
	return ErrorUnknown
}
