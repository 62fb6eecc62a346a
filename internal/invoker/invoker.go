// Package invoker runs the external coding agent as a subprocess with a
// bounded retry budget, capturing combined output to a per-invocation log
// file. The log file is the sole durable record of a call.
package invoker

import (
	"context"
	"errors"
	"fmt"
)

// Role identifies which side of the implement/review cycle an invocation
// serves. Both roles share the same invocation primitive; only the prompt
// shaping differs.
type Role int

const (
	RoleImplementer Role = iota
	RoleReviewer
)

// String returns the role name used in logs and session titles.
func (r Role) String() string {
	if r == RoleReviewer {
		return "reviewer"
	}
	return "implementer"
}

// Request describes a single agent invocation.
type Request struct {
	Role       Role
	Model      string
	PromptPath string
	LogPath    string

	// SessionID namespaces the agent session for backends that track one.
	SessionID string
}

// Invoker executes agent invocations.
type Invoker interface {
	// Invoke runs the agent for the given request. The log at
	// req.LogPath is truncated on the first attempt and appended to on
	// retries; it is written even when the invocation fails.
	Invoke(ctx context.Context, req Request) error
}

// ErrRetriesExhausted indicates every attempt exited non-zero.
var ErrRetriesExhausted = errors.New("retries exhausted")

// InvocationError reports a failed invocation with retry context.
type InvocationError struct {
	Role     Role
	Model    string
	Attempts int
	// Permanent marks failures that retrying cannot fix, such as a prompt
	// exceeding the model context.
	Permanent bool
	Err       error
}

// Error returns a formatted error message.
func (e *InvocationError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("%s invocation failed (%s, model=%s, attempts=%d): %v",
		e.Role, kind, e.Model, e.Attempts, e.Err)
}

// Unwrap returns the underlying error.
func (e *InvocationError) Unwrap() error {
	return e.Err
}
