// Package prompt assembles the text sent to the external coding agent for
// each role and iteration. Task prompt files are treated as opaque payloads;
// the composer only appends role instruction blocks and bounded log tails.
package prompt

import (
	"fmt"
	"strings"
)

// Tail bounds applied to forwarded log excerpts. Bounded-tail inclusion keeps
// prompts finite regardless of how verbose the agent's output becomes.
const (
	TailMaxLines = 200
	TailMaxBytes = 20000
)

// Composer builds role prompts. The token strings are embedded in the
// instruction blocks so the agent knows how to self-report.
type Composer struct {
	testsPass  string
	testsFail  string
	reviewPass string
	reviewFail string
}

// NewComposer creates a Composer with the given gate tokens.
func NewComposer(testsPass, testsFail, reviewPass, reviewFail string) *Composer {
	return &Composer{
		testsPass:  testsPass,
		testsFail:  testsFail,
		reviewPass: reviewPass,
		reviewFail: reviewFail,
	}
}

// Implementer builds the implementer prompt for the given iteration.
// Iteration 1 is the raw task content, verbatim. Later iterations append the
// implementer instruction block and the tail of the previous iteration's
// reviewer log, when that log exists.
func (c *Composer) Implementer(taskContent string, iteration int, prevReviewLogPath string) string {
	if iteration <= 1 {
		return taskContent
	}

	var sb strings.Builder
	sb.WriteString(taskContent)
	if !strings.HasSuffix(taskContent, "\n") {
		sb.WriteString("\n")
	}

	sb.WriteString("\n---\n\n")
	sb.WriteString("## Reviewer Feedback from Previous Iteration\n\n")
	sb.WriteString("Apply the following feedback and re-run verification.\n\n")
	fmt.Fprintf(&sb, "End your response with %s if all verification commands succeeded, or %s if any failed.\n",
		c.testsPass, c.testsFail)

	if feedback := Tail(prevReviewLogPath, TailMaxLines, TailMaxBytes); feedback != "" {
		sb.WriteString("\n")
		sb.WriteString(feedback)
		sb.WriteString("\n")
	}

	return sb.String()
}

// Reviewer builds the reviewer prompt: raw task content, the reviewer
// instruction block, and the tail of this iteration's implementer log.
func (c *Composer) Reviewer(taskContent string, implLogPath string) string {
	var sb strings.Builder
	sb.WriteString(taskContent)
	if !strings.HasSuffix(taskContent, "\n") {
		sb.WriteString("\n")
	}

	sb.WriteString("\n---\n\n")
	sb.WriteString("## Reviewer Instructions\n\n")
	sb.WriteString("Review the implementation against the prompt requirements.\n\n")
	fmt.Fprintf(&sb, "- If all requirements are met and tests pass, end with: %s\n", c.reviewPass)
	fmt.Fprintf(&sb, "- If issues remain, end with: %s\n", c.reviewFail)
	sb.WriteString("- When failing, provide concrete fixes for the implementer.\n")
	fmt.Fprintf(&sb, "- If the implementer reported %s, you must end with %s.\n",
		c.testsFail, c.reviewFail)

	if implTail := Tail(implLogPath, TailMaxLines, TailMaxBytes); implTail != "" {
		sb.WriteString("\n## Implementer Log (tail)\n\n```\n")
		sb.WriteString(implTail)
		sb.WriteString("\n```\n")
	}

	return sb.String()
}
