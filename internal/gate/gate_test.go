package gate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.log")
	err := os.WriteFile(path, []byte(content), 0644)
	require.NoError(t, err)
	return path
}

func TestClassify_PassToken(t *testing.T) {
	path := writeLog(t, "ran all checks\nTESTS_PASS\n")
	assert.Equal(t, Pass, Classify(path, "TESTS_PASS", "TESTS_FAIL"))
}

func TestClassify_FailToken(t *testing.T) {
	path := writeLog(t, "3 tests failed\nTESTS_FAIL\n")
	assert.Equal(t, Fail, Classify(path, "TESTS_PASS", "TESTS_FAIL"))
}

func TestClassify_PassWinsOverFail(t *testing.T) {
	// Forwarded feedback can quote the fail token; the pass token still
	// decides the round.
	path := writeLog(t, "previous run said TESTS_FAIL\nfixed now\nTESTS_PASS\n")
	assert.Equal(t, Pass, Classify(path, "TESTS_PASS", "TESTS_FAIL"))
}

func TestClassify_NeitherToken(t *testing.T) {
	path := writeLog(t, "the agent rambled and never concluded\n")
	assert.Equal(t, Unknown, Classify(path, "TESTS_PASS", "TESTS_FAIL"))
}

func TestClassify_MissingLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.log")
	assert.Equal(t, Unknown, Classify(path, "TESTS_PASS", "TESTS_FAIL"))
}

func TestClassify_EmptyLog(t *testing.T) {
	path := writeLog(t, "")
	assert.Equal(t, Unknown, Classify(path, "TESTS_PASS", "TESTS_FAIL"))
}

func TestClassify_TokenMidLine(t *testing.T) {
	// Literal substring match; the token does not need its own line.
	path := writeLog(t, "conclusion: REVIEW_PASS, nice work\n")
	assert.Equal(t, Pass, Classify(path, "REVIEW_PASS", "REVIEW_FAIL"))
}

func TestClassify_CustomTokens(t *testing.T) {
	path := writeLog(t, "ALL_GREEN\n")
	assert.Equal(t, Pass, Classify(path, "ALL_GREEN", "ALL_RED"))
	assert.Equal(t, Unknown, Classify(path, "TESTS_PASS", "TESTS_FAIL"))
}

func TestResult_String(t *testing.T) {
	assert.Equal(t, "pass", Pass.String())
	assert.Equal(t, "fail", Fail.String())
	assert.Equal(t, "unknown", Unknown.String())
}
