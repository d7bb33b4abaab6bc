package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnifiedDiff_NoChanges(t *testing.T) {
	d := UnifiedDiff("line1\nline2\n", "line1\nline2\n")
	assert.NotContains(t, d, "+ ")
	assert.NotContains(t, d, "- ")
}

func TestUnifiedDiff_DetectsChange(t *testing.T) {
	d := UnifiedDiff("a\nb\nc\n", "a\nx\nc\n")
	assert.Contains(t, d, "- b\n")
	assert.Contains(t, d, "+ x\n")
	assert.Contains(t, d, "  a\n")
	assert.Contains(t, d, "  c\n")
}

func TestUnifiedDiff_TrailingNewlinePreservation(t *testing.T) {
	d := UnifiedDiff("a", "a\n")
	// The added trailing newline must show up as a change, not be silently
	// absorbed.
	assert.Contains(t, d, "- a\n")
	assert.Contains(t, d, "+ a\n")
}

func TestTrimLog_NoTruncationBelowLimit(t *testing.T) {
	logs := []string{"one", "two"}
	out, trimmed := TrimLog(logs, MaxLogBytes)
	assert.False(t, trimmed)
	assert.Equal(t, logs, out)
}

func TestTrimLog_TruncatesAndKeepsEarliest(t *testing.T) {
	logs := []string{"aaaaaaaaaa", "bbbbbbbbbb", "cccccccccc"}
	out, trimmed := TrimLog(logs, 12)
	require := assert.New(t)
	require.True(trimmed)
	require.Contains(out[0], "aaaaaaaaaa")
	require.NotContains(out, "cccccccccc")
}

func TestDetectCommandError(t *testing.T) {
	assert.Equal(t, "% Invalid input", detectCommandError("blah % Invalid input blah"))
	assert.Equal(t, "", detectCommandError("all good"))
}
