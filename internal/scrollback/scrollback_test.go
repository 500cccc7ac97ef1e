package scrollback_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianremillard/ccmux/internal/scrollback"
)

func TestAppendAndTrim(t *testing.T) {
	b := scrollback.New(3)
	b.Append("a")
	b.Append("b")
	b.Append("c")
	b.Append("d")
	assert.Equal(t, []string{"b", "c", "d"}, b.All())
}

func TestLast(t *testing.T) {
	b := scrollback.New(10)
	b.AppendLines([]string{"1", "2", "3", "4"})
	assert.Equal(t, []string{"3", "4"}, b.Last(2))
	assert.Equal(t, []string{"1", "2", "3", "4"}, b.Last(100))
	assert.Nil(t, b.Last(0))
}

func TestEmptySnapshotYieldsEmpty(t *testing.T) {
	b := scrollback.New(10)
	require.Empty(t, b.All())
	require.Equal(t, 0, b.Len())
}

// TestViewportOffsetThenJumpToBottomIsZero is the SetViewportOffset(p,k)
// then JumpToBottom(p) idempotence law from the testable properties.
func TestViewportOffsetThenJumpToBottomIsZero(t *testing.T) {
	b := scrollback.New(10)
	b.SetViewportOffset(42)
	assert.Equal(t, 42, b.ViewportOffset())
	b.JumpToBottom()
	assert.Equal(t, 0, b.ViewportOffset())
}

func TestNegativeOffsetClampsToZero(t *testing.T) {
	b := scrollback.New(10)
	b.SetViewportOffset(-5)
	assert.Equal(t, 0, b.ViewportOffset())
}

func TestDefaultMaxLines(t *testing.T) {
	b := scrollback.New(0)
	for i := 0; i < scrollback.DefaultMaxLines+10; i++ {
		b.Append("x")
	}
	assert.Equal(t, scrollback.DefaultMaxLines, b.Len())
}
