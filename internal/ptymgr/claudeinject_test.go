package ptymgr_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ianremillard/ccmux/internal/ptymgr"
)

func TestIsClaudeCommand(t *testing.T) {
	assert.True(t, ptymgr.IsClaudeCommand("claude"))
	assert.True(t, ptymgr.IsClaudeCommand("/usr/local/bin/claude"))
	assert.False(t, ptymgr.IsClaudeCommand("bash"))
	assert.False(t, ptymgr.IsClaudeCommand("claude-code"))
}

func TestInjectClaudeSessionIDNoArgs(t *testing.T) {
	result := ptymgr.InjectClaudeSessionID("claude", nil)
	assert.True(t, result.Injected)
	_, err := uuid.Parse(result.SessionID)
	assert.NoError(t, err)
	assert.Equal(t, []string{"--session-id", result.SessionID}, result.Args)
}

func TestInjectClaudeSessionIDAlreadyPresent(t *testing.T) {
	result := ptymgr.InjectClaudeSessionID("claude", []string{"--resume", "abc"})
	assert.False(t, result.Injected)
	assert.Equal(t, []string{"--resume", "abc"}, result.Args)
}

func TestInjectClaudeSessionIDNonClaudeCommand(t *testing.T) {
	result := ptymgr.InjectClaudeSessionID("bash", nil)
	assert.False(t, result.Injected)
}

func TestResumeCommand(t *testing.T) {
	cmd, args := ptymgr.ResumeCommand("abc123")
	assert.Equal(t, "claude", cmd)
	assert.Equal(t, []string{"--resume", "abc123"}, args)
}

func TestExtractSessionIDFromArgs(t *testing.T) {
	id, ok := ptymgr.ExtractSessionIDFromArgs([]string{"--session-id", "abc123"})
	assert.True(t, ok)
	assert.Equal(t, "abc123", id)

	_, ok = ptymgr.ExtractSessionIDFromArgs([]string{"--session-id"})
	assert.False(t, ok)

	_, ok = ptymgr.ExtractSessionIDFromArgs([]string{"--session-id", "--verbose"})
	assert.False(t, ok)

	_, ok = ptymgr.ExtractSessionIDFromArgs([]string{"--help"})
	assert.False(t, ok)
}
