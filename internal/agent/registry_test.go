package agent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianremillard/ccmux/internal/agent"
)

// TestAgentExclusivityScenario is scenario 4 from the testable
// properties.
func TestAgentExclusivityScenario(t *testing.T) {
	r := agent.NewRegistry()

	state, changed := r.Analyze("Welcome to Claude Code v1.0")
	require.True(t, changed)
	assert.Equal(t, "claude", state.AgentType)

	_, changed = r.Analyze("Let me help you understand Gemini CLI.")
	assert.False(t, changed)
	agentType, active := r.ActiveAgentType()
	require.True(t, active)
	assert.Equal(t, "claude", agentType)

	r.Reset()
	state, changed = r.Analyze("Welcome to Gemini CLI")
	require.True(t, changed)
	assert.Equal(t, "gemini", state.AgentType)
}

// TestAgentExclusivityProperty is the BUG-057 property: once analyze
// first yields agent_type = X, no subsequent call may yield a different
// agent_type until Reset is called.
func TestAgentExclusivityProperty(t *testing.T) {
	r := agent.NewRegistry()

	state, changed := r.Analyze("Welcome to Claude Code v1.0")
	require.True(t, changed)
	require.Equal(t, "claude", state.AgentType)

	inputs := []string{
		"Let's talk about Gemini CLI and Codex CLI for a while.",
		"OpenAI Codex is also mentioned here.",
		"Welcome to Gemini CLI",
	}
	for _, in := range inputs {
		s, ok := r.Analyze(in)
		if ok {
			assert.Equal(t, "claude", s.AgentType)
		}
	}
}

func TestDetectorResetAllowsReDetection(t *testing.T) {
	d := agent.NewClaudeDetector()
	state, ok := d.Analyze("Welcome to Claude Code v1.0")
	require.True(t, ok)
	assert.Equal(t, "claude", state.AgentType)
	assert.True(t, d.IsActive())

	d.Reset()
	assert.False(t, d.IsActive())

	state, ok = d.Analyze("Welcome to Claude Code v1.0")
	require.True(t, ok)
	assert.Equal(t, "claude", state.AgentType)
}

func TestDebounceSuppressesRapidStateChanges(t *testing.T) {
	d := agent.NewClaudeDetector()
	_, ok := d.Analyze("Welcome to Claude Code v1.0")
	require.True(t, ok)

	// Back-to-back activity-changing text within the debounce window
	// should not emit, even though the activity differs.
	_, ok = d.Analyze("Thinking… about the next step")
	assert.False(t, ok)
}
