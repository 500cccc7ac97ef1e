package reply_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianremillard/ccmux/internal/agent"
	"github.com/ianremillard/ccmux/internal/reply"
	"github.com/ianremillard/ccmux/internal/tree"
)

func TestResolveByPaneID(t *testing.T) {
	tr := tree.New()
	s := tr.CreateSession("main", nil)
	w, _ := tr.CreateWindow(s.ID, "win-0")
	p, _ := tr.CreatePane(w.ID, 10)

	_, _, got, err := reply.Resolve(tr, reply.Target{PaneID: &p.ID})
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestResolveByNameFirstInsertionWins(t *testing.T) {
	tr := tree.New()
	s := tr.CreateSession("main", nil)
	w, _ := tr.CreateWindow(s.ID, "win-0")
	p0, _ := tr.CreatePane(w.ID, 10)
	p1, _ := tr.CreatePane(w.ID, 10)
	p0.Title = "agent"
	p1.Title = "agent"

	_, _, got, err := reply.Resolve(tr, reply.Target{Name: "agent"})
	require.NoError(t, err)
	assert.Equal(t, p0.ID, got.ID)
}

func TestResolveUnknownNameErrors(t *testing.T) {
	tr := tree.New()
	_, _, _, err := reply.Resolve(tr, reply.Target{Name: "missing"})
	assert.ErrorIs(t, err, tree.ErrPaneNotFound)
}

func TestAwaitingInputRequiresAgentAwaitingConfirmation(t *testing.T) {
	tr := tree.New()
	s := tr.CreateSession("main", nil)
	w, _ := tr.CreateWindow(s.ID, "win-0")
	p, _ := tr.CreatePane(w.ID, 10)

	assert.False(t, reply.AwaitingInput(p, agent.ActivityIdle))

	p.State = tree.AgentState("claude")
	assert.False(t, reply.AwaitingInput(p, agent.ActivityProcessing))
	assert.True(t, reply.AwaitingInput(p, agent.ActivityAwaitingConfirmation))
}
