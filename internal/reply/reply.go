// Package reply implements the Reply handler's target-resolution rule
// from spec.md §4.7: route a textual reply to a pane by UUID or by
// title, but only when that pane is in a state that is actually
// awaiting input.
package reply

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ianremillard/ccmux/internal/agent"
	"github.com/ianremillard/ccmux/internal/tree"
)

// ErrNotAwaitingInput is returned when the resolved pane exists but is
// not in an awaiting-input state, mapping to the wire NotAwaitingInput
// error code at the request-router layer.
var ErrNotAwaitingInput = errors.New("pane is not awaiting input")

// Target identifies how a Reply request named its destination pane.
type Target struct {
	PaneID *uuid.UUID
	Name   string
}

// AwaitingInput reports whether p is in a state the Reply handler is
// allowed to write to: an agent state of AwaitingConfirmation, per
// spec.md §4.7. Non-agent panes (state Normal) are never a valid reply
// target; a plain shell has no notion of "awaiting a reply."
func AwaitingInput(p *tree.Pane, agentActivity agent.Activity) bool {
	return p.State.Kind == tree.PaneStateAgent && agentActivity == agent.ActivityAwaitingConfirmation
}

// Resolve finds the pane a Reply{target} names, preferring PaneID when
// present over Name, matching spec.md §4.7's "route... either by pane
// UUID or by pane name."
func Resolve(t *tree.Tree, target Target) (*tree.Session, *tree.Window, *tree.Pane, error) {
	if target.PaneID != nil {
		s, w, p, err := t.FindPane(*target.PaneID)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, w, p, nil
	}

	s, w, p, ok := t.FindPaneByName(target.Name)
	if !ok {
		return nil, nil, nil, tree.ErrPaneNotFound
	}
	return s, w, p, nil
}
