// Package agent classifies a pane's PTY output text as belonging to a
// known AI coding assistant (Claude, Gemini, Codex) and tracks that
// assistant's activity state.
//
// A Registry holds one Detector per known agent type and enforces
// exclusivity once any detector reports active: further text is routed
// only to that detector until it reports inactive or Reset is called,
// preventing a conversation that merely mentions another agent's name
// from flipping the classification.
package agent

import "time"

// Activity is the agent's current activity, per spec.md §3.
type Activity int

const (
	ActivityIdle Activity = iota
	ActivityProcessing
	ActivityGenerating
	ActivityToolUse
	ActivityAwaitingConfirmation
	ActivityCustom
)

// State is a point-in-time classification of a pane's agent activity.
type State struct {
	AgentType      string
	Activity       Activity
	CustomActivity string // set when Activity == ActivityCustom
	SessionID      string
	Metadata       map[string]interface{}
}

// Detector is the interface each per-agent classifier implements.
type Detector interface {
	AgentType() string
	DetectPresence(text string) bool
	DetectActivity(text string) (Activity, bool)
	ExtractSessionID(text string) (string, bool)
	ExtractMetadata(text string) map[string]interface{}
	Confidence() int
	IsActive() bool
	State() (State, bool)
	Reset()
	MarkAsActive()
	// Analyze is the composite entry point the output pipeline calls with
	// each chunk of display text. It returns a new State and true only
	// when the detector wants to emit a state-change event: the state
	// actually changed since the last call, and (unless this is the very
	// first activation) at least the debounce interval has elapsed since
	// the last emission.
	Analyze(text string) (State, bool)
}

// DefaultStateBroadcastDebounce suppresses flicker from rapidly
// alternating spinner-frame output; the first transition to active always
// emits immediately regardless of this interval.
const DefaultStateBroadcastDebounce = 100 * time.Millisecond
