package agent

import (
	"strings"
	"time"
)

// textDetector is a small regex-free pattern-matching detector shared by
// the concrete claude/gemini/codex detectors: presence and activity are
// both decided by substring matching over recent display text, which is
// adequate for CLI banners and prompts and avoids a regexp dependency for
// patterns this simple.
type textDetector struct {
	agentType     string
	presenceHints []string
	activityHints []activityHint
	debounce      time.Duration
	confidence    int

	active         bool
	sessionID      string
	lastState      State
	hasLastState   bool
	lastBroadcast  time.Time
	broadcastCount int
}

type activityHint struct {
	substr   string
	activity Activity
}

func newTextDetector(agentType string, presenceHints []string, activityHints []activityHint) *textDetector {
	return &textDetector{
		agentType:     agentType,
		presenceHints: presenceHints,
		activityHints: activityHints,
		debounce:      DefaultStateBroadcastDebounce,
		confidence:    80,
	}
}

func (d *textDetector) AgentType() string { return d.agentType }

func (d *textDetector) DetectPresence(text string) bool {
	for _, hint := range d.presenceHints {
		if strings.Contains(text, hint) {
			return true
		}
	}
	return false
}

func (d *textDetector) DetectActivity(text string) (Activity, bool) {
	for _, h := range d.activityHints {
		if strings.Contains(text, h.substr) {
			return h.activity, true
		}
	}
	if d.active {
		return ActivityIdle, true
	}
	return ActivityIdle, false
}

func (d *textDetector) ExtractSessionID(text string) (string, bool) {
	const marker = "session-id="
	idx := strings.Index(text, marker)
	if idx < 0 {
		return "", false
	}
	rest := text[idx+len(marker):]
	end := strings.IndexAny(rest, " \t\r\n")
	if end < 0 {
		end = len(rest)
	}
	id := rest[:end]
	if id == "" {
		return "", false
	}
	return id, true
}

func (d *textDetector) ExtractMetadata(text string) map[string]interface{} {
	return map[string]interface{}{}
}

func (d *textDetector) Confidence() int { return d.confidence }

func (d *textDetector) IsActive() bool { return d.active }

func (d *textDetector) State() (State, bool) {
	if !d.active {
		return State{}, false
	}
	return d.lastState, d.hasLastState
}

func (d *textDetector) Reset() {
	d.active = false
	d.sessionID = ""
	d.hasLastState = false
	d.lastState = State{}
	d.lastBroadcast = time.Time{}
	d.broadcastCount = 0
}

func (d *textDetector) MarkAsActive() { d.active = true }

// Analyze tracks whether the detector was already active before this
// call, so the "first activation always emits" rule can be distinguished
// from subsequent, debounced emissions.
func (d *textDetector) Analyze(text string) (State, bool) {
	wasActive := d.active
	if !d.active {
		if !d.DetectPresence(text) {
			return State{}, false
		}
		d.active = true
	}

	activity, _ := d.DetectActivity(text)
	if sid, ok := d.ExtractSessionID(text); ok {
		d.sessionID = sid
	}

	next := State{
		AgentType: d.agentType,
		Activity:  activity,
		SessionID: d.sessionID,
		Metadata:  d.ExtractMetadata(text),
	}

	changed := !wasActive || !d.hasLastState || !statesEqual(next, d.lastState)
	d.lastState = next
	d.hasLastState = true

	if !changed {
		return State{}, false
	}

	firstActivation := !wasActive
	if !firstActivation && time.Since(d.lastBroadcast) < d.debounce {
		return State{}, false
	}

	d.lastBroadcast = time.Now()
	d.broadcastCount++
	return next, true
}

// statesEqual compares the identity-bearing fields of two states. State
// is not comparable with == because its Metadata field is a map, so the
// "did state change since last call" check is done field by field,
// ignoring metadata.
func statesEqual(a, b State) bool {
	return a.AgentType == b.AgentType &&
		a.Activity == b.Activity &&
		a.CustomActivity == b.CustomActivity &&
		a.SessionID == b.SessionID
}
