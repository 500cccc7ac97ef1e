package agent

// Registry holds the known per-agent detectors and enforces the
// exclusivity-once-active policy: once any detector reports active, text
// is routed only to it until it reports inactive or Reset is called.
type Registry struct {
	detectors []Detector
	activeIdx int
}

// NewRegistry returns a registry pre-populated with the built-in
// claude/gemini/codex detectors, in that priority order when none is yet
// active.
func NewRegistry() *Registry {
	return &Registry{
		detectors: []Detector{
			NewClaudeDetector(),
			NewGeminiDetector(),
			NewCodexDetector(),
		},
		activeIdx: -1,
	}
}

// NewRegistryWithDetectors builds a registry from a caller-supplied
// detector list, for tests that want a reduced or custom set.
func NewRegistryWithDetectors(detectors ...Detector) *Registry {
	return &Registry{detectors: detectors, activeIdx: -1}
}

// Analyze feeds text to the currently-locked detector if one is active,
// otherwise polls each detector in order until one reports active.
func (r *Registry) Analyze(text string) (State, bool) {
	if r.activeIdx >= 0 {
		d := r.detectors[r.activeIdx]
		state, changed := d.Analyze(text)
		if !d.IsActive() {
			r.activeIdx = -1
		}
		return state, changed
	}
	for i, d := range r.detectors {
		state, changed := d.Analyze(text)
		if d.IsActive() {
			r.activeIdx = i
			return state, changed
		}
	}
	return State{}, false
}

// IsActive reports whether any detector is currently locked in as active.
func (r *Registry) IsActive() bool { return r.activeIdx >= 0 }

// ActiveAgentType returns the agent_type of the currently-locked detector,
// if any.
func (r *Registry) ActiveAgentType() (string, bool) {
	if r.activeIdx < 0 {
		return "", false
	}
	return r.detectors[r.activeIdx].AgentType(), true
}

// ActiveState returns the full State of the currently-locked detector, if
// any, for callers that need more than just the agent_type.
func (r *Registry) ActiveState() (State, bool) {
	if r.activeIdx < 0 {
		return State{}, false
	}
	return r.detectors[r.activeIdx].State()
}

// Reset clears the exclusivity lock and resets every detector's internal
// state, e.g. on pane reset.
func (r *Registry) Reset() {
	for _, d := range r.detectors {
		d.Reset()
	}
	r.activeIdx = -1
}
