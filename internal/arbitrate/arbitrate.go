// Package arbitrate decides whether an automated (agent) action is
// allowed right now, given recent human activity and any explicit
// human-control lock, so that automation never fights a live user.
package arbitrate

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Default lockout durations, carried over from the original implementation
// rather than re-derived, since the exact numbers are part of the tested
// contract.
const (
	DefaultInputLockout  = 2 * time.Second
	DefaultLayoutLockout = 5 * time.Second
)

// Reason strings surfaced in a Blocked result. These are part of the wire
// contract (clients match on them to render a message) and must not be
// reworded.
const (
	ReasonHumanInputActive  = "Human input active"
	ReasonHumanLayoutActive = "Human layout active"
	ReasonHumanControlMode  = "Human control mode"
)

// SystemClientID is the sentinel client ID recorded against a Blocked
// result caused by an implicit activity lockout rather than an explicit
// per-client lock.
var SystemClientID = uuid.Nil

// Actor is who is attempting an action.
type Actor struct {
	Human    bool
	ClientID uuid.UUID
}

// HumanActor builds an Actor representing a human client.
func HumanActor(clientID uuid.UUID) Actor { return Actor{Human: true, ClientID: clientID} }

// AgentActor is the sole automated actor; it carries no client identity of
// its own because automation acts on behalf of the daemon, not a
// connected human client.
var AgentActor = Actor{Human: false}

// ResourceKind distinguishes the four resource scopes arbitration tracks
// activity against.
type ResourceKind int

const (
	ResourcePane ResourceKind = iota
	ResourceWindow
	ResourceSession
	ResourceGlobal
)

// Resource identifies what an action targets.
type Resource struct {
	Kind ResourceKind
	ID   uuid.UUID // zero value for ResourceGlobal
}

func PaneResource(id uuid.UUID) Resource    { return Resource{Kind: ResourcePane, ID: id} }
func WindowResource(id uuid.UUID) Resource  { return Resource{Kind: ResourceWindow, ID: id} }
func SessionResource(id uuid.UUID) Resource { return Resource{Kind: ResourceSession, ID: id} }

var GlobalResource = Resource{Kind: ResourceGlobal}

// Action classifies what kind of mutation is being attempted.
type Action int

const (
	ActionFocus Action = iota
	ActionInput
	ActionLayout
	ActionKill
)

// Result is the outcome of a Check call.
type Result struct {
	Allowed     bool
	ClientID    uuid.UUID
	RemainingMs uint64
	Reason      string
}

func allowed() Result { return Result{Allowed: true} }

func blocked(clientID uuid.UUID, remainingMs uint64, reason string) Result {
	return Result{Allowed: false, ClientID: clientID, RemainingMs: remainingMs, Reason: reason}
}

type lockState struct {
	activatedAt time.Time
	timeout     time.Duration
	reason      string
}

func (l lockState) isActive() bool { return time.Since(l.activatedAt) < l.timeout }

func (l lockState) remainingMs() uint64 {
	elapsed := time.Since(l.activatedAt)
	if elapsed >= l.timeout {
		return 0
	}
	return uint64((l.timeout - elapsed).Milliseconds())
}

type activityState struct {
	lastInputAt  time.Time
	lastLayoutAt time.Time
}

// Arbitrator is the central authority deciding whether an actor may
// perform an action on a resource right now.
type Arbitrator struct {
	mu    sync.Mutex
	locks map[uuid.UUID]lockState

	actMu    sync.Mutex
	activity map[Resource]*activityState

	inputLockout  time.Duration
	layoutLockout time.Duration
}

// New returns an Arbitrator using the default lockout durations.
func New() *Arbitrator {
	return &Arbitrator{
		locks:         make(map[uuid.UUID]lockState),
		activity:      make(map[Resource]*activityState),
		inputLockout:  DefaultInputLockout,
		layoutLockout: DefaultLayoutLockout,
	}
}

// RecordActivity records that a human performed action on resource, for
// use by later implicit-lockout checks.
func (a *Arbitrator) RecordActivity(resource Resource, action Action) {
	now := time.Now()
	a.actMu.Lock()
	defer a.actMu.Unlock()
	s, ok := a.activity[resource]
	if !ok {
		s = &activityState{}
		a.activity[resource] = s
	}
	switch action {
	case ActionInput:
		s.lastInputAt = now
	case ActionLayout:
		s.lastLayoutAt = now
	}
}

// SetLock activates an explicit human-control lock for clientID, e.g. on
// UserCommandModeEntered.
func (a *Arbitrator) SetLock(clientID uuid.UUID, timeout time.Duration, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.locks[clientID] = lockState{activatedAt: time.Now(), timeout: timeout, reason: reason}
}

// ReleaseLock clears clientID's explicit lock, e.g. on
// UserCommandModeExited or disconnect.
func (a *Arbitrator) ReleaseLock(clientID uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.locks, clientID)
}

// IsClientLocked reports whether clientID currently holds an active
// explicit lock.
func (a *Arbitrator) IsClientLocked(clientID uuid.UUID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[clientID]
	return ok && l.isActive()
}

// anyLockActive finds any currently-active explicit lock, cleaning up
// expired ones as it goes. Must be called with a.mu held.
func (a *Arbitrator) anyLockActive() (uuid.UUID, lockState, bool) {
	var expired []uuid.UUID
	var foundID uuid.UUID
	var foundState lockState
	found := false
	for id, l := range a.locks {
		if l.isActive() {
			foundID, foundState, found = id, l, true
		} else {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(a.locks, id)
	}
	return foundID, foundState, found
}

// Check decides whether actor may perform action on resource right now.
// Human actors are always allowed.
func (a *Arbitrator) Check(actor Actor, resource Resource, action Action) Result {
	if actor.Human {
		return allowed()
	}

	a.mu.Lock()
	id, lock, ok := a.anyLockActive()
	a.mu.Unlock()
	if ok {
		reason := lock.reason
		if reason == "" {
			reason = ReasonHumanControlMode
		}
		return blocked(id, lock.remainingMs(), reason)
	}

	a.actMu.Lock()
	state, ok := a.activity[resource]
	a.actMu.Unlock()
	if !ok {
		return allowed()
	}

	switch action {
	case ActionInput:
		if r, blockedResult := a.checkElapsed(state.lastInputAt, a.inputLockout, ReasonHumanInputActive); blockedResult {
			return r
		}
	case ActionLayout, ActionFocus, ActionKill:
		if r, blockedResult := a.checkElapsed(state.lastLayoutAt, a.layoutLockout, ReasonHumanLayoutActive); blockedResult {
			return r
		}
		if r, blockedResult := a.checkElapsed(state.lastInputAt, a.inputLockout, ReasonHumanInputActive); blockedResult {
			return r
		}
	}
	return allowed()
}

func (a *Arbitrator) checkElapsed(last time.Time, lockout time.Duration, reason string) (Result, bool) {
	if last.IsZero() {
		return Result{}, false
	}
	elapsed := time.Since(last)
	if elapsed >= lockout {
		return Result{}, false
	}
	remaining := uint64((lockout - elapsed).Milliseconds())
	return blocked(SystemClientID, remaining, reason), true
}

// OnClientDisconnect releases any explicit lock the disconnecting client
// held.
func (a *Arbitrator) OnClientDisconnect(clientID uuid.UUID) {
	a.ReleaseLock(clientID)
}
