// Package tree implements the Session → Window → Pane object graph that
// backs every attached client's view of the daemon. The Tree type owns
// all three maps and their order lists and is the only place the
// invariants of the object graph are enforced: callers never mutate a
// Session/Window/Pane's maps directly.
package tree

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ianremillard/ccmux/internal/scrollback"
)

// PaneState is the tagged terminal-state machine of a pane: normal,
// running an agent, or exited.
type PaneState struct {
	Kind     PaneStateKind
	Agent    string // set when Kind == PaneStateAgent; the agent_type string
	ExitCode int    // set when Kind == PaneStateExited
}

type PaneStateKind int

const (
	PaneStateNormal PaneStateKind = iota
	PaneStateAgent
	PaneStateExited
)

func NormalState() PaneState                { return PaneState{Kind: PaneStateNormal} }
func AgentState(agentType string) PaneState  { return PaneState{Kind: PaneStateAgent, Agent: agentType} }
func ExitedState(code int) PaneState         { return PaneState{Kind: PaneStateExited, ExitCode: code} }

// Worktree is the optional git-integration descriptor attached to a
// Session (spec.md §3's "path, branch name, and is-main flag").
type Worktree struct {
	Path   string
	Branch string
	IsMain bool
}

// Session is the top level of the object tree.
type Session struct {
	ID              uuid.UUID
	Name            string
	CreatedAt       time.Time
	Windows         map[uuid.UUID]*Window
	WindowOrder     []uuid.UUID
	ActiveWindow    *uuid.UUID
	AttachedClients int
	Tags            map[string]struct{}
	Metadata        map[string]string
	Environment     map[string]string
	Worktree        *Worktree
}

// Window is the middle level of the object tree.
type Window struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	Name      string
	Index     int
	Panes     map[uuid.UUID]*Pane
	PaneOrder []uuid.UUID
	ActivePane *uuid.UUID
}

// Pane is the leaf level of the object tree. The VT parser, sideband
// parser, and agent-detector registry instances a live pane owns are
// referenced by ID from the owning subsystems (internal/vtstate,
// internal/sideband, internal/agent) rather than embedded here, so that
// internal/tree stays free of a dependency on the PTY output pipeline.
type Pane struct {
	ID               uuid.UUID
	WindowID         uuid.UUID
	Index            int
	Cols, Rows       int
	State            PaneState
	Scrollback       *scrollback.Buffer
	Title            string
	Cwd              string
	BracketedPaste   bool
	IsMirror         bool
	MirrorSourceID   *uuid.UUID
}

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrWindowNotFound  = errors.New("window not found")
	ErrPaneNotFound    = errors.New("pane not found")
	ErrNameExists      = errors.New("name already in use")
)

// Tree owns the full session/window/pane graph behind one
// readers-writer lock, per spec.md §5's "session object tree lives
// behind one readers-writer lock."
type Tree struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	// sessionOrder preserves creation order for ListSessions.
	sessionOrder []uuid.UUID
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{sessions: make(map[uuid.UUID]*Session)}
}

// CreateSession inserts a new, empty session. name need not be unique at
// this layer — callers that want §3's "unique among live sessions"
// contract should check NameExists first and treat a duplicate as
// SessionNameExists at the request layer.
func (t *Tree) CreateSession(name string, env map[string]string) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &Session{
		ID:          uuid.New(),
		Name:        name,
		CreatedAt:   time.Now(),
		Windows:     make(map[uuid.UUID]*Window),
		Tags:        make(map[string]struct{}),
		Metadata:    make(map[string]string),
		Environment: cloneEnv(env),
	}
	t.sessions[s.ID] = s
	t.sessionOrder = append(t.sessionOrder, s.ID)
	return s
}

func cloneEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

// NameExists reports whether a live session already carries name.
func (t *Tree) NameExists(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, id := range t.sessionOrder {
		if t.sessions[id].Name == name {
			return true
		}
	}
	return false
}

// GetSession returns the session with id, or ErrSessionNotFound.
func (t *Tree) GetSession(id uuid.UUID) (*Session, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// ListSessions returns all sessions in creation order.
func (t *Tree) ListSessions() []*Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Session, 0, len(t.sessionOrder))
	for _, id := range t.sessionOrder {
		out = append(out, t.sessions[id])
	}
	return out
}

// RenameSession renames a live session.
func (t *Tree) RenameSession(id uuid.UUID, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.Name = name
	return nil
}

// DestroySession removes a session and cascades the close of every
// window (and transitively every pane) rooted within it, per spec.md
// §3's lifecycle contract. It returns the IDs of every pane that was
// closed, so callers can kill their PTYs and notify mirrors.
func (t *Tree) DestroySession(id uuid.UUID) ([]uuid.UUID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	var closedPanes []uuid.UUID
	for _, winID := range append([]uuid.UUID{}, s.WindowOrder...) {
		win := s.Windows[winID]
		closedPanes = append(closedPanes, win.PaneOrder...)
	}

	delete(t.sessions, id)
	for i, sid := range t.sessionOrder {
		if sid == id {
			t.sessionOrder = append(t.sessionOrder[:i], t.sessionOrder[i+1:]...)
			break
		}
	}
	return closedPanes, nil
}

// CreateWindow adds a window to session sessionID at the end of its
// display order.
func (t *Tree) CreateWindow(sessionID uuid.UUID, name string) (*Window, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	w := &Window{
		ID:        uuid.New(),
		SessionID: sessionID,
		Name:      name,
		Index:     len(s.WindowOrder),
		Panes:     make(map[uuid.UUID]*Pane),
	}
	s.Windows[w.ID] = w
	s.WindowOrder = append(s.WindowOrder, w.ID)
	if s.ActiveWindow == nil {
		id := w.ID
		s.ActiveWindow = &id
	}
	return w, nil
}

// RemoveWindow cascades a pane-by-pane close of win's panes, removes
// the window, reassigns the session's active-window pointer if needed,
// and renumbers the remaining windows' display indices to [0..n). It
// returns the IDs of every pane that was removed.
func (t *Tree) RemoveWindow(windowID uuid.UUID) ([]uuid.UUID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, w, err := t.findWindowLocked(windowID)
	if err != nil {
		return nil, err
	}

	closedPanes := append([]uuid.UUID{}, w.PaneOrder...)

	delete(s.Windows, windowID)
	idx := -1
	for i, id := range s.WindowOrder {
		if id == windowID {
			idx = i
			break
		}
	}
	if idx >= 0 {
		s.WindowOrder = append(s.WindowOrder[:idx], s.WindowOrder[idx+1:]...)
	}

	if s.ActiveWindow != nil && *s.ActiveWindow == windowID {
		if len(s.WindowOrder) > 0 {
			next := s.WindowOrder[0]
			s.ActiveWindow = &next
		} else {
			s.ActiveWindow = nil
		}
	}

	for i, id := range s.WindowOrder {
		s.Windows[id].Index = i
	}

	return closedPanes, nil
}

// CreatePane adds a pane to window windowID.
func (t *Tree) CreatePane(windowID uuid.UUID, scrollbackMax int) (*Pane, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, w, err := t.findWindowLocked(windowID)
	if err != nil {
		return nil, err
	}

	p := &Pane{
		ID:         uuid.New(),
		WindowID:   windowID,
		Index:      len(w.PaneOrder),
		State:      NormalState(),
		Scrollback: scrollback.New(scrollbackMax),
	}
	w.Panes[p.ID] = p
	w.PaneOrder = append(w.PaneOrder, p.ID)
	if w.ActivePane == nil {
		id := p.ID
		w.ActivePane = &id
	}
	return p, nil
}

// RemovePane removes a pane, reassigns the window's active-pane pointer
// if needed, and renumbers the remaining panes' display indices to
// [0..n).
func (t *Tree) RemovePane(paneID uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, w, _, err := t.findPaneLocked(paneID)
	if err != nil {
		return err
	}

	delete(w.Panes, paneID)
	idx := -1
	for i, id := range w.PaneOrder {
		if id == paneID {
			idx = i
			break
		}
	}
	if idx >= 0 {
		w.PaneOrder = append(w.PaneOrder[:idx], w.PaneOrder[idx+1:]...)
	}

	if w.ActivePane != nil && *w.ActivePane == paneID {
		if len(w.PaneOrder) > 0 {
			next := w.PaneOrder[0]
			w.ActivePane = &next
		} else {
			w.ActivePane = nil
		}
	}

	for i, id := range w.PaneOrder {
		w.Panes[id].Index = i
	}

	return nil
}

// FindPane returns the (session, window, pane) triple for paneID in one
// lookup, per spec.md §4.2.
func (t *Tree) FindPane(paneID uuid.UUID) (*Session, *Window, *Pane, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.findPaneLocked(paneID)
}

// FindWindow returns the (session, window) pair for windowID.
func (t *Tree) FindWindow(windowID uuid.UUID) (*Session, *Window, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.findWindowLocked(windowID)
}

func (t *Tree) findWindowLocked(windowID uuid.UUID) (*Session, *Window, error) {
	for _, sid := range t.sessionOrder {
		s := t.sessions[sid]
		if w, ok := s.Windows[windowID]; ok {
			return s, w, nil
		}
	}
	return nil, nil, ErrWindowNotFound
}

func (t *Tree) findPaneLocked(paneID uuid.UUID) (*Session, *Window, *Pane, error) {
	for _, sid := range t.sessionOrder {
		s := t.sessions[sid]
		for _, wid := range s.WindowOrder {
			w := s.Windows[wid]
			if p, ok := w.Panes[paneID]; ok {
				return s, w, p, nil
			}
		}
	}
	return nil, nil, nil, ErrPaneNotFound
}

// FindPaneByName looks up a pane by its title, iterating sessions and
// windows in deterministic (insertion) order. On duplicate titles the
// first-inserted pane wins, per spec.md §4.2.
func (t *Tree) FindPaneByName(name string) (*Session, *Window, *Pane, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, sid := range t.sessionOrder {
		s := t.sessions[sid]
		for _, wid := range s.WindowOrder {
			w := s.Windows[wid]
			for _, pid := range w.PaneOrder {
				p := w.Panes[pid]
				if p.Title == name {
					return s, w, p, true
				}
			}
		}
	}
	return nil, nil, nil, false
}

// SetActiveWindow sets session sessionID's active-window pointer,
// validating that windowID is a live window of that session.
func (t *Tree) SetActiveWindow(sessionID, windowID uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if _, ok := s.Windows[windowID]; !ok {
		return ErrWindowNotFound
	}
	id := windowID
	s.ActiveWindow = &id
	return nil
}

// SetActivePane sets window windowID's active-pane pointer, validating
// that paneID is a live pane of that window.
func (t *Tree) SetActivePane(windowID, paneID uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, w, err := t.findWindowLocked(windowID)
	if err != nil {
		return err
	}
	if _, ok := w.Panes[paneID]; !ok {
		return ErrPaneNotFound
	}
	id := paneID
	w.ActivePane = &id
	return nil
}
