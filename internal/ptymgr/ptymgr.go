// Package ptymgr manages the pane_id -> PTY handle mapping described in
// spec.md §4.3: spawning children behind a PTY, writing to their stdin,
// resizing, best-effort kill, and a periodic reaper that notices exited
// children.
package ptymgr

import (
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Config is the input to Spawn: the command to run, its working
// directory, its environment (already merged: inherited + overrides),
// and its initial size.
type Config struct {
	Command []string
	Cwd     string
	Env     []string
	Cols    int
	Rows    int
}

// Handle owns one spawned child's PTY master, the underlying *exec.Cmd,
// and tracks whether it has been reaped yet.
type Handle struct {
	PaneID uuid.UUID

	mu      sync.Mutex
	master  *os.File
	cmd     *exec.Cmd
	exited  bool
	exitCode int
}

var (
	ErrNotFound = errors.New("pty handle not found")
	ErrNoHandle = errors.New("pane has no live pty")
)

// Manager maps pane IDs to PTY handles, protected by its own
// readers-writer lock distinct from the session tree's, per spec.md
// §5's lock-order rule (session-tree -> PTY-manager, never the other
// way, and never held across a spawn).
type Manager struct {
	mu      sync.RWMutex
	handles map[uuid.UUID]*Handle
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{handles: make(map[uuid.UUID]*Handle)}
}

// Spawn starts cfg.Command inside a new PTY on behalf of paneID. The
// caller must have already dropped any session-tree locks.
func (m *Manager) Spawn(paneID uuid.UUID, cfg Config) (*Handle, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.New("ptymgr: empty command")
	}

	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	cmd.Dir = cfg.Cwd
	cmd.Env = cfg.Env

	master, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(cfg.Cols),
		Rows: uint16(cfg.Rows),
	})
	if err != nil {
		return nil, errors.Wrap(err, "ptymgr: pty.StartWithSize")
	}

	h := &Handle{PaneID: paneID, master: master, cmd: cmd}

	m.mu.Lock()
	m.handles[paneID] = h
	m.mu.Unlock()

	return h, nil
}

// Write sends bytes to the child's stdin.
func (m *Manager) Write(paneID uuid.UUID, data []byte) (int, error) {
	h, err := m.get(paneID)
	if err != nil {
		return 0, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.master == nil {
		return 0, ErrNoHandle
	}
	return h.master.Write(data)
}

// Resize posts SIGWINCH via the PTY ioctl with the new size.
func (m *Manager) Resize(paneID uuid.UUID, cols, rows int) error {
	h, err := m.get(paneID)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.master == nil {
		return ErrNoHandle
	}
	return pty.Setsize(h.master, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// TryWait reports whether paneID's child has exited and, if so, its
// exit code. ok is false while the child is still running.
func (m *Manager) TryWait(paneID uuid.UUID) (code int, ok bool, err error) {
	h, err := m.get(paneID)
	if err != nil {
		return 0, false, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exited {
		return h.exitCode, true, nil
	}
	return 0, false, nil
}

// Kill makes a best-effort attempt to terminate paneID's child process
// group.
func (m *Manager) Kill(paneID uuid.UUID) error {
	h, err := m.get(paneID)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd == nil || h.cmd.Process == nil {
		return nil
	}
	pid := h.cmd.Process.Pid
	if pgid, perr := syscall.Getpgid(pid); perr == nil {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	} else {
		_ = syscall.Kill(pid, syscall.SIGKILL)
	}
	return nil
}

// Remove kills the child (if still alive) and drops the handle.
func (m *Manager) Remove(paneID uuid.UUID) {
	_ = m.Kill(paneID)

	m.mu.Lock()
	h, ok := m.handles[paneID]
	if ok {
		delete(m.handles, paneID)
	}
	m.mu.Unlock()

	if ok {
		h.mu.Lock()
		if h.master != nil {
			h.master.Close()
			h.master = nil
		}
		h.mu.Unlock()
	}
}

// Reader returns the PTY master for paneID so the output pipeline can
// read from it directly. It is nil once the handle has been removed.
func (m *Manager) Reader(paneID uuid.UUID) (*os.File, error) {
	h, err := m.get(paneID)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.master, nil
}

func (m *Manager) get(paneID uuid.UUID) (*Handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handles[paneID]
	if !ok {
		return nil, ErrNotFound
	}
	return h, nil
}

// ExitEvent is emitted by PollExits for each child noticed to have
// exited since the previous poll.
type ExitEvent struct {
	PaneID   uuid.UUID
	ExitCode int
}

// PollExits reaps any children that have exited (non-blocking) and
// returns one ExitEvent per pane newly found exited. It is meant to be
// called periodically from a single background task, per spec.md §4.3's
// "periodic poll_exits reaps exited children."
func (m *Manager) PollExits() []ExitEvent {
	m.mu.RLock()
	snapshot := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		snapshot = append(snapshot, h)
	}
	m.mu.RUnlock()

	var events []ExitEvent
	for _, h := range snapshot {
		h.mu.Lock()
		if h.exited || h.cmd == nil || h.cmd.Process == nil {
			h.mu.Unlock()
			continue
		}
		var ws syscall.WaitStatus
		pid, err := syscall.Wait4(h.cmd.Process.Pid, &ws, syscall.WNOHANG, nil)
		if err != nil || pid == 0 {
			h.mu.Unlock()
			continue
		}
		h.exited = true
		h.exitCode = ws.ExitStatus()
		paneID := h.PaneID
		code := h.exitCode
		h.mu.Unlock()

		log.Debug().Str("pane_id", paneID.String()).Int("exit_code", code).Msg("pty child exited")
		events = append(events, ExitEvent{PaneID: paneID, ExitCode: code})
	}
	return events
}

// PollInterval is the default period between PollExits calls.
const PollInterval = 500 * time.Millisecond

// ContextEnv builds the "context" environment variables augmenting a
// spawned child, per spec.md §6: CCMUX_SESSION_ID, CCMUX_SESSION_NAME,
// CCMUX_WINDOW_ID, CCMUX_PANE_ID.
func ContextEnv(sessionID, sessionName, windowID, paneID string) []string {
	return []string{
		"CCMUX_SESSION_ID=" + sessionID,
		"CCMUX_SESSION_NAME=" + sessionName,
		"CCMUX_WINDOW_ID=" + windowID,
		"CCMUX_PANE_ID=" + paneID,
	}
}
