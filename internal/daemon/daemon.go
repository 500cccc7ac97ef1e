// Package daemon wires together the session tree, PTY manager, client
// registry, arbitrator, mirror registry, and sideband executor into the
// request router described in spec.md §4.7: a per-client task reads
// framed requests and dispatches each to the component responsible for
// its message kind.
package daemon

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ianremillard/ccmux/internal/agent"
	"github.com/ianremillard/ccmux/internal/arbitrate"
	"github.com/ianremillard/ccmux/internal/config"
	"github.com/ianremillard/ccmux/internal/mirror"
	"github.com/ianremillard/ccmux/internal/ptymgr"
	"github.com/ianremillard/ccmux/internal/registry"
	"github.com/ianremillard/ccmux/internal/sideband"
	"github.com/ianremillard/ccmux/internal/tree"
	"github.com/ianremillard/ccmux/internal/vtstate"
)

// OrchestrationSessionName is the reserved session name the orchestration
// bridge targets with SendOrchestration requests. Per the Open Question
// resolution recorded in DESIGN.md, this session is never auto-destroyed
// when its last window closes, so repeated orchestration runs can reuse
// it instead of recreating one each time.
const OrchestrationSessionName = "__orchestration__"

// paneRuntime holds the per-pane state that lives outside the object
// tree: the sideband parser (stateful across reads), the agent-detector
// registry, the VT-mode tracker, and bookkeeping for the stuck_status
// field and Claude session-ID injection.
type paneRuntime struct {
	sessionID uuid.UUID
	windowID  uuid.UUID

	parser      sideband.Parser
	agents      *agent.Registry
	vt          vtstate.Tracker
	pendingLine []byte

	mu              sync.Mutex
	lastOutputAt    time.Time
	claudeSessionID string
}

// Daemon owns every piece of shared daemon state: the object tree, the
// PTY manager, the client registry, the arbitrator, the mirror registry,
// the sideband executor, and the per-pane runtime map.
type Daemon struct {
	cfg config.Config

	tree     *tree.Tree
	pty      *ptymgr.Manager
	clients  *registry.Registry
	arb      *arbitrate.Arbitrator
	mirrors  *mirror.Registry
	sideband *sideband.Executor

	serverVersion string

	mu                    sync.Mutex
	panes                 map[uuid.UUID]*paneRuntime
	lastHumanFocusWindow  *uuid.UUID

	stopReaper chan struct{}
}

// New constructs a Daemon from cfg. It starts the periodic PTY exit
// reaper in the background; call Close to stop it.
func New(cfg config.Config, serverVersion string) *Daemon {
	d := &Daemon{
		cfg:           cfg,
		tree:          tree.New(),
		pty:           ptymgr.New(),
		clients:       registry.New(),
		arb:           arbitrate.New(),
		mirrors:       mirror.New(),
		panes:         make(map[uuid.UUID]*paneRuntime),
		serverVersion: serverVersion,
		stopReaper:    make(chan struct{}),
	}
	d.sideband = sideband.NewExecutor(d.handleSidebandCommand)
	go d.reapLoop()
	return d
}

// Close stops the reaper loop. PTYs and client connections are the
// caller's responsibility (the server shuts them down as part of
// closing its listener and connections).
func (d *Daemon) Close() {
	close(d.stopReaper)
}

func (d *Daemon) reapLoop() {
	ticker := time.NewTicker(ptymgr.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopReaper:
			return
		case <-ticker.C:
			for _, ev := range d.pty.PollExits() {
				d.onPaneExited(ev.PaneID, ev.ExitCode)
			}
		}
	}
}

func (d *Daemon) newPaneRuntime(sessionID, windowID uuid.UUID) *paneRuntime {
	return &paneRuntime{
		sessionID:    sessionID,
		windowID:     windowID,
		agents:       agent.NewRegistry(),
		lastOutputAt: time.Now(),
	}
}

func (d *Daemon) registerPaneRuntime(paneID uuid.UUID, pr *paneRuntime) {
	d.mu.Lock()
	d.panes[paneID] = pr
	d.mu.Unlock()
}

func (d *Daemon) paneRuntimeOf(paneID uuid.UUID) (*paneRuntime, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pr, ok := d.panes[paneID]
	return pr, ok
}

func (d *Daemon) dropPaneRuntime(paneID uuid.UUID) {
	d.mu.Lock()
	delete(d.panes, paneID)
	d.mu.Unlock()
}

// stuckAfter is the configured no-output window after which an
// agent-active pane is reported as stuck_status=true.
func (d *Daemon) stuckAfter() time.Duration {
	if d.cfg.Agent.StuckAfterSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(d.cfg.Agent.StuckAfterSeconds) * time.Second
}

// isStuck is the pure function of (state, last_output_at) from
// SPEC_FULL.md's stuck_status supplement: true only for a pane currently
// in an agent state that has produced no output for at least
// stuckAfter().
func (d *Daemon) isStuck(p *tree.Pane, lastOutputAt time.Time) bool {
	if p.State.Kind != tree.PaneStateAgent {
		return false
	}
	if lastOutputAt.IsZero() {
		return false
	}
	return time.Since(lastOutputAt) >= d.stuckAfter()
}

func (d *Daemon) onPaneExited(paneID uuid.UUID, exitCode int) {
	_, _, pane, err := d.tree.FindPane(paneID)
	if err != nil {
		return
	}
	pane.State = tree.ExitedState(exitCode)
	d.closePaneInternal(paneID, exitCode, true)
}

// closePaneInternal performs the shared teardown for a pane going away,
// whether by explicit ClosePane request or by its child process exiting
// on its own: stop its sideband worker, remove its PTY handle, clean up
// any Claude config directory, drop its runtime state, and broadcast
// PaneClosed to the enclosing session (and unregister any mirrors it had).
func (d *Daemon) closePaneInternal(paneID uuid.UUID, exitCode int, broadcast bool) {
	pr, _ := d.paneRuntimeOf(paneID)

	d.sideband.ClosePane(paneID.String())
	d.pty.Remove(paneID)
	d.dropPaneRuntime(paneID)
	cleanupClaudeConfigDir(paneID)

	orphans := d.mirrors.CloseSource(paneID)
	for _, mirrorID := range orphans {
		d.mirrors.Unregister(mirrorID)
		if ms, _, _, err := d.tree.FindPane(mirrorID); err == nil {
			_ = d.tree.RemovePane(mirrorID)
			d.broadcastPaneClosed(ms.ID, mirrorID, exitCode)
		}
	}
	d.mirrors.Unregister(paneID)

	if !broadcast || pr == nil {
		return
	}

	log.Debug().Str("pane_id", paneID.String()).Int("exit_code", exitCode).Msg("pane closed")
	d.broadcastPaneClosed(pr.sessionID, paneID, exitCode)
}
