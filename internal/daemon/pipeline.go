package daemon

// pipeline.go implements the PTY output pipeline of spec.md §4.4: one
// reader task per live pane that feeds raw PTY bytes through the
// sideband parser, the agent-detector registry, and the VT-mode
// tracker, appends display text to scrollback, and broadcasts it.

import (
	"bytes"
	"context"
	"io"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/ianremillard/ccmux/internal/arbitrate"
	"github.com/ianremillard/ccmux/internal/claudeconfig"
	"github.com/ianremillard/ccmux/internal/ptymgr"
	"github.com/ianremillard/ccmux/internal/scrollback"
	"github.com/ianremillard/ccmux/internal/sideband"
	"github.com/ianremillard/ccmux/internal/tree"
)

// readBufferSize is the fixed-size buffer each pane's reader task reads
// PTY bytes into, per spec.md §4.4 step 1.
const readBufferSize = 32 * 1024

// spawnConfig bundles what spawnPane needs beyond the already-created
// tree.Pane: the command line and working directory, plus the
// environment inherited from the enclosing session.
type spawnConfig struct {
	Command []string
	Cwd     string
	Env     map[string]string
}

// spawnPane starts cfg.Command behind a PTY for pane, registers its
// runtime state, and launches its output pipeline goroutine. The caller
// must have already released any tree write-lock before calling this,
// per spec.md §5's lock-order rule (spawning a PTY must never happen
// while holding a session-tree lock).
func (d *Daemon) spawnPane(session *tree.Session, window *tree.Window, pane *tree.Pane, cfg spawnConfig) error {
	command := cfg.Command
	if len(command) == 0 {
		command = []string{defaultShell()}
	}

	var claudeSessionID string
	if ptymgr.IsClaudeCommand(command[0]) {
		configDir, err := claudeconfig.EnsureDir(pane.ID)
		if err == nil {
			if cfg.Env == nil {
				cfg.Env = map[string]string{}
			}
			cfg.Env[claudeconfig.EnvVar] = configDir
		}
		inj := ptymgr.InjectClaudeSessionID(command[0], command[1:])
		if inj.Injected {
			command = append([]string{command[0]}, inj.Args...)
			claudeSessionID = inj.SessionID
		}
	}

	env := mergeEnv(cfg.Env)
	env = append(env, ptymgr.ContextEnv(session.ID.String(), session.Name, window.ID.String(), pane.ID.String())...)

	_, err := d.pty.Spawn(pane.ID, ptymgr.Config{
		Command: command,
		Cwd:     cfg.Cwd,
		Env:     env,
		Cols:    pane.Cols,
		Rows:    pane.Rows,
	})
	if err != nil {
		return err
	}

	pr := d.newPaneRuntime(session.ID, window.ID)
	pr.claudeSessionID = claudeSessionID
	d.registerPaneRuntime(pane.ID, pr)

	go d.runOutputPipeline(pane.ID)
	return nil
}

func defaultShell() string {
	return "/bin/sh"
}

func mergeEnv(overrides map[string]string) []string {
	base := map[string]string{}
	for k, v := range overrides {
		base[k] = v
	}
	out := make([]string, 0, len(base))
	for k, v := range base {
		out = append(out, k+"="+v)
	}
	return out
}

func cleanupClaudeConfigDir(paneID uuid.UUID) {
	if err := claudeconfig.CleanupDir(paneID); err != nil {
		log.Debug().Str("pane_id", paneID.String()).Err(err).Msg("claude config cleanup failed")
	}
}

// runOutputPipeline is the per-pane reader task described by spec.md
// §4.4. It exits when the PTY reader hits EOF or an error, at which
// point the pane's exit is left to the periodic reaper (PollExits) to
// notice and report the real exit code; this goroutine's only job on
// exit is to stop touching a pane whose PTY is gone.
func (d *Daemon) runOutputPipeline(paneID uuid.UUID) {
	reader, err := d.pty.Reader(paneID)
	if err != nil || reader == nil {
		return
	}

	buf := make([]byte, readBufferSize)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			d.processPaneOutput(paneID, append([]byte(nil), buf[:n]...))
		}
		if err != nil {
			if err != io.EOF {
				log.Debug().Str("pane_id", paneID.String()).Err(err).Msg("pty read error")
			}
			return
		}
	}
}

// processPaneOutput runs one chunk of raw PTY bytes through the
// pipeline's steps 3-8.
func (d *Daemon) processPaneOutput(paneID uuid.UUID, raw []byte) {
	pr, ok := d.paneRuntimeOf(paneID)
	if !ok {
		return
	}
	_, _, pane, err := d.tree.FindPane(paneID)
	if err != nil {
		return
	}

	display, commands := pr.parser.Feed(raw)

	for _, cmd := range commands {
		d.sideband.Submit(context.Background(), paneID.String(), cmd)
	}

	if len(display) == 0 {
		return
	}

	pr.mu.Lock()
	pr.lastOutputAt = time.Now()
	pr.mu.Unlock()

	if text, ok := decodeUTF8BestEffort(display); ok {
		if state, changed := pr.agents.Analyze(text); changed {
			applyAgentState(pane, state)
			d.broadcastAgentStateChanged(pr.sessionID, paneID, state)
		}
	}

	pr.vt.Feed(display)
	appendScrollback(pane.Scrollback, pr, display)

	d.clients.BroadcastToSession(pr.sessionID, outputMessage(paneID, display))

	if d.mirrors.HasMirrors(paneID) {
		for _, mirrorID := range d.mirrors.MirrorsOf(paneID) {
			d.clients.BroadcastToSession(pr.sessionID, outputMessage(mirrorID, display))
		}
	}
}

// decodeUTF8BestEffort reports whether data looks like valid UTF-8; the
// agent detector only inspects text it can decode, per spec.md §4.4 step
// 5 ("decoded as UTF-8 best-effort").
func decodeUTF8BestEffort(data []byte) (string, bool) {
	if !utf8.Valid(data) {
		return "", false
	}
	return string(data), true
}

// appendScrollback splits display text on newlines and appends completed
// lines to the pane's scrollback buffer, carrying any trailing partial
// line forward in pr.pendingLine until it is terminated by a future
// chunk.
func appendScrollback(buf *scrollback.Buffer, pr *paneRuntime, display []byte) {
	data := append(pr.pendingLine, display...)
	lines := bytes.Split(data, []byte("\n"))

	complete := lines[:len(lines)-1]
	pr.pendingLine = append([]byte(nil), lines[len(lines)-1]...)

	for _, line := range complete {
		buf.Append(string(bytes.TrimSuffix(line, []byte("\r"))))
	}
}

// handleSidebandCommand dispatches one sideband command against the live
// object tree and PTY manager. It runs on the executor's per-pane worker
// goroutine, never on the output-pipeline goroutine itself, so a slow or
// blocked sideband command never stalls that pane's own PTY reads.
func (d *Daemon) handleSidebandCommand(ctx context.Context, paneIDStr string, cmd sideband.Command) error {
	paneID, err := uuid.Parse(paneIDStr)
	if err != nil {
		return err
	}
	pr, ok := d.paneRuntimeOf(paneID)
	if !ok {
		return nil
	}

	switch c := cmd.(type) {
	case sideband.Input:
		target, err := d.resolvePaneRef(pr.windowID, c.Pane, paneID)
		if err != nil {
			return err
		}
		_, err = d.pty.Write(target, []byte(c.Text))
		return err

	case sideband.Scroll:
		target, err := d.resolvePaneRef(pr.windowID, c.Pane, paneID)
		if err != nil {
			return err
		}
		_, _, pane, err := d.tree.FindPane(target)
		if err != nil {
			return err
		}
		pane.Scrollback.SetViewportOffset(pane.Scrollback.ViewportOffset() + c.Lines)
		d.clients.BroadcastToSession(pr.sessionID, viewportUpdatedMessage(target, pane.Scrollback.ViewportOffset()))
		return nil

	case sideband.Notify:
		d.clients.BroadcastToSession(pr.sessionID, notifyAsOutput(paneID, c))
		return nil

	case sideband.Mail:
		log.Info().Str("pane_id", paneIDStr).Str("priority", c.Priority).Str("summary", c.Summary).Msg("sideband mail")
		return nil

	case sideband.Focus:
		target, err := d.resolvePaneRef(pr.windowID, c.Pane, paneID)
		if err != nil {
			return err
		}
		if result := d.arb.Check(arbitrate.AgentActor, arbitrate.PaneResource(target), arbitrate.ActionFocus); !result.Allowed {
			return errors.New(result.Reason)
		}
		return d.tree.SetActivePane(pr.windowID, target)

	case sideband.Control:
		return d.handleSidebandControl(pr, paneID, c)

	case sideband.Spawn:
		return d.handleSidebandSpawn(pr, c)
	}
	return nil
}

func (d *Daemon) handleSidebandControl(pr *paneRuntime, paneID uuid.UUID, c sideband.Control) error {
	target, err := d.resolvePaneRef(pr.windowID, c.Pane, paneID)
	if err != nil {
		return err
	}
	switch c.Action {
	case sideband.ControlClose:
		if result := d.arb.Check(arbitrate.AgentActor, arbitrate.PaneResource(target), arbitrate.ActionKill); !result.Allowed {
			return errors.New(result.Reason)
		}
		d.closePaneInternal(target, 0, true)
	case sideband.ControlResize:
		return d.pty.Resize(target, c.Cols, c.Rows)
	case sideband.ControlPin, sideband.ControlUnpin:
		// Pinning affects client-side layout only; the daemon has no
		// state to change here beyond acknowledging the command.
	}
	return nil
}

// handleSidebandSpawn creates a sibling pane by splitting the issuing
// pane, per spec.md §4.5's spawn command. The config attribute, if
// present, is an opaque agent-framework blob passed through unused by
// this daemon.
func (d *Daemon) handleSidebandSpawn(pr *paneRuntime, c sideband.Spawn) error {
	_, window, err := d.tree.FindWindow(pr.windowID)
	if err != nil {
		return err
	}
	if result := d.arb.Check(arbitrate.AgentActor, arbitrate.WindowResource(window.ID), arbitrate.ActionLayout); !result.Allowed {
		return errors.New(result.Reason)
	}
	command := []string{defaultShell()}
	if c.Command != "" {
		command = append([]string{"/bin/sh", "-c"}, c.Command)
	}
	return d.createAndSpawnPane(window, command, c.Cwd, nil)
}

// resolvePaneRef resolves a sideband.PaneRef against the issuing pane's
// window: "active" or empty means the window's active pane, otherwise
// the ref is tried as a pane UUID.
func (d *Daemon) resolvePaneRef(windowID uuid.UUID, ref sideband.PaneRef, issuingPaneID uuid.UUID) (uuid.UUID, error) {
	if ref.IsActive() {
		_, window, err := d.tree.FindWindow(windowID)
		if err != nil {
			return uuid.Nil, err
		}
		if window.ActivePane != nil {
			return *window.ActivePane, nil
		}
		return issuingPaneID, nil
	}
	if id, err := uuid.Parse(ref.Raw); err == nil {
		return id, nil
	}
	return issuingPaneID, nil
}
