package daemon

// handlers.go is the request router of spec.md §4.7: a flat switch over
// message kind, each handler returning one of the Result shapes that
// tell the connection loop how to deliver the outcome.

import (
	"time"

	"github.com/google/uuid"

	"github.com/ianremillard/ccmux/internal/arbitrate"
	"github.com/ianremillard/ccmux/internal/reply"
	"github.com/ianremillard/ccmux/internal/tree"
	"github.com/ianremillard/ccmux/internal/vtstate"
	"github.com/ianremillard/ccmux/internal/wire"
)

// ResultKind discriminates the handler-return shapes of spec.md §4.7.
type ResultKind int

const (
	KindResponse ResultKind = iota
	KindResponseWithBroadcast
	KindResponseWithFollowUp
	KindResponseWithGlobalBroadcast
	KindNoResponse
	KindCloseConnection
)

// Result is the uniform return value of every handler. Which fields are
// meaningful depends on Kind.
type Result struct {
	Kind        ResultKind
	Response    wire.ServerMessage
	FollowUp    []wire.ServerMessage
	BroadcastTo uuid.UUID // session ID, for KindResponseWithBroadcast
	Broadcast   wire.ServerMessage
}

func response(msg wire.ServerMessage) Result {
	return Result{Kind: KindResponse, Response: msg}
}

func responseWithBroadcast(msg wire.ServerMessage, sessionID uuid.UUID, broadcast wire.ServerMessage) Result {
	return Result{Kind: KindResponseWithBroadcast, Response: msg, BroadcastTo: sessionID, Broadcast: broadcast}
}

func responseWithFollowUp(msg wire.ServerMessage, followUp []wire.ServerMessage) Result {
	return Result{Kind: KindResponseWithFollowUp, Response: msg, FollowUp: followUp}
}

func responseWithGlobalBroadcast(msg, broadcast wire.ServerMessage) Result {
	return Result{Kind: KindResponseWithGlobalBroadcast, Response: msg, Broadcast: broadcast}
}

func noResponse() Result {
	return Result{Kind: KindNoResponse}
}

func errorResult(code wire.ErrorCode, message string, details map[string]interface{}) Result {
	return response(wire.Error{Code: code, Message: message, Details: details})
}

func arbitrationErrorResult(result arbitrate.Result) Result {
	return errorResult(wire.ErrInvalidOperation, result.Reason, map[string]interface{}{
		"remaining_ms":    result.RemainingMs,
		"blocking_client": result.ClientID.String(),
	})
}

// HandleMessage dispatches msg for the connection described by c. It is
// safe to call concurrently for different connections; the Daemon's own
// sub-components each own their own locking.
func (d *Daemon) HandleMessage(c *ConnState, msg wire.ClientMessage) Result {
	switch m := msg.(type) {
	case wire.Connect:
		return d.handleConnect(c, m)
	case wire.Ping:
		return response(wire.Pong{})
	case wire.Sync:
		return d.handleSync(c)
	case wire.Detach:
		return d.handleDetach(c)
	case wire.ListSessions:
		return d.handleListSessions()
	case wire.CreateSession:
		return d.handleCreateSession(c, m.Name, m.Command, "", nil)
	case wire.CreateSessionWithOptions:
		return d.handleCreateSession(c, m.Name, m.Command, m.Cwd, m.Env)
	case wire.AttachSession:
		return d.handleAttachSession(c, m)
	case wire.DestroySession:
		return d.handleDestroySession(c, m)
	case wire.CreateWindow:
		return d.handleCreateWindow(m)
	case wire.CreatePane:
		return d.handleCreatePane(m)
	case wire.SplitPane:
		return d.handleSplitPane(c, m)
	case wire.ClosePane:
		return d.handleClosePane(c, m)
	case wire.CloseWindow:
		return d.handleCloseWindow(c, m)
	case wire.CreateMirror:
		return d.handleCreateMirror(c, m)
	case wire.SelectPane:
		return d.handleSelectPane(c, m)
	case wire.SelectWindow:
		return d.handleSelectWindow(c, m)
	case wire.SelectSession:
		return d.handleSelectSession(c, m)
	case wire.Input:
		return d.handleInput(c, m)
	case wire.Paste:
		return d.handlePaste(c, m)
	case wire.Resize:
		return d.handleResize(m)
	case wire.SetViewportOffset:
		return d.handleSetViewportOffset(m)
	case wire.JumpToBottom:
		return d.handleJumpToBottom(m)
	case wire.Reply:
		return d.handleReply(m)
	case wire.ReadPane:
		return d.handleReadPane(m)
	case wire.ListAllPanes:
		return d.handleListAllPanes(m)
	case wire.SetEnvironment:
		return d.handleSetEnvironment(m)
	case wire.GetEnvironment:
		return d.handleGetEnvironment(m)
	case wire.UserCommandModeEntered:
		return d.handleUserCommandModeEntered(c, m)
	case wire.UserCommandModeExited:
		return d.handleUserCommandModeExited(c)
	case wire.SendOrchestration:
		return d.handleSendOrchestration(m)
	default:
		return errorResult(wire.ErrInvalidMessage, "unrecognized message", nil)
	}
}

func (d *Daemon) handleConnect(c *ConnState, m wire.Connect) Result {
	if m.ProtocolVersion != wire.ProtocolVersion {
		return Result{
			Kind: KindCloseConnection,
			Response: wire.Error{
				Code:    wire.ErrProtocolMismatch,
				Message: "protocol version mismatch",
				Details: map[string]interface{}{"expected": wire.ProtocolVersion, "got": m.ProtocolVersion},
			},
		}
	}
	c.WireID = m.ClientID
	c.Type = m.ClientType
	return response(wire.Connected{ServerVersion: d.serverVersion, ProtocolVersion: wire.ProtocolVersion})
}

func (d *Daemon) handleSync(c *ConnState) Result {
	client, ok := d.client(c)
	if !ok || client.AttachedSession == nil {
		return response(wire.SessionList{Sessions: d.sessionInfos()})
	}

	session, err := d.tree.GetSession(*client.AttachedSession)
	if err != nil {
		return response(wire.SessionList{Sessions: d.sessionInfos()})
	}

	attached := d.buildAttached(session)
	var followUp []wire.ServerMessage
	for _, wid := range session.WindowOrder {
		w := session.Windows[wid]
		for _, pid := range w.PaneOrder {
			pane := w.Panes[pid]
			if lines := pane.Scrollback.All(); len(lines) > 0 {
				followUp = append(followUp, wire.Output{PaneID: pid, Data: []byte(joinLines(lines))})
			}
		}
	}
	return responseWithFollowUp(attached, followUp)
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\r\n"
		}
		out += l
	}
	return out
}

func (d *Daemon) sessionInfos() []wire.SessionInfo {
	sessions := d.tree.ListSessions()
	out := make([]wire.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, d.buildSessionInfo(s))
	}
	return out
}

func (d *Daemon) handleDetach(c *ConnState) Result {
	d.clients.Detach(c.RegistryID)
	return noResponse()
}

func (d *Daemon) handleListSessions() Result {
	return response(wire.SessionList{Sessions: d.sessionInfos()})
}

func (d *Daemon) handleCreateSession(c *ConnState, name, command, cwd string, env map[string]string) Result {
	if d.tree.NameExists(name) {
		return errorResult(wire.ErrSessionNameExists, "session name already exists", map[string]interface{}{"name": name})
	}
	session, window, pane, err := d.createSession(name, command, cwd, env)
	if err != nil {
		return errorResult(wire.ErrInternalError, err.Error(), nil)
	}
	d.clients.Attach(c.RegistryID, session.ID)
	d.recordFocus(c, &session.ID, &window.ID, &pane.ID)

	msg := wire.SessionCreatedWithDetails{
		SessionID:   session.ID,
		SessionName: session.Name,
		WindowID:    window.ID,
		PaneID:      pane.ID,
		ShouldFocus: true,
	}
	return responseWithGlobalBroadcast(msg, wire.SessionCreated{Session: d.buildSessionInfo(session)})
}

func (d *Daemon) handleAttachSession(c *ConnState, m wire.AttachSession) Result {
	session, err := d.tree.GetSession(m.ID)
	if err != nil {
		return errorResult(wire.ErrSessionNotFound, "session not found", nil)
	}
	d.clients.Attach(c.RegistryID, session.ID)
	if session.ActiveWindow != nil {
		d.recordFocus(c, &session.ID, session.ActiveWindow, nil)
	}
	return response(d.buildAttached(session))
}

func (d *Daemon) handleDestroySession(c *ConnState, m wire.DestroySession) Result {
	result := d.arb.Check(c.Actor(), arbitrate.SessionResource(m.ID), arbitrate.ActionKill)
	if !result.Allowed {
		return arbitrationErrorResult(result)
	}
	if err := d.destroySession(m.ID); err != nil {
		return errorResult(wire.ErrInternalError, err.Error(), nil)
	}
	return responseWithGlobalBroadcast(wire.SessionEnded{SessionID: m.ID}, wire.SessionEnded{SessionID: m.ID})
}

func (d *Daemon) handleCreateWindow(m wire.CreateWindow) Result {
	window, err := d.tree.CreateWindow(m.SessionID, m.Name)
	if err != nil {
		return errorResult(wire.ErrSessionNotFound, err.Error(), nil)
	}
	msg := wire.WindowCreated{Window: buildWindowInfo(window), ShouldFocus: true}
	return responseWithBroadcast(msg, m.SessionID, msg)
}

func (d *Daemon) handleCreatePane(m wire.CreatePane) Result {
	_, window, err := d.tree.FindWindow(m.WindowID)
	if err != nil {
		return errorResult(wire.ErrWindowNotFound, err.Error(), nil)
	}
	if err := d.createAndSpawnPane(window, nil, "", nil); err != nil {
		return errorResult(wire.ErrInternalError, err.Error(), nil)
	}
	return noResponse()
}

// handleSplitPane is the functional equivalent of a declarative
// CreatePaneWithOptions request: the wire protocol expresses a new,
// explicitly configured pane as a split off an existing one rather than
// a separate message kind.
func (d *Daemon) handleSplitPane(c *ConnState, m wire.SplitPane) Result {
	result := d.arb.Check(c.Actor(), arbitrate.PaneResource(m.PaneID), arbitrate.ActionLayout)
	if !result.Allowed {
		return arbitrationErrorResult(result)
	}

	session, window, pane, err := d.tree.FindPane(m.PaneID)
	if err != nil {
		return errorResult(wire.ErrPaneNotFound, err.Error(), nil)
	}

	var command []string
	if m.Command != "" {
		command = []string{"/bin/sh", "-c", m.Command}
	}
	cwd := m.Cwd
	if cwd == "" {
		cwd = pane.Cwd
	}

	newPane, err := d.tree.CreatePane(window.ID, d.scrollbackMax())
	if err != nil {
		return errorResult(wire.ErrInternalError, err.Error(), nil)
	}
	newPane.Cols, newPane.Rows = pane.Cols, pane.Rows

	if err := d.spawnPane(session, window, newPane, spawnConfig{Command: command, Cwd: cwd, Env: session.Environment}); err != nil {
		d.tree.RemovePane(newPane.ID)
		return errorResult(wire.ErrInternalError, err.Error(), nil)
	}

	if m.Select {
		_ = d.tree.SetActivePane(window.ID, newPane.ID)
	}

	if c.Actor().Human {
		d.arb.RecordActivity(arbitrate.PaneResource(m.PaneID), arbitrate.ActionLayout)
	}

	msg := d.wirePaneCreated(newPane, m.Direction, m.Select)
	return responseWithBroadcast(msg, session.ID, msg)
}

// handleCreateMirror creates a pane in m.WindowID that subscribes to
// m.SourcePaneID's output stream instead of owning its own PTY, per
// spec.md §4.11. Creating one is a layout mutation like handleSplitPane,
// so it is checked and recorded the same way.
func (d *Daemon) handleCreateMirror(c *ConnState, m wire.CreateMirror) Result {
	_, _, sourcePane, err := d.tree.FindPane(m.SourcePaneID)
	if err != nil {
		return errorResult(wire.ErrPaneNotFound, err.Error(), nil)
	}
	session, window, err := d.tree.FindWindow(m.WindowID)
	if err != nil {
		return errorResult(wire.ErrWindowNotFound, err.Error(), nil)
	}

	result := d.arb.Check(c.Actor(), arbitrate.WindowResource(window.ID), arbitrate.ActionLayout)
	if !result.Allowed {
		return arbitrationErrorResult(result)
	}

	newPane, err := d.tree.CreatePane(window.ID, d.scrollbackMax())
	if err != nil {
		return errorResult(wire.ErrInternalError, err.Error(), nil)
	}
	newPane.Cols, newPane.Rows = sourcePane.Cols, sourcePane.Rows
	newPane.Title = sourcePane.Title
	newPane.IsMirror = true
	sourceID := m.SourcePaneID
	newPane.MirrorSourceID = &sourceID

	if !d.mirrors.Register(sourceID, newPane.ID) {
		d.tree.RemovePane(newPane.ID)
		return errorResult(wire.ErrInvalidOperation, "pane is already a mirror", nil)
	}

	if c.Actor().Human {
		d.arb.RecordActivity(arbitrate.WindowResource(window.ID), arbitrate.ActionLayout)
	}

	msg := d.wirePaneCreated(newPane, "", false)
	return responseWithBroadcast(msg, session.ID, msg)
}

func (d *Daemon) handleClosePane(c *ConnState, m wire.ClosePane) Result {
	result := d.arb.Check(c.Actor(), arbitrate.PaneResource(m.PaneID), arbitrate.ActionKill)
	if !result.Allowed {
		return arbitrationErrorResult(result)
	}
	if err := d.closePane(m.PaneID); err != nil {
		return errorResult(wire.ErrPaneNotFound, err.Error(), nil)
	}
	return noResponse()
}

func (d *Daemon) handleCloseWindow(c *ConnState, m wire.CloseWindow) Result {
	result := d.arb.Check(c.Actor(), arbitrate.WindowResource(m.WindowID), arbitrate.ActionKill)
	if !result.Allowed {
		return arbitrationErrorResult(result)
	}
	if err := d.closeWindow(m.WindowID); err != nil {
		return errorResult(wire.ErrWindowNotFound, err.Error(), nil)
	}
	return noResponse()
}

func (d *Daemon) handleSelectPane(c *ConnState, m wire.SelectPane) Result {
	result := d.arb.Check(c.Actor(), arbitrate.PaneResource(m.PaneID), arbitrate.ActionFocus)
	if !result.Allowed {
		return arbitrationErrorResult(result)
	}
	_, window, err := d.tree.FindPane(m.PaneID)
	if err != nil {
		return errorResult(wire.ErrPaneNotFound, err.Error(), nil)
	}
	if err := d.tree.SetActivePane(window.ID, m.PaneID); err != nil {
		return errorResult(wire.ErrInternalError, err.Error(), nil)
	}
	d.recordFocus(c, &window.SessionID, &window.ID, &m.PaneID)
	return noResponse()
}

func (d *Daemon) handleSelectWindow(c *ConnState, m wire.SelectWindow) Result {
	result := d.arb.Check(c.Actor(), arbitrate.WindowResource(m.WindowID), arbitrate.ActionFocus)
	if !result.Allowed {
		return arbitrationErrorResult(result)
	}
	session, _, err := d.tree.FindWindow(m.WindowID)
	if err != nil {
		return errorResult(wire.ErrWindowNotFound, err.Error(), nil)
	}
	if err := d.tree.SetActiveWindow(session.ID, m.WindowID); err != nil {
		return errorResult(wire.ErrInternalError, err.Error(), nil)
	}
	d.recordFocus(c, &session.ID, &m.WindowID, nil)
	return noResponse()
}

func (d *Daemon) handleSelectSession(c *ConnState, m wire.SelectSession) Result {
	result := d.arb.Check(c.Actor(), arbitrate.SessionResource(m.SessionID), arbitrate.ActionFocus)
	if !result.Allowed {
		return arbitrationErrorResult(result)
	}
	session, err := d.tree.GetSession(m.SessionID)
	if err != nil {
		return errorResult(wire.ErrSessionNotFound, err.Error(), nil)
	}
	d.clients.Attach(c.RegistryID, session.ID)
	d.recordFocus(c, &session.ID, session.ActiveWindow, nil)
	return noResponse()
}

func (d *Daemon) handleInput(c *ConnState, m wire.Input) Result {
	if _, _, _, err := d.tree.FindPane(m.PaneID); err != nil {
		return errorResult(wire.ErrPaneNotFound, err.Error(), nil)
	}
	actor := c.Actor()
	result := d.arb.Check(actor, arbitrate.PaneResource(m.PaneID), arbitrate.ActionInput)
	if !result.Allowed {
		return arbitrationErrorResult(result)
	}
	if _, err := d.pty.Write(m.PaneID, m.Data); err != nil {
		return errorResult(wire.ErrInternalError, err.Error(), nil)
	}
	if actor.Human {
		d.arb.RecordActivity(arbitrate.PaneResource(m.PaneID), arbitrate.ActionInput)
	}
	return noResponse()
}

func (d *Daemon) handlePaste(c *ConnState, m wire.Paste) Result {
	pr, ok := d.paneRuntimeOf(m.PaneID)
	if !ok {
		return errorResult(wire.ErrPaneNotFound, "pane not found", nil)
	}
	actor := c.Actor()
	result := d.arb.Check(actor, arbitrate.PaneResource(m.PaneID), arbitrate.ActionInput)
	if !result.Allowed {
		return arbitrationErrorResult(result)
	}

	payload := m.Data
	if pr.vt.BracketedPaste() {
		payload = vtstate.WrapPaste(payload)
	}
	if _, err := d.pty.Write(m.PaneID, payload); err != nil {
		return errorResult(wire.ErrInternalError, err.Error(), nil)
	}
	if actor.Human {
		d.arb.RecordActivity(arbitrate.PaneResource(m.PaneID), arbitrate.ActionInput)
	}
	return noResponse()
}

func (d *Daemon) handleResize(m wire.Resize) Result {
	_, _, pane, err := d.tree.FindPane(m.PaneID)
	if err != nil {
		return errorResult(wire.ErrPaneNotFound, err.Error(), nil)
	}
	if err := d.pty.Resize(m.PaneID, m.Cols, m.Rows); err != nil {
		return errorResult(wire.ErrInternalError, err.Error(), nil)
	}
	pane.Cols, pane.Rows = m.Cols, m.Rows
	return noResponse()
}

func (d *Daemon) handleSetViewportOffset(m wire.SetViewportOffset) Result {
	_, _, pane, err := d.tree.FindPane(m.PaneID)
	if err != nil {
		return errorResult(wire.ErrPaneNotFound, err.Error(), nil)
	}
	pane.Scrollback.SetViewportOffset(m.Offset)
	return noResponse()
}

func (d *Daemon) handleJumpToBottom(m wire.JumpToBottom) Result {
	_, _, pane, err := d.tree.FindPane(m.PaneID)
	if err != nil {
		return errorResult(wire.ErrPaneNotFound, err.Error(), nil)
	}
	pane.Scrollback.JumpToBottom()
	return noResponse()
}

func (d *Daemon) handleReply(m wire.Reply) Result {
	target := reply.Target{PaneID: m.Target.PaneID, Name: m.Target.Name}
	_, _, pane, err := reply.Resolve(d.tree, target)
	if err != nil {
		return errorResult(wire.ErrPaneNotFound, err.Error(), nil)
	}

	pr, ok := d.paneRuntimeOf(pane.ID)
	if !ok {
		return errorResult(wire.ErrNotAwaitingInput, reply.ErrNotAwaitingInput.Error(), nil)
	}
	state, hasState := pr.agents.ActiveState()
	if !hasState || !reply.AwaitingInput(pane, state.Activity) {
		return errorResult(wire.ErrNotAwaitingInput, reply.ErrNotAwaitingInput.Error(), nil)
	}

	n, err := d.pty.Write(pane.ID, []byte(m.Content+"\n"))
	if err != nil {
		return errorResult(wire.ErrInternalError, err.Error(), nil)
	}
	return response(wire.ReplyDelivered{PaneID: pane.ID, BytesWritten: n})
}

func (d *Daemon) handleReadPane(m wire.ReadPane) Result {
	_, _, pane, err := d.tree.FindPane(m.PaneID)
	if err != nil {
		return errorResult(wire.ErrPaneNotFound, err.Error(), nil)
	}
	return response(wire.PaneContent{PaneID: pane.ID, Content: pane.Scrollback.Last(m.Lines)})
}

func (d *Daemon) handleListAllPanes(m wire.ListAllPanes) Result {
	var sessions []*tree.Session
	if m.SessionFilter != nil {
		s, err := d.tree.GetSession(*m.SessionFilter)
		if err != nil {
			return errorResult(wire.ErrSessionNotFound, err.Error(), nil)
		}
		sessions = []*tree.Session{s}
	} else {
		sessions = d.tree.ListSessions()
	}

	var panes []wire.PaneInfo
	for _, s := range sessions {
		for _, wid := range s.WindowOrder {
			w := s.Windows[wid]
			for _, pid := range w.PaneOrder {
				panes = append(panes, d.buildPaneInfo(w.Panes[pid]))
			}
		}
	}
	return response(wire.PaneList{Panes: panes})
}

func (d *Daemon) handleSetEnvironment(m wire.SetEnvironment) Result {
	session, err := d.tree.GetSession(m.SessionID)
	if err != nil {
		return errorResult(wire.ErrSessionNotFound, err.Error(), nil)
	}
	session.Environment[m.Key] = m.Value
	return noResponse()
}

func (d *Daemon) handleGetEnvironment(m wire.GetEnvironment) Result {
	session, err := d.tree.GetSession(m.SessionID)
	if err != nil {
		return errorResult(wire.ErrSessionNotFound, err.Error(), nil)
	}
	env := make(map[string]string, len(session.Environment))
	for k, v := range session.Environment {
		env[k] = v
	}
	return response(wire.EnvironmentInfo{SessionID: session.ID, Env: env})
}

func (d *Daemon) handleUserCommandModeEntered(c *ConnState, m wire.UserCommandModeEntered) Result {
	d.arb.SetLock(c.WireID, time.Duration(m.TimeoutMs)*time.Millisecond, arbitrate.ReasonHumanControlMode)
	return noResponse()
}

func (d *Daemon) handleUserCommandModeExited(c *ConnState) Result {
	d.arb.ReleaseLock(c.WireID)
	return noResponse()
}

func (d *Daemon) handleSendOrchestration(m wire.SendOrchestration) Result {
	session := d.ensureOrchestrationSession()
	msg := wire.OrchestrationReceived{FromSessionID: session.ID, Message: m.Message}
	return responseWithGlobalBroadcast(msg, msg)
}

// OnDisconnect releases every per-connection resource: arbitration locks
// and the registry entry. Mirror cleanup for a mirror pane's own source
// happens when that source pane closes, not on viewer disconnect.
func (d *Daemon) OnDisconnect(c *ConnState) {
	d.arb.OnClientDisconnect(c.WireID)
	d.clients.Unregister(c.RegistryID)
}
