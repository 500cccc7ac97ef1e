package daemon_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianremillard/ccmux/internal/config"
	"github.com/ianremillard/ccmux/internal/daemon"
	"github.com/ianremillard/ccmux/internal/wire"
)

func newTestDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()
	d := daemon.New(config.Default(), "test")
	t.Cleanup(d.Close)
	return d
}

func connectClient(t *testing.T, d *daemon.Daemon, clientType wire.ClientType) *daemon.ConnState {
	t.Helper()
	c := &daemon.ConnState{RegistryID: 0}
	result := d.HandleMessage(c, wire.Connect{
		ClientID:        uuid.New(),
		ProtocolVersion: wire.ProtocolVersion,
		ClientType:      clientType,
	})
	require.Equal(t, daemon.KindResponse, result.Kind)
	_, ok := result.Response.(wire.Connected)
	require.True(t, ok)
	return c
}

func TestHandleConnectRejectsVersionMismatch(t *testing.T) {
	d := newTestDaemon(t)
	c := &daemon.ConnState{RegistryID: 0}

	result := d.HandleMessage(c, wire.Connect{
		ClientID:        uuid.New(),
		ProtocolVersion: wire.ProtocolVersion + 1,
		ClientType:      wire.ClientCompat,
	})

	assert.Equal(t, daemon.KindCloseConnection, result.Kind)
	errMsg, ok := result.Response.(wire.Error)
	require.True(t, ok)
	assert.Equal(t, wire.ErrProtocolMismatch, errMsg.Code)
}

func TestCreateSessionThenListSessions(t *testing.T) {
	d := newTestDaemon(t)
	c := connectClient(t, d, wire.ClientCompat)

	result := d.HandleMessage(c, wire.CreateSession{Name: "work", Command: "/bin/cat"})
	require.Equal(t, daemon.KindResponseWithGlobalBroadcast, result.Kind)
	details, ok := result.Response.(wire.SessionCreatedWithDetails)
	require.True(t, ok)
	assert.Equal(t, "work", details.SessionName)
	assert.NotEqual(t, uuid.Nil, details.PaneID)

	listResult := d.HandleMessage(c, wire.ListSessions{})
	require.Equal(t, daemon.KindResponse, listResult.Kind)
	list, ok := listResult.Response.(wire.SessionList)
	require.True(t, ok)
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, "work", list.Sessions[0].Name)
	assert.Equal(t, 1, list.Sessions[0].WindowCount)
}

func TestCreateSessionRejectsDuplicateName(t *testing.T) {
	d := newTestDaemon(t)
	c := connectClient(t, d, wire.ClientCompat)

	result := d.HandleMessage(c, wire.CreateSession{Name: "dup", Command: "/bin/cat"})
	require.Equal(t, daemon.KindResponseWithGlobalBroadcast, result.Kind)

	again := d.HandleMessage(c, wire.CreateSession{Name: "dup", Command: "/bin/cat"})
	require.Equal(t, daemon.KindResponse, again.Kind)
	errMsg, ok := again.Response.(wire.Error)
	require.True(t, ok)
	assert.Equal(t, wire.ErrSessionNameExists, errMsg.Code)
}

func TestInputAndReadPaneRoundTrip(t *testing.T) {
	d := newTestDaemon(t)
	c := connectClient(t, d, wire.ClientTUI)

	created := d.HandleMessage(c, wire.CreateSession{Name: "echo-session", Command: "/bin/cat"})
	details := created.Response.(wire.SessionCreatedWithDetails)

	inputResult := d.HandleMessage(c, wire.Input{PaneID: details.PaneID, Data: []byte("hello\n")})
	assert.Equal(t, daemon.KindNoResponse, inputResult.Kind)

	var content wire.PaneContent
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		readResult := d.HandleMessage(c, wire.ReadPane{PaneID: details.PaneID, Lines: 10})
		require.Equal(t, daemon.KindResponse, readResult.Kind)
		content = readResult.Response.(wire.PaneContent)
		if len(content.Content) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NotEmpty(t, content.Content)
	assert.Contains(t, content.Content[0], "hello")
}

func TestDestroySessionRejectsOrchestrationSession(t *testing.T) {
	d := newTestDaemon(t)
	c := connectClient(t, d, wire.ClientCompat)

	orch := d.HandleMessage(c, wire.SendOrchestration{Target: "work", Message: "ping"})
	require.Equal(t, daemon.KindResponseWithGlobalBroadcast, orch.Kind)
	received := orch.Response.(wire.OrchestrationReceived)

	result := d.HandleMessage(c, wire.DestroySession{ID: received.FromSessionID})
	require.Equal(t, daemon.KindResponse, result.Kind)
	errMsg, ok := result.Response.(wire.Error)
	require.True(t, ok)
	assert.Equal(t, wire.ErrInternalError, errMsg.Code)
}

func TestUserCommandModeBlocksAgentInput(t *testing.T) {
	d := newTestDaemon(t)
	human := connectClient(t, d, wire.ClientTUI)
	agentConn := connectClient(t, d, wire.ClientMCP)

	created := d.HandleMessage(human, wire.CreateSession{Name: "locked", Command: "/bin/cat"})
	details := created.Response.(wire.SessionCreatedWithDetails)

	lockResult := d.HandleMessage(human, wire.UserCommandModeEntered{TimeoutMs: 5000})
	assert.Equal(t, daemon.KindNoResponse, lockResult.Kind)

	blocked := d.HandleMessage(agentConn, wire.Input{PaneID: details.PaneID, Data: []byte("x")})
	require.Equal(t, daemon.KindResponse, blocked.Kind)
	errMsg, ok := blocked.Response.(wire.Error)
	require.True(t, ok)
	assert.Equal(t, wire.ErrInvalidOperation, errMsg.Code)

	exitResult := d.HandleMessage(human, wire.UserCommandModeExited{})
	assert.Equal(t, daemon.KindNoResponse, exitResult.Kind)

	allowed := d.HandleMessage(agentConn, wire.Input{PaneID: details.PaneID, Data: []byte("x")})
	assert.Equal(t, daemon.KindNoResponse, allowed.Kind)
}

func TestUserCommandModeBlocksAgentFocusAndKill(t *testing.T) {
	d := newTestDaemon(t)
	human := connectClient(t, d, wire.ClientTUI)
	agentConn := connectClient(t, d, wire.ClientMCP)

	created := d.HandleMessage(human, wire.CreateSession{Name: "locked-focus", Command: "/bin/cat"})
	details := created.Response.(wire.SessionCreatedWithDetails)

	lockResult := d.HandleMessage(human, wire.UserCommandModeEntered{TimeoutMs: 5000})
	assert.Equal(t, daemon.KindNoResponse, lockResult.Kind)

	blockedSelect := d.HandleMessage(agentConn, wire.SelectPane{ClientID: agentConn.WireID, PaneID: details.PaneID})
	require.Equal(t, daemon.KindResponse, blockedSelect.Kind)
	errMsg, ok := blockedSelect.Response.(wire.Error)
	require.True(t, ok)
	assert.Equal(t, wire.ErrInvalidOperation, errMsg.Code)

	blockedClose := d.HandleMessage(agentConn, wire.ClosePane{PaneID: details.PaneID})
	require.Equal(t, daemon.KindResponse, blockedClose.Kind)
	errMsg, ok = blockedClose.Response.(wire.Error)
	require.True(t, ok)
	assert.Equal(t, wire.ErrInvalidOperation, errMsg.Code)

	blockedDestroy := d.HandleMessage(agentConn, wire.DestroySession{ID: details.SessionID})
	require.Equal(t, daemon.KindResponse, blockedDestroy.Kind)
	errMsg, ok = blockedDestroy.Response.(wire.Error)
	require.True(t, ok)
	assert.Equal(t, wire.ErrInvalidOperation, errMsg.Code)

	exitResult := d.HandleMessage(human, wire.UserCommandModeExited{})
	assert.Equal(t, daemon.KindNoResponse, exitResult.Kind)

	allowedSelect := d.HandleMessage(agentConn, wire.SelectPane{ClientID: agentConn.WireID, PaneID: details.PaneID})
	assert.Equal(t, daemon.KindNoResponse, allowedSelect.Kind)
}

// TestSidebandFocusBlockedDuringHumanLock exercises the same agent
// process issuing a focus command over its own sideband channel (a
// "ccmux:focus" OSC sequence /bin/cat echoes straight back to its own
// output), confirming it is blocked while a human holds the command-mode
// lock and takes effect once the lock is released.
func TestSidebandFocusBlockedDuringHumanLock(t *testing.T) {
	d := newTestDaemon(t)
	human := connectClient(t, d, wire.ClientTUI)

	created := d.HandleMessage(human, wire.CreateSession{Name: "sideband-focus", Command: "/bin/cat"})
	details := created.Response.(wire.SessionCreatedWithDetails)

	paneResult := d.HandleMessage(human, wire.CreatePane{WindowID: details.WindowID})
	require.Equal(t, daemon.KindNoResponse, paneResult.Kind)

	listResult := d.HandleMessage(human, wire.ListAllPanes{SessionFilter: &details.SessionID})
	panes := listResult.Response.(wire.PaneList).Panes
	require.Len(t, panes, 2)
	var p2 uuid.UUID
	for _, p := range panes {
		if p.ID != details.PaneID {
			p2 = p.ID
		}
	}
	require.NotEqual(t, uuid.Nil, p2)

	activePane := func() *uuid.UUID {
		attach := d.HandleMessage(human, wire.AttachSession{ID: details.SessionID})
		return attach.Response.(wire.Attached).Windows[0].ActivePaneID
	}

	lockResult := d.HandleMessage(human, wire.UserCommandModeEntered{TimeoutMs: 5000})
	require.Equal(t, daemon.KindNoResponse, lockResult.Kind)

	focusCmd := []byte("\x1b]ccmux:focus pane=\"" + p2.String() + "\"\x07")
	inputResult := d.HandleMessage(human, wire.Input{PaneID: details.PaneID, Data: focusCmd})
	require.Equal(t, daemon.KindNoResponse, inputResult.Kind)

	time.Sleep(300 * time.Millisecond)
	require.NotNil(t, activePane())
	assert.Equal(t, details.PaneID, *activePane(), "sideband focus must not take effect while the human lock is active")

	exitResult := d.HandleMessage(human, wire.UserCommandModeExited{})
	require.Equal(t, daemon.KindNoResponse, exitResult.Kind)

	inputResult2 := d.HandleMessage(human, wire.Input{PaneID: details.PaneID, Data: focusCmd})
	require.Equal(t, daemon.KindNoResponse, inputResult2.Kind)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ap := activePane(); ap != nil && *ap == p2 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("sideband focus command never took effect after the lock was released")
}

func TestCreateMirrorTracksSourcePane(t *testing.T) {
	d := newTestDaemon(t)
	c := connectClient(t, d, wire.ClientTUI)

	created := d.HandleMessage(c, wire.CreateSession{Name: "mirror-source", Command: "/bin/cat"})
	details := created.Response.(wire.SessionCreatedWithDetails)

	other := d.HandleMessage(c, wire.CreateWindow{SessionID: details.SessionID, Name: "watch"})
	require.Equal(t, daemon.KindResponseWithBroadcast, other.Kind)
	otherWindow := other.Response.(wire.WindowCreated).Window

	mirrorResult := d.HandleMessage(c, wire.CreateMirror{SourcePaneID: details.PaneID, WindowID: otherWindow.ID})
	require.Equal(t, daemon.KindResponseWithBroadcast, mirrorResult.Kind)
	created2, ok := mirrorResult.Response.(wire.PaneCreated)
	require.True(t, ok)
	assert.True(t, created2.Pane.IsMirror)
	require.NotNil(t, created2.Pane.MirrorOf)
	assert.Equal(t, details.PaneID, *created2.Pane.MirrorOf)
	assert.Equal(t, otherWindow.ID, created2.Pane.WindowID)
}

func TestAutoCascadeCloseWindowAndPane(t *testing.T) {
	d := newTestDaemon(t)
	c := connectClient(t, d, wire.ClientTUI)

	created := d.HandleMessage(c, wire.CreateSession{Name: "cascade", Command: "/bin/cat"})
	require.Equal(t, daemon.KindResponseWithGlobalBroadcast, created.Kind)
	details := created.Response.(wire.SessionCreatedWithDetails)
	windowID := details.WindowID
	p1 := details.PaneID

	paneResult := d.HandleMessage(c, wire.CreatePane{WindowID: windowID})
	require.Equal(t, daemon.KindNoResponse, paneResult.Kind)

	listResult := d.HandleMessage(c, wire.ListAllPanes{SessionFilter: &details.SessionID})
	require.Equal(t, daemon.KindResponse, listResult.Kind)
	panes := listResult.Response.(wire.PaneList).Panes
	require.Len(t, panes, 2)
	var p2 uuid.UUID
	for _, p := range panes {
		if p.ID != p1 {
			p2 = p.ID
		}
	}
	require.NotEqual(t, uuid.Nil, p2)

	selectResult := d.HandleMessage(c, wire.SelectPane{ClientID: c.WireID, PaneID: p2})
	assert.Equal(t, daemon.KindNoResponse, selectResult.Kind)

	closeP2 := d.HandleMessage(c, wire.ClosePane{PaneID: p2})
	require.Equal(t, daemon.KindNoResponse, closeP2.Kind)

	attachResult := d.HandleMessage(c, wire.AttachSession{ID: details.SessionID})
	require.Equal(t, daemon.KindResponse, attachResult.Kind)
	attached := attachResult.Response.(wire.Attached)
	require.Len(t, attached.Windows, 1)
	require.Len(t, attached.Panes, 1)
	assert.Equal(t, p1, attached.Panes[0].ID)
	assert.Equal(t, 0, attached.Panes[0].Index)
	require.NotNil(t, attached.Windows[0].ActivePaneID)
	assert.Equal(t, p1, *attached.Windows[0].ActivePaneID)

	closeWindow := d.HandleMessage(c, wire.CloseWindow{WindowID: windowID})
	require.Equal(t, daemon.KindNoResponse, closeWindow.Kind)

	listSessions := d.HandleMessage(c, wire.ListSessions{})
	require.Equal(t, daemon.KindResponse, listSessions.Kind)
	sessions := listSessions.Response.(wire.SessionList).Sessions
	require.Len(t, sessions, 1)
	assert.Equal(t, 0, sessions[0].WindowCount)

	again := d.HandleMessage(c, wire.CloseWindow{WindowID: windowID})
	require.Equal(t, daemon.KindResponse, again.Kind)
	errMsg, ok := again.Response.(wire.Error)
	require.True(t, ok)
	assert.Equal(t, wire.ErrWindowNotFound, errMsg.Code)
}

func TestBracketedPasteRewrapsPayload(t *testing.T) {
	d := newTestDaemon(t)
	c := connectClient(t, d, wire.ClientTUI)

	created := d.HandleMessage(c, wire.CreateSession{Name: "paste-session", Command: "/bin/cat"})
	details := created.Response.(wire.SessionCreatedWithDetails)

	// /bin/cat echoes stdin straight back to its own stdout, so feeding
	// the bracketed-paste enable sequence as Input makes it come back as
	// PTY output and update the pane's vt tracker the same way a real
	// program requesting bracketed-paste mode would. The trailing
	// newline flushes it out of the pipeline's pending-line buffer so
	// ReadPane can observe it, which happens only after pr.vt.Feed has
	// already run on the same chunk.
	enable := d.HandleMessage(c, wire.Input{PaneID: details.PaneID, Data: []byte("\x1b[?2004h\n")})
	assert.Equal(t, daemon.KindNoResponse, enable.Kind)

	waitForLineContaining := func(substr string) string {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			readResult := d.HandleMessage(c, wire.ReadPane{PaneID: details.PaneID, Lines: 10})
			require.Equal(t, daemon.KindResponse, readResult.Kind)
			content := readResult.Response.(wire.PaneContent)
			for _, line := range content.Content {
				if strings.Contains(line, substr) {
					return line
				}
			}
			time.Sleep(20 * time.Millisecond)
		}
		t.Fatalf("timed out waiting for pane output containing %q", substr)
		return ""
	}
	waitForLineContaining("2004h")

	pasteResult := d.HandleMessage(c, wire.Paste{PaneID: details.PaneID, Data: []byte("abc\n")})
	require.Equal(t, daemon.KindNoResponse, pasteResult.Kind)

	pasted := waitForLineContaining("abc")
	assert.Contains(t, pasted, "\x1b[200~", "bracketed-paste start marker must wrap the pasted bytes")
}

func TestGetAndSetEnvironment(t *testing.T) {
	d := newTestDaemon(t)
	c := connectClient(t, d, wire.ClientCompat)

	created := d.HandleMessage(c, wire.CreateSession{Name: "envtest", Command: "/bin/cat"})
	details := created.Response.(wire.SessionCreatedWithDetails)

	setResult := d.HandleMessage(c, wire.SetEnvironment{SessionID: details.SessionID, Key: "FOO", Value: "bar"})
	assert.Equal(t, daemon.KindNoResponse, setResult.Kind)

	getResult := d.HandleMessage(c, wire.GetEnvironment{SessionID: details.SessionID})
	require.Equal(t, daemon.KindResponse, getResult.Kind)
	info, ok := getResult.Response.(wire.EnvironmentInfo)
	require.True(t, ok)
	assert.Equal(t, "bar", info.Env["FOO"])
}
