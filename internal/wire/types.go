// Package wire defines the client/server message protocol exchanged over
// the daemon's length-prefixed binary frames, and the codec that encodes
// and decodes them.
//
// The wire protocol is a tagged union on both directions. Go has no
// algebraic data types, so each direction is represented as an interface
// with a private marker method, and the codec wraps the concrete struct in
// a {"kind": ..., "payload": ...} envelope before framing it — the
// representation this protocol's design notes call out for target
// languages without ADTs.
package wire

import "github.com/google/uuid"

// ClientType identifies what kind of program is on the other end of a
// connection, used to bias arbitration policy and bridge behavior.
type ClientType string

const (
	ClientTUI     ClientType = "tui"
	ClientMCP     ClientType = "mcp"
	ClientCompat  ClientType = "compat"
	ClientUnknown ClientType = "unknown"
)

// ProtocolVersion is bumped whenever a wire-incompatible change is made.
const ProtocolVersion = 1

// ClientMessage is the tagged union of messages a client may send.
type ClientMessage interface {
	clientMessage()
}

// ServerMessage is the tagged union of messages the daemon may send.
type ServerMessage interface {
	serverMessage()
}

// --- Client messages ---

type Connect struct {
	ClientID        uuid.UUID  `json:"client_id"`
	ProtocolVersion int        `json:"protocol_version"`
	ClientType      ClientType `json:"client_type"`
}

type Ping struct{}

type Sync struct{}

type Detach struct{}

type ListSessions struct{}

type CreateSession struct {
	Name    string `json:"name"`
	Command string `json:"command,omitempty"`
}

type CreateSessionWithOptions struct {
	Name    string            `json:"name"`
	Command string            `json:"command,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Tags    []string          `json:"tags,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

type AttachSession struct {
	ID uuid.UUID `json:"id"`
}

type DestroySession struct {
	ID uuid.UUID `json:"id"`
}

type CreateWindow struct {
	SessionID uuid.UUID `json:"session_id"`
	Name      string    `json:"name"`
}

// SplitDirection is the axis a new pane is created along.
type SplitDirection string

const (
	SplitVertical   SplitDirection = "vertical"
	SplitHorizontal SplitDirection = "horizontal"
)

type CreatePane struct {
	WindowID  uuid.UUID      `json:"window_id"`
	Direction SplitDirection `json:"direction"`
}

type SplitPane struct {
	PaneID    uuid.UUID      `json:"pane_id"`
	Direction SplitDirection `json:"direction"`
	Ratio     float64        `json:"ratio,omitempty"`
	Command   string         `json:"command,omitempty"`
	Cwd       string         `json:"cwd,omitempty"`
	Select    bool           `json:"select,omitempty"`
}

type ClosePane struct {
	PaneID uuid.UUID `json:"pane_id"`
}

type CloseWindow struct {
	WindowID uuid.UUID `json:"window_id"`
}

// CreateMirror creates a new pane in windowID that is a pure subscriber
// to sourcePaneID's output stream rather than its own PTY, per spec.md
// §4.11.
type CreateMirror struct {
	SourcePaneID uuid.UUID `json:"source_pane_id"`
	WindowID     uuid.UUID `json:"window_id"`
}

type SelectPane struct {
	ClientID uuid.UUID `json:"client_id"`
	PaneID   uuid.UUID `json:"pane_id"`
}

type SelectWindow struct {
	ClientID uuid.UUID `json:"client_id"`
	WindowID uuid.UUID `json:"window_id"`
}

type SelectSession struct {
	ClientID  uuid.UUID `json:"client_id"`
	SessionID uuid.UUID `json:"session_id"`
}

type Input struct {
	PaneID uuid.UUID `json:"pane_id"`
	Data   []byte    `json:"data"`
}

type Paste struct {
	PaneID uuid.UUID `json:"pane_id"`
	Data   []byte    `json:"data"`
}

type Resize struct {
	PaneID uuid.UUID `json:"pane_id"`
	Cols   int       `json:"cols"`
	Rows   int       `json:"rows"`
}

type SetViewportOffset struct {
	PaneID uuid.UUID `json:"pane_id"`
	Offset int        `json:"offset"`
}

type JumpToBottom struct {
	PaneID uuid.UUID `json:"pane_id"`
}

// ReplyTarget identifies the pane a Reply should be routed to, either by
// UUID or by its title ("name").
type ReplyTarget struct {
	PaneID *uuid.UUID `json:"pane_id,omitempty"`
	Name   string     `json:"name,omitempty"`
}

type Reply struct {
	Target  ReplyTarget `json:"target"`
	Content string      `json:"content"`
}

type ReadPane struct {
	PaneID uuid.UUID `json:"pane_id"`
	Lines  int       `json:"lines"`
}

type ListAllPanes struct {
	SessionFilter *uuid.UUID `json:"session_filter,omitempty"`
}

type SetEnvironment struct {
	SessionID uuid.UUID `json:"session_id"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
}

type GetEnvironment struct {
	SessionID uuid.UUID `json:"session_id"`
}

type UserCommandModeEntered struct {
	TimeoutMs uint32 `json:"timeout_ms"`
}

type UserCommandModeExited struct{}

type SendOrchestration struct {
	Target  string `json:"target"`
	Message string `json:"message"`
}

func (Connect) clientMessage()                  {}
func (Ping) clientMessage()                      {}
func (Sync) clientMessage()                      {}
func (Detach) clientMessage()                    {}
func (ListSessions) clientMessage()              {}
func (CreateSession) clientMessage()             {}
func (CreateSessionWithOptions) clientMessage()  {}
func (AttachSession) clientMessage()             {}
func (DestroySession) clientMessage()            {}
func (CreateWindow) clientMessage()              {}
func (CreatePane) clientMessage()                {}
func (SplitPane) clientMessage()                 {}
func (ClosePane) clientMessage()                 {}
func (CloseWindow) clientMessage()               {}
func (CreateMirror) clientMessage()              {}
func (SelectPane) clientMessage()                {}
func (SelectWindow) clientMessage()              {}
func (SelectSession) clientMessage()             {}
func (Input) clientMessage()                     {}
func (Paste) clientMessage()                     {}
func (Resize) clientMessage()                    {}
func (SetViewportOffset) clientMessage()         {}
func (JumpToBottom) clientMessage()              {}
func (Reply) clientMessage()                     {}
func (ReadPane) clientMessage()                  {}
func (ListAllPanes) clientMessage()              {}
func (SetEnvironment) clientMessage()            {}
func (GetEnvironment) clientMessage()            {}
func (UserCommandModeEntered) clientMessage()    {}
func (UserCommandModeExited) clientMessage()     {}
func (SendOrchestration) clientMessage()         {}

// --- Server messages ---

type Connected struct {
	ServerVersion   string `json:"server_version"`
	ProtocolVersion int    `json:"protocol_version"`
}

type Pong struct{}

type SessionInfo struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	CreatedAt       int64     `json:"created_at"`
	WindowCount     int       `json:"window_count"`
	AttachedClients int       `json:"attached_clients"`
}

type SessionList struct {
	Sessions []SessionInfo `json:"sessions"`
}

type WindowInfo struct {
	ID           uuid.UUID  `json:"id"`
	SessionID    uuid.UUID  `json:"session_id"`
	Name         string     `json:"name"`
	Index        int        `json:"index"`
	PaneCount    int        `json:"pane_count"`
	ActivePaneID *uuid.UUID `json:"active_pane_id,omitempty"`
}

// PaneState is the tagged terminal-state-machine value of a pane.
type PaneState struct {
	Kind     string `json:"kind"` // "normal" | "agent" | "exited"
	Agent    string `json:"agent,omitempty"`
	ExitCode int    `json:"exit_code,omitempty"`
}

type PaneInfo struct {
	ID          uuid.UUID `json:"id"`
	WindowID    uuid.UUID `json:"window_id"`
	Index       int       `json:"index"`
	Cols        int       `json:"cols"`
	Rows        int       `json:"rows"`
	State       PaneState `json:"state"`
	Title       string    `json:"title,omitempty"`
	Cwd         string    `json:"cwd,omitempty"`
	StuckStatus bool      `json:"stuck_status,omitempty"`
	IsMirror    bool       `json:"is_mirror,omitempty"`
	MirrorOf    *uuid.UUID `json:"mirror_of,omitempty"`
}

type Attached struct {
	Session SessionInfo  `json:"session"`
	Windows []WindowInfo `json:"windows"`
	Panes   []PaneInfo   `json:"panes"`
}

type SessionCreated struct {
	Session SessionInfo `json:"session"`
}

type SessionCreatedWithDetails struct {
	SessionID   uuid.UUID `json:"session_id"`
	SessionName string    `json:"session_name"`
	WindowID    uuid.UUID `json:"window_id"`
	PaneID      uuid.UUID `json:"pane_id"`
	ShouldFocus bool      `json:"should_focus"`
}

type WindowCreated struct {
	Window      WindowInfo `json:"window"`
	ShouldFocus bool       `json:"should_focus"`
}

type PaneCreated struct {
	Pane        PaneInfo       `json:"pane"`
	Direction   SplitDirection `json:"direction,omitempty"`
	ShouldFocus bool           `json:"should_focus"`
}

type Output struct {
	PaneID uuid.UUID `json:"pane_id"`
	Data   []byte    `json:"data"`
}

type PaneStateChanged struct {
	PaneID uuid.UUID `json:"pane_id"`
	State  PaneState `json:"state"`
}

// AgentActivity is the activity half of an agent state record.
type AgentActivity struct {
	Kind   string `json:"kind"` // idle|processing|generating|tool_use|awaiting_confirmation|custom
	Custom string `json:"custom,omitempty"`
}

type AgentState struct {
	AgentType string                 `json:"agent_type"`
	Activity  AgentActivity          `json:"activity"`
	SessionID string                 `json:"session_id,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type AgentStateChanged struct {
	PaneID uuid.UUID  `json:"pane_id"`
	State  AgentState `json:"state"`
}

type ViewportUpdated struct {
	PaneID uuid.UUID `json:"pane_id"`
	Offset int       `json:"offset"`
}

type PaneClosed struct {
	PaneID   uuid.UUID `json:"pane_id"`
	ExitCode int       `json:"exit_code"`
}

type WindowClosed struct {
	WindowID uuid.UUID `json:"window_id"`
}

type SessionEnded struct {
	SessionID uuid.UUID `json:"session_id"`
}

type PaneContent struct {
	PaneID  uuid.UUID `json:"pane_id"`
	Content []string  `json:"content"`
}

type PaneList struct {
	Panes []PaneInfo `json:"panes"`
}

type EnvironmentInfo struct {
	SessionID uuid.UUID         `json:"session_id"`
	Env       map[string]string `json:"env"`
}

type ReplyDelivered struct {
	PaneID       uuid.UUID `json:"pane_id"`
	BytesWritten int       `json:"bytes_written"`
}

type OrchestrationReceived struct {
	FromSessionID uuid.UUID `json:"from_session_id"`
	Message       string    `json:"message"`
}

// ErrorCode is the closed set of wire-visible error codes.
type ErrorCode string

const (
	ErrProtocolMismatch  ErrorCode = "protocol_mismatch"
	ErrInvalidMessage    ErrorCode = "invalid_message"
	ErrSessionNotFound   ErrorCode = "session_not_found"
	ErrWindowNotFound    ErrorCode = "window_not_found"
	ErrPaneNotFound      ErrorCode = "pane_not_found"
	ErrNotAwaitingInput  ErrorCode = "not_awaiting_input"
	ErrInvalidOperation  ErrorCode = "invalid_operation"
	ErrSessionNameExists ErrorCode = "session_name_exists"
	ErrInternalError     ErrorCode = "internal_error"
)

type Error struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (Connected) serverMessage()                 {}
func (Pong) serverMessage()                       {}
func (SessionList) serverMessage()                {}
func (Attached) serverMessage()                   {}
func (SessionCreated) serverMessage()             {}
func (SessionCreatedWithDetails) serverMessage()  {}
func (WindowCreated) serverMessage()              {}
func (PaneCreated) serverMessage()                {}
func (Output) serverMessage()                     {}
func (PaneStateChanged) serverMessage()           {}
func (AgentStateChanged) serverMessage()          {}
func (ViewportUpdated) serverMessage()            {}
func (PaneClosed) serverMessage()                 {}
func (WindowClosed) serverMessage()               {}
func (SessionEnded) serverMessage()               {}
func (PaneContent) serverMessage()                {}
func (PaneList) serverMessage()                   {}
func (EnvironmentInfo) serverMessage()            {}
func (ReplyDelivered) serverMessage()             {}
func (OrchestrationReceived) serverMessage()      {}
func (Error) serverMessage()                      {}
