package wire

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeClient serializes a client message to its wire representation
// (without the length-prefix framing; see Frame for that).
func EncodeClient(msg ClientMessage) ([]byte, error) {
	kind, err := clientKind(msg)
	if err != nil {
		return nil, err
	}
	return encodeEnvelope(kind, msg)
}

// DecodeClient parses a client message from its wire representation.
func DecodeClient(data []byte) (ClientMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("wire: decode envelope: %w", err)
	}
	switch env.Kind {
	case "connect":
		var m Connect
		return m, unmarshalPayload(env.Payload, &m)
	case "ping":
		return Ping{}, nil
	case "sync":
		return Sync{}, nil
	case "detach":
		return Detach{}, nil
	case "list_sessions":
		return ListSessions{}, nil
	case "create_session":
		var m CreateSession
		return m, unmarshalPayload(env.Payload, &m)
	case "create_session_with_options":
		var m CreateSessionWithOptions
		return m, unmarshalPayload(env.Payload, &m)
	case "attach_session":
		var m AttachSession
		return m, unmarshalPayload(env.Payload, &m)
	case "destroy_session":
		var m DestroySession
		return m, unmarshalPayload(env.Payload, &m)
	case "create_window":
		var m CreateWindow
		return m, unmarshalPayload(env.Payload, &m)
	case "create_pane":
		var m CreatePane
		return m, unmarshalPayload(env.Payload, &m)
	case "split_pane":
		var m SplitPane
		return m, unmarshalPayload(env.Payload, &m)
	case "close_pane":
		var m ClosePane
		return m, unmarshalPayload(env.Payload, &m)
	case "close_window":
		var m CloseWindow
		return m, unmarshalPayload(env.Payload, &m)
	case "create_mirror":
		var m CreateMirror
		return m, unmarshalPayload(env.Payload, &m)
	case "select_pane":
		var m SelectPane
		return m, unmarshalPayload(env.Payload, &m)
	case "select_window":
		var m SelectWindow
		return m, unmarshalPayload(env.Payload, &m)
	case "select_session":
		var m SelectSession
		return m, unmarshalPayload(env.Payload, &m)
	case "input":
		var m Input
		return m, unmarshalPayload(env.Payload, &m)
	case "paste":
		var m Paste
		return m, unmarshalPayload(env.Payload, &m)
	case "resize":
		var m Resize
		return m, unmarshalPayload(env.Payload, &m)
	case "set_viewport_offset":
		var m SetViewportOffset
		return m, unmarshalPayload(env.Payload, &m)
	case "jump_to_bottom":
		var m JumpToBottom
		return m, unmarshalPayload(env.Payload, &m)
	case "reply":
		var m Reply
		return m, unmarshalPayload(env.Payload, &m)
	case "read_pane":
		var m ReadPane
		return m, unmarshalPayload(env.Payload, &m)
	case "list_all_panes":
		var m ListAllPanes
		return m, unmarshalPayload(env.Payload, &m)
	case "set_environment":
		var m SetEnvironment
		return m, unmarshalPayload(env.Payload, &m)
	case "get_environment":
		var m GetEnvironment
		return m, unmarshalPayload(env.Payload, &m)
	case "user_command_mode_entered":
		var m UserCommandModeEntered
		return m, unmarshalPayload(env.Payload, &m)
	case "user_command_mode_exited":
		return UserCommandModeExited{}, nil
	case "send_orchestration":
		var m SendOrchestration
		return m, unmarshalPayload(env.Payload, &m)
	default:
		return nil, fmt.Errorf("wire: unknown client message kind %q", env.Kind)
	}
}

func clientKind(msg ClientMessage) (string, error) {
	switch msg.(type) {
	case Connect:
		return "connect", nil
	case Ping:
		return "ping", nil
	case Sync:
		return "sync", nil
	case Detach:
		return "detach", nil
	case ListSessions:
		return "list_sessions", nil
	case CreateSession:
		return "create_session", nil
	case CreateSessionWithOptions:
		return "create_session_with_options", nil
	case AttachSession:
		return "attach_session", nil
	case DestroySession:
		return "destroy_session", nil
	case CreateWindow:
		return "create_window", nil
	case CreatePane:
		return "create_pane", nil
	case SplitPane:
		return "split_pane", nil
	case ClosePane:
		return "close_pane", nil
	case CloseWindow:
		return "close_window", nil
	case CreateMirror:
		return "create_mirror", nil
	case SelectPane:
		return "select_pane", nil
	case SelectWindow:
		return "select_window", nil
	case SelectSession:
		return "select_session", nil
	case Input:
		return "input", nil
	case Paste:
		return "paste", nil
	case Resize:
		return "resize", nil
	case SetViewportOffset:
		return "set_viewport_offset", nil
	case JumpToBottom:
		return "jump_to_bottom", nil
	case Reply:
		return "reply", nil
	case ReadPane:
		return "read_pane", nil
	case ListAllPanes:
		return "list_all_panes", nil
	case SetEnvironment:
		return "set_environment", nil
	case GetEnvironment:
		return "get_environment", nil
	case UserCommandModeEntered:
		return "user_command_mode_entered", nil
	case UserCommandModeExited:
		return "user_command_mode_exited", nil
	case SendOrchestration:
		return "send_orchestration", nil
	default:
		return "", fmt.Errorf("wire: unregistered client message type %T", msg)
	}
}

// EncodeServer serializes a server message to its wire representation.
func EncodeServer(msg ServerMessage) ([]byte, error) {
	kind, err := serverKind(msg)
	if err != nil {
		return nil, err
	}
	return encodeEnvelope(kind, msg)
}

// DecodeServer parses a server message from its wire representation.
func DecodeServer(data []byte) (ServerMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("wire: decode envelope: %w", err)
	}
	switch env.Kind {
	case "connected":
		var m Connected
		return m, unmarshalPayload(env.Payload, &m)
	case "pong":
		return Pong{}, nil
	case "session_list":
		var m SessionList
		return m, unmarshalPayload(env.Payload, &m)
	case "attached":
		var m Attached
		return m, unmarshalPayload(env.Payload, &m)
	case "session_created":
		var m SessionCreated
		return m, unmarshalPayload(env.Payload, &m)
	case "session_created_with_details":
		var m SessionCreatedWithDetails
		return m, unmarshalPayload(env.Payload, &m)
	case "window_created":
		var m WindowCreated
		return m, unmarshalPayload(env.Payload, &m)
	case "pane_created":
		var m PaneCreated
		return m, unmarshalPayload(env.Payload, &m)
	case "output":
		var m Output
		return m, unmarshalPayload(env.Payload, &m)
	case "pane_state_changed":
		var m PaneStateChanged
		return m, unmarshalPayload(env.Payload, &m)
	case "agent_state_changed":
		var m AgentStateChanged
		return m, unmarshalPayload(env.Payload, &m)
	case "viewport_updated":
		var m ViewportUpdated
		return m, unmarshalPayload(env.Payload, &m)
	case "pane_closed":
		var m PaneClosed
		return m, unmarshalPayload(env.Payload, &m)
	case "window_closed":
		var m WindowClosed
		return m, unmarshalPayload(env.Payload, &m)
	case "session_ended":
		var m SessionEnded
		return m, unmarshalPayload(env.Payload, &m)
	case "pane_content":
		var m PaneContent
		return m, unmarshalPayload(env.Payload, &m)
	case "pane_list":
		var m PaneList
		return m, unmarshalPayload(env.Payload, &m)
	case "environment_info":
		var m EnvironmentInfo
		return m, unmarshalPayload(env.Payload, &m)
	case "reply_delivered":
		var m ReplyDelivered
		return m, unmarshalPayload(env.Payload, &m)
	case "orchestration_received":
		var m OrchestrationReceived
		return m, unmarshalPayload(env.Payload, &m)
	case "error":
		var m Error
		return m, unmarshalPayload(env.Payload, &m)
	default:
		return nil, fmt.Errorf("wire: unknown server message kind %q", env.Kind)
	}
}

func serverKind(msg ServerMessage) (string, error) {
	switch msg.(type) {
	case Connected:
		return "connected", nil
	case Pong:
		return "pong", nil
	case SessionList:
		return "session_list", nil
	case Attached:
		return "attached", nil
	case SessionCreated:
		return "session_created", nil
	case SessionCreatedWithDetails:
		return "session_created_with_details", nil
	case WindowCreated:
		return "window_created", nil
	case PaneCreated:
		return "pane_created", nil
	case Output:
		return "output", nil
	case PaneStateChanged:
		return "pane_state_changed", nil
	case AgentStateChanged:
		return "agent_state_changed", nil
	case ViewportUpdated:
		return "viewport_updated", nil
	case PaneClosed:
		return "pane_closed", nil
	case WindowClosed:
		return "window_closed", nil
	case SessionEnded:
		return "session_ended", nil
	case PaneContent:
		return "pane_content", nil
	case PaneList:
		return "pane_list", nil
	case EnvironmentInfo:
		return "environment_info", nil
	case ReplyDelivered:
		return "reply_delivered", nil
	case OrchestrationReceived:
		return "orchestration_received", nil
	case Error:
		return "error", nil
	default:
		return "", fmt.Errorf("wire: unregistered server message type %T", msg)
	}
}

func encodeEnvelope(kind string, msg interface{}) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal payload: %w", err)
	}
	return json.Marshal(envelope{Kind: kind, Payload: payload})
}

func unmarshalPayload(raw json.RawMessage, out interface{}) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("wire: unmarshal payload: %w", err)
	}
	return nil
}

// broadcastKinds is the set of server message kinds the daemon sends as
// unsolicited broadcasts; a bridge client uses this to separate its
// background event handler from request/response matching on a single
// multiplexed socket. pong, pane_created and window_created are in the
// set although the daemon also sends them as the direct reply to a Ping
// or to a pane or window creation request.
var broadcastKinds = map[string]bool{
	"output":                  true,
	"pane_state_changed":      true,
	"agent_state_changed":     true,
	"viewport_updated":        true,
	"pane_created":            true,
	"window_created":          true,
	"window_closed":           true,
	"session_ended":           true,
	"pong":                    true,
	"orchestration_received":  true,
}

// IsBroadcastMessage reports whether msg's kind is in broadcastKinds.
func IsBroadcastMessage(msg ServerMessage) bool {
	kind, err := serverKind(msg)
	if err != nil {
		return false
	}
	return broadcastKinds[kind]
}
