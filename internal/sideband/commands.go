package sideband

// NotifyLevel is the severity of a Notify command.
type NotifyLevel string

const (
	LevelInfo  NotifyLevel = "info"
	LevelWarn  NotifyLevel = "warn"
	LevelError NotifyLevel = "error"
)

// ControlAction is the lifecycle/viewport action a Control command
// requests.
type ControlAction string

const (
	ControlClose  ControlAction = "close"
	ControlResize ControlAction = "resize"
	ControlPin    ControlAction = "pin"
	ControlUnpin  ControlAction = "unpin"
)

// PaneRef is an unresolved pane reference as it appeared in a sideband
// attribute: an index, a UUID string, or the literal "active". Resolution
// against the live object tree happens in the executor, not the parser.
type PaneRef struct {
	Raw string
}

func (p PaneRef) IsActive() bool { return p.Raw == "" || p.Raw == "active" }

// Command is the tagged union of sideband commands the parser can emit.
type Command interface {
	sidebandCommand()
}

type Spawn struct {
	Direction string
	Command   string
	Cwd       string
	Config    string // opaque passthrough blob; schema is consumer-defined
}

type Focus struct {
	Pane PaneRef
}

type Input struct {
	Pane PaneRef
	Text string
}

type Scroll struct {
	Pane  PaneRef
	Lines int
}

type Notify struct {
	Title   string
	Level   NotifyLevel
	Message string
}

type Mail struct {
	Priority string
	Summary  string
}

type Control struct {
	Action ControlAction
	Cols   int
	Rows   int
	Pane   PaneRef
}

func (Spawn) sidebandCommand()   {}
func (Focus) sidebandCommand()   {}
func (Input) sidebandCommand()   {}
func (Scroll) sidebandCommand()  {}
func (Notify) sidebandCommand()  {}
func (Mail) sidebandCommand()    {}
func (Control) sidebandCommand() {}

// commandsWithBody is the set of command names whose tag is closed by a
// separate `ESC ] ccmux:/<name>` body terminator rather than completing
// at the end of the opening tag.
var commandsWithBody = map[string]bool{
	"input":  true,
	"notify": true,
	"mail":   true,
}
