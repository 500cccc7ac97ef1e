// Package sideband implements the in-band OSC control-command protocol a
// child process embeds in its own PTY output, and the streaming parser
// that extracts it.
//
// The parser is a small explicit state machine (Scanning | InOsc |
// InBody), not a regular expression, so it tolerates the protocol being
// split arbitrarily across reads: splitting an encoded stream at any byte
// boundary and feeding the pieces through separate Feed calls yields the
// same (display, commands) result as a single Feed over the whole stream.
package sideband

const (
	esc = 0x1b
	bel = 0x07
)

const openLiteral = "ccmux:"

type phase int

const (
	phaseScanning phase = iota
	phaseAfterEsc
	phaseMatchingOpenLiteral
	phaseHeader
	phaseHeaderAfterEsc
	phaseBody
	phaseBodyAfterEsc
	phaseBodyMatchingCloseLiteral
	phaseBodyAwaitingTerm
	phaseBodyAwaitingTermEsc
)

// Parser is a streaming sideband command extractor. The zero value is
// ready to use. Parser is not safe for concurrent use; each pane owns one
// instance.
type Parser struct {
	phase phase

	pending   []byte
	litMatched int
	header     []byte

	bodyTag        string
	bodyAttrs      map[string]string
	body           []byte
	bodyPending    []byte
	bodyLitMatched int
}

// Feed processes a chunk of raw PTY output, returning the display text
// (bytes with any sideband framing removed) and the complete commands
// found in this chunk. State needed to resume mid-command across calls
// is kept on the Parser.
func (p *Parser) Feed(data []byte) ([]byte, []Command) {
	var display []byte
	var commands []Command

	for _, b := range data {
		switch p.phase {
		case phaseScanning:
			if b == esc {
				p.pending = []byte{b}
				p.phase = phaseAfterEsc
			} else {
				display = append(display, b)
			}

		case phaseAfterEsc:
			if b == ']' {
				p.pending = append(p.pending, b)
				p.litMatched = 0
				p.phase = phaseMatchingOpenLiteral
			} else {
				display = append(display, p.pending...)
				display = append(display, b)
				p.pending = nil
				p.phase = phaseScanning
			}

		case phaseMatchingOpenLiteral:
			if b == openLiteral[p.litMatched] {
				p.pending = append(p.pending, b)
				p.litMatched++
				if p.litMatched == len(openLiteral) {
					p.pending = nil
					p.header = nil
					p.phase = phaseHeader
				}
			} else {
				p.pending = append(p.pending, b)
				display = append(display, p.pending...)
				p.pending = nil
				p.phase = phaseScanning
			}

		case phaseHeader:
			switch b {
			case bel:
				p.completeOpeningTag(&commands)
			case esc:
				p.phase = phaseHeaderAfterEsc
			default:
				p.header = append(p.header, b)
			}

		case phaseHeaderAfterEsc:
			if b == '\\' {
				p.completeOpeningTag(&commands)
			} else {
				p.header = append(p.header, esc, b)
				p.phase = phaseHeader
			}

		case phaseBody:
			if b == esc {
				p.bodyPending = []byte{b}
				p.phase = phaseBodyAfterEsc
			} else {
				p.body = append(p.body, b)
			}

		case phaseBodyAfterEsc:
			if b == ']' {
				p.bodyPending = append(p.bodyPending, b)
				p.bodyLitMatched = 0
				p.phase = phaseBodyMatchingCloseLiteral
			} else {
				p.body = append(p.body, p.bodyPending...)
				p.body = append(p.body, b)
				p.bodyPending = nil
				p.phase = phaseBody
			}

		case phaseBodyMatchingCloseLiteral:
			closeLit := "ccmux:/" + p.bodyTag
			p.bodyPending = append(p.bodyPending, b)
			if p.bodyLitMatched < len(closeLit) && b == closeLit[p.bodyLitMatched] {
				p.bodyLitMatched++
				if p.bodyLitMatched == len(closeLit) {
					p.phase = phaseBodyAwaitingTerm
				}
			} else {
				p.body = append(p.body, p.bodyPending...)
				p.bodyPending = nil
				p.phase = phaseBody
			}

		case phaseBodyAwaitingTerm:
			switch b {
			case bel:
				p.completeBody(&commands)
			case esc:
				p.phase = phaseBodyAwaitingTermEsc
			default:
				p.body = append(p.body, p.bodyPending...)
				p.body = append(p.body, b)
				p.bodyPending = nil
				p.phase = phaseBody
			}

		case phaseBodyAwaitingTermEsc:
			if b == '\\' {
				p.completeBody(&commands)
			} else {
				p.body = append(p.body, p.bodyPending...)
				p.body = append(p.body, esc, b)
				p.bodyPending = nil
				p.phase = phaseBody
			}
		}
	}

	return display, commands
}

func (p *Parser) completeOpeningTag(commands *[]Command) {
	name, attrs := parseHeader(string(p.header))
	p.header = nil

	if commandsWithBody[name] {
		p.bodyTag = name
		p.bodyAttrs = attrs
		p.body = nil
		p.bodyPending = nil
		p.bodyLitMatched = 0
		p.phase = phaseBody
		return
	}

	if cmd, ok := buildCommand(name, attrs, ""); ok {
		*commands = append(*commands, cmd)
	}
	p.phase = phaseScanning
}

func (p *Parser) completeBody(commands *[]Command) {
	if cmd, ok := buildCommand(p.bodyTag, p.bodyAttrs, string(p.body)); ok {
		*commands = append(*commands, cmd)
	}
	p.body = nil
	p.bodyPending = nil
	p.bodyAttrs = nil
	p.bodyTag = ""
	p.phase = phaseScanning
}

func buildCommand(name string, attrs map[string]string, body string) (Command, bool) {
	switch name {
	case "spawn":
		return Spawn{
			Direction: attrs["direction"],
			Command:   attrs["command"],
			Cwd:       attrs["cwd"],
			Config:    attrs["config"],
		}, true
	case "focus":
		return Focus{Pane: PaneRef{Raw: attrs["pane"]}}, true
	case "input":
		return Input{Pane: PaneRef{Raw: attrs["pane"]}, Text: body}, true
	case "scroll":
		return Scroll{Pane: PaneRef{Raw: attrs["pane"]}, Lines: attrInt(attrs, "lines", 0)}, true
	case "notify":
		level := NotifyLevel(attrs["level"])
		if level == "" {
			level = LevelInfo
		}
		return Notify{Title: attrs["title"], Level: level, Message: body}, true
	case "mail":
		return Mail{Priority: attrs["priority"], Summary: body}, true
	case "control":
		return Control{
			Action: ControlAction(attrs["action"]),
			Cols:   attrInt(attrs, "cols", 0),
			Rows:   attrInt(attrs, "rows", 0),
			Pane:   PaneRef{Raw: attrs["pane"]},
		}, true
	default:
		return nil, false
	}
}
