// Package vtstate tracks the small slice of terminal state the daemon
// itself needs to decide on behavior: bracketed-paste mode and the
// alternate-screen flag. It is deliberately not a full cell-grid VT
// emulator (see DESIGN.md for why charmbracelet/x/vt was rejected); a
// pane's rendered grid, if one is needed by a client, is reconstructed
// client-side from Output bytes the same way a real terminal would.
package vtstate

import "bytes"

// Tracker scans PTY output for the small set of escape sequences that
// change daemon-relevant terminal modes.
type Tracker struct {
	bracketedPaste bool
	altScreen      bool

	// pending holds an incomplete escape sequence carried across Feed
	// calls so mode changes are never missed at a chunk boundary.
	pending []byte
}

const (
	esc = 0x1b

	bracketedPasteOn  = "\x1b[?2004h"
	bracketedPasteOff = "\x1b[?2004l"
	altScreenOn1049   = "\x1b[?1049h"
	altScreenOff1049  = "\x1b[?1049l"
	altScreenOn47     = "\x1b[?47h"
	altScreenOff47    = "\x1b[?47l"
)

var modeSequences = []struct {
	seq  string
	name string
	on   bool
}{
	{bracketedPasteOn, "bracketed-paste", true},
	{bracketedPasteOff, "bracketed-paste", false},
	{altScreenOn1049, "alt-screen", true},
	{altScreenOff1049, "alt-screen", false},
	{altScreenOn47, "alt-screen", true},
	{altScreenOff47, "alt-screen", false},
}

// Feed scans a chunk of PTY output for mode-changing escape sequences
// and updates the tracker's state accordingly. It does not modify or
// strip any bytes; mode sequences remain in the display stream exactly
// like any other terminal output.
func (t *Tracker) Feed(data []byte) {
	buf := append(t.pending, data...)
	t.pending = nil

	i := 0
	for i < len(buf) {
		if buf[i] != esc {
			i++
			continue
		}

		matched := false
		for _, m := range modeSequences {
			seq := []byte(m.seq)
			if bytes.HasPrefix(buf[i:], seq) {
				switch m.name {
				case "bracketed-paste":
					t.bracketedPaste = m.on
				case "alt-screen":
					t.altScreen = m.on
				}
				i += len(seq)
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		// Could be the prefix of a mode sequence split across chunks;
		// carry the remainder of the buffer forward rather than risk
		// missing a mode change at the boundary.
		if couldBePrefix(buf[i:]) {
			t.pending = append([]byte{}, buf[i:]...)
			return
		}
		i++
	}
}

func couldBePrefix(tail []byte) bool {
	for _, m := range modeSequences {
		seq := []byte(m.seq)
		n := len(tail)
		if n > len(seq) {
			n = len(seq)
		}
		if bytes.Equal(tail[:n], seq[:n]) {
			return true
		}
	}
	return false
}

// BracketedPaste reports whether the pane currently has bracketed-paste
// mode enabled (`ESC [ ? 2004 h` seen more recently than `l`).
func (t *Tracker) BracketedPaste() bool { return t.bracketedPaste }

// AltScreen reports whether the pane is currently showing its
// alternate screen buffer.
func (t *Tracker) AltScreen() bool { return t.altScreen }

const (
	bracketedPasteStart = "\x1b[200~"
	bracketedPasteEnd   = "\x1b[201~"
)

// WrapPaste re-wraps payload in the bracketed-paste start/end markers,
// per spec.md §4.7's Paste handler contract: when the target pane has
// bracketed-paste mode enabled, pasted data must be bracketed so the
// receiving program can distinguish pasted text from typed input.
func WrapPaste(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+len(bracketedPasteStart)+len(bracketedPasteEnd))
	out = append(out, bracketedPasteStart...)
	out = append(out, payload...)
	out = append(out, bracketedPasteEnd...)
	return out
}
