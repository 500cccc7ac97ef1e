// Package scrollback implements the per-pane bounded history of rendered
// lines, plus the viewport-offset bookkeeping a client's scroll requests
// mutate.
package scrollback

import "sync"

// DefaultMaxLines is the default cap on retained scrollback lines per pane.
const DefaultMaxLines = 10000

// Buffer is an append-only ring of rendered lines capped at a configured
// maximum, with a viewport offset: the distance, in lines, from the tail
// that the owning client is currently scrolled to. Zero means "follow the
// tail."
//
// Trimming drops from the front once the cap is exceeded, mirroring the
// front-trim the teacher daemon applies to its per-instance log buffer.
type Buffer struct {
	mu     sync.Mutex
	lines  []string
	max    int
	offset int
}

// New returns an empty buffer capped at max lines. A non-positive max
// falls back to DefaultMaxLines.
func New(max int) *Buffer {
	if max <= 0 {
		max = DefaultMaxLines
	}
	return &Buffer{max: max}
}

// Append adds a single rendered line, trimming the oldest line if the
// buffer is at capacity.
func (b *Buffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	if over := len(b.lines) - b.max; over > 0 {
		b.lines = b.lines[over:]
	}
}

// AppendLines adds several rendered lines in order.
func (b *Buffer) AppendLines(lines []string) {
	for _, l := range lines {
		b.Append(l)
	}
}

// Last returns the most recent n lines (or fewer if the buffer is
// shorter). n <= 0 returns nil.
func (b *Buffer) Last(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 || len(b.lines) == 0 {
		return nil
	}
	if n > len(b.lines) {
		n = len(b.lines)
	}
	out := make([]string, n)
	copy(out, b.lines[len(b.lines)-n:])
	return out
}

// All returns every retained line, for a full snapshot (e.g. a reattach
// sync).
func (b *Buffer) All() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

// Len reports the number of retained lines.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// ViewportOffset returns the current viewport offset.
func (b *Buffer) ViewportOffset() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.offset
}

// SetViewportOffset sets the viewport offset directly (e.g. from a scroll
// request). Negative offsets clamp to zero.
func (b *Buffer) SetViewportOffset(n int) {
	if n < 0 {
		n = 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.offset = n
}

// JumpToBottom resets the viewport offset to zero (follow the tail).
func (b *Buffer) JumpToBottom() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.offset = 0
}
