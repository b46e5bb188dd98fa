package process

import (
	"strings"
	"sync"
)

// Tail is an OutputHandler that keeps the last few lines, so an error
// from an exited ffmpeg can say what ffmpeg complained about.
type Tail struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

// NewTail keeps up to n lines.
func NewTail(n int) *Tail {
	if n < 1 {
		n = 1
	}
	return &Tail{lines: make([]string, n)}
}

// HandleLine implements OutputHandler.
func (t *Tail) HandleLine(_, line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines[t.next] = line
	t.next = (t.next + 1) % len(t.lines)
	if t.next == 0 {
		t.full = true
	}
}

// Lines returns the kept lines, oldest first.
func (t *Tail) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.full {
		return append([]string(nil), t.lines[:t.next]...)
	}
	out := make([]string, 0, len(t.lines))
	out = append(out, t.lines[t.next:]...)
	return append(out, t.lines[:t.next]...)
}

// String joins the kept lines with "; ".
func (t *Tail) String() string {
	return strings.Join(t.Lines(), "; ")
}
