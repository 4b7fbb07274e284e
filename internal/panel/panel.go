// Package panel arbitrates shared output surfaces across concurrently
// running tasks. Panels are the only mutable shared resource in the
// system; all writes go through the coordinator's single-writer discipline
// per panel, so concurrent tasks never interleave output mid-line.
package panel

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/overture/internal/models"
)

// Policy controls how one task's output is surfaced on its panel.
type Policy struct {
	Echo             bool              // Write the invoked command line before output
	Reveal           models.RevealMode // always | never | onFailure
	Focus            bool              // Re-announce the panel when output starts
	Clear            bool              // Clear panel content before new output
	ShowReuseMessage bool              // Announce when a panel is reused by a later run
}

// PolicyFrom maps a task presentation to a panel policy.
func PolicyFrom(p models.Presentation) Policy {
	return Policy{
		Echo:             p.Echo,
		Reveal:           p.Reveal,
		Focus:            p.Focus,
		Clear:            p.Clear,
		ShowReuseMessage: p.ShowReuseMessage,
	}
}

type panelState struct {
	mu      sync.Mutex
	name    string
	cleared bool // a writer already claimed the clear for this run
	used    bool // the panel carried output in an earlier run (watch mode)
}

// Coordinator manages named panels over a single output writer.
// Writes to distinct panels proceed concurrently; writes to the same panel
// are serialized by that panel's lock.
type Coordinator struct {
	mu     sync.Mutex
	out    io.Writer
	panels map[string]*panelState
	color  bool
	label  *color.Color
}

// NewCoordinator creates a coordinator writing to out. Color is enabled
// when out is a terminal, matching the console logger's detection.
func NewCoordinator(out io.Writer) *Coordinator {
	useColor := false
	if f, ok := out.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd()) && !color.NoColor
	}
	return &Coordinator{
		out:    out,
		panels: make(map[string]*panelState),
		color:  useColor,
		label:  color.New(color.FgCyan),
	}
}

// Handle is one task's writable view of a panel. It buffers partial lines
// so only whole lines reach the panel, and applies the task's reveal
// policy. Handles are not safe for concurrent use by multiple goroutines;
// each task invocation owns exactly one.
type Handle struct {
	coord    *Coordinator
	panel    *panelState
	taskName string
	policy   Policy
	partial  bytes.Buffer
	deferred bytes.Buffer // reveal=onFailure output held back until outcome is known
	closed   bool
}

// Acquire returns a handle on the named panel for the given task.
// The first acquirer whose policy requests a clear claims it for the run
// (first-writer-clears); later sharers never re-clear mid-run. commandLine
// is echoed when the policy asks for it.
func (c *Coordinator) Acquire(panelName, taskName, commandLine string, policy Policy) *Handle {
	c.mu.Lock()
	p, ok := c.panels[panelName]
	if !ok {
		p = &panelState{name: panelName}
		c.panels[panelName] = p
	}
	c.mu.Unlock()

	h := &Handle{coord: c, panel: p, taskName: taskName, policy: policy}

	p.mu.Lock()
	defer p.mu.Unlock()

	if policy.Clear && !p.cleared {
		p.cleared = true
		if policy.ShowReuseMessage && p.used {
			h.emitLocked(fmt.Sprintf("panel %s reused, previous output cleared", p.name))
		}
	} else if policy.ShowReuseMessage && p.used {
		h.emitLocked(fmt.Sprintf("panel %s reused by %s", p.name, taskName))
	}
	if policy.Focus {
		h.emitLocked(fmt.Sprintf("panel %s active", p.name))
	}
	if policy.Echo {
		h.emitLocked("> " + commandLine)
	}
	return h
}

// Reset marks all panels reusable and forgets clear claims. Called between
// runs in watch mode.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.panels {
		p.mu.Lock()
		p.used = true
		p.cleared = false
		p.mu.Unlock()
	}
}

// Write implements io.Writer. Complete lines are appended to the panel
// immediately (subject to the reveal policy); a trailing partial line is
// held until the next write or Close, so concurrent tasks sharing a panel
// never interleave within a line.
func (h *Handle) Write(b []byte) (int, error) {
	h.partial.Write(b)
	for {
		line, ok := h.takeLine()
		if !ok {
			break
		}
		h.writeLine(line)
	}
	return len(b), nil
}

// takeLine removes and returns the next complete line from the partial
// buffer, without its newline.
func (h *Handle) takeLine() (string, bool) {
	data := h.partial.Bytes()
	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		return "", false
	}
	line := string(data[:i])
	h.partial.Next(i + 1)
	return line, true
}

func (h *Handle) writeLine(line string) {
	switch h.policy.Reveal {
	case models.RevealNever:
		// Output stays in the run record only.
	case models.RevealOnFailure:
		h.deferred.WriteString(line)
		h.deferred.WriteByte('\n')
	default:
		h.panel.mu.Lock()
		h.emitLocked(line)
		h.panel.mu.Unlock()
	}
}

// emitLocked writes one line to the coordinator's output with the task
// label prefix. Caller holds the panel lock.
func (h *Handle) emitLocked(line string) {
	label := h.taskName
	if h.coord.color {
		label = h.coord.label.Sprint(label)
	}
	fmt.Fprintf(h.coord.out, "[%s] %s\n", label, line)
	h.panel.used = true
}

// Close finalizes the handle. A trailing partial line is flushed as its
// own line. When the policy defers reveal to failure, the buffered output
// is appended to the panel only if failed is true.
func (h *Handle) Close(failed bool) {
	if h.closed {
		return
	}
	h.closed = true

	if h.partial.Len() > 0 {
		h.writeLine(h.partial.String())
		h.partial.Reset()
	}

	if h.policy.Reveal == models.RevealOnFailure && failed && h.deferred.Len() > 0 {
		h.panel.mu.Lock()
		data := h.deferred.Bytes()
		for len(data) > 0 {
			i := bytes.IndexByte(data, '\n')
			if i < 0 {
				h.emitLocked(string(data))
				break
			}
			h.emitLocked(string(data[:i]))
			data = data[i+1:]
		}
		h.panel.mu.Unlock()
	}
	h.deferred.Reset()
}
