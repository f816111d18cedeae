package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// Reporter provides progress feedback during long-running batch work such as
// bulk imports and bulk edits.
type Reporter interface {
	Start(total int)
	Update(current int, message string)
	Finish()
}

// NewReporter returns a TerminalReporter when stderr is an interactive
// terminal, or a CIReporter when running under CI or with redirected output.
func NewReporter(description string) Reporter {
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" || !isTerminal(os.Stderr) {
		return &CIReporter{Description: description, Out: os.Stderr}
	}
	return &TerminalReporter{Description: description}
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// TerminalReporter displays a progress bar in the terminal.
type TerminalReporter struct {
	Description string
	bar         *progressbar.ProgressBar
}

func (r *TerminalReporter) Start(total int) {
	r.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription(r.Description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func (r *TerminalReporter) Update(current int, message string) {
	if r.bar != nil {
		r.bar.Describe(message)
		_ = r.bar.Set(current)
	}
}

func (r *TerminalReporter) Finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

// CIReporter prints line-by-line progress suitable for CI logs.
type CIReporter struct {
	Description string
	Out         io.Writer
	total       int
}

func (r *CIReporter) out() io.Writer {
	if r.Out == nil {
		return os.Stderr
	}
	return r.Out
}

func (r *CIReporter) Start(total int) {
	r.total = total
	fmt.Fprintf(r.out(), "%s: %d items\n", r.Description, total)
}

func (r *CIReporter) Update(current int, message string) {
	fmt.Fprintf(r.out(), "[%d/%d] %s\n", current, r.total, message)
}

func (r *CIReporter) Finish() {
	fmt.Fprintf(r.out(), "%s: done\n", r.Description)
}

// Nop discards all progress.
type Nop struct{}

func (Nop) Start(int) {}
func (Nop) Update(int, string) {}
func (Nop) Finish() {}

// Event is a progress update published to event subscribers such as the
// dashboard websocket.
type Event struct {
	Kind    string    `json:"kind"`
	Phase   string    `json:"phase"`
	Current int       `json:"current"`
	Total   int       `json:"total"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

// Phases of an Event.
const (
	PhaseStart    = "start"
	PhaseProgress = "progress"
	PhaseFinish   = "finish"
)

// Publisher receives progress events.
type Publisher interface {
	Publish(Event)
}

// EventReporter turns Reporter calls into Events of the given kind.
type EventReporter struct {
	Kind      string
	Publisher Publisher

	mu    sync.Mutex
	total int
	last  int
}

// NewEventReporter returns a Reporter publishing to p. A nil publisher yields
// a Nop reporter.
func NewEventReporter(kind string, p Publisher) Reporter {
	if p == nil {
		return Nop{}
	}
	return &EventReporter{Kind: kind, Publisher: p}
}

func (r *EventReporter) Start(total int) {
	r.mu.Lock()
	r.total, r.last = total, 0
	r.mu.Unlock()
	r.publish(PhaseStart, 0, "")
}

func (r *EventReporter) Update(current int, message string) {
	r.mu.Lock()
	r.last = current
	r.mu.Unlock()
	r.publish(PhaseProgress, current, message)
}

func (r *EventReporter) Finish() {
	r.mu.Lock()
	last := r.last
	r.mu.Unlock()
	r.publish(PhaseFinish, last, "")
}

func (r *EventReporter) publish(phase string, current int, message string) {
	r.mu.Lock()
	total := r.total
	r.mu.Unlock()
	r.Publisher.Publish(Event{
		Kind:    r.Kind,
		Phase:   phase,
		Current: current,
		Total:   total,
		Message: message,
		Time:    time.Now().UTC(),
	})
}

// Multi fans every call out to each non-nil reporter.
func Multi(reporters ...Reporter) Reporter {
	var rs multi
	for _, r := range reporters {
		if r != nil {
			rs = append(rs, r)
		}
	}
	return rs
}

type multi []Reporter

func (m multi) Start(total int) {
	for _, r := range m {
		r.Start(total)
	}
}

func (m multi) Update(current int, message string) {
	for _, r := range m {
		r.Update(current, message)
	}
}

func (m multi) Finish() {
	for _, r := range m {
		r.Finish()
	}
}
