package engine

import (
	"fmt"
	"strings"
)

// Level is the severity of a diagnostic event.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// MarshalText lets events serialize with a readable level in JSON reports.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Event codes. Stable so callers can filter on them.
const (
	CodeAuxMissing      = "settings.aux-missing"
	CodeCipherMissing   = "settings.cipher-missing"
	CodeCipherConflict  = "settings.cipher-conflict"
	CodeUnknownVar      = "resolve.unknown-var"
	CodeBadIndex        = "resolve.bad-index"
	CodeUnmapped        = "resolve.unmapped"
	CodeCipherBound     = "resolve.cipher-bound"
	CodeJunkBound       = "resolve.junk-bound"
	CodeEmptyBlock      = "scramble.empty-block"
	CodeIncompleteBlock = "scramble.incomplete-block"
	CodeDuplicateLabel  = "scramble.duplicate-label"
	CodeNoBlocks        = "scramble.no-blocks"
	CodeEvalFailed      = "scramble.eval-failed"
	CodeMissingLabel    = "scramble.missing-label"
)

// Event is one leveled diagnostic. Line is 1-based; 0 means the event is
// not tied to a line.
type Event struct {
	Level Level  `json:"level"`
	Stage string `json:"stage"`
	Code  string `json:"code,omitempty"`
	Line  int    `json:"line,omitempty"`
	Msg   string `json:"msg"`
}

func (e Event) String() string {
	var b strings.Builder
	b.WriteString(e.Stage)
	if e.Line > 0 {
		fmt.Fprintf(&b, ":%d", e.Line)
	}
	b.WriteString(": ")
	b.WriteString(e.Msg)
	return b.String()
}

// Diagnostics collects the events of one run. Debug events are dropped
// unless verbose is set.
type Diagnostics struct {
	verbose bool
	onEvent func(Event)
	events  []Event
}

func newDiagnostics(verbose bool, onEvent func(Event)) *Diagnostics {
	return &Diagnostics{verbose: verbose, onEvent: onEvent}
}

func (d *Diagnostics) emit(e Event) {
	if e.Level == LevelDebug && !d.verbose {
		return
	}
	d.events = append(d.events, e)
	if d.onEvent != nil {
		d.onEvent(e)
	}
}

// Events returns a copy of the recorded events in order.
func (d *Diagnostics) Events() []Event {
	out := make([]Event, len(d.events))
	copy(out, d.events)
	return out
}

func (ctx *Ctx) debugf(stage string, line int, format string, args ...interface{}) {
	ctx.diag.emit(Event{Level: LevelDebug, Stage: stage, Line: line, Msg: fmt.Sprintf(format, args...)})
}

func (ctx *Ctx) infof(stage string, format string, args ...interface{}) {
	ctx.diag.emit(Event{Level: LevelInfo, Stage: stage, Msg: fmt.Sprintf(format, args...)})
}

func (ctx *Ctx) warnf(stage, code string, line int, format string, args ...interface{}) {
	ctx.diag.emit(Event{Level: LevelWarn, Stage: stage, Code: code, Line: line, Msg: fmt.Sprintf(format, args...)})
}

// clip shortens s for log messages.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
