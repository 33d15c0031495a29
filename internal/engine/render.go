package engine

import (
	"fmt"
	"io"
	"os"
)

// palette holds the ANSI codes for one output stream. All fields are empty
// when the stream is not a terminal (piped/redirected).
type palette struct {
	Reset  string
	Bold   string
	Red    string
	Green  string
	Yellow string
	Cyan   string
	Gray   string
}

var ansiPalette = palette{
	Reset:  "\033[0m",
	Bold:   "\033[1m",
	Red:    "\033[31m",
	Green:  "\033[32m",
	Yellow: "\033[33m",
	Cyan:   "\033[36m",
	Gray:   "\033[90m",
}

func paletteFor(w io.Writer) palette {
	if f, ok := w.(*os.File); ok && isTerminal(f) {
		return ansiPalette
	}
	return palette{}
}

// isTerminal checks if the file is a terminal (TTY) using Stat.
func isTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// eventPrinter renders diagnostic events as human-readable lines.
type eventPrinter struct {
	w     io.Writer
	c     palette
	quiet bool
}

func newEventPrinter(w io.Writer, quiet bool) *eventPrinter {
	return &eventPrinter{w: w, c: paletteFor(w), quiet: quiet}
}

func (p *eventPrinter) print(e Event) {
	c := p.c
	switch e.Level {
	case LevelDebug:
		fmt.Fprintf(p.w, "%s  [verbose] %s%s\n", c.Gray, e, c.Reset)
	case LevelInfo:
		if p.quiet {
			return
		}
		fmt.Fprintf(p.w, "%s\n", e.Msg)
	case LevelWarn:
		fmt.Fprintf(p.w, "%sWarning:%s %s%s\n", c.Yellow, c.Reset, e.Msg, lineSuffix(e.Line, c))
	case LevelError:
		fmt.Fprintf(p.w, "%sError:%s %s%s\n", c.Red, c.Reset, e.Msg, lineSuffix(e.Line, c))
	}
}

func lineSuffix(line int, c palette) string {
	if line <= 0 {
		return ""
	}
	return fmt.Sprintf(" %s(line %d)%s", c.Gray, line, c.Reset)
}
