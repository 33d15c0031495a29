package engine

import "strings"

// LineTerminator is used for every output line.
const LineTerminator = "\r\n"

// FinalizeTransform trims lines and squeezes blank runs.
type FinalizeTransform struct{}

func (t *FinalizeTransform) Name() string { return "final" }

func (t *FinalizeTransform) Apply(lines []string, ctx *Ctx) ([]string, error) {
	out := Finalize(lines)
	ctx.debugf(t.Name(), 0, "Final cleanup: %d lines in, %d lines out.", len(lines), len(out))
	return out, nil
}

// Finalize trims every line, keeps at most one blank line in a row and
// drops blank lines at both ends.
func Finalize(lines []string) []string {
	out := make([]string, 0, len(lines))
	prevBlank := true
	for _, l := range lines {
		s := strings.TrimSpace(l)
		if s == "" {
			if prevBlank {
				continue
			}
			prevBlank = true
		} else {
			prevBlank = false
		}
		out = append(out, s)
	}
	if n := len(out); n > 0 && out[n-1] == "" {
		out = out[:n-1]
	}
	return out
}

// Serialize joins lines with CRLF and ends the text with exactly one CRLF.
// Empty trailing lines are dropped; no lines gives the empty string.
func Serialize(lines []string) string {
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return ""
	}
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString(LineTerminator)
	}
	return b.String()
}
