package engine

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reDispatchSet  = regexp.MustCompile(`(?i)^\s*set\s+/a\s+ans\s*=\s*(.*?)\s*$`)
	reDispatchGoto = regexp.MustCompile(`(?i)^\s*goto\s+%ans%\s*$`)
	reReturnLabel  = regexp.MustCompile(`^\s*:(\d+)\s*$`)
	// Relocated blocks start at column zero.
	reBlockLabel = regexp.MustCompile(`^:(\d+)\s*$`)
)

// ScrambledBlock is one relocated statement and the label it was moved to.
type ScrambledBlock struct {
	Label     int64
	Statement string
	Line      int
}

// ScrambleTransform moves relocated statements back to their dispatch sites
// and drops the relocation table.
type ScrambleTransform struct{}

func (t *ScrambleTransform) Name() string { return "scramble" }

func (t *ScrambleTransform) Apply(lines []string, ctx *Ctx) ([]string, error) {
	boundary := findBoundary(lines)
	if boundary < 0 {
		ctx.debugf(t.Name(), 0, "Scrambler EOF marker not found or context incorrect. Skipping scrambling reversal.")
		return lines, nil
	}
	ctx.debugf(t.Name(), boundary+1, "Found likely scrambler EOF marker at line %d", boundary+1)

	main := lines[:boundary]
	blocks := parseTail(lines[boundary+1:], boundary+1, ctx)
	if len(blocks) == 0 {
		ctx.warnf(t.Name(), CodeNoBlocks, boundary+1, "No valid scrambled blocks parsed after EOF marker. Structure might be broken.")
		return append([]string(nil), main...), nil
	}
	ctx.infof(t.Name(), "Parsed %d scrambled blocks (encountered %d parsing errors).", ctx.Stats.BlocksParsed, ctx.Stats.BlocksFailed)

	out := rewriteDispatch(main, blocks, ctx)
	ctx.infof(t.Name(), "Finished reversing scrambling: %d jumps replaced, %d failures/removals.", ctx.Stats.JumpsReplaced, ctx.Stats.JumpsFailed)
	return out, nil
}

// findBoundary returns the index of the dispatcher epilogue, the first
// "goto :eof" or "exit /b 0" directly preceded by "goto %ans%", or -1.
func findBoundary(lines []string) int {
	for i := 1; i < len(lines); i++ {
		cur := strings.ToLower(strings.TrimSpace(lines[i]))
		if cur != "goto :eof" && cur != "exit /b 0" {
			continue
		}
		if strings.ToLower(strings.TrimSpace(lines[i-1])) == "goto %ans%" {
			return i
		}
	}
	return -1
}

// parseTail reads the relocation table. A block is a label line, a body,
// then "set /a ans=..." and "goto %ans%". The statement kept is the first
// non-blank body line, which is a heuristic: code injected ahead of the
// real statement would be picked instead. Later duplicates of a label win.
func parseTail(tail []string, offset int, ctx *Ctx) map[string]ScrambledBlock {
	const stage = "scramble"
	blocks := map[string]ScrambledBlock{}

	i := 0
	for i < len(tail) {
		m := reBlockLabel.FindStringSubmatch(tail[i])
		if m == nil {
			i++
			continue
		}
		labelLine := offset + i + 1
		label := canonicalLabel(m[1])

		// Find the epilogue; a new label first means this block is cut short.
		setAt, gotoAt, restart := -1, -1, -1
		for j := i + 1; j < len(tail); j++ {
			if setAt < 0 {
				if reBlockLabel.MatchString(tail[j]) {
					restart = j
					break
				}
				if reDispatchSet.MatchString(tail[j]) {
					setAt = j
				}
				continue
			}
			if reDispatchGoto.MatchString(tail[j]) {
				gotoAt = j
				break
			}
			if reBlockLabel.MatchString(tail[j]) {
				restart = j
				break
			}
		}
		if gotoAt < 0 {
			ctx.Stats.BlocksFailed++
			ctx.warnf(stage, CodeIncompleteBlock, labelLine, "Block for label %s has no dispatcher epilogue; skipped", label)
			if restart < 0 {
				break
			}
			i = restart
			continue
		}

		stmt := firstNonBlank(tail[i+1 : setAt])
		if stmt == "" {
			ctx.Stats.BlocksFailed++
			ctx.warnf(stage, CodeEmptyBlock, labelLine, "Found block for label %s but no non-empty code captured.", label)
			i = gotoAt + 1
			continue
		}
		if _, dup := blocks[label]; dup {
			ctx.warnf(stage, CodeDuplicateLabel, labelLine, "Duplicate label %s found in scrambled blocks. Overwriting with later definition.", label)
		}
		n, _ := strconv.ParseInt(label, 10, 64)
		blocks[label] = ScrambledBlock{Label: n, Statement: stmt, Line: labelLine}
		ctx.Stats.BlocksParsed++
		ctx.debugf(stage, labelLine, "Found scrambled block label %s: %s", label, clip(stmt, 60))
		i = gotoAt + 1
	}
	return blocks
}

// canonicalLabel strips leading zeros. Labels are matched by numeric value,
// not by the digits as written: ":007" is taken as the block for an
// evaluated 7, where a literal comparison would miss it. Labels too long to
// be a number are kept verbatim and can never match.
func canonicalLabel(digits string) string {
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return digits
	}
	return strconv.FormatInt(n, 10)
}

func firstNonBlank(lines []string) string {
	for _, l := range lines {
		if s := strings.TrimSpace(l); s != "" {
			return s
		}
	}
	return ""
}

// rewriteDispatch replaces each three-line dispatch site in main, scanning
// left to right without overlap. A site that cannot be resolved is dropped
// whole so no fragment of it survives.
func rewriteDispatch(main []string, blocks map[string]ScrambledBlock, ctx *Ctx) []string {
	const stage = "scramble"
	out := make([]string, 0, len(main))
	for i := 0; i < len(main); {
		expr, ok := dispatchSite(main, i)
		if !ok {
			out = append(out, main[i])
			i++
			continue
		}
		v, err := EvalExpr(expr, ctx.Opts.Caret)
		switch {
		case err != nil:
			ctx.Stats.JumpsFailed++
			ctx.warnf(stage, CodeEvalFailed, i+1, "Failed to evaluate math for jump target ('%s'): %v. Jump removed.", expr, err)
		default:
			label := strconv.FormatInt(v, 10)
			if b, found := blocks[label]; found {
				out = append(out, b.Statement)
				ctx.Stats.JumpsReplaced++
				ctx.debugf(stage, i+1, "Replacing jump (math='%s', eval=%s)", expr, label)
			} else {
				ctx.Stats.JumpsFailed++
				ctx.warnf(stage, CodeMissingLabel, i+1, "Evaluated target label %s (from '%s'), but no corresponding block found! Jump removed.", label, expr)
			}
		}
		i += 3
	}
	return out
}

// dispatchSite reports whether main[i:i+3] is "set /a ans=EXPR",
// "goto %ans%", ":N" and returns EXPR.
func dispatchSite(main []string, i int) (string, bool) {
	if i+2 >= len(main) {
		return "", false
	}
	m := reDispatchSet.FindStringSubmatch(main[i])
	if m == nil || !reDispatchGoto.MatchString(main[i+1]) || !reReturnLabel.MatchString(main[i+2]) {
		return "", false
	}
	return m[1], true
}
