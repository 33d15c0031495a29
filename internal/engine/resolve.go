package engine

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Pass bounds for the fixed-point rewrites. Self-referential input can keep
// producing new tokens; the bounds guarantee termination.
const (
	maxCipherPasses = 15
	maxJunkPasses   = 5
)

// ResolveTransform turns cipher, slice and junk-wrapped tokens back into
// plain characters, line by line.
type ResolveTransform struct{}

func (t *ResolveTransform) Name() string { return "resolve" }

func (t *ResolveTransform) Apply(lines []string, ctx *Ctx) ([]string, error) {
	out := make([]string, len(lines))
	for i, line := range lines {
		if ctx.Opts.Verbose {
			ctx.debugf(t.Name(), i+1, "Processing line %d/%d: %s", i+1, len(lines), clip(line, 80))
		}
		out[i] = resolveLine(line, i+1, ctx)
		if out[i] != line {
			ctx.Stats.LinesResolved++
			ctx.debugf(t.Name(), i+1, "Deobfuscated line: %s", clip(out[i], 80))
		}
	}
	ctx.infof(t.Name(), "Character deobfuscation finished (%d lines changed).", ctx.Stats.LinesResolved)
	return out, nil
}

// rewriteFixedPoint applies step until the text stops changing or max
// passes have run. It reports whether a fixed point was reached.
func rewriteFixedPoint(s string, max int, step func(string) string) (string, bool) {
	for i := 0; i < max; i++ {
		next := step(s)
		if next == s {
			return s, true
		}
		s = next
	}
	return s, false
}

// replaceAllSubmatchFunc is ReplaceAllStringFunc with access to the groups.
// Unmatched groups are passed as empty strings.
func replaceAllSubmatchFunc(re *regexp.Regexp, s string, fn func(groups []string) string) string {
	locs := re.FindAllStringSubmatchIndex(s, -1)
	if locs == nil {
		return s
	}
	var b strings.Builder
	last := 0
	groups := make([]string, re.NumSubexp()+1)
	for _, loc := range locs {
		for g := range groups {
			if loc[2*g] >= 0 {
				groups[g] = s[loc[2*g]:loc[2*g+1]]
			} else {
				groups[g] = ""
			}
		}
		b.WriteString(s[last:loc[0]])
		b.WriteString(fn(groups))
		last = loc[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

// lineResolver resolves one line. Warnings are reported once per distinct
// token so repeated passes do not repeat them.
type lineResolver struct {
	ctx    *Ctx
	lineNo int
	warned map[string]bool
}

func (r *lineResolver) warnOnce(code, token, format string, args ...interface{}) {
	if r.warned[token] {
		return
	}
	r.warned[token] = true
	r.ctx.warnf("resolve", code, r.lineNo, format, args...)
}

func (r *lineResolver) step(line string) string {
	return replaceAllSubmatchFunc(reCharToken, line, func(g []string) string {
		if g[1] != "" {
			return r.slice(g[0], g[1], g[2])
		}
		return r.cipher(g[0], g[3], g[4])
	})
}

func (r *lineResolver) slice(token, name, index string) string {
	idx, err := strconv.Atoi(index)
	if err != nil {
		r.warnOnce(CodeBadIndex, token, "Invalid slice index in %s", token)
		return token
	}
	var value string
	if strings.EqualFold(name, AuxName) {
		if !r.ctx.Settings.HasAux {
			// Already reported once by the settings extractor.
			return token
		}
		value = r.ctx.Settings.Aux
	} else {
		v, ok := r.ctx.Env.Lookup(name)
		if !ok {
			r.warnOnce(CodeUnknownVar, token, "Unknown environment variable '%s' in slice: %s", strings.ToUpper(name), token)
			return token
		}
		value = v
	}
	ch, ok := sliceChar(value, idx)
	if !ok {
		r.warnOnce(CodeBadIndex, token, "Index %d out of bounds for %s ('%s')", idx, strings.ToUpper(name), value)
		return token
	}
	return ch
}

func (r *lineResolver) cipher(token, letter, upper string) string {
	c := unicode.ToLower([]rune(letter)[0])
	plain, ok := r.ctx.Settings.Original(c)
	if !ok {
		if len(r.ctx.Settings.Reverse) > 0 {
			r.warnOnce(CodeUnmapped, token, "Character '%c' not found in reverse cipher map", c)
		}
		return token
	}
	if upper != "" {
		plain = unicode.ToUpper(plain)
	}
	return string(plain)
}

// resolveLine runs the bounded passes, strips leftover markers and
// normalizes the case of a leading command keyword.
func resolveLine(line string, lineNo int, ctx *Ctx) string {
	r := &lineResolver{ctx: ctx, lineNo: lineNo, warned: map[string]bool{}}

	out, ok := rewriteFixedPoint(line, maxCipherPasses, r.step)
	if !ok {
		ctx.Stats.BoundHits++
		ctx.warnf("resolve", CodeCipherBound, lineNo, "Max substitution passes (%d) reached for specific patterns: %s", maxCipherPasses, clip(line, 80))
	}

	out, ok = rewriteFixedPoint(out, maxJunkPasses, func(s string) string {
		return reJunkWrap.ReplaceAllString(s, "$1")
	})
	if !ok {
		ctx.Stats.BoundHits++
		ctx.warnf("resolve", CodeJunkBound, lineNo, "Max substitution passes (%d) reached for junk removal: %s", maxJunkPasses, clip(line, 80))
	}

	for _, m := range leftoverMarkers {
		out = strings.ReplaceAll(out, m, "")
	}
	return normalizeCommandCase(out, ctx.Commands)
}

// normalizeCommandCase collapses whitespace runs and lower-cases the first
// word when it is a known command. Blank lines are returned unchanged.
func normalizeCommandCase(line string, commands map[string]bool) string {
	words := strings.Fields(line)
	if len(words) == 0 {
		return line
	}
	if isCommand(commands, words[0]) {
		words[0] = strings.ToLower(words[0])
	}
	return strings.Join(words, " ")
}
