package engine

import (
	"strings"
)

// Settings is the cipher configuration found in the script. It is fixed
// once extracted.
type Settings struct {
	Aux    string `json:"aux,omitempty"`
	HasAux bool   `json:"hasAux"`
	// Reverse maps the letter used in %c% references to the letter it stands for.
	Reverse map[rune]rune `json:"-"`
}

// Original returns the plain letter behind cipher letter c.
func (s Settings) Original(c rune) (rune, bool) {
	r, ok := s.Reverse[c]
	return r, ok
}

// ExtractSettings scans the raw lines once. The first auxiliary definition
// wins; for cipher definitions the first one per letter wins and later
// disagreeing ones are reported and dropped.
func ExtractSettings(lines []string, ctx *Ctx) Settings {
	const stage = "settings"
	s := Settings{Reverse: map[rune]rune{}}
	for i, line := range lines {
		if !s.HasAux {
			if m := reAuxDef.FindStringSubmatch(line); m != nil {
				s.Aux = m[1]
				s.HasAux = true
				ctx.debugf(stage, i+1, "Found %s value: %s", AuxName, s.Aux)
			}
		}
		m := reCipherDef.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		token := rune(strings.ToLower(m[1])[0])
		plain := rune(strings.ToLower(m[2])[0])
		prev, seen := s.Reverse[token]
		switch {
		case !seen:
			s.Reverse[token] = plain
			ctx.debugf(stage, i+1, "Found cipher mapping: %c -> %c", token, plain)
		case prev != plain:
			ctx.warnf(stage, CodeCipherConflict, i+1, "Conflicting cipher definition for '%c' (%c, keeping %c)", token, plain, prev)
		}
	}
	if !s.HasAux {
		ctx.warnf(stage, CodeAuxMissing, 0, "%s variable definition ('set %s=...') was not found. %s slicing cannot be deobfuscated.", AuxName, AuxName, AuxName)
	}
	if len(s.Reverse) == 0 {
		ctx.warnf(stage, CodeCipherMissing, 0, "Cipher definitions ('set a=b', etc.) were not found. Letter substitution cannot be deobfuscated.")
	} else {
		ctx.infof(stage, "Built reverse cipher map with %d entries.", len(s.Reverse))
	}
	ctx.Stats.CipherEntries = len(s.Reverse)
	ctx.Stats.AuxFound = s.HasAux
	return s
}
