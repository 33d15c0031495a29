package engine

import (
	"fmt"
	mathrand "math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Synthetic SomalifuscatorV2-style input, generated from a seed so that
// failures can be replayed.

func newRand(seed int64) *mathrand.Rand {
	return mathrand.New(mathrand.NewSource(seed))
}

// randJunkName returns a junk variable name. Three characters or more, so
// it can never be read as a %c% or %c1% cipher reference.
func randJunkName(r *mathrand.Rand) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	n := 3 + r.Intn(6)
	b := make([]byte, n)
	b[0] = alphabet[r.Intn(52)]
	for i := 1; i < n; i++ {
		b[i] = alphabet[r.Intn(len(alphabet))]
	}
	return string(b)
}

// shuffleInts shuffles the int slice (Fisher-Yates).
func shuffleInts(r *mathrand.Rand, a []int) {
	for i := len(a) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		a[i], a[j] = a[j], a[i]
	}
}

// cipherEncoder writes text the way the obfuscator does: letters through a
// random substitution, some characters through KDOT or environment slices,
// some wrapped in junk references.
type cipherEncoder struct {
	r   *mathrand.Rand
	aux string
	env Environment
	// forward maps a plain letter to the letter referenced as %c%.
	forward map[rune]rune
}

func newCipherEncoder(r *mathrand.Rand) *cipherEncoder {
	letters := []rune("abcdefghijklmnopqrstuvwxyz")
	perm := r.Perm(len(letters))
	e := &cipherEncoder{r: r, env: DefaultEnvironment(), forward: map[rune]rune{}}
	for i, p := range letters {
		e.forward[p] = letters[perm[i]]
	}
	aux := make([]byte, 20)
	for i := range aux {
		aux[i] = "abcdefghijklmnopqrstuvwxyz0123456789"[r.Intn(36)]
	}
	e.aux = string(aux)
	return e
}

// header returns the definition lines the resolver needs.
func (e *cipherEncoder) header() []string {
	lines := []string{"::Made by K.Dot using SomalifuscatorV2", "@echo off", "chcp 65001 > nul", "set KDOT=" + e.aux}
	for p := 'a'; p <= 'z'; p++ {
		lines = append(lines, fmt.Sprintf("set %c=%c", e.forward[p], p))
	}
	return lines
}

// encode obfuscates one line of plain text. The text must not contain '%'.
func (e *cipherEncoder) encode(plain string) string {
	var b strings.Builder
	prevCipher := false
	for _, ch := range plain {
		tok, cipher := e.encodeChar(ch, prevCipher)
		b.WriteString(tok)
		prevCipher = cipher
	}
	return b.String()
}

func (e *cipherEncoder) encodeChar(ch rune, prevCipher bool) (string, bool) {
	lower := ch
	if ch >= 'A' && ch <= 'Z' {
		lower = ch + ('a' - 'A')
	}
	switch e.r.Intn(4) {
	case 0:
		if i := strings.IndexRune(e.aux, ch); i >= 0 {
			return fmt.Sprintf("%%KDOT:~%d,1%%", e.sliceIndex(i, len(e.aux))), false
		}
	case 1:
		if tok, ok := e.envSlice(ch); ok {
			return tok, false
		}
	case 2:
		// Letters inside a wrap would read as %c%; a wrap right after a
		// cipher reference would lose its head to the junk suffix.
		if !(lower >= 'a' && lower <= 'z') && !prevCipher && ch != ' ' {
			return "%" + randJunkName(e.r) + "%" + string(ch) + "%" + randJunkName(e.r) + "%", false
		}
	}
	if lower >= 'a' && lower <= 'z' {
		tok := "%" + string(e.forward[lower])
		if ch != lower {
			tok += "1"
		}
		tok += "%"
		if e.r.Intn(2) == 0 {
			tok += "%" + randJunkName(e.r) + "%"
		}
		return tok, true
	}
	return string(ch), false
}

func (e *cipherEncoder) sliceIndex(i, n int) int {
	if e.r.Intn(2) == 0 {
		return i - n
	}
	return i
}

func (e *cipherEncoder) envSlice(ch rune) (string, bool) {
	names := []string{"PROGRAMFILES", "COMMONPROGRAMFILES", "OS", "PUBLIC", "SYSTEMDRIVE"}
	name := names[e.r.Intn(len(names))]
	value := []rune(e.env[name])
	for i, c := range value {
		if c == ch {
			return fmt.Sprintf("%%%s:~%d,1%%", name, e.sliceIndex(i, len(value))), true
		}
	}
	return "", false
}

// mathFor returns an expression that evaluates to n without using '^'.
func mathFor(r *mathrand.Rand, n int) string {
	a := 1 + r.Intn(500)
	switch r.Intn(5) {
	case 0:
		if n-a < 0 {
			return fmt.Sprintf("%d - %d", a, a-n)
		}
		return fmt.Sprintf("%d+%d", a, n-a)
	case 1:
		k := 2 + r.Intn(7)
		return fmt.Sprintf("%d*%d+%d", n/k, k, n%k)
	case 2:
		return fmt.Sprintf("0x%x + %d - %d", a, n, a)
	case 3:
		s := 1 + r.Intn(4)
		return fmt.Sprintf("(%d<<%d)+%d", n>>uint(s), s, n-(n>>uint(s))<<uint(s))
	default:
		m := n + 1 + r.Intn(100)
		return fmt.Sprintf("(%d+%d*%d) %% %d", n, a, m, m)
	}
}

// scrambleScript relocates every statement into a labeled block at the end
// of the script and leaves a dispatch site in its place. Blocks are written
// in random order; labels are distinct and random.
func scrambleScript(r *mathrand.Rand, stmts []string) []string {
	n := len(stmts)
	labels := r.Perm(9000)[:2*n]
	var main, tail []string
	type block struct{ label, ret int }
	blocks := make([]block, n)
	for i := range stmts {
		target, ret := labels[i]+1000, labels[n+i]+1000
		blocks[i] = block{target, ret}
		main = append(main,
			"set /a ans="+mathFor(r, target),
			"goto %ans%",
			fmt.Sprintf(":%d", ret))
	}
	main = append(main, "goto %ans%", "goto :eof")

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	shuffleInts(r, order)
	for _, i := range order {
		tail = append(tail,
			fmt.Sprintf(":%d", blocks[i].label),
			stmts[i],
			"set /a ans="+mathFor(r, blocks[i].ret),
			"goto %ans%")
	}
	return append(main, tail...)
}

func joinCRLF(lines []string) []byte {
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

func TestSynthHelpers(t *testing.T) {
	r := newRand(7)
	for i := 0; i < 200; i++ {
		n := r.Intn(9000) + 1000
		expr := mathFor(r, n)
		v, err := EvalExpr(expr, CaretUnsupported)
		require.NoError(t, err, expr)
		require.Equal(t, int64(n), v, expr)
	}
}
