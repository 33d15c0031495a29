package engine

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// CaretMode selects how '^' is read in dispatch expressions. Scripts seen in
// the wild disagree, so the default refuses to guess.
type CaretMode string

const (
	CaretUnsupported CaretMode = "unsupported"
	CaretXor         CaretMode = "xor"
	CaretPow         CaretMode = "pow"
)

// CaretModes lists the accepted values in display order.
var CaretModes = []CaretMode{CaretUnsupported, CaretXor, CaretPow}

// ParseCaretMode accepts a mode name; the empty string means unsupported.
func ParseCaretMode(s string) (CaretMode, error) {
	switch CaretMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", CaretUnsupported:
		return CaretUnsupported, nil
	case CaretXor:
		return CaretXor, nil
	case CaretPow:
		return CaretPow, nil
	}
	names := make([]string, len(CaretModes))
	for i, m := range CaretModes {
		names[i] = string(m)
	}
	return "", errors.Errorf("invalid caret mode: %q (%s)", s, strings.Join(names, "|"))
}

var (
	ErrExprSyntax      = errors.New("syntax error")
	ErrExprOverflow    = errors.New("integer overflow")
	ErrExprDivZero     = errors.New("division by zero")
	ErrExprCaret       = errors.New("caret operator is ambiguous (xor or power); pick a caret mode")
	ErrExprEmpty       = errors.New("empty expression")
	ErrExprShiftCount  = errors.New("negative shift count")
	ErrExprBadExponent = errors.New("negative exponent")
)

type tokKind int

const (
	tokEOF tokKind = iota
	tokNum
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokKind
	text string
	num  int64
	pos  int
}

// lexExpr splits expr into tokens. Whitespace is insignificant.
func lexExpr(expr string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c >= '0' && c <= '9':
			j := i
			for j < len(expr) && isLiteralByte(expr[j]) {
				j++
			}
			n, err := parseLiteral(expr[i:j])
			if err != nil {
				return nil, errors.Wrapf(err, "at offset %d", i)
			}
			toks = append(toks, token{kind: tokNum, text: expr[i:j], num: n, pos: i})
			i = j
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == '<' || c == '>':
			if i+1 >= len(expr) || expr[i+1] != c {
				return nil, errors.Wrapf(ErrExprSyntax, "unexpected %q at offset %d", c, i)
			}
			toks = append(toks, token{kind: tokOp, text: expr[i : i+2], pos: i})
			i += 2
		case c == '^':
			// ^^ is the escaped caret as written in batch source.
			j := i + 1
			if j < len(expr) && expr[j] == '^' {
				j++
			}
			toks = append(toks, token{kind: tokOp, text: "^", pos: i})
			i = j
		case c == '%':
			// %% is how modulo is written inside a batch file.
			j := i + 1
			if j < len(expr) && expr[j] == '%' {
				j++
			}
			toks = append(toks, token{kind: tokOp, text: "%", pos: i})
			i = j
		case strings.IndexByte("+-*/&|~", c) >= 0:
			toks = append(toks, token{kind: tokOp, text: string(c), pos: i})
			i++
		default:
			return nil, errors.Wrapf(ErrExprSyntax, "unexpected %q at offset %d", c, i)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(expr)}), nil
}

func isLiteralByte(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// parseLiteral reads decimal, 0x hex and leading-zero octal numbers.
func parseLiteral(s string) (int64, error) {
	base := 10
	digits := s
	switch {
	case len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X"):
		base, digits = 16, s[2:]
	case len(s) > 1 && s[0] == '0':
		base, digits = 8, s[1:]
	}
	n, err := strconv.ParseInt(digits, base, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return 0, errors.Wrapf(ErrExprOverflow, "literal %s", s)
		}
		return 0, errors.Wrapf(ErrExprSyntax, "bad literal %s", s)
	}
	return n, nil
}

type exprParser struct {
	toks  []token
	pos   int
	caret CaretMode
}

// EvalExpr evaluates a set /a arithmetic expression. It knows no variables
// and has no side effects; any failure is returned as an error.
func EvalExpr(expr string, caret CaretMode) (int64, error) {
	if strings.TrimSpace(expr) == "" {
		return 0, ErrExprEmpty
	}
	toks, err := lexExpr(expr)
	if err != nil {
		return 0, err
	}
	p := &exprParser{toks: toks, caret: caret}
	v, err := p.parseOr()
	if err != nil {
		return 0, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return 0, errors.Wrapf(ErrExprSyntax, "unexpected %q at offset %d", t.text, t.pos)
	}
	return v, nil
}

func (p *exprParser) peek() token { return p.toks[p.pos] }

func (p *exprParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *exprParser) isOp(ops ...string) (string, bool) {
	t := p.peek()
	if t.kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if t.text == op {
			return op, true
		}
	}
	return "", false
}

func (p *exprParser) parseOr() (int64, error) {
	l, err := p.parseXor()
	if err != nil {
		return 0, err
	}
	for {
		if _, ok := p.isOp("|"); !ok {
			return l, nil
		}
		p.next()
		r, err := p.parseXor()
		if err != nil {
			return 0, err
		}
		l |= r
	}
}

// parseXor handles '^' at the bitwise level. In pow mode the caret binds in
// parsePow instead and never reaches here.
func (p *exprParser) parseXor() (int64, error) {
	l, err := p.parseAnd()
	if err != nil {
		return 0, err
	}
	for {
		if _, ok := p.isOp("^"); !ok || p.caret == CaretPow {
			return l, nil
		}
		if p.caret != CaretXor {
			return 0, ErrExprCaret
		}
		p.next()
		r, err := p.parseAnd()
		if err != nil {
			return 0, err
		}
		l ^= r
	}
}

func (p *exprParser) parseAnd() (int64, error) {
	l, err := p.parseShift()
	if err != nil {
		return 0, err
	}
	for {
		if _, ok := p.isOp("&"); !ok {
			return l, nil
		}
		p.next()
		r, err := p.parseShift()
		if err != nil {
			return 0, err
		}
		l &= r
	}
}

func (p *exprParser) parseShift() (int64, error) {
	l, err := p.parseAdd()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.isOp("<<", ">>")
		if !ok {
			return l, nil
		}
		p.next()
		r, err := p.parseAdd()
		if err != nil {
			return 0, err
		}
		if l, err = shift(l, r, op); err != nil {
			return 0, err
		}
	}
}

func (p *exprParser) parseAdd() (int64, error) {
	l, err := p.parseMul()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.isOp("+", "-")
		if !ok {
			return l, nil
		}
		p.next()
		r, err := p.parseMul()
		if err != nil {
			return 0, err
		}
		if op == "+" {
			l, err = addInt(l, r)
		} else {
			l, err = subInt(l, r)
		}
		if err != nil {
			return 0, err
		}
	}
}

func (p *exprParser) parseMul() (int64, error) {
	l, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.isOp("*", "/", "%")
		if !ok {
			return l, nil
		}
		p.next()
		r, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		switch op {
		case "*":
			l, err = mulInt(l, r)
		case "/":
			l, err = divInt(l, r)
		case "%":
			l, err = modInt(l, r)
		}
		if err != nil {
			return 0, err
		}
	}
}

func (p *exprParser) parseUnary() (int64, error) {
	op, ok := p.isOp("+", "-", "~")
	if !ok {
		return p.parsePow()
	}
	p.next()
	v, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	switch op {
	case "-":
		if v == math.MinInt64 {
			return 0, ErrExprOverflow
		}
		return -v, nil
	case "~":
		return ^v, nil
	}
	return v, nil
}

// parsePow is right associative: 2^3^2 is 2^(3^2).
func (p *exprParser) parsePow() (int64, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return 0, err
	}
	if _, ok := p.isOp("^"); !ok || p.caret != CaretPow {
		return base, nil
	}
	p.next()
	exp, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	return powInt(base, exp)
}

func (p *exprParser) parsePrimary() (int64, error) {
	t := p.next()
	switch t.kind {
	case tokNum:
		return t.num, nil
	case tokLParen:
		v, err := p.parseOr()
		if err != nil {
			return 0, err
		}
		if c := p.next(); c.kind != tokRParen {
			return 0, errors.Wrapf(ErrExprSyntax, "missing ')' at offset %d", c.pos)
		}
		return v, nil
	case tokEOF:
		return 0, errors.Wrap(ErrExprSyntax, "unexpected end of expression")
	}
	return 0, errors.Wrapf(ErrExprSyntax, "unexpected %q at offset %d", t.text, t.pos)
}

func addInt(a, b int64) (int64, error) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, ErrExprOverflow
	}
	return s, nil
}

func subInt(a, b int64) (int64, error) {
	d := a - b
	if (b < 0 && d < a) || (b > 0 && d > a) {
		return 0, ErrExprOverflow
	}
	return d, nil
}

func mulInt(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, ErrExprOverflow
	}
	m := a * b
	if m/b != a {
		return 0, ErrExprOverflow
	}
	return m, nil
}

// divInt truncates toward zero, as cmd.exe does.
func divInt(a, b int64) (int64, error) {
	if b == 0 {
		return 0, ErrExprDivZero
	}
	if a == math.MinInt64 && b == -1 {
		return 0, ErrExprOverflow
	}
	return a / b, nil
}

// modInt keeps the sign of the dividend.
func modInt(a, b int64) (int64, error) {
	if b == 0 {
		return 0, ErrExprDivZero
	}
	if b == -1 {
		return 0, nil
	}
	return a % b, nil
}

func shift(v, n int64, op string) (int64, error) {
	if n < 0 {
		return 0, ErrExprShiftCount
	}
	if n > 63 {
		if op == ">>" && v < 0 {
			return -1, nil
		}
		if op == "<<" && v != 0 {
			return 0, ErrExprOverflow
		}
		return 0, nil
	}
	if op == ">>" {
		return v >> uint(n), nil
	}
	r := v << uint(n)
	if r>>uint(n) != v {
		return 0, ErrExprOverflow
	}
	return r, nil
}

func powInt(base, exp int64) (int64, error) {
	if exp < 0 {
		return 0, ErrExprBadExponent
	}
	result := int64(1)
	for exp > 0 {
		var err error
		if exp&1 == 1 {
			if result, err = mulInt(result, base); err != nil {
				return 0, err
			}
		}
		exp >>= 1
		if exp > 0 {
			if base, err = mulInt(base, base); err != nil {
				return 0, err
			}
		}
	}
	return result, nil
}
