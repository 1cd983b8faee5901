package pyrepr

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrSyntax is wrapped by every Parse failure
var ErrSyntax = errors.New("invalid literal")

// complexPattern matches complex reprs: "2j", "-1.5j", "(1+2j)", "(nan-infj)".
var complexPattern = regexp.MustCompile(
	`^(\((?:[+-]?` + realPart + `)?[+-]` + realPart + `j\)|[+-]?` + realPart + `j)(?:[^\w.]|$)`)

const realPart = `(?:(?:\d+\.?\d*|\.\d+)(?:e[+-]?\d+)?|inf|nan)`

// Parse reads a Python literal: the canonical form produced by Canonicalize
// or any equivalent source spelling of it.
func Parse(text string) (Value, error) {
	p := &parser{src: text}
	v, err := p.value(0)
	if err != nil {
		return Value{}, err
	}
	p.skipSpace()
	if !p.eof() {
		return Value{}, p.errorf("unexpected %q", p.src[p.pos:])
	}
	return v, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", ErrSyntax, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) skipSpace() {
	for !p.eof() {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

// consume skips whitespace then the literal token s if present.
func (p *parser) consume(s string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.src[p.pos:], s) {
		p.pos += len(s)
		return true
	}
	return false
}

func (p *parser) expect(s string) error {
	if !p.consume(s) {
		return p.errorf("expected %q", s)
	}
	return nil
}

func (p *parser) value(depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, p.errorf("nested deeper than %d", maxDepth)
	}
	p.skipSpace()
	if p.eof() {
		return Value{}, p.errorf("unexpected end of input")
	}

	if m := complexPattern.FindStringSubmatch(p.src[p.pos:]); m != nil {
		p.pos += len(m[1])
		return Opaque(m[1]), nil
	}

	c := p.peek()
	switch {
	case c == '[':
		return p.list(depth)
	case c == '(':
		return p.tuple(depth)
	case c == '{':
		return p.braces(depth)
	case c == '<':
		return p.opaque()
	case c == '\'' || c == '"':
		return p.str("")
	case c == '-' || c == '+':
		p.pos++
		v, err := p.value(depth + 1)
		if err != nil {
			return Value{}, err
		}
		if c == '+' {
			return v, nil
		}
		return negate(v, p)
	case isDigit(c) || c == '.':
		return p.number()
	case isIdentStart(c):
		return p.ident(depth)
	}
	return Value{}, p.errorf("unexpected %q", c)
}

func negate(v Value, p *parser) (Value, error) {
	switch v.Kind {
	case KindInt:
		return BigInt(new(big.Int).Neg(v.Int)), nil
	case KindFloat:
		return Float(-v.Float), nil
	case KindBool:
		if v.Bool {
			return Int(-1), nil
		}
		return Int(0), nil
	}
	return Value{}, p.errorf("bad operand for unary -: %s", v.Kind)
}

// items parses comma separated values up to close, allowing a trailing comma.
func (p *parser) items(close string, depth int) ([]Value, bool, error) {
	var out []Value
	sawComma := false
	for {
		if p.consume(close) {
			return out, sawComma, nil
		}
		v, err := p.value(depth + 1)
		if err != nil {
			return nil, false, err
		}
		out = append(out, v)
		if p.consume(",") {
			sawComma = true
			continue
		}
		if err := p.expect(close); err != nil {
			return nil, false, err
		}
		return out, sawComma, nil
	}
}

func (p *parser) cycleMarker(close string) bool {
	save := p.pos
	if p.consume("...") && p.consume(close) {
		return true
	}
	p.pos = save
	return false
}

func (p *parser) list(depth int) (Value, error) {
	p.pos++
	if p.cycleMarker("]") {
		return Cycle(KindList), nil
	}
	items, _, err := p.items("]", depth)
	if err != nil {
		return Value{}, err
	}
	return List(items...), nil
}

func (p *parser) tuple(depth int) (Value, error) {
	p.pos++
	if p.cycleMarker(")") {
		return Cycle(KindTuple), nil
	}
	items, sawComma, err := p.items(")", depth)
	if err != nil {
		return Value{}, err
	}
	if len(items) == 1 && !sawComma {
		return items[0], nil
	}
	return Tuple(items...), nil
}

func (p *parser) braces(depth int) (Value, error) {
	p.pos++
	if p.cycleMarker("}") {
		return Cycle(KindDict), nil
	}
	if p.consume("}") {
		return Dict(), nil
	}

	first, err := p.value(depth + 1)
	if err != nil {
		return Value{}, err
	}
	if !p.consume(":") {
		rest := []Value{first}
		if p.consume(",") {
			more, _, err := p.items("}", depth)
			if err != nil {
				return Value{}, err
			}
			rest = append(rest, more...)
		} else if err := p.expect("}"); err != nil {
			return Value{}, err
		}
		return Set(rest...), nil
	}

	var pairs []Pair
	key := first
	for {
		val, err := p.value(depth + 1)
		if err != nil {
			return Value{}, err
		}
		pairs = append(pairs, Pair{Key: key, Value: val})
		if !p.consume(",") {
			break
		}
		if p.consume("}") {
			return Dict(pairs...), nil
		}
		if key, err = p.value(depth + 1); err != nil {
			return Value{}, err
		}
		if err := p.expect(":"); err != nil {
			return Value{}, err
		}
	}
	if err := p.expect("}"); err != nil {
		return Value{}, err
	}
	return Dict(pairs...), nil
}

func (p *parser) opaque() (Value, error) {
	start := p.pos
	level := 0
	for !p.eof() {
		switch p.src[p.pos] {
		case '<':
			level++
		case '>':
			level--
			if level == 0 {
				p.pos++
				return Opaque(p.src[start:p.pos]), nil
			}
		}
		p.pos++
	}
	return Value{}, p.errorf("unterminated <...>")
}

func (p *parser) ident(depth int) (Value, error) {
	start := p.pos
	for !p.eof() && isIdentPart(p.peek()) {
		p.pos++
	}
	// dotted names such as datetime.date
	for p.peek() == '.' && p.pos+1 < len(p.src) && isIdentStart(p.src[p.pos+1]) {
		p.pos++
		for !p.eof() && isIdentPart(p.peek()) {
			p.pos++
		}
	}
	name := p.src[start:p.pos]

	if c := p.peek(); (c == '\'' || c == '"') && isStringPrefix(name) {
		return p.str(strings.ToLower(name))
	}

	switch name {
	case "None":
		return None(), nil
	case "True":
		return Bool(true), nil
	case "False":
		return Bool(false), nil
	case "inf":
		return Float(math.Inf(1)), nil
	case "nan":
		return Float(math.NaN()), nil
	case "set", "frozenset":
		return p.setCall(name, depth)
	case "Ellipsis", "NotImplemented":
		return Opaque(name), nil
	}
	if p.peek() == '(' {
		return p.call(start)
	}
	p.pos = start
	return Value{}, p.errorf("unknown name %q", name)
}

// call reads a constructor-style repr such as range(0, 3) or
// Decimal('1.5') verbatim. Objects without literal syntax compare by that
// text.
func (p *parser) call(start int) (Value, error) {
	var closers []byte
	for !p.eof() {
		c := p.src[p.pos]
		switch c {
		case '(', '[', '{':
			closers = append(closers, map[byte]byte{'(': ')', '[': ']', '{': '}'}[c])
		case ')', ']', '}':
			if len(closers) == 0 || closers[len(closers)-1] != c {
				return Value{}, p.errorf("unbalanced %q", c)
			}
			closers = closers[:len(closers)-1]
			if len(closers) == 0 {
				p.pos++
				return Opaque(p.src[start:p.pos]), nil
			}
		case '\'', '"':
			if err := p.skipQuoted(c); err != nil {
				return Value{}, err
			}
			continue
		}
		p.pos++
	}
	return Value{}, p.errorf("unterminated %s(...)", p.src[start:strings.IndexByte(p.src[start:], '(')+start])
}

func (p *parser) skipQuoted(quote byte) error {
	for p.pos++; !p.eof(); p.pos++ {
		switch p.src[p.pos] {
		case '\\':
			p.pos++
		case quote:
			p.pos++
			return nil
		}
	}
	return p.errorf("unterminated string")
}

// setCall parses set() / frozenset() with an optional iterable literal argument.
func (p *parser) setCall(name string, depth int) (Value, error) {
	if err := p.expect("("); err != nil {
		return Value{}, err
	}
	var items []Value
	if !p.consume(")") {
		arg, err := p.value(depth + 1)
		if err != nil {
			return Value{}, err
		}
		switch arg.Kind {
		case KindList, KindTuple, KindSet, KindFrozenSet:
			items = arg.Items
		case KindDict:
			if len(arg.Pairs) != 0 {
				return Value{}, p.errorf("%s() of a dict is not supported", name)
			}
		default:
			return Value{}, p.errorf("%s() argument must be a literal container", name)
		}
		if err := p.expect(")"); err != nil {
			return Value{}, err
		}
	}
	if name == "frozenset" {
		return FrozenSet(items...), nil
	}
	return Set(items...), nil
}

func (p *parser) number() (Value, error) {
	start := p.pos
	if p.peek() == '0' && p.pos+1 < len(p.src) {
		base := 0
		switch p.src[p.pos+1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			p.pos += 2
			ds := p.pos
			for !p.eof() && (isHexDigit(p.peek()) || p.peek() == '_') {
				p.pos++
			}
			n, ok := new(big.Int).SetString(strings.ReplaceAll(p.src[ds:p.pos], "_", ""), base)
			if !ok {
				return Value{}, p.errorf("bad integer %q", p.src[start:p.pos])
			}
			return BigInt(n), nil
		}
	}

	isFloat := false
	p.digits()
	if p.peek() == '.' {
		isFloat = true
		p.pos++
		p.digits()
	}
	if c := p.peek(); c == 'e' || c == 'E' {
		isFloat = true
		p.pos++
		if c := p.peek(); c == '+' || c == '-' {
			p.pos++
		}
		p.digits()
	}
	if c := p.peek(); c == 'j' || c == 'J' {
		return Value{}, p.errorf("complex literals are not supported")
	}

	text := strings.ReplaceAll(p.src[start:p.pos], "_", "")
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return Value{}, p.errorf("bad float %q", text)
		}
		return Float(f), nil
	}
	n, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return Value{}, p.errorf("bad integer %q", text)
	}
	return BigInt(n), nil
}

func (p *parser) digits() {
	for !p.eof() && (isDigit(p.peek()) || p.peek() == '_') {
		p.pos++
	}
}

// str parses a quoted literal; prefix is the lower-cased string prefix.
func (p *parser) str(prefix string) (Value, error) {
	raw := strings.Contains(prefix, "r")
	isBytes := strings.Contains(prefix, "b")

	quote := p.src[p.pos : p.pos+1]
	if strings.HasPrefix(p.src[p.pos:], strings.Repeat(quote, 3)) {
		quote = strings.Repeat(quote, 3)
	}
	p.pos += len(quote)

	var sb strings.Builder
	for {
		if p.eof() {
			return Value{}, p.errorf("unterminated string")
		}
		if strings.HasPrefix(p.src[p.pos:], quote) {
			p.pos += len(quote)
			break
		}
		c := p.src[p.pos]
		if c == '\n' && len(quote) == 1 {
			return Value{}, p.errorf("newline in string")
		}
		if c != '\\' {
			r, size := utf8.DecodeRuneInString(p.src[p.pos:])
			if isBytes && r >= utf8.RuneSelf {
				return Value{}, p.errorf("bytes can only contain ASCII characters")
			}
			sb.WriteString(p.src[p.pos : p.pos+size])
			p.pos += size
			continue
		}
		if raw {
			sb.WriteByte('\\')
			p.pos++
			if !p.eof() {
				sb.WriteByte(p.src[p.pos])
				p.pos++
			}
			continue
		}
		if err := p.escape(&sb, isBytes); err != nil {
			return Value{}, err
		}
	}

	if isBytes {
		return Bytes([]byte(sb.String())), nil
	}
	return Str(sb.String()), nil
}

func (p *parser) escape(sb *strings.Builder, isBytes bool) error {
	p.pos++ // backslash
	if p.eof() {
		return p.errorf("trailing backslash")
	}
	c := p.src[p.pos]
	p.pos++

	writeCode := func(n uint64) {
		if isBytes {
			sb.WriteByte(byte(n))
		} else {
			writeCodePoint(sb, rune(n))
		}
	}

	switch c {
	case '\n':
	case '\\', '\'', '"':
		sb.WriteByte(c)
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case 'a':
		sb.WriteByte('\a')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case 'v':
		sb.WriteByte('\v')
	case '0', '1', '2', '3', '4', '5', '6', '7':
		start := p.pos - 1
		for p.pos-start < 3 && !p.eof() && p.peek() >= '0' && p.peek() <= '7' {
			p.pos++
		}
		n, _ := strconv.ParseUint(p.src[start:p.pos], 8, 32)
		writeCode(n)
	case 'x', 'u', 'U':
		width := map[byte]int{'x': 2, 'u': 4, 'U': 8}[c]
		if (c == 'u' || c == 'U') && isBytes {
			sb.WriteByte('\\')
			sb.WriteByte(c)
			return nil
		}
		if p.pos+width > len(p.src) {
			return p.errorf("truncated \\%c escape", c)
		}
		n, err := strconv.ParseUint(p.src[p.pos:p.pos+width], 16, 32)
		if err != nil || n > utf8.MaxRune {
			return p.errorf("bad \\%c escape", c)
		}
		p.pos += width
		writeCode(n)
	default:
		sb.WriteByte('\\')
		sb.WriteByte(c)
	}
	return nil
}

func isDigit(c byte) bool    { return c >= '0' && c <= '9' }
func isHexDigit(c byte) bool { return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

func isStringPrefix(name string) bool {
	switch strings.ToLower(name) {
	case "r", "b", "u", "rb", "br":
		return true
	}
	return false
}
