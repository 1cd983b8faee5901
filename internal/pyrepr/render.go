package pyrepr

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrUnrenderable is returned for value trees that have no canonical form
var ErrUnrenderable = errors.New("value cannot be rendered")

const maxDepth = 1000

var addressPattern = regexp.MustCompile(` at 0x[0-9a-fA-F]+`)

// printer renders value trees. Sets are always sorted; dicts keep their
// insertion order only when keepDictOrder is set.
type printer struct {
	keepDictOrder bool
}

// Canonicalize renders v the way the Python runtime's repr would, with
// unordered containers sorted and object addresses removed. Two values are
// equal exactly when their canonical forms are.
func Canonicalize(v Value) (string, error) {
	return printer{}.text(v)
}

// Repr renders v for display. It differs from Canonicalize only in keeping
// dict entries in insertion order, as Python prints them.
func Repr(v Value) (string, error) {
	return printer{keepDictOrder: true}.text(v)
}

func (p printer) text(v Value) (string, error) {
	var b strings.Builder
	if err := p.render(&b, v, 0); err != nil {
		return "", err
	}
	return b.String(), nil
}

// MustCanonicalize is Canonicalize for values known to be well formed.
func MustCanonicalize(v Value) string {
	s, err := Canonicalize(v)
	if err != nil {
		panic(err)
	}
	return s
}

func (p printer) render(b *strings.Builder, v Value, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("%w: nested deeper than %d", ErrUnrenderable, maxDepth)
	}

	switch v.Kind {
	case KindNone:
		b.WriteString("None")
	case KindBool:
		if v.Bool {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case KindInt:
		if v.Int == nil {
			return fmt.Errorf("%w: int without digits", ErrUnrenderable)
		}
		b.WriteString(v.Int.String())
	case KindFloat:
		b.WriteString(FormatFloat(v.Float))
	case KindStr:
		quoteStr(b, v.Str)
	case KindBytes:
		quoteBytes(b, v.Bytes)
	case KindList:
		b.WriteByte('[')
		if err := p.renderSeq(b, v.Items, depth); err != nil {
			return err
		}
		b.WriteByte(']')
	case KindTuple:
		b.WriteByte('(')
		if err := p.renderSeq(b, v.Items, depth); err != nil {
			return err
		}
		if len(v.Items) == 1 {
			b.WriteByte(',')
		}
		b.WriteByte(')')
	case KindSet:
		if len(v.Items) == 0 {
			b.WriteString("set()")
			return nil
		}
		return p.renderSet(b, v.Items, depth)
	case KindFrozenSet:
		if len(v.Items) == 0 {
			b.WriteString("frozenset()")
			return nil
		}
		b.WriteString("frozenset(")
		if err := p.renderSet(b, v.Items, depth); err != nil {
			return err
		}
		b.WriteByte(')')
	case KindDict:
		return p.renderDict(b, v.Pairs, depth)
	case KindOpaque:
		text := addressPattern.ReplaceAllString(v.Str, "")
		if text == "" {
			return fmt.Errorf("%w: empty repr", ErrUnrenderable)
		}
		b.WriteString(text)
	case KindCycle:
		switch v.Of {
		case KindList:
			b.WriteString("[...]")
		case KindTuple:
			b.WriteString("(...)")
		case KindDict, KindSet:
			b.WriteString("{...}")
		default:
			return fmt.Errorf("%w: cycle through %s", ErrUnrenderable, v.Of)
		}
	default:
		return fmt.Errorf("%w: kind %d", ErrUnrenderable, v.Kind)
	}
	return nil
}

func (p printer) renderSeq(b *strings.Builder, items []Value, depth int) error {
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := p.render(b, item, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (p printer) renderSet(b *strings.Builder, items []Value, depth int) error {
	texts, err := p.renderAll(items, depth)
	if err != nil {
		return err
	}
	idx := sortedIndex(items, texts)
	b.WriteByte('{')
	for i, j := range idx {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(texts[j])
	}
	b.WriteByte('}')
	return nil
}

func (p printer) renderDict(b *strings.Builder, pairs []Pair, depth int) error {
	keys := make([]Value, len(pairs))
	for i, kv := range pairs {
		keys[i] = kv.Key
	}
	keyTexts, err := p.renderAll(keys, depth)
	if err != nil {
		return err
	}
	order := make([]int, len(pairs))
	for i := range order {
		order[i] = i
	}
	if !p.keepDictOrder {
		order = sortedIndex(keys, keyTexts)
	}
	b.WriteByte('{')
	for i, j := range order {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(keyTexts[j])
		b.WriteString(": ")
		if err := p.render(b, pairs[j].Value, depth+1); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	return nil
}

func (p printer) renderAll(items []Value, depth int) ([]string, error) {
	texts := make([]string, len(items))
	for i, item := range items {
		var sb strings.Builder
		if err := p.render(&sb, item, depth+1); err != nil {
			return nil, err
		}
		texts[i] = sb.String()
	}
	return texts, nil
}

func sortedIndex(items []Value, texts []string) []int {
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return compare(items[idx[a]], items[idx[b]], texts[idx[a]], texts[idx[b]]) < 0
	})
	return idx
}

// FormatFloat renders f like Python's float repr: shortest round-trip
// digits, positional notation for decimal exponents in [-4, 16).
func FormatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}

	s := strconv.FormatFloat(f, 'e', -1, 64)
	sign := ""
	if s[0] == '-' {
		sign = "-"
		s = s[1:]
	}
	mant, expText, _ := strings.Cut(s, "e")
	exp, _ := strconv.Atoi(expText)
	digits := strings.Replace(mant, ".", "", 1)
	decpt := exp + 1

	if decpt > -4 && decpt <= 16 {
		switch {
		case decpt <= 0:
			return sign + "0." + strings.Repeat("0", -decpt) + digits
		case decpt >= len(digits):
			return sign + digits + strings.Repeat("0", decpt-len(digits)) + ".0"
		default:
			return sign + digits[:decpt] + "." + digits[decpt:]
		}
	}

	m := digits[:1]
	if len(digits) > 1 {
		m += "." + digits[1:]
	}
	e := decpt - 1
	esign := "+"
	if e < 0 {
		esign = "-"
		e = -e
	}
	return fmt.Sprintf("%s%se%s%02d", sign, m, esign, e)
}

func pickQuote(hasSingle, hasDouble bool) byte {
	if hasSingle && !hasDouble {
		return '"'
	}
	return '\''
}

func quoteStr(b *strings.Builder, s string) {
	quote := pickQuote(strings.ContainsRune(s, '\''), strings.ContainsRune(s, '"'))
	b.WriteByte(quote)
	for len(s) > 0 {
		r, size := decodeCodePoint(s)
		s = s[size:]
		switch {
		case r == rune(quote) || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\t':
			b.WriteString(`\t`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(b, `\x%02x`, r)
		case r < utf8.RuneSelf, unicode.IsPrint(r):
			b.WriteRune(r)
		case r < 0x100:
			fmt.Fprintf(b, `\x%02x`, r)
		case r < 0x10000:
			fmt.Fprintf(b, `\u%04x`, r)
		default:
			fmt.Fprintf(b, `\U%08x`, r)
		}
	}
	b.WriteByte(quote)
}

func quoteBytes(b *strings.Builder, data []byte) {
	text := string(data)
	quote := pickQuote(strings.IndexByte(text, '\'') >= 0, strings.IndexByte(text, '"') >= 0)
	b.WriteByte('b')
	b.WriteByte(quote)
	for _, c := range data {
		switch {
		case c == quote || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c == '\t':
			b.WriteString(`\t`)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c < 0x20 || c >= 0x7f:
			fmt.Fprintf(b, `\x%02x`, c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte(quote)
}
