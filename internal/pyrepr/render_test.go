package pyrepr

import (
	"errors"
	"math"
	"math/big"
	"testing"
)

func TestFormatFloat(t *testing.T) {
	// runtime addition; a constant 0.1 + 0.2 folds to exactly 0.3
	a, b := 0.1, 0.2

	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.0"},
		{math.Copysign(0, -1), "-0.0"},
		{1, "1.0"},
		{100, "100.0"},
		{0.5, "0.5"},
		{0.1, "0.1"},
		{a + b, "0.30000000000000004"},
		{123.456, "123.456"},
		{-2.5, "-2.5"},
		{0.0001, "0.0001"},
		{0.00001, "1e-05"},
		{1.5e-7, "1.5e-07"},
		{1e15, "1000000000000000.0"},
		{1e16, "1e+16"},
		{1e22, "1e+22"},
		{12345678901234567.0, "1.2345678901234568e+16"},
		{math.Inf(1), "inf"},
		{math.Inf(-1), "-inf"},
		{math.NaN(), "nan"},
	}

	for _, tt := range tests {
		if got := FormatFloat(tt.in); got != tt.want {
			t.Errorf("FormatFloat(%v) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestCanonicalize(t *testing.T) {
	huge, _ := new(big.Int).SetString("1267650600228229401496703205376", 10)

	tests := []struct {
		name string
		in   Value
		want string
	}{
		{"none", None(), "None"},
		{"true", Bool(true), "True"},
		{"false", Bool(false), "False"},
		{"negative int", Int(-30), "-30"},
		{"big int", BigInt(huge), "1267650600228229401496703205376"},
		{"float", Float(2.5), "2.5"},
		{"plain string", Str("hello"), "'hello'"},
		{"single quote inside", Str("it's"), `"it's"`},
		{"double quote inside", Str(`say "hi"`), `'say "hi"'`},
		{"both quotes", Str(`it's "x"`), `'it\'s "x"'`},
		{"escapes", Str("a\nb\tc\\"), `'a\nb\tc\\'`},
		{"control char", Str("\x00\x7f"), `'\x00\x7f'`},
		{"printable unicode", Str("café 😀"), "'café 😀'"},
		{"non-breaking space", Str("\u00a0"), `'\xa0'`},
		{"zero width space", Str("\u200b"), `'\u200b'`},
		{"bytes", Bytes([]byte{0, 'a'}), `b'\x00a'`},
		{"bytes with quote", Bytes([]byte("ab'")), `b"ab'"`},
		{"list", List(Int(3), Int(2), Int(1)), "[3, 2, 1]"},
		{"empty list", List(), "[]"},
		{"nested list", List(List(Int(1)), List()), "[[1], []]"},
		{"empty tuple", Tuple(), "()"},
		{"single tuple", Tuple(Int(1)), "(1,)"},
		{"pair tuple", Tuple(Int(1), Str("a")), "(1, 'a')"},
		{"empty set", Set(), "set()"},
		{"set sorted numerically", Set(Int(10), Int(9), Int(1)), "{1, 9, 10}"},
		{"mixed set", Set(Str("a"), Int(2), None()), "{None, 2, 'a'}"},
		{"set of floats and ints", Set(Float(1.5), Int(1), Int(2)), "{1, 1.5, 2}"},
		{"empty frozenset", FrozenSet(), "frozenset()"},
		{"frozenset", FrozenSet(Str("b"), Str("a")), "frozenset({'a', 'b'})"},
		{"empty dict", Dict(), "{}"},
		{"dict sorted by key", Dict(Pair{Str("b"), Int(2)}, Pair{Str("a"), Int(1)}), "{'a': 1, 'b': 2}"},
		{"dict nested", Dict(Pair{Int(1), List(Bool(true))}), "{1: [True]}"},
		{"opaque address stripped", Opaque("<generator object even_numbers at 0x7f3a2c1b9e40>"), "<generator object even_numbers>"},
		{"opaque kept", Opaque("Point(x=1, y=2)"), "Point(x=1, y=2)"},
		{"list cycle", List(Int(1), Cycle(KindList)), "[1, [...]]"},
		{"dict cycle", Dict(Pair{Str("self"), Cycle(KindDict)}), "{'self': {...}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.in)
			if err != nil {
				t.Fatalf("Canonicalize() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Canonicalize() = %s; want %s", got, tt.want)
			}
		})
	}
}

func TestRepr_KeepsDictOrder(t *testing.T) {
	v := List(
		Dict(Pair{Int(1), Str("a")}, Pair{Int(0), Str("b")}),
		Set(Int(2), Int(1)),
	)
	tests := []struct {
		name   string
		render func(Value) (string, error)
		want   string
	}{
		{"Canonicalize", Canonicalize, "[{0: 'b', 1: 'a'}, {1, 2}]"},
		{"Repr", Repr, "[{1: 'a', 0: 'b'}, {1, 2}]"},
	}
	for _, tt := range tests {
		got, err := tt.render(v)
		if err != nil {
			t.Fatalf("%s() error = %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s() = %s; want %s", tt.name, got, tt.want)
		}
	}
}

func TestCanonicalize_Deterministic(t *testing.T) {
	a := Set(Str("pear"), Str("apple"), Int(3), Tuple(Int(1), Int(2)))
	b := Set(Tuple(Int(1), Int(2)), Int(3), Str("apple"), Str("pear"))

	first := MustCanonicalize(a)
	for i := 0; i < 10; i++ {
		if got := MustCanonicalize(b); got != first {
			t.Fatalf("Canonicalize() = %s; want %s", got, first)
		}
	}
}

func TestCanonicalize_Unrenderable(t *testing.T) {
	deep := List()
	for i := 0; i < maxDepth+5; i++ {
		deep = List(deep)
	}

	tests := []struct {
		name string
		in   Value
	}{
		{"int without digits", Value{Kind: KindInt}},
		{"empty opaque", Opaque("")},
		{"unknown kind", Value{Kind: Kind(99)}},
		{"cycle through str", Cycle(KindStr)},
		{"nested int without digits", List(Int(1), Value{Kind: KindInt})},
		{"too deep", deep},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Canonicalize(tt.in)
			if !errors.Is(err, ErrUnrenderable) {
				t.Errorf("Canonicalize() error = %v; want ErrUnrenderable", err)
			}
		})
	}
}
