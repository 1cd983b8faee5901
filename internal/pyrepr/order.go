package pyrepr

import (
	"cmp"
	"math"
	"math/big"
	"strings"
)

const (
	rankNone = iota
	rankNumber
	rankStr
	rankBytes
	rankTuple
	rankFrozenSet
	rankOther
)

func rank(v Value) int {
	switch v.Kind {
	case KindNone:
		return rankNone
	case KindBool, KindInt, KindFloat:
		return rankNumber
	case KindStr:
		return rankStr
	case KindBytes:
		return rankBytes
	case KindTuple:
		return rankTuple
	case KindFrozenSet:
		return rankFrozenSet
	default:
		return rankOther
	}
}

// compare is a total order over rendered values: numbers compare by
// magnitude, strings by code point, everything else by canonical text.
func compare(a, b Value, at, bt string) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch ra {
	case rankNumber:
		if c := compareNumbers(a, b); c != 0 {
			return c
		}
	case rankStr:
		if c := strings.Compare(a.Str, b.Str); c != 0 {
			return c
		}
	}
	return strings.Compare(at, bt)
}

func compareNumbers(a, b Value) int {
	an, bn := isNaN(a), isNaN(b)
	switch {
	case an && bn:
		return 0
	case an:
		return 1
	case bn:
		return -1
	}
	return toBigFloat(a).Cmp(toBigFloat(b))
}

func isNaN(v Value) bool {
	return v.Kind == KindFloat && math.IsNaN(v.Float)
}

func toBigFloat(v Value) *big.Float {
	switch v.Kind {
	case KindBool:
		if v.Bool {
			return big.NewFloat(1)
		}
		return big.NewFloat(0)
	case KindInt:
		if v.Int == nil {
			return new(big.Float)
		}
		return new(big.Float).SetInt(v.Int)
	default:
		return big.NewFloat(v.Float)
	}
}
