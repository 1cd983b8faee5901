package pyrepr

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"unicode/utf8"
)

// node is the tagged wire form emitted by the execution harness:
// {"t": kind, "v": payload}. Strings JSON cannot carry (lone surrogates)
// arrive base64 encoded with "enc" set.
type node struct {
	T   string          `json:"t"`
	V   json.RawMessage `json:"v,omitempty"`
	Enc string          `json:"enc,omitempty"`
}

const encBase64 = "base64"

// UnmarshalJSON decodes the harness wire form
func (v *Value) UnmarshalJSON(data []byte) error {
	var n node
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	kind, ok := kindFromName(n.T)
	if !ok {
		return fmt.Errorf("unknown value tag %q", n.T)
	}

	*v = Value{Kind: kind}
	switch kind {
	case KindNone:
	case KindBool:
		return json.Unmarshal(n.V, &v.Bool)
	case KindInt:
		var text string
		if err := json.Unmarshal(n.V, &text); err != nil {
			return err
		}
		i, ok := new(big.Int).SetString(text, 10)
		if !ok {
			return fmt.Errorf("bad int %q", text)
		}
		v.Int = i
	case KindFloat:
		var text string
		if err := json.Unmarshal(n.V, &text); err != nil {
			return err
		}
		f, err := parseFloatRepr(text)
		if err != nil {
			return err
		}
		v.Float = f
	case KindStr, KindOpaque:
		if n.Enc == encBase64 {
			var raw []byte
			if err := json.Unmarshal(n.V, &raw); err != nil {
				return err
			}
			v.Str = string(raw)
			return nil
		}
		return json.Unmarshal(n.V, &v.Str)
	case KindBytes:
		return json.Unmarshal(n.V, &v.Bytes)
	case KindList, KindTuple, KindSet, KindFrozenSet:
		return json.Unmarshal(n.V, &v.Items)
	case KindDict:
		var pairs [][2]Value
		if err := json.Unmarshal(n.V, &pairs); err != nil {
			return err
		}
		v.Pairs = make([]Pair, len(pairs))
		for i, kv := range pairs {
			v.Pairs[i] = Pair{Key: kv[0], Value: kv[1]}
		}
	case KindCycle:
		var of string
		if err := json.Unmarshal(n.V, &of); err != nil {
			return err
		}
		if v.Of, ok = kindFromName(of); !ok {
			return fmt.Errorf("unknown cycle kind %q", of)
		}
	}
	return nil
}

// MarshalJSON encodes the harness wire form
func (v Value) MarshalJSON() ([]byte, error) {
	var payload any
	enc := ""
	switch v.Kind {
	case KindNone:
	case KindBool:
		payload = v.Bool
	case KindInt:
		if v.Int == nil {
			return nil, fmt.Errorf("%w: int without digits", ErrUnrenderable)
		}
		payload = v.Int.String()
	case KindFloat:
		payload = FormatFloat(v.Float)
	case KindStr, KindOpaque:
		payload = v.Str
		if !utf8.ValidString(v.Str) {
			payload, enc = []byte(v.Str), encBase64
		}
	case KindBytes:
		payload = v.Bytes
	case KindList, KindTuple, KindSet, KindFrozenSet:
		items := v.Items
		if items == nil {
			items = []Value{}
		}
		payload = items
	case KindDict:
		pairs := make([][2]Value, len(v.Pairs))
		for i, p := range v.Pairs {
			pairs[i] = [2]Value{p.Key, p.Value}
		}
		payload = pairs
	case KindCycle:
		payload = v.Of.String()
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrUnrenderable, v.Kind)
	}

	n := struct {
		T   string `json:"t"`
		V   any    `json:"v,omitempty"`
		Enc string `json:"enc,omitempty"`
	}{T: v.Kind.String(), V: payload, Enc: enc}
	return json.Marshal(n)
}

func parseFloatRepr(text string) (float64, error) {
	switch text {
	case "inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	case "nan", "-nan":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(text, 64)
}
