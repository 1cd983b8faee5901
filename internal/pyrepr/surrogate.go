package pyrepr

import (
	"strings"
	"unicode/utf8"
)

// Python strings may hold lone surrogates, which UTF-8 cannot encode. A Str
// carries each one as the three-byte sequence UTF-8 would give the code
// point if it were allowed (Python's "surrogatepass" encoding).

func isSurrogate(r rune) bool { return r >= 0xD800 && r <= 0xDFFF }

// writeCodePoint appends r to sb, surrogates included.
func writeCodePoint(sb *strings.Builder, r rune) {
	if !isSurrogate(r) {
		sb.WriteRune(r)
		return
	}
	sb.WriteByte(byte(0xE0 | r>>12))
	sb.WriteByte(byte(0x80 | (r>>6)&0x3F))
	sb.WriteByte(byte(0x80 | r&0x3F))
}

// decodeCodePoint is utf8.DecodeRuneInString that also accepts encoded
// surrogates.
func decodeCodePoint(s string) (rune, int) {
	if len(s) >= 3 && s[0] == 0xED && s[1] >= 0xA0 && s[1] <= 0xBF && s[2]&0xC0 == 0x80 {
		return rune(s[0]&0x0F)<<12 | rune(s[1]&0x3F)<<6 | rune(s[2]&0x3F), 3
	}
	return utf8.DecodeRuneInString(s)
}
