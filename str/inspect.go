package str

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Inspect renders s as a double-quoted literal with escapes, the way
// String#inspect does. UTF-8 and ASCII strings keep printable characters;
// undecodable bytes, and every byte >= 0x80 of a Binary string, render as
// \xHH.
func (s *String) Inspect() string {
	var sb strings.Builder
	sb.Grow(len(s.buf) + 2)
	sb.WriteByte('"')
	b := s.buf
	for i := 0; i < len(b); {
		r, size := rune(b[i]), 1
		if b[i] >= utf8.RuneSelf && s.enc == EncodingUTF8 {
			r, size = utf8.DecodeRune(b[i:])
		}
		if r == utf8.RuneError && size == 1 || (r >= utf8.RuneSelf && s.enc != EncodingUTF8) {
			fmt.Fprintf(&sb, `\x%02X`, b[i])
			i++
			continue
		}
		writeEscaped(&sb, r, b[i+size:])
		i += size
	}
	sb.WriteByte('"')
	return sb.String()
}

func writeEscaped(sb *strings.Builder, r rune, rest []byte) {
	switch r {
	case '"', '\\':
		sb.WriteByte('\\')
		sb.WriteRune(r)
	case '\n':
		sb.WriteString(`\n`)
	case '\r':
		sb.WriteString(`\r`)
	case '\t':
		sb.WriteString(`\t`)
	case '\f':
		sb.WriteString(`\f`)
	case '\v':
		sb.WriteString(`\v`)
	case '\a':
		sb.WriteString(`\a`)
	case '\b':
		sb.WriteString(`\b`)
	case 0x1b:
		sb.WriteString(`\e`)
	case '#':
		// Escape interpolation openers so the output re-reads as the same string.
		if len(rest) > 0 && (rest[0] == '{' || rest[0] == '$' || rest[0] == '@') {
			sb.WriteByte('\\')
		}
		sb.WriteByte('#')
	default:
		switch {
		case r < utf8.RuneSelf && !unicode.IsPrint(r):
			fmt.Fprintf(sb, `\x%02X`, r)
		case !unicode.IsPrint(r) && r > 0xFFFF:
			fmt.Fprintf(sb, `\u{%X}`, r)
		case !unicode.IsPrint(r):
			fmt.Fprintf(sb, `\u%04X`, r)
		default:
			sb.WriteRune(r)
		}
	}
}
