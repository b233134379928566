package str

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Numeric coercion
// ---------------------------------------------------------------------------

var (
	// ErrIllegalRadix is returned for a base outside 2..=36. It is reported
	// whether or not strict checking was requested.
	ErrIllegalRadix = errors.New("illegal radix")

	// ErrInvalidNumber marks text that does not parse as a number.
	ErrInvalidNumber = errors.New("invalid number")
)

const (
	// MinRadix and MaxRadix bound the bases accepted for integer parsing
	// and rendering.
	MinRadix = 2
	MaxRadix = 36
)

// asciiSpace is the whitespace Ruby's Integer() and Float() strip.
const asciiSpace = " \t\n\v\f\r"

// digitChars renders digit values 0..35.
const digitChars = "0123456789abcdefghijklmnopqrstuvwxyz"

// NumberError reports text that failed strict numeric parsing.
type NumberError struct {
	Func  string // "Integer" or "Float"
	Input string
	Err   error
}

func (e *NumberError) Error() string {
	return fmt.Sprintf("invalid value for %s(): %q", e.Func, e.Input)
}

func (e *NumberError) Unwrap() error { return e.Err }

// CheckRadix returns ErrIllegalRadix unless base is in 2..=36.
func CheckRadix(base int) error {
	if base < MinRadix || base > MaxRadix {
		return fmt.Errorf("%w %d", ErrIllegalRadix, base)
	}
	return nil
}

// ParseInteger parses s as a base-base integer. See ParseIntegerBytes.
func (s *String) ParseInteger(base int, strict bool) (int64, error) {
	return ParseIntegerBytes(s.buf, base, strict)
}

// ParseIntegerBytes parses b as UTF-8 text holding a base-base integer.
//
// The radix is validated first and an illegal radix is always an error.
// Surrounding ASCII whitespace, a leading sign, a radix prefix matching
// base (0b, 0o, 0d, 0x) and single underscores between digits are
// accepted. When the text does not parse, strict mode returns a
// *NumberError and non-strict mode returns zero with no error.
func ParseIntegerBytes(b []byte, base int, strict bool) (int64, error) {
	if err := CheckRadix(base); err != nil {
		return 0, err
	}
	n, err := parseInteger(b, base)
	if err != nil {
		if strict {
			return 0, err
		}
		return 0, nil
	}
	return n, nil
}

func parseInteger(b []byte, base int) (int64, error) {
	invalid := &NumberError{Func: "Integer", Input: string(b), Err: ErrInvalidNumber}
	if !utf8.Valid(b) {
		return 0, invalid
	}
	text := strings.Trim(string(b), asciiSpace)

	sign := ""
	if text != "" && (text[0] == '+' || text[0] == '-') {
		sign = text[:1]
		text = text[1:]
	}
	text = trimRadixPrefix(text, base)

	digits, ok := stripUnderscores(text, func(c byte) bool { return digitValue(c) < base })
	if !ok {
		return 0, invalid
	}
	n, err := strconv.ParseInt(sign+digits, base, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			invalid.Err = strconv.ErrRange
		}
		return 0, invalid
	}
	return n, nil
}

// trimRadixPrefix drops a 0b/0o/0d/0x prefix if it agrees with base.
func trimRadixPrefix(text string, base int) string {
	if len(text) < 3 || text[0] != '0' {
		return text
	}
	var want byte
	switch base {
	case 2:
		want = 'b'
	case 8:
		want = 'o'
	case 10:
		want = 'd'
	case 16:
		want = 'x'
	default:
		return text
	}
	if text[1]|0x20 == want {
		return text[2:]
	}
	return text
}

// stripUnderscores validates that text is a non-empty run of digits, with
// single underscores allowed only between two digits, and returns it with
// the underscores removed.
func stripUnderscores(text string, isDigit func(byte) bool) (string, bool) {
	if text == "" {
		return "", false
	}
	var sb strings.Builder
	sb.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '_' {
			if i == 0 || i == len(text)-1 || !isDigit(text[i-1]) || !isDigit(text[i+1]) {
				return "", false
			}
			continue
		}
		if !isDigit(c) {
			return "", false
		}
		sb.WriteByte(c)
	}
	return sb.String(), true
}

// digitValue maps an ASCII digit or letter to its value in bases up to 36.
// Returns MaxRadix for anything else.
func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	default:
		return MaxRadix
	}
}

// ParseFloat parses s as a decimal floating point literal.
// See ParseFloatBytes.
func (s *String) ParseFloat(strict bool) (float64, error) {
	return ParseFloatBytes(s.buf, strict)
}

// ParseFloatBytes parses b as UTF-8 text holding a decimal float literal
// (digits, optional fraction and exponent, underscores between digits).
// Hex floats and the words inf and nan are rejected. The strict/non-strict
// policy matches ParseIntegerBytes. Values too large for float64 become
// infinities.
func ParseFloatBytes(b []byte, strict bool) (float64, error) {
	f, err := parseFloat(b)
	if err != nil {
		if strict {
			return 0, err
		}
		return 0, nil
	}
	return f, nil
}

func parseFloat(b []byte) (float64, error) {
	invalid := &NumberError{Func: "Float", Input: string(b), Err: ErrInvalidNumber}
	if !utf8.Valid(b) {
		return 0, invalid
	}
	text := strings.Trim(string(b), asciiSpace)

	isDigit := func(c byte) bool { return c >= '0' && c <= '9' }
	var sb strings.Builder
	sawDigit := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case isDigit(c):
			sawDigit = true
			sb.WriteByte(c)
		case c == '_':
			if i == 0 || i == len(text)-1 || !isDigit(text[i-1]) || !isDigit(text[i+1]) {
				return 0, invalid
			}
		case c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-':
			sb.WriteByte(c)
		default:
			return 0, invalid
		}
	}
	if !sawDigit {
		return 0, invalid
	}
	f, err := strconv.ParseFloat(sb.String(), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, invalid
	}
	return f, nil
}

// ---------------------------------------------------------------------------
// Radix rendering
// ---------------------------------------------------------------------------

// FormatInt renders x in base. Digits are produced least significant
// first and then reversed; negative numbers are rendered as '-' followed
// by the magnitude.
func FormatInt(x int64, base int) ([]byte, error) {
	if err := CheckRadix(base); err != nil {
		return nil, err
	}
	mag := uint64(x)
	neg := x < 0
	if neg {
		mag = ^mag + 1
	}
	b := uint64(base)

	out := make([]byte, 0, 20)
	for {
		out = append(out, digitChars[mag%b])
		mag /= b
		if mag == 0 {
			break
		}
	}
	if neg {
		out = append(out, '-')
	}
	slices.Reverse(out)
	return out, nil
}
