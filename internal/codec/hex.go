package codec

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	hexUpper = "0123456789ABCDEF"
	hexLower = "0123456789abcdef"
)

// HexFormat controls BytesToHex output.
type HexFormat struct {
	Uppercase bool
	Separator string
}

// DefaultHexFormat is uppercase pairs separated by one space.
func DefaultHexFormat() HexFormat {
	return HexFormat{Uppercase: true, Separator: " "}
}

// HexToBytes parses a hex digit string. Whitespace anywhere is ignored and an
// odd digit count is left padded with a single '0'.
func HexToBytes(s string) ([]byte, error) {
	digits := make([]byte, 0, len(s)+1)
	for i, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		if !isHexDigit(r) {
			return nil, fmt.Errorf("%w: %q at offset %d", ErrInvalidHexString, r, i)
		}
		digits = append(digits, byte(r))
	}
	if len(digits) == 0 {
		return []byte{}, nil
	}
	if len(digits)%2 != 0 {
		digits = append([]byte{'0'}, digits...)
	}
	out := make([]byte, len(digits)/2)
	for i := range out {
		out[i] = nibble(digits[2*i])<<4 | nibble(digits[2*i+1])
	}
	return out, nil
}

// BytesToHex formats b as two-digit pairs joined by f.Separator.
// HexToBytes reads the result back only when Separator is empty or
// whitespace; a separator such as ":" or "-" is rejected there.
func BytesToHex(b []byte, f HexFormat) string {
	if len(b) == 0 {
		return ""
	}
	table := hexLower
	if f.Uppercase {
		table = hexUpper
	}
	var sb strings.Builder
	sb.Grow(len(b)*2 + (len(b)-1)*len(f.Separator))
	for i, v := range b {
		if i > 0 {
			sb.WriteString(f.Separator)
		}
		sb.WriteByte(table[v>>4])
		sb.WriteByte(table[v&0x0F])
	}
	return sb.String()
}

// ParseHexData is HexToBytes with the offending input embedded in the error.
func ParseHexData(s string) ([]byte, error) {
	out, err := HexToBytes(s)
	if err != nil {
		return nil, fmt.Errorf("parse hex data %q: %w", s, err)
	}
	return out, nil
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func nibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
