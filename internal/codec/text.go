package codec

import (
	"fmt"
	"strings"
	"unicode"
)

// ViewMode is the human-facing representation of a byte buffer.
type ViewMode uint8

const (
	ViewText ViewMode = iota
	ViewHex
	ViewBin
)

func ParseViewMode(raw string) (ViewMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "text", "":
		return ViewText, nil
	case "hex":
		return ViewHex, nil
	case "bin", "binary":
		return ViewBin, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownViewMode, raw)
	}
}

func (m ViewMode) String() string {
	switch m {
	case ViewText:
		return "text"
	case ViewHex:
		return "hex"
	case ViewBin:
		return "bin"
	default:
		return fmt.Sprintf("view(%d)", uint8(m))
	}
}

func (m ViewMode) MarshalText() ([]byte, error) {
	switch m {
	case ViewText, ViewHex, ViewBin:
		return []byte(m.String()), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownViewMode, uint8(m))
}

func (m *ViewMode) UnmarshalText(b []byte) error {
	v, err := ParseViewMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Decode renders b for display. Text mode never fails on undecodable input.
func Decode(b []byte, mode ViewMode, enc TextEncoding) (string, error) {
	switch mode {
	case ViewText:
		return decodeText(b, enc)
	case ViewHex:
		return BytesToHex(b, DefaultHexFormat()), nil
	case ViewBin:
		return bytesToBin(b), nil
	default:
		return "", fmt.Errorf("%w: %d", ErrUnknownViewMode, uint8(mode))
	}
}

// Encode parses display input back into bytes.
func Encode(text string, mode ViewMode, enc TextEncoding) ([]byte, error) {
	switch mode {
	case ViewText:
		return encodeText(text, enc)
	case ViewHex:
		out, err := HexToBytes(stripRadixPrefixes(text, "0x"))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedHexInput, err)
		}
		return out, nil
	case ViewBin:
		return binToBytes(stripRadixPrefixes(text, "0b"))
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownViewMode, uint8(mode))
	}
}

// stripRadixPrefixes drops whitespace and a case-insensitive radix prefix on
// every whitespace separated token.
func stripRadixPrefixes(text, prefix string) string {
	var sb strings.Builder
	for _, tok := range strings.Fields(text) {
		if len(tok) >= len(prefix) && strings.EqualFold(tok[:len(prefix)], prefix) {
			tok = tok[len(prefix):]
		}
		sb.WriteString(tok)
	}
	return sb.String()
}

func bytesToBin(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(b) * 9)
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		for bit := 7; bit >= 0; bit-- {
			sb.WriteByte('0' + (v>>uint(bit))&1)
		}
	}
	return sb.String()
}

// binToBytes left pads to a whole number of bytes, mirroring the hex rule.
func binToBytes(digits string) ([]byte, error) {
	for i, r := range digits {
		if r != '0' && r != '1' {
			if unicode.IsPrint(r) {
				return nil, fmt.Errorf("%w: %q at offset %d", ErrMalformedBinaryInput, r, i)
			}
			return nil, fmt.Errorf("%w: %U at offset %d", ErrMalformedBinaryInput, r, i)
		}
	}
	if len(digits) == 0 {
		return []byte{}, nil
	}
	if pad := len(digits) % 8; pad != 0 {
		digits = strings.Repeat("0", 8-pad) + digits
	}
	out := make([]byte, len(digits)/8)
	for i := range out {
		var v byte
		for _, c := range digits[i*8 : i*8+8] {
			v = v<<1 | byte(c-'0')
		}
		out[i] = v
	}
	return out, nil
}
