package codec

import (
	"fmt"
	"strings"
)

// LineEnding is the sequence placed between logical lines.
type LineEnding uint8

const (
	LineEndingNone LineEnding = iota
	LineEndingCR
	LineEndingLF
	LineEndingCRLF
)

func ParseLineEnding(raw string) (LineEnding, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "none":
		return LineEndingNone, nil
	case "cr", `\r`:
		return LineEndingCR, nil
	case "lf", "newline", `\n`:
		return LineEndingLF, nil
	case "crlf", "cr+lf", `\r\n`:
		return LineEndingCRLF, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownLineEnding, raw)
	}
}

// Sequence returns the literal separator; empty for LineEndingNone.
func (l LineEnding) Sequence() (string, error) {
	switch l {
	case LineEndingNone:
		return "", nil
	case LineEndingCR:
		return "\r", nil
	case LineEndingLF:
		return "\n", nil
	case LineEndingCRLF:
		return "\r\n", nil
	default:
		return "", fmt.Errorf("%w: %d", ErrUnknownLineEnding, uint8(l))
	}
}

func (l LineEnding) String() string {
	switch l {
	case LineEndingNone:
		return "none"
	case LineEndingCR:
		return "cr"
	case LineEndingLF:
		return "lf"
	case LineEndingCRLF:
		return "crlf"
	default:
		return fmt.Sprintf("line_ending(%d)", uint8(l))
	}
}

func (l LineEnding) MarshalText() ([]byte, error) {
	if _, err := l.Sequence(); err != nil {
		return nil, err
	}
	return []byte(l.String()), nil
}

func (l *LineEnding) UnmarshalText(b []byte) error {
	v, err := ParseLineEnding(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// SplitByLineEnding splits decoded text for display. The separator is not
// kept on either side.
func SplitByLineEnding(text string, ending LineEnding) ([]string, error) {
	seq, err := ending.Sequence()
	if err != nil {
		return nil, err
	}
	if seq == "" {
		return []string{text}, nil
	}
	return strings.Split(text, seq), nil
}
