package framing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrIncompleteFrame = errors.New("framing: incomplete frame")
	ErrFrameTooLarge   = errors.New("framing: frame too large")
	ErrInvalidStrategy = errors.New("framing: invalid strategy")
	ErrFramerClosed    = errors.New("framing: framer closed")
)

// Kind tags the active member of a Strategy.
type Kind uint8

const (
	KindNone Kind = iota
	KindDelimiter
	KindTimeout
	KindPrefixLength
	KindScript
)

func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "none":
		return KindNone, nil
	case "delimiter":
		return KindDelimiter, nil
	case "timeout":
		return KindTimeout, nil
	case "prefix_length", "prefix-length", "length_prefix":
		return KindPrefixLength, nil
	case "script":
		return KindScript, nil
	default:
		return KindNone, fmt.Errorf("%w: unknown kind %q", ErrInvalidStrategy, raw)
	}
}

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindDelimiter:
		return "delimiter"
	case KindTimeout:
		return "timeout"
	case KindPrefixLength:
		return "prefix_length"
	case KindScript:
		return "script"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

type Endianness uint8

const (
	BigEndian Endianness = iota
	LittleEndian
)

func ParseEndianness(raw string) (Endianness, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "big", "be":
		return BigEndian, nil
	case "little", "le":
		return LittleEndian, nil
	default:
		return BigEndian, fmt.Errorf("%w: unknown endianness %q", ErrInvalidStrategy, raw)
	}
}

func (e Endianness) String() string {
	if e == LittleEndian {
		return "little"
	}
	return "big"
}

// Persistence says whether a strategy outlives the next response.
type Persistence uint8

const (
	Persistent Persistence = iota
	Transient
)

func ParsePersistence(raw string) (Persistence, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "persistent":
		return Persistent, nil
	case "transient":
		return Transient, nil
	default:
		return Persistent, fmt.Errorf("%w: unknown persistence %q", ErrInvalidStrategy, raw)
	}
}

func (p Persistence) String() string {
	if p == Transient {
		return "transient"
	}
	return "persistent"
}

// Strategy is the framing rule. Only the fields of Kind are meaningful.
type Strategy struct {
	Kind         Kind
	Delimiter    []byte
	Timeout      time.Duration
	PrefixWidth  int
	PrefixEndian Endianness
	Script       string
	ScriptBudget time.Duration
}

func NoFraming() Strategy {
	return Strategy{Kind: KindNone}
}

func Delimited(delim []byte) Strategy {
	return Strategy{Kind: KindDelimiter, Delimiter: append([]byte(nil), delim...)}
}

func Timed(d time.Duration) Strategy {
	return Strategy{Kind: KindTimeout, Timeout: d}
}

func PrefixLength(width int, endian Endianness) Strategy {
	return Strategy{Kind: KindPrefixLength, PrefixWidth: width, PrefixEndian: endian}
}

func Scripted(source string, budget time.Duration) Strategy {
	return Strategy{Kind: KindScript, Script: source, ScriptBudget: budget}
}

func (s Strategy) Validate() error {
	switch s.Kind {
	case KindNone:
		return nil
	case KindDelimiter:
		if len(s.Delimiter) == 0 {
			return fmt.Errorf("%w: empty delimiter", ErrInvalidStrategy)
		}
	case KindTimeout:
		if s.Timeout <= 0 {
			return fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidStrategy, s.Timeout)
		}
	case KindPrefixLength:
		switch s.PrefixWidth {
		case 1, 2, 4:
		default:
			return fmt.Errorf("%w: prefix width must be 1, 2 or 4, got %d", ErrInvalidStrategy, s.PrefixWidth)
		}
		if s.PrefixEndian != BigEndian && s.PrefixEndian != LittleEndian {
			return fmt.Errorf("%w: unknown endianness %d", ErrInvalidStrategy, s.PrefixEndian)
		}
	case KindScript:
		if strings.TrimSpace(s.Script) == "" {
			return fmt.Errorf("%w: empty script", ErrInvalidStrategy)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidStrategy, s.Kind)
	}
	return nil
}

func (s Strategy) String() string {
	switch s.Kind {
	case KindDelimiter:
		return fmt.Sprintf("delimiter(% X)", s.Delimiter)
	case KindTimeout:
		return fmt.Sprintf("timeout(%s)", s.Timeout)
	case KindPrefixLength:
		return fmt.Sprintf("prefix_length(%d,%s)", s.PrefixWidth, s.PrefixEndian)
	default:
		return s.Kind.String()
	}
}

// readLength decodes a PrefixWidth byte header from b.
func (s Strategy) readLength(b []byte) uint64 {
	var order binary.ByteOrder = binary.BigEndian
	if s.PrefixEndian == LittleEndian {
		order = binary.LittleEndian
	}
	switch s.PrefixWidth {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(order.Uint16(b[:2]))
	default:
		return uint64(order.Uint32(b[:4]))
	}
}

// Limits constrains buffered and declared frame sizes.
type Limits struct {
	MaxFrameBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxFrameBytes: 64 * 1024}
}

func (l Limits) withDefaults() Limits {
	if l.MaxFrameBytes <= 0 {
		l.MaxFrameBytes = DefaultLimits().MaxFrameBytes
	}
	return l
}
