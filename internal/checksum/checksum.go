// Package checksum computes and verifies per-message trailers.
//
// CRC16 is always CRC-16/MODBUS: reflected polynomial 0xA001, init 0xFFFF,
// no final xor, check("123456789") = 0x4B37. The two trailer bytes are
// written low byte first, the Modbus RTU wire order.
package checksum

import (
	"errors"
	"fmt"
	"strings"
)

// Algorithm selects the trailer appended on send and expected on receive.
type Algorithm uint8

const (
	None Algorithm = iota
	Mod256
	XOR
	CRC16
)

const (
	crc16Poly uint16 = 0xA001
	crc16Init uint16 = 0xFFFF
)

var ErrUnknownAlgorithm = errors.New("checksum: unknown algorithm")

var crc16Table = func() [256]uint16 {
	var table [256]uint16
	for i := range table {
		crc := uint16(i)
		for bit := 0; bit < 8; bit++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ crc16Poly
			} else {
				crc >>= 1
			}
		}
		table[i] = crc
	}
	return table
}()

// Result is the outcome of VerifyAndStrip. Payload is returned even when
// Valid is false.
type Result struct {
	Payload  []byte
	Trailer  []byte
	Valid    bool
	Expected []byte
}

func ParseAlgorithm(raw string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "none":
		return None, nil
	case "mod256", "sum", "sum8":
		return Mod256, nil
	case "xor", "bcc":
		return XOR, nil
	case "crc16", "crc16-modbus", "modbus":
		return CRC16, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, raw)
	}
}

func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case Mod256:
		return "mod256"
	case XOR:
		return "xor"
	case CRC16:
		return "crc16"
	default:
		return fmt.Sprintf("algorithm(%d)", uint8(a))
	}
}

func (a Algorithm) MarshalText() ([]byte, error) {
	if _, err := TrailerWidth(a); err != nil {
		return nil, err
	}
	return []byte(a.String()), nil
}

func (a *Algorithm) UnmarshalText(b []byte) error {
	v, err := ParseAlgorithm(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// TrailerWidth is the number of trailer bytes for a.
func TrailerWidth(a Algorithm) (int, error) {
	switch a {
	case None:
		return 0, nil
	case Mod256, XOR:
		return 1, nil
	case CRC16:
		return 2, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownAlgorithm, uint8(a))
	}
}

// Compute returns the trailer for data.
func Compute(data []byte, a Algorithm) ([]byte, error) {
	switch a {
	case None:
		return []byte{}, nil
	case Mod256:
		var sum byte
		for _, b := range data {
			sum += b
		}
		return []byte{sum}, nil
	case XOR:
		var x byte
		for _, b := range data {
			x ^= b
		}
		return []byte{x}, nil
	case CRC16:
		crc := CRC16Modbus(data)
		return []byte{byte(crc), byte(crc >> 8)}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownAlgorithm, uint8(a))
	}
}

// Append returns a new buffer holding data followed by its trailer.
func Append(data []byte, a Algorithm) ([]byte, error) {
	trailer, err := Compute(data, a)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(data)+len(trailer))
	out = append(out, data...)
	return append(out, trailer...), nil
}

// VerifyAndStrip splits frame into payload and trailer and recomputes the
// checksum over the payload. A frame shorter than the trailer is invalid and
// returned whole as payload.
func VerifyAndStrip(frame []byte, a Algorithm) (Result, error) {
	width, err := TrailerWidth(a)
	if err != nil {
		return Result{}, err
	}
	if width == 0 {
		return Result{Payload: frame, Trailer: []byte{}, Valid: true, Expected: []byte{}}, nil
	}
	if len(frame) < width {
		return Result{Payload: frame, Trailer: []byte{}, Valid: false}, nil
	}
	split := len(frame) - width
	payload := frame[:split:split]
	trailer := frame[split:]
	expected, err := Compute(payload, a)
	if err != nil {
		return Result{}, err
	}
	valid := true
	for i := range expected {
		if expected[i] != trailer[i] {
			valid = false
			break
		}
	}
	return Result{Payload: payload, Trailer: trailer, Valid: valid, Expected: expected}, nil
}

// CRC16Modbus is the table driven CRC-16/MODBUS of data.
func CRC16Modbus(data []byte) uint16 {
	crc := crc16Init
	for _, b := range data {
		crc = (crc >> 8) ^ crc16Table[byte(crc)^b]
	}
	return crc
}
