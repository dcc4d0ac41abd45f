package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Leonezz/serialport-api-mgr-sub005/internal/checksum"
	"github.com/Leonezz/serialport-api-mgr-sub005/internal/codec"
)

var ErrUnknownDirection = errors.New("message: unknown direction")

type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

func ParseDirection(raw string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(raw))) {
	case DirectionSent, "tx", "out":
		return DirectionSent, nil
	case DirectionReceived, "rx", "in":
		return DirectionReceived, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDirection, raw)
	}
}

// Message is one resolved frame. It is built once and never mutated; the
// accessors hand out copies.
type Message struct {
	id        string
	port      string
	direction Direction
	timestamp time.Time
	raw       []byte
	payload   []byte
	algorithm checksum.Algorithm
	valid     bool
}

// Fields is the construction input for New.
type Fields struct {
	ID        string
	Port      string
	Direction Direction
	Timestamp time.Time
	Raw       []byte
	Payload   []byte
	Checksum  checksum.Algorithm
	Valid     bool
}

func New(f Fields) Message {
	payload := f.Payload
	if payload == nil {
		payload = f.Raw
	}
	valid := f.Valid
	if f.Checksum == checksum.None {
		valid = true
	}
	return Message{
		id:        f.ID,
		port:      f.Port,
		direction: f.Direction,
		timestamp: f.Timestamp,
		raw:       clone(f.Raw),
		payload:   clone(payload),
		algorithm: f.Checksum,
		valid:     valid,
	}
}

func (m Message) ID() string { return m.id }
func (m Message) Port() string { return m.port }
func (m Message) Direction() Direction { return m.direction }
func (m Message) Timestamp() time.Time { return m.timestamp }
func (m Message) Checksum() checksum.Algorithm { return m.algorithm }

// Raw is the frame exactly as cut from (or written to) the stream.
func (m Message) Raw() []byte { return clone(m.raw) }

// Payload is Raw without framing overhead and checksum trailer.
func (m Message) Payload() []byte { return clone(m.payload) }

// Checked reports whether a checksum algorithm was applied.
func (m Message) Checked() bool {
	return m.algorithm != checksum.None
}

// Valid is the checksum verdict; always true when nothing was checked.
func (m Message) Valid() bool {
	return m.valid
}

// Export is the JSON shape of a message: the payload already decoded for
// the chosen view, never raw bytes.
type Export struct {
	ID            string `json:"id,omitempty"`
	Port          string `json:"port,omitempty"`
	Direction     string `json:"direction"`
	TimestampMS   int64  `json:"timestamp_ms"`
	View          string `json:"view"`
	Encoding      string `json:"encoding,omitempty"`
	Data          string `json:"data"`
	Checksum      string `json:"checksum,omitempty"`
	ChecksumValid *bool  `json:"checksum_valid,omitempty"`
}

func (m Message) Export(view codec.ViewMode, enc codec.TextEncoding) (Export, error) {
	data, err := codec.Decode(m.payload, view, enc)
	if err != nil {
		return Export{}, err
	}
	out := Export{
		ID:          m.id,
		Port:        m.port,
		Direction:   string(m.direction),
		TimestampMS: m.timestamp.UnixMilli(),
		View:        view.String(),
		Data:        data,
	}
	if view == codec.ViewText {
		out.Encoding = enc.String()
	}
	if m.Checked() {
		valid := m.valid
		out.Checksum = m.algorithm.String()
		out.ChecksumValid = &valid
	}
	return out, nil
}

// Encoder writes messages as JSON lines.
type Encoder struct {
	enc      *json.Encoder
	view     codec.ViewMode
	encoding codec.TextEncoding
}

func NewEncoder(w io.Writer, view codec.ViewMode, enc codec.TextEncoding) *Encoder {
	return &Encoder{enc: json.NewEncoder(w), view: view, encoding: enc}
}

func (e *Encoder) Encode(m Message) error {
	out, err := m.Export(e.view, e.encoding)
	if err != nil {
		return err
	}
	return e.enc.Encode(out)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
