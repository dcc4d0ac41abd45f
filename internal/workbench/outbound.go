package workbench

import (
	"fmt"

	"github.com/Leonezz/serialport-api-mgr-sub005/internal/checksum"
	"github.com/Leonezz/serialport-api-mgr-sub005/internal/codec"
)

// Outbound turns what the user typed into the bytes handed to the transport:
// encoded input, then the checksum trailer, then the line ending.
type Outbound struct {
	View       codec.ViewMode
	Encoding   codec.TextEncoding
	Checksum   checksum.Algorithm
	LineEnding codec.LineEnding
}

func (o Outbound) Build(input string) ([]byte, error) {
	payload, err := codec.Encode(input, o.View, o.Encoding)
	if err != nil {
		return nil, err
	}
	return o.Frame(payload)
}

// Frame appends the trailer and line ending to an already encoded payload.
func (o Outbound) Frame(payload []byte) ([]byte, error) {
	out, err := checksum.Append(payload, o.Checksum)
	if err != nil {
		return nil, err
	}
	seq, err := o.LineEnding.Sequence()
	if err != nil {
		return nil, fmt.Errorf("outbound line ending: %w", err)
	}
	return append(out, seq...), nil
}
