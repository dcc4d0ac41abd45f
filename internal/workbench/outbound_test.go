package workbench

import (
	"errors"
	"testing"

	"github.com/Leonezz/serialport-api-mgr-sub005/internal/checksum"
	"github.com/Leonezz/serialport-api-mgr-sub005/internal/codec"
	"github.com/Leonezz/serialport-api-mgr-sub005/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func TestOutboundBuildOrder(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name  string
		out   Outbound
		input string
		want  []byte
	}{
		{
			name:  "modbus request",
			out:   Outbound{View: codec.ViewHex, Checksum: checksum.CRC16},
			input: "01 03 00 00 00 0A",
			want:  []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A, 0xC5, 0xCD},
		},
		{
			name:  "text with sum and crlf",
			out:   Outbound{View: codec.ViewText, Encoding: codec.UTF8, Checksum: checksum.Mod256, LineEnding: codec.LineEndingCRLF},
			input: "hi",
			want:  []byte{'h', 'i', 0xD1, '\r', '\n'},
		},
		{
			name:  "binary without trailer",
			out:   Outbound{View: codec.ViewBin, LineEnding: codec.LineEndingLF},
			input: "0b00000001 11111111",
			want:  []byte{0x01, 0xFF, '\n'},
		},
	}
	for _, tc := range cases {
		got, err := tc.out.Build(tc.input)
		require.NoError(t, err, tc.name)
		require.Equal(t, tc.want, got, tc.name)
	}
}

func TestOutboundBuildRejectsMalformedInput(t *testing.T) {
	testlog.Start(t)
	_, err := Outbound{View: codec.ViewHex}.Build("zz")
	if !errors.Is(err, codec.ErrMalformedHexInput) {
		t.Fatalf("expected ErrMalformedHexInput, got %v", err)
	}
	_, err = Outbound{View: codec.ViewHex, LineEnding: codec.LineEnding(9)}.Build("01")
	if !errors.Is(err, codec.ErrUnknownLineEnding) {
		t.Fatalf("expected ErrUnknownLineEnding, got %v", err)
	}
}
