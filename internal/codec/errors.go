package codec

import "errors"

var (
	ErrInvalidEncodingName  = errors.New("codec: invalid encoding name")
	ErrMalformedHexInput    = errors.New("codec: malformed hex input")
	ErrMalformedBinaryInput = errors.New("codec: malformed binary input")
	ErrInvalidHexString     = errors.New("codec: invalid hex string")
	ErrUnknownLineEnding    = errors.New("codec: unknown line ending")
	ErrUnknownViewMode      = errors.New("codec: unknown view mode")
)
