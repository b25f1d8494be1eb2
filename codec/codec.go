// Package codec serializes values for the wire.
//
// Every codec is self-delimiting over a stream: a Decoder reads exactly one value from a
// connection and stops, so no extra framing header is needed.
package codec

import (
	"fmt"
	"io"
	"strings"
)

type CodecType byte

const (
	CodecTypeCBOR CodecType = 0
	CodecTypeJSON CodecType = 1
)

func (t CodecType) String() string {
	switch t {
	case CodecTypeCBOR:
		return "cbor"
	case CodecTypeJSON:
		return "json"
	default:
		return fmt.Sprintf("codec(%d)", byte(t))
	}
}

// Encoder writes one value per Encode call to an underlying stream.
type Encoder interface {
	Encode(v any) error
}

// Decoder reads one value per Decode call from an underlying stream.
type Decoder interface {
	Decode(v any) error
}

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	NewEncoder(w io.Writer) Encoder
	NewDecoder(r io.Reader) Decoder
	Type() CodecType // 0=CBOR, 1=JSON
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeJSON {
		return &JSONCodec{}
	}

	return &CBORCodec{}
}

// ParseType maps a configuration name ("cbor", "json") to a CodecType.
// The empty string selects CBOR.
func ParseType(name string) (CodecType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "cbor":
		return CodecTypeCBOR, nil
	case "json":
		return CodecTypeJSON, nil
	default:
		return 0, fmt.Errorf("unknown codec %q (want cbor or json)", name)
	}
}
