package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// CBORCodec is the service's native encoding: compact, binary and self-describing.
// Maps nested in an untyped value decode as map[any]any, since CBOR keys need not be text.
type CBORCodec struct{}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.EncOptions{
		Sort: cbor.SortCanonical,
		Time: cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(err)
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[any]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

func (c *CBORCodec) Encode(v any) ([]byte, error) {
	return cborEnc.Marshal(v)
}

func (c *CBORCodec) Decode(data []byte, v any) error {
	return cborDec.Unmarshal(data, v)
}

func (c *CBORCodec) NewEncoder(w io.Writer) Encoder {
	return cborEnc.NewEncoder(w)
}

func (c *CBORCodec) NewDecoder(r io.Reader) Decoder {
	return cborDec.NewDecoder(r)
}

func (c *CBORCodec) Type() CodecType {
	return CodecTypeCBOR
}
