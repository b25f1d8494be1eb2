package codec

import (
	"bytes"
	"testing"
)

func TestCBORCodec(t *testing.T) {
	cborCodec := &CBORCodec{}

	original := []any{"render-template", "span\n  | Hi #{name}!\n", map[string]any{"name": "Peter"}}

	data, err := cborCodec.Encode(original)
	if err != nil {
		t.Fatalf("CBORCodec Encode failed: %v", err)
	}

	var decoded []any
	if err := cborCodec.Decode(data, &decoded); err != nil {
		t.Fatalf("CBORCodec Decode failed: %v", err)
	}

	if len(decoded) != 3 {
		t.Fatalf("expect 3 elements, got %d", len(decoded))
	}
	if decoded[0] != "render-template" {
		t.Errorf("operation mismatch: got %v", decoded[0])
	}
	if decoded[1] != "span\n  | Hi #{name}!\n" {
		t.Errorf("input mismatch: got %q", decoded[1])
	}
	data2, ok := decoded[2].(map[any]any)
	if !ok {
		t.Fatalf("expect map[any]any for data, got %T", decoded[2])
	}
	if data2["name"] != "Peter" {
		t.Errorf("data mismatch: got %v", data2["name"])
	}
}

// Two values written back to back must come out as two values: the stream is self-delimiting.
func TestStreamIsSelfDelimiting(t *testing.T) {
	for _, cdc := range []Codec{&CBORCodec{}, &JSONCodec{}} {
		var buf bytes.Buffer
		enc := cdc.NewEncoder(&buf)
		if err := enc.Encode(map[string]any{"result": "first"}); err != nil {
			t.Fatalf("%s encode: %v", cdc.Type(), err)
		}
		if err := enc.Encode(map[string]any{"error": "second"}); err != nil {
			t.Fatalf("%s encode: %v", cdc.Type(), err)
		}

		dec := cdc.NewDecoder(&buf)
		var first, second map[string]any
		if err := dec.Decode(&first); err != nil {
			t.Fatalf("%s decode first: %v", cdc.Type(), err)
		}
		if err := dec.Decode(&second); err != nil {
			t.Fatalf("%s decode second: %v", cdc.Type(), err)
		}
		if first["result"] != "first" || second["error"] != "second" {
			t.Fatalf("%s: got %v then %v", cdc.Type(), first, second)
		}
	}
}

func TestCBORBytesStayBytes(t *testing.T) {
	cborCodec := &CBORCodec{}
	data, err := cborCodec.Encode(map[string]any{"result": []byte{0xff, 0x00, 0xfe}})
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := cborCodec.Decode(data, &decoded); err != nil {
		t.Fatal(err)
	}
	got, ok := decoded["result"].([]byte)
	if !ok || !bytes.Equal(got, []byte{0xff, 0x00, 0xfe}) {
		t.Fatalf("expect raw bytes back, got %#v", decoded["result"])
	}
}

func TestCBORIntegerKeys(t *testing.T) {
	cborCodec := &CBORCodec{}
	data, err := cborCodec.Encode(map[string]any{"result": map[int]string{1: "one"}})
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := cborCodec.Decode(data, &decoded); err != nil {
		t.Fatalf("expect integer keys to decode, got %v", err)
	}
	m, ok := decoded["result"].(map[any]any)
	if !ok || m[uint64(1)] != "one" {
		t.Fatalf("unexpected nested map %#v", decoded["result"])
	}
}

func TestParseType(t *testing.T) {
	cases := []struct {
		in   string
		want CodecType
		ok   bool
	}{
		{"", CodecTypeCBOR, true},
		{"cbor", CodecTypeCBOR, true},
		{" JSON ", CodecTypeJSON, true},
		{"msgpack", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseType(tc.in)
		if tc.ok && err != nil {
			t.Errorf("ParseType(%q): unexpected error %v", tc.in, err)
			continue
		}
		if !tc.ok {
			if err == nil {
				t.Errorf("ParseType(%q): expect error", tc.in)
			}
			continue
		}
		if got != tc.want {
			t.Errorf("ParseType(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
