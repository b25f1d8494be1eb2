// Package protocol implements the transformator envelope on top of a codec stream.
//
// Request (client → service), one self-delimiting value:
//
//	[ operation, input, data ]
//	  string     text|bytes  map (empty when none)
//
// Response (service → client), one self-delimiting value:
//
//	{ "result": any }   success
//	{ "error": string } failure
//
// "error" is authoritative: a reply carrying both keys is a failure. A reply carrying
// neither is malformed and reported as a protocol error, never as an empty success.
// A key whose value is nil counts as absent.
package protocol

import (
	"fmt"
	"unicode/utf8"

	"transformator/codec"
	"transformator/message"
	"transformator/rpcerr"
)

// Response map keys.
const (
	KeyResult = "result"
	KeyError  = "error"
)

// RequestTuple builds the ordered wire triple for req.
// Valid UTF-8 input travels as a text string, anything else as a byte string.
func RequestTuple(req *message.Request) []any {
	var input any = req.Input
	if utf8.Valid(req.Input) {
		input = string(req.Input)
	}
	return []any{req.Operation, input, req.DataOrEmpty()}
}

// EncodeRequest writes req as one value on enc.
func EncodeRequest(enc codec.Encoder, req *message.Request) error {
	if req.Operation == "" {
		return rpcerr.Newf(rpcerr.KindConfig, "encode request", "operation name is empty")
	}
	if err := enc.Encode(RequestTuple(req)); err != nil {
		return rpcerr.New(rpcerr.KindProtocol, "encode request", err)
	}
	return nil
}

// DecodeRequest reads one request triple from dec. It is the service side of EncodeRequest.
func DecodeRequest(dec codec.Decoder) (*message.Request, error) {
	// Step 1: Read one value, which must be a sequence
	var tuple []any
	if err := dec.Decode(&tuple); err != nil {
		return nil, rpcerr.New(rpcerr.KindProtocol, "decode request", err)
	}

	// Step 2: Validate arity
	if len(tuple) != 3 {
		return nil, rpcerr.Newf(rpcerr.KindProtocol, "decode request", "expected 3 elements, got %d", len(tuple))
	}

	// Step 3: Operation name
	op, ok := tuple[0].(string)
	if !ok || op == "" {
		return nil, rpcerr.Newf(rpcerr.KindProtocol, "decode request", "operation must be a non-empty string, got %T", tuple[0])
	}

	// Step 4: Input payload, text or bytes
	var input []byte
	switch v := tuple[1].(type) {
	case string:
		input = []byte(v)
	case []byte:
		input = v
	case nil:
	default:
		return nil, rpcerr.Newf(rpcerr.KindProtocol, "decode request", "input must be text or bytes, got %T", tuple[1])
	}

	// Step 5: Auxiliary data, string-keyed map or nil
	var data map[string]any
	switch v := Normalize(tuple[2]).(type) {
	case map[string]any:
		data = v
	case nil:
		data = map[string]any{}
	default:
		return nil, rpcerr.Newf(rpcerr.KindProtocol, "decode request", "data must be a map with text keys, got %T", tuple[2])
	}

	return &message.Request{Operation: op, Input: input, Data: data}, nil
}

// Interpret classifies a decoded response map.
func Interpret(raw map[string]any) *message.Response {
	if errVal, ok := raw[KeyError]; ok && errVal != nil {
		msg, isString := errVal.(string)
		if !isString {
			msg = fmt.Sprint(errVal)
		}
		return &message.Response{Outcome: message.OutcomeFailure, Error: msg}
	}
	if result, ok := raw[KeyResult]; ok && result != nil {
		return &message.Response{Outcome: message.OutcomeSuccess, Result: Normalize(result)}
	}
	return &message.Response{Outcome: message.OutcomeMalformed}
}

// Normalize turns decoded maps whose keys are all text into map[string]any, at any
// depth. Maps with other keys stay map[any]any.
func Normalize(v any) any {
	switch t := v.(type) {
	case map[any]any:
		textKeys := true
		for k := range t {
			if _, ok := k.(string); !ok {
				textKeys = false
				break
			}
		}
		if textKeys {
			m := make(map[string]any, len(t))
			for k, val := range t {
				m[k.(string)] = Normalize(val)
			}
			return m
		}
		m := make(map[any]any, len(t))
		for k, val := range t {
			m[k] = Normalize(val)
		}
		return m
	case map[string]any:
		for k, val := range t {
			t[k] = Normalize(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = Normalize(val)
		}
		return t
	default:
		return v
	}
}

// DecodeResponse reads one response from dec.
//
// Undecodable bytes and malformed maps yield a ProtocolError. A failure outcome is
// returned as a Response with a nil error: the caller decides how to surface it.
func DecodeResponse(dec codec.Decoder) (*message.Response, error) {
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, rpcerr.New(rpcerr.KindProtocol, "decode response", err)
	}
	resp := Interpret(raw)
	if resp.Outcome == message.OutcomeMalformed {
		return resp, rpcerr.Newf(rpcerr.KindProtocol, "decode response", "%s", malformedReason(raw))
	}
	return resp, nil
}

func malformedReason(raw map[string]any) string {
	if _, ok := raw[KeyResult]; ok {
		return fmt.Sprintf("response %q is null", KeyResult)
	}
	if _, ok := raw[KeyError]; ok {
		return fmt.Sprintf("response %q is null and %q is missing", KeyError, KeyResult)
	}
	return fmt.Sprintf("response has neither %q nor %q", KeyResult, KeyError)
}

// Result converts a response to the caller-facing pair.
// Failures become ServiceErrors carrying the service's message.
func Result(op string, resp *message.Response) (any, error) {
	if resp == nil {
		return nil, rpcerr.Newf(rpcerr.KindProtocol, op, "no response")
	}
	switch resp.Outcome {
	case message.OutcomeSuccess:
		return resp.Result, nil
	case message.OutcomeFailure:
		return nil, rpcerr.Newf(rpcerr.KindService, op, "%s", resp.Error)
	default:
		return nil, rpcerr.Newf(rpcerr.KindProtocol, op, "response has neither %q nor %q", KeyResult, KeyError)
	}
}

// EncodeResponse writes resp as one value on enc. It is the service side of DecodeResponse.
func EncodeResponse(enc codec.Encoder, resp *message.Response) error {
	var raw map[string]any
	switch resp.Outcome {
	case message.OutcomeSuccess:
		raw = map[string]any{KeyResult: resp.Result}
	case message.OutcomeFailure:
		raw = map[string]any{KeyError: resp.Error}
	default:
		raw = map[string]any{}
	}
	return enc.Encode(raw)
}
