// Package message defines the values exchanged with the transformator service.
//
// A Request is the triple sent for every call; a Response is the decoded reply.
// Both are transient: built per call, consumed by the codec, never retained.
package message

// Request carries one call to the service.
//
// On the wire it is the ordered sequence [Operation, Input, Data]; Data is sent as an
// empty map when nil.
type Request struct {
	Operation string         // Fixed operation name, e.g. "render-template"
	Input     []byte         // Opaque payload handed to the operation
	Data      map[string]any // Auxiliary data interpreted by the operation
}

// Outcome discriminates a decoded Response.
type Outcome uint8

const (
	OutcomeMalformed Outcome = iota // neither "result" nor "error" present
	OutcomeSuccess                  // "result" present, no "error"
	OutcomeFailure                  // "error" present (wins over "result")
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "malformed"
	}
}

// Response is the decoded reply. Exactly one outcome holds per decode.
//
//   - Success: Result holds the payload, Error is empty.
//   - Failure: Error holds the service's message, Result is nil.
//   - Malformed: both are zero.
type Response struct {
	Outcome Outcome
	Result  any
	Error   string
}

// DataOrEmpty returns Data, or an empty map when Data is nil.
func (r *Request) DataOrEmpty() map[string]any {
	if r.Data == nil {
		return map[string]any{}
	}
	return r.Data
}
