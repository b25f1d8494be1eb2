// Package rpcerr defines the error taxonomy shared by every layer of the client.
//
// Each failure is reported as a single *Error carrying a Kind. Callers match kinds with
// errors.Is against the exported sentinels:
//
//	if errors.Is(err, rpcerr.ErrTimeout) { ... }
//
// Nothing in this module retries on its own; the kind only tells the caller what went wrong.
package rpcerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind uint8

const (
	KindUnknown   Kind = iota
	KindConfig         // unparsable endpoint string or bad option
	KindTransport      // connect / socket failure
	KindProtocol       // undecodable or malformed response
	KindService        // the service reported an error message
	KindNotFound       // supervisor binary missing from PATH
	KindTimeout        // standalone server did not become ready in time
)

var kindNames = map[Kind]string{
	KindUnknown:   "unknown",
	KindConfig:    "config",
	KindTransport: "transport",
	KindProtocol:  "protocol",
	KindService:   "service",
	KindNotFound:  "not found",
	KindTimeout:   "timeout",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Sentinels, one per kind. errors.Is(err, ErrX) holds for any *Error of that kind.
var (
	ErrConfig    = &Error{Kind: KindConfig}
	ErrTransport = &Error{Kind: KindTransport}
	ErrProtocol  = &Error{Kind: KindProtocol}
	ErrService   = &Error{Kind: KindService}
	ErrNotFound  = &Error{Kind: KindNotFound}
	ErrTimeout   = &Error{Kind: KindTimeout}
)

// Error is the single failure value surfaced to callers.
type Error struct {
	Kind Kind   // What class of failure this is
	Op   string // Operation or step that failed, e.g. "dial" or "render-template"
	Err  error  // Underlying cause, may be nil
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s error: %s", e.Kind, e.Op)
	default:
		return fmt.Sprintf("%s error", e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so the package sentinels match any error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// New builds an *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds an *Error whose cause is a formatted message.
func Newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Wrap tags err with kind unless it already carries one.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnknown {
		return err
	}
	return New(kind, op, err)
}
