// Package transport resolves endpoints and performs single-shot exchanges with the service.
//
// Every call owns one connection, strictly in this order:
//
//	dial ──→ write request ──→ read one response ──→ decode ──→ close
//
// There is no pooling, no reuse and no pipelining: concurrent calls each dial their own
// connection and share nothing but the immutable Endpoint.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"transformator/codec"
	"transformator/message"
	"transformator/protocol"
	"transformator/rpcerr"
)

// DefaultDialTimeout bounds connection establishment when the caller's context has no deadline.
const DefaultDialTimeout = 5 * time.Second

// Dial opens one connection to ep. Failures are TransportErrors and are never retried.
func Dial(ctx context.Context, ep Endpoint, timeout time.Duration) (net.Conn, error) {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, ep.Network, ep.Address())
	if err != nil {
		return nil, rpcerr.New(rpcerr.KindTransport, "dial "+ep.String(), err)
	}
	return conn, nil
}

// ClientTransport drives one request/response exchange over a connection it owns.
type ClientTransport struct {
	conn  net.Conn    // Closed by RoundTrip's caller through Close
	codec codec.Codec // Serialization format for this exchange
}

// NewClientTransport wraps conn for a single exchange using the given codec.
func NewClientTransport(conn net.Conn, codecType codec.CodecType) *ClientTransport {
	return &ClientTransport{
		conn:  conn,
		codec: codec.GetCodec(codecType),
	}
}

// RoundTrip writes req and reads exactly one response.
//
// The context deadline becomes the connection deadline; cancelling ctx unblocks
// pending I/O. Decoded failures ({"error": ...}) come back as a Response with a nil
// error. Socket problems are TransportErrors, bad bytes ProtocolErrors.
func (t *ClientTransport) RoundTrip(ctx context.Context, req *message.Request) (*message.Response, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetDeadline(deadline); err != nil {
			return nil, rpcerr.New(rpcerr.KindTransport, "set deadline", err)
		}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.SetDeadline(time.Now())
	})
	defer stop()

	// Step 1: Write the request triple
	cw := &countingWriter{w: t.conn}
	if err := protocol.EncodeRequest(t.codec.NewEncoder(cw), req); err != nil {
		if cw.err != nil {
			return nil, t.transportErr(ctx, "write request", cw.err)
		}
		return nil, err
	}

	// Step 2: Read one response value
	cr := &countingReader{r: t.conn}
	resp, err := protocol.DecodeResponse(t.codec.NewDecoder(cr))
	if err != nil {
		switch {
		case cr.err != nil && !errors.Is(cr.err, io.EOF):
			return nil, t.transportErr(ctx, "read response", cr.err)
		case cr.n == 0 && resp == nil:
			return nil, t.transportErr(ctx, "read response", fmt.Errorf("connection closed before a response was received"))
		}
		return resp, err
	}
	return resp, nil
}

// Close releases the connection.
func (t *ClientTransport) Close() error {
	return t.conn.Close()
}

// Conn returns the underlying connection.
func (t *ClientTransport) Conn() net.Conn {
	return t.conn
}

func (t *ClientTransport) transportErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	} else if _, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) {
		// The socket deadline is the context deadline; it can fire before ctx notices.
		err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return rpcerr.New(rpcerr.KindTransport, op, err)
}

// Exchange dials ep, performs one RoundTrip and closes the connection.
func Exchange(ctx context.Context, ep Endpoint, codecType codec.CodecType, dialTimeout time.Duration, req *message.Request) (*message.Response, error) {
	conn, err := Dial(ctx, ep, dialTimeout)
	if err != nil {
		return nil, err
	}
	t := NewClientTransport(conn, codecType)
	defer t.Close()
	return t.RoundTrip(ctx, req)
}

// countingReader remembers how many bytes were read and the last socket error, so a
// decode failure can be told apart from a broken connection.
type countingReader struct {
	r   io.Reader
	n   int
	err error
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	if err != nil {
		c.err = err
	}
	return n, err
}

type countingWriter struct {
	w   io.Writer
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if err != nil {
		c.err = err
	}
	return n, err
}
