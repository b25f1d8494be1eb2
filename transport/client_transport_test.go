package transport

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"transformator/codec"
	"transformator/message"
	"transformator/protocol"
	"transformator/rpcerr"
)

// serveOnce accepts one connection, reads one request and answers with reply.
func serveOnce(t *testing.T, network, address string, reply func(req *message.Request) any) Endpoint {
	t.Helper()
	ln, err := net.Listen(network, address)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		cdc := &codec.CBORCodec{}
		req, err := protocol.DecodeRequest(cdc.NewDecoder(conn))
		if err != nil {
			return
		}
		if v := reply(req); v != nil {
			_ = cdc.NewEncoder(conn).Encode(v)
		}
	}()

	if network == "unix" {
		return Unix(address)
	}
	addr := ln.Addr().(*net.TCPAddr)
	return TCP("127.0.0.1", addr.Port)
}

func TestExchangeTCP(t *testing.T) {
	ep := serveOnce(t, "tcp", "127.0.0.1:0", func(req *message.Request) any {
		return map[string]any{"result": req.Operation + ":" + string(req.Input)}
	})

	resp, err := Exchange(context.Background(), ep, codec.CodecTypeCBOR, time.Second,
		&message.Request{Operation: "echo", Input: []byte("hi")})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Outcome != message.OutcomeSuccess || resp.Result != "echo:hi" {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestExchangeUnix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.sock")
	ep := serveOnce(t, "unix", path, func(req *message.Request) any {
		return map[string]any{"error": "unknown operation " + req.Operation}
	})

	resp, err := Exchange(context.Background(), ep, codec.CodecTypeCBOR, time.Second,
		&message.Request{Operation: "nope"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Outcome != message.OutcomeFailure || resp.Error != "unknown operation nope" {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestExchangeConnectionRefused(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.sock")
	_, err := Exchange(context.Background(), Unix(path), codec.CodecTypeCBOR, time.Second,
		&message.Request{Operation: "list"})
	if !errors.Is(err, rpcerr.ErrTransport) {
		t.Fatalf("expect transport error, got %v", err)
	}
}

func TestExchangeClosedWithoutReply(t *testing.T) {
	ep := serveOnce(t, "tcp", "127.0.0.1:0", func(req *message.Request) any { return nil })

	_, err := Exchange(context.Background(), ep, codec.CodecTypeCBOR, time.Second,
		&message.Request{Operation: "list"})
	if !errors.Is(err, rpcerr.ErrTransport) {
		t.Fatalf("expect transport error, got %v", err)
	}
}

func TestExchangeMalformedReply(t *testing.T) {
	ep := serveOnce(t, "tcp", "127.0.0.1:0", func(req *message.Request) any {
		return map[string]any{"status": "ok"}
	})

	_, err := Exchange(context.Background(), ep, codec.CodecTypeCBOR, time.Second,
		&message.Request{Operation: "list"})
	if !errors.Is(err, rpcerr.ErrProtocol) {
		t.Fatalf("expect protocol error, got %v", err)
	}
}

func TestExchangeHonoursContextDeadline(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		// Never answer
		time.Sleep(2 * time.Second)
		conn.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = Exchange(ctx, TCP("127.0.0.1", ln.Addr().(*net.TCPAddr).Port), codec.CodecTypeCBOR, time.Second,
		&message.Request{Operation: "list"})
	if !errors.Is(err, rpcerr.ErrTransport) {
		t.Fatalf("expect transport error, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expect deadline exceeded cause, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("exchange did not stop at the deadline")
	}
}
