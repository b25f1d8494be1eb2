// Package server implements a loopback transformator service speaking the client's wire
// protocol. It backs the stub binary and the client tests.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (reads one request at a time)
//	  → protocol.DecodeRequest → Middleware Chain → dispatch (operation handler)
//	  → protocol.EncodeResponse → close when the peer is done
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"transformator/codec"
	"transformator/logging"
	"transformator/message"
	"transformator/middleware"
	"transformator/protocol"
	"transformator/registry"
	"transformator/rpcerr"
	"transformator/transport"
)

// DefaultReadyMarker is printed once the listener is bound.
const DefaultReadyMarker = "server bound"

// HandlerFunc implements one operation.
type HandlerFunc func(ctx context.Context, input []byte, data map[string]any) (any, error)

// Server dispatches requests to handlers registered by operation name.
type Server struct {
	handlers    map[string]HandlerFunc  // "render-template" → handler
	middlewares []middleware.Middleware // applied in the order they are added
	handler     middleware.HandlerFunc  // middleware(middleware(...(dispatch)))
	codecType   codec.CodecType
	logger      *zap.Logger

	readyOut    io.Writer // where the readiness marker goes, nil for none
	readyMarker string

	registry      registry.Registry // nil when not advertising
	service       string
	advertiseAddr string
	ttl           int64

	listener net.Listener
	endpoint transport.Endpoint
	conns    sync.WaitGroup // open connections, for graceful shutdown
	shutdown atomic.Bool    // set before the listener is closed
}

type Option func(*Server)

func WithCodec(t codec.CodecType) Option {
	return func(s *Server) { s.codecType = t }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = logging.OrNop(l) }
}

// WithReadyOutput prints "<marker> to <endpoint>" on w once the listener is bound.
func WithReadyOutput(w io.Writer, marker string) Option {
	return func(s *Server) {
		s.readyOut = w
		if marker != "" {
			s.readyMarker = marker
		}
	}
}

// WithRegistry advertises the server under service while it is serving.
// advertiseAddr defaults to the bound endpoint.
func WithRegistry(reg registry.Registry, service, advertiseAddr string, ttl int64) Option {
	return func(s *Server) {
		s.registry = reg
		s.service = service
		s.advertiseAddr = advertiseAddr
		s.ttl = ttl
	}
}

// NewServer creates a server with no operations besides the built-in "list".
func NewServer(opts ...Option) *Server {
	s := &Server{
		handlers:    make(map[string]HandlerFunc),
		logger:      zap.NewNop(),
		readyMarker: DefaultReadyMarker,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle registers fn for operation op, replacing any previous handler.
func (s *Server) Handle(op string, fn HandlerFunc) {
	s.handlers[op] = fn
}

// Use registers a middleware. Middlewares run in the order they are added.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Operations lists the registered operation names, sorted.
func (s *Server) Operations() []string {
	ops := make([]string, 0, len(s.handlers)+1)
	for op := range s.handlers {
		ops = append(ops, op)
	}
	if _, ok := s.handlers["list"]; !ok {
		ops = append(ops, "list")
	}
	sort.Strings(ops)
	return ops
}

// Listen binds connect (resolved like a client connect string). A stale unix socket
// file at the target is removed first.
func (s *Server) Listen(connect string) error {
	ep, err := transport.ResolveListen(connect)
	if err != nil {
		return err
	}
	if ep.IsUnix() {
		if err := os.Remove(ep.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return rpcerr.New(rpcerr.KindConfig, "remove stale socket", err)
		}
	}

	l, err := net.Listen(ep.Network, ep.Address())
	if err != nil {
		return rpcerr.New(rpcerr.KindTransport, "listen "+ep.String(), err)
	}
	if addr, ok := l.Addr().(*net.TCPAddr); ok {
		ep.Port = addr.Port
	}
	s.listener = l
	s.endpoint = ep
	return nil
}

// Endpoint is the bound address. Valid after Listen.
func (s *Server) Endpoint() transport.Endpoint {
	return s.endpoint
}

// ListenAndServe is Listen followed by Serve.
func (s *Server) ListenAndServe(ctx context.Context, connect string) error {
	if err := s.Listen(connect); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve announces readiness, optionally registers with the registry, and accepts
// connections until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return rpcerr.Newf(rpcerr.KindConfig, "serve", "Listen was not called")
	}

	// Build the chain once at startup, not per request
	s.handler = middleware.Chain(s.middlewares...)(s.dispatch)

	if s.registry != nil {
		if s.advertiseAddr == "" {
			s.advertiseAddr = s.endpoint.String()
		}
		inst := registry.Instance{Addr: s.advertiseAddr, Weight: 1}
		if err := s.registry.Register(ctx, s.service, inst, s.ttl); err != nil {
			return fmt.Errorf("register %s: %w", s.service, err)
		}
	}

	s.logger.Info("listening", zap.String("endpoint", s.endpoint.String()), zap.Strings("operations", s.Operations()))
	if s.readyOut != nil {
		fmt.Fprintf(s.readyOut, "%s to %s\n", s.readyMarker, s.endpoint)
	}

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Closing the listener during shutdown makes Accept fail; that is not an error
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		s.conns.Add(1)
		go s.handleConn(ctx, conn)
	}
}

// handleConn answers requests on conn until the client closes it. Clients send one
// request per connection; further requests on the same connection are served in order.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.conns.Done()
	defer conn.Close()

	c := codec.GetCodec(s.codecType)
	dec := c.NewDecoder(conn)
	enc := c.NewEncoder(conn)

	for {
		req, err := protocol.DecodeRequest(dec)
		if err != nil {
			var rerr *rpcerr.Error
			if errors.As(err, &rerr) && errors.Is(rerr.Err, io.EOF) {
				return
			}
			s.logger.Warn("bad request", zap.Error(err))
			_ = protocol.EncodeResponse(enc, &message.Response{Outcome: message.OutcomeFailure, Error: err.Error()})
			return
		}

		resp := s.respond(ctx, req)
		if err := protocol.EncodeResponse(enc, resp); err != nil {
			s.logger.Warn("failed to write response", zap.String("operation", req.Operation), zap.Error(err))
			return
		}
		if s.shutdown.Load() {
			return
		}
	}
}

func (s *Server) respond(ctx context.Context, req *message.Request) *message.Response {
	result, err := s.handler(ctx, req)
	if err != nil {
		return &message.Response{Outcome: message.OutcomeFailure, Error: err.Error()}
	}
	return &message.Response{Outcome: message.OutcomeSuccess, Result: result}
}

// dispatch is the innermost handler: look up the operation and run it.
func (s *Server) dispatch(ctx context.Context, req *message.Request) (any, error) {
	fn, ok := s.handlers[req.Operation]
	if !ok {
		if req.Operation == "list" {
			return s.Operations(), nil
		}
		return nil, fmt.Errorf("unknown operation %q", req.Operation)
	}
	return fn(ctx, req.Input, req.DataOrEmpty())
}

// Shutdown stops the server gracefully:
//  1. Deregister from the registry so discovery stops routing here
//  2. Set the shutdown flag, then close the listener
//  3. Wait for open connections to finish (bounded by timeout)
//  4. Remove the unix socket file
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.registry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := s.registry.Deregister(ctx, s.service, s.advertiseAddr); err != nil {
			s.logger.Warn("deregister failed", zap.Error(err))
		}
		cancel()
	}

	s.shutdown.Store(true)
	if s.listener != nil {
		s.listener.Close()
	}
	if s.endpoint.IsUnix() {
		defer os.Remove(s.endpoint.Path)
	}

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for open connections to finish")
	}
}
