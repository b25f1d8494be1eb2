// Package client calls operations on a transformator service.
//
// Every call is single-shot: it resolves an endpoint, dials, writes one request,
// reads one response and closes the connection. A Client holds nothing mutable
// between calls except an optional standalone server it launched, so one Client may
// be used from many goroutines.
//
//	Call ──→ middleware chain ──→ resolve endpoint ──→ transport.Exchange ──→ protocol.Result
//
// Errors are *rpcerr.Error values; match them with errors.Is against the rpcerr sentinels.
package client

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"transformator/codec"
	"transformator/logging"
	"transformator/message"
	"transformator/middleware"
	"transformator/protocol"
	"transformator/rpcerr"
	"transformator/supervisor"
	"transformator/telemetry"
	"transformator/transport"
)

// Client sends requests to one endpoint, or to an endpoint discovered per call.
type Client struct {
	endpoint    transport.Endpoint // fixed target, unused with discovery
	discovery   *discovery         // nil for a fixed endpoint
	codecType   codec.CodecType
	dialTimeout time.Duration
	logger      *zap.Logger

	callTimeout time.Duration
	rateRPS     float64
	rateBurst   int
	retries     int
	retryDelay  time.Duration
	metrics     *telemetry.Metrics
	middlewares []middleware.Middleware // caller-supplied, run inside the built-ins
	handler     middleware.HandlerFunc  // built once in init

	mu      sync.Mutex
	process *supervisor.Process // set only by Standalone
}

type Option func(*Client)

// WithCodec selects the wire codec. The default is CBOR.
func WithCodec(t codec.CodecType) Option {
	return func(c *Client) { c.codecType = t }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = logging.OrNop(l) }
}

// WithDialTimeout bounds connection establishment.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

// WithCallTimeout bounds each call from dial to decoded response.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) { c.callTimeout = d }
}

// WithRateLimit rejects calls beyond rps (with burst) as TransportErrors.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.rateRPS = rps
		c.rateBurst = burst
	}
}

// WithRetry retries TransportErrors up to n times with exponential backoff from base.
// Calls are never retried unless this option is given.
func WithRetry(n int, base time.Duration) Option {
	return func(c *Client) {
		c.retries = n
		c.retryDelay = base
	}
}

// WithMetrics records every call in m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithMiddleware appends caller middlewares. They run inside logging, metrics and rate
// limiting, and outside retry and the call timeout.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(c *Client) { c.middlewares = append(c.middlewares, mws...) }
}

// New resolves connect (see transport.Resolve) and returns a Client for it.
// An unparsable connect string is a ConfigError.
func New(connect string, opts ...Option) (*Client, error) {
	ep, err := transport.Resolve(connect)
	if err != nil {
		return nil, err
	}
	return NewWithEndpoint(ep, opts...), nil
}

// NewWithEndpoint returns a Client for an already resolved endpoint.
func NewWithEndpoint(ep transport.Endpoint, opts ...Option) *Client {
	c := newClient(opts...)
	c.endpoint = ep
	return c
}

func newClient(opts ...Option) *Client {
	c := &Client{
		codecType:   codec.CodecTypeCBOR,
		dialTimeout: transport.DefaultDialTimeout,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.init()
	return c
}

// init assembles the chain once:
//
//	logging → metrics → rate limit → caller middlewares → retry → timeout → exchange
func (c *Client) init() {
	mws := []middleware.Middleware{middleware.LoggingMiddleware(c.logger)}
	if c.metrics != nil {
		mws = append(mws, middleware.MetricsMiddleware(c.metrics))
	}
	if c.rateRPS > 0 {
		mws = append(mws, middleware.RateLimitMiddleware(c.rateRPS, c.rateBurst))
	}
	mws = append(mws, c.middlewares...)
	if c.retries > 0 {
		mws = append(mws, middleware.RetryMiddleware(c.retries, c.retryDelay, c.logger))
	}
	if c.callTimeout > 0 {
		mws = append(mws, middleware.TimeoutMiddleware(c.callTimeout))
	}
	c.handler = middleware.Chain(mws...)(c.exchange)
}

// Endpoint is the fixed target. It is the zero Endpoint for discovery clients.
func (c *Client) Endpoint() transport.Endpoint {
	return c.endpoint
}

// Call performs op and blocks until the service answers, the connection fails or ctx ends.
//
// A reply of {"error": msg} is a ServiceError carrying msg; a reply with neither key is a
// ProtocolError. Nothing is retried unless WithRetry was given.
func (c *Client) Call(ctx context.Context, op string, input []byte, data map[string]any) (any, error) {
	if op == "" {
		return nil, rpcerr.Newf(rpcerr.KindConfig, "call", "operation name is empty")
	}
	req := &message.Request{Operation: op, Input: input, Data: data}
	return c.handler(ctx, req)
}

// Go starts op in the background and returns immediately.
func (c *Client) Go(ctx context.Context, op string, input []byte, data map[string]any) *Future[any] {
	return Async(func() (any, error) {
		return c.Call(ctx, op, input, data)
	})
}

// exchange is the innermost handler: one connection, one request, one response.
func (c *Client) exchange(ctx context.Context, req *message.Request) (any, error) {
	ep, err := c.resolve(ctx, req.Operation)
	if err != nil {
		return nil, err
	}
	resp, err := transport.Exchange(ctx, ep, c.codecType, c.dialTimeout, req)
	if err != nil {
		return nil, err
	}
	return protocol.Result(req.Operation, resp)
}

func (c *Client) resolve(ctx context.Context, op string) (transport.Endpoint, error) {
	if c.discovery != nil {
		return c.discovery.resolve(ctx, op)
	}
	return c.endpoint, nil
}
