package client

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"transformator/supervisor"
)

// Standalone launches a local service with opts, waits for it to become ready and
// returns a Client bound to it. The caller owns the process and must call Cleanup.
//
// A missing binary is a NotFoundError; no readiness marker within opts.ReadyTimeout is
// a TimeoutError. In both cases nothing is left running.
func Standalone(ctx context.Context, opts supervisor.Options, clientOpts ...Option) (*Client, error) {
	c := newClient(clientOpts...)
	if opts.Logger == nil {
		opts.Logger = c.logger.Named("standalone")
	}
	p, err := supervisor.Spawn(ctx, opts)
	if err != nil {
		return nil, err
	}
	c.endpoint = p.Endpoint()
	c.process = p
	return c, nil
}

// GoStandalone is Standalone in the background.
func GoStandalone(ctx context.Context, opts supervisor.Options, clientOpts ...Option) *Future[*Client] {
	return Async(func() (*Client, error) {
		return Standalone(ctx, opts, clientOpts...)
	})
}

// Process is the launched service, or nil.
func (c *Client) Process() *supervisor.Process {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.process
}

// Cleanup stops the launched service: interrupt, grace period, kill. It never fails;
// with nothing to stop, or on repeated calls, it only logs.
func (c *Client) Cleanup() {
	p := c.Process()
	if p == nil {
		c.logger.Warn("cleanup: no standalone server attached")
		return
	}

	err := p.Stop()
	switch {
	case err == nil:
		c.logger.Info("cleanup: standalone server stopped", zap.Int("pid", p.Pid()))
	case errors.Is(err, supervisor.ErrAlreadyStopped):
		c.logger.Info("cleanup: standalone server already stopped", zap.Int("pid", p.Pid()))
	default:
		c.logger.Warn("cleanup: stopping standalone server failed", zap.Int("pid", p.Pid()), zap.Error(err))
	}
}
