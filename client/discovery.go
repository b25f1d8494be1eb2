package client

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"transformator/loadbalance"
	"transformator/registry"
	"transformator/rpcerr"
	"transformator/transport"
)

type discovery struct {
	reg     registry.Registry
	bal     loadbalance.Balancer
	service string
}

// NewDiscoveryClient returns a Client that looks up instances of service in reg and
// lets bal pick one on every call. The call's operation name is the balancing key.
func NewDiscoveryClient(reg registry.Registry, bal loadbalance.Balancer, service string, opts ...Option) *Client {
	c := newClient(opts...)
	c.discovery = &discovery{reg: reg, bal: bal, service: service}
	c.logger.Debug("discovery client", zap.String("service", service), zap.String("balancer", bal.Name()))
	return c
}

func (d *discovery) resolve(ctx context.Context, op string) (transport.Endpoint, error) {
	instances, err := d.reg.Discover(ctx, d.service)
	if err != nil {
		return transport.Endpoint{}, rpcerr.New(rpcerr.KindTransport, "discover "+d.service, err)
	}
	inst, err := d.bal.Pick(instances, op)
	if err != nil {
		if errors.Is(err, loadbalance.ErrNoInstances) {
			return transport.Endpoint{}, rpcerr.Newf(rpcerr.KindTransport, "discover "+d.service, "%w", err)
		}
		return transport.Endpoint{}, rpcerr.New(rpcerr.KindTransport, "pick instance", err)
	}
	return transport.Resolve(inst.Addr)
}

// Advertise registers the client's endpoint (typically a standalone server) under
// service with a lease of ttl seconds, so discovery clients elsewhere can reach it.
func (c *Client) Advertise(ctx context.Context, reg registry.Registry, service string, ttl int64) error {
	if c.discovery != nil {
		return rpcerr.Newf(rpcerr.KindConfig, "advertise", "a discovery client has no endpoint of its own")
	}
	return reg.Register(ctx, service, registry.Instance{Addr: c.endpoint.String(), Weight: 1}, ttl)
}
