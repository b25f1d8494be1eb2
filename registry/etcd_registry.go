// Package registry advertises and discovers transformator services.
//
// The etcd implementation keeps one key per instance:
//
//	Key:   /transformator/{service}/{addr}
//	Value: JSON-encoded Instance
//
// Registration uses a TTL lease kept alive in the background: if the advertising
// process dies the lease expires and the entry disappears with it.
package registry

import (
	"context"
	"encoding/json"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"transformator/logging"
)

// KeyPrefix is the root of every registry key.
const KeyPrefix = "/transformator/"

// DefaultDialTimeout bounds the initial etcd connection.
const DefaultDialTimeout = 3 * time.Second

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines
	logger *zap.Logger
}

// NewEtcdRegistry connects to the given etcd endpoints. A nil logger disables logging.
func NewEtcdRegistry(endpoints []string, logger *zap.Logger) (*EtcdRegistry, error) {
	logger = logging.OrNop(logger)
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: DefaultDialTimeout,
		Logger:      logger.Named("etcd"),
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c, logger: logger}, nil
}

func serviceKey(service, addr string) string {
	return KeyPrefix + service + "/" + addr
}

func servicePrefix(service string) string {
	return KeyPrefix + service + "/"
}

// Register stores instance under a lease of ttl seconds and keeps the lease alive
// until ctx is cancelled or the registry is closed.
//
// The lease ID stays local so several services can share one EtcdRegistry.
func (r *EtcdRegistry) Register(ctx context.Context, service string, instance Instance, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	if _, err := r.client.Put(ctx, serviceKey(service, instance.Addr), string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}

	// Drain keepalive responses so the channel never fills up
	go func() {
		for range ch {
		}
		r.logger.Debug("lease keepalive ended",
			zap.String("service", service), zap.String("addr", instance.Addr))
	}()

	r.logger.Info("registered instance",
		zap.String("service", service), zap.String("addr", instance.Addr), zap.Int64("ttl", ttl))
	return nil
}

// Deregister removes one instance. Called before the advertising server stops listening.
func (r *EtcdRegistry) Deregister(ctx context.Context, service string, addr string) error {
	if _, err := r.client.Delete(ctx, serviceKey(service, addr)); err != nil {
		return err
	}
	r.logger.Info("deregistered instance", zap.String("service", service), zap.String("addr", addr))
	return nil
}

// Watch emits the full instance list on every change under the service prefix.
// The channel is closed when ctx ends.
func (r *EtcdRegistry) Watch(ctx context.Context, service string) <-chan []Instance {
	ch := make(chan []Instance, 1)

	go func() {
		defer close(ch)
		for range r.client.Watch(ctx, servicePrefix(service), clientv3.WithPrefix()) {
			// Re-fetching is simpler than applying individual events
			instances, err := r.Discover(ctx, service)
			if err != nil {
				r.logger.Warn("rediscover after watch event failed", zap.Error(err))
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Discover returns every registered instance of service.
func (r *EtcdRegistry) Discover(ctx context.Context, service string) ([]Instance, error) {
	resp, err := r.client.Get(ctx, servicePrefix(service), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]Instance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance Instance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			r.logger.Warn("skipping malformed registry entry", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		instances = append(instances, instance)
	}

	return instances, nil
}

// Close releases the etcd connection. Leases kept alive by this registry expire after their TTL.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
