package client

import (
	"context"
	"testing"
	"time"

	"transformator/loadbalance"
	"transformator/registry"
	"transformator/server"
)

func setupBenchServer(b *testing.B) *server.Server {
	b.Helper()
	svr := server.NewServer()
	server.RegisterDefaults(svr)
	if err := svr.Listen("127.0.0.1:0"); err != nil {
		b.Fatal(err)
	}
	go svr.Serve(context.Background())
	b.Cleanup(func() { svr.Shutdown(3 * time.Second) })
	return svr
}

var benchData = map[string]any{"name": "Peter"}

const benchTemplate = "span\n  | Hi #{name}!\n"

// One goroutine, one connection per call
func BenchmarkSerialCall(b *testing.B) {
	c := NewWithEndpoint(setupBenchServer(b).Endpoint())
	ctx := context.Background()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := c.RenderTemplate(ctx, benchTemplate, benchData); err != nil {
			b.Fatal(err)
		}
	}
}

// Concurrent callers share the Client but never a connection
func BenchmarkConcurrentCall(b *testing.B) {
	c := NewWithEndpoint(setupBenchServer(b).Endpoint())
	ctx := context.Background()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := c.RenderTemplate(ctx, benchTemplate, benchData); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

// Discovery adds a registry lookup and a balancer pick to every call
func BenchmarkDiscoveryCall(b *testing.B) {
	svr := setupBenchServer(b)
	reg := registry.NewMemoryRegistry()
	reg.Register(context.Background(), "transformator", registry.Instance{Addr: svr.Endpoint().String()}, 10)
	c := NewDiscoveryClient(reg, &loadbalance.RoundRobinBalancer{}, "transformator")
	ctx := context.Background()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := c.RenderTemplate(ctx, benchTemplate, benchData); err != nil {
			b.Fatal(err)
		}
	}
}
