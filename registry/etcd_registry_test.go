package registry

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

const testEtcd = "localhost:2379"

func newTestEtcdRegistry(t *testing.T) *EtcdRegistry {
	t.Helper()
	conn, err := net.DialTimeout("tcp", testEtcd, 200*time.Millisecond)
	if err != nil {
		t.Skipf("etcd not reachable on %s: %v", testEtcd, err)
	}
	conn.Close()

	reg, err := NewEtcdRegistry([]string{testEtcd}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { reg.Close() })
	return reg
}

func TestEtcdRegisterAndDiscover(t *testing.T) {
	reg := newTestEtcdRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Register two instances
	inst1 := Instance{Addr: "127.0.0.1:8001", Weight: 10, Version: "1.0"}
	inst2 := Instance{Addr: "/run/transformator.sock", Weight: 5, Version: "1.0"}

	if err := reg.Register(ctx, "transformator-test", inst1, 10); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(ctx, "transformator-test", inst2, 10); err != nil {
		t.Fatal(err)
	}

	instances, err := reg.Discover(ctx, "transformator-test")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 2 {
		t.Fatalf("expect 2 instances, got %d", len(instances))
	}

	// Deregister one
	if err := reg.Deregister(ctx, "transformator-test", inst1.Addr); err != nil {
		t.Fatal(err)
	}

	instances, err = reg.Discover(ctx, "transformator-test")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 1 {
		t.Fatalf("expect 1 instance after deregister, got %d", len(instances))
	}
	if instances[0].Addr != inst2.Addr {
		t.Fatalf("expect %s, got %s", inst2.Addr, instances[0].Addr)
	}

	reg.Deregister(ctx, "transformator-test", inst2.Addr)
}

func TestEtcdWatch(t *testing.T) {
	reg := newTestEtcdRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	updates := reg.Watch(ctx, "transformator-watch")
	time.Sleep(100 * time.Millisecond)

	inst := Instance{Addr: "127.0.0.1:8101", Weight: 1}
	if err := reg.Register(ctx, "transformator-watch", inst, 10); err != nil {
		t.Fatal(err)
	}
	defer reg.Deregister(context.Background(), "transformator-watch", inst.Addr)

	select {
	case instances := <-updates:
		if len(instances) != 1 || instances[0].Addr != inst.Addr {
			t.Fatalf("unexpected watch update %v", instances)
		}
	case <-ctx.Done():
		t.Fatal("no watch update")
	}
}
