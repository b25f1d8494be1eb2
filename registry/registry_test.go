package registry

import (
	"context"
	"testing"
	"time"
)

func TestMemoryRegistry(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	reg.Register(ctx, "transformator", Instance{Addr: "b:2", Weight: 1}, 10)
	reg.Register(ctx, "transformator", Instance{Addr: "a:1", Weight: 1}, 10)
	reg.Register(ctx, "other", Instance{Addr: "c:3"}, 10)

	instances, err := reg.Discover(ctx, "transformator")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 2 || instances[0].Addr != "a:1" || instances[1].Addr != "b:2" {
		t.Fatalf("expect sorted [a:1 b:2], got %v", instances)
	}

	reg.Deregister(ctx, "transformator", "a:1")
	instances, _ = reg.Discover(ctx, "transformator")
	if len(instances) != 1 || instances[0].Addr != "b:2" {
		t.Fatalf("expect [b:2], got %v", instances)
	}

	if instances, _ := reg.Discover(ctx, "missing"); len(instances) != 0 {
		t.Fatalf("expect no instances, got %v", instances)
	}
}

func TestMemoryRegistryWatch(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	updates := reg.Watch(ctx, "transformator")
	reg.Register(context.Background(), "transformator", Instance{Addr: "a:1"}, 10)

	select {
	case instances := <-updates:
		if len(instances) != 1 {
			t.Fatalf("expect one instance, got %v", instances)
		}
	case <-time.After(time.Second):
		t.Fatal("no watch update")
	}

	cancel()
	select {
	case _, ok := <-updates:
		if ok {
			// A racing notify may still be buffered; the next receive must see the close.
			if _, ok := <-updates; ok {
				t.Fatal("expect channel closed after cancel")
			}
		}
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed")
	}
}
