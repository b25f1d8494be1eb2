// Package loadbalance picks one discovered transformator instance per call.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity instances
//   - WeightedRandom:  heterogeneous instances, chosen proportionally to Weight
//   - ConsistentHash:  the same operation keeps landing on the same instance (warm engine caches)
package loadbalance

import (
	"errors"
	"fmt"
	"strings"

	"transformator/registry"
)

// ErrNoInstances is returned when there is nothing to pick from.
var ErrNoInstances = errors.New("no instances available")

// Balancer selects the target instance before each call. Implementations are goroutine-safe.
type Balancer interface {
	// Pick selects one of instances. key is the call's operation name; strategies
	// that do not route by key ignore it.
	Pick(instances []registry.Instance, key string) (*registry.Instance, error)

	// Name returns the strategy name (for logging).
	Name() string
}

// New returns the balancer registered under name (case-insensitive).
func New(name string) (Balancer, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "-", "")) {
	case "", "roundrobin":
		return &RoundRobinBalancer{}, nil
	case "weightedrandom", "weighted":
		return &WeightedRandomBalancer{}, nil
	case "consistenthash", "hash":
		return NewConsistentHashBalancer(), nil
	default:
		return nil, fmt.Errorf("unknown balancer %q", name)
	}
}
