package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"

	"transformator/registry"
)

// DefaultReplicas is the number of virtual nodes per instance.
const DefaultReplicas = 100

// ConsistentHashBalancer maps a key (the operation name) onto a hash ring of instances.
// The ring is rebuilt only when the set of instance addresses changes.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	                ╲   ╱
type ConsistentHashBalancer struct {
	replicas int

	mu    sync.Mutex
	sig   string                        // addresses the ring was built from
	ring  []uint32                      // sorted virtual node hashes
	nodes map[uint32]*registry.Instance // virtual node hash → instance
}

func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: DefaultReplicas,
		nodes:    make(map[uint32]*registry.Instance),
	}
}

// Add places an instance on the ring with one virtual node per replica.
func (b *ConsistentHashBalancer) Add(instance *registry.Instance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.add(instance)
	b.sortRing()
}

func (b *ConsistentHashBalancer) add(instance *registry.Instance) {
	for i := 0; i < b.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", instance.Addr, i)))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = instance
	}
}

func (b *ConsistentHashBalancer) sortRing() {
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

// Pick rebuilds the ring if instances changed, then returns the first node clockwise of key.
func (b *ConsistentHashBalancer) Pick(instances []registry.Instance, key string) (*registry.Instance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if instances != nil {
		b.rebuild(instances)
	}
	if len(b.ring) == 0 {
		return nil, ErrNoInstances
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	inst := *b.nodes[b.ring[idx]]
	return &inst, nil
}

func (b *ConsistentHashBalancer) rebuild(instances []registry.Instance) {
	addrs := make([]string, len(instances))
	for i, inst := range instances {
		addrs[i] = inst.Addr
	}
	sort.Strings(addrs)
	sig := strings.Join(addrs, "\x00")
	if sig == b.sig && len(b.ring) > 0 {
		return
	}

	b.sig = sig
	b.ring = b.ring[:0]
	b.nodes = make(map[uint32]*registry.Instance, len(instances)*b.replicas)
	for i := range instances {
		inst := instances[i]
		b.add(&inst)
	}
	b.sortRing()
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
