package keylock

import (
	"hash/fnv"
	"sync"
)

const shardCount = 64

// Striped serializes work per key without keeping a mutex per key alive.
// Distinct keys may share a shard; callers must not nest locks.
type Striped struct {
	shards [shardCount]sync.Mutex
}

// New returns a ready striped lock.
func New() *Striped {
	return &Striped{}
}

// Lock acquires the shard for key and returns its unlock function.
func (s *Striped) Lock(key string) func() {
	m := &s.shards[shardFor(key)]
	m.Lock()
	return m.Unlock
}

func shardFor(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}
