package syncutil

import (
	"hash/fnv"
	"sync"
)

// KeyedMutex serializes operations that share a string key (here, a
// transaction id) using a fixed pool of mutexes. Memory stays bounded no
// matter how many keys are seen; keys hashing to the same shard occasionally
// contend with each other, which is harmless for correctness.
type KeyedMutex struct {
	shards [128]sync.Mutex
}

// NewKeyedMutex returns a ready-to-use keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{}
}

// Lock acquires the mutex for the given key and returns its unlock function.
//
//	defer km.Lock(txnID)()
func (m *KeyedMutex) Lock(key string) func() {
	mu := m.shard(key)
	mu.Lock()
	return mu.Unlock
}

func (m *KeyedMutex) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &m.shards[h.Sum32()%uint32(len(m.shards))]
}
