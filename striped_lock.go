package resilock

import (
	"hash/fnv"
	"sync"
)

// stripedLocks provides fine-grained locking using multiple mutexes to
// reduce contention compared to a single global mutex, used internally by
// MemoryBackend to serialize the check-then-act acquire/release sequence
// per lock name without serializing unrelated names against each other.
//
// How it works:
//   - hash the name to pick a stripe
//   - different names usually land on different stripes → concurrent ops
//   - the same name always lands on the same stripe → correctness (I3)
type stripedLocks struct {
	stripes []sync.Mutex
	count   uint32
}

// newStripedLocks creates a striped lock with the given stripe count.
// Recommended: 32 for most use cases, 128 for high-concurrency scenarios.
func newStripedLocks(stripeCount int) *stripedLocks {
	if stripeCount <= 0 {
		stripeCount = 32
	}
	return &stripedLocks{
		stripes: make([]sync.Mutex, stripeCount),
		count:   uint32(stripeCount),
	}
}

// lock acquires the stripe guarding key and returns an unlock function.
func (sl *stripedLocks) lock(key string) func() {
	idx := sl.stripeIndex(key)
	sl.stripes[idx].Lock()
	return func() {
		sl.stripes[idx].Unlock()
	}
}

func (sl *stripedLocks) stripeIndex(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32() % sl.count
}
