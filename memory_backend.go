package resilock

import (
	"context"
	"sync"
	"time"
)

// memoryLockRecord is the in-process representation of a single named
// lock's live state.
type memoryLockRecord struct {
	token    string
	expireAt time.Time
}

func (r *memoryLockRecord) live(now time.Time) bool {
	return r != nil && r.expireAt.After(now)
}

// MemoryBackend is a process-local SyncBackend backed by a map guarded by
// striped mutexes, intended for single-process use, tests, and local
// development. It is not suitable for coordinating across processes.
type MemoryBackend struct {
	stripes *stripedLocks
	records sync.Map // name -> *memoryLockRecord
}

// NewMemoryBackend constructs an empty MemoryBackend. stripeCount controls
// the internal lock granularity; 0 selects a sensible default.
func NewMemoryBackend(stripeCount ...int) *MemoryBackend {
	count := 0
	if len(stripeCount) > 0 {
		count = stripeCount[0]
	}
	return &MemoryBackend{stripes: newStripedLocks(count)}
}

var _ SyncBackend = (*MemoryBackend)(nil)
var _ Lister = (*MemoryBackend)(nil)

func (b *MemoryBackend) Acquire(_ context.Context, name, token string, duration time.Duration) (bool, error) {
	unlock := b.stripes.lock(name)
	defer unlock()

	now := time.Now()
	if v, ok := b.records.Load(name); ok {
		rec := v.(*memoryLockRecord)
		if rec.live(now) && rec.token != token {
			return false, nil
		}
	}
	b.records.Store(name, &memoryLockRecord{token: token, expireAt: now.Add(duration)})
	return true, nil
}

func (b *MemoryBackend) Release(_ context.Context, name, token string) (bool, error) {
	unlock := b.stripes.lock(name)
	defer unlock()

	v, ok := b.records.Load(name)
	if !ok {
		return false, nil
	}
	rec := v.(*memoryLockRecord)
	if !rec.live(time.Now()) || rec.token != token {
		return false, nil
	}
	b.records.Delete(name)
	return true, nil
}

func (b *MemoryBackend) Locked(_ context.Context, name string) (bool, error) {
	v, ok := b.records.Load(name)
	if !ok {
		return false, nil
	}
	return v.(*memoryLockRecord).live(time.Now()), nil
}

func (b *MemoryBackend) Owned(_ context.Context, name, token string) (bool, error) {
	v, ok := b.records.Load(name)
	if !ok {
		return false, nil
	}
	rec := v.(*memoryLockRecord)
	return rec.live(time.Now()) && rec.token == token, nil
}

// ListLocks returns every currently live lock record, used by LockManager
// for introspection. Expired-but-not-yet-overwritten records are omitted.
func (b *MemoryBackend) ListLocks(_ context.Context) ([]LockRecord, error) {
	now := time.Now()
	var out []LockRecord
	b.records.Range(func(key, value interface{}) bool {
		rec := value.(*memoryLockRecord)
		if rec.live(now) {
			out = append(out, LockRecord{Name: key.(string), Token: rec.token, ExpireAt: rec.expireAt})
		}
		return true
	})
	return out, nil
}
