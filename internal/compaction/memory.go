package compaction

import (
	"sync"
	"sync/atomic"
)

// MemoryLimit imposes a global cap on the estimated memory consumed by
// in-flight compactions. Combined with MemoryUsageToken it gives each
// admitted task a scoped reservation that is returned on release.
type MemoryLimit struct {
	usage atomic.Int64
	limit int64
}

// NewMemoryLimit creates a limit of the given byte count.
func NewMemoryLimit(limit uint64) *MemoryLimit {
	return &MemoryLimit{limit: int64(limit)}
}

// TryApplyToken reserves bytes if possible. The amount is applied first and
// checked after: usage may transiently exceed the limit during the call, and
// a reservation landing exactly at the limit is admitted. Returns nil when
// the limit would be exceeded.
func (m *MemoryLimit) TryApplyToken(bytes uint64) *MemoryUsageToken {
	token := m.applyToken(bytes)
	if m.isExceeded() {
		token.Release()
		return nil
	}
	return token
}

func (m *MemoryLimit) applyToken(bytes uint64) *MemoryUsageToken {
	m.usage.Add(int64(bytes))
	return &MemoryUsageToken{limit: m, applied: int64(bytes)}
}

func (m *MemoryLimit) isExceeded() bool {
	return m.usage.Load() > m.limit
}

// Usage returns the current reserved byte count.
func (m *MemoryLimit) Usage() uint64 {
	return uint64(m.usage.Load())
}

// MemoryUsageToken records one reservation against a MemoryLimit. Release
// returns the reserved amount; it is idempotent, so owners can release on
// every exit path without double-counting.
type MemoryUsageToken struct {
	limit   *MemoryLimit
	applied int64
	once    sync.Once
}

// Applied returns the reserved byte count.
func (t *MemoryUsageToken) Applied() uint64 {
	return uint64(t.applied)
}

// Release subtracts the reserved amount from the global usage.
func (t *MemoryUsageToken) Release() {
	t.once.Do(func() {
		t.limit.usage.Add(-t.applied)
	})
}
