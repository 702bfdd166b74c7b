package cache

import (
	"device-adapter-core/internal/domain/model"
	"sync"
	"time"
)

// Dedup holds the last good fetch of a single camera. Each camera owns
// exactly one Dedup; it is never shared between targets.
type Dedup struct {
	mu     sync.RWMutex
	result model.CachedResult
	now    func() time.Time
}

func NewDedup() *Dedup {
	return &Dedup{now: time.Now}
}

// ShouldRefetch is false only when refetching is limited to URL changes and
// the resolved key equals the last fetched one.
func (d *Dedup) ShouldRefetch(target model.TargetDescriptor, key string) bool {
	if !target.LimitRefetch {
		return true
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.result.Timestamp.IsZero() {
		return true
	}
	return key != d.result.LastKey
}

func (d *Dedup) Update(payload []byte, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.result = model.CachedResult{
		LastKey:     key,
		LastPayload: payload,
		Timestamp:   d.now(),
	}
}

// Get returns the last good payload, or nil before the first successful fetch.
func (d *Dedup) Get() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.result.LastPayload
}

func (d *Dedup) Snapshot() model.CachedResult {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.result
}
