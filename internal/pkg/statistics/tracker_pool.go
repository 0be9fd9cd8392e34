package statistics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maypok86/otter"
)

// TrackerPool keeps one mounted Tracker per browser profile. A tracker that
// is not acquired again within the idle timeout is evicted and unmounted.
type TrackerPool struct {
	ctx     context.Context
	factory func(profile string) *Tracker
	cache   otter.Cache[string, *Tracker]
	mu      sync.Mutex
	closed  bool
}

func NewTrackerPool(ctx context.Context, capacity int, idle time.Duration, factory func(profile string) *Tracker) (*TrackerPool, error) {
	cache, err := otter.MustBuilder[string, *Tracker](capacity).
		WithTTL(idle).
		DeletionListener(func(_ string, t *Tracker, cause otter.DeletionCause) {
			// Acquire re-sets the same tracker to extend its TTL.
			if cause == otter.Replaced {
				return
			}
			go t.Unmount()
		}).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build tracker cache: %w", err)
	}

	return &TrackerPool{
		ctx:     ctx,
		factory: factory,
		cache:   cache,
	}, nil
}

// Acquire returns the mounted tracker of profile, mounting a new one on
// first use.
func (p *TrackerPool) Acquire(profile string) *Tracker {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return p.factory(profile)
	}
	if t, ok := p.cache.Get(profile); ok {
		p.cache.Set(profile, t)
		return t
	}

	t := p.factory(profile)
	t.Mount(p.ctx)
	if !p.cache.Set(profile, t) {
		// Rejected by the cache, don't leak the refresh loop.
		go t.Unmount()
	}
	return t
}

func (p *TrackerPool) Size() int {
	return p.cache.Size()
}

// Close unmounts every tracker and releases the cache.
func (p *TrackerPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true

	var trackers []*Tracker
	p.cache.Range(func(_ string, t *Tracker) bool {
		trackers = append(trackers, t)
		return true
	})
	p.cache.Close()

	for _, t := range trackers {
		t.Unmount()
	}
}
