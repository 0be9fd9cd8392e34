package statistics

import (
	"context"
	"time"
)

// Source tells where a displayed statistic came from.
type Source string

const (
	SourceLoading  Source = "loading"
	SourceRemote   Source = "remote"
	SourceFallback Source = "fallback"
	SourceError    Source = "error"
)

// Count is a counter value together with the store that produced it.
type Count struct {
	Value  int64
	Source Source
}

// Counters is the contract shared by the remote store and the local fallback
// store. Both keep a total, per-day buckets and a last-updated stamp.
type Counters interface {
	Total(ctx context.Context) (int64, error)
	// Increment adds one visit to the total and to the bucket of day and
	// stamps the last update. It returns the new total.
	Increment(ctx context.Context, day string, at time.Time) (int64, error)
	// DailyCounts returns one value per requested day, 0 for missing days.
	DailyCounts(ctx context.Context, days []string) ([]int64, error)
	// LastUpdated is the zero time when nothing was counted yet.
	LastUpdated(ctx context.Context) (time.Time, error)
}

// Remote is the durable store. The seeding helpers are only ever used
// against the remote store.
type Remote interface {
	Counters
	AllDaily(ctx context.Context) (map[string]int64, error)
	SetDailyIfAbsent(ctx context.Context, day string, n int64) (bool, error)
	SetTotal(ctx context.Context, n int64) error
}

// TotalWatcher is implemented by remotes that can push total updates.
type TotalWatcher interface {
	WatchTotal(ctx context.Context) (<-chan int64, error)
}

// Observer receives accounting events, typically to feed metrics.
type Observer interface {
	VisitCounted(src Source)
	VisitDeduplicated()
	FallbackUsed(op string)
	StoreFailed(op string)
}

type nopObserver struct{}

func (nopObserver) VisitCounted(Source) {}
func (nopObserver) VisitDeduplicated()  {}
func (nopObserver) FallbackUsed(string) {}
func (nopObserver) StoreFailed(string)  {}
