package statistics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/coder/quartz"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	errRemoteDown  = errors.New("remote store unreachable")
	errStorageDown = errors.New("storage disabled")
)

// 2024-05-02 10:00 UTC, the "today" of the fixed scenarios.
var testNow = time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)

func newTestClock(t *testing.T) *quartz.Mock {
	t.Helper()
	mClock := quartz.NewMock(t)
	mClock.Set(testNow)
	return mClock
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisStore(client)
}

type testEnv struct {
	mr      *miniredis.Miniredis
	remote  *RedisStore
	storage *MemoryStorage
	local   *LocalStore
	clock   *quartz.Mock
	agg     *Aggregator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr, remote := newTestRedis(t)
	storage := NewMemoryStorage()
	local := NewLocalStore(storage, DefaultNamespace)
	mClock := newTestClock(t)

	agg := NewAggregator(Config{
		Remote:   remote,
		Fallback: local,
		Clock:    mClock,
		Location: time.UTC,
		Logger:   zerolog.Nop(),
		RandIntn: func(n int) int { return 2 },
	})
	return &testEnv{mr: mr, remote: remote, storage: storage, local: local, clock: mClock, agg: agg}
}

func newFallbackOnlyAggregator(t *testing.T, remote Remote, storage Storage) (*Aggregator, *quartz.Mock) {
	t.Helper()
	mClock := newTestClock(t)
	agg := NewAggregator(Config{
		Remote:   remote,
		Fallback: NewLocalStore(storage, DefaultNamespace),
		Clock:    mClock,
		Location: time.UTC,
		Logger:   zerolog.Nop(),
	})
	return agg, mClock
}

// brokenRemote fails every call, like a realtime database that is offline.
type brokenRemote struct{}

func (brokenRemote) Total(context.Context) (int64, error) { return 0, errRemoteDown }
func (brokenRemote) Increment(context.Context, string, time.Time) (int64, error) {
	return 0, errRemoteDown
}
func (brokenRemote) DailyCounts(context.Context, []string) ([]int64, error) {
	return nil, errRemoteDown
}
func (brokenRemote) LastUpdated(context.Context) (time.Time, error) {
	return time.Time{}, errRemoteDown
}
func (brokenRemote) AllDaily(context.Context) (map[string]int64, error) { return nil, errRemoteDown }
func (brokenRemote) SetDailyIfAbsent(context.Context, string, int64) (bool, error) {
	return false, errRemoteDown
}
func (brokenRemote) SetTotal(context.Context, int64) error { return errRemoteDown }

// brokenStorage behaves like browser storage that is disabled.
type brokenStorage struct{}

func (brokenStorage) Get(context.Context, string) (string, bool, error) {
	return "", false, errStorageDown
}
func (brokenStorage) Set(context.Context, string, string) error { return errStorageDown }
func (brokenStorage) Delete(context.Context, string) error       { return errStorageDown }

type countingObserver struct {
	counted      map[Source]int
	deduplicated int
	fallback     map[string]int
	failed       map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{
		counted:  map[Source]int{},
		fallback: map[string]int{},
		failed:   map[string]int{},
	}
}

func (o *countingObserver) VisitCounted(src Source) { o.counted[src]++ }
func (o *countingObserver) VisitDeduplicated()      { o.deduplicated++ }
func (o *countingObserver) FallbackUsed(op string)  { o.fallback[op]++ }
func (o *countingObserver) StoreFailed(op string)   { o.failed[op]++ }
