package statistics

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterVisitDebouncesWithinSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	agg := env.agg.ForProfile("browser-1")

	counted, err := agg.RegisterVisit(ctx)
	require.NoError(t, err)
	assert.True(t, counted)

	// Reload ten minutes later is the same visit.
	env.clock.Advance(10 * time.Minute)
	counted, err = agg.RegisterVisit(ctx)
	require.NoError(t, err)
	assert.False(t, counted)

	total, err := env.remote.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	env.clock.Advance(20 * time.Minute)
	counted, err = agg.RegisterVisit(ctx)
	require.NoError(t, err)
	assert.True(t, counted)

	total, err = env.remote.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestRegisterVisitProfilesAreIndependent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	for _, profile := range []string{"a", "b", "c"} {
		counted, err := env.agg.ForProfile(profile).RegisterVisit(ctx)
		require.NoError(t, err)
		assert.True(t, counted, profile)
	}

	weekly, err := env.agg.WeeklyVisits(ctx)
	require.NoError(t, err)
	assert.Equal(t, Count{Value: 3, Source: SourceRemote}, weekly)
}

func TestRegisterVisitFallsBackToLocalStore(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	agg, _ := newFallbackOnlyAggregator(t, brokenRemote{}, storage)
	obs := newCountingObserver()
	agg.observer = obs

	counted, err := agg.RegisterVisit(ctx)
	require.NoError(t, err)
	assert.True(t, counted)

	raw, ok, err := storage.Get(ctx, "nomada_daily_visits_2024-05-02")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", raw)
	assert.Equal(t, 1, obs.counted[SourceFallback])
	assert.Equal(t, 1, obs.failed["register"])

	// Deduplicated loads never touch either store.
	counted, err = agg.RegisterVisit(ctx)
	require.NoError(t, err)
	assert.False(t, counted)
	assert.Equal(t, 1, obs.deduplicated)
}

func TestRegisterVisitWithoutRemote(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	agg, _ := newFallbackOnlyAggregator(t, nil, storage)

	counted, err := agg.RegisterVisit(ctx)
	require.NoError(t, err)
	assert.True(t, counted)

	total, err := agg.TotalVisits(ctx)
	require.NoError(t, err)
	assert.Equal(t, Count{Value: 1, Source: SourceFallback}, total)
}

func TestRegisterVisitBothStoresDown(t *testing.T) {
	agg, _ := newFallbackOnlyAggregator(t, brokenRemote{}, brokenStorage{})

	counted, err := agg.RegisterVisit(context.Background())
	assert.False(t, counted)
	assert.ErrorIs(t, err, errStorageDown)
}

func TestWeeklyVisitsScenario(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	require.NoError(t, env.mr.Set("statistics/visits/daily/2024-05-01", "2"))
	require.NoError(t, env.mr.Set("statistics/visits/daily/2024-05-02", "3"))

	weekly, err := env.agg.WeeklyVisits(ctx)
	require.NoError(t, err)
	assert.Equal(t, Count{Value: 5, Source: SourceRemote}, weekly)
}

func TestWindowSumsAreConsistent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	var wantWeekly, wantMonthly int64
	for i, key := range DateKeys(testNow, time.UTC, 40) {
		n := int64(i%5 + 1)
		require.NoError(t, env.mr.Set(KeyVisitsDailyPrefix+key, fmt.Sprint(n)))
		if i < WeeklyWindowDays {
			wantWeekly += n
		}
		if i < MonthlyWindowDays {
			wantMonthly += n
		}
	}
	// Future buckets never leak into the window.
	require.NoError(t, env.mr.Set(KeyVisitsDailyPrefix+"2024-05-03", "100"))

	weekly, err := env.agg.WeeklyVisits(ctx)
	require.NoError(t, err)
	monthly, err := env.agg.MonthlyVisits(ctx)
	require.NoError(t, err)

	assert.Equal(t, wantWeekly, weekly.Value)
	assert.Equal(t, wantMonthly, monthly.Value)
	assert.LessOrEqual(t, weekly.Value, monthly.Value)
}

func TestWindowSumsEmptyIsZero(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	weekly, err := env.agg.WeeklyVisits(ctx)
	require.NoError(t, err)
	assert.Equal(t, Count{Value: 0, Source: SourceRemote}, weekly)

	// No floor inside the aggregator, on the fallback path either.
	agg, _ := newFallbackOnlyAggregator(t, brokenRemote{}, NewMemoryStorage())
	monthly, err := agg.MonthlyVisits(ctx)
	require.NoError(t, err)
	assert.Equal(t, Count{Value: 0, Source: SourceFallback}, monthly)
}

func TestWindowSumsFallback(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	require.NoError(t, storage.Set(ctx, "nomada_daily_visits_2024-05-02", "3"))
	require.NoError(t, storage.Set(ctx, "nomada_daily_visits_2024-04-28", "4"))
	require.NoError(t, storage.Set(ctx, "nomada_daily_visits_2024-04-10", "6"))
	agg, _ := newFallbackOnlyAggregator(t, brokenRemote{}, storage)

	weekly, err := agg.WeeklyVisits(ctx)
	require.NoError(t, err)
	assert.Equal(t, Count{Value: 7, Source: SourceFallback}, weekly)

	monthly, err := agg.MonthlyVisits(ctx)
	require.NoError(t, err)
	assert.Equal(t, Count{Value: 13, Source: SourceFallback}, monthly)
}

func TestWindowSumsBothStoresDown(t *testing.T) {
	agg, _ := newFallbackOnlyAggregator(t, brokenRemote{}, brokenStorage{})

	weekly, err := agg.WeeklyVisits(context.Background())
	assert.Error(t, err)
	assert.Equal(t, SourceError, weekly.Source)

	_, err = agg.TotalVisits(context.Background())
	assert.Error(t, err)
}

func TestRemoteOutageMidSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	agg := env.agg.ForProfile("browser-1")

	counted, err := agg.RegisterVisit(ctx)
	require.NoError(t, err)
	require.True(t, counted)

	env.mr.Close()
	env.clock.Advance(31 * time.Minute)

	counted, err = agg.RegisterVisit(ctx)
	require.NoError(t, err)
	assert.True(t, counted)

	weekly, err := agg.WeeklyVisits(ctx)
	require.NoError(t, err)
	assert.Equal(t, Count{Value: 1, Source: SourceFallback}, weekly)
}

func TestNewAggregatorDefaults(t *testing.T) {
	agg := NewAggregator(Config{Logger: zerolog.Nop()})

	require.NotNil(t, agg.fallback)
	assert.Equal(t, time.Local, agg.loc)
	assert.Equal(t, DefaultPollInterval, agg.poll)

	counted, err := agg.RegisterVisit(context.Background())
	require.NoError(t, err)
	assert.True(t, counted)
}

// slowStorage delays reads like a database round trip.
type slowStorage struct {
	*MemoryStorage
	delay time.Duration
}

func (s slowStorage) Get(ctx context.Context, key string) (string, bool, error) {
	time.Sleep(s.delay)
	return s.MemoryStorage.Get(ctx, key)
}

func TestRegisterVisitConcurrentRequestsCountOnce(t *testing.T) {
	ctx := context.Background()
	_, remote := newTestRedis(t)
	agg := NewAggregator(Config{
		Remote:   remote,
		Fallback: NewLocalStore(slowStorage{MemoryStorage: NewMemoryStorage(), delay: 2 * time.Millisecond}, DefaultNamespace),
		Clock:    newTestClock(t),
		Location: time.UTC,
		Logger:   zerolog.Nop(),
	})

	var counted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := agg.ForProfile("p1").RegisterVisit(ctx)
			assert.NoError(t, err)
			if ok {
				counted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), counted.Load())
	total, err := remote.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	// Other profiles are not held back by p1.
	ok, err := agg.ForProfile("p2").RegisterVisit(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLastUpdated(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	updated, err := env.agg.LastUpdated(ctx)
	require.NoError(t, err)
	assert.True(t, updated.IsZero())

	_, err = env.agg.ForProfile("p1").RegisterVisit(ctx)
	require.NoError(t, err)
	updated, err = env.agg.LastUpdated(ctx)
	require.NoError(t, err)
	assert.True(t, updated.Equal(testNow))

	agg, mClock := newFallbackOnlyAggregator(t, brokenRemote{}, NewMemoryStorage())
	mClock.Advance(time.Minute)
	_, err = agg.ForProfile("p1").RegisterVisit(ctx)
	require.NoError(t, err)
	updated, err = agg.LastUpdated(ctx)
	require.NoError(t, err)
	assert.True(t, updated.Equal(testNow.Add(time.Minute)))
}
