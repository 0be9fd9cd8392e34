package statistics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	KeyVisitsTotal       = "statistics/visits/total"
	KeyVisitsDailyPrefix = "statistics/visits/daily/"
	KeyVisitsLastUpdated = "statistics/visits/lastUpdated"

	// ChannelVisitsTotal carries the new total after every increment.
	ChannelVisitsTotal = "statistics/visits/total"
)

// RedisStore keeps the visit counters in Redis under the statistics/visits
// key tree.
type RedisStore struct {
	client redis.UniversalClient
}

var (
	_ Remote       = (*RedisStore)(nil)
	_ TotalWatcher = (*RedisStore)(nil)
)

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Total(ctx context.Context) (int64, error) {
	n, err := s.client.Get(ctx, KeyVisitsTotal).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get visit total: %w", err)
	}
	return n, nil
}

func (s *RedisStore) Increment(ctx context.Context, day string, at time.Time) (int64, error) {
	var total *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		total = pipe.Incr(ctx, KeyVisitsTotal)
		pipe.Incr(ctx, KeyVisitsDailyPrefix+day)
		pipe.Set(ctx, KeyVisitsLastUpdated, at.UTC().Format(time.RFC3339), 0)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("increment visit counters: %w", err)
	}

	n := total.Val()
	// Subscribers are best effort, the counters are already written.
	_ = s.client.Publish(ctx, ChannelVisitsTotal, n).Err()
	return n, nil
}

func (s *RedisStore) DailyCounts(ctx context.Context, days []string) ([]int64, error) {
	if len(days) == 0 {
		return nil, nil
	}
	keys := make([]string, len(days))
	for i, day := range days {
		keys[i] = KeyVisitsDailyPrefix + day
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("get daily visits: %w", err)
	}
	return parseCounts(vals), nil
}

// AllDaily returns every daily bucket, keyed by date.
func (s *RedisStore) AllDaily(ctx context.Context) (map[string]int64, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, KeyVisitsDailyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan daily visits: %w", err)
	}

	daily := make(map[string]int64, len(keys))
	if len(keys) == 0 {
		return daily, nil
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("get daily visits: %w", err)
	}
	for i, n := range parseCounts(vals) {
		daily[strings.TrimPrefix(keys[i], KeyVisitsDailyPrefix)] = n
	}
	return daily, nil
}

func (s *RedisStore) SetDailyIfAbsent(ctx context.Context, day string, n int64) (bool, error) {
	ok, err := s.client.SetNX(ctx, KeyVisitsDailyPrefix+day, n, 0).Result()
	if err != nil {
		return false, fmt.Errorf("seed daily visits for %s: %w", day, err)
	}
	return ok, nil
}

func (s *RedisStore) SetTotal(ctx context.Context, n int64) error {
	if err := s.client.Set(ctx, KeyVisitsTotal, n, 0).Err(); err != nil {
		return fmt.Errorf("set visit total: %w", err)
	}
	return nil
}

// LastUpdated returns the zero time when the stamp was never written.
func (s *RedisStore) LastUpdated(ctx context.Context) (time.Time, error) {
	raw, err := s.client.Get(ctx, KeyVisitsLastUpdated).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get last updated: %w", err)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

// WatchTotal streams totals published by Increment. The channel is closed
// when ctx is done or the subscription breaks.
func (s *RedisStore) WatchTotal(ctx context.Context) (<-chan int64, error) {
	pubsub := s.client.Subscribe(ctx, ChannelVisitsTotal)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to visit total: %w", err)
	}

	out := make(chan int64)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				n, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					continue
				}
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func parseCounts(vals []interface{}) []int64 {
	counts := make([]int64, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			continue
		}
		counts[i] = n
	}
	return counts
}
