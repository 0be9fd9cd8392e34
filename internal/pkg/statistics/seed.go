package statistics

import (
	"context"
	"fmt"
)

const (
	// SeedThreshold is the remote total above which no sample history is written.
	SeedThreshold = 10
	SeedDays      = 20
	seedMaxPerDay = 4
)

// SeedSampleHistory back-fills the previous SeedDays daily buckets with small
// placeholder counts so a fresh deployment does not show an empty counter.
// It runs at most once per fallback store: the seeded flag gates every write
// and days that already hold a value are left untouched.
func (a *Aggregator) SeedSampleHistory(ctx context.Context) (bool, error) {
	seeded, err := a.fallback.Seeded(ctx)
	if err != nil {
		return false, fmt.Errorf("read seed flag: %w", err)
	}
	if seeded {
		return false, nil
	}
	if a.remote == nil {
		a.log.Warn().Msg("no remote store configured, skipping sample history")
		return false, nil
	}

	total, err := a.remote.Total(ctx)
	if err != nil {
		return false, err
	}
	if total > SeedThreshold {
		return false, a.fallback.MarkSeeded(ctx)
	}

	written := 0
	for _, day := range previousDateKeys(a.clock.Now(), a.loc, SeedDays) {
		n := int64(a.randIntn(seedMaxPerDay)) + 1
		ok, err := a.remote.SetDailyIfAbsent(ctx, day, n)
		if err != nil {
			return false, err
		}
		if ok {
			written++
		}
	}

	daily, err := a.remote.AllDaily(ctx)
	if err != nil {
		return false, err
	}
	var sum int64
	for _, n := range daily {
		if n > 0 {
			sum += n
		}
	}
	if err := a.remote.SetTotal(ctx, sum); err != nil {
		return false, err
	}

	if err := a.fallback.MarkSeeded(ctx); err != nil {
		return false, fmt.Errorf("persist seed flag: %w", err)
	}
	a.log.Info().Int("days", written).Int64("total", sum).Msg("sample visit history generated")
	return true, nil
}
