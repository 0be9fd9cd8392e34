package statistics

import "time"

// DateLayout is the YYYY-MM-DD form used for daily bucket keys.
const DateLayout = "2006-01-02"

const (
	WeeklyWindowDays  = 7
	MonthlyWindowDays = 30
)

// DateKey formats t as a daily bucket key in loc.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// DateKeys returns the keys of the n most recent calendar days ending with the
// day of now (inclusive), newest first.
func DateKeys(now time.Time, loc *time.Location, n int) []string {
	if n <= 0 {
		return nil
	}
	// Anchor at noon so DST transitions never skip or repeat a day.
	local := now.In(loc)
	noon := time.Date(local.Year(), local.Month(), local.Day(), 12, 0, 0, 0, loc)

	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		keys = append(keys, noon.AddDate(0, 0, -i).Format(DateLayout))
	}
	return keys
}

// previousDateKeys returns the keys for the n days before now, excluding today.
func previousDateKeys(now time.Time, loc *time.Location, n int) []string {
	keys := DateKeys(now, loc, n+1)
	if len(keys) == 0 {
		return nil
	}
	return keys[1:]
}

func sumCounts(counts []int64) int64 {
	var total int64
	for _, c := range counts {
		if c > 0 {
			total += c
		}
	}
	return total
}
