package statistics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateKeys(t *testing.T) {
	keys := DateKeys(testNow, time.UTC, WeeklyWindowDays)

	require.Len(t, keys, 7)
	assert.Equal(t, "2024-05-02", keys[0])
	assert.Equal(t, "2024-04-26", keys[6])
}

func TestDateKeysCrossesMonthAndYear(t *testing.T) {
	now := time.Date(2024, 1, 3, 23, 59, 0, 0, time.UTC)
	keys := DateKeys(now, time.UTC, 5)

	assert.Equal(t, []string{"2024-01-03", "2024-01-02", "2024-01-01", "2023-12-31", "2023-12-30"}, keys)
}

func TestDateKeyUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	// 02:00 UTC is still the previous evening five hours west.
	now := time.Date(2024, 5, 2, 2, 0, 0, 0, time.UTC)

	assert.Equal(t, "2024-05-01", DateKey(now, loc))
	assert.Equal(t, "2024-05-01", DateKeys(now, loc, 1)[0])
}

func TestDateKeysAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// DST starts on 2024-03-31 in Madrid.
	now := time.Date(2024, 4, 1, 0, 30, 0, 0, loc)
	keys := DateKeys(now, loc, 3)

	assert.Equal(t, []string{"2024-04-01", "2024-03-31", "2024-03-30"}, keys)
}

func TestPreviousDateKeys(t *testing.T) {
	keys := previousDateKeys(testNow, time.UTC, SeedDays)

	require.Len(t, keys, SeedDays)
	assert.Equal(t, "2024-05-01", keys[0])
	assert.Equal(t, "2024-04-12", keys[SeedDays-1])
	assert.NotContains(t, keys, "2024-05-02")
}

func TestSumCountsIgnoresNegatives(t *testing.T) {
	assert.Equal(t, int64(0), sumCounts(nil))
	assert.Equal(t, int64(6), sumCounts([]int64{1, 2, -5, 3}))
}
