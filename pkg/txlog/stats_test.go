package txlog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsRecordAndToday(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daily_stats.json")
	s := OpenStats(path)

	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.Record(StatusGranted, now))
	require.NoError(t, s.Record(StatusGranted, now))
	require.NoError(t, s.Record(StatusDenied, now))
	require.NoError(t, s.Record(StatusBlocked, now))

	got := s.Today(now)
	assert.Equal(t, TodayStats{Total: 4, Granted: 2, Denied: 1, Blocked: 1}, got)
}

func TestStatsResetOnDateRollover(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daily_stats.json")
	s := OpenStats(path)

	day1 := time.Date(2026, 3, 15, 23, 0, 0, 0, time.UTC)
	require.NoError(t, s.Record(StatusGranted, day1))

	day2 := day1.Add(2 * time.Hour)
	require.NoError(t, s.Record(StatusDenied, day2))

	got := s.Today(day2)
	assert.Equal(t, TodayStats{Total: 1, Denied: 1}, got)
}

func TestStatsPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daily_stats.json")
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	s := OpenStats(path)
	require.NoError(t, s.Record(StatusGranted, now))

	s2 := OpenStats(path)
	assert.Equal(t, TodayStats{Total: 1, Granted: 1}, s2.Today(now))
}

func TestStatsStaleDateReturnsZeros(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daily_stats.json")
	s := OpenStats(path)

	yesterday := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.Record(StatusGranted, yesterday))

	today := yesterday.AddDate(0, 0, 1)
	assert.Equal(t, TodayStats{}, s.Today(today))
}

func TestStatsUnknownStatus(t *testing.T) {
	s := OpenStats(filepath.Join(t.TempDir(), "daily_stats.json"))
	assert.Error(t, s.Record("Granted", time.Now()))
}

func TestRingNewestFirstAndEviction(t *testing.T) {
	r := NewRing(3)
	for i := 0; i < 5; i++ {
		r.Add(Transaction{Card: string(rune('a' + i))})
	}

	assert.Equal(t, 3, r.Len())
	got := r.Snapshot(10)
	require.Len(t, got, 3)
	assert.Equal(t, "e", got[0].Card)
	assert.Equal(t, "d", got[1].Card)
	assert.Equal(t, "c", got[2].Card)
}

func TestRingSnapshotLimit(t *testing.T) {
	r := NewRing(10)
	for i := 0; i < 5; i++ {
		r.Add(Transaction{Reader: i})
	}

	got := r.Snapshot(2)
	require.Len(t, got, 2)
	assert.Equal(t, 4, got[0].Reader)
	assert.Equal(t, 3, got[1].Reader)
}
