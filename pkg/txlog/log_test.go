package txlog

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "transactions"))
	require.NoError(t, err)
	return l
}

func tx(card string, status string, ts int64) Transaction {
	return Transaction{
		Name:      "Test User",
		Card:      card,
		Reader:    1,
		Status:    status,
		Timestamp: ts,
	}
}

func TestAppendWritesDayFile(t *testing.T) {
	l := openTestLog(t)

	ts := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC).Unix()
	require.NoError(t, l.Append(tx("12345", StatusGranted, ts)))

	path := filepath.Join(l.Dir(), "transactions_20260315.jsonl")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"card":"12345"`)
	assert.Contains(t, string(data), `"status":"Access Granted"`)
}

func TestAppendSplitsByUTCDate(t *testing.T) {
	l := openTestLog(t)

	d1 := time.Date(2026, 3, 15, 23, 59, 0, 0, time.UTC).Unix()
	d2 := time.Date(2026, 3, 16, 0, 1, 0, 0, time.UTC).Unix()
	require.NoError(t, l.Append(tx("1", StatusGranted, d1)))
	require.NoError(t, l.Append(tx("2", StatusGranted, d2)))

	assert.FileExists(t, filepath.Join(l.Dir(), "transactions_20260315.jsonl"))
	assert.FileExists(t, filepath.Join(l.Dir(), "transactions_20260316.jsonl"))
}

func TestTailNewestFirstAcrossFiles(t *testing.T) {
	l := openTestLog(t)

	base := time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		// Two per day across three days.
		ts := base.AddDate(0, 0, i/2).Add(time.Duration(i%2) * time.Hour)
		require.NoError(t, l.Append(tx(fmt.Sprintf("%d", i), StatusGranted, ts.Unix())))
	}

	got := l.Tail(3)
	require.Len(t, got, 3)
	assert.Equal(t, "4", got[0].Card)
	assert.Equal(t, "3", got[1].Card)
	assert.Equal(t, "2", got[2].Card)
}

func TestTailSkipsCorruptLines(t *testing.T) {
	l := openTestLog(t)

	ts := time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC).Unix()
	require.NoError(t, l.Append(tx("good1", StatusGranted, ts)))

	path := filepath.Join(l.Dir(), "transactions_20260315.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not valid json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, l.Append(tx("good2", StatusDenied, ts+60)))

	got := l.Tail(10)
	require.Len(t, got, 2)
	assert.Equal(t, "good2", got[0].Card)
	assert.Equal(t, "good1", got[1].Card)
}

func TestTailLimitZero(t *testing.T) {
	l := openTestLog(t)
	assert.Empty(t, l.Tail(0))
}

func TestRangeFiltersByWindow(t *testing.T) {
	l := openTestLog(t)

	base := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		ts := base.AddDate(0, 0, i).Add(12 * time.Hour)
		require.NoError(t, l.Append(tx(fmt.Sprintf("%d", i), StatusGranted, ts.Unix())))
	}

	got := l.Range(base.AddDate(0, 0, 1), base.AddDate(0, 0, 3))
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].Card, "oldest first")
	assert.Equal(t, "2", got[1].Card)
}

func TestRangeEmptyWindow(t *testing.T) {
	l := openTestLog(t)
	now := time.Now()
	assert.Empty(t, l.Range(now, now))
}

func TestSizeSumsDayFiles(t *testing.T) {
	l := openTestLog(t)

	ts := time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC).Unix()
	require.NoError(t, l.Append(tx("1", StatusGranted, ts)))
	require.NoError(t, l.Append(tx("2", StatusGranted, ts+86400)))

	size, err := l.Size()
	require.NoError(t, err)
	assert.Greater(t, size, int64(0))
}

func TestEvictPreservesToday(t *testing.T) {
	l := openTestLog(t)

	now := time.Date(2026, 3, 17, 12, 0, 0, 0, time.UTC)
	for day := 0; day < 3; day++ {
		ts := now.AddDate(0, 0, -day).Unix()
		for i := 0; i < 10; i++ {
			require.NoError(t, l.Append(tx(fmt.Sprintf("%d-%d", day, i), StatusGranted, ts)))
		}
	}

	// Ask for everything; today's file must survive anyway.
	freed, removed := l.Evict(1.0, now)
	assert.Greater(t, freed, int64(0))
	assert.Equal(t, 2, removed)
	assert.FileExists(t, filepath.Join(l.Dir(), "transactions_20260317.jsonl"))
	assert.NoFileExists(t, filepath.Join(l.Dir(), "transactions_20260316.jsonl"))
	assert.NoFileExists(t, filepath.Join(l.Dir(), "transactions_20260315.jsonl"))
}

func TestEvictOldestFirst(t *testing.T) {
	l := openTestLog(t)

	now := time.Date(2026, 3, 17, 12, 0, 0, 0, time.UTC)
	for day := 1; day <= 4; day++ {
		ts := now.AddDate(0, 0, -day).Unix()
		require.NoError(t, l.Append(tx("x", StatusGranted, ts)))
	}

	_, removed := l.Evict(0.5, now)
	assert.Equal(t, 2, removed)
	assert.NoFileExists(t, filepath.Join(l.Dir(), "transactions_20260313.jsonl"))
	assert.NoFileExists(t, filepath.Join(l.Dir(), "transactions_20260314.jsonl"))
	assert.FileExists(t, filepath.Join(l.Dir(), "transactions_20260316.jsonl"))
}

func TestMonitorEvictsOverCap(t *testing.T) {
	l := openTestLog(t)

	now := time.Date(2026, 3, 17, 12, 0, 0, 0, time.UTC)
	for day := 0; day < 2; day++ {
		ts := now.AddDate(0, 0, -day).Unix()
		for i := 0; i < 20; i++ {
			require.NoError(t, l.Append(tx("c", StatusGranted, ts)))
		}
	}

	m := NewMonitor(l, MonitorConfig{Cap: 100, Fraction: 0.5, Interval: time.Minute})
	m.checkOnce(now)

	assert.NoFileExists(t, filepath.Join(l.Dir(), "transactions_20260316.jsonl"))
	assert.FileExists(t, filepath.Join(l.Dir(), "transactions_20260317.jsonl"))
}

func TestMonitorUnderCapNoEviction(t *testing.T) {
	l := openTestLog(t)

	now := time.Date(2026, 3, 17, 12, 0, 0, 0, time.UTC)
	require.NoError(t, l.Append(tx("c", StatusGranted, now.AddDate(0, 0, -1).Unix())))

	m := NewMonitor(l, MonitorConfig{Cap: 1 << 30, Fraction: 0.5, Interval: time.Minute})
	m.checkOnce(now)

	assert.FileExists(t, filepath.Join(l.Dir(), "transactions_20260316.jsonl"))
}
