package access

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxpark/accessd/pkg/txlog"
)

type fakeEnqueuer struct {
	mu  sync.Mutex
	txs []txlog.Transaction
}

func (f *fakeEnqueuer) Enqueue(tx txlog.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = append(f.txs, tx)
}

func TestFanoutRecord(t *testing.T) {
	dir := t.TempDir()
	log, err := txlog.Open(filepath.Join(dir, "transactions"))
	require.NoError(t, err)

	stats := txlog.OpenStats(filepath.Join(dir, "daily_stats.json"))
	ring := txlog.NewRing(10)
	up := &fakeEnqueuer{}

	f := &Fanout{Log: log, Stats: stats, Ring: ring, Uploader: up}

	at := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	tx := txlog.Transaction{
		Name: "A", Card: "1", Reader: 1,
		Status: txlog.StatusGranted, Timestamp: at.Unix(),
	}
	f.Record(tx)

	assert.Len(t, log.Tail(10), 1)
	assert.Equal(t, 1, stats.Today(at).Granted)
	assert.Equal(t, 1, ring.Len())
	assert.Len(t, up.txs, 1)
}

func TestFanoutWithoutUploader(t *testing.T) {
	dir := t.TempDir()
	log, err := txlog.Open(filepath.Join(dir, "transactions"))
	require.NoError(t, err)

	f := &Fanout{
		Log:   log,
		Stats: txlog.OpenStats(filepath.Join(dir, "daily_stats.json")),
		Ring:  txlog.NewRing(10),
	}
	f.Record(txlog.Transaction{Card: "1", Status: txlog.StatusDenied, Timestamp: time.Now().Unix()})
	assert.Len(t, log.Tail(1), 1)
}
