package txlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/maxpark/accessd/internal/logger"
)

const (
	filePrefix = "transactions_"
	fileSuffix = ".jsonl"

	// tailChunkSize bounds how much of a day file a single Tail call
	// reads. At typical line sizes this covers thousands of entries.
	tailChunkSize = 256 * 1024
)

// Log is the append-only transaction store backed by per-day JSONL
// files (transactions_YYYYMMDD.jsonl, UTC dates).
type Log struct {
	dir string
}

// Open prepares the transaction directory and returns the log.
func Open(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transactions dir: %w", err)
	}
	return &Log{dir: dir}, nil
}

// Dir returns the transactions directory path.
func (l *Log) Dir() string {
	return l.dir
}

// Append writes tx as one JSON line to the day file for its timestamp
// and syncs the file before returning.
func (l *Log) Append(tx Transaction) error {
	line, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}

	path := l.dayFile(time.Unix(tx.Timestamp, 0).UTC())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open day file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync day file: %w", err)
	}
	return nil
}

// Tail returns up to limit transactions, newest first, reading day
// files from the most recent backwards. Unparseable lines are skipped.
func (l *Log) Tail(limit int) []Transaction {
	if limit <= 0 {
		return nil
	}

	files := l.dayFiles()
	out := make([]Transaction, 0, limit)
	for i := len(files) - 1; i >= 0 && len(out) < limit; i-- {
		txs, skipped := readTailFile(files[i], limit-len(out))
		if skipped > 0 {
			logger.Warn("skipped unparseable transaction lines",
				logger.KeyFile, files[i], logger.KeyCount, skipped)
		}
		out = append(out, txs...)
	}
	return out
}

// Range returns all transactions with timestamps in [from, to),
// oldest first. Only the day files covering the window are read.
func (l *Log) Range(from, to time.Time) []Transaction {
	if !to.After(from) {
		return nil
	}

	firstDay := filepath.Base(l.dayFile(from.UTC()))
	lastDay := filepath.Base(l.dayFile(to.UTC()))

	var out []Transaction
	for _, path := range l.dayFiles() {
		name := filepath.Base(path)
		if name < firstDay || name > lastDay {
			continue
		}
		txs, skipped := readFullFile(path)
		if skipped > 0 {
			logger.Warn("skipped unparseable transaction lines",
				logger.KeyFile, path, logger.KeyCount, skipped)
		}
		for _, tx := range txs {
			at := time.Unix(tx.Timestamp, 0)
			if at.Before(from) || !at.Before(to) {
				continue
			}
			out = append(out, tx)
		}
	}
	return out
}

// Size returns the total size in bytes of all day files.
func (l *Log) Size() (int64, error) {
	var total int64
	for _, path := range l.dayFiles() {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, fmt.Errorf("stat %s: %w", path, err)
		}
		total += info.Size()
	}
	return total, nil
}

// Evict deletes the oldest day files until at least fraction of the
// current total size has been freed. The current day's file is never
// deleted. Returns bytes freed and files removed.
func (l *Log) Evict(fraction float64, now time.Time) (int64, int) {
	total, err := l.Size()
	if err != nil || total == 0 {
		return 0, 0
	}

	target := int64(float64(total) * fraction)
	today := filepath.Base(l.dayFile(now.UTC()))

	var freed int64
	var removed int
	for _, path := range l.dayFiles() { // sorted oldest first
		if freed >= target {
			break
		}
		if filepath.Base(path) == today {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if err := os.Remove(path); err != nil {
			logger.Error("failed to evict day file", logger.KeyFile, path, logger.Err(err))
			continue
		}
		freed += info.Size()
		removed++
		logger.Info("evicted day file", logger.KeyFile, path, logger.KeySize, info.Size())
	}
	return freed, removed
}

func (l *Log) dayFile(t time.Time) string {
	return filepath.Join(l.dir, filePrefix+t.Format("20060102")+fileSuffix)
}

// dayFiles returns the day file paths sorted oldest first. The date in
// the filename sorts lexically, so a plain sort is chronological.
func (l *Log) dayFiles() []string {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		files = append(files, filepath.Join(l.dir, name))
	}
	sort.Strings(files)
	return files
}

// readFullFile reads every transaction in a day file, oldest first.
func readFullFile(path string) ([]Transaction, int) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var txs []Transaction
	skipped := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var tx Transaction
		if err := json.Unmarshal(line, &tx); err != nil {
			skipped++
			continue
		}
		txs = append(txs, tx)
	}
	return txs, skipped
}

// readTailFile reads up to limit transactions from the end of one day
// file, newest first. Only the trailing tailChunkSize bytes are
// examined; a partial first line after seeking is discarded.
func readTailFile(path string, limit int) ([]Transaction, int) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0
	}

	offset := int64(0)
	if info.Size() > tailChunkSize {
		offset = info.Size() - tailChunkSize
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, 0
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var txs []Transaction
	skipped := 0
	first := true
	for scanner.Scan() {
		line := scanner.Bytes()
		if first {
			first = false
			if offset > 0 {
				continue // partial line after seek
			}
		}
		if len(line) == 0 {
			continue
		}
		var tx Transaction
		if err := json.Unmarshal(line, &tx); err != nil {
			skipped++
			continue
		}
		txs = append(txs, tx)
	}

	// Newest first.
	for i, j := 0, len(txs)-1; i < j; i, j = i+1, j-1 {
		txs[i], txs[j] = txs[j], txs[i]
	}
	if len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, skipped
}
