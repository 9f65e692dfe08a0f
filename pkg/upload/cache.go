// Package upload moves recorded transactions to the remote store
// without ever blocking the scan path.
//
// A bounded queue feeds the uploader goroutine; anything that cannot
// be delivered lands in the failed-upload cache file, which a
// background drainer retries on a slow schedule. Local day files are
// always written first, so losing connectivity never loses data.
package upload

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/maxpark/accessd/internal/atomicfile"
	"github.com/maxpark/accessd/internal/logger"
	"github.com/maxpark/accessd/pkg/txlog"
)

// CacheFileName is the failed-upload cache under the base directory.
const CacheFileName = "failed_transactions_cache.jsonl"

// Cache is the durable JSONL file of transactions that could not be
// uploaded. Appends go straight to disk; rewrites (after a drain
// pass) replace the whole file atomically.
type Cache struct {
	mu   sync.Mutex
	path string
}

// NewCache creates a cache backed by path.
func NewCache(path string) *Cache {
	return &Cache{path: path}
}

// Append adds one transaction to the cache.
func (c *Cache) Append(tx txlog.Transaction) error {
	line, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append to cache: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync cache: %w", err)
	}
	return nil
}

// Load returns all cached transactions in file order. Unparseable
// lines are skipped with a warning.
func (c *Cache) Load() ([]txlog.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked()
}

func (c *Cache) loadLocked() ([]txlog.Transaction, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache: %w", err)
	}

	var out []txlog.Transaction
	skipped := 0
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var tx txlog.Transaction
		if err := json.Unmarshal(line, &tx); err != nil {
			skipped++
			continue
		}
		out = append(out, tx)
	}
	if skipped > 0 {
		logger.Warn("skipped unparseable cache lines",
			logger.KeyFile, c.path, logger.KeyCount, skipped)
	}
	return out, nil
}

// Rewrite replaces the cache with remaining, removing the file when
// nothing remains.
func (c *Cache) Rewrite(remaining []txlog.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rewriteLocked(remaining)
}

func (c *Cache) rewriteLocked(remaining []txlog.Transaction) error {
	if len(remaining) == 0 {
		if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove drained cache: %w", err)
		}
		return nil
	}

	var buf bytes.Buffer
	for _, tx := range remaining {
		line, err := json.Marshal(tx)
		if err != nil {
			return fmt.Errorf("marshal transaction: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return atomicfile.WriteFile(c.path, buf.Bytes(), 0o644)
}

// CommitDrain concludes a drain pass that loaded the first loaded
// entries of the file: they are replaced by remaining, while anything
// the uploader appended since the load is kept untouched at the tail.
func (c *Cache) CommitDrain(loaded int, remaining []txlog.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.loadLocked()
	if err != nil {
		return fmt.Errorf("reload cache: %w", err)
	}
	if len(current) > loaded {
		remaining = append(remaining, current[loaded:]...)
	}
	return c.rewriteLocked(remaining)
}

// Len returns the number of cached transactions.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	txs, err := c.loadLocked()
	if err != nil {
		return 0
	}
	return len(txs)
}

// Exists reports whether the cache file is present on disk.
func (c *Cache) Exists() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := os.Stat(c.path)
	return err == nil
}
