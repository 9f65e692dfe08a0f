package txlog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/maxpark/accessd/internal/atomicfile"
	"github.com/maxpark/accessd/internal/logger"
)

// TodayStats is the daily rollup served by the API.
type TodayStats struct {
	Total   int `json:"total"`
	Granted int `json:"granted"`
	Denied  int `json:"denied"`
	Blocked int `json:"blocked"`
}

// statsFile is the on-disk shape of daily_stats.json.
type statsFile struct {
	Date    string `json:"date"` // YYYY-MM-DD, UTC
	Granted int    `json:"granted"`
	Denied  int    `json:"denied"`
	Blocked int    `json:"blocked"`
}

// Stats maintains the daily_stats.json rollup so the dashboard does
// not have to scan the day file on every poll. Counters reset when the
// UTC date rolls over.
type Stats struct {
	mu   sync.Mutex
	path string
	cur  statsFile
}

// OpenStats loads the rollup from path, starting fresh if the file is
// missing or unreadable.
func OpenStats(path string) *Stats {
	s := &Stats{path: path}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, &s.cur); err != nil {
			logger.Warn("daily stats file unreadable, starting fresh",
				logger.KeyFile, path, logger.Err(err))
			s.cur = statsFile{}
		}
	}
	return s
}

// Record counts one decision for the day containing at and persists
// the rollup.
func (s *Stats) Record(status string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := at.UTC().Format("2006-01-02")
	if s.cur.Date != day {
		s.cur = statsFile{Date: day}
	}

	switch status {
	case StatusGranted:
		s.cur.Granted++
	case StatusDenied:
		s.cur.Denied++
	case StatusBlocked:
		s.cur.Blocked++
	default:
		return fmt.Errorf("unknown status %q", status)
	}

	return atomicfile.WriteJSON(s.path, s.cur, 0o644)
}

// Today returns the rollup for the day containing now. A stored date
// from a previous day yields zeros.
func (s *Stats) Today(now time.Time) TodayStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur.Date != now.UTC().Format("2006-01-02") {
		return TodayStats{}
	}
	return TodayStats{
		Total:   s.cur.Granted + s.cur.Denied + s.cur.Blocked,
		Granted: s.cur.Granted,
		Denied:  s.cur.Denied,
		Blocked: s.cur.Blocked,
	}
}
