package runtimeconf

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDefaults() Config {
	return Config{
		EntityID:         "site-1",
		WiegandBits:      map[string]int{"reader_1": 26, "reader_2": 26},
		WiegandTimeoutMS: 25,
		ScanDelaySeconds: 60,
		EntryExit:        EntryExitConfig{Enabled: false, MinGapSeconds: 5},
	}
}

func loadTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	s, err := Load(path, testDefaults())
	require.NoError(t, err)
	return s, path
}

func TestLoadCreatesFileFromDefaults(t *testing.T) {
	s, path := loadTestStore(t)

	assert.FileExists(t, path)
	assert.Equal(t, testDefaults(), s.Get())
}

func TestLoadExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"entity_id": "warehouse",
		"wiegand_bits": {"reader_1": 34},
		"wiegand_timeout_ms": 50,
		"scan_delay_seconds": 10,
		"entry_exit_tracking": {"enabled": true, "min_gap_seconds": 30}
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	s, err := Load(path, testDefaults())
	require.NoError(t, err)

	cfg := s.Get()
	assert.Equal(t, "warehouse", cfg.EntityID)
	assert.Equal(t, 34, cfg.WiegandBits["reader_1"])
	assert.True(t, cfg.EntryExit.Enabled)
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{bad json"), 0o644))

	_, err := Load(path, testDefaults())
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"entity_id":"x","wiegand_bits":{"reader_1":27},"wiegand_timeout_ms":25,"scan_delay_seconds":60,"entry_exit_tracking":{"min_gap_seconds":5}}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	_, err := Load(path, testDefaults())
	assert.Error(t, err)
}

func TestGetReturnsSnapshot(t *testing.T) {
	s, _ := loadTestStore(t)

	cfg := s.Get()
	cfg.WiegandBits["reader_1"] = 34

	assert.Equal(t, 26, s.Get().WiegandBits["reader_1"])
}

func TestUpdateValidation(t *testing.T) {
	s, _ := loadTestStore(t)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty entity id", func(c *Config) { c.EntityID = "" }},
		{"bad bit width", func(c *Config) { c.WiegandBits["reader_1"] = 32 }},
		{"timeout too low", func(c *Config) { c.WiegandTimeoutMS = 5 }},
		{"timeout too high", func(c *Config) { c.WiegandTimeoutMS = 500 }},
		{"scan delay zero", func(c *Config) { c.ScanDelaySeconds = 0 }},
		{"scan delay too high", func(c *Config) { c.ScanDelaySeconds = 3600 }},
		{"min gap too high", func(c *Config) { c.EntryExit.MinGapSeconds = 301 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := s.Get()
			tt.mutate(&next)
			_, err := s.Update(next)
			assert.Error(t, err)
		})
	}

	// Rejected updates must not change the stored config.
	assert.Equal(t, testDefaults(), s.Get())
}

func TestUpdatePersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	s, err := Load(path, testDefaults())
	require.NoError(t, err)

	next := s.Get()
	next.ScanDelaySeconds = 120
	_, err = s.Update(next)
	require.NoError(t, err)

	s2, err := Load(path, testDefaults())
	require.NoError(t, err)
	assert.Equal(t, 120, s2.Get().ScanDelaySeconds)
}

func TestUpdateTriggersRestartOnDecoderChange(t *testing.T) {
	s, _ := loadTestStore(t)

	restarts := 0
	s.SetRestartHook(func(cfg Config) error {
		restarts++
		assert.Equal(t, 34, cfg.WiegandBits["reader_1"])
		return nil
	})

	next := s.Get()
	next.WiegandBits["reader_1"] = 34
	restartErr, err := s.Update(next)
	require.NoError(t, err)
	assert.NoError(t, restartErr)
	assert.Equal(t, 1, restarts)
}

func TestUpdateSkipsRestartForNonDecoderChange(t *testing.T) {
	s, _ := loadTestStore(t)

	restarts := 0
	s.SetRestartHook(func(Config) error { restarts++; return nil })

	next := s.Get()
	next.ScanDelaySeconds = 30
	next.BasicAuthEnabled = true
	_, err := s.Update(next)
	require.NoError(t, err)
	assert.Equal(t, 0, restarts)
}

func TestUpdateSurfacesRestartFailureAsWarning(t *testing.T) {
	s, _ := loadTestStore(t)

	bang := errors.New("gpio busy")
	s.SetRestartHook(func(Config) error { return bang })

	next := s.Get()
	next.WiegandTimeoutMS = 50
	restartErr, err := s.Update(next)
	require.NoError(t, err)
	assert.ErrorIs(t, restartErr, bang)

	// The config change sticks even when the restart failed.
	assert.Equal(t, 50, s.Get().WiegandTimeoutMS)
}

func TestConcurrentUpdatesSerializeRestarts(t *testing.T) {
	s, _ := loadTestStore(t)

	var active, maxActive int32
	s.SetRestartHook(func(Config) error {
		n := atomic.AddInt32(&active, 1)
		for {
			prev := atomic.LoadInt32(&maxActive)
			if n <= prev || atomic.CompareAndSwapInt32(&maxActive, prev, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		timeout := 30 + i*10
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := s.Get()
			next.WiegandTimeoutMS = timeout
			_, err := s.Update(next)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive),
		"restarts must never overlap")
}
