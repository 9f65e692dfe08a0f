package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxpark/accessd/internal/bytesize"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accessd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `
admin:
  username: admin
  password_digest: "0000000000000000000000000000000000000000000000000000000000000000"
`

func TestLoadMinimalAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseDir, cfg.Storage.BaseDir)
	assert.Equal(t, 16*bytesize.GB, cfg.Storage.Cap)
	assert.Equal(t, 0.5, cfg.Storage.CleanupFraction)
	assert.Equal(t, 5*time.Minute, cfg.Storage.CheckInterval)

	assert.Equal(t, 5001, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)

	assert.Equal(t, 24*time.Hour, cfg.Admin.SessionTTL)

	assert.True(t, cfg.GPIO.IsEnabled())
	assert.True(t, cfg.GPIO.IsActiveLow())
	assert.Equal(t, []string{"GPIO25", "GPIO26", "GPIO27"}, cfg.GPIO.Relays)
	require.Len(t, cfg.GPIO.Readers, 3)
	assert.Equal(t, "GPIO18", cfg.GPIO.Readers[0].D0)
	assert.Equal(t, "GPIO23", cfg.GPIO.Readers[0].D1)
	assert.Equal(t, time.Second, cfg.GPIO.PulseDuration)

	assert.Equal(t, "transactions", cfg.Remote.Table)
	assert.Equal(t, "8.8.8.8:53", cfg.Remote.ProbeTarget)
}

func TestLoadParsesDurationsAndSizes(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
storage:
  cap: 2GB
  check_interval: 90s
server:
  read_timeout: 5s
gpio:
  pulse_duration: 750ms
`))
	require.NoError(t, err)

	assert.Equal(t, 2*bytesize.GB, cfg.Storage.Cap)
	assert.Equal(t, 90*time.Second, cfg.Storage.CheckInterval)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 750*time.Millisecond, cfg.GPIO.PulseDuration)
}

func TestLoadMissingAdminCredentials(t *testing.T) {
	_, err := Load(writeConfig(t, `
server:
  port: 5001
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin.username")
}

func TestLoadRejectsBadPort(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
server:
  port: 70000
`))
	require.Error(t, err)
}

func TestLoadRejectsMoreReadersThanRelays(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
gpio:
  relays: [GPIO25]
  readers:
    - {d0: GPIO18, d1: GPIO23}
    - {d0: GPIO19, d1: GPIO24}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relays")
}

func TestLoadRejectsRemoteURLWithoutKey(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
remote:
  url: https://example.supabase.co
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote.key")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ACCESSD_SERVER_PORT", "6001")
	t.Setenv("ACCESSD_LOGGING_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 6001, cfg.Server.Port)
	assert.Equal(t, "DEBUG", cfg.Logging.Level, "level normalized to upper case")
}

func TestExplicitGPIODisable(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
gpio:
  enabled: false
  active_low: false
`))
	require.NoError(t, err)

	assert.False(t, cfg.GPIO.IsEnabled())
	assert.False(t, cfg.GPIO.IsActiveLow())
}

func TestRuntimeDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
runtime:
  entity_id: site-42
  default_bits: 34
  scan_delay_seconds: 30
`))
	require.NoError(t, err)

	rc := cfg.RuntimeDefaults()
	assert.Equal(t, "site-42", rc.EntityID)
	assert.Equal(t, 30, rc.ScanDelaySeconds)
	assert.Equal(t, 25, rc.WiegandTimeoutMS)
	require.Len(t, rc.WiegandBits, 3)
	assert.Equal(t, 34, rc.WiegandBits["reader_1"])
	assert.Equal(t, 34, rc.WiegandBits["reader_3"])
	assert.Equal(t, 5, rc.EntryExit.MinGapSeconds)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
