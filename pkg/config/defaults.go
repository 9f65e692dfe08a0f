package config

import (
	"strings"
	"time"

	"github.com/maxpark/accessd/internal/bytesize"
)

// Default values for the access controller. The pin assignments match
// the standard three-door carrier board.
const (
	DefaultBaseDir         = "/var/lib/accessd"
	DefaultStorageCap      = 16 * bytesize.GB
	DefaultCleanupFraction = 0.5
	DefaultCheckInterval   = 5 * time.Minute

	DefaultServerPort   = 5001
	DefaultReadTimeout  = 15 * time.Second
	DefaultWriteTimeout = 30 * time.Second
	DefaultIdleTimeout  = 60 * time.Second

	DefaultMetricsPort = 9090

	DefaultSessionTTL = 24 * time.Hour

	DefaultPulseDuration = time.Second

	DefaultRemoteTable = "transactions"
	DefaultProbeTarget = "8.8.8.8:53"

	DefaultWiegandBits      = 26
	DefaultWiegandTimeoutMS = 25
	DefaultScanDelaySeconds = 60
	DefaultEntryExitMinGapS = 5
)

// ApplyDefaults fills in zero values after loading. Explicit values
// are preserved.
func (c *Config) ApplyDefaults() {
	applyLoggingDefaults(&c.Logging)
	applyStorageDefaults(&c.Storage)
	applyServerDefaults(&c.Server)
	applyMetricsDefaults(&c.Metrics)
	applyAdminDefaults(&c.Admin)
	applyGPIODefaults(&c.GPIO)
	applyRemoteDefaults(&c.Remote)
	applyRuntimeDefaults(&c.Runtime)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.BaseDir == "" {
		cfg.BaseDir = DefaultBaseDir
	}
	if cfg.Cap == 0 {
		cfg.Cap = DefaultStorageCap
	}
	if cfg.CleanupFraction == 0 {
		cfg.CleanupFraction = DefaultCleanupFraction
	}
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultServerPort
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}

func applyAdminDefaults(cfg *AdminConfig) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
}

func applyGPIODefaults(cfg *GPIOConfig) {
	if len(cfg.Relays) == 0 {
		cfg.Relays = []string{"GPIO25", "GPIO26", "GPIO27"}
	}
	if len(cfg.Readers) == 0 {
		cfg.Readers = []ReaderPinConfig{
			{D0: "GPIO18", D1: "GPIO23"},
			{D0: "GPIO19", D1: "GPIO24"},
			{D0: "GPIO20", D1: "GPIO21"},
		}
	}
	if cfg.PulseDuration == 0 {
		cfg.PulseDuration = DefaultPulseDuration
	}
}

func applyRemoteDefaults(cfg *RemoteConfig) {
	if cfg.Table == "" {
		cfg.Table = DefaultRemoteTable
	}
	if cfg.ProbeTarget == "" {
		cfg.ProbeTarget = DefaultProbeTarget
	}
}

func applyRuntimeDefaults(cfg *RuntimeConfig) {
	if cfg.DefaultBits == 0 {
		cfg.DefaultBits = DefaultWiegandBits
	}
	if cfg.WiegandTimeoutMS == 0 {
		cfg.WiegandTimeoutMS = DefaultWiegandTimeoutMS
	}
	if cfg.ScanDelaySeconds == 0 {
		cfg.ScanDelaySeconds = DefaultScanDelaySeconds
	}
	if cfg.EntryExitMinGapS == 0 {
		cfg.EntryExitMinGapS = DefaultEntryExitMinGapS
	}
}
