// Package config loads the bootstrap configuration: everything the
// daemon needs before it can open the base directory, from an optional
// YAML file plus ACCESSD_* environment variables.
//
// Runtime-tunable settings (scan delay, frame widths, entry/exit
// tracking) live in pkg/runtimeconf instead; this package only
// provides their initial defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/maxpark/accessd/internal/bytesize"
	"github.com/maxpark/accessd/pkg/runtimeconf"
)

// Config is the full bootstrap configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Server  ServerConfig  `mapstructure:"server"  yaml:"server"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Admin   AdminConfig   `mapstructure:"admin"   yaml:"admin"`
	GPIO    GPIOConfig    `mapstructure:"gpio"    yaml:"gpio"`
	Remote  RemoteConfig  `mapstructure:"remote"  yaml:"remote"`
	Runtime RuntimeConfig `mapstructure:"runtime" yaml:"runtime"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR" yaml:"level"`

	// Format is text or json.
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json" yaml:"format"`

	// Output is stdout, stderr, or a file path (the access log).
	Output string `mapstructure:"output" yaml:"output"`
}

// StorageConfig locates the base directory and bounds the transaction
// log.
type StorageConfig struct {
	// BaseDir holds every durable file: users, blocklist, runtime
	// config, transactions, caches.
	BaseDir string `mapstructure:"base_dir" validate:"required" yaml:"base_dir"`

	// Cap is the storage budget for the transactions directory.
	// Accepts human-readable sizes ("16GB").
	Cap bytesize.ByteSize `mapstructure:"cap" yaml:"cap"`

	// CleanupFraction of the log to evict when over the cap.
	CleanupFraction float64 `mapstructure:"cleanup_fraction" validate:"gt=0,lte=1" yaml:"cleanup_fraction"`

	// CheckInterval between storage size checks.
	CheckInterval time.Duration `mapstructure:"check_interval" yaml:"check_interval"`
}

// ServerConfig configures the control-plane HTTP server.
type ServerConfig struct {
	Host         string        `mapstructure:"host" yaml:"host"`
	Port         int           `mapstructure:"port" validate:"min=1,max=65535" yaml:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// AdminConfig holds the bootstrap admin credentials. The password is
// provided as a digest, never in the clear; `accessd hash-password`
// generates one.
type AdminConfig struct {
	Username       string        `mapstructure:"username" validate:"required" yaml:"username"`
	PasswordDigest string        `mapstructure:"password_digest" validate:"required" yaml:"password_digest"`
	SessionTTL     time.Duration `mapstructure:"session_ttl" yaml:"session_ttl"`

	// APIKey enables the legacy shared-secret header check on
	// mutating routes when RequireAPIKey is set.
	APIKey        string `mapstructure:"api_key" yaml:"api_key"`
	RequireAPIKey bool   `mapstructure:"require_api_key" yaml:"require_api_key"`
}

// ReaderPinConfig names the two data lines of one Wiegand reader.
type ReaderPinConfig struct {
	D0 string `mapstructure:"d0" validate:"required" yaml:"d0"`
	D1 string `mapstructure:"d1" validate:"required" yaml:"d1"`
}

// GPIOConfig wires the hardware.
type GPIOConfig struct {
	// Enabled controls whether real GPIO is used. Disable for
	// development hosts; relays become no-ops and no decoders start.
	// Pointer distinguishes "not set" (default true) from "false".
	Enabled *bool `mapstructure:"enabled" yaml:"enabled"`

	// Relays lists the relay output pins; relay numbers are 1-based.
	Relays []string `mapstructure:"relays" validate:"min=1,dive,required" yaml:"relays"`

	// Readers lists the wired readers; reader N actuates relay N.
	Readers []ReaderPinConfig `mapstructure:"readers" validate:"min=1,dive" yaml:"readers"`

	// ActiveLow relay wiring (energize by driving low). Pointer
	// because the default is true.
	ActiveLow *bool `mapstructure:"active_low" yaml:"active_low"`

	// PulseDuration for access-granted pulses.
	PulseDuration time.Duration `mapstructure:"pulse_duration" yaml:"pulse_duration"`
}

// IsEnabled returns whether GPIO is enabled, defaulting to true.
func (c *GPIOConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// IsActiveLow returns the relay polarity, defaulting to active-low.
func (c *GPIOConfig) IsActiveLow() bool {
	if c.ActiveLow == nil {
		return true
	}
	return *c.ActiveLow
}

// RemoteConfig points at the Supabase project transactions are
// uploaded to. Leaving URL empty disables uploads entirely; the
// daemon still records locally.
type RemoteConfig struct {
	URL         string `mapstructure:"url" validate:"omitempty,url" yaml:"url"`
	Key         string `mapstructure:"key" yaml:"key"`
	Table       string `mapstructure:"table" yaml:"table"`
	ProbeTarget string `mapstructure:"probe_target" yaml:"probe_target"`
}

// RuntimeConfig seeds config.json on first boot. After that the file
// is authoritative and these values are ignored.
type RuntimeConfig struct {
	EntityID         string `mapstructure:"entity_id" yaml:"entity_id"`
	DefaultBits      int    `mapstructure:"default_bits" validate:"omitempty,oneof=26 34" yaml:"default_bits"`
	WiegandTimeoutMS int    `mapstructure:"wiegand_timeout_ms" yaml:"wiegand_timeout_ms"`
	ScanDelaySeconds int    `mapstructure:"scan_delay_seconds" yaml:"scan_delay_seconds"`
	EntryExitEnabled bool   `mapstructure:"entry_exit_enabled" yaml:"entry_exit_enabled"`
	EntryExitMinGapS int    `mapstructure:"entry_exit_min_gap_seconds" yaml:"entry_exit_min_gap_seconds"`
	BasicAuthEnabled bool   `mapstructure:"basic_auth_enabled" yaml:"basic_auth_enabled"`
}

// RuntimeDefaults builds the initial runtime configuration for the
// configured reader set.
func (c *Config) RuntimeDefaults() runtimeconf.Config {
	bits := make(map[string]int, len(c.GPIO.Readers))
	for i := range c.GPIO.Readers {
		bits[fmt.Sprintf("reader_%d", i+1)] = c.Runtime.DefaultBits
	}
	return runtimeconf.Config{
		EntityID:         c.Runtime.EntityID,
		WiegandBits:      bits,
		WiegandTimeoutMS: c.Runtime.WiegandTimeoutMS,
		ScanDelaySeconds: c.Runtime.ScanDelaySeconds,
		EntryExit: runtimeconf.EntryExitConfig{
			Enabled:       c.Runtime.EntryExitEnabled,
			MinGapSeconds: c.Runtime.EntryExitMinGapS,
		},
		BasicAuthEnabled: c.Runtime.BasicAuthEnabled,
	}
}

// Load reads the configuration from an optional YAML file plus the
// environment. path may be empty, in which case only the default
// search locations and environment are used.
//
// Precedence, highest first: environment, config file, defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix("ACCESSD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %q: %w", path, err)
		}
	} else {
		v.SetConfigName("accessd")
		v.AddConfigPath("/etc/accessd")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "accessd"))
		}
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
			// No file is fine: defaults + environment.
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindEnvKeys registers every overridable key with viper. AutomaticEnv
// alone only covers keys already present in the file, so keys that may
// be set purely from the environment need an explicit bind.
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"logging.level", "logging.format", "logging.output",
		"storage.base_dir", "storage.cap", "storage.cleanup_fraction", "storage.check_interval",
		"server.host", "server.port", "server.read_timeout", "server.write_timeout", "server.idle_timeout",
		"metrics.enabled", "metrics.port",
		"admin.username", "admin.password_digest", "admin.session_ttl",
		"admin.api_key", "admin.require_api_key",
		"gpio.enabled", "gpio.active_low", "gpio.pulse_duration",
		"remote.url", "remote.key", "remote.table", "remote.probe_target",
		"runtime.entity_id", "runtime.default_bits", "runtime.wiegand_timeout_ms",
		"runtime.scan_delay_seconds", "runtime.entry_exit_enabled",
		"runtime.entry_exit_min_gap_seconds", "runtime.basic_auth_enabled",
	}
	for _, key := range keys {
		// Only fails for an empty key list.
		_ = v.BindEnv(key)
	}
}

// configDecodeHooks combines the decoders for custom config types:
// human-readable byte sizes and durations.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}
