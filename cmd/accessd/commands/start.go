package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/maxpark/accessd/internal/logger"
	"github.com/maxpark/accessd/pkg/access"
	"github.com/maxpark/accessd/pkg/api"
	"github.com/maxpark/accessd/pkg/board"
	"github.com/maxpark/accessd/pkg/config"
	"github.com/maxpark/accessd/pkg/identity"
	"github.com/maxpark/accessd/pkg/metrics"
	"github.com/maxpark/accessd/pkg/relay"
	"github.com/maxpark/accessd/pkg/remote"
	"github.com/maxpark/accessd/pkg/runtimeconf"
	"github.com/maxpark/accessd/pkg/session"
	"github.com/maxpark/accessd/pkg/system"
	"github.com/maxpark/accessd/pkg/txlog"
	"github.com/maxpark/accessd/pkg/upload"
	"github.com/maxpark/accessd/pkg/wiegand"
)

var pidFile string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the access controller",
	Long: `Start the access controller in the foreground.

Readers and relays are driven from the GPIO header unless gpio.enabled
is false, in which case the daemon runs with simulated pins (useful on
development hosts).

Examples:
  # Start with the default config location
  accessd start

  # Start with a custom config file
  accessd start --config /etc/accessd/accessd.yaml

  # Environment overrides
  ACCESSD_LOGGING_LEVEL=DEBUG accessd start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("accessd starting", "version", Version)
	logger.Info("configuration loaded",
		"base_dir", cfg.Storage.BaseDir, "gpio", cfg.GPIO.IsEnabled())

	if err := os.MkdirAll(cfg.Storage.BaseDir, 0o755); err != nil {
		return fmt.Errorf("create base directory: %w", err)
	}

	// Metrics are optional; all recorders are nil-safe.
	var am *metrics.AccessMetrics
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		am = metrics.NewAccessMetrics()
		metricsServer = metrics.NewServer(cfg.Metrics.Port)
		logger.Info("metrics enabled", "port", cfg.Metrics.Port)
	}

	// Durable state under the base directory.
	users, err := identity.Open(cfg.Storage.BaseDir)
	if err != nil {
		return fmt.Errorf("open identity store: %w", err)
	}
	creds, err := session.LoadCredentials(cfg.Storage.BaseDir,
		cfg.Admin.Username, cfg.Admin.PasswordDigest, cfg.Admin.APIKey)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	runtime, err := runtimeconf.Load(
		filepath.Join(cfg.Storage.BaseDir, "config.json"), cfg.RuntimeDefaults())
	if err != nil {
		return fmt.Errorf("load runtime config: %w", err)
	}
	txLog, err := txlog.Open(filepath.Join(cfg.Storage.BaseDir, "transactions"))
	if err != nil {
		return fmt.Errorf("open transaction log: %w", err)
	}
	stats := txlog.OpenStats(filepath.Join(cfg.Storage.BaseDir, "daily_stats.json"))
	ring := txlog.NewRing(txlog.DefaultRingCapacity)
	cache := upload.NewCache(filepath.Join(cfg.Storage.BaseDir, upload.CacheFileName))
	am.SetCachePending(cache.Len())

	sessions := session.NewStore(cfg.Admin.SessionTTL)
	probe := system.NewProbe(cfg.Remote.ProbeTarget)

	// Hardware. With GPIO disabled everything runs against no-op pins.
	gpioEnabled := cfg.GPIO.IsEnabled()
	if gpioEnabled {
		if err := board.Init(); err != nil {
			return fmt.Errorf("initialize gpio: %w", err)
		}
	}

	relayPins := make([]board.OutPin, len(cfg.GPIO.Relays))
	for i, name := range cfg.GPIO.Relays {
		if gpioEnabled {
			pin, err := board.OutputPin(name)
			if err != nil {
				return fmt.Errorf("open relay pin %s: %w", name, err)
			}
			relayPins[i] = pin
		} else {
			relayPins[i] = board.NoopPin{PinName: name}
		}
	}
	driver, err := relay.NewDriver(relay.Config{
		Pins:          relayPins,
		ActiveLow:     cfg.GPIO.IsActiveLow(),
		PulseDuration: cfg.GPIO.PulseDuration,
		OnOperate:     am.RecordRelayOp,
	})
	if err != nil {
		return fmt.Errorf("initialize relays: %w", err)
	}

	// Upload pipeline. Without a configured remote everything lands in
	// the local cache and stays there.
	var rmt upload.Remote
	if cfg.Remote.URL != "" {
		client, err := remote.NewClient(cfg.Remote.URL, cfg.Remote.Key, cfg.Remote.Table)
		if err != nil {
			return fmt.Errorf("create remote client: %w", err)
		}
		rmt = client
		logger.Info("remote uploads enabled", "table", cfg.Remote.Table)
	} else {
		logger.Warn("no remote configured, transactions stay local")
	}
	entityID := func() string { return runtime.Get().EntityID }
	uploader := upload.NewUploader(rmt, cache, probe, entityID, am)
	drainer := upload.NewDrainer(upload.DrainerConfig{}, rmt, cache, probe, entityID, am)

	// Access policy pipeline.
	rc := runtime.Get()
	limiter := access.NewScanLimiter(time.Duration(rc.ScanDelaySeconds) * time.Second)
	tracker := access.NewEntryExitTracker(rc.EntryExit.Enabled,
		time.Duration(rc.EntryExit.MinGapSeconds)*time.Second)
	fanout := &access.Fanout{Log: txLog, Stats: stats, Ring: ring, Uploader: uploader}
	engine := access.NewEngine(users, driver, fanout, limiter, tracker, am)

	openPin := board.InputPin
	if !gpioEnabled {
		openPin = func(name string) (board.EdgePin, error) {
			return board.NoopPin{PinName: name}, nil
		}
	}
	readerPins := make([]wiegand.ReaderPins, len(cfg.GPIO.Readers))
	for i, r := range cfg.GPIO.Readers {
		readerPins[i] = wiegand.ReaderPins{D0: r.D0, D1: r.D1}
	}
	manager, err := wiegand.NewManager(wiegand.ManagerConfig{
		Readers: readerPins,
		OpenPin: openPin,
		Handler: engine.HandleScan,
		Invalid: am.RecordInvalidFrame,
	})
	if err != nil {
		return fmt.Errorf("initialize readers: %w", err)
	}
	if err := manager.Start(rc); err != nil {
		return fmt.Errorf("start readers: %w", err)
	}
	runtime.SetRestartHook(manager.Restart)

	// Non-restart settings apply immediately after API config updates.
	applyRuntime := func(rc runtimeconf.Config) {
		limiter.SetDelay(time.Duration(rc.ScanDelaySeconds) * time.Second)
		tracker.Configure(rc.EntryExit.Enabled,
			time.Duration(rc.EntryExit.MinGapSeconds)*time.Second)
	}

	monitor := txlog.NewMonitor(txLog, txlog.MonitorConfig{
		Cap:      cfg.Storage.Cap.Int64(),
		Fraction: cfg.Storage.CleanupFraction,
		Interval: cfg.Storage.CheckInterval,
	})

	apiServer := api.NewServer(api.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, api.NewRouter(api.Deps{
		Users:           users,
		Sessions:        sessions,
		Creds:           creds,
		Runtime:         runtime,
		Relays:          driver,
		Log:             txLog,
		Stats:           stats,
		Ring:            ring,
		Cache:           cache,
		Probe:           probe,
		Readers:         manager.ReaderCount,
		OnConfigApplied: applyRuntime,
		RequireAPIKey:   cfg.Admin.RequireAPIKey,
		GPIOEnabled:     gpioEnabled,
		RemoteEnabled:   rmt != nil,
		Version:         Version,
		Started:         time.Now(),
	}))

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
			return fmt.Errorf("write pid file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	// Background loops.
	go uploader.Run(ctx)
	go drainer.Run(ctx)
	go monitor.Run(ctx)
	go sessions.Run(ctx, 5*time.Minute)
	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				logger.Error("metrics server error", logger.Err(err))
			}
		}()
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- apiServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("accessd running",
		"port", cfg.Server.Port, "readers", manager.ReaderCount())

	var runErr error
	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received")
		cancel()
		runErr = <-serverDone
	case runErr = <-serverDone:
		signal.Stop(sigChan)
		cancel()
	}

	manager.Stop()

	releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer releaseCancel()
	driver.ReleaseAll(releaseCtx)

	if runErr != nil {
		logger.Error("server error", logger.Err(runErr))
		return runErr
	}
	logger.Info("accessd stopped")
	return nil
}
