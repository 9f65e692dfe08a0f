package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/maxpark/accessd/internal/logger"
	"github.com/maxpark/accessd/pkg/api/handlers"
	"github.com/maxpark/accessd/pkg/api/middleware"
	"github.com/maxpark/accessd/pkg/identity"
	"github.com/maxpark/accessd/pkg/runtimeconf"
	"github.com/maxpark/accessd/pkg/session"
	"github.com/maxpark/accessd/pkg/system"
	"github.com/maxpark/accessd/pkg/txlog"
	"github.com/maxpark/accessd/pkg/upload"
)

// Deps carries every dependency the control plane serves from.
type Deps struct {
	Users    *identity.Store
	Sessions *session.Store
	Creds    *session.Credentials
	Runtime  *runtimeconf.Store
	Relays   handlers.RelayController
	Log      *txlog.Log
	Stats    *txlog.Stats
	Ring     *txlog.Ring
	Cache    *upload.Cache
	Probe    *system.Probe

	// Readers reports the number of active Wiegand decoders.
	Readers func() int

	// OnConfigApplied runs after every accepted runtime config update.
	OnConfigApplied func(runtimeconf.Config)

	// RequireAPIKey gates mutating routes behind the X-API-Key header.
	RequireAPIKey bool

	// GPIOEnabled and RemoteEnabled feed the health endpoint.
	GPIOEnabled   bool
	RemoteEnabled bool

	Version string
	Started time.Time
}

// NewRouter builds the chi router with the full middleware stack and
// route table.
//
// Only /login, /health and /status are reachable without a session.
// Mutating routes additionally pass the API key check when one is
// configured.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack, order matters.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	authHandler := handlers.NewAuthHandler(deps.Sessions, deps.Creds)
	userHandler := handlers.NewUserHandler(deps.Users, deps.Creds)
	txHandler := handlers.NewTransactionsHandler(deps.Log, deps.Stats, deps.Ring)
	relayHandler := handlers.NewRelayHandler(deps.Relays)
	configHandler := handlers.NewConfigHandler(deps.Runtime, deps.OnConfigApplied)
	statusHandler := handlers.NewStatusHandler(handlers.StatusDeps{
		Probe:   deps.Probe,
		Relays:  deps.Relays,
		Users:   deps.Users,
		Stats:   deps.Stats,
		Log:     deps.Log,
		Cache:   deps.Cache,
		Runtime: deps.Runtime,
		Readers: deps.Readers,
		Version: deps.Version,
		Started: deps.Started,
		GPIO:    deps.GPIOEnabled,
		Remote:  deps.RemoteEnabled,
	})

	// Unauthenticated.
	r.Post("/login", authHandler.Login)
	r.Get("/health", statusHandler.Health)
	r.Get("/status", statusHandler.Status)

	// Session required.
	basicEnabled := func() bool { return deps.Runtime.Get().BasicAuthEnabled }
	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionAuth(deps.Sessions, deps.Creds, basicEnabled))

		r.Post("/logout", authHandler.Logout)
		r.Get("/get_users", userHandler.List)
		r.Get("/get_transactions", txHandler.List)
		r.Get("/get_today_stats", txHandler.TodayStats)
		r.Get("/get_analytics", txHandler.GetAnalytics)
		r.Get("/get_user_report", txHandler.GetUserReport)
		r.Get("/export_transactions", txHandler.Export)
		r.Get("/get_config", configHandler.Get)
		r.Get("/get_system_time", statusHandler.GetSystemTime)
		r.Get("/relay_states", relayHandler.StatesEndpoint)

		// Mutations, optionally behind the shared API key.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAPIKey(deps.Creds, deps.RequireAPIKey))

			r.Post("/add_user", userHandler.Add)
			r.Post("/delete_user", userHandler.Delete)
			r.Post("/block_user", userHandler.Block)
			r.Post("/unblock_user", userHandler.Unblock)
			r.Post("/toggle_privacy", userHandler.TogglePrivacy)
			r.Post("/relay", relayHandler.Operate)
			r.Post("/update_config", configHandler.Update)
			r.Post("/update_security", authHandler.UpdateSecurity)
			r.Post("/set_system_time", statusHandler.SetSystemTime)
			r.Post("/enable_ntp", statusHandler.EnableNTP)
		})
	})

	return r
}

// requestLogger logs each request start at debug and completion at
// info with the captured status code.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := chimw.GetReqID(r.Context())

		logger.Debug("request started",
			"request_id", requestID,
			logger.KeyMethod, r.Method,
			logger.KeyPath, r.URL.Path,
			logger.KeyClientIP, r.RemoteAddr)

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info("request completed",
			"request_id", requestID,
			logger.KeyMethod, r.Method,
			logger.KeyPath, r.URL.Path,
			logger.KeyCode, ww.Status(),
			logger.KeyDurationMs, time.Since(start).Milliseconds())
	})
}
