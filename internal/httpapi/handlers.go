package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/cors"

	"akademia.org/internal/auth"
	"akademia.org/internal/obs"
)

// ReadyProbe checks readiness (for example, a DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options carries the collaborators and tuning the API needs.
type Options struct {
	Auth          *auth.Service
	Evaluator     *auth.Evaluator
	Admin         *auth.AdminService
	Ready         ReadyProbe
	Version       string
	CORSOrigins   []string
	RateBurst     int
	RatePerSecond int
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	auth       *auth.Service
	evaluator  *auth.Evaluator
	admin      *auth.AdminService
	readyProbe ReadyProbe
	version    string
	opts       Options
}

func New(opts Options) *API {
	a := &API{
		mux:        http.NewServeMux(),
		auth:       opts.Auth,
		evaluator:  opts.Evaluator,
		admin:      opts.Admin,
		readyProbe: opts.Ready,
		version:    opts.Version,
		opts:       opts,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/logout-all", a.handleLogoutAll)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)

	a.mux.HandleFunc("/v1/admin/users", a.handleUsers)
	a.mux.HandleFunc("/v1/admin/users/", a.handleUserScoped)
	a.mux.HandleFunc("/v1/admin/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/admin/roles/", a.handleRoleScoped)
	a.mux.HandleFunc("/v1/admin/positions", a.handlePositions)
	a.mux.HandleFunc("/v1/admin/positions/", a.handlePositionScoped)
	a.mux.HandleFunc("/v1/admin/assignments/", a.handleAssignmentScoped)
	a.mux.HandleFunc("/v1/admin/maintenance/prune-tokens", a.handlePruneTokens)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	burst, perSecond := a.opts.RateBurst, a.opts.RatePerSecond
	if burst <= 0 {
		burst = 20
	}
	if perSecond <= 0 {
		perSecond = 10
	}

	var handler http.Handler = a.mux
	handler = a.withAuth(handler)
	handler = RateLimit(handler, burst, perSecond)
	handler = MaxBodyBytes(handler, 1<<20)
	// Without configured origins no CORS headers are emitted at all; rs/cors
	// treats an empty allow-list as "*", which must never happen on an
	// authenticated API.
	if len(a.opts.CORSOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: a.opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         600,
		}).Handler(handler)
	}
	handler = SecurityHeaders(handler)
	handler = LoggingJSON(handler)
	handler = RequestID(handler)
	return obs.Instrument(handler)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "akademia-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "akademia-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
