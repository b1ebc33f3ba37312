package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gatehouse.io/internal/auth"
	"gatehouse.io/internal/idp"
	"gatehouse.io/internal/obs"
)

// ReadyProbe reports service readiness (DB ping when a pool is attached).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the identity services.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	service   *auth.Service
	catalog   *auth.Catalog
	directory *auth.Directory
	tokens    *auth.TokenService

	google      *idp.Google
	frontendURL string

	rateBurst     int
	ratePerSecond int
	maxBodyBytes  int64
}

// Option configures API.
type Option func(*API)

// WithVersion sets the version reported by /healthz and /v1/info.
func WithVersion(v string) Option {
	return func(a *API) { a.version = v }
}

// WithGoogle enables the Google sign-in endpoints.
func WithGoogle(g *idp.Google) Option {
	return func(a *API) { a.google = g }
}

// WithFrontendURL sets the redirect target for the OAuth callback.
func WithFrontendURL(u string) Option {
	return func(a *API) { a.frontendURL = strings.TrimRight(u, "/") }
}

// WithRateLimit enables per-IP token-bucket limiting on the whole surface.
func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		a.rateBurst = burst
		a.ratePerSecond = perSecond
	}
}

// New wires the route table. All /v1 routes except the auth entry points
// demand a bearer token; write routes additionally demand permissions.
func New(rp ReadyProbe, svc *auth.Service, catalog *auth.Catalog, directory *auth.Directory, tokens *auth.TokenService, opts ...Option) (*API, error) {
	if svc == nil || catalog == nil || directory == nil || tokens == nil {
		return nil, errors.New("httpapi: all identity services are required")
	}
	a := &API{
		mux:          http.NewServeMux(),
		readyProbe:   rp,
		version:      "dev",
		service:      svc,
		catalog:      catalog,
		directory:    directory,
		tokens:       tokens,
		maxBodyBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth flows
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.protected(auth.RequireRefreshToken(), a.handleRefresh))
	a.mux.HandleFunc("/v1/auth/logout", a.protected(auth.RequireAuthenticated(), a.handleLogout))
	a.mux.HandleFunc("/v1/auth/recover", a.handleRecover)
	a.mux.HandleFunc("/v1/auth/reset", a.handleReset)
	a.mux.HandleFunc("/v1/auth/me", a.protected(auth.RequireAuthenticated(), a.handleMe))
	if a.google != nil {
		a.mux.HandleFunc("/v1/auth/google", a.handleGoogleRedirect)
		a.mux.HandleFunc("/v1/auth/google/callback", a.handleGoogleCallback)
	}

	// directory
	a.mux.HandleFunc("/v1/users", a.protected(auth.RequirePermissions(auth.PermViewUsers), a.handleUsers))
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)

	// role and permission catalog
	a.mux.HandleFunc("/v1/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleResource)
	a.mux.HandleFunc("/v1/permissions", a.handlePermissions)
	a.mux.HandleFunc("/v1/permissions/", a.handlePermissionResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a, nil
}

// Handler returns the full middleware chain around the route table.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.maxBodyBytes)
	if a.rateBurst > 0 && a.ratePerSecond > 0 {
		h = RateLimit(h, a.rateBurst, a.ratePerSecond)
	}
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "gatehouse-api",
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
		"name":    "gatehouse-api",
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

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("value must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("value is out of range")
	}
	return val, nil
}

func parseListWindow(r *http.Request) (limit, offset int, err error) {
	limit, err = parsePositiveInt(r.URL.Query().Get("limit"), 50, 1, 500)
	if err != nil {
		return 0, 0, errors.New("limit must be an integer between 1 and 500")
	}
	offset, err = parsePositiveInt(r.URL.Query().Get("offset"), 0, 0, 1<<30)
	if err != nil {
		return 0, 0, errors.New("offset must be a non-negative integer")
	}
	return limit, offset, nil
}
