// Package httpapi is the HTTP surface of the service: route wiring,
// middleware chain and the JSON helpers shared by all handlers.
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

	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/audit"
	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/auth"
	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/obs"
)

// ReadyProbe reports backend readiness for /readyz.
type ReadyProbe struct {
	DB   *sql.DB
	Ping func(ctx context.Context) error
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Ping != nil {
		return rp.Ping(ctx)
	}
	return nil
}

// API is the HTTP layer. Authorization decisions are delegated to the
// gate per handler; there is no blanket authn middleware because the
// tier and capability requirements differ per route.
type API struct {
	mux     *http.ServeMux
	svc     *auth.Service
	gate    *auth.Gate
	stream  *audit.Stream
	ready   ReadyProbe
	version string
}

// New wires all routes. stream may be nil to disable the SSE feed.
func New(svc *auth.Service, gate *auth.Gate, stream *audit.Stream, ready ReadyProbe, version string) *API {
	a := &API{
		mux:     http.NewServeMux(),
		svc:     svc,
		gate:    gate,
		stream:  stream,
		ready:   ready,
		version: version,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// Credential-bearing endpoints sit behind a per-IP token bucket.
	a.mux.Handle("/v1/auth/register", RateLimit(http.HandlerFunc(a.handleRegister), 5, 1))
	a.mux.Handle("/v1/auth/login", RateLimit(http.HandlerFunc(a.handleGatewayLogin), 10, 5))
	a.mux.Handle("/v1/auth/operator/login", RateLimit(http.HandlerFunc(a.handleOperatorLogin), 10, 5))
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/logout-all", a.handleLogoutAll)
	a.mux.HandleFunc("/v1/auth/password", a.handleChangeSecret)

	// venue-scoped resources
	a.mux.HandleFunc("/v1/venues/", a.handleVenueScoped)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the mux wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- health handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "e7gezly-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "e7gezly-api",
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
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit out of range")
	}
	return val, nil
}

// handleAuthError maps the error taxonomy onto status codes.
// Authentication failures stay generic so the body never reveals which
// part of a credential was wrong; authorization failures are specific.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenRevoked):
		writeError(w, r, http.StatusUnauthorized, "invalid or expired token")
	case errors.Is(err, auth.ErrInvalidRefreshToken):
		writeError(w, r, http.StatusUnauthorized, "invalid refresh token")
	case errors.Is(err, auth.ErrAccountLocked):
		writeError(w, r, http.StatusForbidden, "account temporarily locked")
	case errors.Is(err, auth.ErrWrongTokenType),
		errors.Is(err, auth.ErrInsufficientPermissions),
		errors.Is(err, auth.ErrTenantMismatch),
		errors.Is(err, auth.ErrSelfMutation),
		errors.Is(err, auth.ErrFounderProtected):
		writeError(w, r, http.StatusForbidden, strings.TrimPrefix(err.Error(), "auth: "))
	case errors.Is(err, auth.ErrRevocationCheck):
		writeError(w, r, http.StatusServiceUnavailable, "authorization temporarily unavailable")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, strings.TrimPrefix(err.Error(), "auth: "))
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, "already exists")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
