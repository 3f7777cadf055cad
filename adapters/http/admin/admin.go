// Package admin provides HTTP handlers for the admin dashboard.
package admin

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aveeno350-ctrl/hook-script-studio/adapters/auth"
	"github.com/aveeno350-ctrl/hook-script-studio/domain/metric"
)

// MetricsReader is the slice of app.MetricsService the dashboard needs.
type MetricsReader interface {
	Authorize(credential string) bool
	Read(ctx context.Context) ([]metric.Counter, error)
}

// Handler provides admin endpoints.
type Handler struct {
	metrics      MetricsReader
	sessions     *auth.SessionService // nil when no admin key is configured
	secureCookie bool
	logger       zerolog.Logger
}

// Deps contains dependencies for the admin handler.
type Deps struct {
	Metrics      MetricsReader
	Sessions     *auth.SessionService
	SecureCookie bool
	Logger       zerolog.Logger
}

// NewHandler creates a new admin handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		metrics:      deps.Metrics,
		sessions:     deps.Sessions,
		secureCookie: deps.SecureCookie,
		logger:       deps.Logger,
	}
}

// Router returns the admin router, mounted at /admin.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	// Public endpoints (no session required)
	r.Get("/login", h.Login)
	r.Post("/logout", h.Logout)

	// Protected endpoints (require session)
	r.Group(func(r chi.Router) {
		r.Use(h.AuthMiddleware)
		r.Get("/", h.Dashboard)
	})

	return r
}

// Login compares ?key= with the admin key and starts a session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")

	if h.sessions == nil || !h.metrics.Authorize(key) {
		h.logger.Warn().Str("remote_addr", r.RemoteAddr).Msg("admin login rejected")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	token, _, err := h.sessions.Issue()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to issue admin session")
		writeError(w, http.StatusInternalServerError, "session failed")
		return
	}

	auth.SetCookie(w, token, h.sessions.TTL(), h.secureCookie)
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// Logout clears the session cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearCookie(w, h.secureCookie)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// AuthMiddleware requires a valid admin session cookie.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.sessions == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if _, err := h.sessions.FromRequest(r); err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Dashboard returns the enumerated counters.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	data, err := h.metrics.Read(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("dashboard read failed")
		writeError(w, http.StatusInternalServerError, "metrics read failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": data})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
