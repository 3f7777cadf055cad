package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aveeno350-ctrl/hook-script-studio/app"
	"github.com/aveeno350-ctrl/hook-script-studio/domain/metric"
)

// maxEventBody caps the JSON body of an analytics event.
const maxEventBody = 16 << 10

// MetricsHandler serves the analytics write and read endpoints.
type MetricsHandler struct {
	service *app.MetricsService
	logger  zerolog.Logger
}

// NewMetricsHandler creates a metrics handler.
func NewMetricsHandler(service *app.MetricsService, logger zerolog.Logger) *MetricsHandler {
	return &MetricsHandler{service: service, logger: logger}
}

// Write records one event. The body is {"event": name, ...props}.
func (h *MetricsHandler) Write(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "Invalid request body"})
		return
	}

	name, _ := body["event"].(string)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "Missing event"})
		return
	}
	delete(body, "event")

	err := h.service.RecordEvent(r.Context(), metric.Event{Name: name, Props: body})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case errors.Is(err, app.ErrInvalidEvent):
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "Invalid event"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false})
	}
}

// Increment is the legacy GET /api/metrics?e=name counter bump.
func (h *MetricsHandler) Increment(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("e")
	if key == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false})
		return
	}

	err := h.service.Increment(r.Context(), key)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case errors.Is(err, app.ErrInvalidEvent):
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false})
	}
}

// Read returns the dashboard counters for ?key=<admin key>.
func (h *MetricsHandler) Read(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	data, err := h.service.Snapshot(r.Context(), r.URL.Query().Get("key"))
	switch {
	case errors.Is(err, app.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case err != nil:
		h.logger.Error().Err(err).Msg("metrics read failed")
		writeError(w, http.StatusInternalServerError, "metrics read failed")
	default:
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": data})
	}
}
