package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aveeno350-ctrl/hook-script-studio/adapters/metrics"
	"github.com/aveeno350-ctrl/hook-script-studio/app"
	"github.com/aveeno350-ctrl/hook-script-studio/domain/gate"
	"github.com/aveeno350-ctrl/hook-script-studio/domain/prompt"
	"github.com/aveeno350-ctrl/hook-script-studio/domain/token"
)

// maxGenerateBody caps the JSON body of a generation request.
const maxGenerateBody = 64 << 10

// RemainingHeader reports free runs left after the response.
const RemainingHeader = "X-Free-Runs-Remaining"

// GenerateHandler serves POST /api/generate.
type GenerateHandler struct {
	service      *app.GenerateService
	metrics      *metrics.Collector // optional
	secureCookie bool
	logger       zerolog.Logger
}

// NewGenerateHandler creates a generation handler.
func NewGenerateHandler(service *app.GenerateService, m *metrics.Collector, secureCookie bool, logger zerolog.Logger) *GenerateHandler {
	return &GenerateHandler{
		service:      service,
		metrics:      m,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

// GenerateResponse is the success body.
type GenerateResponse struct {
	Content string `json:"content"`
}

func (h *GenerateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var params prompt.Params
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxGenerateBody)).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var current string
	if c, err := r.Cookie(token.CookieName); err == nil {
		current = c.Value
	}

	result := h.service.Generate(r.Context(), app.GenerateRequest{
		Params: params,
		Token:  current,
	})
	h.observe(result)

	switch result.Decision.Reason {
	case gate.ReasonTooSoon:
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(result.Decision.RetryAfter)))
	}
	if result.Outcome != app.OutcomeMisconfigured {
		w.Header().Set(RemainingHeader, strconv.FormatInt(result.Decision.Remaining, 10))
	}

	if result.Status != http.StatusOK {
		writeError(w, result.Status, result.Error)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     token.CookieName,
		Value:    result.Token,
		Path:     "/",
		MaxAge:   token.MaxAgeSeconds,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, GenerateResponse{Content: result.Content})
}

func (h *GenerateHandler) observe(result app.GenerateResult) {
	if h.metrics == nil {
		return
	}
	h.metrics.Generations.WithLabelValues(string(result.Outcome)).Inc()
	if result.Decision.Reason != gate.ReasonNone {
		h.metrics.GateRejections.WithLabelValues(string(result.Decision.Reason)).Inc()
	}
	switch result.Outcome {
	case app.OutcomeSuccess:
		h.metrics.ProviderDuration.WithLabelValues("ok").Observe(result.ProviderDuration.Seconds())
	case app.OutcomeProviderError:
		h.metrics.ProviderDuration.WithLabelValues("error").Observe(result.ProviderDuration.Seconds())
	}
}

// retryAfterSeconds rounds up, never below one second.
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
