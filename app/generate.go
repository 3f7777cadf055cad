// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aveeno350-ctrl/hook-script-studio/domain/gate"
	"github.com/aveeno350-ctrl/hook-script-studio/domain/metric"
	"github.com/aveeno350-ctrl/hook-script-studio/domain/prompt"
	"github.com/aveeno350-ctrl/hook-script-studio/domain/token"
	"github.com/aveeno350-ctrl/hook-script-studio/ports"
)

// Generation defaults.
const (
	DefaultMaxTokens       = 800
	DefaultTemperature     = 0.8
	DefaultProviderTimeout = 30 * time.Second
)

// ErrMisconfigured is returned when the token secret is missing.
var ErrMisconfigured = errors.New("server misconfigured")

// errEmptyContent marks a provider reply that carried no text.
var errEmptyContent = errors.New("provider returned empty content")

// User-facing messages for non-gate failures.
const (
	MsgMisconfigured    = "Server misconfigured."
	MsgGenerationFailed = "Generation failed. Please try again."
)

// Outcome classifies a generation attempt for metrics and logs.
type Outcome string

// Generation outcomes.
const (
	OutcomeSuccess       Outcome = "success"
	OutcomeRejected      Outcome = "rejected"
	OutcomeProviderError Outcome = "provider_error"
	OutcomeMisconfigured Outcome = "misconfigured"
)

// GenerateService runs the free-tier gate around the text provider.
type GenerateService struct {
	generator ports.Generator
	clock     ports.Clock
	events    ports.EventRecorder
	logger    zerolog.Logger

	secret      string
	timeout     time.Duration
	maxTokens   int
	temperature float64
}

// GenerateDeps contains dependencies for GenerateService.
type GenerateDeps struct {
	Generator ports.Generator
	Clock     ports.Clock
	Events    ports.EventRecorder // optional
	Logger    zerolog.Logger
}

// GenerateConfig contains configuration for GenerateService.
type GenerateConfig struct {
	Secret      string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

// NewGenerateService creates a new generation service.
func NewGenerateService(deps GenerateDeps, cfg GenerateConfig) *GenerateService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultProviderTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}

	return &GenerateService{
		generator:   deps.Generator,
		clock:       deps.Clock,
		events:      deps.Events,
		logger:      deps.Logger,
		secret:      cfg.Secret,
		timeout:     cfg.Timeout,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

// GenerateRequest is one generation attempt.
type GenerateRequest struct {
	Params prompt.Params
	Token  string // current cookie value, possibly empty
}

// GenerateResult represents the outcome of a generation attempt.
type GenerateResult struct {
	Status   int
	Content  string
	Token    string // set only when the caller's usage advanced
	Error    string // user-facing message when Status != 200
	Decision gate.Decision
	Outcome  Outcome

	ProviderDuration time.Duration
	Err              error // internal cause, never shown to callers
}

// Generate decodes the caller's token, applies the gate, and calls the
// provider. The token is only re-issued after a successful generation.
func (s *GenerateService) Generate(ctx context.Context, req GenerateRequest) GenerateResult {
	if s.secret == "" {
		s.logger.Error().Msg("token secret is not configured")
		return GenerateResult{
			Status:  500,
			Error:   MsgMisconfigured,
			Outcome: OutcomeMisconfigured,
			Err:     ErrMisconfigured,
		}
	}

	nowMs := s.clock.Now().UnixMilli()

	var prev *token.Usage
	if u, ok := token.Decode(req.Token, s.secret); ok {
		prev = &u
	}

	params := prompt.ApplyDefaults(prompt.Normalize(req.Params))

	decision := gate.Evaluate(prev, nowMs)
	if !decision.Allowed {
		s.recordRejection(decision.Reason, params.Platform)
		return GenerateResult{
			Status:   decision.Reason.Status(),
			Error:    decision.Reason.Message(),
			Decision: decision,
			Outcome:  OutcomeRejected,
		}
	}

	msgs := prompt.Build(params)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.generator.Generate(callCtx, ports.GenerationRequest{
		System:      msgs.System,
		User:        msgs.User,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	})
	elapsed := time.Since(start)

	if err == nil && strings.TrimSpace(resp.Content) == "" {
		err = errEmptyContent
	}
	if err != nil {
		evt := s.logger.Error().Err(err).Dur("elapsed", elapsed)
		var pe *ports.ProviderError
		if errors.As(err, &pe) {
			evt = evt.Int("provider_status", pe.StatusCode)
		}
		evt.Msg("generation failed")

		s.record(metric.EventGenerateError, map[string]any{
			"platform": params.Platform,
			"ms":       elapsed.Milliseconds(),
		})
		return GenerateResult{
			Status:           500,
			Error:            MsgGenerationFailed,
			Decision:         decision,
			Outcome:          OutcomeProviderError,
			ProviderDuration: elapsed,
			Err:              err,
		}
	}

	next := gate.Advance(prev, nowMs)
	encoded, err := token.Encode(next, s.secret)
	if err != nil {
		// Unreachable with a non-empty secret.
		return GenerateResult{Status: 500, Error: MsgMisconfigured, Outcome: OutcomeMisconfigured, Err: err}
	}

	s.record(metric.EventGenerateSuccess, map[string]any{
		"platform":      params.Platform,
		"ms":            elapsed.Milliseconds(),
		"content_bytes": len(resp.Content),
		"runs":          1,
	})

	decision.Remaining--
	return GenerateResult{
		Status:           200,
		Content:          resp.Content,
		Token:            encoded,
		Decision:         decision,
		Outcome:          OutcomeSuccess,
		ProviderDuration: elapsed,
	}
}

func (s *GenerateService) recordRejection(reason gate.Reason, platform string) {
	name := metric.EventPaywallOpen
	if reason == gate.ReasonTooSoon {
		name = metric.EventCooldownHit
	}
	s.record(name, map[string]any{"platform": platform})
}

func (s *GenerateService) record(name string, props map[string]any) {
	if s.events == nil {
		return
	}
	s.events.Record(metric.Event{Name: name, Props: props})
}
