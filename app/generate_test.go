package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aveeno350-ctrl/hook-script-studio/adapters/clock"
	"github.com/aveeno350-ctrl/hook-script-studio/domain/gate"
	"github.com/aveeno350-ctrl/hook-script-studio/domain/metric"
	"github.com/aveeno350-ctrl/hook-script-studio/domain/prompt"
	"github.com/aveeno350-ctrl/hook-script-studio/domain/token"
	"github.com/aveeno350-ctrl/hook-script-studio/ports"
)

const testSecret = "test-secret"

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

// mockGenerator implements ports.Generator for testing.
type mockGenerator struct {
	mu      sync.Mutex
	content string
	err     error
	block   bool
	calls   int
	last    ports.GenerationRequest
}

func (m *mockGenerator) Generate(ctx context.Context, req ports.GenerationRequest) (ports.GenerationResponse, error) {
	m.mu.Lock()
	m.calls++
	m.last = req
	content, err, block := m.content, m.err, m.block
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return ports.GenerationResponse{}, ctx.Err()
	}
	if err != nil {
		return ports.GenerationResponse{}, err
	}
	return ports.GenerationResponse{Content: content, Model: "mock"}, nil
}

func (m *mockGenerator) set(content string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content, m.err = content, err
}

func (m *mockGenerator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// syncRecorder implements ports.EventRecorder synchronously.
type syncRecorder struct {
	mu     sync.Mutex
	events []metric.Event
}

func (r *syncRecorder) Record(e metric.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *syncRecorder) Close() error { return nil }

func (r *syncRecorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Name
	}
	return out
}

func (r *syncRecorder) last() metric.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type generateFixture struct {
	svc    *GenerateService
	gen    *mockGenerator
	clock  *clock.Fake
	events *syncRecorder
}

func newGenerateFixture(t *testing.T, cfg GenerateConfig) *generateFixture {
	t.Helper()
	f := &generateFixture{
		gen:    &mockGenerator{content: "## Hooks\n- **Stop scrolling**"},
		clock:  clock.NewFake(t0),
		events: &syncRecorder{},
	}
	f.svc = NewGenerateService(GenerateDeps{
		Generator: f.gen,
		Clock:     f.clock,
		Events:    f.events,
		Logger:    zerolog.Nop(),
	}, cfg)
	return f
}

func encodeUsage(t *testing.T, u token.Usage) string {
	t.Helper()
	s, err := token.Encode(u, testSecret)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return s
}

func decodeUsage(t *testing.T, s string) token.Usage {
	t.Helper()
	u, ok := token.Decode(s, testSecret)
	if !ok {
		t.Fatalf("token %q did not decode", s)
	}
	return u
}

var sampleParams = prompt.Params{
	Niche:    "fitness",
	Audience: "busy parents",
	Offer:    "10-minute workouts",
	Tone:     "hype-short",
	Platform: "TikTok",
}

func TestGenerate_Misconfigured(t *testing.T) {
	f := newGenerateFixture(t, GenerateConfig{})

	res := f.svc.Generate(context.Background(), GenerateRequest{Params: sampleParams})

	if res.Status != 500 || !errors.Is(res.Err, ErrMisconfigured) {
		t.Errorf("got status %d err %v, want 500 ErrMisconfigured", res.Status, res.Err)
	}
	if strings.Contains(res.Error, testSecret) {
		t.Error("error message must not leak secrets")
	}
	if f.gen.callCount() != 0 {
		t.Error("provider should not be called when misconfigured")
	}
}

func TestGenerate_FreshCaller(t *testing.T) {
	f := newGenerateFixture(t, GenerateConfig{Secret: testSecret})

	res := f.svc.Generate(context.Background(), GenerateRequest{Params: sampleParams})

	if res.Status != 200 || res.Outcome != OutcomeSuccess {
		t.Fatalf("status = %d outcome = %s err = %v", res.Status, res.Outcome, res.Err)
	}
	if res.Content == "" {
		t.Error("expected content")
	}

	u := decodeUsage(t, res.Token)
	if u.Runs != 1 || u.LastAccessMs != t0.UnixMilli() {
		t.Errorf("token = %+v, want {1, %d}", u, t0.UnixMilli())
	}
	if res.Decision.Remaining != gate.MaxFreeRuns-1 {
		t.Errorf("Remaining = %d, want %d", res.Decision.Remaining, gate.MaxFreeRuns-1)
	}

	e := f.events.last()
	if e.Name != metric.EventGenerateSuccess {
		t.Errorf("event = %s", e.Name)
	}
	if e.Props["platform"] != "TikTok" || e.Props["content_bytes"] != len(res.Content) {
		t.Errorf("event props = %v", e.Props)
	}
}

func TestGenerate_SendsBuiltPrompt(t *testing.T) {
	f := newGenerateFixture(t, GenerateConfig{Secret: testSecret})
	f.svc.Generate(context.Background(), GenerateRequest{Params: sampleParams})

	req := f.gen.last
	if req.MaxTokens != DefaultMaxTokens || req.Temperature != DefaultTemperature {
		t.Errorf("sampling = %d / %v", req.MaxTokens, req.Temperature)
	}
	want := prompt.Build(sampleParams)
	if req.System != want.System || req.User != want.User {
		t.Error("provider request should carry the built prompt")
	}
	if !strings.Contains(req.User, "busy parents") {
		t.Error("user message should embed the audience")
	}
}

func TestGenerate_ThreeRunsThenQuotaExhausted(t *testing.T) {
	f := newGenerateFixture(t, GenerateConfig{Secret: testSecret})
	ctx := context.Background()

	tok := ""
	for i := 1; i <= gate.MaxFreeRuns; i++ {
		res := f.svc.Generate(ctx, GenerateRequest{Params: sampleParams, Token: tok})
		if res.Status != 200 {
			t.Fatalf("run %d: status %d (%s)", i, res.Status, res.Error)
		}
		tok = res.Token
		if got := decodeUsage(t, tok).Runs; got != int64(i) {
			t.Fatalf("run %d: runs = %d", i, got)
		}
		f.clock.Advance(gate.Cooldown + time.Second)
	}

	res := f.svc.Generate(ctx, GenerateRequest{Params: sampleParams, Token: tok})
	if res.Status != 402 || res.Decision.Reason != gate.ReasonQuotaExhausted {
		t.Fatalf("fourth attempt: status %d reason %q", res.Status, res.Decision.Reason)
	}
	if res.Token != "" {
		t.Error("rejection must not issue a token")
	}
	if f.gen.callCount() != gate.MaxFreeRuns {
		t.Errorf("provider calls = %d, want %d", f.gen.callCount(), gate.MaxFreeRuns)
	}
	if f.events.last().Name != metric.EventPaywallOpen {
		t.Errorf("last event = %s, want paywall_open", f.events.last().Name)
	}
}

func TestGenerate_Cooldown(t *testing.T) {
	f := newGenerateFixture(t, GenerateConfig{Secret: testSecret})
	ctx := context.Background()

	first := f.svc.Generate(ctx, GenerateRequest{Params: sampleParams})
	f.clock.Advance(time.Second)

	res := f.svc.Generate(ctx, GenerateRequest{Params: sampleParams, Token: first.Token})
	if res.Status != 429 || res.Decision.Reason != gate.ReasonTooSoon {
		t.Fatalf("status %d reason %q, want 429 too_soon", res.Status, res.Decision.Reason)
	}
	if res.Decision.RetryAfter != 2*time.Second {
		t.Errorf("RetryAfter = %v, want 2s", res.Decision.RetryAfter)
	}
	if res.Error != gate.ReasonTooSoon.Message() {
		t.Errorf("Error = %q", res.Error)
	}
	if f.events.last().Name != metric.EventCooldownHit {
		t.Errorf("last event = %s, want cooldown_hit", f.events.last().Name)
	}
}

func TestGenerate_ProviderFailureKeepsToken(t *testing.T) {
	f := newGenerateFixture(t, GenerateConfig{Secret: testSecret})
	ctx := context.Background()

	prev := token.Usage{Runs: 1, LastAccessMs: t0.UnixMilli()}
	tok := encodeUsage(t, prev)
	f.clock.Advance(5 * time.Second)

	f.gen.set("", &ports.ProviderError{StatusCode: 503, Message: "overloaded"})
	res := f.svc.Generate(ctx, GenerateRequest{Params: sampleParams, Token: tok})

	if res.Status != 500 || res.Outcome != OutcomeProviderError {
		t.Fatalf("status %d outcome %s", res.Status, res.Outcome)
	}
	if res.Token != "" {
		t.Error("failed generation must not issue a token")
	}
	if res.Error != MsgGenerationFailed {
		t.Errorf("Error = %q, want generic failure", res.Error)
	}
	if !errors.Is(res.Err, ports.ErrProviderFailed) {
		t.Errorf("Err = %v", res.Err)
	}
	if f.events.last().Name != metric.EventGenerateError {
		t.Errorf("last event = %s", f.events.last().Name)
	}

	// The caller retries with the unchanged cookie and still has two runs.
	f.gen.set("ok", nil)
	res = f.svc.Generate(ctx, GenerateRequest{Params: sampleParams, Token: tok})
	if res.Status != 200 {
		t.Fatalf("retry status %d", res.Status)
	}
	if got := decodeUsage(t, res.Token).Runs; got != 2 {
		t.Errorf("runs after retry = %d, want 2", got)
	}
}

func TestGenerate_EmptyContentIsFailure(t *testing.T) {
	f := newGenerateFixture(t, GenerateConfig{Secret: testSecret})
	f.gen.set("   \n", nil)

	res := f.svc.Generate(context.Background(), GenerateRequest{Params: sampleParams})
	if res.Status != 500 || res.Token != "" {
		t.Errorf("status %d token %q, want 500 and no token", res.Status, res.Token)
	}
}

func TestGenerate_TimeoutIsFailure(t *testing.T) {
	f := newGenerateFixture(t, GenerateConfig{Secret: testSecret, Timeout: 20 * time.Millisecond})
	f.gen.block = true

	start := time.Now()
	res := f.svc.Generate(context.Background(), GenerateRequest{Params: sampleParams})

	if time.Since(start) > time.Second {
		t.Error("timeout was not applied")
	}
	if res.Status != 500 || res.Outcome != OutcomeProviderError || res.Token != "" {
		t.Errorf("status %d outcome %s token %q", res.Status, res.Outcome, res.Token)
	}
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("Err = %v, want deadline exceeded", res.Err)
	}
}

func TestGenerate_ForgedTokenIsFreshCaller(t *testing.T) {
	f := newGenerateFixture(t, GenerateConfig{Secret: testSecret})

	forged, _ := token.Encode(token.Usage{Runs: 3, LastAccessMs: 0}, "attacker-secret")
	res := f.svc.Generate(context.Background(), GenerateRequest{Params: sampleParams, Token: forged})

	if res.Status != 200 {
		t.Fatalf("status %d", res.Status)
	}
	if got := decodeUsage(t, res.Token).Runs; got != 1 {
		t.Errorf("runs = %d, want 1", got)
	}
}

func TestGenerate_NilRecorder(t *testing.T) {
	svc := NewGenerateService(GenerateDeps{
		Generator: &mockGenerator{content: "x"},
		Clock:     clock.NewFake(t0),
		Logger:    zerolog.Nop(),
	}, GenerateConfig{Secret: testSecret})

	if res := svc.Generate(context.Background(), GenerateRequest{}); res.Status != 200 {
		t.Errorf("status %d", res.Status)
	}
}
