package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/rs/zerolog"

	"github.com/aveeno350-ctrl/hook-script-studio/adapters/memory"
	"github.com/aveeno350-ctrl/hook-script-studio/app"
	"github.com/aveeno350-ctrl/hook-script-studio/domain/metric"
)

const testAdminKey = "admin-test-key"

func setupMetrics(t *testing.T) (http.Handler, *memory.CounterStore) {
	t.Helper()
	store := memory.NewCounterStore()
	svc := app.NewMetricsService(app.MetricsDeps{
		Store:  store,
		Logger: zerolog.Nop(),
	}, app.MetricsConfig{AdminKey: testAdminKey})

	r := NewRouter(zerolog.Nop(), RouterConfig{
		Metrics: NewMetricsHandler(svc, zerolog.Nop()),
	})
	return r, store
}

func decodeMap(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
	return m
}

func TestMetricsWrite(t *testing.T) {
	r, store := setupMetrics(t)

	w := serve(r, http.MethodPost, "/api/metrics/write",
		`{"event":"generate_success","platform":"TikTok","ms":812,"content_bytes":"1500"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if resp := decodeMap(t, w.Body.Bytes()); resp["ok"] != true {
		t.Errorf("response = %v", resp)
	}

	snap := store.Snapshot()
	want := map[string]int64{
		"evt:generate_success":                 1,
		metric.AllEvents:                       1,
		"evt:generate_success:platform:TikTok": 1,
		metric.TotalMs:                         812,
		metric.TotalContentBytes:               1500,
	}
	for k, v := range want {
		if snap[k] != v {
			t.Errorf("%s = %d, want %d", k, snap[k], v)
		}
	}
}

func TestMetricsWrite_BadRequests(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"missing event", `{"platform":"TikTok"}`, "Missing event"},
		{"empty event", `{"event":""}`, "Missing event"},
		{"non-string event", `{"event":7}`, "Missing event"},
		{"invalid json", `{`, "Invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, store := setupMetrics(t)
			w := serve(r, http.MethodPost, "/api/metrics/write", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			resp := decodeMap(t, w.Body.Bytes())
			if resp["ok"] != false || resp["error"] != tt.wantErr {
				t.Errorf("response = %v", resp)
			}
			if len(store.Snapshot()) != 0 {
				t.Error("nothing should be recorded")
			}
		})
	}
}

func TestMetricsWrite_InvalidName(t *testing.T) {
	r, _ := setupMetrics(t)

	long := make([]byte, metric.MaxNameLength+1)
	for i := range long {
		long[i] = 'a'
	}
	w := serve(r, http.MethodPost, "/api/metrics/write", `{"event":"`+string(long)+`"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestMetricsWrite_StoreFailure(t *testing.T) {
	r, store := setupMetrics(t)
	store.FailWith(errors.New("kv down"))

	w := serve(r, http.MethodPost, "/api/metrics/write", `{"event":"pdf_downloaded"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if resp := decodeMap(t, w.Body.Bytes()); resp["ok"] != false {
		t.Errorf("response = %v", resp)
	}
}

func TestMetricsWrite_RateLimited(t *testing.T) {
	store := memory.NewCounterStore()
	svc := app.NewMetricsService(app.MetricsDeps{Store: store, Logger: zerolog.Nop()}, app.MetricsConfig{})
	limiter := NewRateLimiter(1, 2)
	defer limiter.Close()

	r := NewRouter(zerolog.Nop(), RouterConfig{
		Metrics:             NewMetricsHandler(svc, zerolog.Nop()),
		MetricsWriteLimiter: limiter,
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, serve(r, http.MethodPost, "/api/metrics/write", `{"event":"copy_button_used"}`).Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}

	// Reads are not throttled.
	if w := serve(r, http.MethodGet, "/api/metrics?e=evt:x", ""); w.Code != http.StatusOK {
		t.Errorf("legacy increment status = %d", w.Code)
	}
}

func TestMetricsIncrement(t *testing.T) {
	r, store := setupMetrics(t)

	if w := serve(r, http.MethodGet, "/api/metrics?e=evt:generate_clicked", ""); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got, _ := store.Get(context.Background(), "evt:generate_clicked"); got != 1 {
		t.Errorf("counter = %d, want 1", got)
	}

	if w := serve(r, http.MethodGet, "/api/metrics", ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing e status = %d, want 400", w.Code)
	}
}

func TestMetricsRead(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		fail       bool
		wantStatus int
		wantError  string
	}{
		{"authorized", testAdminKey, false, http.StatusOK, ""},
		{"wrong key", "guess", false, http.StatusUnauthorized, "unauthorized"},
		{"no key", "", false, http.StatusUnauthorized, "unauthorized"},
		{"store failure", testAdminKey, true, http.StatusInternalServerError, "metrics read failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, store := setupMetrics(t)
			store.Increment(context.Background(), metric.AllEvents, 5)
			if tt.fail {
				store.FailWith(errors.New("kv down"))
			}

			w := serve(r, http.MethodGet, "/api/metrics/read?key="+tt.key, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if w.Header().Get("Cache-Control") != "no-store" {
				t.Error("read responses must not be cached")
			}

			resp := decodeMap(t, w.Body.Bytes())
			if tt.wantError != "" {
				if resp["error"] != tt.wantError {
					t.Errorf("error = %v, want %q", resp["error"], tt.wantError)
				}
				return
			}

			data, _ := resp["data"].([]any)
			if resp["ok"] != true || len(data) != len(metric.DefaultDashboardKeys()) {
				t.Fatalf("response = %v", resp)
			}
			first, _ := data[0].(map[string]any)
			if first["key"] != metric.AllEvents || first["value"] != float64(5) {
				t.Errorf("first entry = %v", first)
			}
		})
	}
}

func TestMetricsRead_EmptyAdminKeyNeverAuthorizes(t *testing.T) {
	svc := app.NewMetricsService(app.MetricsDeps{
		Store:  memory.NewCounterStore(),
		Logger: zerolog.Nop(),
	}, app.MetricsConfig{AdminKey: ""})
	r := NewRouter(zerolog.Nop(), RouterConfig{Metrics: NewMetricsHandler(svc, zerolog.Nop())})

	if w := serve(r, http.MethodGet, "/api/metrics/read?key=", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
