package app

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/aveeno350-ctrl/hook-script-studio/adapters/memory"
	"github.com/aveeno350-ctrl/hook-script-studio/domain/metric"
)

func newMetricsFixture(adminKey string) (*MetricsService, *memory.CounterStore, *[]string) {
	store := memory.NewCounterStore()
	var failedOps []string
	svc := NewMetricsService(MetricsDeps{
		Store:        store,
		Logger:       zerolog.Nop(),
		OnStoreError: func(op string) { failedOps = append(failedOps, op) },
	}, MetricsConfig{AdminKey: adminKey})
	return svc, store, &failedOps
}

func TestSnapshot_Unauthorized(t *testing.T) {
	tests := []struct {
		name       string
		adminKey   string
		credential string
	}{
		{"empty secret and empty credential", "", ""},
		{"empty secret any credential", "", "anything"},
		{"wrong credential", "s3cret", "guess"},
		{"prefix of secret", "s3cret", "s3c"},
		{"empty credential", "s3cret", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newMetricsFixture(tt.adminKey)
			store.Increment(context.Background(), metric.AllEvents, 9)

			data, err := svc.Snapshot(context.Background(), tt.credential)
			if !errors.Is(err, ErrUnauthorized) {
				t.Errorf("err = %v, want ErrUnauthorized", err)
			}
			if data != nil {
				t.Error("unauthorized snapshot must not return data")
			}
		})
	}
}

func TestSnapshot_SortedWithZeros(t *testing.T) {
	svc, store, _ := newMetricsFixture("s3cret")
	ctx := context.Background()

	store.Increment(ctx, metric.AllEvents, 5)
	store.Increment(ctx, metric.EventKey(metric.EventGenerateSuccess), 2)

	data, err := svc.Snapshot(ctx, "s3cret")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	keys := metric.DefaultDashboardKeys()
	if len(data) != len(keys) {
		t.Fatalf("got %d counters, want %d", len(data), len(keys))
	}
	for i := 1; i < len(data); i++ {
		if data[i-1].Key >= data[i].Key {
			t.Errorf("not sorted: %s before %s", data[i-1].Key, data[i].Key)
		}
	}

	got := make(map[string]int64)
	for _, c := range data {
		got[c.Key] = c.Value
	}
	if got[metric.AllEvents] != 5 || got["evt:generate_success"] != 2 || got["evt:paywall_open"] != 0 {
		t.Errorf("values = %v", got)
	}
}

func TestSnapshot_StoreFailure(t *testing.T) {
	svc, store, failed := newMetricsFixture("s3cret")
	boom := errors.New("kv down")
	store.FailWith(boom)

	_, err := svc.Snapshot(context.Background(), "s3cret")
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped store error", err)
	}
	if len(*failed) != 1 || (*failed)[0] != "mget" {
		t.Errorf("store error hook calls = %v", *failed)
	}
}

func TestUpdateDashboardKeys(t *testing.T) {
	svc, _, _ := newMetricsFixture("k")

	svc.UpdateDashboardKeys([]string{"b", "a"})
	data, _ := svc.Snapshot(context.Background(), "k")
	if len(data) != 2 || data[0].Key != "a" || data[1].Key != "b" {
		t.Errorf("snapshot = %v", data)
	}

	svc.UpdateDashboardKeys(nil)
	if got := len(svc.DashboardKeys()); got != len(metric.DefaultDashboardKeys()) {
		t.Errorf("empty update should restore defaults, got %d keys", got)
	}
}

func TestRecordEvent(t *testing.T) {
	svc, store, _ := newMetricsFixture("")
	ctx := context.Background()

	err := svc.RecordEvent(ctx, metric.Event{
		Name: "generate_success",
		Props: map[string]any{
			"platform":      " YouTube Shorts ",
			"ms":            1234.6,
			"content_bytes": "2048",
			"runs":          1,
		},
	})
	if err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}

	want := map[string]int64{
		"evt:generate_success":                         1,
		"evt:_all":                                     1,
		"evt:generate_success:platform:YouTube Shorts": 1,
		"ms_total":                                     1235,
		"content_bytes":                                2048,
		"runs":                                         1,
	}
	snap := store.Snapshot()
	if len(snap) != len(want) {
		t.Errorf("counters = %v", snap)
	}
	for k, v := range want {
		if snap[k] != v {
			t.Errorf("%s = %d, want %d", k, snap[k], v)
		}
	}
}

func TestRecordEvent_InvalidName(t *testing.T) {
	svc, store, _ := newMetricsFixture("")
	for _, name := range []string{"", "has space", string(make([]byte, metric.MaxNameLength+1))} {
		if err := svc.RecordEvent(context.Background(), metric.Event{Name: name}); !errors.Is(err, ErrInvalidEvent) {
			t.Errorf("RecordEvent(%q) err = %v", name, err)
		}
	}
	if len(store.Snapshot()) != 0 {
		t.Error("invalid events must not touch the store")
	}
}

func TestRecordEvent_StoreFailure(t *testing.T) {
	svc, store, failed := newMetricsFixture("")
	store.FailWith(errors.New("down"))

	if err := svc.RecordEvent(context.Background(), metric.Event{Name: "x"}); err == nil {
		t.Fatal("expected error")
	}
	if len(*failed) != 1 {
		t.Errorf("should stop at the first failure, hook calls = %v", *failed)
	}
}

func TestIncrement(t *testing.T) {
	svc, store, _ := newMetricsFixture("")
	ctx := context.Background()

	svc.Increment(ctx, "pricing_view")
	svc.Increment(ctx, "pricing_view")
	if got, _ := store.Get(ctx, "pricing_view"); got != 2 {
		t.Errorf("pricing_view = %d, want 2", got)
	}
	if err := svc.Increment(ctx, ""); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("empty key err = %v", err)
	}
}

func TestPing(t *testing.T) {
	svc, store, _ := newMetricsFixture("")
	if err := svc.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	store.FailWith(errors.New("down"))
	if err := svc.Ping(context.Background()); err == nil {
		t.Error("Ping should surface store failure")
	}
}
