// Package metric maps analytics events onto counter keys.
// All functions are pure - no side effects.
package metric

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Counter key layout.
const (
	EventPrefix = "evt:"
	AllEvents   = "evt:_all"

	TotalRuns         = "runs"
	TotalContentBytes = "content_bytes"
	TotalMs           = "ms_total"
)

// Well-known event names emitted by the server and the web client.
const (
	EventGenerateClicked = "generate_clicked"
	EventGenerateSuccess = "generate_success"
	EventGenerateError   = "generate_error"
	EventPaywallOpen     = "paywall_open"
	EventCooldownHit     = "cooldown_hit"
	EventPDFDownloaded   = "pdf_downloaded"
	EventCopyButtonUsed  = "copy_button_used"
)

// MaxNameLength bounds event names and dimension values accepted from clients.
const MaxNameLength = 64

// Event is a single analytics event (immutable value type).
type Event struct {
	Name  string
	Props map[string]any
}

// Increment is one counter change derived from an event.
type Increment struct {
	Key string
	By  int64
}

// Counter is a named counter value read back from the store.
type Counter struct {
	Key   string `json:"key"`
	Value int64  `json:"value"`
}

// DefaultDashboardKeys is the enumerated counter set shown to admins.
func DefaultDashboardKeys() []string {
	return []string{
		AllEvents,
		EventKey(EventGenerateClicked),
		EventKey(EventGenerateSuccess),
		EventKey(EventGenerateError),
		EventKey(EventPaywallOpen),
		EventKey(EventPDFDownloaded),
		EventKey(EventCopyButtonUsed),
	}
}

// EventKey returns the counter key for an event name.
func EventKey(name string) string {
	return EventPrefix + name
}

// PlatformKey returns the per-platform counter key for an event.
func PlatformKey(name, platform string) string {
	return EventPrefix + name + ":platform:" + platform
}

// Increments derives the counter changes for e, in application order:
// the event counter, the global counter, the optional platform dimension,
// then numeric running totals.
func Increments(e Event) []Increment {
	incs := []Increment{
		{Key: EventKey(e.Name), By: 1},
		{Key: AllEvents, By: 1},
	}

	if p, ok := e.Props["platform"].(string); ok {
		if p = strings.TrimSpace(p); ValidDimension(p) {
			incs = append(incs, Increment{Key: PlatformKey(e.Name, p), By: 1})
		}
	}

	aggregates := []struct {
		prop string
		key  string
	}{
		{"runs", TotalRuns},
		{"content_bytes", TotalContentBytes},
		{"ms", TotalMs},
	}
	for _, a := range aggregates {
		v, present := e.Props[a.prop]
		if !present {
			continue
		}
		if n, ok := ToInt(v); ok {
			incs = append(incs, Increment{Key: a.key, By: n})
		}
	}

	return incs
}

// ValidName reports whether name is acceptable as an event name.
func ValidName(name string) bool {
	if name == "" || len(name) > MaxNameLength {
		return false
	}
	for _, r := range name {
		if r <= ' ' || r == 0x7f {
			return false
		}
	}
	return true
}

// ValidDimension reports whether v is acceptable as a dimension value
// such as a platform. Unlike event names it may contain inner spaces.
func ValidDimension(v string) bool {
	if v == "" || len(v) > MaxNameLength || !utf8.ValidString(v) {
		return false
	}
	for _, r := range v {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// ToInt coerces a loosely typed property to an integer.
// Numbers are rounded; strings are parsed with a leading-integer rule
// ("12ms" is 12).
func ToInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return roundFloat(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return roundFloat(f)
	case string:
		return leadingInt(n)
	default:
		return 0, false
	}
}

func roundFloat(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt64/2 {
		return 0, false
	}
	// Halves round toward positive infinity, as browser clients do.
	return int64(math.Floor(f + 0.5)), true
}

func leadingInt(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Sorted converts a key/value map into counters ordered by key.
func Sorted(values map[string]int64) []Counter {
	out := make([]Counter, 0, len(values))
	for k, v := range values {
		out = append(out, Counter{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
