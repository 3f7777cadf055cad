// Package gate decides whether an anonymous generation request may proceed.
// All functions are deterministic - same input always produces same output.
package gate

import (
	"time"

	"github.com/aveeno350-ctrl/hook-script-studio/domain/token"
)

const (
	// MaxFreeRuns is the number of generations a caller gets before paying.
	MaxFreeRuns = 3

	// Cooldown is the minimum gap between two accepted requests.
	Cooldown = 3000 * time.Millisecond
)

// Reason explains a rejection.
type Reason string

// Rejection reasons.
const (
	ReasonNone           Reason = ""
	ReasonTooSoon        Reason = "too_soon"
	ReasonQuotaExhausted Reason = "quota_exhausted"
)

// Decision is the outcome of Evaluate (value type).
type Decision struct {
	Allowed    bool
	Reason     Reason
	Remaining  int64         // Free runs left before this request
	RetryAfter time.Duration // Remaining cooldown when Reason is ReasonTooSoon
}

// Evaluate checks a caller's usage record against the cooldown window and
// the free-run quota. A nil record is a fresh caller.
// This is a PURE function - it never mutates u.
func Evaluate(u *token.Usage, nowMs int64) Decision {
	var cur token.Usage
	if u != nil {
		cur = *u
	}

	remaining := int64(MaxFreeRuns) - cur.Runs
	if remaining < 0 {
		remaining = 0
	}

	cooldownMs := Cooldown.Milliseconds()
	if elapsed := nowMs - cur.LastAccessMs; elapsed < cooldownMs {
		return Decision{
			Reason:     ReasonTooSoon,
			Remaining:  remaining,
			RetryAfter: time.Duration(cooldownMs-elapsed) * time.Millisecond,
		}
	}

	if cur.Runs >= MaxFreeRuns {
		return Decision{
			Reason:    ReasonQuotaExhausted,
			Remaining: 0,
		}
	}

	return Decision{
		Allowed:   true,
		Remaining: remaining,
	}
}

// Advance returns the record after one successful generation at nowMs.
// Callers invoke it only after the generation succeeded, so failed attempts
// never consume a run.
func Advance(u *token.Usage, nowMs int64) token.Usage {
	var cur token.Usage
	if u != nil {
		cur = *u
	}
	return token.Usage{
		Runs:         cur.Runs + 1,
		LastAccessMs: nowMs,
	}
}

// Status maps a rejection reason to its HTTP status code.
func (r Reason) Status() int {
	switch r {
	case ReasonTooSoon:
		return 429
	case ReasonQuotaExhausted:
		return 402
	default:
		return 200
	}
}

// Message returns the user-facing text for a rejection.
func (r Reason) Message() string {
	switch r {
	case ReasonTooSoon:
		return "Please wait a moment before generating again."
	case ReasonQuotaExhausted:
		return "Free limit reached. Please upgrade to continue."
	default:
		return ""
	}
}
