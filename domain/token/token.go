// Package token encodes and verifies the anonymous usage record carried in
// the caller's cookie. All functions are pure.
//
// Wire format: base64url(payload) "." base64url(HMAC-SHA256(secret, payload)),
// both segments unpadded, where payload is the JSON object {"runs":N,"ts":MS}.
package token

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// CookieName is the cookie that carries the encoded usage record.
const CookieName = "hss_token"

// MaxAgeSeconds is the cookie lifetime (one year).
const MaxAgeSeconds = 60 * 60 * 24 * 365

const delimiter = "."

// ErrEmptySecret is returned when encoding without a signing secret.
var ErrEmptySecret = errors.New("token: empty secret")

// ErrNegative is returned when encoding a record with negative fields.
var ErrNegative = errors.New("token: negative field")

var b64 = base64.RawURLEncoding

// Usage is one anonymous caller's free-tier consumption (value type).
type Usage struct {
	Runs         int64 `json:"runs"`
	LastAccessMs int64 `json:"ts"`
}

// Encode serializes and signs u.
func Encode(u Usage, secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	if u.Runs < 0 || u.LastAccessMs < 0 {
		return "", ErrNegative
	}

	payload, err := json.Marshal(u)
	if err != nil {
		return "", err
	}

	return b64.EncodeToString(payload) + delimiter + b64.EncodeToString(sign(payload, secret)), nil
}

// Decode verifies s and returns the record it carries.
// ok is false for anything that was not produced by Encode with the same
// secret; callers treat that as a caller with no prior usage.
func Decode(s, secret string) (u Usage, ok bool) {
	if secret == "" || s == "" {
		return Usage{}, false
	}

	parts := strings.Split(s, delimiter)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Usage{}, false
	}

	payload, err := b64.DecodeString(parts[0])
	if err != nil {
		return Usage{}, false
	}
	sig, err := b64.DecodeString(parts[1])
	if err != nil {
		return Usage{}, false
	}

	if !hmac.Equal(sig, sign(payload, secret)) {
		return Usage{}, false
	}

	return parsePayload(payload)
}

// Verify reports whether s is a well-formed token signed with secret.
func Verify(s, secret string) bool {
	_, ok := Decode(s, secret)
	return ok
}

func sign(payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}

// parsePayload accepts only a JSON object whose runs and ts fields are
// present, integral and non-negative.
func parsePayload(payload []byte) (Usage, bool) {
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return Usage{}, false
	}

	runs, ok := intField(raw, "runs")
	if !ok {
		return Usage{}, false
	}
	ts, ok := intField(raw, "ts")
	if !ok {
		return Usage{}, false
	}

	return Usage{Runs: runs, LastAccessMs: ts}, true
}

func intField(raw map[string]json.RawMessage, name string) (int64, bool) {
	v, present := raw[name]
	if !present {
		return 0, false
	}

	// json.Number would also accept a quoted number.
	if t := bytes.TrimSpace(v); len(t) == 0 || t[0] == '"' {
		return 0, false
	}

	var num json.Number
	dec := json.NewDecoder(bytes.NewReader(v))
	dec.UseNumber()
	if err := dec.Decode(&num); err != nil {
		return 0, false
	}

	if n, err := strconv.ParseInt(num.String(), 10, 64); err == nil {
		return n, n >= 0
	}

	// Integral floats such as 3.0 or 1e3, limited to the exactly
	// representable range.
	f, err := num.Float64()
	if err != nil || f != math.Trunc(f) || f < 0 || f >= 1<<53 {
		return 0, false
	}
	return int64(f), true
}
