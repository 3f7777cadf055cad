package token_test

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"math"
	"strings"
	"testing"

	"github.com/aveeno350-ctrl/hook-script-studio/domain/token"
)

const secret = "s3cret-signing-key"

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []token.Usage{
		{Runs: 0, LastAccessMs: 0},
		{Runs: 1, LastAccessMs: 1705320000000},
		{Runs: 3, LastAccessMs: 1},
		{Runs: 1 << 40, LastAccessMs: 1 << 50},
		{Runs: 1<<53 + 1, LastAccessMs: 1<<53 + 1},
		{Runs: math.MaxInt64 / 2, LastAccessMs: math.MaxInt64},
		{Runs: math.MaxInt64, LastAccessMs: 0},
	}

	for _, u := range tests {
		s, err := token.Encode(u, secret)
		if err != nil {
			t.Fatalf("Encode(%+v) failed: %v", u, err)
		}
		got, ok := token.Decode(s, secret)
		if !ok {
			t.Fatalf("Decode(%q) failed", s)
		}
		if got != u {
			t.Errorf("round trip = %+v, want %+v", got, u)
		}
	}
}

func TestEncode_CookieSafe(t *testing.T) {
	s, err := token.Encode(token.Usage{Runs: 2, LastAccessMs: 1705320000000}, secret)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if strings.ContainsAny(s, "=+/;, ") {
		t.Errorf("token %q contains cookie-unsafe characters", s)
	}
	if strings.Count(s, ".") != 1 {
		t.Errorf("token %q should have exactly one delimiter", s)
	}
}

func TestEncode_Errors(t *testing.T) {
	if _, err := token.Encode(token.Usage{}, ""); err != token.ErrEmptySecret {
		t.Errorf("err = %v, want ErrEmptySecret", err)
	}
	if _, err := token.Encode(token.Usage{Runs: -1}, secret); err != token.ErrNegative {
		t.Errorf("err = %v, want ErrNegative", err)
	}
}

func TestDecode_WrongSecret(t *testing.T) {
	s, _ := token.Encode(token.Usage{Runs: 1, LastAccessMs: 10}, secret)
	if _, ok := token.Decode(s, "other-secret"); ok {
		t.Error("expected decode with wrong secret to fail")
	}
	if _, ok := token.Decode(s, ""); ok {
		t.Error("expected decode with empty secret to fail")
	}
}

func TestDecode_Malformed(t *testing.T) {
	valid, _ := token.Encode(token.Usage{Runs: 1, LastAccessMs: 10}, secret)
	parts := strings.Split(valid, ".")

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no delimiter", "abcdef"},
		{"empty payload", "." + parts[1]},
		{"empty signature", parts[0] + "."},
		{"extra segment", valid + ".xyz"},
		{"bad base64 payload", "!!!." + parts[1]},
		{"bad base64 signature", parts[0] + ".!!!"},
		{"swapped segments", parts[1] + "." + parts[0]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := token.Decode(tt.input, secret); ok {
				t.Errorf("Decode(%q) succeeded, want failure", tt.input)
			}
		})
	}
}

func TestDecode_TamperedPayload(t *testing.T) {
	s, _ := token.Encode(token.Usage{Runs: 3, LastAccessMs: 1000}, secret)
	parts := strings.Split(s, ".")

	forged := base64.RawURLEncoding.EncodeToString([]byte(`{"runs":0,"ts":1000}`))
	if _, ok := token.Decode(forged+"."+parts[1], secret); ok {
		t.Error("expected forged payload to fail verification")
	}

	// Flip each bit of the raw payload in turn.
	payload, _ := base64.RawURLEncoding.DecodeString(parts[0])
	for i := range payload {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), payload...)
			mutated[i] ^= 1 << bit
			candidate := base64.RawURLEncoding.EncodeToString(mutated) + "." + parts[1]
			if _, ok := token.Decode(candidate, secret); ok {
				t.Fatalf("bit flip at byte %d bit %d was accepted", i, bit)
			}
		}
	}
}

func TestDecode_RandomStrings(t *testing.T) {
	for i := 0; i < 500; i++ {
		a := make([]byte, 24)
		b := make([]byte, 32)
		rand.Read(a)
		rand.Read(b)
		s := base64.RawURLEncoding.EncodeToString(a) + "." + base64.RawURLEncoding.EncodeToString(b)
		if _, ok := token.Decode(s, secret); ok {
			t.Fatalf("random token %q accepted", s)
		}
	}
}

func TestDecode_InvalidPayloadShape(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `runs=1`},
		{"array", `[1,2]`},
		{"null", `null`},
		{"missing runs", `{"ts":1}`},
		{"missing ts", `{"runs":1}`},
		{"string runs", `{"runs":"1","ts":1}`},
		{"fractional runs", `{"runs":1.5,"ts":1}`},
		{"negative runs", `{"runs":-1,"ts":1}`},
		{"negative ts", `{"runs":1,"ts":-5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := signedRaw(tt.payload)
			if _, ok := token.Decode(s, secret); ok {
				t.Errorf("payload %s accepted", tt.payload)
			}
		})
	}
}

func TestDecode_AcceptsIntegralFloats(t *testing.T) {
	// JavaScript clients serialize whole numbers without a fraction, but a
	// trailing ".0" is still an integer value.
	s := signedRaw(`{"runs":2.0,"ts":1700000000000}`)
	got, ok := token.Decode(s, secret)
	if !ok {
		t.Fatal("expected integral float payload to decode")
	}
	if got.Runs != 2 || got.LastAccessMs != 1700000000000 {
		t.Errorf("got %+v", got)
	}
}

func TestDecode_RejectsInexactNumbers(t *testing.T) {
	tests := []string{
		`{"runs":9223372036854775808,"ts":0}`,
		`{"runs":1e300,"ts":0}`,
		`{"runs":9007199254740993.0,"ts":0}`,
		`{"runs":1.5,"ts":0}`,
		`{"runs":-0.0,"ts":-1}`,
	}
	for _, payload := range tests {
		if got, ok := token.Decode(signedRaw(payload), secret); ok {
			t.Errorf("Decode(%s) = %+v, want rejection", payload, got)
		}
	}
}

func TestVerify(t *testing.T) {
	s, _ := token.Encode(token.Usage{Runs: 1}, secret)
	if !token.Verify(s, secret) {
		t.Error("expected Verify to accept encoded token")
	}
	if token.Verify(s+"x", secret) {
		t.Error("expected Verify to reject modified token")
	}
}

// signedRaw signs an arbitrary payload the same way Encode does.
func signedRaw(payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." +
		base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
