// Package auth provides stateless admin sessions using JWT.
// No server-side session table: any instance holding the admin key can
// validate a cookie issued by any other.
package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/aveeno350-ctrl/hook-script-studio/ports"
)

// Cookie attributes for the admin session.
const (
	CookieName   = "hss_admin"
	CookiePath   = "/admin"
	DefaultTTL   = 8 * time.Hour
	Issuer       = "hookstudio"
	adminSubject = "admin"
	keyInfo      = "hookstudio admin session v1"
)

var (
	// ErrNoAdminKey is returned when sessions are requested without an admin key.
	ErrNoAdminKey = errors.New("admin key not configured")

	// ErrInvalidSession covers every way a session cookie can fail validation.
	ErrInvalidSession = errors.New("invalid admin session")
)

// Claims represents the JWT claims for an admin session.
type Claims struct {
	jwt.RegisteredClaims
}

// SessionService issues and validates admin session tokens.
// Thread-safe and suitable for concurrent use.
type SessionService struct {
	key   []byte
	ttl   time.Duration
	clock ports.Clock
}

// NewSessionService derives the signing key from adminKey with HKDF-SHA256.
func NewSessionService(adminKey string, ttl time.Duration, clk ports.Clock) (*SessionService, error) {
	if adminKey == "" {
		return nil, ErrNoAdminKey
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(adminKey), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}

	return &SessionService{key: key, ttl: ttl, clock: clk}, nil
}

// TTL returns the session lifetime.
func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// Issue creates a signed session token.
func (s *SessionService) Issue() (string, time.Time, error) {
	now := s.clock.Now().UTC()
	expiresAt := now.Add(s.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    Issuer,
			Subject:   adminSubject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate checks signature, issuer, subject and expiry.
func (s *SessionService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithSubject(adminSubject),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidSession
	}
	return claims, nil
}

// FromRequest validates the session cookie on r.
func (s *SessionService) FromRequest(r *http.Request) (*Claims, error) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return nil, ErrInvalidSession
	}
	return s.Validate(c.Value)
}

// SetCookie writes the session cookie.
func SetCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     CookiePath,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     CookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
