// Package auth issues and validates the HS256 bearer tokens that gate the
// orchestrator's HTTP surface: a tenant API token for external callers and a
// service token the worker pool uses to call back into the orchestrator.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrDisabled       = errors.New("auth disabled")
	ErrInvalidToken   = errors.New("invalid token")
	ErrMissingSubject = errors.New("token missing subject")
)

// Subject identifies who a token speaks for.
type Subject struct {
	TenantID string
	Service  string
}

// Claims is the JWT payload. Service is empty for tenant-issued tokens and
// set to "worker" (or similar) for internal service-to-service tokens.
type Claims struct {
	Service string `json:"svc,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and validates tokens with a single shared secret.
type Service struct {
	secret []byte
	expiry time.Duration
}

// NewService builds a token service. An empty secret disables auth: Generate
// and Validate both return ErrDisabled.
func NewService(secret string, expiry time.Duration) *Service {
	return &Service{secret: []byte(secret), expiry: expiry}
}

// Enabled reports whether a secret is configured.
func (s *Service) Enabled() bool {
	return s != nil && len(s.secret) > 0
}

// Generate issues a signed token for sub (a tenant ID or "worker"). service
// names the calling component for service-to-service tokens; pass "" for a
// tenant-facing token.
func (s *Service) Generate(sub, service string) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}
	if strings.TrimSpace(sub) == "" {
		return "", ErrMissingSubject
	}

	claims := Claims{
		Service: service,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  sub,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if s.expiry != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(s.expiry))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and verifies token, returning the Subject it was issued
// for.
func (s *Service) Validate(token string) (Subject, error) {
	if !s.Enabled() {
		return Subject{}, ErrDisabled
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return Subject{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Subject{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Subject{}, ErrMissingSubject
	}

	if claims.Service != "" {
		return Subject{Service: claims.Service}, nil
	}
	return Subject{TenantID: claims.Subject}, nil
}
