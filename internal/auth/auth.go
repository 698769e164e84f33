// Package auth verifies inbound bearer tokens.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when no bearer token was presented.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken is returned when a presented token does not verify.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// TokenVerifier checks a bearer token and returns the caller's subject.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// StaticToken accepts exactly one shared secret.
type StaticToken string

// Verify implements TokenVerifier.
func (s StaticToken) Verify(token string) (string, error) {
	if subtle.ConstantTimeCompare([]byte(s), []byte(token)) != 1 {
		return "", ErrInvalidToken
	}
	return "static", nil
}

// JWTVerifier accepts HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier returns a verifier for secret, which must be at least 32 bytes.
func NewJWTVerifier(secret []byte) (*JWTVerifier, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 bytes, got %d", len(secret))
	}
	return &JWTVerifier{secret: secret}, nil
}

// Verify implements TokenVerifier. The subject claim is required.
func (v *JWTVerifier) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// Generate signs a token for subject. Used by operators and tests.
func (v *JWTVerifier) Generate(subject string, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = subject
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", ErrMissingToken
	}
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// Chain tries each verifier in order and returns the first success.
type Chain []TokenVerifier

// Verify implements TokenVerifier.
func (c Chain) Verify(token string) (string, error) {
	for _, v := range c {
		if sub, err := v.Verify(token); err == nil {
			return sub, nil
		}
	}
	return "", ErrInvalidToken
}
