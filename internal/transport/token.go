package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired is returned for a candidate token past its expiry.
var ErrTokenExpired = errors.New("candidate token expired")

// CandidateClaims mirrors the claims the backend issues to candidates.
type CandidateClaims struct {
	jwt.RegisteredClaims
	TokenType string `json:"token_type"`
	UserID    int    `json:"user_id"`
}

// InspectToken reads the claims of a candidate token without verifying its
// signature; the backend verifies it on the handshake. It rejects tokens
// already expired at now so the dial is not wasted.
func InspectToken(raw string, now time.Time) (*CandidateClaims, error) {
	claims := &CandidateClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("parse candidate token: %w", err)
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(now) {
		return nil, ErrTokenExpired
	}
	return claims, nil
}
