package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/assessment-client/internal/response"
	"github.com/stemsi/assessment-client/internal/transport"
)

const (
	// ContextKeyClaims is the Gin context key for the candidate claims.
	ContextKeyClaims = "claims"
)

// RequireCandidateToken admits only callers presenting the same token the
// client uses against the assessment backend, from the Authorization header
// or the ?token= query param.
func RequireCandidateToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := extractToken(c)
		if presented == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		claims, err := transport.InspectToken(presented, time.Now())
		if errors.Is(err, transport.ErrTokenExpired) {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenExpired)
			return
		}
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims retrieves the candidate claims from the Gin context.
func GetClaims(c *gin.Context) *transport.CandidateClaims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*transport.CandidateClaims)
	if !ok {
		return nil
	}
	return claims
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	// Fallback for EventSource (SSE) which cannot send headers
	return c.Query("token")
}
