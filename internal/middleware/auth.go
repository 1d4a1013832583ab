// internal/middleware/auth.go
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"translator-back/internal/auth"
	"translator-back/internal/metrics"

	"github.com/gin-gonic/gin"
)

const (
	userIDKey = "userID"

	// RefreshCookie carries the refresh token.
	RefreshCookie = "refreshToken"
	// AccessTokenHeader repeats a refreshed access token for clients that
	// cannot read Authorization from responses.
	AccessTokenHeader = "X-Access-Token"
)

// TokenAuthority is the part of auth.TokenService the middleware needs.
type TokenAuthority interface {
	ValidateAccessToken(token string) (*auth.Claims, error)
	ValidateRefreshToken(ctx context.Context, token string) (*auth.Claims, error)
	IssueAccessToken(userID string) (string, error)
}

// AuthMiddleware validates the bearer token. An expired token is replaced
// once from the refresh cookie; the new token is returned in the response
// headers and written back into the request so handlers see it.
func AuthMiddleware(tokens TokenAuthority) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Access token missing"})
			return
		}

		claims, err := tokens.ValidateAccessToken(token)
		switch {
		case err == nil:
			c.Set(userIDKey, claims.UserID)
			c.Next()
			return
		case !errors.Is(err, auth.ErrTokenExpired):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid token"})
			return
		}

		refresh, cerr := c.Cookie(RefreshCookie)
		if cerr != nil || refresh == "" {
			metrics.TokenRefreshTotal.WithLabelValues("middleware", metrics.OutcomeFailure).Inc()
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Refresh token missing"})
			return
		}

		claims, err = tokens.ValidateRefreshToken(c.Request.Context(), refresh)
		if err != nil {
			metrics.TokenRefreshTotal.WithLabelValues("middleware", metrics.OutcomeFailure).Inc()
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid or expired refresh token"})
			return
		}

		fresh, err := tokens.IssueAccessToken(claims.UserID)
		if err != nil {
			slog.Error("failed to issue access token", "user_id", claims.UserID, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to refresh token"})
			return
		}
		metrics.TokenRefreshTotal.WithLabelValues("middleware", metrics.OutcomeSuccess).Inc()

		bearer := "Bearer " + fresh
		c.Header("Authorization", bearer)
		c.Header(AccessTokenHeader, fresh)
		c.Request.Header.Set("Authorization", bearer)
		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

// UserID returns the authenticated user set by AuthMiddleware.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
