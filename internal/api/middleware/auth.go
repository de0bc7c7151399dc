package middleware

import (
	"net/http"
	"strings"

	"github.com/evetabi/riskevents/internal/domain"
	"github.com/evetabi/riskevents/internal/service"
	"github.com/gin-gonic/gin"
)

// ContextKey constants for gin.Context values set by middleware.
const (
	CtxSubject = "subject"
	CtxRole    = "role"
)

// TokenParser verifies bearer tokens. *service.AuthService satisfies it.
type TokenParser interface {
	ParseAccessToken(token string) (*service.AppClaims, error)
}

func abortAuth(c *gin.Context, status int, code string, err error) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
		"code":    code,
	})
}

// ──────────────────────────────────────────────────────────────────────────────
// JWTMiddleware
// ──────────────────────────────────────────────────────────────────────────────

// JWTMiddleware validates the Bearer token in the Authorization header.
// On success it stores the subject (string) and role (domain.CallerRole) in
// the gin context.
func JWTMiddleware(auth TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			abortAuth(c, http.StatusUnauthorized, "ERR_UNAUTHORIZED", domain.ErrUnauthorized)
			return
		}

		claims, err := auth.ParseAccessToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil || claims.Subject == "" {
			abortAuth(c, http.StatusUnauthorized, "ERR_TOKEN_INVALID", domain.ErrTokenInvalid)
			return
		}

		c.Set(CtxSubject, claims.Subject)
		c.Set(CtxRole, claims.CallerRole())
		c.Next()
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Role checks
// ──────────────────────────────────────────────────────────────────────────────

// RequireRole lets the request through when allowed(role) holds.
// Must be placed after JWTMiddleware in the chain.
func RequireRole(allowed func(domain.CallerRole) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !allowed(GetRole(c)) {
			abortAuth(c, http.StatusForbidden, "ERR_FORBIDDEN", domain.ErrForbidden)
			return
		}
		c.Next()
	}
}

// RiskWriterMiddleware admits the risk engine.
func RiskWriterMiddleware() gin.HandlerFunc {
	return RequireRole(domain.CallerRole.CanWriteRiskRecords)
}

// BreakerControllerMiddleware admits the breaker controller.
func BreakerControllerMiddleware() gin.HandlerFunc {
	return RequireRole(domain.CallerRole.CanControlBreakers)
}

// OperatorMiddleware admits back-office roles.
func OperatorMiddleware() gin.HandlerFunc {
	return RequireRole(domain.CallerRole.CanAccessBackoffice)
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers: extract identity from context (for use in handlers)
// ──────────────────────────────────────────────────────────────────────────────

// GetSubject retrieves the token subject, or "" when the middleware did not run.
func GetSubject(c *gin.Context) string {
	return c.GetString(CtxSubject)
}

// GetRole retrieves the caller's role from the gin context.
func GetRole(c *gin.Context) domain.CallerRole {
	v, _ := c.Get(CtxRole)
	r, _ := v.(domain.CallerRole)
	return r
}
