package service

import (
	"fmt"
	"time"

	"github.com/evetabi/riskevents/internal/config"
	"github.com/evetabi/riskevents/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// ──────────────────────────────────────────────────────────────────────────────
// JWT claims
// ──────────────────────────────────────────────────────────────────────────────

// AppClaims extends jwt.RegisteredClaims with application-specific fields.
// Subject names the calling service or operator.
type AppClaims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	TokenType string `json:"type"` // always "access"; refresh is the IdP's business
}

// CallerRole returns the role claim as a domain.CallerRole.
func (c *AppClaims) CallerRole() domain.CallerRole {
	return domain.CallerRole(c.Role)
}

// ──────────────────────────────────────────────────────────────────────────────
// AuthService
// ──────────────────────────────────────────────────────────────────────────────

// AuthService verifies bearer tokens issued by the identity provider. The
// store never creates or mutates identities.
type AuthService struct {
	cfg config.JWTConfig
	now func() time.Time
}

// NewAuthService creates an AuthService.
func NewAuthService(cfg config.JWTConfig) *AuthService {
	return &AuthService{cfg: cfg, now: time.Now}
}

// IssueToken signs an access token for subject. Production tokens come from
// the identity provider; this exists for operator tooling and tests.
func (s *AuthService) IssueToken(subject string, role domain.CallerRole) (string, error) {
	if !role.IsKnown() {
		return "", fmt.Errorf("auth_service.IssueToken: unknown role %q", role)
	}
	now := s.now().UTC()
	ttl := s.cfg.AccessTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	claims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:      string(role),
		TokenType: "access",
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.AccessSecret))
	if err != nil {
		return "", fmt.Errorf("auth_service.IssueToken: sign: %w", err)
	}
	return signed, nil
}

// ParseAccessToken validates signature, algorithm, expiry, issuer and type,
// and rejects roles the store does not know.
func (s *AuthService) ParseAccessToken(tokenString string) (*AppClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}

	tok, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.AccessSecret), nil
	}, opts...)
	if err != nil || !tok.Valid {
		return nil, domain.ErrTokenInvalid
	}
	claims, ok := tok.Claims.(*AppClaims)
	if !ok || claims.TokenType != "access" || !claims.CallerRole().IsKnown() {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}

// VerifySubject runs ParseAccessToken and returns the token subject. The
// WebSocket feed authenticates through it.
func (s *AuthService) VerifySubject(tokenString string) (string, error) {
	claims, err := s.ParseAccessToken(tokenString)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", domain.ErrTokenInvalid
	}
	return claims.Subject, nil
}
