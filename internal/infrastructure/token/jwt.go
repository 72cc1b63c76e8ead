package token

import (
	"fmt"
	"time"

	"crm-hub/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig holds backend token configuration.
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// backendClaims are the claims the CRM backend authorises against.
type backendClaims struct {
	Email      string `json:"email"`
	Role       string `json:"role"`
	Department string `json:"department,omitempty"`
	jwt.RegisteredClaims
}

// JWTIssuer signs backend tokens for authenticated, active profiles.
// Implements domain.TokenIssuer.
type JWTIssuer struct {
	cfg JWTConfig
	now func() time.Time
}

// NewJWTIssuer creates a new JWT issuer.
func NewJWTIssuer(cfg JWTConfig) *JWTIssuer {
	return &JWTIssuer{cfg: cfg, now: time.Now}
}

// IssueBackendToken signs an HS256 token carrying the profile role.
func (j *JWTIssuer) IssueBackendToken(identity *domain.Identity, profile *domain.Profile) (string, error) {
	if identity == nil || profile == nil {
		return "", domain.ErrNoSession
	}
	if profile.IdentityID != identity.ID {
		return "", fmt.Errorf("%w: profile belongs to %q", domain.ErrInvalidIdentity, profile.IdentityID)
	}
	if !profile.IsActive {
		return "", domain.ErrAccountDeactivated
	}

	now := j.now()
	claims := backendClaims{
		Email:      identity.Email,
		Role:       string(profile.Role),
		Department: profile.Department,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.cfg.Issuer,
			Audience:  jwt.ClaimStrings{j.cfg.Audience},
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.cfg.TTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.cfg.Secret))
}
