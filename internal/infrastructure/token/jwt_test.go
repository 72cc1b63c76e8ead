package token

import (
	"errors"
	"testing"
	"time"

	"crm-hub/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "this-is-a-valid-backend-token-secret-32-chars-long"

func newTestIssuer(ttl time.Duration) *JWTIssuer {
	return NewJWTIssuer(JWTConfig{
		Secret:   testSecret,
		Issuer:   "crm-hub",
		Audience: "crm-backend",
		TTL:      ttl,
	})
}

func parse(t *testing.T, tokenStr, secret string) (*backendClaims, error) {
	t.Helper()
	parsed, err := jwt.ParseWithClaims(tokenStr, &backendClaims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	return parsed.Claims.(*backendClaims), nil
}

func TestJWTIssuer_IssueBackendToken(t *testing.T) {
	issuer := newTestIssuer(5 * time.Minute)

	identity := &domain.Identity{ID: "user-123", Email: "rep@example.com"}
	profile := &domain.Profile{
		IdentityID: "user-123",
		Name:       "Rep",
		Role:       domain.RoleAdmin,
		Department: "Sales",
		IsActive:   true,
	}

	tokenStr, err := issuer.IssueBackendToken(identity, profile)
	require.NoError(t, err)
	require.NotEmpty(t, tokenStr)

	claims, err := parse(t, tokenStr, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.Subject)
	assert.Equal(t, "rep@example.com", claims.Email)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "Sales", claims.Department)
	assert.Equal(t, "crm-hub", claims.Issuer)
	assert.Contains(t, claims.Audience, "crm-backend")
}

func TestJWTIssuer_ExpiredToken(t *testing.T) {
	issuer := newTestIssuer(-1 * time.Minute)

	identity := &domain.Identity{ID: "user-123"}
	profile := &domain.Profile{IdentityID: "user-123", Role: domain.RoleEmployee, IsActive: true}

	tokenStr, err := issuer.IssueBackendToken(identity, profile)
	require.NoError(t, err)

	_, err = parse(t, tokenStr, testSecret)
	assert.Error(t, err)
}

func TestJWTIssuer_InvalidSignature(t *testing.T) {
	issuer := newTestIssuer(5 * time.Minute)

	identity := &domain.Identity{ID: "user-123"}
	profile := &domain.Profile{IdentityID: "user-123", Role: domain.RoleEmployee, IsActive: true}

	tokenStr, err := issuer.IssueBackendToken(identity, profile)
	require.NoError(t, err)

	_, err = parse(t, tokenStr, "wrong-secret-that-should-fail-validation")
	assert.Error(t, err)
}

func TestJWTIssuer_Refusals(t *testing.T) {
	issuer := newTestIssuer(5 * time.Minute)
	identity := &domain.Identity{ID: "user-123"}

	tests := map[string]struct {
		identity *domain.Identity
		profile  *domain.Profile
		wantErr  error
	}{
		"no identity": {
			profile: &domain.Profile{IdentityID: "user-123", IsActive: true},
			wantErr: domain.ErrNoSession,
		},
		"no profile": {
			identity: identity,
			wantErr:  domain.ErrNoSession,
		},
		"foreign profile": {
			identity: identity,
			profile:  &domain.Profile{IdentityID: "other", IsActive: true},
			wantErr:  domain.ErrInvalidIdentity,
		},
		"inactive profile": {
			identity: identity,
			profile:  &domain.Profile{IdentityID: "user-123", IsActive: false},
			wantErr:  domain.ErrAccountDeactivated,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			tokenStr, err := issuer.IssueBackendToken(tc.identity, tc.profile)
			assert.Empty(t, tokenStr)
			assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
		})
	}
}
