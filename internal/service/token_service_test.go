package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uat-crowdtest-api/internal/models"
	appErrors "github.com/noah-isme/uat-crowdtest-api/pkg/errors"
)

func signToken(t *testing.T, secret string, claims *models.JWTClaims, method jwt.SigningMethod) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims() *models.JWTClaims {
	now := time.Now()
	return &models.JWTClaims{
		UserID: "qa-1",
		Role:   models.RoleQASpecialist,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "idp",
			Audience:  jwt.ClaimStrings{"uat-api"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestTokenVerifierAcceptsValidToken(t *testing.T) {
	v := NewTokenVerifier(TokenConfig{Secret: "s3cret", Issuer: "idp", Audience: []string{"uat-api"}}, nil)

	claims, err := v.ValidateToken(signToken(t, "s3cret", validClaims(), jwt.SigningMethodHS256))
	require.NoError(t, err)
	assert.Equal(t, models.Actor{ID: "qa-1", Role: models.RoleQASpecialist}, claims.Actor())
}

func TestTokenVerifierRejects(t *testing.T) {
	v := NewTokenVerifier(TokenConfig{Secret: "s3cret", Issuer: "idp"}, nil)

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "other"
	noRole := validClaims()
	noRole.Role = "SUPERUSER"
	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil

	cases := map[string]string{
		"bad signature": signToken(t, "other", validClaims(), jwt.SigningMethodHS256),
		"expired":       signToken(t, "s3cret", expired, jwt.SigningMethodHS256),
		"issuer":        signToken(t, "s3cret", wrongIssuer, jwt.SigningMethodHS256),
		"unknown role":  signToken(t, "s3cret", noRole, jwt.SigningMethodHS256),
		"no expiry":     signToken(t, "s3cret", noExpiry, jwt.SigningMethodHS256),
		"wrong alg":     signToken(t, "s3cret", validClaims(), jwt.SigningMethodHS512),
		"garbage":       "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.ValidateToken(token)
			assert.True(t, appErrors.IsCode(err, appErrors.ErrUnauthorized))
		})
	}
}

func TestTokenVerifierFallsBackToSubject(t *testing.T) {
	v := NewTokenVerifier(TokenConfig{Secret: "s3cret"}, nil)
	claims := validClaims()
	claims.UserID = ""
	claims.Subject = "worker-7"
	claims.Role = models.RoleCrowdworker

	got, err := v.ValidateToken(signToken(t, "s3cret", claims, jwt.SigningMethodHS256))
	require.NoError(t, err)
	assert.Equal(t, "worker-7", got.UserID)
}
