package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	svc := NewService("test-secret")
	svc.RegisterAPICredentials(TestAPIKey, TestAPISecret)

	token, err := svc.GenerateToken(Credentials{APIKey: TestAPIKey, APISecret: TestAPISecret})
	require.NoError(t, err)
	require.NotEmpty(t, token.Token)

	claims, err := svc.ValidateToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, TestAPIKey, claims.ClientID)
	assert.Contains(t, claims.Permissions, "swap")
}

func TestGenerateTokenRejectsBadCredentials(t *testing.T) {
	svc := NewService("test-secret")
	svc.RegisterAPICredentials(TestAPIKey, TestAPISecret)

	_, err := svc.GenerateToken(Credentials{APIKey: TestAPIKey, APISecret: "wrong"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestGetClientID(t *testing.T) {
	assert.Equal(t, "client-1", GetClientID(jwt.MapClaims{"client_id": "client-1"}))
	assert.Empty(t, GetClientID(jwt.MapClaims{}))
	assert.Empty(t, GetClientID(nil))
	assert.Empty(t, GetClientID("not-claims"))
}
