package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Minute, time.Hour)
	userID := uuid.New()

	token, err := m.GenerateAccessToken(userID, RoleDriver)
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, RoleDriver, claims.Role)
}

func TestJWTManager_RejectsForeignSecretAndExpired(t *testing.T) {
	issuer := NewJWTManager("secret-a", time.Minute, time.Hour)
	verifier := NewJWTManager("secret-b", time.Minute, time.Hour)

	token, err := issuer.GenerateAccessToken(uuid.New(), RolePassenger)
	require.NoError(t, err)
	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)

	expired := NewJWTManager("secret-a", -time.Minute, time.Hour)
	token, err = expired.GenerateAccessToken(uuid.New(), RolePassenger)
	require.NoError(t, err)
	_, err = issuer.ValidateToken(token)
	assert.Error(t, err)
}
