package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	secret := []byte("secret")
	token, err := CreateToken(7, "alice", secret, time.Now().Add(time.Hour))
	require.NoError(t, err)

	claims, err := VerifyToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, 7, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestVerifyTokenExpired(t *testing.T) {
	secret := []byte("secret")
	token, err := CreateToken(7, "alice", secret, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	_, err = VerifyToken(token, secret)
	require.Error(t, err)
}
