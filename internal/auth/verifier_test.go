package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestVerifyValidToken(t *testing.T) {
	verifier := NewVerifier("test-secret")
	token := signToken(t, "test-secret", Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: 42,
		Role:   "provider",
	})

	userID, err := verifier.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, 42, userID)
}

func TestVerifyExpiredToken(t *testing.T) {
	verifier := NewVerifier("test-secret")
	token := signToken(t, "test-secret", Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		UserID: 42,
	})

	_, err := verifier.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyWrongSecret(t *testing.T) {
	verifier := NewVerifier("test-secret")
	token := signToken(t, "other-secret", Claims{UserID: 42})

	_, err := verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyMissingUserID(t *testing.T) {
	verifier := NewVerifier("test-secret")
	token := signToken(t, "test-secret", Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	_, err := verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyGarbage(t *testing.T) {
	verifier := NewVerifier("test-secret")

	_, err := verifier.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
