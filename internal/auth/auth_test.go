package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginSuccessAndVerify(t *testing.T) {
	svc, err := New("correct-password", "test-secret", 24)
	require.NoError(t, err)

	token, err := svc.Login("correct-password")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	assert.NoError(t, svc.Verify(token))
}

func TestLoginWrongPassword(t *testing.T) {
	svc, err := New("correct-password", "test-secret", 24)
	require.NoError(t, err)

	_, err = svc.Login("wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyRejectsGarbageToken(t *testing.T) {
	svc, err := New("pw", "secret", 24)
	require.NoError(t, err)

	err = svc.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRejectsTokenFromDifferentSecret(t *testing.T) {
	svcA, err := New("pw", "secret-a", 24)
	require.NoError(t, err)
	svcB, err := New("pw", "secret-b", 24)
	require.NoError(t, err)

	token, err := svcA.Login("pw")
	require.NoError(t, err)

	assert.ErrorIs(t, svcB.Verify(token), ErrTokenInvalid)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	svc, err := New("pw", "secret", 0)
	require.NoError(t, err)

	token, err := svc.Login("pw")
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)
	assert.ErrorIs(t, svc.Verify(token), ErrTokenExpired)
}
