package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidateToken(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	token, err := m.IssueToken("alex@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	email, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alex@example.com", email)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	token, err := NewManager("secret-a", time.Hour).IssueToken("alex@example.com")
	require.NoError(t, err)

	_, err = NewManager("secret-b", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	m := NewManager("test-secret", -time.Minute)

	token, err := m.IssueToken("alex@example.com")
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	_, err := m.ValidateToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter22hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22hunter22", hash)

	require.NoError(t, CheckPassword(hash, "hunter22hunter22"))
	assert.ErrorIs(t, CheckPassword(hash, "wrong-password"), ErrInvalidCredentials)
}
