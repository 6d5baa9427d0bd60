package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUserHashesPassword(t *testing.T) {
	u, err := CreateUser("Operator", "  Ops@Example.COM ", "s3cret-pass")
	require.NoError(t, err)

	assert.Equal(t, "ops@example.com", u.Email)
	assert.NotEqual(t, "s3cret-pass", u.Password)
	assert.True(t, u.CheckPassword("s3cret-pass"))
	assert.False(t, u.CheckPassword("wrong"))
	assert.True(t, u.IsActive())
}

func TestCreateUserRejectsInvalidInput(t *testing.T) {
	_, err := CreateUser("Op", "not-an-email", "123")
	require.Error(t, err)
}

func TestUserIssueAPIKey(t *testing.T) {
	u := &User{ID: 1}

	key, err := u.IssueAPIKey()
	require.NoError(t, err)
	require.NotEmpty(t, key)

	assert.True(t, strings.HasPrefix(key, apiKeyPrefix))
	assert.True(t, strings.HasPrefix(key, u.APIKeyPrefix))
	assert.NotNil(t, u.APIKeyCreatedAt)
	assert.Nil(t, u.APIKeyLastUsedAt)
	assert.True(t, u.HasActiveAPIKey())
	assert.Equal(t, HashAPIKey(key), u.APIKeyHash)
}

func TestUserRevokeAPIKey(t *testing.T) {
	u := &User{ID: 99}
	_, err := u.IssueAPIKey()
	require.NoError(t, err)

	u.RevokeAPIKey()

	assert.False(t, u.HasActiveAPIKey())
	assert.Equal(t, "", u.APIKeyHash)
	assert.Equal(t, "", u.APIKeyPrefix)
}

func TestHashAPIKeyTrimsWhitespace(t *testing.T) {
	assert.Equal(t, HashAPIKey("vp_abc"), HashAPIKey("  vp_abc\n"))
}

func TestPaymentIsFinal(t *testing.T) {
	assert.True(t, (&Payment{Status: PaymentStatusRefunded}).IsFinal())
	assert.True(t, (&Payment{Status: PaymentStatusExpired}).IsFinal())
	assert.False(t, (&Payment{Status: PaymentStatusPaid}).IsFinal())
	assert.False(t, (&Payment{Status: PaymentStatusPending}).IsFinal())
}
