package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcmartin/flowregistry/pkg/auth"
)

func TestJWTServiceRoundTrip(t *testing.T) {
	service := NewJWTService("test-secret", 1)

	account := auth.Account{
		ID:       "acct-1",
		Username: "alice",
	}

	token, err := service.GenerateToken(account)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	accountID, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", accountID)
}

func TestJWTServiceRejectsBadTokens(t *testing.T) {
	service := NewJWTService("test-secret", 1)

	_, err := service.ValidateToken("not-a-token")
	assert.Error(t, err)

	// Tokens signed with a different secret are rejected
	other := NewJWTService("other-secret", 1)
	token, err := other.GenerateToken(auth.Account{ID: "acct-1", Username: "alice"})
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	assert.Error(t, err)
}
