package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcmartin/flowregistry/pkg/storage"
)

func TestAccountServiceLifecycle(t *testing.T) {
	service := NewAccountService(storage.NewMemoryAccountStore())

	accountID, err := service.CreateAccount("alice", "password123")
	require.NoError(t, err)
	require.NotEmpty(t, accountID)

	// Username collisions are rejected
	_, err = service.CreateAccount("alice", "other")
	assert.Error(t, err)

	// Blank credentials are rejected
	_, err = service.CreateAccount("", "x")
	assert.Error(t, err)
	_, err = service.CreateAccount("bob", "")
	assert.Error(t, err)

	account, err := service.GetAccount(accountID)
	require.NoError(t, err)
	assert.Equal(t, "alice", account.Username)
	assert.NotEmpty(t, account.APIToken)
	assert.NotEqual(t, "password123", account.PasswordHash)

	// Password authentication
	gotID, err := service.Authenticate("alice", "password123")
	require.NoError(t, err)
	assert.Equal(t, accountID, gotID)

	_, err = service.Authenticate("alice", "wrong")
	assert.Error(t, err)
	_, err = service.Authenticate("nobody", "password123")
	assert.Error(t, err)

	// API token authentication
	gotID, err = service.ValidateToken(account.APIToken)
	require.NoError(t, err)
	assert.Equal(t, accountID, gotID)

	_, err = service.ValidateToken("bogus")
	assert.Error(t, err)

	accounts, err := service.ListAccounts()
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	require.NoError(t, service.DeleteAccount(accountID))
	_, err = service.GetAccount(accountID)
	assert.Error(t, err)
}
