package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcmartin/flowregistry/pkg/auth"
	"github.com/tcmartin/flowregistry/pkg/models"
)

func newTestRedisProvider(t *testing.T) *RedisProvider {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	provider := NewRedisProviderWithClient(client, "test:")
	require.NoError(t, provider.Initialize())
	t.Cleanup(func() { provider.Close() })

	return provider
}

func TestRedisFlowStore(t *testing.T) {
	provider := newTestRedisProvider(t)
	store := provider.GetFlowStore()

	flow := models.VersionedFlow{
		Identifier:  "flow-1",
		Name:        "Test Flow",
		Description: "A test flow",
	}

	created, err := store.CreateFlow(flow)
	require.NoError(t, err)
	assert.Equal(t, 0, created.VersionCount)
	assert.NotZero(t, created.CreatedAt)

	_, err = store.CreateFlow(flow)
	assert.ErrorIs(t, err, ErrFlowExists)

	got, err := store.GetFlow("flow-1", false)
	require.NoError(t, err)
	assert.Equal(t, "Test Flow", got.Name)

	_, err = store.GetFlow("missing", false)
	assert.ErrorIs(t, err, ErrFlowNotFound)

	// Versions are assigned sequentially by the counter
	for i := 1; i <= 3; i++ {
		snapshot, err := store.CreateSnapshot(models.VersionedFlowSnapshot{
			SnapshotMetadata: models.VersionedFlowSnapshotMetadata{
				FlowIdentifier: "flow-1",
				Author:         "alice",
			},
			FlowContents: json.RawMessage(`{"nodes":[]}`),
		})
		require.NoError(t, err)
		assert.Equal(t, i, snapshot.SnapshotMetadata.Version)
	}

	_, err = store.CreateSnapshot(models.VersionedFlowSnapshot{
		SnapshotMetadata: models.VersionedFlowSnapshotMetadata{FlowIdentifier: "missing"},
		FlowContents:     json.RawMessage(`{}`),
	})
	assert.ErrorIs(t, err, ErrFlowNotFound)

	verbose, err := store.GetFlow("flow-1", true)
	require.NoError(t, err)
	assert.Equal(t, 3, verbose.VersionCount)
	require.Len(t, verbose.SnapshotMetadata, 3)
	for i, meta := range verbose.SnapshotMetadata {
		assert.Equal(t, i+1, meta.Version)
		assert.Equal(t, "flow-1", meta.FlowIdentifier)
	}

	snapshot, err := store.GetSnapshot("flow-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, snapshot.SnapshotMetadata.Version)
	assert.JSONEq(t, `{"nodes":[]}`, string(snapshot.FlowContents))

	_, err = store.GetSnapshot("flow-1", 99)
	assert.ErrorIs(t, err, ErrVersionNotFound)
	_, err = store.GetSnapshot("missing", 1)
	assert.ErrorIs(t, err, ErrFlowNotFound)

	// Update keeps unset name, overwrites description
	updated, err := store.UpdateFlow(models.VersionedFlow{
		Identifier:  "flow-1",
		Description: "Updated",
	})
	require.NoError(t, err)
	assert.Equal(t, "Test Flow", updated.Name)
	assert.Equal(t, "Updated", updated.Description)

	flows, err := store.ListFlows()
	require.NoError(t, err)
	assert.Len(t, flows, 1)

	deleted, err := store.DeleteFlow("flow-1")
	require.NoError(t, err)
	assert.Len(t, deleted.SnapshotMetadata, 3)

	_, err = store.GetFlow("flow-1", false)
	assert.ErrorIs(t, err, ErrFlowNotFound)
	_, err = store.GetSnapshot("flow-1", 1)
	assert.ErrorIs(t, err, ErrFlowNotFound)

	flows, err = store.ListFlows()
	require.NoError(t, err)
	assert.Empty(t, flows)
}

func TestRedisAccountStore(t *testing.T) {
	provider := newTestRedisProvider(t)
	store := provider.GetAccountStore()

	now := time.Now()
	account := auth.Account{
		ID:           "acct-1",
		Username:     "alice",
		PasswordHash: "hashed",
		APIToken:     "token-1",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	require.NoError(t, store.SaveAccount(account))

	// Credential fields round-trip even though the API serialization
	// hides them
	got, err := store.GetAccount("acct-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "hashed", got.PasswordHash)
	assert.Equal(t, "token-1", got.APIToken)

	byName, err := store.GetAccountByUsername("alice")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", byName.ID)

	byToken, err := store.GetAccountByToken("token-1")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", byToken.ID)

	accounts, err := store.ListAccounts()
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	require.NoError(t, store.DeleteAccount("acct-1"))
	_, err = store.GetAccount("acct-1")
	assert.ErrorIs(t, err, ErrAccountNotFound)
	_, err = store.GetAccountByUsername("alice")
	assert.ErrorIs(t, err, ErrAccountNotFound)
	_, err = store.GetAccountByToken("token-1")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
