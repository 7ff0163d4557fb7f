package storage

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcmartin/flowregistry/pkg/auth"
	"github.com/tcmartin/flowregistry/pkg/models"
)

func TestMemoryFlowStoreCRUD(t *testing.T) {
	store := NewMemoryFlowStore()

	flow := models.VersionedFlow{
		Identifier:  "flow-1",
		Name:        "Test Flow",
		Description: "A test flow",
	}

	created, err := store.CreateFlow(flow)
	require.NoError(t, err)
	assert.Equal(t, "flow-1", created.Identifier)
	assert.Equal(t, 0, created.VersionCount)
	assert.NotZero(t, created.CreatedAt)

	// Creating the same flow again fails
	_, err = store.CreateFlow(flow)
	assert.ErrorIs(t, err, ErrFlowExists)

	got, err := store.GetFlow("flow-1", false)
	require.NoError(t, err)
	assert.Equal(t, "Test Flow", got.Name)
	assert.Nil(t, got.SnapshotMetadata)

	_, err = store.GetFlow("missing", false)
	assert.ErrorIs(t, err, ErrFlowNotFound)

	updated, err := store.UpdateFlow(models.VersionedFlow{
		Identifier:  "flow-1",
		Name:        "Renamed Flow",
		Description: "Updated description",
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed Flow", updated.Name)
	assert.Equal(t, "Updated description", updated.Description)

	_, err = store.UpdateFlow(models.VersionedFlow{Identifier: "missing"})
	assert.ErrorIs(t, err, ErrFlowNotFound)

	flows, err := store.ListFlows()
	require.NoError(t, err)
	assert.Len(t, flows, 1)
}

func TestMemoryFlowStoreSnapshots(t *testing.T) {
	store := NewMemoryFlowStore()

	_, err := store.CreateFlow(models.VersionedFlow{Identifier: "flow-1", Name: "Test Flow"})
	require.NoError(t, err)

	// Versions are assigned 1, 2, 3 in creation order
	for i := 1; i <= 3; i++ {
		snapshot := models.VersionedFlowSnapshot{
			SnapshotMetadata: models.VersionedFlowSnapshotMetadata{
				FlowIdentifier: "flow-1",
				Comments:       fmt.Sprintf("version %d", i),
			},
			FlowContents: json.RawMessage(`{"nodes":[]}`),
		}
		created, err := store.CreateSnapshot(snapshot)
		require.NoError(t, err)
		assert.Equal(t, i, created.SnapshotMetadata.Version)
		assert.NotZero(t, created.SnapshotMetadata.Timestamp)
	}

	// Snapshot creation against a missing flow fails
	_, err = store.CreateSnapshot(models.VersionedFlowSnapshot{
		SnapshotMetadata: models.VersionedFlowSnapshotMetadata{FlowIdentifier: "missing"},
		FlowContents:     json.RawMessage(`{}`),
	})
	assert.ErrorIs(t, err, ErrFlowNotFound)

	// Verbose fetch returns ascending history and a correct count
	flow, err := store.GetFlow("flow-1", true)
	require.NoError(t, err)
	assert.Equal(t, 3, flow.VersionCount)
	require.Len(t, flow.SnapshotMetadata, 3)
	for i, meta := range flow.SnapshotMetadata {
		assert.Equal(t, i+1, meta.Version)
	}

	snapshot, err := store.GetSnapshot("flow-1", 2)
	require.NoError(t, err)
	assert.Equal(t, "version 2", snapshot.SnapshotMetadata.Comments)

	_, err = store.GetSnapshot("flow-1", 99)
	assert.ErrorIs(t, err, ErrVersionNotFound)

	_, err = store.GetSnapshot("missing", 1)
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestMemoryFlowStoreDeleteCascades(t *testing.T) {
	store := NewMemoryFlowStore()

	_, err := store.CreateFlow(models.VersionedFlow{Identifier: "flow-1", Name: "Test Flow"})
	require.NoError(t, err)

	_, err = store.CreateSnapshot(models.VersionedFlowSnapshot{
		SnapshotMetadata: models.VersionedFlowSnapshotMetadata{FlowIdentifier: "flow-1"},
		FlowContents:     json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	deleted, err := store.DeleteFlow("flow-1")
	require.NoError(t, err)
	assert.Equal(t, "flow-1", deleted.Identifier)
	assert.Len(t, deleted.SnapshotMetadata, 1)

	_, err = store.GetFlow("flow-1", false)
	assert.ErrorIs(t, err, ErrFlowNotFound)

	_, err = store.GetSnapshot("flow-1", 1)
	assert.ErrorIs(t, err, ErrFlowNotFound)

	_, err = store.DeleteFlow("flow-1")
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestMemoryFlowStoreConcurrentSnapshots(t *testing.T) {
	store := NewMemoryFlowStore()

	_, err := store.CreateFlow(models.VersionedFlow{Identifier: "flow-1", Name: "Test Flow"})
	require.NoError(t, err)

	const writers = 20

	var wg sync.WaitGroup
	versions := make(chan int, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := store.CreateSnapshot(models.VersionedFlowSnapshot{
				SnapshotMetadata: models.VersionedFlowSnapshotMetadata{FlowIdentifier: "flow-1"},
				FlowContents:     json.RawMessage(`{}`),
			})
			assert.NoError(t, err)
			versions <- created.SnapshotMetadata.Version
		}()
	}
	wg.Wait()
	close(versions)

	// Every version in 1..writers is assigned exactly once
	seen := make(map[int]bool)
	for v := range versions {
		assert.False(t, seen[v], "version %d assigned twice", v)
		seen[v] = true
	}
	assert.Len(t, seen, writers)
	for i := 1; i <= writers; i++ {
		assert.True(t, seen[i], "version %d never assigned", i)
	}
}

func TestMemoryAccountStore(t *testing.T) {
	store := NewMemoryAccountStore()

	account := auth.Account{
		ID:        "acct-1",
		Username:  "alice",
		APIToken:  "token-1",
		CreatedAt: time.Now(),
	}

	require.NoError(t, store.SaveAccount(account))

	got, err := store.GetAccount("acct-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

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

	err = store.DeleteAccount("acct-1")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
