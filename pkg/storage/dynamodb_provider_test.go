package storage

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcmartin/flowregistry/pkg/models"
)

func init() {
	_ = godotenv.Load("../../.env")
}

// TestDynamoDBProvider exercises the DynamoDB flow store against a real or
// local endpoint. It is skipped unless FLOWREGISTRY_DYNAMODB_ENDPOINT or
// AWS credentials are configured.
func TestDynamoDBProvider(t *testing.T) {
	endpoint := os.Getenv("FLOWREGISTRY_DYNAMODB_ENDPOINT")
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")

	if endpoint == "" && accessKey == "" {
		t.Skip("Skipping DynamoDB tests as no endpoint or credentials are set")
	}

	region := os.Getenv("FLOWREGISTRY_DYNAMODB_REGION")
	if region == "" {
		region = "us-west-2"
	}

	provider, err := NewDynamoDBProvider(DynamoDBProviderConfig{
		Region:      region,
		Endpoint:    endpoint,
		TablePrefix: "flowregistry_test_",
	})
	require.NoError(t, err)
	require.NoError(t, provider.Initialize())
	defer provider.Close()

	store := provider.GetFlowStore()

	flowID := uuid.New().String()
	created, err := store.CreateFlow(models.VersionedFlow{
		Identifier: flowID,
		Name:       "dynamo test flow",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, created.VersionCount)
	defer store.DeleteFlow(flowID)

	for i := 1; i <= 2; i++ {
		snapshot, err := store.CreateSnapshot(models.VersionedFlowSnapshot{
			SnapshotMetadata: models.VersionedFlowSnapshotMetadata{
				FlowIdentifier: flowID,
				Comments:       "test version",
			},
			FlowContents: json.RawMessage(`{"nodes":[]}`),
		})
		require.NoError(t, err)
		assert.Equal(t, i, snapshot.SnapshotMetadata.Version)
	}

	verbose, err := store.GetFlow(flowID, true)
	require.NoError(t, err)
	require.Len(t, verbose.SnapshotMetadata, 2)
	assert.Equal(t, 1, verbose.SnapshotMetadata[0].Version)
	assert.Equal(t, 2, verbose.SnapshotMetadata[1].Version)

	snapshot, err := store.GetSnapshot(flowID, 1)
	require.NoError(t, err)
	assert.Equal(t, "test version", snapshot.SnapshotMetadata.Comments)

	_, err = store.GetSnapshot(flowID, 99)
	assert.ErrorIs(t, err, ErrVersionNotFound)

	deleted, err := store.DeleteFlow(flowID)
	require.NoError(t, err)
	assert.Len(t, deleted.SnapshotMetadata, 2)

	_, err = store.GetFlow(flowID, false)
	assert.ErrorIs(t, err, ErrFlowNotFound)
}
