package storage

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"github.com/tcmartin/flowregistry/pkg/auth"
	"github.com/tcmartin/flowregistry/pkg/models"
)

// DynamoDBProvider implements the StorageProvider interface using DynamoDB
type DynamoDBProvider struct {
	client       dynamodbiface.DynamoDBAPI
	flowStore    *DynamoDBFlowStore
	accountStore *DynamoDBAccountStore
	tablePrefix  string
}

// DynamoDBProviderConfig contains configuration for the DynamoDB provider
type DynamoDBProviderConfig struct {
	Region      string
	AccessKey   string
	SecretKey   string
	TablePrefix string
	Endpoint    string // Optional, for local DynamoDB
}

// NewDynamoDBProvider creates a new DynamoDB storage provider
func NewDynamoDBProvider(config DynamoDBProviderConfig) (*DynamoDBProvider, error) {
	awsConfig := &aws.Config{
		Region: aws.String(config.Region),
	}

	if config.AccessKey != "" && config.SecretKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			config.AccessKey,
			config.SecretKey,
			"",
		)
	}

	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return NewDynamoDBProviderWithClient(dynamodb.New(sess), config.TablePrefix), nil
}

// NewDynamoDBProviderWithClient creates a new DynamoDB storage provider
// with a custom client. This is primarily used for testing with mocks.
func NewDynamoDBProviderWithClient(client dynamodbiface.DynamoDBAPI, tablePrefix string) *DynamoDBProvider {
	provider := &DynamoDBProvider{
		client:      client,
		tablePrefix: tablePrefix,
	}

	provider.flowStore = NewDynamoDBFlowStore(client, tablePrefix)
	provider.accountStore = NewDynamoDBAccountStore(client, tablePrefix)

	return provider
}

// Initialize sets up the storage backend
func (p *DynamoDBProvider) Initialize() error {
	if err := p.flowStore.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize flow store: %w", err)
	}

	if err := p.accountStore.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize account store: %w", err)
	}

	return nil
}

// Close cleans up resources
func (p *DynamoDBProvider) Close() error {
	// The DynamoDB client holds no persistent connections
	return nil
}

// GetFlowStore returns a store for flows and their snapshots
func (p *DynamoDBProvider) GetFlowStore() FlowStore {
	return p.flowStore
}

// GetAccountStore returns a store for account data
func (p *DynamoDBProvider) GetAccountStore() AccountStore {
	return p.accountStore
}

// dynamoFlowItem is the flows table representation of a VersionedFlow
type dynamoFlowItem struct {
	FlowID       string `dynamodbav:"FlowID"`
	Name         string `dynamodbav:"Name"`
	Description  string `dynamodbav:"Description"`
	BucketID     string `dynamodbav:"BucketID"`
	CreatedAt    int64  `dynamodbav:"CreatedAt"`
	UpdatedAt    int64  `dynamodbav:"UpdatedAt"`
	VersionCount int    `dynamodbav:"VersionCount"`
}

// dynamoSnapshotItem is the snapshots table representation of one version
type dynamoSnapshotItem struct {
	FlowID    string `dynamodbav:"FlowID"`
	Version   int    `dynamodbav:"Version"`
	Comments  string `dynamodbav:"Comments"`
	Author    string `dynamodbav:"Author"`
	CreatedAt int64  `dynamodbav:"CreatedAt"`
	Contents  []byte `dynamodbav:"Contents"`
}

func (it dynamoFlowItem) toModel() models.VersionedFlow {
	return models.VersionedFlow{
		Identifier:       it.FlowID,
		Name:             it.Name,
		Description:      it.Description,
		BucketIdentifier: it.BucketID,
		CreatedAt:        it.CreatedAt,
		UpdatedAt:        it.UpdatedAt,
		VersionCount:     it.VersionCount,
	}
}

func (it dynamoSnapshotItem) toMetadata() models.VersionedFlowSnapshotMetadata {
	return models.VersionedFlowSnapshotMetadata{
		FlowIdentifier: it.FlowID,
		Version:        it.Version,
		Comments:       it.Comments,
		Author:         it.Author,
		Timestamp:      it.CreatedAt,
	}
}

// DynamoDBFlowStore implements the FlowStore interface using DynamoDB
type DynamoDBFlowStore struct {
	client         dynamodbiface.DynamoDBAPI
	flowsTable     string
	snapshotsTable string
}

// NewDynamoDBFlowStore creates a new DynamoDB flow store
func NewDynamoDBFlowStore(client dynamodbiface.DynamoDBAPI, tablePrefix string) *DynamoDBFlowStore {
	return &DynamoDBFlowStore{
		client:         client,
		flowsTable:     tablePrefix + "flows",
		snapshotsTable: tablePrefix + "flow_snapshots",
	}
}

// Initialize creates the DynamoDB tables if they don't exist
func (s *DynamoDBFlowStore) Initialize() error {
	if err := createTableIfNotExists(s.client, &dynamodb.CreateTableInput{
		TableName: aws.String(s.flowsTable),
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String("FlowID"),
				AttributeType: aws.String("S"),
			},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String("FlowID"),
				KeyType:       aws.String("HASH"),
			},
		},
		BillingMode: aws.String("PAY_PER_REQUEST"),
	}); err != nil {
		return err
	}

	return createTableIfNotExists(s.client, &dynamodb.CreateTableInput{
		TableName: aws.String(s.snapshotsTable),
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String("FlowID"),
				AttributeType: aws.String("S"),
			},
			{
				AttributeName: aws.String("Version"),
				AttributeType: aws.String("N"),
			},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String("FlowID"),
				KeyType:       aws.String("HASH"),
			},
			{
				AttributeName: aws.String("Version"),
				KeyType:       aws.String("RANGE"),
			},
		},
		BillingMode: aws.String("PAY_PER_REQUEST"),
	})
}

// createTableIfNotExists creates a table and waits for it unless it
// already exists
func createTableIfNotExists(client dynamodbiface.DynamoDBAPI, input *dynamodb.CreateTableInput) error {
	_, err := client.DescribeTable(&dynamodb.DescribeTableInput{
		TableName: input.TableName,
	})
	if err == nil {
		return nil
	}

	aerr, ok := err.(awserr.Error)
	if !ok || aerr.Code() != dynamodb.ErrCodeResourceNotFoundException {
		return fmt.Errorf("failed to check if table exists: %w", err)
	}

	if _, err := client.CreateTable(input); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	if err := client.WaitUntilTableExists(&dynamodb.DescribeTableInput{
		TableName: input.TableName,
	}); err != nil {
		return fmt.Errorf("failed to wait for table creation: %w", err)
	}

	return nil
}

// CreateFlow persists a new flow
func (s *DynamoDBFlowStore) CreateFlow(flow models.VersionedFlow) (models.VersionedFlow, error) {
	now := time.Now().Unix()

	item, err := dynamodbattribute.MarshalMap(dynamoFlowItem{
		FlowID:      flow.Identifier,
		Name:        flow.Name,
		Description: flow.Description,
		BucketID:    flow.BucketIdentifier,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return models.VersionedFlow{}, fmt.Errorf("failed to marshal flow: %w", err)
	}

	_, err = s.client.PutItem(&dynamodb.PutItemInput{
		TableName:           aws.String(s.flowsTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(FlowID)"),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return models.VersionedFlow{}, ErrFlowExists
		}
		return models.VersionedFlow{}, fmt.Errorf("failed to put flow: %w", err)
	}

	flow.CreatedAt = now
	flow.UpdatedAt = now
	flow.VersionCount = 0
	flow.SnapshotMetadata = nil

	return flow, nil
}

func flowKey(flowID string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		"FlowID": {S: aws.String(flowID)},
	}
}

func snapshotKey(flowID string, version int) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		"FlowID":  {S: aws.String(flowID)},
		"Version": {N: aws.String(strconv.Itoa(version))},
	}
}

// GetFlow retrieves a flow
func (s *DynamoDBFlowStore) GetFlow(flowID string, verbose bool) (models.VersionedFlow, error) {
	result, err := s.client.GetItem(&dynamodb.GetItemInput{
		TableName:      aws.String(s.flowsTable),
		Key:            flowKey(flowID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return models.VersionedFlow{}, fmt.Errorf("failed to get flow: %w", err)
	}
	if result.Item == nil {
		return models.VersionedFlow{}, ErrFlowNotFound
	}

	var item dynamoFlowItem
	if err := dynamodbattribute.UnmarshalMap(result.Item, &item); err != nil {
		return models.VersionedFlow{}, fmt.Errorf("failed to unmarshal flow: %w", err)
	}

	flow := item.toModel()
	if verbose {
		metadata, err := s.listSnapshotMetadata(flowID)
		if err != nil {
			return models.VersionedFlow{}, err
		}
		flow.SnapshotMetadata = metadata
	}

	return flow, nil
}

// listSnapshotMetadata queries the snapshot table in ascending version
// order without fetching contents
func (s *DynamoDBFlowStore) listSnapshotMetadata(flowID string) ([]models.VersionedFlowSnapshotMetadata, error) {
	var metadata []models.VersionedFlowSnapshotMetadata

	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.snapshotsTable),
		KeyConditionExpression: aws.String("FlowID = :flowId"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":flowId": {S: aws.String(flowID)},
		},
		// Version and Comments are DynamoDB reserved words
		ExpressionAttributeNames: map[string]*string{
			"#v": aws.String("Version"),
			"#c": aws.String("Comments"),
		},
		ProjectionExpression: aws.String("FlowID, #v, #c, Author, CreatedAt"),
		ScanIndexForward:     aws.Bool(true), // Ascending by version
		ConsistentRead:       aws.Bool(true),
	}

	err := s.client.QueryPages(input, func(page *dynamodb.QueryOutput, lastPage bool) bool {
		for _, raw := range page.Items {
			var item dynamoSnapshotItem
			if err := dynamodbattribute.UnmarshalMap(raw, &item); err != nil {
				continue
			}
			metadata = append(metadata, item.toMetadata())
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot metadata: %w", err)
	}

	return metadata, nil
}

// ListFlows returns summaries of all flows
func (s *DynamoDBFlowStore) ListFlows() ([]models.VersionedFlow, error) {
	var flows []models.VersionedFlow

	err := s.client.ScanPages(&dynamodb.ScanInput{
		TableName: aws.String(s.flowsTable),
	}, func(page *dynamodb.ScanOutput, lastPage bool) bool {
		for _, raw := range page.Items {
			var item dynamoFlowItem
			if err := dynamodbattribute.UnmarshalMap(raw, &item); err != nil {
				continue
			}
			flows = append(flows, item.toModel())
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan flows: %w", err)
	}

	return flows, nil
}

// UpdateFlow updates the mutable descriptive fields of a flow
func (s *DynamoDBFlowStore) UpdateFlow(flow models.VersionedFlow) (models.VersionedFlow, error) {
	current, err := s.GetFlow(flow.Identifier, false)
	if err != nil {
		return models.VersionedFlow{}, err
	}

	if flow.Name == "" {
		flow.Name = current.Name
	}
	if flow.BucketIdentifier == "" {
		flow.BucketIdentifier = current.BucketIdentifier
	}

	now := time.Now().Unix()

	_, err = s.client.UpdateItem(&dynamodb.UpdateItemInput{
		TableName:           aws.String(s.flowsTable),
		Key:                 flowKey(flow.Identifier),
		ConditionExpression: aws.String("attribute_exists(FlowID)"),
		UpdateExpression:    aws.String("SET #n = :name, Description = :description, BucketID = :bucket, UpdatedAt = :updated"),
		ExpressionAttributeNames: map[string]*string{
			"#n": aws.String("Name"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":name":        {S: aws.String(flow.Name)},
			":description": {S: aws.String(flow.Description)},
			":bucket":      {S: aws.String(flow.BucketIdentifier)},
			":updated":     {N: aws.String(strconv.FormatInt(now, 10))},
		},
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return models.VersionedFlow{}, ErrFlowNotFound
		}
		return models.VersionedFlow{}, fmt.Errorf("failed to update flow: %w", err)
	}

	return s.GetFlow(flow.Identifier, false)
}

// DeleteFlow removes a flow and all of its snapshots
func (s *DynamoDBFlowStore) DeleteFlow(flowID string) (models.VersionedFlow, error) {
	// Capture the last-known state before deleting
	flow, err := s.GetFlow(flowID, true)
	if err != nil {
		return models.VersionedFlow{}, err
	}

	for _, meta := range flow.SnapshotMetadata {
		if _, err := s.client.DeleteItem(&dynamodb.DeleteItemInput{
			TableName: aws.String(s.snapshotsTable),
			Key:       snapshotKey(flowID, meta.Version),
		}); err != nil {
			return models.VersionedFlow{}, fmt.Errorf("failed to delete snapshot: %w", err)
		}
	}

	if _, err := s.client.DeleteItem(&dynamodb.DeleteItemInput{
		TableName: aws.String(s.flowsTable),
		Key:       flowKey(flowID),
	}); err != nil {
		return models.VersionedFlow{}, fmt.Errorf("failed to delete flow: %w", err)
	}

	return flow, nil
}

// CreateSnapshot assigns the next version number and persists the
// snapshot. The next version is read as the highest existing version plus
// one; a conditional put claims the slot, and a lost race is retried with
// a fresh computation.
func (s *DynamoDBFlowStore) CreateSnapshot(snapshot models.VersionedFlowSnapshot) (models.VersionedFlowSnapshot, error) {
	flowID := snapshot.SnapshotMetadata.FlowIdentifier

	if _, err := s.GetFlow(flowID, false); err != nil {
		return models.VersionedFlowSnapshot{}, err
	}

	for attempt := 0; attempt < versionAssignRetries; attempt++ {
		maxVersion, err := s.maxVersion(flowID)
		if err != nil {
			return models.VersionedFlowSnapshot{}, err
		}

		now := time.Now().Unix()
		candidate := snapshot
		candidate.SnapshotMetadata.Version = maxVersion + 1
		if candidate.SnapshotMetadata.Timestamp == 0 {
			candidate.SnapshotMetadata.Timestamp = now
		}

		item, err := dynamodbattribute.MarshalMap(dynamoSnapshotItem{
			FlowID:    flowID,
			Version:   candidate.SnapshotMetadata.Version,
			Comments:  candidate.SnapshotMetadata.Comments,
			Author:    candidate.SnapshotMetadata.Author,
			CreatedAt: candidate.SnapshotMetadata.Timestamp,
			Contents:  []byte(candidate.FlowContents),
		})
		if err != nil {
			return models.VersionedFlowSnapshot{}, fmt.Errorf("failed to marshal snapshot: %w", err)
		}

		_, err = s.client.PutItem(&dynamodb.PutItemInput{
			TableName: aws.String(s.snapshotsTable),
			Item:      item,
			ExpressionAttributeNames: map[string]*string{
				"#v": aws.String("Version"),
			},
			ConditionExpression: aws.String("attribute_not_exists(FlowID) AND attribute_not_exists(#v)"),
		})
		if err != nil {
			if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
				// Lost the race for this version number, recompute
				continue
			}
			return models.VersionedFlowSnapshot{}, fmt.Errorf("failed to put snapshot: %w", err)
		}

		if err := s.touchFlow(flowID, now); err != nil {
			return models.VersionedFlowSnapshot{}, err
		}

		return candidate, nil
	}

	return models.VersionedFlowSnapshot{}, fmt.Errorf("%w: flow %s", ErrVersionConflict, flowID)
}

// maxVersion returns the highest assigned version for a flow, or 0
func (s *DynamoDBFlowStore) maxVersion(flowID string) (int, error) {
	result, err := s.client.Query(&dynamodb.QueryInput{
		TableName:              aws.String(s.snapshotsTable),
		KeyConditionExpression: aws.String("FlowID = :flowId"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":flowId": {S: aws.String(flowID)},
		},
		ExpressionAttributeNames: map[string]*string{
			"#v": aws.String("Version"),
		},
		ProjectionExpression: aws.String("#v"),
		ScanIndexForward:     aws.Bool(false),
		Limit:                aws.Int64(1),
		ConsistentRead:       aws.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to query max version: %w", err)
	}

	if len(result.Items) == 0 {
		return 0, nil
	}

	var item dynamoSnapshotItem
	if err := dynamodbattribute.UnmarshalMap(result.Items[0], &item); err != nil {
		return 0, fmt.Errorf("failed to unmarshal max version: %w", err)
	}

	return item.Version, nil
}

// touchFlow bumps a flow's modification time and version count after a
// snapshot insert
func (s *DynamoDBFlowStore) touchFlow(flowID string, now int64) error {
	_, err := s.client.UpdateItem(&dynamodb.UpdateItemInput{
		TableName:        aws.String(s.flowsTable),
		Key:              flowKey(flowID),
		UpdateExpression: aws.String("SET UpdatedAt = :updated ADD VersionCount :one"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":updated": {N: aws.String(strconv.FormatInt(now, 10))},
			":one":     {N: aws.String("1")},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to touch flow: %w", err)
	}

	return nil
}

// GetSnapshot retrieves one version of a flow
func (s *DynamoDBFlowStore) GetSnapshot(flowID string, version int) (models.VersionedFlowSnapshot, error) {
	result, err := s.client.GetItem(&dynamodb.GetItemInput{
		TableName:      aws.String(s.snapshotsTable),
		Key:            snapshotKey(flowID, version),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return models.VersionedFlowSnapshot{}, fmt.Errorf("failed to get snapshot: %w", err)
	}

	if result.Item == nil {
		// Distinguish a missing flow from a missing version
		if _, err := s.GetFlow(flowID, false); err != nil {
			return models.VersionedFlowSnapshot{}, err
		}
		return models.VersionedFlowSnapshot{}, ErrVersionNotFound
	}

	var item dynamoSnapshotItem
	if err := dynamodbattribute.UnmarshalMap(result.Item, &item); err != nil {
		return models.VersionedFlowSnapshot{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return models.VersionedFlowSnapshot{
		SnapshotMetadata: item.toMetadata(),
		FlowContents:     item.Contents,
	}, nil
}

// dynamoAccountItem is the accounts table representation of an Account
type dynamoAccountItem struct {
	ID           string `dynamodbav:"ID"`
	Username     string `dynamodbav:"Username"`
	PasswordHash string `dynamodbav:"PasswordHash"`
	APIToken     string `dynamodbav:"APIToken"`
	CreatedAt    int64  `dynamodbav:"CreatedAt"`
	UpdatedAt    int64  `dynamodbav:"UpdatedAt"`
}

// DynamoDBAccountStore implements the AccountStore interface using
// DynamoDB
type DynamoDBAccountStore struct {
	client    dynamodbiface.DynamoDBAPI
	tableName string
}

// NewDynamoDBAccountStore creates a new DynamoDB account store
func NewDynamoDBAccountStore(client dynamodbiface.DynamoDBAPI, tablePrefix string) *DynamoDBAccountStore {
	return &DynamoDBAccountStore{
		client:    client,
		tableName: tablePrefix + "accounts",
	}
}

// Initialize creates the DynamoDB tables if they don't exist
func (s *DynamoDBAccountStore) Initialize() error {
	return createTableIfNotExists(s.client, &dynamodb.CreateTableInput{
		TableName: aws.String(s.tableName),
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String("ID"),
				AttributeType: aws.String("S"),
			},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String("ID"),
				KeyType:       aws.String("HASH"),
			},
		},
		BillingMode: aws.String("PAY_PER_REQUEST"),
	})
}

func accountToItem(account auth.Account) dynamoAccountItem {
	return dynamoAccountItem{
		ID:           account.ID,
		Username:     account.Username,
		PasswordHash: account.PasswordHash,
		APIToken:     account.APIToken,
		CreatedAt:    account.CreatedAt.Unix(),
		UpdatedAt:    account.UpdatedAt.Unix(),
	}
}

func (it dynamoAccountItem) toModel() auth.Account {
	return auth.Account{
		ID:           it.ID,
		Username:     it.Username,
		PasswordHash: it.PasswordHash,
		APIToken:     it.APIToken,
		CreatedAt:    time.Unix(it.CreatedAt, 0),
		UpdatedAt:    time.Unix(it.UpdatedAt, 0),
	}
}

// SaveAccount persists an account
func (s *DynamoDBAccountStore) SaveAccount(account auth.Account) error {
	item, err := dynamodbattribute.MarshalMap(accountToItem(account))
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	_, err = s.client.PutItem(&dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put account: %w", err)
	}

	return nil
}

// GetAccount retrieves an account
func (s *DynamoDBAccountStore) GetAccount(accountID string) (auth.Account, error) {
	result, err := s.client.GetItem(&dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"ID": {S: aws.String(accountID)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return auth.Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	if result.Item == nil {
		return auth.Account{}, ErrAccountNotFound
	}

	var item dynamoAccountItem
	if err := dynamodbattribute.UnmarshalMap(result.Item, &item); err != nil {
		return auth.Account{}, fmt.Errorf("failed to unmarshal account: %w", err)
	}

	return item.toModel(), nil
}

// scanAccountBy scans for the first account matching a single attribute
func (s *DynamoDBAccountStore) scanAccountBy(attribute, value string) (auth.Account, error) {
	result, err := s.client.Scan(&dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String(attribute + " = :value"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":value": {S: aws.String(value)},
		},
	})
	if err != nil {
		return auth.Account{}, fmt.Errorf("failed to scan accounts: %w", err)
	}
	if len(result.Items) == 0 {
		return auth.Account{}, ErrAccountNotFound
	}

	var item dynamoAccountItem
	if err := dynamodbattribute.UnmarshalMap(result.Items[0], &item); err != nil {
		return auth.Account{}, fmt.Errorf("failed to unmarshal account: %w", err)
	}

	return item.toModel(), nil
}

// GetAccountByUsername retrieves an account by username
func (s *DynamoDBAccountStore) GetAccountByUsername(username string) (auth.Account, error) {
	return s.scanAccountBy("Username", username)
}

// GetAccountByToken retrieves an account by API token
func (s *DynamoDBAccountStore) GetAccountByToken(token string) (auth.Account, error) {
	return s.scanAccountBy("APIToken", token)
}

// ListAccounts returns all accounts
func (s *DynamoDBAccountStore) ListAccounts() ([]auth.Account, error) {
	var accounts []auth.Account

	err := s.client.ScanPages(&dynamodb.ScanInput{
		TableName: aws.String(s.tableName),
	}, func(page *dynamodb.ScanOutput, lastPage bool) bool {
		for _, raw := range page.Items {
			var item dynamoAccountItem
			if err := dynamodbattribute.UnmarshalMap(raw, &item); err != nil {
				continue
			}
			accounts = append(accounts, item.toModel())
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan accounts: %w", err)
	}

	return accounts, nil
}

// DeleteAccount removes an account
func (s *DynamoDBAccountStore) DeleteAccount(accountID string) error {
	_, err := s.client.DeleteItem(&dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"ID": {S: aws.String(accountID)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	return nil
}
