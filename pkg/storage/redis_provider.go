package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/tcmartin/flowregistry/pkg/auth"
	"github.com/tcmartin/flowregistry/pkg/models"
)

// RedisProvider implements the StorageProvider interface using Redis
type RedisProvider struct {
	client       *redis.Client
	flowStore    *RedisFlowStore
	accountStore *RedisAccountStore
}

// RedisProviderConfig contains configuration for the Redis provider
type RedisProviderConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedisProvider creates a new Redis storage provider
func NewRedisProvider(config RedisProviderConfig) (*RedisProvider, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return NewRedisProviderWithClient(client, config.KeyPrefix), nil
}

// NewRedisProviderWithClient creates a new Redis storage provider with a
// custom client. This is primarily used for testing with miniredis.
func NewRedisProviderWithClient(client *redis.Client, keyPrefix string) *RedisProvider {
	if keyPrefix == "" {
		keyPrefix = "flowregistry:"
	}

	provider := &RedisProvider{
		client: client,
	}

	provider.flowStore = NewRedisFlowStore(client, keyPrefix)
	provider.accountStore = NewRedisAccountStore(client, keyPrefix)

	return provider
}

// Initialize sets up the storage backend
func (p *RedisProvider) Initialize() error {
	ctx := context.Background()
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

// Close cleans up resources
func (p *RedisProvider) Close() error {
	return p.client.Close()
}

// GetFlowStore returns a store for flows and their snapshots
func (p *RedisProvider) GetFlowStore() FlowStore {
	return p.flowStore
}

// GetAccountStore returns a store for account data
func (p *RedisProvider) GetAccountStore() AccountStore {
	return p.accountStore
}

// RedisFlowStore implements the FlowStore interface using Redis.
//
// Layout per flow:
//   - {prefix}flows                      SET of flow identifiers
//   - {prefix}flow:{id}                  HASH of descriptive fields plus a
//     version counter
//   - {prefix}flow:{id}:versions         ZSET of snapshot metadata JSON,
//     scored by version number
//   - {prefix}flow:{id}:snapshot:{n}     STRING holding the full snapshot
//
// Version assignment uses HINCRBY on the per-flow counter, which is atomic
// in Redis, so concurrent snapshot creations never collide and flows never
// serialize with each other.
type RedisFlowStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisFlowStore creates a new Redis flow store
func NewRedisFlowStore(client *redis.Client, keyPrefix string) *RedisFlowStore {
	return &RedisFlowStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (s *RedisFlowStore) flowsKey() string {
	return s.keyPrefix + "flows"
}

func (s *RedisFlowStore) flowKey(flowID string) string {
	return s.keyPrefix + "flow:" + flowID
}

func (s *RedisFlowStore) versionsKey(flowID string) string {
	return s.keyPrefix + "flow:" + flowID + ":versions"
}

func (s *RedisFlowStore) snapshotKey(flowID string, version int) string {
	return s.keyPrefix + "flow:" + flowID + ":snapshot:" + strconv.Itoa(version)
}

// CreateFlow persists a new flow
func (s *RedisFlowStore) CreateFlow(flow models.VersionedFlow) (models.VersionedFlow, error) {
	ctx := context.Background()

	added, err := s.client.SAdd(ctx, s.flowsKey(), flow.Identifier).Result()
	if err != nil {
		return models.VersionedFlow{}, fmt.Errorf("failed to register flow: %w", err)
	}
	if added == 0 {
		return models.VersionedFlow{}, ErrFlowExists
	}

	now := time.Now().Unix()
	flow.CreatedAt = now
	flow.UpdatedAt = now
	flow.VersionCount = 0
	flow.SnapshotMetadata = nil

	if err := s.client.HSet(ctx, s.flowKey(flow.Identifier), map[string]interface{}{
		"identifier":        flow.Identifier,
		"name":              flow.Name,
		"description":       flow.Description,
		"bucket_identifier": flow.BucketIdentifier,
		"created_at":        now,
		"updated_at":        now,
		"version_counter":   0,
	}).Err(); err != nil {
		return models.VersionedFlow{}, fmt.Errorf("failed to save flow: %w", err)
	}

	return flow, nil
}

// scanFlow reads a flow hash into a model
func (s *RedisFlowStore) scanFlow(ctx context.Context, flowID string) (models.VersionedFlow, error) {
	fields, err := s.client.HGetAll(ctx, s.flowKey(flowID)).Result()
	if err != nil {
		return models.VersionedFlow{}, fmt.Errorf("failed to get flow: %w", err)
	}
	if len(fields) == 0 {
		return models.VersionedFlow{}, ErrFlowNotFound
	}

	createdAt, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	updatedAt, _ := strconv.ParseInt(fields["updated_at"], 10, 64)

	flow := models.VersionedFlow{
		Identifier:       fields["identifier"],
		Name:             fields["name"],
		Description:      fields["description"],
		BucketIdentifier: fields["bucket_identifier"],
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}

	count, err := s.client.ZCard(ctx, s.versionsKey(flowID)).Result()
	if err != nil {
		return models.VersionedFlow{}, fmt.Errorf("failed to count versions: %w", err)
	}
	flow.VersionCount = int(count)

	return flow, nil
}

// GetFlow retrieves a flow
func (s *RedisFlowStore) GetFlow(flowID string, verbose bool) (models.VersionedFlow, error) {
	ctx := context.Background()

	flow, err := s.scanFlow(ctx, flowID)
	if err != nil {
		return models.VersionedFlow{}, err
	}

	if verbose {
		metadata, err := s.listSnapshotMetadata(ctx, flowID)
		if err != nil {
			return models.VersionedFlow{}, err
		}
		flow.SnapshotMetadata = metadata
	}

	return flow, nil
}

// listSnapshotMetadata returns the metadata ZSET in ascending version
// order
func (s *RedisFlowStore) listSnapshotMetadata(ctx context.Context, flowID string) ([]models.VersionedFlowSnapshotMetadata, error) {
	members, err := s.client.ZRange(ctx, s.versionsKey(flowID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot metadata: %w", err)
	}

	var metadata []models.VersionedFlowSnapshotMetadata
	for _, member := range members {
		var meta models.VersionedFlowSnapshotMetadata
		if err := json.Unmarshal([]byte(member), &meta); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot metadata: %w", err)
		}
		metadata = append(metadata, meta)
	}

	return metadata, nil
}

// ListFlows returns summaries of all flows
func (s *RedisFlowStore) ListFlows() ([]models.VersionedFlow, error) {
	ctx := context.Background()

	flowIDs, err := s.client.SMembers(ctx, s.flowsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	flows := make([]models.VersionedFlow, 0, len(flowIDs))
	for _, flowID := range flowIDs {
		flow, err := s.scanFlow(ctx, flowID)
		if err != nil {
			if err == ErrFlowNotFound {
				// Deleted concurrently
				continue
			}
			return nil, err
		}
		flows = append(flows, flow)
	}

	return flows, nil
}

// UpdateFlow updates the mutable descriptive fields of a flow
func (s *RedisFlowStore) UpdateFlow(flow models.VersionedFlow) (models.VersionedFlow, error) {
	ctx := context.Background()

	current, err := s.scanFlow(ctx, flow.Identifier)
	if err != nil {
		return models.VersionedFlow{}, err
	}

	if flow.Name == "" {
		flow.Name = current.Name
	}
	if flow.BucketIdentifier == "" {
		flow.BucketIdentifier = current.BucketIdentifier
	}

	if err := s.client.HSet(ctx, s.flowKey(flow.Identifier), map[string]interface{}{
		"name":              flow.Name,
		"description":       flow.Description,
		"bucket_identifier": flow.BucketIdentifier,
		"updated_at":        time.Now().Unix(),
	}).Err(); err != nil {
		return models.VersionedFlow{}, fmt.Errorf("failed to update flow: %w", err)
	}

	return s.scanFlow(ctx, flow.Identifier)
}

// DeleteFlow removes a flow and all of its snapshots
func (s *RedisFlowStore) DeleteFlow(flowID string) (models.VersionedFlow, error) {
	ctx := context.Background()

	// Capture the last-known state before deleting
	flow, err := s.GetFlow(flowID, true)
	if err != nil {
		return models.VersionedFlow{}, err
	}

	keys := []string{s.flowKey(flowID), s.versionsKey(flowID)}
	for _, meta := range flow.SnapshotMetadata {
		keys = append(keys, s.snapshotKey(flowID, meta.Version))
	}

	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, s.flowsKey(), flowID)
	pipe.Del(ctx, keys...)
	if _, err := pipe.Exec(ctx); err != nil {
		return models.VersionedFlow{}, fmt.Errorf("failed to delete flow: %w", err)
	}

	return flow, nil
}

// CreateSnapshot assigns the next version number and persists the snapshot
func (s *RedisFlowStore) CreateSnapshot(snapshot models.VersionedFlowSnapshot) (models.VersionedFlowSnapshot, error) {
	ctx := context.Background()
	flowID := snapshot.SnapshotMetadata.FlowIdentifier

	exists, err := s.client.Exists(ctx, s.flowKey(flowID)).Result()
	if err != nil {
		return models.VersionedFlowSnapshot{}, fmt.Errorf("failed to check if flow exists: %w", err)
	}
	if exists == 0 {
		return models.VersionedFlowSnapshot{}, ErrFlowNotFound
	}

	version, err := s.client.HIncrBy(ctx, s.flowKey(flowID), "version_counter", 1).Result()
	if err != nil {
		return models.VersionedFlowSnapshot{}, fmt.Errorf("failed to assign version: %w", err)
	}

	now := time.Now().Unix()
	snapshot.SnapshotMetadata.Version = int(version)
	if snapshot.SnapshotMetadata.Timestamp == 0 {
		snapshot.SnapshotMetadata.Timestamp = now
	}

	metaJSON, err := json.Marshal(snapshot.SnapshotMetadata)
	if err != nil {
		return models.VersionedFlowSnapshot{}, fmt.Errorf("failed to encode snapshot metadata: %w", err)
	}

	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return models.VersionedFlowSnapshot{}, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, s.versionsKey(flowID), &redis.Z{
		Score:  float64(version),
		Member: string(metaJSON),
	})
	pipe.Set(ctx, s.snapshotKey(flowID, int(version)), snapshotJSON, 0)
	pipe.HSet(ctx, s.flowKey(flowID), "updated_at", now)
	if _, err := pipe.Exec(ctx); err != nil {
		return models.VersionedFlowSnapshot{}, fmt.Errorf("failed to save snapshot: %w", err)
	}

	return snapshot, nil
}

// GetSnapshot retrieves one version of a flow
func (s *RedisFlowStore) GetSnapshot(flowID string, version int) (models.VersionedFlowSnapshot, error) {
	ctx := context.Background()

	raw, err := s.client.Get(ctx, s.snapshotKey(flowID, version)).Result()
	if err != nil {
		if err == redis.Nil {
			exists, err := s.client.Exists(ctx, s.flowKey(flowID)).Result()
			if err != nil {
				return models.VersionedFlowSnapshot{}, fmt.Errorf("failed to check if flow exists: %w", err)
			}
			if exists == 0 {
				return models.VersionedFlowSnapshot{}, ErrFlowNotFound
			}
			return models.VersionedFlowSnapshot{}, ErrVersionNotFound
		}
		return models.VersionedFlowSnapshot{}, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snapshot models.VersionedFlowSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return models.VersionedFlowSnapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	return snapshot, nil
}

// redisAccountRecord carries the credential fields that auth.Account
// hides from its API serialization
type redisAccountRecord struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	APIToken     string `json:"api_token"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

func (r redisAccountRecord) toModel() auth.Account {
	return auth.Account{
		ID:           r.ID,
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		APIToken:     r.APIToken,
		CreatedAt:    time.Unix(r.CreatedAt, 0),
		UpdatedAt:    time.Unix(r.UpdatedAt, 0),
	}
}

// RedisAccountStore implements the AccountStore interface using Redis
type RedisAccountStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisAccountStore creates a new Redis account store
func NewRedisAccountStore(client *redis.Client, keyPrefix string) *RedisAccountStore {
	return &RedisAccountStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (s *RedisAccountStore) accountKey(accountID string) string {
	return s.keyPrefix + "account:" + accountID
}

func (s *RedisAccountStore) accountsKey() string {
	return s.keyPrefix + "accounts"
}

func (s *RedisAccountStore) byNameKey() string {
	return s.keyPrefix + "accounts_by_name"
}

func (s *RedisAccountStore) byTokenKey() string {
	return s.keyPrefix + "accounts_by_token"
}

// SaveAccount persists an account
func (s *RedisAccountStore) SaveAccount(account auth.Account) error {
	ctx := context.Background()

	data, err := json.Marshal(redisAccountRecord{
		ID:           account.ID,
		Username:     account.Username,
		PasswordHash: account.PasswordHash,
		APIToken:     account.APIToken,
		CreatedAt:    account.CreatedAt.Unix(),
		UpdatedAt:    account.UpdatedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode account: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.accountKey(account.ID), data, 0)
	pipe.SAdd(ctx, s.accountsKey(), account.ID)
	pipe.HSet(ctx, s.byNameKey(), account.Username, account.ID)
	pipe.HSet(ctx, s.byTokenKey(), account.APIToken, account.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	return nil
}

// GetAccount retrieves an account
func (s *RedisAccountStore) GetAccount(accountID string) (auth.Account, error) {
	ctx := context.Background()

	raw, err := s.client.Get(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		if err == redis.Nil {
			return auth.Account{}, ErrAccountNotFound
		}
		return auth.Account{}, fmt.Errorf("failed to get account: %w", err)
	}

	var record redisAccountRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return auth.Account{}, fmt.Errorf("failed to decode account: %w", err)
	}

	return record.toModel(), nil
}

// getAccountByIndex resolves an account through a secondary index hash
func (s *RedisAccountStore) getAccountByIndex(indexKey, field string) (auth.Account, error) {
	ctx := context.Background()

	accountID, err := s.client.HGet(ctx, indexKey, field).Result()
	if err != nil {
		if err == redis.Nil {
			return auth.Account{}, ErrAccountNotFound
		}
		return auth.Account{}, fmt.Errorf("failed to resolve account: %w", err)
	}

	return s.GetAccount(accountID)
}

// GetAccountByUsername retrieves an account by username
func (s *RedisAccountStore) GetAccountByUsername(username string) (auth.Account, error) {
	return s.getAccountByIndex(s.byNameKey(), username)
}

// GetAccountByToken retrieves an account by API token
func (s *RedisAccountStore) GetAccountByToken(token string) (auth.Account, error) {
	return s.getAccountByIndex(s.byTokenKey(), token)
}

// ListAccounts returns all accounts
func (s *RedisAccountStore) ListAccounts() ([]auth.Account, error) {
	ctx := context.Background()

	accountIDs, err := s.client.SMembers(ctx, s.accountsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	accounts := make([]auth.Account, 0, len(accountIDs))
	for _, accountID := range accountIDs {
		account, err := s.GetAccount(accountID)
		if err != nil {
			if err == ErrAccountNotFound {
				continue
			}
			return nil, err
		}
		accounts = append(accounts, account)
	}

	return accounts, nil
}

// DeleteAccount removes an account
func (s *RedisAccountStore) DeleteAccount(accountID string) error {
	ctx := context.Background()

	account, err := s.GetAccount(accountID)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.accountKey(accountID))
	pipe.SRem(ctx, s.accountsKey(), accountID)
	pipe.HDel(ctx, s.byNameKey(), account.Username)
	pipe.HDel(ctx, s.byTokenKey(), account.APIToken)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	return nil
}
