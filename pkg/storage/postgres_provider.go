package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/tcmartin/flowregistry/pkg/auth"
	"github.com/tcmartin/flowregistry/pkg/models"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint
// violation, raised when two writers race the same (flow_id, version) slot
const uniqueViolation = "23505"

// versionAssignRetries bounds how many times a snapshot insert is retried
// after losing a version-assignment race
const versionAssignRetries = 5

// PostgreSQLProvider implements the StorageProvider interface using
// PostgreSQL
type PostgreSQLProvider struct {
	db           *sql.DB
	flowStore    *PostgreSQLFlowStore
	accountStore *PostgreSQLAccountStore
}

// PostgreSQLProviderConfig contains configuration for the PostgreSQL
// provider
type PostgreSQLProviderConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewPostgreSQLProvider creates a new PostgreSQL storage provider
func NewPostgreSQLProvider(config PostgreSQLProviderConfig) (*PostgreSQLProvider, error) {
	if config.Port == 0 {
		config.Port = 5432
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Database, config.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	provider := &PostgreSQLProvider{
		db: db,
	}

	provider.flowStore = NewPostgreSQLFlowStore(db)
	provider.accountStore = NewPostgreSQLAccountStore(db)

	return provider, nil
}

// Initialize sets up the storage backend
func (p *PostgreSQLProvider) Initialize() error {
	if err := p.flowStore.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize flow store: %w", err)
	}

	if err := p.accountStore.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize account store: %w", err)
	}

	return nil
}

// Close cleans up resources
func (p *PostgreSQLProvider) Close() error {
	return p.db.Close()
}

// GetFlowStore returns a store for flows and their snapshots
func (p *PostgreSQLProvider) GetFlowStore() FlowStore {
	return p.flowStore
}

// GetAccountStore returns a store for account data
func (p *PostgreSQLProvider) GetAccountStore() AccountStore {
	return p.accountStore
}

// PostgreSQLFlowStore implements the FlowStore interface using PostgreSQL
type PostgreSQLFlowStore struct {
	db *sql.DB
}

// NewPostgreSQLFlowStore creates a new PostgreSQL flow store
func NewPostgreSQLFlowStore(db *sql.DB) *PostgreSQLFlowStore {
	return &PostgreSQLFlowStore{
		db: db,
	}
}

// Initialize creates the PostgreSQL tables if they don't exist
func (s *PostgreSQLFlowStore) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS flows (
			flow_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			bucket_id TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
		CREATE TABLE IF NOT EXISTS flow_snapshots (
			flow_id TEXT NOT NULL REFERENCES flows (flow_id) ON DELETE CASCADE,
			version INTEGER NOT NULL CHECK (version > 0),
			comments TEXT,
			author TEXT,
			created_at TIMESTAMP NOT NULL,
			contents BYTEA NOT NULL,
			PRIMARY KEY (flow_id, version)
		);
	`)

	if err != nil {
		return fmt.Errorf("failed to create flow tables: %w", err)
	}

	return nil
}

// CreateFlow persists a new flow
func (s *PostgreSQLFlowStore) CreateFlow(flow models.VersionedFlow) (models.VersionedFlow, error) {
	now := time.Now()

	_, err := s.db.Exec(
		"INSERT INTO flows (flow_id, name, description, bucket_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)",
		flow.Identifier, flow.Name, flow.Description, flow.BucketIdentifier, now, now,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return models.VersionedFlow{}, ErrFlowExists
		}
		return models.VersionedFlow{}, fmt.Errorf("failed to insert flow: %w", err)
	}

	flow.CreatedAt = now.Unix()
	flow.UpdatedAt = now.Unix()
	flow.VersionCount = 0
	flow.SnapshotMetadata = nil

	return flow, nil
}

// GetFlow retrieves a flow
func (s *PostgreSQLFlowStore) GetFlow(flowID string, verbose bool) (models.VersionedFlow, error) {
	flow, err := s.scanFlow(flowID)
	if err != nil {
		return models.VersionedFlow{}, err
	}

	if verbose {
		metadata, err := s.listSnapshotMetadata(flowID)
		if err != nil {
			return models.VersionedFlow{}, err
		}
		flow.SnapshotMetadata = metadata
	}

	return flow, nil
}

func (s *PostgreSQLFlowStore) scanFlow(flowID string) (models.VersionedFlow, error) {
	var flow models.VersionedFlow
	var description, bucketID sql.NullString
	var createdAt, updatedAt time.Time

	err := s.db.QueryRow(
		`SELECT f.flow_id, f.name, f.description, f.bucket_id, f.created_at, f.updated_at,
			(SELECT COUNT(*) FROM flow_snapshots sn WHERE sn.flow_id = f.flow_id)
		FROM flows f WHERE f.flow_id = $1`,
		flowID,
	).Scan(&flow.Identifier, &flow.Name, &description, &bucketID, &createdAt, &updatedAt, &flow.VersionCount)

	if err != nil {
		if err == sql.ErrNoRows {
			return models.VersionedFlow{}, ErrFlowNotFound
		}
		return models.VersionedFlow{}, fmt.Errorf("failed to get flow: %w", err)
	}

	flow.Description = description.String
	flow.BucketIdentifier = bucketID.String
	flow.CreatedAt = createdAt.Unix()
	flow.UpdatedAt = updatedAt.Unix()

	return flow, nil
}

func (s *PostgreSQLFlowStore) listSnapshotMetadata(flowID string) ([]models.VersionedFlowSnapshotMetadata, error) {
	rows, err := s.db.Query(
		"SELECT flow_id, version, comments, author, created_at FROM flow_snapshots WHERE flow_id = $1 ORDER BY version ASC",
		flowID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot metadata: %w", err)
	}
	defer rows.Close()

	var metadata []models.VersionedFlowSnapshotMetadata
	for rows.Next() {
		var meta models.VersionedFlowSnapshotMetadata
		var comments, author sql.NullString
		var createdAt time.Time

		if err := rows.Scan(&meta.FlowIdentifier, &meta.Version, &comments, &author, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot metadata: %w", err)
		}

		meta.Comments = comments.String
		meta.Author = author.String
		meta.Timestamp = createdAt.Unix()

		metadata = append(metadata, meta)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot metadata rows: %w", err)
	}

	return metadata, nil
}

// ListFlows returns summaries of all flows
func (s *PostgreSQLFlowStore) ListFlows() ([]models.VersionedFlow, error) {
	rows, err := s.db.Query(
		`SELECT f.flow_id, f.name, f.description, f.bucket_id, f.created_at, f.updated_at,
			(SELECT COUNT(*) FROM flow_snapshots sn WHERE sn.flow_id = f.flow_id)
		FROM flows f`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}
	defer rows.Close()

	var flows []models.VersionedFlow
	for rows.Next() {
		var flow models.VersionedFlow
		var description, bucketID sql.NullString
		var createdAt, updatedAt time.Time

		if err := rows.Scan(&flow.Identifier, &flow.Name, &description, &bucketID, &createdAt, &updatedAt, &flow.VersionCount); err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}

		flow.Description = description.String
		flow.BucketIdentifier = bucketID.String
		flow.CreatedAt = createdAt.Unix()
		flow.UpdatedAt = updatedAt.Unix()

		flows = append(flows, flow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating flow rows: %w", err)
	}

	return flows, nil
}

// UpdateFlow updates the mutable descriptive fields of a flow
func (s *PostgreSQLFlowStore) UpdateFlow(flow models.VersionedFlow) (models.VersionedFlow, error) {
	result, err := s.db.Exec(
		`UPDATE flows SET
			name = COALESCE(NULLIF($1, ''), name),
			description = $2,
			bucket_id = COALESCE(NULLIF($3, ''), bucket_id),
			updated_at = $4
		WHERE flow_id = $5`,
		flow.Name, flow.Description, flow.BucketIdentifier, time.Now(), flow.Identifier,
	)
	if err != nil {
		return models.VersionedFlow{}, fmt.Errorf("failed to update flow: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return models.VersionedFlow{}, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.VersionedFlow{}, ErrFlowNotFound
	}

	return s.scanFlow(flow.Identifier)
}

// DeleteFlow removes a flow and all of its snapshots
func (s *PostgreSQLFlowStore) DeleteFlow(flowID string) (models.VersionedFlow, error) {
	// Capture the last-known state before the cascade delete
	flow, err := s.GetFlow(flowID, true)
	if err != nil {
		return models.VersionedFlow{}, err
	}

	result, err := s.db.Exec("DELETE FROM flows WHERE flow_id = $1", flowID)
	if err != nil {
		return models.VersionedFlow{}, fmt.Errorf("failed to delete flow: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return models.VersionedFlow{}, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.VersionedFlow{}, ErrFlowNotFound
	}

	return flow, nil
}

// CreateSnapshot assigns the next version number and persists the snapshot.
// The next version is computed as max(version)+1 inside a transaction; a
// concurrent writer that claims the same slot trips the (flow_id, version)
// primary key, and the insert is retried with a fresh computation.
func (s *PostgreSQLFlowStore) CreateSnapshot(snapshot models.VersionedFlowSnapshot) (models.VersionedFlowSnapshot, error) {
	flowID := snapshot.SnapshotMetadata.FlowIdentifier

	for attempt := 0; attempt < versionAssignRetries; attempt++ {
		created, err := s.tryCreateSnapshot(snapshot)
		if err == nil {
			return created, nil
		}
		if err != ErrVersionConflict {
			return models.VersionedFlowSnapshot{}, err
		}
	}

	return models.VersionedFlowSnapshot{}, fmt.Errorf("%w: flow %s", ErrVersionConflict, flowID)
}

func (s *PostgreSQLFlowStore) tryCreateSnapshot(snapshot models.VersionedFlowSnapshot) (models.VersionedFlowSnapshot, error) {
	flowID := snapshot.SnapshotMetadata.FlowIdentifier

	tx, err := s.db.Begin()
	if err != nil {
		return models.VersionedFlowSnapshot{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRow("SELECT EXISTS(SELECT 1 FROM flows WHERE flow_id = $1)", flowID).Scan(&exists); err != nil {
		return models.VersionedFlowSnapshot{}, fmt.Errorf("failed to check if flow exists: %w", err)
	}
	if !exists {
		return models.VersionedFlowSnapshot{}, ErrFlowNotFound
	}

	var nextVersion int
	if err := tx.QueryRow(
		"SELECT COALESCE(MAX(version), 0) + 1 FROM flow_snapshots WHERE flow_id = $1",
		flowID,
	).Scan(&nextVersion); err != nil {
		return models.VersionedFlowSnapshot{}, fmt.Errorf("failed to compute next version: %w", err)
	}

	now := time.Now()

	_, err = tx.Exec(
		"INSERT INTO flow_snapshots (flow_id, version, comments, author, created_at, contents) VALUES ($1, $2, $3, $4, $5, $6)",
		flowID, nextVersion, snapshot.SnapshotMetadata.Comments, snapshot.SnapshotMetadata.Author, now, []byte(snapshot.FlowContents),
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return models.VersionedFlowSnapshot{}, ErrVersionConflict
		}
		return models.VersionedFlowSnapshot{}, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	if _, err := tx.Exec("UPDATE flows SET updated_at = $1 WHERE flow_id = $2", now, flowID); err != nil {
		return models.VersionedFlowSnapshot{}, fmt.Errorf("failed to touch flow: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.VersionedFlowSnapshot{}, fmt.Errorf("failed to commit snapshot: %w", err)
	}

	snapshot.SnapshotMetadata.Version = nextVersion
	snapshot.SnapshotMetadata.Timestamp = now.Unix()

	return snapshot, nil
}

// GetSnapshot retrieves one version of a flow
func (s *PostgreSQLFlowStore) GetSnapshot(flowID string, version int) (models.VersionedFlowSnapshot, error) {
	var snapshot models.VersionedFlowSnapshot
	var comments, author sql.NullString
	var createdAt time.Time
	var contents []byte

	err := s.db.QueryRow(
		"SELECT flow_id, version, comments, author, created_at, contents FROM flow_snapshots WHERE flow_id = $1 AND version = $2",
		flowID, version,
	).Scan(&snapshot.SnapshotMetadata.FlowIdentifier, &snapshot.SnapshotMetadata.Version, &comments, &author, &createdAt, &contents)

	if err != nil {
		if err == sql.ErrNoRows {
			// Distinguish a missing flow from a missing version
			var exists bool
			if err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM flows WHERE flow_id = $1)", flowID).Scan(&exists); err != nil {
				return models.VersionedFlowSnapshot{}, fmt.Errorf("failed to check if flow exists: %w", err)
			}
			if !exists {
				return models.VersionedFlowSnapshot{}, ErrFlowNotFound
			}
			return models.VersionedFlowSnapshot{}, ErrVersionNotFound
		}
		return models.VersionedFlowSnapshot{}, fmt.Errorf("failed to get snapshot: %w", err)
	}

	snapshot.SnapshotMetadata.Comments = comments.String
	snapshot.SnapshotMetadata.Author = author.String
	snapshot.SnapshotMetadata.Timestamp = createdAt.Unix()
	snapshot.FlowContents = contents

	return snapshot, nil
}

// PostgreSQLAccountStore implements the AccountStore interface using
// PostgreSQL
type PostgreSQLAccountStore struct {
	db *sql.DB
}

// NewPostgreSQLAccountStore creates a new PostgreSQL account store
func NewPostgreSQLAccountStore(db *sql.DB) *PostgreSQLAccountStore {
	return &PostgreSQLAccountStore{
		db: db,
	}
}

// Initialize creates the PostgreSQL tables if they don't exist
func (s *PostgreSQLAccountStore) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			api_token TEXT NOT NULL UNIQUE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
	`)

	if err != nil {
		return fmt.Errorf("failed to create accounts table: %w", err)
	}

	return nil
}

// SaveAccount persists an account
func (s *PostgreSQLAccountStore) SaveAccount(account auth.Account) error {
	_, err := s.db.Exec(
		`INSERT INTO accounts (id, username, password_hash, api_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			password_hash = EXCLUDED.password_hash,
			api_token = EXCLUDED.api_token,
			updated_at = EXCLUDED.updated_at`,
		account.ID, account.Username, account.PasswordHash, account.APIToken, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	return nil
}

func (s *PostgreSQLAccountStore) scanAccount(query string, arg interface{}) (auth.Account, error) {
	var account auth.Account

	err := s.db.QueryRow(query, arg).Scan(
		&account.ID,
		&account.Username,
		&account.PasswordHash,
		&account.APIToken,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return auth.Account{}, ErrAccountNotFound
		}
		return auth.Account{}, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// GetAccount retrieves an account
func (s *PostgreSQLAccountStore) GetAccount(accountID string) (auth.Account, error) {
	return s.scanAccount(
		"SELECT id, username, password_hash, api_token, created_at, updated_at FROM accounts WHERE id = $1",
		accountID,
	)
}

// GetAccountByUsername retrieves an account by username
func (s *PostgreSQLAccountStore) GetAccountByUsername(username string) (auth.Account, error) {
	return s.scanAccount(
		"SELECT id, username, password_hash, api_token, created_at, updated_at FROM accounts WHERE username = $1",
		username,
	)
}

// GetAccountByToken retrieves an account by API token
func (s *PostgreSQLAccountStore) GetAccountByToken(token string) (auth.Account, error) {
	return s.scanAccount(
		"SELECT id, username, password_hash, api_token, created_at, updated_at FROM accounts WHERE api_token = $1",
		token,
	)
}

// ListAccounts returns all accounts
func (s *PostgreSQLAccountStore) ListAccounts() ([]auth.Account, error) {
	rows, err := s.db.Query("SELECT id, username, password_hash, api_token, created_at, updated_at FROM accounts")
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []auth.Account
	for rows.Next() {
		var account auth.Account
		if err := rows.Scan(
			&account.ID,
			&account.Username,
			&account.PasswordHash,
			&account.APIToken,
			&account.CreatedAt,
			&account.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account rows: %w", err)
	}

	return accounts, nil
}

// DeleteAccount removes an account
func (s *PostgreSQLAccountStore) DeleteAccount(accountID string) error {
	result, err := s.db.Exec("DELETE FROM accounts WHERE id = $1", accountID)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}
