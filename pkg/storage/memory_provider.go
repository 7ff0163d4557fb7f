package storage

import (
	"sync"
	"time"

	"github.com/tcmartin/flowregistry/pkg/auth"
	"github.com/tcmartin/flowregistry/pkg/models"
)

// MemoryProvider implements the StorageProvider interface using in-memory
// storage
type MemoryProvider struct {
	flowStore    *MemoryFlowStore
	accountStore *MemoryAccountStore
}

// NewMemoryProvider creates a new in-memory storage provider
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		flowStore:    NewMemoryFlowStore(),
		accountStore: NewMemoryAccountStore(),
	}
}

// Initialize sets up the storage backend
func (p *MemoryProvider) Initialize() error {
	// Nothing to initialize for in-memory storage
	return nil
}

// Close cleans up resources
func (p *MemoryProvider) Close() error {
	// Nothing to close for in-memory storage
	return nil
}

// GetFlowStore returns a store for flows and their snapshots
func (p *MemoryProvider) GetFlowStore() FlowStore {
	return p.flowStore
}

// GetAccountStore returns a store for account data
func (p *MemoryProvider) GetAccountStore() AccountStore {
	return p.accountStore
}

// flowEntry holds one flow's state. Each entry carries its own mutex so
// that version assignment for one flow never blocks another flow.
type flowEntry struct {
	mu         sync.Mutex
	flow       models.VersionedFlow
	metadata   []models.VersionedFlowSnapshotMetadata
	snapshots  map[int]models.VersionedFlowSnapshot
	maxVersion int
}

// MemoryFlowStore implements the FlowStore interface using in-memory
// storage
type MemoryFlowStore struct {
	flows map[string]*flowEntry
	mu    sync.RWMutex
}

// NewMemoryFlowStore creates a new in-memory flow store
func NewMemoryFlowStore() *MemoryFlowStore {
	return &MemoryFlowStore{
		flows: make(map[string]*flowEntry),
	}
}

// CreateFlow persists a new flow
func (s *MemoryFlowStore) CreateFlow(flow models.VersionedFlow) (models.VersionedFlow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.flows[flow.Identifier]; ok {
		return models.VersionedFlow{}, ErrFlowExists
	}

	now := time.Now().Unix()
	flow.CreatedAt = now
	flow.UpdatedAt = now
	flow.VersionCount = 0
	flow.SnapshotMetadata = nil

	s.flows[flow.Identifier] = &flowEntry{
		flow:      flow,
		snapshots: make(map[int]models.VersionedFlowSnapshot),
	}

	return flow, nil
}

// GetFlow retrieves a flow
func (s *MemoryFlowStore) GetFlow(flowID string, verbose bool) (models.VersionedFlow, error) {
	s.mu.RLock()
	entry, ok := s.flows[flowID]
	s.mu.RUnlock()

	if !ok {
		return models.VersionedFlow{}, ErrFlowNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	flow := entry.flow
	if verbose {
		flow.SnapshotMetadata = copyMetadata(entry.metadata)
	}

	return flow, nil
}

// ListFlows returns summaries of all flows
func (s *MemoryFlowStore) ListFlows() ([]models.VersionedFlow, error) {
	s.mu.RLock()
	entries := make([]*flowEntry, 0, len(s.flows))
	for _, entry := range s.flows {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	flows := make([]models.VersionedFlow, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		flows = append(flows, entry.flow)
		entry.mu.Unlock()
	}

	return flows, nil
}

// UpdateFlow updates the mutable descriptive fields of a flow
func (s *MemoryFlowStore) UpdateFlow(flow models.VersionedFlow) (models.VersionedFlow, error) {
	s.mu.RLock()
	entry, ok := s.flows[flow.Identifier]
	s.mu.RUnlock()

	if !ok {
		return models.VersionedFlow{}, ErrFlowNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if flow.Name != "" {
		entry.flow.Name = flow.Name
	}
	entry.flow.Description = flow.Description
	if flow.BucketIdentifier != "" {
		entry.flow.BucketIdentifier = flow.BucketIdentifier
	}
	entry.flow.UpdatedAt = time.Now().Unix()

	return entry.flow, nil
}

// DeleteFlow removes a flow and all of its snapshots
func (s *MemoryFlowStore) DeleteFlow(flowID string) (models.VersionedFlow, error) {
	s.mu.Lock()
	entry, ok := s.flows[flowID]
	if !ok {
		s.mu.Unlock()
		return models.VersionedFlow{}, ErrFlowNotFound
	}
	delete(s.flows, flowID)
	s.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	flow := entry.flow
	flow.SnapshotMetadata = copyMetadata(entry.metadata)

	return flow, nil
}

// CreateSnapshot assigns the next version number and persists the snapshot
func (s *MemoryFlowStore) CreateSnapshot(snapshot models.VersionedFlowSnapshot) (models.VersionedFlowSnapshot, error) {
	flowID := snapshot.SnapshotMetadata.FlowIdentifier

	s.mu.RLock()
	entry, ok := s.flows[flowID]
	s.mu.RUnlock()

	if !ok {
		return models.VersionedFlowSnapshot{}, ErrFlowNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := time.Now().Unix()
	entry.maxVersion++

	snapshot.SnapshotMetadata.Version = entry.maxVersion
	if snapshot.SnapshotMetadata.Timestamp == 0 {
		snapshot.SnapshotMetadata.Timestamp = now
	}

	entry.metadata = append(entry.metadata, snapshot.SnapshotMetadata)
	entry.snapshots[entry.maxVersion] = snapshot
	entry.flow.VersionCount = len(entry.metadata)
	entry.flow.UpdatedAt = now

	return snapshot, nil
}

// GetSnapshot retrieves one version of a flow
func (s *MemoryFlowStore) GetSnapshot(flowID string, version int) (models.VersionedFlowSnapshot, error) {
	s.mu.RLock()
	entry, ok := s.flows[flowID]
	s.mu.RUnlock()

	if !ok {
		return models.VersionedFlowSnapshot{}, ErrFlowNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	snapshot, ok := entry.snapshots[version]
	if !ok {
		return models.VersionedFlowSnapshot{}, ErrVersionNotFound
	}

	return snapshot, nil
}

// copyMetadata returns a copy of the metadata slice so callers never alias
// the store's internal history
func copyMetadata(metadata []models.VersionedFlowSnapshotMetadata) []models.VersionedFlowSnapshotMetadata {
	if len(metadata) == 0 {
		return nil
	}
	out := make([]models.VersionedFlowSnapshotMetadata, len(metadata))
	copy(out, metadata)
	return out
}

// MemoryAccountStore implements the AccountStore interface using in-memory
// storage
type MemoryAccountStore struct {
	accounts        map[string]auth.Account
	accountsByName  map[string]string
	accountsByToken map[string]string
	mu              sync.RWMutex
}

// NewMemoryAccountStore creates a new in-memory account store
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		accounts:        make(map[string]auth.Account),
		accountsByName:  make(map[string]string),
		accountsByToken: make(map[string]string),
	}
}

// SaveAccount persists an account
func (s *MemoryAccountStore) SaveAccount(account auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[account.ID] = account
	s.accountsByName[account.Username] = account.ID
	s.accountsByToken[account.APIToken] = account.ID

	return nil
}

// GetAccount retrieves an account
func (s *MemoryAccountStore) GetAccount(accountID string) (auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return auth.Account{}, ErrAccountNotFound
	}

	return account, nil
}

// GetAccountByUsername retrieves an account by username
func (s *MemoryAccountStore) GetAccountByUsername(username string) (auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accountID, ok := s.accountsByName[username]
	if !ok {
		return auth.Account{}, ErrAccountNotFound
	}

	account, ok := s.accounts[accountID]
	if !ok {
		return auth.Account{}, ErrAccountNotFound
	}

	return account, nil
}

// GetAccountByToken retrieves an account by API token
func (s *MemoryAccountStore) GetAccountByToken(token string) (auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accountID, ok := s.accountsByToken[token]
	if !ok {
		return auth.Account{}, ErrAccountNotFound
	}

	account, ok := s.accounts[accountID]
	if !ok {
		return auth.Account{}, ErrAccountNotFound
	}

	return account, nil
}

// ListAccounts returns all accounts
func (s *MemoryAccountStore) ListAccounts() ([]auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accountList := make([]auth.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		accountList = append(accountList, account)
	}

	return accountList, nil
}

// DeleteAccount removes an account
func (s *MemoryAccountStore) DeleteAccount(accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}

	delete(s.accounts, accountID)
	delete(s.accountsByName, account.Username)
	delete(s.accountsByToken, account.APIToken)

	return nil
}
