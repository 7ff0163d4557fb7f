// Package storage provides persistence backends for the flow registry.
package storage

import (
	"errors"

	"github.com/tcmartin/flowregistry/pkg/auth"
	"github.com/tcmartin/flowregistry/pkg/models"
)

// Errors returned by storage backends
var (
	ErrFlowNotFound    = errors.New("flow not found")
	ErrFlowExists      = errors.New("flow already exists")
	ErrVersionNotFound = errors.New("flow version not found")
	ErrAccountNotFound = errors.New("account not found")

	// ErrVersionConflict indicates a concurrent write raced the version
	// assignment and the backend exhausted its retries
	ErrVersionConflict = errors.New("version assignment conflict")
)

// StorageProvider defines the interface for persistence backends
type StorageProvider interface {
	// Initialize sets up the storage backend
	Initialize() error

	// Close cleans up resources
	Close() error

	// GetFlowStore returns a store for flows and their snapshots
	GetFlowStore() FlowStore

	// GetAccountStore returns a store for account data
	GetAccountStore() AccountStore
}

// FlowStore manages flow and snapshot persistence. It is the sole owner of
// version assignment: CreateSnapshot computes the next version number for
// the target flow atomically, so concurrent calls against the same flow
// never produce duplicate versions, and calls against different flows never
// serialize with each other.
type FlowStore interface {
	// CreateFlow persists a new flow. The flow's identifier must already
	// be assigned by the caller.
	CreateFlow(flow models.VersionedFlow) (models.VersionedFlow, error)

	// GetFlow retrieves a flow. When verbose is true the full ordered
	// snapshot metadata set is populated; otherwise it is omitted.
	GetFlow(flowID string, verbose bool) (models.VersionedFlow, error)

	// ListFlows returns summaries of all flows, without version history
	ListFlows() ([]models.VersionedFlow, error)

	// UpdateFlow updates the mutable descriptive fields of a flow
	UpdateFlow(flow models.VersionedFlow) (models.VersionedFlow, error)

	// DeleteFlow removes a flow and all of its snapshots, returning the
	// deleted flow's last-known state including its version history
	DeleteFlow(flowID string) (models.VersionedFlow, error)

	// CreateSnapshot assigns the next version number for the snapshot's
	// flow, persists the snapshot and its metadata atomically, and
	// returns the stored snapshot including the assigned version
	CreateSnapshot(snapshot models.VersionedFlowSnapshot) (models.VersionedFlowSnapshot, error)

	// GetSnapshot retrieves one version of a flow
	GetSnapshot(flowID string, version int) (models.VersionedFlowSnapshot, error)
}

// AccountStore manages account persistence
type AccountStore interface {
	// SaveAccount persists an account
	SaveAccount(account auth.Account) error

	// GetAccount retrieves an account
	GetAccount(accountID string) (auth.Account, error)

	// GetAccountByUsername retrieves an account by username
	GetAccountByUsername(username string) (auth.Account, error)

	// GetAccountByToken retrieves an account by API token
	GetAccountByToken(token string) (auth.Account, error)

	// ListAccounts returns all accounts
	ListAccounts() ([]auth.Account, error)

	// DeleteAccount removes an account
	DeleteAccount(accountID string) error
}
