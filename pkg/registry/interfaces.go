// Package registry implements the core of the flow registry: the accessor
// that enforces identity and version invariants over flow storage, and the
// resolver that implements version-selection policies on top of it.
package registry

import (
	"github.com/tcmartin/flowregistry/pkg/models"
)

// RegistryService is the accessor contract for flows and their snapshots.
// It validates identity and consistency invariants before delegating to
// the underlying flow store, which owns identifier and version assignment.
type RegistryService interface {
	// CreateFlow registers a new flow. A blank identifier is assigned
	// by the server; a caller-supplied identifier is honored if unused.
	CreateFlow(flow models.VersionedFlow) (models.VersionedFlow, error)

	// GetFlows returns all flows, optionally sorted by the given query
	// parameters. Version history is never populated here; callers
	// needing history use GetFlow with verbose set.
	GetFlows(params models.QueryParameters) ([]models.VersionedFlow, error)

	// GetFlow retrieves a flow. When verbose is true the full ordered
	// snapshot metadata set is populated.
	GetFlow(flowID string, verbose bool) (models.VersionedFlow, error)

	// UpdateFlow updates the mutable descriptive fields of an existing
	// flow. The identifier itself is never changed.
	UpdateFlow(flow models.VersionedFlow) (models.VersionedFlow, error)

	// DeleteFlow removes a flow and cascades deletion of all its
	// snapshots, returning the deleted entity's last-known state
	DeleteFlow(flowID string) (models.VersionedFlow, error)

	// CreateFlowSnapshot assigns the next version number for the
	// snapshot's target flow, persists the snapshot and its metadata
	// atomically, and returns the result including the assigned
	// version. flowID is the path-level identifier the snapshot must
	// be consistent with.
	CreateFlowSnapshot(flowID string, snapshot models.VersionedFlowSnapshot) (models.VersionedFlowSnapshot, error)

	// GetFlowSnapshot retrieves one version of a flow
	GetFlowSnapshot(flowID string, version int) (models.VersionedFlowSnapshot, error)

	// GetFlowFields returns the field names valid for sorting and
	// searching flows
	GetFlowFields() []string
}

// FlowVersionResolver implements read-side version selection policies over
// a flow's ordered snapshot metadata set
type FlowVersionResolver interface {
	// ListVersions returns a flow's snapshot metadata in ascending
	// version order
	ListVersions(flowID string) ([]models.VersionedFlowSnapshotMetadata, error)

	// LatestVersion returns the snapshot with the highest version
	// number, or ErrNoVersionsYet when the flow has no snapshots
	LatestVersion(flowID string) (models.VersionedFlowSnapshot, error)

	// SpecificVersion returns one version of a flow
	SpecificVersion(flowID string, version int) (models.VersionedFlowSnapshot, error)
}
