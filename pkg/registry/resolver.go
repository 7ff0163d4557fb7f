package registry

import (
	"fmt"

	"github.com/tcmartin/flowregistry/pkg/models"
)

// VersionResolver implements the FlowVersionResolver interface on top of a
// RegistryService. It introduces no persisted state of its own: every
// policy is a pure read over the accessor.
type VersionResolver struct {
	service RegistryService
}

// NewVersionResolver creates a new version resolver
func NewVersionResolver(service RegistryService) *VersionResolver {
	return &VersionResolver{
		service: service,
	}
}

// ListVersions returns a flow's snapshot metadata in ascending version
// order, the metadata set's natural order
func (r *VersionResolver) ListVersions(flowID string) ([]models.VersionedFlowSnapshotMetadata, error) {
	flow, err := r.service.GetFlow(flowID, true)
	if err != nil {
		return nil, err
	}

	return flow.SnapshotMetadata, nil
}

// LatestVersion resolves the snapshot with the highest version number. A
// flow with no snapshots yields ErrNoVersionsYet, not ErrFlowNotFound: the
// flow itself is valid, there is just nothing to resolve yet.
func (r *VersionResolver) LatestVersion(flowID string) (models.VersionedFlowSnapshot, error) {
	flow, err := r.service.GetFlow(flowID, true)
	if err != nil {
		return models.VersionedFlowSnapshot{}, err
	}

	if len(flow.SnapshotMetadata) == 0 {
		return models.VersionedFlowSnapshot{}, fmt.Errorf("%w: flow %s", ErrNoVersionsYet, flowID)
	}

	// Last entry in ascending order is the highest version
	last := flow.SnapshotMetadata[len(flow.SnapshotMetadata)-1]

	return r.service.GetFlowSnapshot(last.FlowIdentifier, last.Version)
}

// SpecificVersion resolves one version of a flow. The boundary layer only
// admits digit path segments, but non-positive values are still rejected
// here defensively.
func (r *VersionResolver) SpecificVersion(flowID string, version int) (models.VersionedFlowSnapshot, error) {
	if version < 1 {
		return models.VersionedFlowSnapshot{}, fmt.Errorf("%w: version must be a positive integer", ErrValidation)
	}

	return r.service.GetFlowSnapshot(flowID, version)
}
