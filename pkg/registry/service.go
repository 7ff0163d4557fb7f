package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/tcmartin/flowregistry/pkg/models"
	"github.com/tcmartin/flowregistry/pkg/storage"
)

// Service implements the RegistryService interface over a storage.FlowStore
type Service struct {
	store storage.FlowStore
}

// NewService creates a new registry service
func NewService(store storage.FlowStore) *Service {
	return &Service{
		store: store,
	}
}

// CreateFlow registers a new flow
func (s *Service) CreateFlow(flow models.VersionedFlow) (models.VersionedFlow, error) {
	if strings.TrimSpace(flow.Name) == "" {
		return models.VersionedFlow{}, fmt.Errorf("%w: flow name cannot be blank", ErrValidation)
	}

	if flow.Identifier == "" {
		flow.Identifier = uuid.New().String()
	}

	created, err := s.store.CreateFlow(flow)
	if err != nil {
		return models.VersionedFlow{}, s.mapStoreError(err)
	}

	return created, nil
}

// GetFlows returns all flows, optionally sorted
func (s *Service) GetFlows(params models.QueryParameters) ([]models.VersionedFlow, error) {
	flows, err := s.store.ListFlows()
	if err != nil {
		return nil, s.mapStoreError(err)
	}

	sortFlows(flows, params.Sorts)

	return flows, nil
}

// GetFlow retrieves a flow
func (s *Service) GetFlow(flowID string, verbose bool) (models.VersionedFlow, error) {
	if strings.TrimSpace(flowID) == "" {
		return models.VersionedFlow{}, fmt.Errorf("%w: flow id cannot be blank", ErrValidation)
	}

	flow, err := s.store.GetFlow(flowID, verbose)
	if err != nil {
		return models.VersionedFlow{}, s.mapStoreError(err)
	}

	return flow, nil
}

// UpdateFlow updates the mutable descriptive fields of an existing flow
func (s *Service) UpdateFlow(flow models.VersionedFlow) (models.VersionedFlow, error) {
	if strings.TrimSpace(flow.Identifier) == "" {
		return models.VersionedFlow{}, fmt.Errorf("%w: flow id cannot be blank", ErrValidation)
	}

	updated, err := s.store.UpdateFlow(flow)
	if err != nil {
		return models.VersionedFlow{}, s.mapStoreError(err)
	}

	return updated, nil
}

// DeleteFlow removes a flow and all of its snapshots
func (s *Service) DeleteFlow(flowID string) (models.VersionedFlow, error) {
	if strings.TrimSpace(flowID) == "" {
		return models.VersionedFlow{}, fmt.Errorf("%w: flow id cannot be blank", ErrValidation)
	}

	deleted, err := s.store.DeleteFlow(flowID)
	if err != nil {
		return models.VersionedFlow{}, s.mapStoreError(err)
	}

	return deleted, nil
}

// CreateFlowSnapshot assigns the next version number for the target flow
// and persists the snapshot. The path-level flowID and the snapshot's own
// flow identifier must agree; when the snapshot declares none, the
// path-level value is adopted. Version numbers are always server-assigned;
// a caller-supplied version is discarded.
func (s *Service) CreateFlowSnapshot(flowID string, snapshot models.VersionedFlowSnapshot) (models.VersionedFlowSnapshot, error) {
	if strings.TrimSpace(flowID) == "" {
		return models.VersionedFlowSnapshot{}, fmt.Errorf("%w: flow id cannot be blank", ErrValidation)
	}

	if len(snapshot.FlowContents) == 0 {
		return models.VersionedFlowSnapshot{}, fmt.Errorf("%w: snapshot contents cannot be empty", ErrValidation)
	}

	bodyFlowID := snapshot.SnapshotMetadata.FlowIdentifier
	if bodyFlowID != "" && bodyFlowID != flowID {
		return models.VersionedFlowSnapshot{}, fmt.Errorf(
			"%w: flow id in path (%s) must match flow id in body (%s)", ErrValidation, flowID, bodyFlowID)
	}
	snapshot.SnapshotMetadata.FlowIdentifier = flowID

	// Version assignment belongs to the store; never trust a
	// caller-supplied value
	snapshot.SnapshotMetadata.Version = 0

	created, err := s.store.CreateSnapshot(snapshot)
	if err != nil {
		return models.VersionedFlowSnapshot{}, s.mapStoreError(err)
	}

	return created, nil
}

// GetFlowSnapshot retrieves one version of a flow
func (s *Service) GetFlowSnapshot(flowID string, version int) (models.VersionedFlowSnapshot, error) {
	if strings.TrimSpace(flowID) == "" {
		return models.VersionedFlowSnapshot{}, fmt.Errorf("%w: flow id cannot be blank", ErrValidation)
	}

	// Versions start at 1
	if version < 1 {
		return models.VersionedFlowSnapshot{}, fmt.Errorf("%w: version must be a positive integer", ErrValidation)
	}

	snapshot, err := s.store.GetSnapshot(flowID, version)
	if err != nil {
		return models.VersionedFlowSnapshot{}, s.mapStoreError(err)
	}

	return snapshot, nil
}

// GetFlowFields returns the field names valid for sorting and searching
func (s *Service) GetFlowFields() []string {
	return models.FlowFields()
}

// mapStoreError translates storage sentinels into the registry's error
// taxonomy, preserving the original as context
func (s *Service) mapStoreError(err error) error {
	switch {
	case errors.Is(err, storage.ErrFlowNotFound):
		return fmt.Errorf("%w", ErrFlowNotFound)
	case errors.Is(err, storage.ErrFlowExists):
		return fmt.Errorf("%w", ErrFlowExists)
	case errors.Is(err, storage.ErrVersionNotFound):
		return fmt.Errorf("%w", ErrVersionNotFound)
	case errors.Is(err, storage.ErrVersionConflict):
		return fmt.Errorf("%w: %v", ErrVersionConflict, err)
	default:
		return err
	}
}

// sortFlows applies the sort parameters in order, earlier entries taking
// precedence. With no parameters flows are sorted by name for a stable
// listing.
func sortFlows(flows []models.VersionedFlow, sorts []models.SortParameter) {
	if len(sorts) == 0 {
		sorts = []models.SortParameter{{Field: models.FieldName, Order: models.SortAscending}}
	}

	sort.SliceStable(flows, func(i, j int) bool {
		for _, param := range sorts {
			cmp := compareFlows(flows[i], flows[j], param.Field)
			if cmp == 0 {
				continue
			}
			if param.Order == models.SortDescending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func compareFlows(a, b models.VersionedFlow, field string) int {
	switch field {
	case models.FieldIdentifier:
		return strings.Compare(a.Identifier, b.Identifier)
	case models.FieldName:
		return strings.Compare(a.Name, b.Name)
	case models.FieldDescription:
		return strings.Compare(a.Description, b.Description)
	case models.FieldBucketIdentifier:
		return strings.Compare(a.BucketIdentifier, b.BucketIdentifier)
	case models.FieldCreated:
		return compareInt64(a.CreatedAt, b.CreatedAt)
	case models.FieldModified:
		return compareInt64(a.UpdatedAt, b.UpdatedAt)
	default:
		return 0
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
