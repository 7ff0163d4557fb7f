package api

import (
	"fmt"
	"strconv"

	"github.com/tcmartin/flowregistry/pkg/models"
)

// LinkService attaches discoverability URIs to entities before they leave
// the boundary layer. Links are additive and never affect identity or
// version semantics.
type LinkService struct {
	base string
}

// NewLinkService creates a link service producing URIs relative to the API
// version prefix
func NewLinkService() *LinkService {
	return &LinkService{
		base: "flows",
	}
}

// PopulateFlowLinks sets the self link on a flow and on any version
// history entries it carries
func (l *LinkService) PopulateFlowLinks(flow *models.VersionedFlow) {
	flow.Link = fmt.Sprintf("%s/%s", l.base, flow.Identifier)
	for i := range flow.SnapshotMetadata {
		l.PopulateSnapshotMetadataLinks(&flow.SnapshotMetadata[i])
	}
}

// PopulateSnapshotMetadataLinks sets the self link on one version's
// metadata
func (l *LinkService) PopulateSnapshotMetadataLinks(metadata *models.VersionedFlowSnapshotMetadata) {
	metadata.Link = fmt.Sprintf("%s/%s/versions/%s",
		l.base, metadata.FlowIdentifier, strconv.Itoa(metadata.Version))
}

// PopulateSnapshotLinks sets the self link on a snapshot's metadata
func (l *LinkService) PopulateSnapshotLinks(snapshot *models.VersionedFlowSnapshot) {
	l.PopulateSnapshotMetadataLinks(&snapshot.SnapshotMetadata)
}
