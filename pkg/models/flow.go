// Package models defines the entities tracked by the flow registry.
package models

import (
	"encoding/json"
)

// VersionedFlow is a named, versioned flow artifact. Its snapshot metadata
// set is ordered ascending by version number, with at most one entry per
// version.
type VersionedFlow struct {
	// Identifier of the flow. Immutable once assigned.
	Identifier string `json:"identifier"`

	// Name of the flow
	Name string `json:"name"`

	// Description of the flow
	Description string `json:"description,omitempty"`

	// BucketIdentifier is the bucket the flow belongs to
	BucketIdentifier string `json:"bucket_identifier,omitempty"`

	// CreatedAt is when the flow was created (unix seconds)
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is when the flow was last updated (unix seconds)
	UpdatedAt int64 `json:"updated_at"`

	// VersionCount is the number of snapshots the flow has
	VersionCount int `json:"version_count"`

	// SnapshotMetadata holds the flow's version history, ascending by
	// version. Populated only on verbose fetches.
	SnapshotMetadata []VersionedFlowSnapshotMetadata `json:"snapshot_metadata,omitempty"`

	// Link is a discoverability URI attached by the boundary layer
	Link string `json:"link,omitempty"`
}

// VersionedFlowSnapshotMetadata describes one version of a flow without
// carrying its content.
type VersionedFlowSnapshotMetadata struct {
	// FlowIdentifier is the identifier of the owning flow
	FlowIdentifier string `json:"flow_identifier"`

	// Version is the server-assigned, per-flow, strictly increasing
	// positive version number
	Version int `json:"version"`

	// Comments describe the version
	Comments string `json:"comments,omitempty"`

	// Author is who created the version
	Author string `json:"author,omitempty"`

	// Timestamp is when the version was created (unix seconds)
	Timestamp int64 `json:"timestamp"`

	// Link is a discoverability URI attached by the boundary layer
	Link string `json:"link,omitempty"`
}

// VersionedFlowSnapshot is the full content payload for one version of a
// flow. Both the metadata and the contents are immutable after creation.
type VersionedFlowSnapshot struct {
	// SnapshotMetadata describes the version
	SnapshotMetadata VersionedFlowSnapshotMetadata `json:"snapshot_metadata"`

	// FlowContents is the versioned object graph, treated as an opaque
	// serializable blob owned by the caller's domain
	FlowContents json.RawMessage `json:"flow_contents"`
}
