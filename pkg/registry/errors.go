package registry

import (
	"errors"
)

// Errors returned by the registry. Callers distinguish the kinds with
// errors.Is; the boundary layer maps each kind to its own status signal.
var (
	// ErrValidation indicates malformed or self-contradictory input:
	// blank identifiers, missing payloads, path/body mismatches
	ErrValidation = errors.New("validation failed")

	// ErrFlowNotFound indicates the referenced flow does not exist
	ErrFlowNotFound = errors.New("flow not found")

	// ErrFlowExists indicates a create collided with an existing flow
	ErrFlowExists = errors.New("flow already exists")

	// ErrVersionNotFound indicates the flow exists but the requested
	// version does not
	ErrVersionNotFound = errors.New("flow version not found")

	// ErrNoVersionsYet indicates the flow exists but no snapshot has
	// been created for it, so there is no latest version to resolve.
	// Distinct from ErrFlowNotFound: the flow itself is valid.
	ErrNoVersionsYet = errors.New("flow has no versions")

	// ErrVersionConflict indicates concurrent snapshot creation raced
	// the version assignment and the storage layer exhausted its
	// internal retries
	ErrVersionConflict = errors.New("version assignment conflict")
)
