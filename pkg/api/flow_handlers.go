package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/tcmartin/flowregistry/pkg/models"
	"github.com/tcmartin/flowregistry/pkg/registry"
)

// writeRegistryError maps a registry error to its HTTP status. A flow with
// no versions yet reads as not found at this boundary, even though the
// registry keeps the two conditions distinct.
func writeRegistryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, registry.ErrFlowNotFound),
		errors.Is(err, registry.ErrVersionNotFound),
		errors.Is(err, registry.ErrNoVersionsYet):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, registry.ErrFlowExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, registry.ErrVersionConflict):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleListFlows handles listing flows, optionally sorted via repeated
// "sort=field:order" query parameters
func (s *Server) handleListFlows(w http.ResponseWriter, r *http.Request) {
	var params models.QueryParameters
	for _, raw := range r.URL.Query()["sort"] {
		param, err := models.ParseSortParameter(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		params.Sorts = append(params.Sorts, param)
	}

	flows, err := s.registry.GetFlows(params)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	for i := range flows {
		s.links.PopulateFlowLinks(&flows[i])
	}

	writeJSON(w, http.StatusOK, flows)
}

// handleCreateFlow handles flow creation
func (s *Server) handleCreateFlow(w http.ResponseWriter, r *http.Request) {
	var flow models.VersionedFlow
	if err := json.NewDecoder(r.Body).Decode(&flow); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	created, err := s.registry.CreateFlow(flow)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	s.links.PopulateFlowLinks(&created)
	writeJSON(w, http.StatusCreated, created)
}

// handleGetFlowFields returns the field names valid for sorting flows
func (s *Server) handleGetFlowFields(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"fields": s.registry.GetFlowFields(),
	})
}

// handleGetFlow handles retrieving a flow. The verbose query parameter
// controls whether the full version history is included.
func (s *Server) handleGetFlow(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	flowID := vars["flowId"]

	verbose := r.URL.Query().Get("verbose") == "true"

	flow, err := s.registry.GetFlow(flowID, verbose)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	s.links.PopulateFlowLinks(&flow)
	writeJSON(w, http.StatusOK, flow)
}

// handleUpdateFlow handles updating a flow's descriptive fields. The path
// identifier wins; a conflicting body identifier is rejected.
func (s *Server) handleUpdateFlow(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	flowID := vars["flowId"]

	var flow models.VersionedFlow
	if err := json.NewDecoder(r.Body).Decode(&flow); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if flow.Identifier != "" && flow.Identifier != flowID {
		http.Error(w, "Flow id in path must match flow id in body", http.StatusBadRequest)
		return
	}
	flow.Identifier = flowID

	updated, err := s.registry.UpdateFlow(flow)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	s.links.PopulateFlowLinks(&updated)
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteFlow handles deleting a flow along with its snapshots,
// returning the deleted flow's last-known state
func (s *Server) handleDeleteFlow(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	flowID := vars["flowId"]

	deleted, err := s.registry.DeleteFlow(flowID)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, deleted)
}

// handleListVersions handles listing a flow's version history
func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	flowID := vars["flowId"]

	versions, err := s.resolver.ListVersions(flowID)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	for i := range versions {
		s.links.PopulateSnapshotMetadataLinks(&versions[i])
	}

	writeJSON(w, http.StatusOK, versions)
}

// handleCreateVersion handles snapshot creation. The server assigns the
// version number; any caller-supplied value is ignored.
func (s *Server) handleCreateVersion(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	flowID := vars["flowId"]

	var snapshot models.VersionedFlowSnapshot
	if err := json.NewDecoder(r.Body).Decode(&snapshot); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	created, err := s.registry.CreateFlowSnapshot(flowID, snapshot)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	s.links.PopulateSnapshotLinks(&created)
	writeJSON(w, http.StatusCreated, created)
}

// handleGetLatestVersion handles retrieving a flow's highest version
func (s *Server) handleGetLatestVersion(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	flowID := vars["flowId"]

	snapshot, err := s.resolver.LatestVersion(flowID)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	s.links.PopulateSnapshotLinks(&snapshot)
	writeJSON(w, http.StatusOK, snapshot)
}

// handleGetVersion handles retrieving one version of a flow. The route
// constraint guarantees versionNumber is all digits.
func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	flowID := vars["flowId"]

	version, err := strconv.Atoi(vars["versionNumber"])
	if err != nil {
		http.Error(w, "Invalid version number", http.StatusBadRequest)
		return
	}

	snapshot, err := s.resolver.SpecificVersion(flowID, version)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	s.links.PopulateSnapshotLinks(&snapshot)
	writeJSON(w, http.StatusOK, snapshot)
}
