package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcmartin/flowregistry/pkg/config"
	"github.com/tcmartin/flowregistry/pkg/models"
	"github.com/tcmartin/flowregistry/pkg/registry"
	"github.com/tcmartin/flowregistry/pkg/services"
	"github.com/tcmartin/flowregistry/pkg/storage"
)

type testServer struct {
	server *Server
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	provider := storage.NewMemoryProvider()
	require.NoError(t, provider.Initialize())

	registryService := registry.NewService(provider.GetFlowStore())
	resolver := registry.NewVersionResolver(registryService)
	accountService := services.NewAccountService(provider.GetAccountStore())
	jwtService := services.NewJWTService("test-secret", 1)

	server := NewServer(config.DefaultConfig(), registryService, resolver, accountService, jwtService)

	accountID, err := accountService.CreateAccount("tester", "password123")
	require.NoError(t, err)
	account, err := accountService.GetAccount(accountID)
	require.NoError(t, err)

	return &testServer{
		server: server,
		token:  account.APIToken,
	}
}

// do sends a request through the router with bearer auth
func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(data)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+ts.token)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) createFlow(t *testing.T, name string) models.VersionedFlow {
	t.Helper()

	rec := ts.do(t, http.MethodPost, "/api/v1/flows", map[string]string{"name": name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var flow models.VersionedFlow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &flow))
	return flow
}

func (ts *testServer) createVersion(t *testing.T, flowID string) models.VersionedFlowSnapshot {
	t.Helper()

	rec := ts.do(t, http.MethodPost, "/api/v1/flows/"+flowID+"/versions", map[string]interface{}{
		"flow_contents": map[string]interface{}{"nodes": []string{}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var snapshot models.VersionedFlowSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	return snapshot
}

func TestHealthEndpointIsPublic(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFlowRoutesRequireAuth(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/flows", nil)
	rec := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"username": "tester", "password": "password123"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/login", bytes.NewBuffer(body))
	rec := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "tester", resp.Username)

	// Bad credentials are rejected
	body, _ = json.Marshal(map[string]string{"username": "tester", "password": "wrong"})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/login", bytes.NewBuffer(body))
	rec = httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFlowLifecycle(t *testing.T) {
	ts := newTestServer(t)

	flow := ts.createFlow(t, "My Flow")
	assert.NotEmpty(t, flow.Identifier)
	assert.Equal(t, "flows/"+flow.Identifier, flow.Link)

	// Get
	rec := ts.do(t, http.MethodGet, "/api/v1/flows/"+flow.Identifier, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Update
	rec = ts.do(t, http.MethodPut, "/api/v1/flows/"+flow.Identifier, map[string]string{
		"name":        "Renamed",
		"description": "now described",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated models.VersionedFlow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "Renamed", updated.Name)

	// Conflicting body identifier is rejected
	rec = ts.do(t, http.MethodPut, "/api/v1/flows/"+flow.Identifier, map[string]string{
		"identifier": "someone-else",
		"name":       "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Delete returns the last-known state
	ts.createVersion(t, flow.Identifier)
	rec = ts.do(t, http.MethodDelete, "/api/v1/flows/"+flow.Identifier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var deleted models.VersionedFlow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &deleted))
	assert.Len(t, deleted.SnapshotMetadata, 1)

	// Gone afterwards
	rec = ts.do(t, http.MethodGet, "/api/v1/flows/"+flow.Identifier, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFlowValidationErrors(t *testing.T) {
	ts := newTestServer(t)

	// Blank name
	rec := ts.do(t, http.MethodPost, "/api/v1/flows", map[string]string{"name": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Duplicate identifier
	ts.do(t, http.MethodPost, "/api/v1/flows", map[string]string{"identifier": "dup", "name": "a"})
	rec = ts.do(t, http.MethodPost, "/api/v1/flows", map[string]string{"identifier": "dup", "name": "b"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestVersionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	flow := ts.createFlow(t, "My Flow")

	// Latest on an empty history is 404
	rec := ts.do(t, http.MethodGet, "/api/v1/flows/"+flow.Identifier+"/versions/latest", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Create three versions; they come back 1, 2, 3
	for i := 1; i <= 3; i++ {
		snapshot := ts.createVersion(t, flow.Identifier)
		assert.Equal(t, i, snapshot.SnapshotMetadata.Version)
		assert.Equal(t,
			fmt.Sprintf("flows/%s/versions/%d", flow.Identifier, i),
			snapshot.SnapshotMetadata.Link)
	}

	// Listing returns ascending history
	rec = ts.do(t, http.MethodGet, "/api/v1/flows/"+flow.Identifier+"/versions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var versions []models.VersionedFlowSnapshotMetadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &versions))
	require.Len(t, versions, 3)
	for i, meta := range versions {
		assert.Equal(t, i+1, meta.Version)
	}

	// Latest resolves to the highest version
	rec = ts.do(t, http.MethodGet, "/api/v1/flows/"+flow.Identifier+"/versions/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var latest models.VersionedFlowSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &latest))
	assert.Equal(t, 3, latest.SnapshotMetadata.Version)

	// Specific version
	rec = ts.do(t, http.MethodGet, "/api/v1/flows/"+flow.Identifier+"/versions/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Missing version
	rec = ts.do(t, http.MethodGet, "/api/v1/flows/"+flow.Identifier+"/versions/9", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Non-numeric version segments never match the route
	rec = ts.do(t, http.MethodGet, "/api/v1/flows/"+flow.Identifier+"/versions/abc", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVersionCreationErrors(t *testing.T) {
	ts := newTestServer(t)
	flow := ts.createFlow(t, "My Flow")

	// Path/body mismatch
	rec := ts.do(t, http.MethodPost, "/api/v1/flows/"+flow.Identifier+"/versions", map[string]interface{}{
		"snapshot_metadata": map[string]string{"flow_identifier": "someone-else"},
		"flow_contents":     map[string]interface{}{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Missing contents
	rec = ts.do(t, http.MethodPost, "/api/v1/flows/"+flow.Identifier+"/versions", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown flow
	rec = ts.do(t, http.MethodPost, "/api/v1/flows/missing/versions", map[string]interface{}{
		"flow_contents": map[string]interface{}{},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListFlowsSorted(t *testing.T) {
	ts := newTestServer(t)
	ts.createFlow(t, "charlie")
	ts.createFlow(t, "alpha")
	ts.createFlow(t, "bravo")

	rec := ts.do(t, http.MethodGet, "/api/v1/flows?sort=name:DESC", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var flows []models.VersionedFlow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &flows))
	require.Len(t, flows, 3)
	assert.Equal(t, "charlie", flows[0].Name)
	assert.Equal(t, "alpha", flows[2].Name)

	// An invalid sort field is rejected
	rec = ts.do(t, http.MethodGet, "/api/v1/flows?sort=bogus:ASC", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetFlowFieldsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/flows/fields", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Fields []string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Fields, "name")
	assert.Contains(t, resp.Fields, "identifier")
}

func TestVerboseFlowIncludesHistory(t *testing.T) {
	ts := newTestServer(t)
	flow := ts.createFlow(t, "My Flow")
	ts.createVersion(t, flow.Identifier)
	ts.createVersion(t, flow.Identifier)

	rec := ts.do(t, http.MethodGet, "/api/v1/flows/"+flow.Identifier+"?verbose=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.VersionedFlow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.VersionCount)
	require.Len(t, got.SnapshotMetadata, 2)
	assert.Equal(t, "flows/"+flow.Identifier+"/versions/1", got.SnapshotMetadata[0].Link)

	// Without verbose the history is omitted
	rec = ts.do(t, http.MethodGet, "/api/v1/flows/"+flow.Identifier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got = models.VersionedFlow{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Nil(t, got.SnapshotMetadata)
}
