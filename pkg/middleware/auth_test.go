package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcmartin/flowregistry/pkg/services"
	"github.com/tcmartin/flowregistry/pkg/storage"
)

func TestAuthenticate(t *testing.T) {
	store := storage.NewMemoryAccountStore()
	accountService := services.NewAccountService(store)

	accountID, err := accountService.CreateAccount("alice", "password123")
	require.NoError(t, err)
	account, err := accountService.GetAccount(accountID)
	require.NoError(t, err)

	m := NewAuthMiddleware(accountService)

	var gotAccountID string
	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccountID, _ = GetAccountID(r)
		w.WriteHeader(http.StatusOK)
	}))

	// Bearer token
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+account.APIToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, accountID, gotAccountID)

	// Basic auth
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("alice", "password123")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Missing header
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Bad token
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// OPTIONS requests pass through for CORS preflight
	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS(t *testing.T) {
	handler := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(3, time.Minute)

	assert.False(t, limiter.IsLimited("client"))

	for i := 0; i < 3; i++ {
		limiter.Record("client")
	}

	assert.True(t, limiter.IsLimited("client"))
	assert.False(t, limiter.IsLimited("other"))
}
