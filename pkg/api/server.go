// Package api provides the HTTP boundary of the flow registry.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tcmartin/flowregistry/pkg/auth"
	"github.com/tcmartin/flowregistry/pkg/config"
	"github.com/tcmartin/flowregistry/pkg/middleware"
	"github.com/tcmartin/flowregistry/pkg/registry"
	"github.com/tcmartin/flowregistry/pkg/services"
)

// Server represents the HTTP API server
type Server struct {
	config         *config.Config
	router         *mux.Router
	server         *http.Server
	registry       registry.RegistryService
	resolver       registry.FlowVersionResolver
	accountService auth.AccountService
	jwtService     *services.JWTService
	links          *LinkService
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, reg registry.RegistryService, resolver registry.FlowVersionResolver, accountService auth.AccountService, jwtService *services.JWTService) *Server {
	s := &Server{
		config:         cfg,
		router:         mux.NewRouter(),
		registry:       reg,
		resolver:       resolver,
		accountService: accountService,
		jwtService:     jwtService,
		links:          NewLinkService(),
	}

	s.setupRoutes()
	return s
}

// Router returns the server's router, mainly for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Starting HTTP server on %s", addr)

	var err error
	if s.config.Server.TLS.Enabled {
		err = s.server.ListenAndServeTLS(
			s.config.Server.TLS.CertFile,
			s.config.Server.TLS.KeyFile,
		)
	} else {
		err = s.server.ListenAndServe()
	}

	// If the server was shut down gracefully, this error is expected
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	authMiddleware := middleware.NewAuthMiddleware(s.accountService)

	// API router with version prefix
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Public routes (no authentication required)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost, http.MethodOptions)

	// Account routes
	accounts := api.PathPrefix("/accounts").Subrouter()
	accounts.HandleFunc("", s.handleCreateAccount).Methods(http.MethodPost, http.MethodOptions)

	// Authenticated routes
	authenticated := api.PathPrefix("").Subrouter()
	authenticated.Use(authMiddleware.Authenticate)

	// Flow routes. The literal "fields" segment is registered before the
	// {flowId} capture so it is never mistaken for a flow identifier.
	flows := authenticated.PathPrefix("/flows").Subrouter()
	flows.HandleFunc("", s.handleListFlows).Methods(http.MethodGet, http.MethodOptions)
	flows.HandleFunc("", s.handleCreateFlow).Methods(http.MethodPost, http.MethodOptions)
	flows.HandleFunc("/fields", s.handleGetFlowFields).Methods(http.MethodGet, http.MethodOptions)
	flows.HandleFunc("/{flowId}", s.handleGetFlow).Methods(http.MethodGet, http.MethodOptions)
	flows.HandleFunc("/{flowId}", s.handleUpdateFlow).Methods(http.MethodPut, http.MethodOptions)
	flows.HandleFunc("/{flowId}", s.handleDeleteFlow).Methods(http.MethodDelete, http.MethodOptions)

	// Version routes. The route constraint only admits digit segments for
	// {versionNumber}, so "latest" never shadows a numeric fetch.
	flows.HandleFunc("/{flowId}/versions", s.handleListVersions).Methods(http.MethodGet, http.MethodOptions)
	flows.HandleFunc("/{flowId}/versions", s.handleCreateVersion).Methods(http.MethodPost, http.MethodOptions)
	flows.HandleFunc("/{flowId}/versions/latest", s.handleGetLatestVersion).Methods(http.MethodGet, http.MethodOptions)
	flows.HandleFunc("/{flowId}/versions/{versionNumber:[0-9]+}", s.handleGetVersion).Methods(http.MethodGet, http.MethodOptions)

	// Account management routes (authenticated)
	accountsMgmt := authenticated.PathPrefix("/accounts").Subrouter()
	accountsMgmt.HandleFunc("/me", s.handleGetCurrentAccount).Methods(http.MethodGet, http.MethodOptions)
	accountsMgmt.HandleFunc("/refresh-token", s.handleRefreshToken).Methods(http.MethodPost, http.MethodOptions)

	// Request logging for all routes
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("Request: %s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	})

	// CORS middleware for all routes
	s.router.Use(middleware.CORS)
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleCreateAccount handles account creation
func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	accountID, err := s.accountService.CreateAccount(req.Username, req.Password)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	account, err := s.accountService.GetAccount(accountID)
	if err != nil {
		http.Error(w, "Failed to retrieve account", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(account)
}

// handleGetCurrentAccount handles retrieving the current account
func (s *Server) handleGetCurrentAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	account, err := s.accountService.GetAccount(accountID)
	if err != nil {
		http.Error(w, "Failed to retrieve account", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}
