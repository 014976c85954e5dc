// Package server provides the HTTP API for Meishi.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/meishi/internal/assistant"
	"github.com/hyperjump/meishi/internal/config"
	"github.com/hyperjump/meishi/internal/embedding"
	"github.com/hyperjump/meishi/internal/enrich"
	"github.com/hyperjump/meishi/internal/indexer"
	"github.com/hyperjump/meishi/internal/keyword"
	"github.com/hyperjump/meishi/internal/session"
	"github.com/hyperjump/meishi/internal/staging"
	"github.com/hyperjump/meishi/internal/storage"
	"github.com/hyperjump/meishi/internal/vector"
)

// Deps bundles the collaborators the HTTP layer dispatches to.
type Deps struct {
	Storage      storage.Storage
	Indexer      *indexer.Indexer
	Committer    *enrich.Committer
	Sessions     *session.Store
	Staging      *staging.Store
	Assistant    *assistant.Engine
	Embedder     embedding.Embedder
	VectorIndex  vector.Index
	KeywordIndex keyword.Index
}

// Server is the HTTP server for the Meishi API.
type Server struct {
	deps   Deps
	config *config.Config
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Deps, cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		deps:   deps,
		config: cfg,
		logger: logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Get("/api/v1/status", s.handleStatus)

	r.Get("/api/v1/contacts", s.handleListContacts)
	r.Post("/api/v1/contacts", s.handleCreateContact)
	r.Delete("/api/v1/contacts", s.handleDeleteAllContacts)
	r.Get("/api/v1/contacts/search", s.handleSearchContacts)
	r.Get("/api/v1/contacts/{id}", s.handleGetContact)
	r.Put("/api/v1/contacts/{id}", s.handleUpdateContact)
	r.Delete("/api/v1/contacts/{id}", s.handleDeleteContact)
	r.Post("/api/v1/contacts/{id}/files", s.handleUploadContactFile)
	r.Delete("/api/v1/contacts/{id}/files/{filename}", s.handleDeleteContactFile)

	r.Post("/api/v1/imports", s.handleImport)
	r.Post("/api/v1/imports/{token}/commit", s.handleImportCommit)
	r.Delete("/api/v1/imports/{token}", s.handleImportCancel)

	r.Post("/api/v1/assistant/query", s.handleAssistantQuery)
	r.Get("/api/v1/assistant/history", s.handleAssistantHistory)
	r.Delete("/api/v1/assistant/history", s.handleAssistantClearHistory)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
