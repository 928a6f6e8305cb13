package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/straja-ai/harassguard/internal/activation"
	"github.com/straja-ai/harassguard/internal/analysis"
	"github.com/straja-ai/harassguard/internal/casestore"
	"github.com/straja-ai/harassguard/internal/classifier"
	"github.com/straja-ai/harassguard/internal/config"
	"github.com/straja-ai/harassguard/internal/redact"
)

// Reloader swaps the loaded models. *classifier.Registry satisfies it.
type Reloader interface {
	Reload(ctx context.Context) classifier.Models
}

// Deps are the collaborators the HTTP layer drives.
type Deps struct {
	Analyzer *analysis.Analyzer
	Store    casestore.Store
	Models   Reloader
	Emitter  *activation.Emitter
}

// Server is the harassguard HTTP surface.
type Server struct {
	router *chi.Mux
	cfg    *config.Config

	analyzer *analysis.Analyzer
	store    casestore.Store
	models   Reloader
	emitter  *activation.Emitter

	httpServer *http.Server
}

// New wires the routes. A nil store gets an in-memory one.
func New(cfg *config.Config, deps Deps) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	store := deps.Store
	if store == nil {
		store = casestore.NewMemory()
	}

	s := &Server{
		router:   chi.NewRouter(),
		cfg:      cfg,
		analyzer: deps.Analyzer,
		store:    store,
		models:   deps.Models,
		emitter:  deps.Emitter,
	}

	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.limitBody)

		r.Get("/status", s.handleStatus)
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/chat/parse", s.handleChatParse)
		r.Post("/models/reload", s.handleModelsReload)

		r.Post("/cases", s.handleCreateCase)
		r.Route("/cases/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetCase)
			r.Delete("/", s.handleDeleteCase)
			r.Put("/incident", s.handleSetIncident)
			r.Post("/uploads", s.handleUpload)
			r.Post("/analyze", s.handleAnalyzeCase)
			r.Post("/reset", s.handleResetCase)
		})
	})

	return s
}

// Handler returns the root handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on cfg.Server.Addr until Shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.Server.ReadTimeout(),
		IdleTimeout:       120 * time.Second,
	}
	redact.Logf("harassguard listening on %s", s.cfg.Server.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
