// Package server wires the router, middleware and handlers together and
// runs the HTTP server with graceful shutdown.
//
// New is the composition root: the session store, identity provider,
// visitor registry, metrics and handlers are all created here and handed
// to each other explicitly, so nothing else in the tree builds a dependency.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/cinemax-club/internal/auth"
	"github.com/sakif/cinemax-club/internal/config"
	"github.com/sakif/cinemax-club/internal/handler"
	"github.com/sakif/cinemax-club/internal/identity"
	"github.com/sakif/cinemax-club/internal/metrics"
	"github.com/sakif/cinemax-club/internal/middleware"
	sqliteRepo "github.com/sakif/cinemax-club/internal/repository/sqlite"
	"github.com/sakif/cinemax-club/internal/shell"
	"github.com/sakif/cinemax-club/web"
)

// visitorTTL is how long a visitor cookie stays valid.
const visitorTTL = 30 * 24 * time.Hour

// Server is the HTTP server and everything it owns. The database and the
// shell registry are closed when Start returns.
type Server struct {
	router   *chi.Mux
	config   config.Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	registry *shell.Registry
	metrics  *metrics.Metrics
}

// New opens the session store and assembles the server. httpClient is used
// for identity backend calls and may be nil.
func New(cfg config.Config, httpClient *http.Client, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s, err := newWithStore(cfg, db, httpClient, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func newWithStore(cfg config.Config, db *sqliteRepo.DB, httpClient *http.Client, logger *slog.Logger) (*Server, error) {
	m := metrics.New()
	provider := identity.NewProvider(cfg.Identity, db, httpClient, logger)
	registry := shell.NewRegistry(provider, shell.Options{
		SubmitTimeout: cfg.Identity.Timeout,
	}, cfg.SessionIdleTTL, m, logger)

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		db:       db,
		registry: registry,
		metrics:  m,
	}

	if err := s.setupRoutes(provider.Configured()); err != nil {
		registry.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler { return s.router }

// setupRoutes configures middleware and routes.
//
//	GET  /                page
//	GET  /static/*        embedded assets
//	GET  /ticket/qr.png   demo ticket image
//	POST /auth/{open,close,mode,submit,logout}
//	GET  /api/me          signed-in profile (JSON)
//	GET  /api/ticket      decoded demo ticket (JSON)
//	GET  /healthz
//	GET  /metrics         Prometheus
//
// Middleware runs in the order added. The visitor cookie is only issued on
// the routes that need a shell.
func (s *Server) setupRoutes(configured bool) error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(chimiddleware.Recoverer)

	api := handler.NewAPIHandler(s.registry, configured, s.logger)

	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(web.Static())))
	s.router.Get("/healthz", api.HandleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	tokens, err := auth.NewTokenService(s.config.CookieSecret, "cinemax-club", visitorTTL)
	if err != nil {
		return fmt.Errorf("creating visitor token service: %w", err)
	}

	page, err := handler.NewPageHandler(s.registry, configured, s.logger)
	if err != nil {
		return fmt.Errorf("creating page handler: %w", err)
	}
	authHandler := handler.NewAuthHandler(s.registry, s.metrics, s.logger)
	ticketHandler := handler.NewTicketHandler(s.registry, s.logger)

	s.router.Group(func(r chi.Router) {
		r.Use(auth.Visitor(tokens, s.config.SecureCookies, s.logger))

		r.Get("/", page.HandleIndex)
		r.Get("/ticket/qr.png", ticketHandler.HandleQR)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/open", authHandler.HandleOpen)
			r.Post("/close", authHandler.HandleClose)
			r.Post("/mode", authHandler.HandleMode)
			r.Post("/submit", authHandler.HandleSubmit)
			r.Post("/logout", authHandler.HandleLogout)
		})

		r.Route("/api", func(r chi.Router) {
			r.Get("/me", api.HandleMe)
			r.Get("/ticket", ticketHandler.HandleTicket)
		})
	})

	return nil
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully:
// in-flight requests get 30 seconds, then every visitor shell is unmounted
// and the database is closed.
func (s *Server) Start() error {
	defer s.db.Close()
	defer s.registry.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.config.Identity.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.registry.Start()
	go s.pruneSessions()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.Bool("identityConfigured", s.config.Identity.Configured()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// pruneSessions drops stored sessions that outlived the visitor cookie.
// It runs once at startup; the cookie lifetime is long enough that a
// restart cadence keeps the table small.
func (s *Server) pruneSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n, err := s.db.PruneBefore(ctx, time.Now().Add(-visitorTTL))
	if err != nil {
		s.logger.Warn("pruning stale sessions failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		s.logger.Info("pruned stale sessions", slog.Int64("count", n))
	}
}
