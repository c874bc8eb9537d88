// Package server wires the application together: it is the composition
// root that builds the database, services, handlers, and middleware, lays
// out the route table, and runs the HTTP server with graceful shutdown.
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

	"github.com/vstrealm/reviewd/internal/auth"
	"github.com/vstrealm/reviewd/internal/handler"
	"github.com/vstrealm/reviewd/internal/middleware"
	sqliteRepo "github.com/vstrealm/reviewd/internal/repository/sqlite"
	"github.com/vstrealm/reviewd/internal/service"
)

// Config holds everything the server needs from the environment.
type Config struct {
	Port      int
	DBPath    string
	JWTSecret string
	TokenTTL  time.Duration

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Where browser OAuth flows land after login, with the token in the
	// query string. Empty means the callback answers with JSON.
	FrontendLoginRedirectURI string
}

// Server owns the router and the resources that need closing on shutdown.
type Server struct {
	router  *chi.Mux
	config  Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	limiter *middleware.RateLimiter
}

// New assembles the full dependency chain: database, token and password
// services, the Google provider when configured, both domain services,
// the handlers, and the route table.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		limiter: middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(), logger),
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		s.limiter.Stop()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes builds the services and lays out the route table.
//
// ROUTE TABLE:
//
//	GET    /health                              liveness probe
//	POST   /auth/local/register                 create a local identity     [rate limited]
//	POST   /auth/local/login                    local login                  [rate limited]
//	GET    /auth/local/verify-token/{token}     token check
//	GET    /auth/google/login                   start the OAuth flow
//	GET    /auth/google/callback                finish the OAuth flow
//	GET    /auth/user                           current user                 [auth]
//	GET    /auth/account                        current provider account     [auth]
//	GET    /api/comments                        list comments
//	POST   /api/comments                        post a comment               [auth]
//	GET    /api/comments/{id}                   get one comment
//	DELETE /api/comments/{id}                   delete with cascade          [auth]
//	GET    /api/comments/{id}/replies           page through replies
//	POST   /api/comments/{id}/replies           post a reply                 [auth]
//	GET    /api/comments/{id}/score             read-time score
//	PUT    /api/comments/{id}/vote              cast or replace a vote       [auth]
//	GET    /api/comments/{id}/vote              the caller's vote            [auth]
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()

	// Without Google credentials the external login endpoints stay up
	// but answer 401, same as the local endpoints with bad credentials.
	var provider service.ExternalProvider
	if s.config.GoogleClientID != "" {
		provider = auth.NewGoogleProvider(s.config.GoogleClientID, s.config.GoogleClientSecret, s.config.GoogleRedirectURL)
	} else {
		s.logger.Warn("Google credentials not set, external login is disabled")
	}

	identity := service.NewIdentityService(s.db.Users, s.db.Accounts, tokens, passwords, provider, service.DefaultIdentityConfig(), s.logger)
	discussion := service.NewDiscussionService(s.db.Comments, s.db.Votes, s.logger)

	authHandler := handler.NewAuthHandler(identity, s.config.FrontendLoginRedirectURI, s.logger)
	commentHandler := handler.NewCommentHandler(discussion, s.logger)

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	s.router.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware())
			r.Post("/local/register", authHandler.HandleRegister)
			r.Post("/local/login", authHandler.HandleLocalLogin)
		})

		r.Get("/local/verify-token/{token}", authHandler.HandleVerifyToken)
		r.Get("/google/login", authHandler.HandleGoogleLogin)
		r.Get("/google/callback", authHandler.HandleGoogleCallback)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(identity))
			r.Get("/user", authHandler.HandleCurrentUser)
			r.Get("/account", authHandler.HandleActiveAccount)
		})
	})

	s.router.Route("/api/comments", func(r chi.Router) {
		r.Get("/", commentHandler.HandleList)
		r.Get("/{id}", commentHandler.HandleGet)
		r.Get("/{id}/replies", commentHandler.HandleListReplies)
		r.Get("/{id}/score", commentHandler.HandleScore)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(identity))
			r.Post("/", commentHandler.HandleCreate)
			r.Delete("/{id}", commentHandler.HandleDelete)
			r.Post("/{id}/replies", commentHandler.HandleCreateReply)
			r.Put("/{id}/vote", commentHandler.HandleCastVote)
			r.Get("/{id}/vote", commentHandler.HandleGetVote)
		})
	})

	return nil
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully: stop accepting connections, give in-flight requests 30
// seconds, stop the rate limiter, close the database.
func (s *Server) Start() error {
	defer s.db.Close()
	defer s.limiter.Stop()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
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
