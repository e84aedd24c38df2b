// Package server wires the survey backend together: repositories, services,
// handlers, middleware and routes.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Server ──► New() opens:
//	    sqlite.DB or postgres.DB  → Forms, Users, RefreshTokens
//	    disk.Store or s3.Store    → Blobs
//	    secret.Resolver           → JWT secret → auth.TokenService
//	Deps ──► services ──► handlers ──► chi routes
//
// Tests skip New and hand NewWithDeps in-memory dependencies.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/field-survey/internal/auth"
	"github.com/sakif/field-survey/internal/config"
	"github.com/sakif/field-survey/internal/handler"
	"github.com/sakif/field-survey/internal/middleware"
	"github.com/sakif/field-survey/internal/model"
	"github.com/sakif/field-survey/internal/repository"
	"github.com/sakif/field-survey/internal/repository/postgres"
	sqliteRepo "github.com/sakif/field-survey/internal/repository/sqlite"
	"github.com/sakif/field-survey/internal/secret"
	"github.com/sakif/field-survey/internal/service"
	"github.com/sakif/field-survey/internal/storage"
	"github.com/sakif/field-survey/internal/storage/disk"
	s3store "github.com/sakif/field-survey/internal/storage/s3"
)

// Deps are the backing services a Server runs on.
type Deps struct {
	Forms         repository.FormRepository
	Users         repository.UserRepository
	RefreshTokens repository.RefreshTokenRepository
	Blobs         storage.BlobStore
	Tokens        *auth.TokenService
	Passwords     *auth.PasswordService
}

// Server owns the router and every resource New opened.
type Server struct {
	router  *chi.Mux
	config  config.Server
	logger  *slog.Logger
	authSvc *service.AuthService
	closers []io.Closer
}

// New opens the database, the blob store and the JWT secret described by cfg.
func New(ctx context.Context, cfg config.Server, logger *slog.Logger) (*Server, error) {
	var closers []io.Closer
	fail := func(err error) (*Server, error) {
		for _, c := range closers {
			c.Close()
		}
		return nil, err
	}

	// === DATABASE ===
	var repos interface {
		repository.FormRepository
		repository.UserRepository
		repository.RefreshTokenRepository
		io.Closer
	}
	if cfg.DatabaseURL != "" {
		db, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		repos = db
	} else {
		if cfg.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite: %w", err)
		}
		repos = db
	}
	closers = append(closers, repos)

	// === OBJECT STORE ===
	var blobs storage.BlobStore
	switch cfg.StorageDriver {
	case "s3":
		st, err := s3store.NewFromEnv(ctx, s3store.Options{
			Bucket:   cfg.S3Bucket,
			Prefix:   cfg.S3Prefix,
			Endpoint: cfg.S3Endpoint,
		})
		if err != nil {
			return fail(fmt.Errorf("opening s3 store: %w", err))
		}
		blobs = st
	default:
		st, err := disk.New(cfg.StorageDir)
		if err != nil {
			return fail(fmt.Errorf("opening disk store: %w", err))
		}
		blobs = st
	}

	// === SECRETS ===
	resolver, err := secret.New(ctx, cfg.SecretsBackend)
	if err != nil {
		return fail(err)
	}
	jwtSecret, err := resolver.GetSecret(ctx, cfg.JWTSecretParam)
	if err != nil {
		return fail(fmt.Errorf("resolving JWT secret: %w", err))
	}
	tokens, err := auth.NewTokenService(jwtSecret)
	if err != nil {
		return fail(err)
	}

	s := NewWithDeps(cfg, Deps{
		Forms:         repos,
		Users:         repos,
		RefreshTokens: repos,
		Blobs:         blobs,
		Tokens:        tokens,
		Passwords:     auth.NewPasswordService(),
	}, logger)
	s.closers = closers
	return s, nil
}

// NewWithDeps builds a Server on already-open dependencies.
func NewWithDeps(cfg config.Server, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
	}
	s.setupRoutes(deps)
	return s
}

// setupRoutes registers middleware and routes.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz
//	POST   /auth/v1/token                            (rate limited per IP)
//	POST   /auth/v1/logout                           (auth)
//	GET    /auth/v1/user                             (auth)
//	GET    /rest/v1/forms                            (auth)
//	POST   /rest/v1/forms                            (auth)
//	GET    /rest/v1/forms/{id}                       (auth)
//	DELETE /rest/v1/forms/{id}                       (auth)
//	POST   /storage/v1/object/{bucket}/{key}         (auth)
//	DELETE /storage/v1/object/{bucket}               (auth)
//	POST   /storage/v1/object/sign/{bucket}/{key}    (auth)
//	GET    /storage/v1/object/sign/{bucket}/{key}    (?token=)
//	GET    /storage/v1/object/public/{bucket}/{key}
//
// Middleware order matters: RealIP must run before the rate limiter reads
// RemoteAddr, and RequestID before Logger reads the id.
func (s *Server) setupRoutes(deps Deps) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.authSvc = service.NewAuthService(deps.Users, deps.RefreshTokens, deps.Tokens, deps.Passwords, s.logger)
	formSvc := service.NewFormService(deps.Forms, s.logger)

	authHandler := handler.NewAuthHandler(s.authSvc, s.logger)
	formHandler := handler.NewFormHandler(formSvc, s.logger)
	storageHandler := handler.NewStorageHandler(s.config.Bucket, deps.Blobs, deps.Tokens, s.config.PublicURL, s.logger)

	requireAuth := auth.RequireAuth(deps.Tokens)
	limiter := middleware.NewIPRateLimiter(s.config.SignInPerMinute)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	s.router.Route("/auth/v1", func(r chi.Router) {
		r.With(limiter.Middleware).Post("/token", authHandler.HandleToken)
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/logout", authHandler.HandleLogout)
			r.Get("/user", authHandler.HandleUser)
		})
	})

	s.router.Route("/rest/v1/forms", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/", formHandler.HandleList)
		r.Post("/", formHandler.HandleCreate)
		r.Get("/{id}", formHandler.HandleGet)
		r.Delete("/{id}", formHandler.HandleDelete)
	})

	s.router.Route("/storage/v1/object", func(r chi.Router) {
		r.Get("/public/{bucket}/{key}", storageHandler.HandlePublic)
		r.Get("/sign/{bucket}/{key}", storageHandler.HandleSigned)
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/sign/{bucket}/{key}", storageHandler.HandleSign)
			r.Post("/{bucket}/{key}", storageHandler.HandleUpload)
			r.Delete("/{bucket}", storageHandler.HandleRemove)
		})
	})
}

// Handler returns the root handler, for httptest and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// CreateUser provisions an account. Accounts are created by operators, not
// through the API.
func (s *Server) CreateUser(ctx context.Context, email, password, displayName string) (*model.User, error) {
	return s.authSvc.CreateUser(ctx, email, password, displayName)
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests for
// up to ShutdownTimeout and closes every resource.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("public_url", s.config.PublicURL),
			slog.String("storage", s.config.StorageDriver),
		)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	})
	return g.Wait()
}

// Close releases the resources opened by New.
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}
