// Package api provides the HTTP REST API server for fidcsim.
//
// It exposes endpoints to validate bundles, run simulations, fetch stored
// runs, compare scenarios, and stream run-complete events over WebSocket.
package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/seenimoa/fidcsim/internal/config"
	"github.com/seenimoa/fidcsim/internal/infra"
	"github.com/seenimoa/fidcsim/internal/scenario"
	"github.com/seenimoa/fidcsim/internal/simulate"
	"github.com/seenimoa/fidcsim/internal/store"
	"github.com/seenimoa/fidcsim/pkg/models"
)

// Deps are the services the server routes to.
type Deps struct {
	Simulator *simulate.Simulator
	Runner    *scenario.Runner
	Store     store.Store
	Logger    *zap.Logger
	Version   string
}

// Server is the HTTP API server.
type Server struct {
	router  chi.Router
	cfg     *config.Config
	sim     *simulate.Simulator
	runner  *scenario.Runner
	store   store.Store
	wsHub   *WSHub
	limiter *infra.RateLimiter // nil = unlimited
	logger  *zap.Logger
	version string
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Simulator == nil {
		return nil, errors.New("api: simulator is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Store == nil {
		deps.Store = store.NewMemory(time.Duration(cfg.Store.TTLSeconds) * time.Second)
	}
	if deps.Runner == nil {
		deps.Runner = scenario.NewRunner(deps.Simulator, cfg.Scenarios.MaxParallel, deps.Logger)
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}

	srv := &Server{
		cfg:     cfg,
		sim:     deps.Simulator,
		runner:  deps.Runner,
		store:   deps.Store,
		logger:  deps.Logger.Named("api"),
		version: deps.Version,
	}
	srv.wsHub = NewWSHub(srv.logger)
	if cfg.API.RateLimit > 0 {
		srv.limiter = infra.NewRateLimiter(cfg.API.RateLimit, time.Second/time.Duration(cfg.API.RateLimit))
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WSHub {
	return s.wsHub
}

// ListenAndServe starts the HTTP server and shuts it down gracefully on
// SIGINT/SIGTERM.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go s.wsHub.Run(hubCtx)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(done)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-done:
	}
	s.logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(ctx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(120 * time.Second))
		r.Get("/health", s.handleHealth)

		r.Post("/validate", s.handleValidate)

		r.With(s.rateLimit).Post("/runs", s.handleCreateRun)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/runs/{id}/classes/{class}", s.handleGetRunClass)

		r.With(s.rateLimit).Post("/scenarios", s.handleScenarios)

		r.Get("/config", s.handleGetConfig)
		r.Get("/config/secrets", s.handleGetConfigSecrets)

		r.Get("/ws", s.handleWebSocket)
	})
	return r
}

// ============================================================
// Middleware
// ============================================================

// requestLogger logs every request that ends in a 4xx or 5xx at warn or
// error level, and the rest at debug.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		}
		switch {
		case ww.Status() >= 500:
			s.logger.Error("request failed", fields...)
		case ww.Status() >= 400:
			s.logger.Warn("request rejected", fields...)
		default:
			s.logger.Debug("request", fields...)
		}
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ============================================================
// Response helpers
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}

// writeFailure maps a pipeline error to its status code. Validation
// errors carry their field lists in Data.
func writeFailure(w http.ResponseWriter, err error) {
	resp := APIResponse{Success: false, Error: err.Error()}
	var verr *models.InvalidInputError
	if errors.As(err, &verr) {
		resp.Data = verr
	}
	writeJSON(w, statusFor(err), resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInvalidDateRange), errors.Is(err, models.ErrInvalidCapitalStructure):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
