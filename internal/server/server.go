package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/redacted/internal/audit"
	"github.com/raaihank/redacted/internal/cache"
	"github.com/raaihank/redacted/internal/config"
	"github.com/raaihank/redacted/internal/infotype"
	"github.com/raaihank/redacted/internal/logger"
	"github.com/raaihank/redacted/internal/privacy"
	"github.com/raaihank/redacted/internal/websocket"
)

// Version is reported by /info
const Version = "0.1.0"

// statusInterval is how often system status events are published
const statusInterval = 30 * time.Second

// ResultCache is the subset of the Redis cache the server uses
type ResultCache interface {
	Get(ctx context.Context, fingerprint, text string) (*privacy.ProcessResult, bool)
	Set(ctx context.Context, fingerprint, text string, result privacy.ProcessResult) error
	Stats(ctx context.Context) (*cache.Stats, error)
	Clear(ctx context.Context) error
}

// AuditStore is the subset of the audit store the server uses
type AuditStore interface {
	RecordFindings(ctx context.Context, requestID, source string, findings []privacy.Finding) error
	Summary(ctx context.Context, since time.Time) ([]audit.InfoTypeSummary, error)
}

// Deps are the components a server is built from. Cache, Audit and Hub
// are optional.
type Deps struct {
	Redactor *privacy.Redactor
	Cache    ResultCache
	Audit    AuditStore
	Hub      *websocket.Hub
}

// Server exposes scanning and redaction over HTTP
type Server struct {
	mu     sync.RWMutex
	config *config.Config

	logger   *logger.Logger
	redactor *privacy.Redactor
	cache    ResultCache
	audit    AuditStore
	hub      *websocket.Hub
	limiter  *RateLimiter
	router   *mux.Router
	server   *http.Server

	started         time.Time
	totalRequests   atomic.Int64
	totalDetections atomic.Int64
}

// New creates a new server instance
func New(cfg *config.Config, deps Deps, log *logger.Logger) (*Server, error) {
	if deps.Redactor == nil {
		return nil, errors.New("server requires a redactor")
	}

	s := &Server{
		config:   cfg,
		logger:   log.WithComponent("server"),
		redactor: deps.Redactor,
		cache:    deps.Cache,
		audit:    deps.Audit,
		hub:      deps.Hub,
		router:   mux.NewRouter(),
		started:  time.Now(),
	}

	if cfg.RateLimit.Enabled {
		s.limiter = NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, cfg.RateLimit.IdleTimeout)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	if s.hub != nil && s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.hub.HandleWebSocket).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.rateLimitMiddleware)

	api.HandleFunc("/infotypes", s.handleListInfoTypes).Methods(http.MethodGet)
	api.HandleFunc("/infotypes/{name}/sample", s.handleSample).Methods(http.MethodGet)
	api.HandleFunc("/infotypes/{name}/enable", s.handleToggle(true)).Methods(http.MethodPost)
	api.HandleFunc("/infotypes/{name}/disable", s.handleToggle(false)).Methods(http.MethodPost)
	api.HandleFunc("/scan", s.handleScan).Methods(http.MethodPost)
	api.HandleFunc("/redact", s.handleRedact).Methods(http.MethodPost)
	api.HandleFunc("/cache/stats", s.handleCacheStats).Methods(http.MethodGet)
	api.HandleFunc("/cache", s.handleCacheClear).Methods(http.MethodDelete)
	api.HandleFunc("/audit/summary", s.handleAuditSummary).Methods(http.MethodGet)
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs background workers and serves HTTP until Stop is called.
// The workers stop when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.currentConfig()
	s.logger.Info("Starting redaction server",
		zap.Int("port", cfg.Server.Port),
		zap.Strings("info_types", s.redactor.EnabledInfoTypes()),
		zap.Bool("cache", s.cache != nil),
		zap.Bool("audit", s.audit != nil),
	)

	if s.hub != nil {
		go s.hub.Run(ctx)
		go s.publishStatus(ctx)
	}
	if s.limiter != nil {
		go s.limiter.Run(ctx)
	}

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping redaction server")
	return s.server.Shutdown(ctx)
}

// Reload swaps in a new configuration and registry. The listener settings
// keep their original values until restart.
func (s *Server) Reload(cfg *config.Config, reg *infotype.Registry) error {
	if err := s.redactor.Reload(reg, cfg.Privacy); err != nil {
		return fmt.Errorf("failed to reload redactor: %w", err)
	}

	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()

	s.logger.Info("Configuration reloaded",
		zap.Strings("info_types", s.redactor.EnabledInfoTypes()),
		zap.String("fingerprint", s.redactor.Fingerprint()))
	return nil
}

func (s *Server) currentConfig() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// publishStatus sends a system status event periodically
func (s *Server) publishStatus(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.hub.PublishSystemStatus(s.status())
		}
	}
}

func (s *Server) status() websocket.SystemStatusEvent {
	status := websocket.SystemStatusEvent{
		Status:           "healthy",
		Uptime:           time.Since(s.started).Round(time.Second).String(),
		TotalRequests:    s.totalRequests.Load(),
		TotalDetections:  s.totalDetections.Load(),
		EnabledInfoTypes: s.redactor.EnabledInfoTypes(),
	}
	if s.hub != nil {
		status.ConnectedClients = int(s.hub.Stats().ActiveConnections)
	}
	return status
}
