package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/relayguard/relayguard/internal/cleanup"
	"github.com/relayguard/relayguard/internal/config"
	apperrors "github.com/relayguard/relayguard/internal/errors"
	"github.com/relayguard/relayguard/internal/logging"
	"github.com/relayguard/relayguard/internal/metrics"
	"github.com/relayguard/relayguard/internal/oauth"
	"github.com/relayguard/relayguard/internal/provider"
	"github.com/relayguard/relayguard/internal/store"
)

// proxyBodyLimit bounds buffered request bodies. Bodies are held in memory
// for the whole failover loop, so the cap has to be generous but finite.
const proxyBodyLimit = 10 << 20

// Dispatcher runs the failover loop for one buffered inbound request.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *http.Request, body []byte) (*http.Response, error)
}

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	config     config.ServerConfig
	apiConfig  config.APIConfig
	oauthCfg   config.OAuthConfig
	sessionCfg config.SessionConfig

	store      store.Store
	dispatcher Dispatcher
	exchanger  *oauth.Client
	sweeper    *cleanup.Sweeper

	metrics     *metrics.Metrics
	logger      *logging.Logger
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
}

// Router returns the gin router for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

type Option func(*Server)

func WithLogger(l *logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithSweeper exposes sweeper statistics on the stats endpoint.
func WithSweeper(sw *cleanup.Sweeper) Option {
	return func(s *Server) { s.sweeper = sw }
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, st store.Store, d Dispatcher, ex *oauth.Client, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)

	requestsPerMinute := cfg.API.RateLimit.RequestsPerMinute
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1000
	}
	burst := cfg.API.RateLimit.Burst
	if burst <= 0 {
		burst = 100
	}

	server := &Server{
		router:      gin.New(),
		config:      cfg.Server,
		apiConfig:   cfg.API,
		oauthCfg:    cfg.OAuth,
		sessionCfg:  cfg.Session,
		store:       st,
		dispatcher:  d,
		exchanger:   ex,
		metrics:     metrics.NewMetrics("relayguard"),
		logger:      logging.NewLogger(),
		rateLimiter: newIPRateLimiter(time.Minute/time.Duration(requestsPerMinute), burst),
	}
	for _, opt := range opts {
		opt(server)
	}
	server.router.HandleMethodNotAllowed = false

	server.router.Use(gin.Recovery())
	server.router.Use(rateLimitMiddleware(server.rateLimiter))
	server.router.Use(bodyLimitMiddleware(proxyBodyLimit))
	server.router.Use(metrics.Middleware(server.metrics, server.logger))
	server.router.Use(loggingMiddleware(server.logger))
	if cfg.API.CORS.Enabled {
		server.router.Use(corsMiddleware(cfg.API.CORS))
	}

	server.setupRoutes()
	return server
}

// loggingMiddleware provides structured logging for all requests
func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = logging.GenerateCorrelationID()
		}

		ctx := logging.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		duration := time.Since(start).Seconds()
		logger.InfoWithContext(ctx, "request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_seconds", duration,
		)
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint - NO authentication required
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	// Health check - NO authentication required
	s.router.GET("/health", s.handleHealth)

	authMiddleware := APIKeyAuth(s.apiConfig.Keys, DefaultAPIKeyHeader, s.logger)

	// OAuth endpoints - require authentication
	oauthGroup := s.router.Group("/oauth")
	oauthGroup.Use(authMiddleware)
	{
		oauthGroup.POST("/authorize", s.handleOAuthAuthorize)
		oauthGroup.POST("/exchange", s.handleOAuthExchange)
	}

	// Management endpoints - require authentication
	adminGroup := s.router.Group("/admin")
	adminGroup.Use(authMiddleware)
	{
		adminGroup.GET("/accounts", s.handleListAccounts)
		adminGroup.POST("/accounts", s.handleUpsertAccount)
		adminGroup.DELETE("/accounts/:name", s.handleDeleteAccount)
		adminGroup.POST("/accounts/:name/cooldown/clear", s.handleClearCooldown)
		adminGroup.GET("/stats", s.handleStats)
	}

	// Everything else is proxied upstream
	s.router.NoRoute(s.handleProxy)
}

// handleProxy buffers the inbound body and runs the failover dispatch loop,
// then streams the winning upstream response back verbatim.
func (s *Server) handleProxy(c *gin.Context) {
	ctx := c.Request.Context()

	var body []byte
	if c.Request.Body != nil {
		var err error
		body, err = io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
	}

	resp, err := s.dispatcher.Dispatch(ctx, c.Request, body)
	if err != nil {
		var provErr *apperrors.ErrProvider
		status := http.StatusBadGateway
		if stderrors.As(err, &provErr) && provErr.StatusCode != 0 {
			status = provErr.StatusCode
		}
		s.metrics.RecordError("provider_error", c.Request.URL.Path, c.Request.Method)
		s.logger.ErrorWithContext(ctx, "dispatch failed", "error", err.Error())
		c.JSON(status, gin.H{"error": "upstream unavailable"})
		return
	}
	defer resp.Body.Close()

	for key, values := range provider.SanitizeResponseHeaders(resp.Header) {
		for _, v := range values {
			c.Writer.Header().Add(key, v)
		}
	}
	c.Writer.WriteHeader(resp.StatusCode)

	if err := streamBody(c.Writer, resp.Body); err != nil {
		s.logger.WarnWithContext(ctx, "response stream interrupted", "error", err.Error())
	}
}

// streamBody copies the upstream body chunk by chunk, flushing as it goes so
// streamed completions reach the caller promptly.
func streamBody(w gin.ResponseWriter, src io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return writeErr
			}
			w.Flush()
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.HTTPPort)

	if s.httpServer == nil {
		s.httpServer = NewHTTPServer(addr, s.router)
	}

	s.logger.Info("starting HTTP server", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// StartWithServer starts the server with a pre-configured http.Server
func (s *Server) StartWithServer(srv *http.Server) error {
	s.httpServer = srv
	s.logger.Info("starting HTTP server", "addr", srv.Addr)
	return srv.ListenAndServe()
}

// Shutdown gracefully shuts down the server and its components
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return &apperrors.ErrServerShutdown{Err: err}
		}
	}

	if s.sweeper != nil {
		s.sweeper.Stop()
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return fmt.Errorf("store close: %w", err)
		}
	}

	s.logger.Info("graceful shutdown completed")
	return nil
}

// handleHealth returns health status
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"accounts":  len(s.store.ListEnabledAccounts()),
	})
}
