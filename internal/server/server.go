// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mbd888/agentdex/internal/admin"
	"github.com/mbd888/agentdex/internal/chain"
	"github.com/mbd888/agentdex/internal/circuitbreaker"
	"github.com/mbd888/agentdex/internal/config"
	"github.com/mbd888/agentdex/internal/health"
	"github.com/mbd888/agentdex/internal/idgen"
	"github.com/mbd888/agentdex/internal/listing"
	"github.com/mbd888/agentdex/internal/logging"
	"github.com/mbd888/agentdex/internal/metacache"
	"github.com/mbd888/agentdex/internal/metrics"
	"github.com/mbd888/agentdex/internal/ratelimit"
	"github.com/mbd888/agentdex/internal/realtime"
	"github.com/mbd888/agentdex/internal/registry"
	"github.com/mbd888/agentdex/internal/resolver"
	"github.com/mbd888/agentdex/internal/security"
	"github.com/mbd888/agentdex/internal/traces"
	"github.com/mbd888/agentdex/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg            *config.Config
	version        string
	registry       listing.Registry
	resolver       listing.Resolver
	metadata       metacache.Store
	controller     *listing.Controller
	realtimeHub    *realtime.Hub
	breaker        *circuitbreaker.Breaker
	health         *health.Registry
	rateLimiter    *ratelimit.Limiter
	refreshLimiter *ratelimit.Limiter
	db             *sql.DB // nil if using in-memory
	router         *gin.Engine
	httpSrv        *http.Server
	logger         *slog.Logger
	shutdownTraces func(context.Context) error
	drainDelay     time.Duration
	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithVersion sets the version reported by /health and traces
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithRegistry replaces the on-chain registry reader (for testing)
func WithRegistry(r listing.Registry) Option {
	return func(s *Server) {
		s.registry = r
	}
}

// WithResolver replaces the metadata resolver (for testing)
func WithResolver(r listing.Resolver) Option {
	return func(s *Server) {
		s.resolver = r
	}
}

// WithMetadataStore replaces the metadata cache store
func WithMetadataStore(m metacache.Store) Option {
	return func(s *Server) {
		s.metadata = m
	}
}

// WithDrainDelay sets how long Shutdown waits before closing listeners
func WithDrainDelay(d time.Duration) Option {
	return func(s *Server) {
		s.drainDelay = d
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		version:    "dev",
		logger:     logging.New(cfg.LogLevel, cfg.LogFormat),
		health:     health.NewRegistry(),
		drainDelay: 5 * time.Second,
	}

	// Apply options first (may set logger and test doubles)
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Tracing (no-op without an OTLP endpoint)
	shutdownTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, s.version, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	s.shutdownTraces = shutdownTraces

	// Metadata cache (Postgres if DATABASE_URL set, otherwise in-memory)
	if s.metadata == nil {
		if err := s.initMetadataStore(ctx); err != nil {
			return nil, err
		}
	}

	// Gateway resolver with per-gateway circuit breaker
	if s.resolver == nil {
		s.breaker = circuitbreaker.New(circuitbreaker.DefaultThreshold, circuitbreaker.DefaultCooldown)
		s.breaker.OnTransition(func(gateway string, from, to circuitbreaker.State) {
			metrics.BreakerTransitionsTotal.WithLabelValues(gateway, to.String()).Inc()
			s.logger.Warn("gateway circuit changed", "gateway", gateway, "from", from.String(), "to", to.String())
		})
		s.resolver = resolver.New(cfg.IPFSGateways,
			resolver.WithHTTPClient(security.SafeClient(cfg.GatewayTimeout)),
			resolver.WithTimeout(cfg.GatewayTimeout),
			resolver.WithBreaker(s.breaker),
			resolver.WithLogger(s.logger),
		)
	}

	// On-chain registry reader, one lazily dialed client per chain
	if s.registry == nil {
		reader, err := registry.New(cfg.RPCURL,
			registry.WithCallTimeout(cfg.RPCTimeout),
			registry.WithWorkers(cfg.FetchWorkers),
			registry.WithLogger(s.logger),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create registry reader: %w", err)
		}
		s.registry = reader
	}

	// Realtime hub, notified after every live listing pass
	s.realtimeHub = realtime.NewHub(s.logger, cfg.CORSOrigins...)

	s.controller = listing.NewController(s.registry, s.resolver, s.metadata,
		listing.NewCache(cfg.ListingCacheTTL),
		listing.WithMaxAgents(cfg.MaxAgents),
		listing.WithLowSupplyThreshold(cfg.LowSupplyThreshold),
		listing.WithWorkers(cfg.FetchWorkers),
		listing.WithNotifier(s.realtimeHub),
		listing.WithLogger(s.logger),
	)

	s.registerHealthChecks()

	// Setup router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

func (s *Server) initMetadataStore(ctx context.Context) error {
	if s.cfg.DatabaseURL == "" {
		s.metadata = metacache.NewMemoryStore()
		s.logger.Info("using in-memory metadata cache")
		return nil
	}

	db, err := sql.Open("postgres", s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	s.db = db
	s.metadata = metacache.NewPostgresStore(db)
	s.logger.Info("using PostgreSQL metadata cache", "url", maskDSN(s.cfg.DatabaseURL))
	return nil
}

func (s *Server) registerHealthChecks() {
	if pinger, ok := s.metadata.(interface{ Ping(context.Context) error }); ok {
		s.health.Register("database", health.Probe("database", pinger.Ping))
	}
	// The listing degrades to sample data without RPC, so it never fails the aggregate.
	if pinger, ok := s.registry.(interface {
		Ping(context.Context, chain.ID) error
	}); ok {
		def := s.cfg.DefaultChain
		s.health.RegisterOptional("rpc", health.Probe("rpc", func(ctx context.Context) error {
			return pinger.Ping(ctx, def)
		}))
	}
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS
	s.router.Use(security.CORSMiddleware(s.cfg.CORSOrigins))

	// Request size limit
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rl := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		rl.RequestsPerMinute = s.cfg.RateLimitRPM
		rl.BurstSize = max(rl.BurstSize, s.cfg.RateLimitRPM/6)
	}
	s.rateLimiter = ratelimit.New(rl)
	s.router.Use(s.rateLimiter.Middleware())

	// Forced refreshes each cost a full registry pass
	s.refreshLimiter = ratelimit.New(ratelimit.RefreshConfig(s.cfg.RefreshLimitRPM))
	s.router.Use(s.refreshLimiter.RefreshMiddleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" || len(requestID) > 64 {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for listing refresh events
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// V1 API group
	v1 := s.router.Group("/v1")
	v1.GET("/chains", s.listChains)

	agents := v1.Group("/agents")
	agents.GET("", s.listAgents)
	agents.GET("/search", s.searchAgents)
	agents.GET("/compare", s.compareAgents)
	agents.GET("/:id", validation.AgentIDParamMiddleware(), s.getAgent)

	admin.NewHandler(s.metadata, s.cfg.AdminSecret).
		WithListingCache(s.controller.Cache()).
		WithEvents(s.realtimeHub).
		WithLogger(s.logger).
		RegisterRoutes(v1)
}

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Realtime  map[string]any  `json:"realtime,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ok, checks := s.health.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !ok {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   s.version,
		Checks:    checks,
		Realtime:  s.realtimeHub.Stats(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second, // a cold listing pass can take a while
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"default_chain", s.cfg.DefaultChain.String(),
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Database pool metrics
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(s.drainDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	// Stop rate limiter cleanup goroutines
	s.rateLimiter.Stop()
	s.refreshLimiter.Stop()
	s.logger.Info("rate limiters stopped")

	// Close RPC clients
	if closer, ok := s.registry.(interface{ Close() }); ok {
		closer.Close()
		s.logger.Info("rpc clients closed")
	}

	// Flush spans
	if err := s.shutdownTraces(ctx); err != nil {
		s.logger.Error("trace shutdown error", "error", err)
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Controller returns the listing controller
func (s *Server) Controller() *listing.Controller {
	return s.controller
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	return idgen.Hex(16)
}
