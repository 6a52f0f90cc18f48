// Package api serves the read-mostly dashboard API and the live event
// stream for a running engine.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"dai-trader/config"
	"dai-trader/internal/auth"
	"dai-trader/internal/engine"
	"dai-trader/internal/events"
	"dai-trader/internal/logging"
	"dai-trader/internal/storage"
)

// RateLimiter provides simple in-memory rate limiting per endpoint
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	windowStart := now.Add(-r.window)

	// Filter out old requests
	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// Trader is what the API needs from the engine.
type Trader interface {
	Status() engine.Status
	LastReport() *engine.Report
	OpenTrades() []engine.OpenTrade
	RecentTrades(ctx context.Context, limit int) ([]storage.TradeRecord, error)
	RecordDistribution(ctx context.Context, amount float64) error
	ResetBreaker()
	RunCycle(ctx context.Context) (*engine.Report, error)
}

var _ Trader = (*engine.Engine)(nil)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      config.ServerConfig
	trader      Trader
	jwt         *auth.JWTManager
	bus         *events.EventBus
	hub         *WSHub
	checks      map[string]HealthCheck
	rateLimiter *RateLimiter
	logger      *logging.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithAuth protects every /api route except auth status with bearer
// tokens issued by m.
func WithAuth(m *auth.JWTManager) Option {
	return func(s *Server) { s.jwt = m }
}

// WithEventBus streams bus events to /ws clients.
func WithEventBus(bus *events.EventBus) Option {
	return func(s *Server) { s.bus = bus }
}

// WithHealthCheck adds a named dependency to /health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

// WithRateLimit overrides the limit applied to state-changing endpoints.
func WithRateLimit(limit int, window time.Duration) Option {
	return func(s *Server) { s.rateLimiter = NewRateLimiter(limit, window) }
}

func WithLogger(l *logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, trader Trader, opts ...Option) *Server {
	s := &Server{
		config:      cfg,
		trader:      trader,
		checks:      make(map[string]HealthCheck),
		rateLimiter: NewRateLimiter(30, time.Minute),
		logger:      logging.WithComponent("api"),
	}
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.logger))

	corsConfig := cors.DefaultConfig()
	if origins := splitOrigins(cfg.AllowedOrigins); len(origins) > 0 && origins[0] != "*" {
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	router.Use(cors.New(corsConfig))
	s.router = router

	if s.bus != nil {
		s.hub = NewWSHub(s.logger)
		go s.hub.Run()
		s.bus.SubscribeAll(s.hub.BroadcastEvent)
	}

	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  seconds(cfg.ReadTimeout, 15),
		WriteTimeout: seconds(cfg.WriteTimeout, 15),
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub, nil without an event bus.
func (s *Server) Hub() *WSHub {
	return s.hub
}

// rateLimitMiddleware rate limits requests by route
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		if !s.rateLimiter.Allow(path) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   true,
				"message": "Too many requests to this endpoint",
				"path":    path,
			})
			return
		}
		c.Next()
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	s.router.GET("/api/auth/status", func(c *gin.Context) {
		successResponse(c, gin.H{"auth_enabled": s.jwt != nil})
	})

	api := s.router.Group("/api")
	admin := api.Group("")
	if s.jwt != nil {
		api.Use(auth.Middleware(s.jwt))
		admin = api.Group("", auth.RequireScope(auth.ScopeAdmin))
	}
	admin.Use(s.rateLimitMiddleware())

	api.GET("/status", s.handleStatus)
	api.GET("/report", s.handleReport)
	api.GET("/positions", s.handlePositions)
	api.GET("/trades", s.handleTrades)
	api.GET("/ledger", s.handleLedger)
	api.GET("/circuit-breaker", s.handleBreaker)

	admin.POST("/ledger/distributions", s.handleDistribution)
	admin.POST("/circuit-breaker/reset", s.handleBreakerReset)
	admin.POST("/cycle", s.handleRunCycle)

	if s.hub != nil {
		if s.jwt != nil {
			s.router.GET("/ws", auth.Middleware(s.jwt), s.handleWebSocket)
		} else {
			s.router.GET("/ws", s.handleWebSocket)
		}
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.hub != nil {
		s.hub.Stop()
	}
	return s.httpServer.Shutdown(ctx)
}

// handleHealth runs every registered dependency check.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	deps := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			deps[name] = "unhealthy: " + err.Error()
			healthy = false
			continue
		}
		deps[name] = "healthy"
	}

	body := gin.H{
		"status":       "healthy",
		"running":      s.trader.Status().Running,
		"dependencies": deps,
	}
	if !healthy {
		body["status"] = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

func requestLogger(l *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		rl := l.APIContext(c.Request.Method, c.Request.URL.Path, status)
		ms := time.Since(start).Milliseconds()
		if status >= http.StatusInternalServerError {
			rl.Warn("request failed", "duration_ms", ms)
			return
		}
		rl.Debug("request", "duration_ms", ms)
	}
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func seconds(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
