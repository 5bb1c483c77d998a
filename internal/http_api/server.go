package http_api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campaigndesk/campaigndesk/internal/geoip"
	"github.com/campaigndesk/campaigndesk/internal/guard"
	"github.com/campaigndesk/campaigndesk/internal/models"
	"github.com/campaigndesk/campaigndesk/pkg/logger"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout = 10 * time.Second
)

// Guards hands out the session guard of a client. Peek serves read-only
// requests and does not keep guards of clients without state.
type Guards interface {
	Get(ctx context.Context, clientID string) (*guard.Guard, error)
	Peek(ctx context.Context, clientID string) (*guard.Guard, error)
}

// ChangeFeed streams table change events.
type ChangeFeed interface {
	Subscribe(buffer int) (<-chan models.ChangeEvent, func())
}

// Locator resolves the location of a client address.
type Locator interface {
	Lookup(ctx context.Context, ip string) (geoip.Location, error)
}

// RequestObserver records served requests.
type RequestObserver interface {
	ObserveHTTP(method, route string, status int, d time.Duration)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the HTTP server.
type Options struct {
	Port int
	// CookieSecure marks the client cookie Secure. Enable behind HTTPS.
	CookieSecure bool
	// AllowedOrigins are echoed in CORS responses. "*" allows any origin.
	AllowedOrigins []string
	// TrustedProxies may set the client address through X-Forwarded-For.
	// Empty trusts nobody, so lockouts and bans use the peer address.
	TrustedProxies []string
	// Development switches gin to debug mode.
	Development bool
}

// Deps are the collaborators of the HTTP server. Feed, Locator, Observer,
// Metrics and Health may be nil.
type Deps struct {
	Console  models.ConsoleI
	Guards   Guards
	Feed     ChangeFeed
	Locator  Locator
	Observer RequestObserver
	// Metrics serves /metrics.
	Metrics http.Handler
	Health  Pinger
	Logger  *logger.Logger
}

// HTTPServer is the HTTP server struct that will serve the API
type HTTPServer struct {
	// logger is the logger instance
	logger *logger.Logger

	// router is the HTTP router
	router *gin.Engine
	// options holds port and cookie settings
	options Options

	// server is the underlying HTTP server
	server *http.Server

	// console is the main application struct
	console  models.ConsoleI
	guards   Guards
	feed     ChangeFeed
	locator  Locator
	observer RequestObserver
	metrics  http.Handler
	health   Pinger
}

// NewHTTPServer creates a new HTTP server instance
func NewHTTPServer(options Options, deps Deps) *HTTPServer {
	if options.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(options.TrustedProxies); err != nil {
		deps.Logger.Error("Invalid trusted proxies, trusting none", "proxies", options.TrustedProxies, "error", err)
		_ = router.SetTrustedProxies(nil)
	}

	server := &HTTPServer{
		router:   router,
		options:  options,
		console:  deps.Console,
		guards:   deps.Guards,
		feed:     deps.Feed,
		locator:  deps.Locator,
		observer: deps.Observer,
		metrics:  deps.Metrics,
		health:   deps.Health,
		logger:   deps.Logger.Named("http"),
	}

	router.Use(server.observe(), corsMiddleware(options.AllowedOrigins))

	// Define routes
	server.routes()

	return server
}

var _ models.APIServer = (*HTTPServer)(nil)

// Handler exposes the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server. It blocks until Shutdown is called.
func (s *HTTPServer) Start() error {
	addr := fmt.Sprintf("0.0.0.0:%v", s.options.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "address", addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start the HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server...")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	s.logger.Info("HTTP server shut down successfully")
	return nil
}
