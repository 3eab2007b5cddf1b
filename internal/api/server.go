// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/portfolio-tracker/internal/adapter"
	"github.com/portfolio-tracker/internal/circuitbreaker"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/service"
)

// PortfolioServiceInterface defines the portfolio operations the API serves
type PortfolioServiceInterface interface {
	Portfolio(ctx context.Context) *models.CycleResult
	Refresh(ctx context.Context) *models.CycleResult
	Positions() []models.PositionConfig
	Record(symbol string) (models.NormalizedRecord, error)
	Status() service.ServiceStatus
}

// EndpointHealthSource reports provider endpoint health
type EndpointHealthSource interface {
	GetAllHealth() []*adapter.EndpointHealth
}

// BreakerStatsSource reports circuit breaker state
type BreakerStatsSource interface {
	GetAllStats() []*circuitbreaker.Stats
}

// Server represents the HTTP API server.
type Server struct {
	router           *mux.Router
	httpServer       *http.Server
	portfolioService PortfolioServiceInterface
	endpoints        EndpointHealthSource
	breakers         BreakerStatsSource
	config           *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    int // Requests per second per client
	RateBurst       int
}

// NewServer creates a new API server instance. endpoints and breakers may
// be nil; the status endpoint then omits them.
func NewServer(
	config *ServerConfig,
	portfolioService PortfolioServiceInterface,
	endpoints EndpointHealthSource,
	breakers BreakerStatsSource,
) *Server {
	s := &Server{
		router:           mux.NewRouter(),
		portfolioService: portfolioService,
		endpoints:        endpoints,
		breakers:         breakers,
		config:           config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RateLimitRPS, s.config.RateBurst)

	// Outermost first: the request logger must exist before anything logs.
	s.router.Use(RequestContextMiddleware)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/portfolio", s.handleGetPortfolio).Methods("GET")
	api.HandleFunc("/refresh", s.handleRefresh).Methods("POST")
	api.HandleFunc("/positions", s.handleListPositions).Methods("GET")
	api.HandleFunc("/positions/{symbol}", s.handleGetPosition).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "portfolio-tracker",
	})
}

// Start serves until Shutdown. A clean shutdown returns nil.
func (s *Server) Start() error {
	logging.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	if err := s.httpServer.ListenAndServe(); !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
