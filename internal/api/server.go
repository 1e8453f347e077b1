// Package api serves stored scans over HTTP: a REST interface under /api/v1
// and a JSON-RPC 2.0 interface over a websocket at /rpc.
//
//go:generate swag init --dir ./,../storage,../services,../report -g server.go --output ../../docs/swagger --outputTypes go --parseInternal
package api

// @title Scanvault API
// @version 1.0
// @description Stores nmap XML reports and serves the parsed scans, hosts and ports.
//
// @contact.name Scanvault
// @contact.url https://github.com/anstrom/scanvault
//
// @license.name MIT
//
// @BasePath /api/v1

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/anstrom/scanvault/docs/swagger" // registers the generated OpenAPI document

	"github.com/anstrom/scanvault/internal/api/middleware"
	"github.com/anstrom/scanvault/internal/config"
	"github.com/anstrom/scanvault/internal/logging"
	"github.com/anstrom/scanvault/internal/metrics"
	"github.com/anstrom/scanvault/internal/services"
	"github.com/anstrom/scanvault/internal/storage"
)

// Server timeout constants.
const (
	serverShutdownTimeout = 30 * time.Second
	healthCheckTimeout    = 5 * time.Second
)

// Ingester stores uploaded reports.
type Ingester interface {
	Ingest(ctx context.Context, source string, document []byte) (*services.Outcome, error)
	IngestReader(ctx context.Context, source string, r io.Reader) (*services.Outcome, error)
}

// Archive serves archived raw reports.
type Archive interface {
	Get(ctx context.Context, scanID string) ([]byte, error)
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators the server delegates to. Archive,
// Metrics and Logger are optional.
type Dependencies struct {
	Store   storage.Store
	Ingest  Ingester
	Archive Archive
	Metrics *metrics.PrometheusMetrics
	Logger  *logging.Logger
	Version string
}

// Server represents the API server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	config     config.APIConfig
	store      storage.Store
	ingest     Ingester
	archive    Archive
	rpc        *RPCHandler
	logger     *logging.Logger
	metrics    *metrics.PrometheusMetrics
	version    string
	startTime  time.Time
}

// New creates a new API server instance.
func New(cfg config.APIConfig, deps Dependencies) (*Server, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("api server requires a store")
	}
	if deps.Ingest == nil {
		return nil, fmt.Errorf("api server requires an ingest service")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.GetGlobalMetrics()
	}

	logger := deps.Logger.WithComponent("api")
	server := &Server{
		router:    mux.NewRouter(),
		config:    cfg,
		store:     deps.Store,
		ingest:    deps.Ingest,
		archive:   deps.Archive,
		logger:    logger,
		metrics:   deps.Metrics,
		version:   deps.Version,
		startTime: time.Now(),
	}
	server.rpc = NewRPCHandler(deps.Store, deps.Ingest, logger, deps.Metrics)

	server.setupRoutes()
	server.setupMiddleware()

	server.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.ListenAddr, strconv.Itoa(cfg.Port)),
		Handler:           server.Handler(),
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	return server, nil
}

// Start serves until ctx is canceled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting API server",
		"address", s.httpServer.Addr,
		"read_timeout", s.httpServer.ReadTimeout,
		"write_timeout", s.httpServer.WriteTimeout)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("API server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		return err
	}
}

// Stop closes open RPC sessions and gracefully stops the HTTP server.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	s.rpc.Shutdown()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("API server shutdown error", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped")
	return nil
}

// Handler returns the router wrapped in the outermost middleware.
// CORS wraps the router so preflight requests never need a matching route.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	if s.config.CORS.Enabled {
		h = handlers.CORS(
			handlers.AllowedOrigins(s.config.CORS.AllowedOrigins),
			handlers.AllowedMethods(s.config.CORS.AllowedMethods),
			handlers.AllowedHeaders(s.config.CORS.AllowedHeaders),
			handlers.ExposedHeaders([]string{"X-Request-ID"}),
		)(h)
	}
	return handlers.ProxyHeaders(h)
}

// GetRouter returns the configured router.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// GetAddress returns the server address.
func (s *Server) GetAddress() string {
	return s.httpServer.Addr
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/liveness", s.livenessHandler).Methods(http.MethodGet)
	api.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	api.HandleFunc("/version", s.versionHandler).Methods(http.MethodGet)
	api.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api.HandleFunc("/scans", s.listScansHandler).Methods(http.MethodGet)
	api.Handle("/scans", middleware.ContentType("application/xml", "text/xml")(
		http.HandlerFunc(s.uploadScanHandler))).Methods(http.MethodPost)
	api.HandleFunc("/scans/{id}", s.getScanHandler).Methods(http.MethodGet)
	api.HandleFunc("/scans/{id}/report", s.getReportHandler).Methods(http.MethodGet)
	api.HandleFunc("/hosts", s.listHostsHandler).Methods(http.MethodGet)
	api.HandleFunc("/hosts/{id}", s.getHostHandler).Methods(http.MethodGet)

	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	s.router.Handle("/rpc", s.rpc).Methods(http.MethodGet)

	s.router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("none"),
	)).Methods(http.MethodGet)
	s.router.HandleFunc("/docs", s.redirectToSwagger).Methods(http.MethodGet)
	s.router.HandleFunc("/", s.indexHandler).Methods(http.MethodGet)
}

// redirectToSwagger redirects to the Swagger UI.
func (s *Server) redirectToSwagger(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/swagger/index.html", http.StatusMovedPermanently)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.Logging(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(middleware.SecurityHeaders())
}
