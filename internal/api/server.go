package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/distribo/services/recouvrement/config"
	"example.com/distribo/services/recouvrement/internal/api/handlers"
	"example.com/distribo/services/recouvrement/internal/api/middleware"
	"example.com/distribo/services/recouvrement/internal/metrics"
	"example.com/distribo/services/recouvrement/internal/services"
	"example.com/distribo/services/recouvrement/internal/tracing"
)

// Server represents the HTTP server
type Server struct {
	config          config.Config
	router          *gin.Engine
	httpServer      *http.Server
	invoiceService  services.InvoiceService
	recoveryService services.RecoveryService
	collector       *metrics.Metrics
	tracer          tracing.Tracer
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.Config,
	invoiceService services.InvoiceService,
	recoveryService services.RecoveryService,
	collector *metrics.Metrics,
	tracer tracing.Tracer,
) *Server {
	server := &Server{
		config:          cfg,
		invoiceService:  invoiceService,
		recoveryService: recoveryService,
		collector:       collector,
		tracer:          tracer,
	}

	server.router = server.setupRouter()
	server.httpServer = &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      server.router,
		ReadTimeout:  cfg.ServerTimeout,
		WriteTimeout: cfg.ServerTimeout,
	}

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	if s.config.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	metricsHandler := handlers.NewMetricsHandler(s.collector)
	metricsHandler.RegisterRoutes(router)

	apiGroup := router.Group("/api/v1", middleware.Auth(s.config.Auth.JWTSecret))

	invoiceHandler := handlers.NewInvoiceHandler(s.invoiceService, s.tracer)
	invoiceHandler.RegisterRoutes(apiGroup)

	recoveryHandler := handlers.NewRecoveryHandler(s.recoveryService, s.tracer)
	recoveryHandler.RegisterRoutes(apiGroup)

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.ServerAddress).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
