package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/backdoor-sh/termcore/internal/api/http"
	"github.com/backdoor-sh/termcore/internal/api/middleware"
	"github.com/backdoor-sh/termcore/internal/api/ws"
	"github.com/backdoor-sh/termcore/internal/infrastructure/config"
	"github.com/backdoor-sh/termcore/internal/infrastructure/logging"
	"github.com/backdoor-sh/termcore/internal/infrastructure/monitoring"
	"github.com/backdoor-sh/termcore/internal/terminal"
)

// Server wires the terminal service behind the HTTP/WebSocket API.
type Server struct {
	router  *gin.Engine
	service *terminal.Service
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
	httpSrv *http.Server
}

// New creates a server instance from configuration.
func New(cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}

	logger.Info("initializing termcore server",
		zap.String("port", cfg.Server.Port),
		zap.String("session_root", cfg.SessionRoot()),
		zap.String("shell", cfg.Terminal.Shell),
	)

	metrics := monitoring.NewMetrics()

	service, err := terminal.NewService(cfg, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create terminal service: %w", err)
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.GinMiddleware())
	router.Use(cors.Default())
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	apihttp.NewHandler(service, logger).Register(router)
	wsHandler := ws.NewHandler(service, logger, metrics)
	router.GET("/sessions/:id/ws", wsHandler.HandleConnection)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &Server{
		router:  router,
		service: service,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("server listening", zap.String("addr", addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Close shuts the server down gracefully, terminating every live
// session and its processes.
func (s *Server) Close() error {
	s.logger.Info("shutting down")
	s.service.Shutdown()

	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}
	return s.logger.Sync()
}
