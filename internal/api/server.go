package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"detectorx-worker-go/internal/api/handlers"
	"detectorx-worker-go/internal/api/middleware"
	"detectorx-worker-go/internal/config"
	"detectorx-worker-go/internal/services"
	"detectorx-worker-go/internal/ws"
)

type Server struct {
	config    *config.Config
	router    *gin.Engine
	server    *http.Server
	container *services.ServiceContainer

	// cancelled on shutdown so long-lived MJPEG streams end
	baseCtx    context.Context
	cancelBase context.CancelFunc

	healthHandler  *handlers.HealthHandler
	systemHandler  *handlers.SystemHandler
	detectHandler  *handlers.DetectHandler
	monitorHandler *handlers.MonitorHandler
	alertsHandler  *handlers.AlertsHandler
	wsHandler      *ws.Handler
}

func NewServer(cfg *config.Config, container *services.ServiceContainer) (*Server, error) {
	if container == nil {
		return nil, errors.New("service container is required")
	}
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	// multipart parts beyond this spill to disk
	router.MaxMultipartMemory = 32 << 20

	s := &Server{
		config:    cfg,
		router:    router,
		container: container,

		healthHandler:  handlers.NewHealthHandler(cfg.WorkerID, cfg.Version, container.DetectionSvc.IsHealthy, container.Capabilities),
		systemHandler:  handlers.NewSystemHandler(cfg.WorkerID, container.MonitorManager.List, container.Hub.ClientCount),
		detectHandler:  handlers.NewDetectHandler(cfg, container.MonitorManager),
		monitorHandler: handlers.NewMonitorHandler(cfg, container.MonitorManager, container.MJPEG, container.UploadPolicy),
		alertsHandler:  handlers.NewAlertsHandler(container.Journal),
		wsHandler:      ws.NewHandler(container.Hub, container.MonitorManager.Exists),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.RequestContext())
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.CORS())
	s.router.Use(middleware.BodyLimit(s.config.MaxUploadSizeMB << 20))
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	log.Info().Int("port", s.config.Port).Msg("Starting DetectorX worker API")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then stops monitors and releases services
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Stopping DetectorX worker API")
	s.cancelBase()
	httpErr := s.server.Shutdown(ctx)
	return errors.Join(httpErr, s.container.Shutdown(ctx))
}
