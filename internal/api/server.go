package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-tasmota/internal/audit"
	"github.com/nerrad567/gray-logic-tasmota/internal/automation"
	"github.com/nerrad567/gray-logic-tasmota/internal/bridges/tasmota"
	"github.com/nerrad567/gray-logic-tasmota/internal/device"
	"github.com/nerrad567/gray-logic-tasmota/internal/discovery"
	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// DeviceManager is the device surface the API serves. *tasmota.Manager
// implements it.
type DeviceManager interface {
	Summaries() []tasmota.Summary
	Summary(id string) (tasmota.Summary, error)
	Device(id string) (*device.Device, error)
	ManagesTopic(topic string) (string, bool)
	Add(ctx context.Context, def device.Definition) (tasmota.Summary, error)
	Remove(ctx context.Context, id string) error
}

// Discoverer runs discovery windows. *discovery.Engine implements it.
type Discoverer interface {
	Discover(ctx context.Context, timeout time.Duration) ([]discovery.Result, error)
}

// HealthChecker is implemented by components reported on /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	Devices     DeviceManager
	Routines    *automation.Engine
	RoutineRepo automation.Repository // optional: execution history
	Discovery   Discoverer            // optional: discovery disabled without it
	Audit       audit.Repository      // optional: command log

	// DiscoveryTimeout is used when a request does not set one.
	DiscoveryTimeout time.Duration

	// Health lists named components checked by /health.
	Health map[string]HealthChecker

	// Hub, if set, is used instead of creating one. The caller runs it.
	Hub *Hub

	Version string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg              config.APIConfig
	wsCfg            config.WebSocketConfig
	secCfg           config.SecurityConfig
	logger           *logging.Logger
	devices          DeviceManager
	routines         *automation.Engine
	routineRepo      automation.Repository
	discovery        Discoverer
	discoveryTimeout time.Duration
	health           map[string]HealthChecker
	version          string

	auditRepo audit.Repository
	auditCh   chan *audit.Entry

	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device manager is required")
	}
	if deps.DiscoveryTimeout <= 0 {
		deps.DiscoveryTimeout = 5 * time.Second
	}

	s := &Server{
		cfg:              deps.Config,
		wsCfg:            deps.WS,
		secCfg:           deps.Security,
		logger:           deps.Logger,
		devices:          deps.Devices,
		routines:         deps.Routines,
		routineRepo:      deps.RoutineRepo,
		discovery:        deps.Discovery,
		discoveryTimeout: deps.DiscoveryTimeout,
		health:           deps.Health,
		version:          deps.Version,
		auditRepo:        deps.Audit,
	}
	if s.auditRepo != nil {
		s.auditCh = make(chan *audit.Entry, auditChanSize)
	}
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	s.hub.SetSnapshot(s.devices.Summaries)
	if s.routines == nil {
		s.routines = automation.NewEngine(deps.RoutineRepo, s.hub, deps.Logger)
	}
	return s, nil
}

// Hub returns the WebSocket hub, for components that broadcast events.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}
	if s.auditCh != nil {
		go s.drainAuditLog(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", s.server.Addr, "cert", s.cfg.TLS.CertFile)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to 10 seconds
// for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
