package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/habitat-home/habitat-core/internal/engine"
	"github.com/habitat-home/habitat-core/internal/habitat"
	"github.com/habitat-home/habitat-core/internal/infrastructure/config"
	"github.com/habitat-home/habitat-core/internal/infrastructure/logging"
	"github.com/habitat-home/habitat-core/internal/space"
	"github.com/habitat-home/habitat-core/internal/supervisor"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Spaces     *space.Registry
	Engine     *engine.Engine
	Supervisor *supervisor.Supervisor
	Habitat    *habitat.Habitat
	Version    string
}

// Server is the HTTP and WebSocket surface over the habitat facade.
//
// It is created with New and started with Start; all methods are safe
// for concurrent use.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	spaces    *space.Registry
	engine    *engine.Engine
	sup       *supervisor.Supervisor
	habitat   *habitat.Habitat
	version   string
	startTime time.Time

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc
}

// New creates an API server. The server does not listen until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Spaces == nil {
		return nil, fmt.Errorf("space registry is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if deps.Supervisor == nil {
		return nil, fmt.Errorf("supervisor is required")
	}
	if deps.Habitat == nil {
		return nil, fmt.Errorf("habitat facade is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		spaces:    deps.Spaces,
		engine:    deps.Engine,
		sup:       deps.Supervisor,
		habitat:   deps.Habitat,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(deps.WS, deps.Logger),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, subscribes the hub to the facade's event
// stream, and launches the listener in a background goroutine. Stop with
// Close.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)

	// Live event relay: every accepted state change reaches subscribed
	// websocket clients.
	s.habitat.Subscribe(func(evt engine.Event) {
		s.hub.Broadcast(ChannelStateChanged, evt)
	})

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
			s.logger.Info("api server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("api server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the server, waiting up to ten seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("api server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down api server: %w", err)
	}
	return nil
}

// HealthCheck verifies the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
