package server

import (
	"context"
	"fmt"
	"net/http"

	logging "github.com/ipfs/go-log/v2"

	"github.com/swarmscore/swarmscore/internal/events"
	"github.com/swarmscore/swarmscore/internal/metrics"
	"github.com/swarmscore/swarmscore/internal/registry"
	"github.com/swarmscore/swarmscore/internal/weights"
	"github.com/swarmscore/swarmscore/web"
)

var log = logging.Logger("server")

type config struct {
	metricsEndpointToken string
}

type Option func(*config)

func WithMetricsEndpoint(authToken string) Option {
	return func(c *config) {
		c.metricsEndpointToken = authToken
	}
}

// Server exposes the registration endpoint and the read-only dashboard
// surface. All dashboard routes are observers; nothing here mutates
// scoring state.
type Server struct {
	cfg      *config
	registry *registry.Registry
	manager  *weights.Manager
	eventLog *events.Log
	httpSrv  *http.Server
}

func New(reg *registry.Registry, manager *weights.Manager, eventLog *events.Log, opts ...Option) (*Server, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Server{cfg: cfg, registry: reg, manager: manager, eventLog: eventLog}, nil
}

func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", s.getRootHandler())
	mux.HandleFunc("GET /healthz", s.getHealthHandler())
	mux.HandleFunc("POST /register", s.registerHandler())

	mux.HandleFunc("GET /api/routes", s.getRoutesHandler())
	mux.HandleFunc("GET /api/workers", s.getWorkersHandler())
	mux.HandleFunc("GET /api/scores", s.getScoresHandler())
	mux.HandleFunc("GET /api/events", s.getEventsHandler())

	mux.HandleFunc("GET /dashboard", web.DashboardHandler(s.registry, s.manager))

	if s.cfg.metricsEndpointToken != "" {
		if err := metrics.Init(); err != nil {
			return fmt.Errorf("initializing metrics: %w", err)
		}

		mux.Handle("GET /metrics", s.getMetricsHandler())
	} else {
		log.Warnf("Metrics endpoint is disabled")
	}

	s.httpSrv = &http.Server{Addr: addr, Handler: mux}

	log.Infof("Listening on %s", addr)
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains in-flight requests before returning.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
