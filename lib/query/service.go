package query

import (
	"context"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/dQRY/lib/engine"
)

// Options configure a Service. The zero value is usable.
type Options struct {
	IdleTimeout     time.Duration // D, sessions idle for 3D/2 are evicted
	DefaultPageSize int
	Clock           Clock        // defaults to time.Now
	Metrics         *metrics.Set // defaults to a fresh set
}

// Service bundles the components of the query protocol around one registry
type Service struct {
	Registry *Registry
	Executor *Executor
	Pager    *Pager
	Evictor  *Evictor
	Handler  *Handler
}

// NewService wires a registry, executor, pager, evictor and handler on top of e.
// The evictor is not started.
func NewService(e engine.Engine, opts Options) *Service {
	registry := NewRegistry(opts.Clock, opts.Metrics)
	pager := NewPager(registry, opts.DefaultPageSize)
	executor := NewExecutor(e, registry, pager)
	return &Service{
		Registry: registry,
		Executor: executor,
		Pager:    pager,
		Evictor:  NewEvictor(registry, opts.IdleTimeout),
		Handler:  NewHandler(executor, pager, registry),
	}
}

// Start starts the evictor
func (s *Service) Start(ctx context.Context) {
	s.Evictor.Start(ctx)
}

// Shutdown stops the evictor and closes all open sessions
func (s *Service) Shutdown() {
	s.Evictor.Stop()
	if n := s.Registry.CloseAll(ReasonShutdown); n > 0 {
		log.Infof("closed %d open queries on shutdown", n)
	}
}
