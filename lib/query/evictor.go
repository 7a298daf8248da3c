package query

import (
	"context"
	"sync"
	"time"
)

// DefaultIdleTimeout is the idle timeout used if none is configured
const DefaultIdleTimeout = 60 * time.Second

// Evictor periodically removes sessions that have not been touched for too long.
//
// With an idle timeout D the registry is swept every D/2 and a session is
// evicted once it has been idle for 3D/2. A session that is touched at least
// every D therefore always survives, and a session idle for 2D is gone.
type Evictor struct {
	registry    *Registry
	idleTimeout time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewEvictor creates a stopped evictor. An idleTimeout <= 0 selects DefaultIdleTimeout.
func NewEvictor(registry *Registry, idleTimeout time.Duration) *Evictor {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Evictor{registry: registry, idleTimeout: idleTimeout}
}

// IdleTimeout returns the configured idle timeout D
func (e *Evictor) IdleTimeout() time.Duration {
	return e.idleTimeout
}

// Interval returns the time between two sweeps (D/2)
func (e *Evictor) Interval() time.Duration {
	return max(e.idleTimeout/2, time.Millisecond)
}

// MaxIdle returns the idle time after which a session is evicted (3D/2)
func (e *Evictor) MaxIdle() time.Duration {
	return e.idleTimeout + e.idleTimeout/2
}

// Start launches the background sweep loop. The loop ends on Stop or when ctx
// is done. Calling Start on a running evictor is a no-op.
func (e *Evictor) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})

	e.wg.Add(1)
	go e.loop(ctx, e.stopCh)
	log.Infof("evictor started [idleTimeout=%s, interval=%s]", e.idleTimeout, e.Interval())
}

// Stop ends the sweep loop and waits for a running sweep to finish
func (e *Evictor) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	e.mu.Unlock()

	e.wg.Wait()
	log.Infof("evictor stopped")
}

// Sweep evicts every session that is idle for at least MaxIdle at now and
// returns the number of evicted sessions. Sessions with a fetch in progress
// are skipped.
func (e *Evictor) Sweep(now time.Time) int {
	maxIdle := e.MaxIdle()

	var candidates []uint64
	e.registry.Range(func(s *Session) bool {
		if !s.Busy() && s.IdleFor(now) >= maxIdle {
			candidates = append(candidates, s.id)
		}
		return true
	})

	n := 0
	for _, id := range candidates {
		if e.registry.evictIfIdle(id, now, maxIdle) {
			n++
		}
	}
	return n
}

func (e *Evictor) loop(ctx context.Context, stopCh <-chan struct{}) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := e.Sweep(e.registry.Now()); n > 0 {
				log.Debugf("sweep evicted %d idle queries", n)
			}
		}
	}
}
