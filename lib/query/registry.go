package query

import (
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
)

// Clock returns the current time. It is injected so tests can control time.
type Clock func() time.Time

// Registry maps query ids to open sessions.
//
// Ids are taken from a counter starting at 0 which is advanced for every
// execute attempt, failed ones included, so an id is never handed out twice
// during the lifetime of a registry.
type Registry struct {
	sessions *xsync.MapOf[uint64, *Session]
	nextID   atomic.Uint64
	now      Clock
	metrics  *Metrics
}

// NewRegistry creates an empty registry. A nil clock defaults to time.Now, a
// nil set to a fresh metrics.Set.
func NewRegistry(clock Clock, set *metrics.Set) *Registry {
	if clock == nil {
		clock = time.Now
	}
	if set == nil {
		set = metrics.NewSet()
	}
	r := &Registry{
		sessions: xsync.NewMapOf[uint64, *Session](),
		now:      clock,
	}
	r.metrics = newMetrics(set, func() float64 { return float64(r.Len()) })
	return r
}

// Now returns the current time of the registry clock
func (r *Registry) Now() time.Time {
	return r.now()
}

// Metrics returns the metrics of the registry
func (r *Registry) Metrics() *Metrics {
	return r.metrics
}

// NextID reserves a new query id
func (r *Registry) NextID() uint64 {
	return r.nextID.Add(1) - 1
}

// Put registers a session under its id
func (r *Registry) Put(s *Session) {
	r.sessions.Store(s.id, s)
	r.metrics.sessionOpened()
}

// Get returns the session with the given id
func (r *Registry) Get(id uint64) (*Session, bool) {
	return r.sessions.Load(id)
}

// Len returns the number of open sessions
func (r *Registry) Len() int {
	return r.sessions.Size()
}

// Range calls f for every open session until f returns false
func (r *Registry) Range(f func(s *Session) bool) {
	r.sessions.Range(func(_ uint64, s *Session) bool {
		return f(s)
	})
}

// Remove unregisters the session without closing it. Only the first caller
// for an id gets the session.
func (r *Registry) Remove(id uint64) (*Session, bool) {
	s, ok := r.sessions.LoadAndDelete(id)
	if ok {
		s.removed.Store(true)
	}
	return s, ok
}

// Terminate removes the session and closes its cursor. found is false if no
// session with this id is registered (anymore), in that case nothing happens.
// Only the caller that removes the session closes it.
func (r *Registry) Terminate(id uint64, reason CloseReason) (found bool, err error) {
	s, ok := r.Remove(id)
	if !ok {
		return false, nil
	}
	r.metrics.sessionClosed(reason)

	s.mu.Lock()
	defer s.mu.Unlock()
	return true, r.closeSession(s, reason)
}

// terminateLocked is Terminate for callers that already hold s.mu
func (r *Registry) terminateLocked(s *Session, reason CloseReason) {
	if _, ok := r.Remove(s.id); ok {
		r.metrics.sessionClosed(reason)
	}
	_ = r.closeSession(s, reason)
}

// evictIfIdle removes the session if it has been idle for at least maxIdle at
// now and no page is being read from it. The check and the removal are
// atomic, a session touched or fetched in the meantime survives.
func (r *Registry) evictIfIdle(id uint64, now time.Time, maxIdle time.Duration) bool {
	var evicted *Session
	r.sessions.Compute(id, func(s *Session, loaded bool) (*Session, bool) {
		if !loaded {
			return nil, true
		}
		if s.Busy() || s.IdleFor(now) < maxIdle {
			return s, false
		}
		evicted = s
		return nil, true
	})
	if evicted == nil {
		return false
	}

	evicted.removed.Store(true)
	r.metrics.sessionClosed(ReasonEvicted)
	log.Infof("evicting idle query [qryId=%d, idle=%s]", id, evicted.IdleFor(now).Round(time.Millisecond))

	evicted.mu.Lock()
	defer evicted.mu.Unlock()
	_ = r.closeSession(evicted, ReasonEvicted)
	return true
}

// CloseAll terminates every open session and returns the number of sessions closed
func (r *Registry) CloseAll(reason CloseReason) int {
	var ids []uint64
	r.sessions.Range(func(id uint64, _ *Session) bool {
		ids = append(ids, id)
		return true
	})

	n := 0
	for _, id := range ids {
		if found, _ := r.Terminate(id, reason); found {
			n++
		}
	}
	return n
}

// closeSession closes the cursor of s, s.mu must be held
func (r *Registry) closeSession(s *Session, reason CloseReason) error {
	if err := s.closeLocked(); err != nil {
		log.Warningf("failed to close cursor [qryId=%d, reason=%s]: %v", s.id, reason, err)
		return err
	}
	log.Debugf("closed query [qryId=%d, reason=%s]", s.id, reason)
	return nil
}
