package query

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dQRY/lib/engine"
)

// Session is the server-side state of one open query.
//
// The iterator is advanced only while mu is held, which makes overlapping
// fetches for the same id safe: they are served one after the other.
// lastTouched and inFlight are atomic so the evictor can read them without
// taking mu.
type Session struct {
	id        uint64
	cache     string
	sql       string
	createdAt time.Time

	lastTouched atomic.Int64 // unix nano
	removed     atomic.Bool  // set once the session is no longer reachable from the registry
	inFlight    atomic.Int32 // pages being built or waiting for mu

	mu        sync.Mutex // guards everything below
	cursor    engine.Cursor
	iter      engine.Iterator
	peeked    any
	hasPeeked bool
	closed    bool
}

// newSession wraps a cursor. The session starts touched.
func newSession(id uint64, cache, sql string, cursor engine.Cursor, now time.Time) *Session {
	s := &Session{
		id:        id,
		cache:     cache,
		sql:       sql,
		createdAt: now,
		cursor:    cursor,
		iter:      cursor.Iterator(),
	}
	s.Touch(now)
	return s
}

// ID returns the query id of the session
func (s *Session) ID() uint64 {
	return s.id
}

// Cache returns the name of the cache the query runs against
func (s *Session) Cache() string {
	return s.cache
}

// CreatedAt returns the time the session was created
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Touch marks the session as active at now
func (s *Session) Touch(now time.Time) {
	s.lastTouched.Store(now.UnixNano())
}

// LastTouched returns the time of the last activity
func (s *Session) LastTouched() time.Time {
	return time.Unix(0, s.lastTouched.Load())
}

// Busy reports whether a page of the session is being read right now
func (s *Session) Busy() bool {
	return s.inFlight.Load() > 0
}

// IdleFor returns how long the session has been inactive at now
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastTouched())
}

// --------------------------------------------------------------------------
// Iteration (mu must be held)
// --------------------------------------------------------------------------

// next returns the next item, consuming the peeked item first
func (s *Session) next(ctx context.Context) (any, bool, error) {
	if s.hasPeeked {
		item := s.peeked
		s.peeked, s.hasPeeked = nil, false
		return item, true, nil
	}
	return s.iter.Next(ctx)
}

// hasNext reports whether another item is available without consuming it
func (s *Session) hasNext(ctx context.Context) (bool, error) {
	if s.hasPeeked {
		return true, nil
	}
	item, ok, err := s.iter.Next(ctx)
	if err != nil || !ok {
		return false, err
	}
	s.peeked, s.hasPeeked = item, true
	return true, nil
}

// closeLocked closes the cursor. Calling it more than once is a no-op.
func (s *Session) closeLocked() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.peeked, s.hasPeeked = nil, false
	return s.cursor.Close()
}

// usableLocked reports whether the session may still be advanced
func (s *Session) usableLocked() bool {
	return !s.closed && !s.removed.Load()
}
