package query

import (
	"context"

	"github.com/ValentinKolb/dQRY/lib/engine"
)

// DefaultPageSize is used when a request carries no positive page size
const DefaultPageSize = 1024

// FetchRequest asks for the next page of an open query
type FetchRequest struct {
	QueryID  uint64
	PageSize int
}

// Page is one batch of query results
type Page struct {
	QueryID uint64
	Items   []any
	// Last is true if the query is exhausted. The session is closed already
	// and later fetches for QueryID fail with ErrNotFound.
	Last bool
	// Fields is set on the first page of every query, fetched pages carry none
	Fields []engine.FieldMeta
}

// Pager reads pages from registered sessions
type Pager struct {
	registry        *Registry
	defaultPageSize int
}

// NewPager creates a pager. A pageSize <= 0 selects DefaultPageSize.
func NewPager(registry *Registry, pageSize int) *Pager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Pager{registry: registry, defaultPageSize: pageSize}
}

// DefaultPageSize returns the page size used for requests without one
func (p *Pager) DefaultPageSize() int {
	return p.defaultPageSize
}

// Fetch returns the next page of the query req.QueryID
func (p *Pager) Fetch(ctx context.Context, req FetchRequest) (*Page, error) {
	s, ok := p.registry.Get(req.QueryID)
	if !ok {
		return nil, errQueryNotFound(req.QueryID)
	}
	return p.page(ctx, s, req.PageSize)
}

// page reads up to size items from s and looks one item ahead to decide
// whether this is the last page. Exhausted or failed sessions are terminated
// before page returns.
func (p *Pager) page(ctx context.Context, s *Session, size int) (*Page, error) {
	if size <= 0 {
		size = p.defaultPageSize
	}

	// a session with a running or waiting fetch is never evicted
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.usableLocked() {
		return nil, errQueryNotFound(s.id)
	}
	s.Touch(p.registry.Now())

	items := make([]any, 0, min(size, 64))
	exhausted := false
	for len(items) < size {
		item, ok, err := s.next(ctx)
		if err != nil {
			p.fail(s, err)
			return nil, errEngine(err)
		}
		if !ok {
			exhausted = true
			break
		}
		items = append(items, item)
	}

	// an exhausted iterator is never advanced again
	more := false
	if !exhausted {
		var err error
		if more, err = s.hasNext(ctx); err != nil {
			p.fail(s, err)
			return nil, errEngine(err)
		}
	}

	// the idle time starts when the page is handed out
	if more {
		s.Touch(p.registry.Now())
	} else {
		p.registry.terminateLocked(s, ReasonExhausted)
	}

	p.registry.metrics.pageDelivered(len(items))
	return &Page{QueryID: s.id, Items: items, Last: !more}, nil
}

func (p *Pager) fail(s *Session, err error) {
	log.Warningf("query failed while paging [qryId=%d]: %v", s.id, err)
	p.registry.terminateLocked(s, ReasonFailed)
}
