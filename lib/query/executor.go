package query

import (
	"context"

	"github.com/ValentinKolb/dQRY/lib/engine"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("query")

// ExecuteRequest opens a new query. TypeName is ignored for fields queries.
type ExecuteRequest struct {
	Cache    string
	TypeName string
	SQL      string
	Args     []any
	PageSize int
	Fields   bool
}

// Executor starts queries on the engine and registers their sessions
type Executor struct {
	engine   engine.Engine
	registry *Registry
	pager    *Pager
}

func NewExecutor(e engine.Engine, registry *Registry, pager *Pager) *Executor {
	return &Executor{engine: e, registry: registry, pager: pager}
}

// Execute runs the query and returns its first page together with the field
// metadata of the result. The page carries the id of the new session, unless
// it is already the last one.
//
// An id is reserved for every call, also if the call fails. A failed call
// leaves no session behind.
func (x *Executor) Execute(ctx context.Context, req ExecuteRequest) (page *Page, err error) {
	id := x.registry.NextID()

	cache, ok := x.engine.Cache(req.Cache)
	if !ok {
		return nil, errCacheNotFound(req.Cache)
	}

	q := engine.Query{SQL: req.SQL, Args: req.Args}
	if !req.Fields {
		q.TypeName = req.TypeName
	}

	cursor, err := cache.Query(ctx, q)
	if err != nil {
		log.Debugf("query rejected by engine [qryId=%d, cache=%s]: %v", id, req.Cache, err)
		return nil, errEngine(err)
	}

	fields := cursor.FieldsMeta()

	s := newSession(id, req.Cache, req.SQL, cursor, x.registry.Now())
	x.registry.Put(s)
	log.Debugf("opened query [qryId=%d, cache=%s, sql=%q]", id, req.Cache, req.SQL)

	// also covers panics in the engine, the router recovers them
	registered := false
	defer func() {
		if !registered {
			_, _ = x.registry.Terminate(id, ReasonFailed)
		}
	}()

	page, err = x.pager.page(ctx, s, req.PageSize)
	if err != nil {
		return nil, err
	}
	registered = true

	page.Fields = fields
	return page, nil
}
