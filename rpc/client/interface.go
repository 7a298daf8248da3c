package client

import (
	"encoding/json"

	"github.com/ValentinKolb/dQRY/lib/engine"
)

// IQueryClient runs queries on a remote dQRY server.
//
// Errors returned by the server are *query.Error values, errors.Is(err,
// query.ErrNotFound) reports an unknown or expired query id.
type IQueryClient interface {
	// Execute runs a query and returns its first page. If typeName is empty sql
	// is a complete SELECT statement, otherwise the WHERE clause for the type.
	// A pageSize <= 0 uses the default page size of the server.
	Execute(cache, typeName, sql string, args []any, pageSize int) (*Page, error)
	// ExecuteFields runs a SELECT statement and returns its first page together
	// with the field metadata of the result
	ExecuteFields(cache, sql string, args []any, pageSize int) (*Page, error)
	// Fetch returns the next page of an open query
	Fetch(queryID uint64, pageSize int) (*Page, error)
	// CloseQuery closes an open query before it is exhausted
	CloseQuery(queryID uint64) (ok bool, err error)
	// ForEach calls fn for every item of the query starting with page and
	// fetches the remaining pages. If fn fails the query is closed.
	ForEach(page *Page, pageSize int, fn func(item json.RawMessage) error) error
	// Close closes the transport of the client
	Close() error
}

// Page is one page of a query result as received by the client
type Page struct {
	QueryID uint64
	// Items are the JSON encoded result items: rows ([]any) for fields queries
	// or {"key": ..., "value": {...}} objects for typed queries
	Items []json.RawMessage
	// Fields describes the result columns, it is set on the first page only
	Fields []engine.FieldMeta
	// Last is true if the query is exhausted, the server already released it
	Last bool
}
