package engine

import (
	"context"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Engine is the entry point into a query engine. It resolves caches by name.
type Engine interface {
	// Cache returns the cache with the given name. The boolean return value
	// indicates whether a cache with that name exists.
	Cache(name string) (cache Cache, ok bool)
}

// Cache is a named collection of tables that can be queried.
type Cache interface {
	// Name returns the name of the cache
	Name() string
	// Query executes the query against the cache and returns a cursor over the result.
	// The caller owns the cursor and must close it.
	Query(ctx context.Context, q Query) (cursor Cursor, err error)
}

// Cursor is the engine's handle to a result set.
type Cursor interface {
	// Iterator returns the iterator over the result set. Calling Iterator more than
	// once returns the same iterator, cursors are not restartable.
	Iterator() Iterator
	// FieldsMeta returns metadata about the fields of each result item.
	// It may return nil if the engine has no metadata for the result.
	FieldsMeta() []FieldMeta
	// Close releases all resources held by the cursor. Close must be safe to call more than once.
	Close() error
}

// Iterator is a stateful, forward-only iterator over a result set.
// Iterators are not safe for concurrent use.
type Iterator interface {
	// Next returns the next item of the result set.
	// If the iterator is exhausted, ok is false and item is nil.
	Next(ctx context.Context) (item any, ok bool, err error)
}

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

// Query describes a query to execute against a cache.
type Query struct {
	// TypeName is the name of the type (table) for typed queries. If empty,
	// SQL is a complete fields query.
	TypeName string
	// SQL is the query text. For typed queries this is the WHERE clause.
	SQL string
	// Args are the positional arguments bound to '?' placeholders.
	Args []any
}

// IsFieldsQuery returns whether the query returns rows of fields instead of key-value entries
func (q Query) IsFieldsQuery() bool {
	return q.TypeName == ""
}

// FieldMeta describes a single field of a result item.
type FieldMeta struct {
	SchemaName    string `json:"schemaName"`
	TypeName      string `json:"typeName"`
	FieldName     string `json:"fieldName"`
	FieldTypeName string `json:"fieldTypeName"`
}

// Entry is the result item of a typed query.
type Entry struct {
	Key   string         `json:"key"`
	Value map[string]any `json:"value"`
}
