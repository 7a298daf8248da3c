// Package engine defines the contract between the query front end and the
// query engine that actually executes SQL. The front end treats the engine as
// a cursor-producing black box: it looks up a cache by name, hands it a Query
// and receives a Cursor whose Iterator it advances page by page.
//
// Key Components:
//
//   - Engine: resolves caches by name.
//
//   - Cache: executes a Query and returns a Cursor. Two query flavours exist:
//     fields queries (a complete SELECT statement, items are rows) and typed
//     queries (a WHERE clause over the table named by TypeName, items are Entry
//     values carrying the row key and the row as a map).
//
//   - Cursor: owns the server-side result. It exposes the Iterator, field
//     metadata (FieldMeta) and Close.
//
//   - Iterator: forward-only, not restartable and not safe for concurrent use.
//     Callers that share a cursor between goroutines must serialise access.
//
// A reference in-memory implementation is available in the
// "github.com/ValentinKolb/dQRY/lib/engine/memengine" package.
package engine
