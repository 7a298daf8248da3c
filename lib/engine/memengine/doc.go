// Package memengine implements engine.Engine with in-memory caches. It is the
// engine used by the dqry server when no external engine is wired in, and the
// engine used throughout the tests.
//
// Caches contain tables, tables contain rows keyed by one of their columns.
// Queries are parsed with github.com/xwb1989/sqlparser and support a small
// subset of SQL:
//
//	SELECT * | col [AS alias], ... FROM table
//	  [WHERE cond]          -- = != <> < <= > >=, AND, OR, NOT, IS [NOT] NULL, ( )
//	  [ORDER BY col [ASC|DESC], ...]
//	  [LIMIT [offset,] count]
//
// Positional '?' placeholders are bound to engine.Query.Args. Numbers are
// compared as float64 regardless of their Go type.
//
// Typed queries (engine.Query.TypeName set) take a WHERE clause for the table
// named by TypeName and produce engine.Entry items.
//
// Cursors take a snapshot of the table when the query is executed, later
// inserts are not visible to open cursors. Unordered queries are filtered
// lazily while iterating.
package memengine
