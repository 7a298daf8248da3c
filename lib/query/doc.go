// Package query implements server-side cursors for SQL queries.
//
// A client opens a query with an execute command and receives the first page
// of results together with a query id. Later pages are pulled with fetch
// commands carrying that id. A query ends in one of three ways:
//
//   - the last page was delivered (Page.Last is set)
//   - the client sends a close command
//   - the query was not fetched for too long and is evicted
//
// In all three cases the session is removed from the Registry and the engine
// cursor is closed exactly once. Afterwards the id is unknown and every
// command using it fails with ErrNotFound.
//
// The Handler is the entry point for transports: it takes a Request, routes
// it by Command and always answers with a Response. Errors and panics are
// converted into failed responses.
//
// Usage:
//
//	svc := query.NewService(engine, query.Options{IdleTimeout: time.Minute})
//	svc.Start(ctx)
//	defer svc.Shutdown()
//
//	resp := svc.Handler.Handle(ctx, query.Request{
//		Command: query.CmdExecuteFields,
//		Execute: &query.ExecuteRequest{Cache: "people", SQL: "SELECT * FROM Person", PageSize: 100},
//	})
package query
