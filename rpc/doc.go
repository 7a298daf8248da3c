// Package rpc carries paged queries between dQRY clients and servers.
//
// A client executes a statement against a named cache and receives the first
// page of the result together with a query id. Further pages are pulled with
// fetch until a page is marked last, or the query is given up early with close.
// All three requests travel as a common.Message.
//
// Subpackages:
//
//   - common: the Message envelope, operation codes, client/server config
//     and the dragonboat logger factory.
//   - serializer: Message <-> bytes (binary, JSON, gob).
//   - transport: byte level request/response over TCP, Unix sockets or HTTP.
//   - server: decodes requests and dispatches them to the query service.
//   - client: typed Execute/Fetch/CloseQuery on top of a transport, mapping
//     error kinds back to query errors.
package rpc
