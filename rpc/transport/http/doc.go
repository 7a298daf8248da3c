// Package http implements an HTTP based transport for the query RPC system.
//
// Every serialized request is sent as the body of a POST to /query, the body
// of the answer is the serialized response. The server uses net/http's
// goroutine-per-request model instead of the worker pool of the socket
// transports, and can serve further routes on the same listener (the query
// server mounts GET /metrics there).
//
// Key Components:
//
//   - httpClientTransport: Implements IRPCClientTransport. Requests are spread
//     round-robin over the configured endpoints and retried with exponential
//     backoff when no answer was received.
//
//   - httpServerTransport: Implements IRPCServerTransport and
//     IHTTPRouteRegistrar, with an optional logging middleware in debug mode.
package http
