// Package transport defines the interfaces for moving serialized messages
// between query clients and servers. It provides a common contract that all
// transport implementations fulfill, so client and server code never depend
// on the network protocol.
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management and request sending.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receive requests, pass them to the registered handler and shut down gracefully.
//
//   - IHTTPRouteRegistrar: optional interface of HTTP based server transports
//     that can serve extra routes such as /metrics.
//
//   - ServerHandleFunc: Function type for request handling callbacks.
//
// Implementations live in the sub packages tcp, unix (both built on base) and http.
package transport
