// Package common provides core data structures and utilities shared by the
// query server, the client and the transports.
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication. A single flat
//     struct is used for every request and response, which fields are set
//     depends on the MessageType. Query arguments, result items and field
//     metadata travel as opaque JSON documents.
//
//   - MessageType: Enumeration of the supported operations (execute,
//     executeFields, fetch, close) and control messages (success, error).
//
//   - ServerConfig / ClientConfig: configuration for servers and clients,
//     including the socket options shared by the tcp and unix transports.
//
//   - Logger: Custom logging implementation plugged into Dragonboat's logger
//     registry, giving all packages the same output format.
package common
