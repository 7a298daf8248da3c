// Package base holds the socket transport shared by the tcp and unix
// packages. Those packages only supply an IClientConnector or
// IServerConnector that dials or listens; framing, correlation, workers and
// reconnects live here.
//
// Frames are an 8 byte request id, a 4 byte payload length and the payload.
// A response carries the id of its request, so responses on one connection
// may come back in any order.
//
// Client side, clientTransport keeps ConnectionsPerEndpoint connections per
// endpoint and spreads requests round-robin. A request whose frame could not
// be written is retried on another connection with backoff; once written it
// is never sent again, because fetch consumes a page and a repeat would skip
// one. Broken connections are redialed in the background.
//
// Server side, serverTransport runs one reader goroutine per connection and
// hands every frame to a single ants pool shared by all connections. Read
// buffers come from a sync.Pool and frames are written with net.Buffers.
// Shutdown closes the listener, stops the readers, waits for running
// requests to answer and then closes the connections.
package base
