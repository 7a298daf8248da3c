// Package server implements the RPC server of dQRY.
// It connects a transport and a serializer to the query service of lib/query,
// which keeps open queries between round-trips and evicts abandoned ones.
//
// Key Components:
//
//   - IRPCServerAdapter: Interface for adapters translating wire messages
//     (common.Message) into calls of the application logic.
//
//   - NewQueryServerAdapter: Adapter for the execute, execute-fields, fetch and
//     close messages. Arguments, result items and field metadata travel as JSON.
//
//   - NewRPCServer: Creates a server for an engine.Engine with the given
//     transport and serializer.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Transport:         common.ServerTransportConfig{Endpoint: "0.0.0.0:8080"},
//	  TimeoutSecond:     5,
//	  IdleTimeoutSecond: 60,
//	  LogLevel:          "info",
//	}
//
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPServerTransport(),
//	  serializer.NewBinarySerializer(),
//	  memengine.NewMemEngine(),
//	)
//
//	go func() {
//	  if err := s.Serve(); err != nil {
//	    log.Fatalf("Server error: %v", err)
//	  }
//	}()
//	...
//	_ = s.Shutdown(ctx)
//
// Metrics (VictoriaMetrics, Prometheus text format) are served on /metrics by
// the HTTP transport and, if ServerConfig.MetricsEndpoint is set, on a
// separate listener.
//
// Thread Safety:
//
//	The server handles concurrent requests across multiple connections.
//	Requests on the same query are serialized by the query service.
//	Serve should be called only once.
package server
