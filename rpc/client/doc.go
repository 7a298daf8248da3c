// Package client implements the RPC client of dQRY.
// It provides IQueryClient, which sends execute, fetch and close requests to a
// remote server via the configured transport and serializer.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  TimeoutSecond: 5,
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:              []string{"localhost:8080"},
//	    RetryCount:             3,
//	    ConnectionsPerEndpoint: 1,
//	  },
//	}
//
//	c, err := client.NewRPCQueryClient(config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//	  log.Fatal(err)
//	}
//	defer c.Close()
//
//	page, err := c.ExecuteFields("people", "SELECT name FROM Person WHERE age > ?", []any{30}, 100)
//	if err != nil {
//	  log.Fatal(err)
//	}
//	err = c.ForEach(page, 100, func(item json.RawMessage) error {
//	  fmt.Println(string(item))
//	  return nil
//	})
//
// Open queries that are not read to the end should be closed with CloseQuery,
// otherwise the server evicts them after the idle timeout. A Fetch on an
// evicted query fails with query.ErrNotFound.
//
// Thread Safety:
//
//	The client is safe for concurrent use. Concurrent fetches of the same
//	query are serialized by the server, each page is delivered exactly once.
package client
