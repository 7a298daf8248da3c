package transport

import (
	"context"
	"net/http"

	"github.com/ValentinKolb/dQRY/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc is called by a server transport for every received request.
// ctx is cancelled when the request times out or the server shuts down.
type ServerHandleFunc func(ctx context.Context, req []byte) (resp []byte)

// IRPCServerTransport is the interface for the RPC transport layer
type IRPCServerTransport interface {
	// RegisterHandler registers the handler called for every request
	RegisterHandler(handler ServerHandleFunc)
	// Listen starts the transport and blocks until Shutdown is called or the
	// listener fails. After Shutdown it returns nil.
	Listen(config common.ServerConfig) error
	// Shutdown stops accepting requests and waits for running requests to
	// finish or ctx to expire
	Shutdown(ctx context.Context) error
}

// IHTTPRouteRegistrar is implemented by server transports that serve HTTP and
// can expose additional routes (e.g. /metrics) next to the RPC endpoint
type IHTTPRouteRegistrar interface {
	HandleHTTP(pattern string, handler http.Handler)
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a request to the server and returns the response
	Send(req []byte) (resp []byte, err error)
	// Close closes the transport connection
	Close() error
}
