package tcp

import (
	"fmt"
	"net"
	"time"

	"github.com/ValentinKolb/dQRY/rpc/common"
	"github.com/ValentinKolb/dQRY/rpc/transport"
	"github.com/ValentinKolb/dQRY/rpc/transport/base"
)

const (
	network           = "tcp"
	defaultBufferSize = 512 * 1024
	dialTimeout       = 5 * time.Second
)

// NewTCPClientTransport returns a client transport that dials TCP endpoints
func NewTCPClientTransport() transport.IRPCClientTransport {
	return base.NewBaseClientTransport(dialer{})
}

// NewTCPServerTransport returns a TCP server transport with a 512 KB read buffer
func NewTCPServerTransport() transport.IRPCServerTransport {
	return NewTCPServerTransportWithBuffer(defaultBufferSize)
}

// NewTCPServerTransportWithBuffer returns a TCP server transport whose
// connections read into buffers of bufferSize bytes.
func NewTCPServerTransportWithBuffer(bufferSize int) transport.IRPCServerTransport {
	return base.NewBaseServerTransport(listener{}, bufferSize)
}

// dialer is the base.IClientConnector for TCP
type dialer struct{}

func (dialer) GetName() string { return network }

func (dialer) Connect(endpoint string) (net.Conn, error) {
	return net.DialTimeout(network, endpoint, dialTimeout)
}

func (dialer) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
	return applyOptions(conn, config.Transport.SocketConf, config.Transport.TCPConf)
}

// listener is the base.IServerConnector for TCP
type listener struct{}

func (listener) GetName() string { return network }

func (listener) Listen(config common.ServerConfig) (net.Listener, error) {
	l, err := net.Listen(network, config.Transport.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", config.Transport.Endpoint, err)
	}
	return l, nil
}

func (listener) UpgradeConnection(conn net.Conn, config common.ServerConfig) error {
	return applyOptions(conn, config.Transport.SocketConf, config.Transport.TCPConf)
}
