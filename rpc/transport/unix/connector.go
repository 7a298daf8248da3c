package unix

import (
	"fmt"
	"io/fs"
	"net"
	"os"

	"github.com/ValentinKolb/dQRY/rpc/common"
	"github.com/ValentinKolb/dQRY/rpc/transport"
	"github.com/ValentinKolb/dQRY/rpc/transport/base"
)

const (
	network           = "unix"
	defaultBufferSize = 64 * 1024
)

// NewUnixClientTransport returns a client transport for Unix domain sockets.
// Endpoints are socket paths.
func NewUnixClientTransport() transport.IRPCClientTransport {
	return base.NewBaseClientTransport(dialer{})
}

// NewUnixDefaultServerTransport returns a Unix socket server transport with 64 KB read buffers
func NewUnixDefaultServerTransport() transport.IRPCServerTransport {
	return NewUnixServerTransport(defaultBufferSize)
}

// NewUnixServerTransport returns a Unix socket server transport with read
// buffers of bufferSize bytes.
func NewUnixServerTransport(bufferSize int) transport.IRPCServerTransport {
	return base.NewBaseServerTransport(listener{}, bufferSize)
}

type dialer struct{}

func (dialer) GetName() string { return network }

func (dialer) Connect(path string) (net.Conn, error) {
	return net.Dial(network, path)
}

func (dialer) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
	return setBuffers(conn, config.Transport.SocketConf)
}

type listener struct{}

func (listener) GetName() string { return network }

// Listen binds the socket path of the config. A socket left behind by an
// earlier run is removed, any other file at the path is an error.
func (listener) Listen(config common.ServerConfig) (net.Listener, error) {
	path := config.Transport.Endpoint
	if err := removeStaleSocket(path); err != nil {
		return nil, err
	}
	l, err := net.Listen(network, path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	return l, nil
}

func (listener) UpgradeConnection(conn net.Conn, config common.ServerConfig) error {
	return setBuffers(conn, config.Transport.SocketConf)
}

func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	switch {
	case os.IsNotExist(err):
		return nil
	case err != nil:
		return err
	case info.Mode().Type() != fs.ModeSocket:
		return fmt.Errorf("%s exists and is not a socket", path)
	}
	return os.Remove(path)
}

func setBuffers(conn net.Conn, sock common.SocketConf) error {
	c, ok := conn.(*net.UnixConn)
	if !ok {
		return nil
	}
	if n := sock.WriteBufferSize; n > 0 {
		if err := c.SetWriteBuffer(n); err != nil {
			return err
		}
	}
	if n := sock.ReadBufferSize; n > 0 {
		return c.SetReadBuffer(n)
	}
	return nil
}
