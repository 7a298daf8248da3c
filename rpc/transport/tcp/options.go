package tcp

import (
	"net"
	"time"

	"github.com/ValentinKolb/dQRY/rpc/common"
)

// applyOptions sets buffer sizes, TCP_NODELAY, keepalive and linger on a TCP
// connection. Zero values keep the OS defaults. Other connections are ignored.
func applyOptions(conn net.Conn, sock common.SocketConf, opts common.TCPConf) error {
	c, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}

	steps := []func() error{
		func() error { return c.SetNoDelay(opts.TCPNoDelay) },
	}
	if sock.WriteBufferSize > 0 {
		steps = append(steps, func() error { return c.SetWriteBuffer(sock.WriteBufferSize) })
	}
	if sock.ReadBufferSize > 0 {
		steps = append(steps, func() error { return c.SetReadBuffer(sock.ReadBufferSize) })
	}
	if opts.TCPKeepAliveSec > 0 {
		steps = append(steps, func() error {
			return c.SetKeepAliveConfig(net.KeepAliveConfig{
				Enable: true,
				Idle:   time.Duration(opts.TCPKeepAliveSec) * time.Second,
			})
		})
	}
	// a linger of 0 would reset the connection on close and drop the last response
	if opts.TCPLingerSec > 0 {
		steps = append(steps, func() error { return c.SetLinger(opts.TCPLingerSec) })
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}
