package base

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/ValentinKolb/dQRY/rpc/common"
	"github.com/ValentinKolb/dQRY/rpc/transport"
	"github.com/panjf2000/ants/v2"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the core server transport functionality
type serverTransport struct {
	connector  IServerConnector
	handler    transport.ServerHandleFunc
	config     common.ServerConfig
	bufferPool *sync.Pool
	bufferSize int

	mu       sync.Mutex
	listener net.Listener
	pool     *ants.Pool
	conns    map[net.Conn]struct{}
	closing  bool

	// cancelled on shutdown, parent of all request contexts
	baseCtx    context.Context
	cancelBase context.CancelFunc
	connWg     sync.WaitGroup
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport. Requests of all
// connections are processed by one shared worker pool, its size is taken from
// ServerConfig.Transport.Workers when Listen is called.
func NewBaseServerTransport(connector IServerConnector, bufferSize int) transport.IRPCServerTransport {
	ctx, cancel := context.WithCancel(context.Background())
	return &serverTransport{
		connector:  connector,
		bufferSize: bufferSize,
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return make([]byte, bufferSize)
			},
		},
		conns:      make(map[net.Conn]struct{}),
		baseCtx:    ctx,
		cancelBase: cancel,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	t.config = config

	workers := config.Transport.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0) * 8
	}

	// Submit blocks while all workers are busy, this throttles the readers
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(p interface{}) {
		Logger.Errorf("panic in request worker: %v", p)
	}))
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %v", err)
	}

	listener, err := t.connector.Listen(config)
	if err != nil {
		pool.Release()
		return fmt.Errorf("failed to create listener: %v", err)
	}

	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		pool.Release()
		_ = listener.Close()
		return nil
	}
	t.listener = listener
	t.pool = pool
	t.mu.Unlock()

	Logger.Infof("Starting %s server on %s with %d workers",
		t.connector.GetName(), config.Transport.Endpoint, workers)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if t.isClosing() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				Logger.Warningf("Accept error: %v", err)
				continue
			}
			return fmt.Errorf("accept failed: %v", err)
		}

		if err := t.connector.UpgradeConnection(conn, config); err != nil {
			Logger.Warningf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
		}

		if !t.trackConn(conn) {
			_ = conn.Close()
			return nil
		}
		go t.handleConnection(conn)
	}
}

func (t *serverTransport) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		return nil
	}
	t.closing = true
	listener, pool := t.listener, t.pool

	// unblock the readers, running requests still write their responses
	for conn := range t.conns {
		if err := conn.SetReadDeadline(time.Now()); err != nil {
			_ = conn.Close()
		}
	}
	t.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}

	done := make(chan struct{})
	go func() {
		t.connWg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		t.cancelBase()
		t.closeConns()
	}
	t.cancelBase()

	if pool != nil {
		if releaseErr := pool.ReleaseTimeout(time.Second); releaseErr != nil {
			Logger.Warningf("Worker pool did not stop in time: %v", releaseErr)
		}
	}
	Logger.Infof("%s server stopped", t.connector.GetName())
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *serverTransport) isClosing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closing
}

// trackConn registers an accepted connection, false if the server is closing
func (t *serverTransport) trackConn(conn net.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closing {
		return false
	}
	t.conns[conn] = struct{}{}
	t.connWg.Add(1)
	return true
}

func (t *serverTransport) untrackConn(conn net.Conn) {
	t.mu.Lock()
	delete(t.conns, conn)
	t.mu.Unlock()
	_ = conn.Close()
	t.connWg.Done()
}

func (t *serverTransport) closeConns() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for conn := range t.conns {
		_ = conn.Close()
	}
}

// handleConnection reads requests of one connection and hands them to the
// worker pool. Responses are written in completion order, the requestID lets
// the client match them.
func (t *serverTransport) handleConnection(conn net.Conn) {
	defer t.untrackConn(conn)

	timeout := time.Duration(t.config.TimeoutSecond) * time.Second

	// wait for all requests of this connection before closing it
	var wg sync.WaitGroup
	defer wg.Wait()

	// protects writes to the connection
	var connMutex sync.Mutex

	process := func(requestID uint64, data []byte, buf []byte) {
		defer wg.Done()
		defer t.bufferPool.Put(buf)

		ctx, cancel := t.requestContext(timeout)
		defer cancel()

		start := time.Now()
		resp := t.handler(ctx, data)
		Logger.Debugf("Processed request %d took %s", requestID, time.Since(start))

		connMutex.Lock()
		defer connMutex.Unlock()

		if timeout > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
				Logger.Errorf("Failed to set write deadline: %v", err)
				return
			}
		}
		if err := writeFrame(conn, requestID, resp); err != nil {
			Logger.Errorf("Failed to write response: %v", err)
		}
	}

	for {
		// no read deadline: idle connections stay open until the client closes them
		buf := t.bufferPool.Get().([]byte)
		requestID, data, err := readFrame(conn, buf)
		if err != nil {
			t.bufferPool.Put(buf)
			switch {
			case errors.Is(err, io.EOF):
				Logger.Debugf("Connection closed by client")
			case t.isClosing():
				Logger.Debugf("Closing connection for shutdown")
			default:
				Logger.Errorf("Error reading request: %v", err)
			}
			return
		}

		wg.Add(1)
		if err := t.pool.Submit(func() { process(requestID, data, buf) }); err != nil {
			wg.Done()
			t.bufferPool.Put(buf)
			Logger.Errorf("Failed to schedule request %d: %v", requestID, err)
			return
		}
	}
}

func (t *serverTransport) requestContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(t.baseCtx, timeout)
	}
	return context.WithCancel(t.baseCtx)
}
