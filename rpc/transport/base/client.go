package base

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dQRY/rpc/common"
	"github.com/ValentinKolb/dQRY/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

// errNotSent marks failures that happened before the request reached the
// connection. Only those are retried, a request that was written may already
// have changed server state (e.g. consumed a page).
var errNotSent = errors.New("request not sent")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to the endpoint
	Connect(endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// responseResult contains the result of a request
type responseResult struct {
	data []byte
	err  error
}

// clientConnection represents a single net connection
type clientConnection struct {
	endpoint     string
	stopCh       chan struct{} // Close signal for the reader goroutine
	requestChans *xsync.MapOf[uint64, chan responseResult]
	parent       *clientTransport

	connMu sync.Mutex // Protects conn and writes to it
	conn   net.Conn
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector     IClientConnector
	config        common.ClientConfig
	connections   []*clientConnection
	connectionsMu sync.RWMutex
	nextConnIndex atomic.Uint64 // Round Robin
	nextRequestID atomic.Uint64
	stopping      atomic.Bool
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{connector: connector}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	t.closeConnections()
	t.config = config
	t.stopping.Store(false)

	connectionsPerEP := max(1, config.Transport.ConnectionsPerEndpoint)
	total := len(config.Transport.Endpoints) * connectionsPerEP
	connections := make([]*clientConnection, 0, total)

	for _, endpoint := range config.Transport.Endpoints {
		for i := 0; i < connectionsPerEP; i++ {
			clientConn := &clientConnection{
				endpoint:     endpoint,
				stopCh:       make(chan struct{}),
				requestChans: xsync.NewMapOf[uint64, chan responseResult](),
				parent:       t,
			}

			if err := clientConn.reconnect(); err != nil {
				Logger.Warningf("Failed to connect to %s (connection %d/%d): %v", endpoint, i+1, connectionsPerEP, err)
				continue
			}
			connections = append(connections, clientConn)
			Logger.Debugf("Connected to %s (connection %d/%d)", endpoint, i+1, connectionsPerEP)

			go clientConn.readResponses()
		}
	}

	if len(connections) == 0 {
		return fmt.Errorf("failed to connect to any endpoint")
	}

	t.connectionsMu.Lock()
	t.connections = connections
	t.connectionsMu.Unlock()

	Logger.Infof("Connected %d out of %d connections to %d endpoints using %s transport",
		len(connections), total, len(config.Transport.Endpoints), t.connector.GetName())
	return nil
}

func (t *clientTransport) Send(req []byte) ([]byte, error) {
	requestID := t.nextRequestID.Add(1)

	attempts := max(1, t.config.Transport.RetryCount)
	var backoff Backoff

	var lastErr error
	for i := 0; i < attempts; i++ {
		conn := t.getNextConnection()
		if conn == nil {
			return nil, fmt.Errorf("no active connections available")
		}

		data, err := conn.send(requestID, req)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !errors.Is(err, errNotSent) || t.stopping.Load() {
			return nil, err
		}
		Logger.Debugf("Request attempt %d/%d failed: %v", i+1, attempts, err)

		if i < attempts-1 {
			time.Sleep(backoff.Next())
		}
	}

	return nil, fmt.Errorf("failed to send request after %d attempts: %w", attempts, lastErr)
}

func (t *clientTransport) Close() error {
	t.stopping.Store(true)
	t.closeConnections()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// getNextConnection selects the next connection via Round Robin
func (t *clientTransport) getNextConnection() *clientConnection {
	t.connectionsMu.RLock()
	defer t.connectionsMu.RUnlock()

	switch len(t.connections) {
	case 0:
		return nil
	case 1:
		return t.connections[0]
	default:
		return t.connections[t.nextConnIndex.Add(1)%uint64(len(t.connections))]
	}
}

// closeConnections closes all active connections
func (t *clientTransport) closeConnections() {
	t.connectionsMu.Lock()
	defer t.connectionsMu.Unlock()

	for _, c := range t.connections {
		close(c.stopCh)
		c.connMu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.connMu.Unlock()
	}
	t.connections = nil
}

func (t *clientTransport) timeout() time.Duration {
	return time.Duration(t.config.TimeoutSecond) * time.Second
}

// send writes one request and waits for its response
func (c *clientConnection) send(requestID uint64, req []byte) ([]byte, error) {
	respCh := make(chan responseResult, 1)
	c.requestChans.Store(requestID, respCh)
	defer c.requestChans.Delete(requestID)

	timeout := c.parent.timeout()

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		return nil, fmt.Errorf("%w: connection to %s is closed", errNotSent, c.endpoint)
	}
	if timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	err := writeFrame(c.conn, requestID, req)
	c.connMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errNotSent, err)
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case result := <-respCh:
		return result.data, result.err
	case <-timeoutCh:
		return nil, fmt.Errorf("request timed out after %s", timeout)
	}
}

// readResponses reads responses in a loop and hands them to the waiting requests.
// On read errors all pending requests of the connection fail and the connection
// is re-established.
func (c *clientConnection) readResponses() {
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn == nil {
			return
		}

		requestID, data, err := readFrame(conn, nil)
		if err == nil {
			if respCh, found := c.requestChans.Load(requestID); found {
				respCh <- responseResult{data: data}
			} else {
				Logger.Warningf("Received response for unknown request ID %d", requestID)
			}
			continue
		}

		select {
		case <-c.stopCh:
			return
		default:
		}

		Logger.Warningf("Error reading from %s: %v", c.endpoint, err)
		c.failPending(fmt.Errorf("error reading response: %v", err))

		if err := c.reconnectWithBackoff(); err != nil {
			Logger.Errorf("Giving up on %s: %v", c.endpoint, err)
			return
		}
	}
}

// failPending completes every waiting request with err
func (c *clientConnection) failPending(err error) {
	c.requestChans.Range(func(id uint64, ch chan responseResult) bool {
		select {
		case ch <- responseResult{err: err}:
		default:
		}
		return true
	})
}

// reconnectWithBackoff retries reconnect until it succeeds, the connection is
// stopped or the retry count of the client is exhausted
func (c *clientConnection) reconnectWithBackoff() error {
	attempts := max(1, c.parent.config.Transport.RetryCount)
	var backoff Backoff

	var err error
	for i := 0; i < attempts; i++ {
		if err = c.reconnect(); err == nil {
			return nil
		}
		select {
		case <-c.stopCh:
			return fmt.Errorf("connection stopped")
		case <-time.After(backoff.Next()):
		}
	}

	c.connMu.Lock()
	c.conn = nil
	c.connMu.Unlock()
	return err
}

// reconnect establishes or restores a connection to the endpoint
func (c *clientConnection) reconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}

	conn, err := c.parent.connector.Connect(c.endpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %v", c.endpoint, err)
	}

	if err := c.parent.connector.UpgradeConnection(conn, c.parent.config); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to upgrade connection to %s: %v", c.endpoint, err)
	}

	c.conn = conn
	return nil
}
