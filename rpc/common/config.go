package common

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Transport configuration
// --------------------------------------------------------------------------

// SocketConf holds the socket buffer sizes, 0 keeps the OS default
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds TCP specific connection options (ignored for unix sockets)
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int // 0 disables keep-alive
	TCPLingerSec    int // -1 keeps the OS default
}

// ServerTransportConfig configures the listening side of a transport
type ServerTransportConfig struct {
	// Endpoint to listen on (host:port or a socket path)
	Endpoint string
	// Workers is the size of the request worker pool of the tcp and unix transports
	Workers int
	SocketConf
	TCPConf
}

// ClientTransportConfig configures the dialing side of a transport
type ClientTransportConfig struct {
	Endpoints              []string
	RetryCount             int
	ConnectionsPerEndpoint int
	SocketConf
	TCPConf
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of a query server
type ServerConfig struct {
	Transport ServerTransportConfig

	// TimeoutSecond bounds the processing of a single request
	TimeoutSecond int64

	// IdleTimeoutSecond is the time after which an unused query may be evicted
	IdleTimeoutSecond int64
	// DefaultPageSize is used for requests without a positive page size
	DefaultPageSize int

	// DataFile is an optional JSON seed file for the in-memory engine
	DataFile string

	// MetricsEndpoint serves /metrics on a separate HTTP listener, empty disables it
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	orNone := func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Workers", strconv.Itoa(c.Transport.Workers))
	addField("Metrics Endpoint", orNone(c.MetricsEndpoint))

	// Socket settings
	addSection("Socket")
	addField("Write Buffer", strconv.Itoa(c.Transport.WriteBufferSize))
	addField("Read Buffer", strconv.Itoa(c.Transport.ReadBufferSize))
	addField("TCP No Delay", strconv.FormatBool(c.Transport.TCPNoDelay))
	addField("TCP Keep Alive", fmt.Sprintf("%d sec", c.Transport.TCPKeepAliveSec))
	addField("TCP Linger", fmt.Sprintf("%d sec", c.Transport.TCPLingerSec))

	// Query settings
	addSection("Queries")
	addField("Idle Timeout", fmt.Sprintf("%d sec", c.IdleTimeoutSecond))
	addField("Default Page Size", strconv.Itoa(c.DefaultPageSize))
	addField("Data File", orNone(c.DataFile))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Transport     ClientTransportConfig
	TimeoutSecond int
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(max(1, c.Transport.ConnectionsPerEndpoint)))

	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
