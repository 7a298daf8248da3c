package util

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ValentinKolb/dQRY/rpc/common"
	"github.com/ValentinKolb/dQRY/rpc/serializer"
	"github.com/ValentinKolb/dQRY/rpc/transport"
	"github.com/ValentinKolb/dQRY/rpc/transport/http"
	"github.com/ValentinKolb/dQRY/rpc/transport/tcp"
	"github.com/ValentinKolb/dQRY/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the column at which flag descriptions are broken
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (e.g. DQRY_TIMEOUT)
	EnvPrefix = "dqry"
)

var (
	serializers = map[string]func() serializer.IRPCSerializer{
		"binary": serializer.NewBinarySerializer,
		"json":   serializer.NewJSONSerializer,
		"gob":    serializer.NewGOBSerializer,
	}

	clientTransports = map[string]func() transport.IRPCClientTransport{
		"tcp":  tcp.NewTCPClientTransport,
		"unix": unix.NewUnixClientTransport,
		"http": http.NewHttpClientTransport,
	}

	serverTransports = map[string]func(bufferSize int) transport.IRPCServerTransport{
		"tcp":  tcp.NewTCPServerTransportWithBuffer,
		"unix": unix.NewUnixServerTransport,
		"http": func(int) transport.IRPCServerTransport { return http.NewHttpServerTransport() },
	}
)

// WrapString breaks text into lines of at most Wrap characters. Words longer
// than Wrap get a line of their own.
func WrapString(text string) string {
	var out strings.Builder
	col := 0
	for _, word := range strings.Fields(text) {
		switch {
		case col == 0:
		case col+1+len(word) > Wrap:
			out.WriteByte('\n')
			col = 0
		default:
			out.WriteByte(' ')
			col++
		}
		out.WriteString(word)
		col += len(word)
	}
	return out.String()
}

// SetupRPCClientFlags registers the connection flags shared by all client commands
func SetupRPCClientFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.Int("timeout", 10, WrapString("Client timeout in seconds"))
	f.String("transport-endpoints", "localhost:8080", WrapString("Address of the dQRY server. Transports with load balancing accept a comma separated list"))
	f.Int("transport-conn-per-endpoint", 1, WrapString("Connections per endpoint (tcp and unix)"))
	f.Int("transport-retries", 3, WrapString("Attempts per request. Only requests that never reached the server are repeated"))
	f.Int("transport-write-buffer", 512, WrapString("Socket write buffer in KB (ignored for http)"))
	f.Int("transport-read-buffer", 512, WrapString("Socket read buffer in KB (ignored for http)"))
	f.Bool("transport-tcp-nodelay", true, WrapString("Set TCP_NODELAY (tcp only)"))
	f.Int("transport-tcp-keepalive", 0, WrapString("Keepalive interval in seconds, 0 keeps the OS default (tcp only)"))
	f.Int("transport-tcp-linger", 0, WrapString("SO_LINGER in seconds (tcp only)"))
}

// InitConfig loads .env and .env.local and makes viper read DQRY_* variables.
// Flags win over the environment, the environment wins over flag defaults.
func InitConfig() {
	for _, file := range []string{".env", ".env.local"} {
		_ = godotenv.Load(file)
	}
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetClientConfig builds the client config from the bound flags
func GetClientConfig() *common.ClientConfig {
	return &common.ClientConfig{
		TimeoutSecond: viper.GetInt("timeout"),
		Transport: common.ClientTransportConfig{
			Endpoints:              strings.Split(viper.GetString("transport-endpoints"), ","),
			ConnectionsPerEndpoint: viper.GetInt("transport-conn-per-endpoint"),
			RetryCount:             viper.GetInt("transport-retries"),
			SocketConf: common.SocketConf{
				WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
				ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
			},
			TCPConf: common.TCPConf{
				TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
				TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
				TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
			},
		},
	}
}

// GetSerializer returns the serializer named by the serializer setting
func GetSerializer() (serializer.IRPCSerializer, error) {
	newSerializer, err := lookup(serializers, "serializer")
	if err != nil {
		return nil, err
	}
	return newSerializer(), nil
}

// GetTransport returns the client transport named by the transport setting
func GetTransport() (transport.IRPCClientTransport, error) {
	newTransport, err := lookup(clientTransports, "transport")
	if err != nil {
		return nil, err
	}
	return newTransport(), nil
}

// GetServerTransport returns the server transport named by the transport
// setting. bufferSize is used by the socket transports only.
func GetServerTransport(bufferSize int) (transport.IRPCServerTransport, error) {
	newTransport, err := lookup(serverTransports, "transport")
	if err != nil {
		return nil, err
	}
	return newTransport(bufferSize), nil
}

// ParseArgs reads query arguments from the command line. Each argument is
// decoded as JSON, anything that is not valid JSON is taken as a string
// (42 -> number, true -> bool, alice -> "alice", '"42"' -> "42").
func ParseArgs(raw []string) []any {
	args := make([]any, len(raw))
	for i, r := range raw {
		if err := json.Unmarshal([]byte(r), &args[i]); err != nil {
			args[i] = r
		}
	}
	return args
}

func lookup[T any](options map[string]T, key string) (T, error) {
	name := viper.GetString(key)
	if v, ok := options[name]; ok {
		return v, nil
	}
	names := make([]string, 0, len(options))
	for n := range options {
		names = append(names, n)
	}
	sort.Strings(names)
	var zero T
	return zero, fmt.Errorf("invalid %s %q (one of %s)", key, name, strings.Join(names, ", "))
}
