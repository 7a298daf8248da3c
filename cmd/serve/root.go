package serve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmdUtil "github.com/ValentinKolb/dQRY/cmd/util"
	"github.com/ValentinKolb/dQRY/lib/engine/memengine"
	"github.com/ValentinKolb/dQRY/lib/query"
	"github.com/ValentinKolb/dQRY/rpc/common"
	"github.com/ValentinKolb/dQRY/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// shutdownTimeout bounds the wait for running requests on SIGINT/SIGTERM
	shutdownTimeout = 10 * time.Second
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the dQRY server",
		Long:    `Start the dQRY server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DQRY_<flag> (e.g. DQRY_IDLE_TIMEOUT=120)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080, /tmp/dqry.sock, ...)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds for processing a single request"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "idle-timeout"
	ServeCmd.PersistentFlags().Int64(key, int64(query.DefaultIdleTimeout/time.Second), cmdUtil.WrapString("Idle timeout in seconds of open queries. The evictor checks every idle-timeout/2 seconds and closes queries not used for 1.5*idle-timeout seconds"))

	key = "default-page-size"
	ServeCmd.PersistentFlags().Int(key, query.DefaultPageSize, cmdUtil.WrapString("Page size used for requests that do not specify one"))

	key = "workers"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Size of the worker pool processing requests (0 = 8 * GOMAXPROCS, ignored for http)"))

	key = "data"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Path to a JSON file with caches, tables and rows to load into the in-memory engine"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address of a separate HTTP listener serving /metrics (e.g. localhost:9090). The http transport always serves /metrics"))

	key = "transport-write-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("The size of the write buffer for the transport (in KB, ignored for http)"))

	key = "transport-read-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("The size of the read buffer for the transport (in KB, ignored for http)"))

	key = "transport-tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY for the transport (only for tcp)"))

	key = "transport-tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The keepalive interval for the transport (in seconds, only for tcp)"))

	key = "transport-tcp-linger"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The linger time for the transport (in seconds, only for tcp)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.Transport = common.ServerTransportConfig{
		Endpoint: viper.GetString("endpoint"),
		Workers:  viper.GetInt("workers"),
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
		},
		TCPConf: common.TCPConf{
			TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
		},
	}
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.IdleTimeoutSecond = viper.GetInt64("idle-timeout")
	serveCmdConfig.DefaultPageSize = viper.GetInt("default-page-size")
	serveCmdConfig.DataFile = viper.GetString("data")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if serveCmdConfig.IdleTimeoutSecond <= 0 {
		return fmt.Errorf("idle-timeout must be positive, got %d", serveCmdConfig.IdleTimeoutSecond)
	}
	if serveCmdConfig.DefaultPageSize <= 0 {
		return fmt.Errorf("default-page-size must be positive, got %d", serveCmdConfig.DefaultPageSize)
	}
	if _, err := common.ParseLogLevel(serveCmdConfig.LogLevel); err != nil {
		return err
	}

	return nil
}

// run starts the dQRY server and stops it on SIGINT/SIGTERM
func run(_ *cobra.Command, _ []string) error {

	// parse the serializer
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	// Parse the transport
	t, err := cmdUtil.GetServerTransport(serveCmdConfig.Transport.ReadBufferSize)
	if err != nil {
		return err
	}

	// Load the engine
	e := memengine.NewMemEngine()
	if serveCmdConfig.DataFile != "" {
		if err := e.LoadFile(serveCmdConfig.DataFile); err != nil {
			return fmt.Errorf("failed to load data file %s: %w", serveCmdConfig.DataFile, err)
		}
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
		e,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- serv.Serve() }()

	select {
	case err := <-errCh:
		// the transport failed, release the open queries anyway
		serv.Service().Shutdown()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = serv.Shutdown(shutdownCtx)
	if serveErr := <-errCh; serveErr != nil {
		err = errors.Join(err, serveErr)
	}
	return err
}
