package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/dQRY/lib/engine"
	"github.com/ValentinKolb/dQRY/lib/query"
	"github.com/ValentinKolb/dQRY/rpc/common"
	"github.com/ValentinKolb/dQRY/rpc/serializer"
	"github.com/ValentinKolb/dQRY/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc")

// MetricsPath is the route on which the metrics are exposed
const MetricsPath = "/metrics"

// NewRPCServer creates a new RPC server
// It takes a config, transport, serializer and the query engine as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewJSONSerializer(),
//		memengine.NewMemEngine(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
	e engine.Engine,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	service := query.NewService(e, query.Options{
		IdleTimeout:     time.Duration(config.IdleTimeoutSecond) * time.Second,
		DefaultPageSize: config.DefaultPageSize,
	})

	Logger.Infof("Created RPC Server")
	Logger.Infof("%s", config.String())

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		service:    service,
		adapter:    NewQueryServerAdapter(service.Handler),
	}
}

// RPCServer connects a transport and a serializer to the query service
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	service    *query.Service
	adapter    IRPCServerAdapter

	mu            sync.Mutex
	metricsServer *http.Server
	cancel        context.CancelFunc
}

// Service returns the query service of the server
func (s *RPCServer) Service() *query.Service {
	return s.service
}

func (s *RPCServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(ctx context.Context, req []byte) []byte {
		var msg common.Message
		var respMsg *common.Message

		// Decode the request
		if err := s.serializer.Deserialize(req, &msg); err != nil {
			respMsg = errorResponse(fmt.Sprintf("failed to deserialize request: %s", err), query.KindInvalidRequest)
		} else {
			// Let the adapter handle the request
			respMsg = s.adapter.Handle(ctx, &msg)
		}

		// Return result
		val, err := s.serializer.Serialize(*respMsg)
		if err != nil {
			Logger.Errorf("failed to serialize response: %v", err)
			val, _ = s.serializer.Serialize(*errorResponse(
				fmt.Sprintf("failed to serialize response: %s", err), query.KindInternal))
		}
		return val
	})
}

// metricsHandler writes the query metrics and the process metrics in the
// Prometheus text format
func (s *RPCServer) metricsHandler() http.Handler {
	set := s.service.Registry.Metrics().Set()
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		set.WritePrometheus(w)
		metrics.WriteProcessMetrics(w)
	})
}

// startMetrics exposes the metrics on the transport (if it speaks HTTP) and on
// the dedicated metrics endpoint (if configured)
func (s *RPCServer) startMetrics() error {
	if registrar, ok := s.transport.(transport.IHTTPRouteRegistrar); ok {
		registrar.HandleHTTP("GET "+MetricsPath, s.metricsHandler())
	}

	if s.config.MetricsEndpoint == "" {
		return nil
	}

	listener, err := net.Listen("tcp", s.config.MetricsEndpoint)
	if err != nil {
		return fmt.Errorf("failed to listen on metrics endpoint: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("GET "+MetricsPath, s.metricsHandler())
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	s.mu.Lock()
	s.metricsServer = server
	s.mu.Unlock()

	go func() {
		Logger.Infof("Serving metrics on %s%s", listener.Addr(), MetricsPath)
		if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("metrics server failed: %v", err)
		}
	}()
	return nil
}

func (s *RPCServer) init() error {

	// Init logger
	if err := common.InitLoggers(s.config); err != nil {
		return err
	}

	// Start the evictor
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	s.service.Start(ctx)

	Logger.Infof("Evicting queries idle for more than %s (checked every %s)",
		s.service.Evictor.MaxIdle(), s.service.Evictor.Interval())

	if err := s.startMetrics(); err != nil {
		s.service.Shutdown()
		cancel()
		return err
	}

	Logger.Infof("dQRY setup completed successfully")

	// Configure the transport layer
	s.registerTransportHandler()

	return nil
}

// Serve starts the RPC server
// This function will also start the evictor and the metrics endpoint and then
// blocks in the transport layer until Shutdown is called
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}

// Shutdown stops the transport, waits for running requests (bounded by ctx)
// and closes all open queries
func (s *RPCServer) Shutdown(ctx context.Context) error {
	err := s.transport.Shutdown(ctx)

	s.service.Shutdown()

	s.mu.Lock()
	metricsServer, cancel := s.metricsServer, s.cancel
	s.mu.Unlock()

	if metricsServer != nil {
		if mErr := metricsServer.Shutdown(ctx); mErr != nil && err == nil {
			err = mErr
		}
	}
	if cancel != nil {
		cancel()
	}

	Logger.Infof("dQRY server stopped")
	return err
}
