package http

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ValentinKolb/dQRY/rpc/common"
	"github.com/ValentinKolb/dQRY/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/rpc")

// QueryPath is the route of the RPC endpoint
const QueryPath = "/query"

// maxBodySize limits the size of a request body
const maxBodySize = 64 * 1024 * 1024

func NewHttpServerTransport() transport.IRPCServerTransport {
	return &httpServerTransport{mux: http.NewServeMux()}
}

type httpServerTransport struct {
	handler transport.ServerHandleFunc
	config  common.ServerConfig
	mux     *http.ServeMux

	mu      sync.Mutex
	server  *http.Server
	closing bool
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *httpServerTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

// HandleHTTP registers an additional route, must be called before Listen
func (t *httpServerTransport) HandleHTTP(pattern string, handler http.Handler) {
	t.mux.Handle(pattern, handler)
}

func (t *httpServerTransport) Listen(config common.ServerConfig) error {
	t.config = config

	if config.LogLevel == "debug" {
		t.mux.HandleFunc("POST "+QueryPath, loggerMiddleware(t.handleRequest))
	} else {
		t.mux.HandleFunc("POST "+QueryPath, t.handleRequest)
	}

	listener, err := net.Listen("tcp", config.Transport.Endpoint)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		return listener.Close()
	}
	t.server = &http.Server{
		Handler:           t.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := t.server
	t.mu.Unlock()

	Logger.Infof("Starting HTTP server on %s", listener.Addr())

	if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (t *httpServerTransport) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.closing = true
	server := t.server
	t.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleRequest passes the request body to the handler and writes its response
func (t *httpServerTransport) handleRequest(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if t.config.TimeoutSecond > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(t.config.TimeoutSecond)*time.Second)
		defer cancel()
	}

	resp := t.handler(ctx, body)

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err = w.Write(resp); err != nil {
		Logger.Warningf("Failed to write response: %v", err)
	}
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	}
}
