package http

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/ValentinKolb/dQRY/rpc/common"
	"github.com/ValentinKolb/dQRY/rpc/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freeAddr returns a local address that is free at the time of the call
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestHTTPTransport(t *testing.T) {
	addr := freeAddr(t)

	srv := NewHttpServerTransport()
	srv.RegisterHandler(func(_ context.Context, req []byte) []byte {
		return append([]byte("echo:"), req...)
	})

	registrar, ok := srv.(transport.IHTTPRouteRegistrar)
	require.True(t, ok)
	registrar.HandleHTTP("GET /ping", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	}))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(common.ServerConfig{
			Transport:     common.ServerTransportConfig{Endpoint: addr},
			TimeoutSecond: 5,
		})
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, srv.Shutdown(ctx))
		assert.NoError(t, <-errCh)
	}()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	client := NewHttpClientTransport()
	require.NoError(t, client.Connect(common.ClientConfig{
		TimeoutSecond: 5,
		Transport:     common.ClientTransportConfig{Endpoints: []string{addr}, RetryCount: 2},
	}))
	defer client.Close()

	resp, err := client.Send([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "echo:hello", string(resp))

	// additional routes live next to the query endpoint
	httpResp, err := http.Get("http://" + addr + "/ping")
	require.NoError(t, err)
	body, err := io.ReadAll(httpResp.Body)
	_ = httpResp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "pong", string(body))

	// the query endpoint only accepts POST
	httpResp, err = http.Get("http://" + addr + QueryPath)
	require.NoError(t, err)
	_ = httpResp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, httpResp.StatusCode)
}

func TestHTTPClientErrors(t *testing.T) {
	client := NewHttpClientTransport()

	_, err := client.Send([]byte("x"))
	assert.Error(t, err)

	assert.Error(t, client.Connect(common.ClientConfig{}))

	// nothing listens on the address, the dial error is retried and returned
	require.NoError(t, client.Connect(common.ClientConfig{
		TimeoutSecond: 1,
		Transport:     common.ClientTransportConfig{Endpoints: []string{freeAddr(t)}, RetryCount: 2},
	}))
	_, err = client.Send([]byte("x"))
	assert.Error(t, err)
}
