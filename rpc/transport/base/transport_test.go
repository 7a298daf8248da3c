package base

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dQRY/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		requestID uint64
		payload   []byte
		buf       []byte
	}{
		{"empty payload", 1, []byte{}, nil},
		{"small payload fits buffer", 42, []byte("hello"), make([]byte, 64)},
		{"payload larger than buffer", ^uint64(0), bytes.Repeat([]byte("x"), 4096), make([]byte, 16)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, writeFrame(&buf, tt.requestID, tt.payload))
			assert.Equal(t, frameHeaderSize+len(tt.payload), buf.Len())

			requestID, data, err := readFrame(&buf, tt.buf)
			require.NoError(t, err)
			assert.Equal(t, tt.requestID, requestID)
			assert.Equal(t, tt.payload, data)
		})
	}
}

func TestReadFrameErrors(t *testing.T) {
	// truncated header
	_, _, err := readFrame(bytes.NewReader([]byte{0, 0, 0}), nil)
	assert.Error(t, err)

	// length larger than the limit
	header := []byte{0, 0, 0, 0, 0, 0, 0, 1, 0xff, 0xff, 0xff, 0xff}
	_, _, err = readFrame(bytes.NewReader(header), nil)
	assert.Error(t, err)

	// truncated payload
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, 1, []byte("payload")))
	_, _, err = readFrame(bytes.NewReader(buf.Bytes()[:buf.Len()-2]), nil)
	assert.Error(t, err)
}

func TestFrameOverPipe(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		for i := uint64(0); i < 3; i++ {
			_ = writeFrame(client, i, []byte(fmt.Sprintf("msg-%d", i)))
		}
	}()

	for i := uint64(0); i < 3; i++ {
		requestID, data, err := readFrame(server, nil)
		require.NoError(t, err)
		assert.Equal(t, i, requestID)
		assert.Equal(t, fmt.Sprintf("msg-%d", i), string(data))
	}
}

// --------------------------------------------------------------------------
// Client / Server
// --------------------------------------------------------------------------

// unixConnector is a minimal connector for tests
type unixConnector struct{}

func (unixConnector) GetName() string { return "unix-test" }

func (unixConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	return net.Listen("unix", config.Transport.Endpoint)
}

func (unixConnector) Connect(endpoint string) (net.Conn, error) {
	return net.Dial("unix", endpoint)
}

func (unixConnector) UpgradeConnection(net.Conn, common.ServerConfig) error { return nil }

type unixClientConnector struct{ unixConnector }

func (unixClientConnector) UpgradeConnection(net.Conn, common.ClientConfig) error { return nil }

func startEchoServer(t *testing.T, delay func(req []byte) time.Duration) (string, func()) {
	t.Helper()
	socket := filepath.Join(t.TempDir(), "s.sock")

	srv := NewBaseServerTransport(unixConnector{}, 1024)
	srv.RegisterHandler(func(ctx context.Context, req []byte) []byte {
		if delay != nil {
			select {
			case <-time.After(delay(req)):
			case <-ctx.Done():
			}
		}
		return append([]byte("echo:"), req...)
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(common.ServerConfig{
			Transport:     common.ServerTransportConfig{Endpoint: socket, Workers: 4},
			TimeoutSecond: 5,
		})
	}()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("unix", socket)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, srv.Shutdown(ctx))
		assert.NoError(t, <-errCh)
	}
	return socket, stop
}

func TestClientServerConcurrentRequests(t *testing.T) {
	// later requests answer faster, so responses arrive out of order
	socket, stop := startEchoServer(t, func(req []byte) time.Duration {
		return time.Duration(20-len(req)%20) * time.Millisecond
	})
	defer stop()

	client := NewBaseClientTransport(unixClientConnector{})
	require.NoError(t, client.Connect(common.ClientConfig{
		Transport:     common.ClientTransportConfig{Endpoints: []string{socket}, ConnectionsPerEndpoint: 2, RetryCount: 2},
		TimeoutSecond: 5,
	}))
	defer client.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := []byte(fmt.Sprintf("request-%d", i))
			resp, err := client.Send(req)
			if assert.NoError(t, err) {
				assert.Equal(t, "echo:"+string(req), string(resp))
			}
		}(i)
	}
	wg.Wait()
}

func TestClientConnectFailure(t *testing.T) {
	client := NewBaseClientTransport(unixClientConnector{})

	err := client.Connect(common.ClientConfig{})
	assert.Error(t, err)

	err = client.Connect(common.ClientConfig{
		Transport: common.ClientTransportConfig{Endpoints: []string{filepath.Join(t.TempDir(), "missing.sock")}},
	})
	assert.Error(t, err)
}

func TestShutdownWaitsForRunningRequests(t *testing.T) {
	socket, stop := startEchoServer(t, func([]byte) time.Duration { return 100 * time.Millisecond })

	client := NewBaseClientTransport(unixClientConnector{})
	require.NoError(t, client.Connect(common.ClientConfig{
		Transport:     common.ClientTransportConfig{Endpoints: []string{socket}},
		TimeoutSecond: 5,
	}))
	defer client.Close()

	done := make(chan []byte, 1)
	go func() {
		resp, _ := client.Send([]byte("slow"))
		done <- resp
	}()

	// let the request reach the server before shutting down
	time.Sleep(30 * time.Millisecond)
	stop()

	select {
	case resp := <-done:
		assert.Equal(t, "echo:slow", string(resp))
	case <-time.After(2 * time.Second):
		t.Fatal("request was not answered")
	}
}

func TestBackoff(t *testing.T) {
	var b Backoff
	want := 50 * time.Millisecond
	for i := 0; i < 5; i++ {
		d := b.Next()
		assert.GreaterOrEqual(t, d, want*9/10)
		assert.LessOrEqual(t, d, want*11/10)
		want *= 2
	}
}
