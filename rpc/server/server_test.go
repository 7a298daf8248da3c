package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dQRY/lib/engine/memengine"
	"github.com/ValentinKolb/dQRY/lib/query"
	"github.com/ValentinKolb/dQRY/rpc/client"
	"github.com/ValentinKolb/dQRY/rpc/common"
	"github.com/ValentinKolb/dQRY/rpc/serializer"
	"github.com/ValentinKolb/dQRY/rpc/transport/unix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var serializers = map[string]func() serializer.IRPCSerializer{
	"binary": serializer.NewBinarySerializer,
	"json":   serializer.NewJSONSerializer,
	"gob":    serializer.NewGOBSerializer,
}

func newPeopleEngine(t *testing.T) *memengine.Engine {
	t.Helper()
	e := memengine.NewMemEngine()
	table, err := e.CreateCache("people").CreateTable("Person", []memengine.Column{
		{Name: "id", Type: "int"},
		{Name: "name", Type: "string"},
		{Name: "age", Type: "int"},
	}, "id")
	require.NoError(t, err)
	for i := 1; i <= 10; i++ {
		require.NoError(t, table.Insert(i, fmt.Sprintf("person-%d", i), 20+i))
	}
	return e
}

// startServer runs a server on a unix socket and returns a connected client
func startServer(t *testing.T, s serializer.IRPCSerializer, config common.ServerConfig) (*RPCServer, client.IQueryClient) {
	t.Helper()
	socket := filepath.Join(t.TempDir(), "dqry.sock")
	config.Transport.Endpoint = socket
	config.TimeoutSecond = 5

	srv := NewRPCServer(config, unix.NewUnixDefaultServerTransport(), s, newPeopleEngine(t))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("unix", socket)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	c, err := client.NewRPCQueryClient(common.ClientConfig{
		TimeoutSecond: 5,
		Transport:     common.ClientTransportConfig{Endpoints: []string{socket}, RetryCount: 2},
	}, unix.NewUnixClientTransport(), s)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = c.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, srv.Shutdown(ctx))
		assert.NoError(t, <-errCh)
	})
	return srv, c
}

func TestEndToEnd(t *testing.T) {
	for name, newSerializer := range serializers {
		t.Run(name, func(t *testing.T) {
			srv, c := startServer(t, newSerializer(), common.ServerConfig{})

			// fields query with metadata, paged
			page, err := c.ExecuteFields("people", "SELECT name FROM Person WHERE age > ? ORDER BY id", []any{25}, 2)
			require.NoError(t, err)
			assert.Equal(t, uint64(0), page.QueryID)
			assert.False(t, page.Last)
			require.Len(t, page.Fields, 1)
			assert.Equal(t, "name", page.Fields[0].FieldName)
			assert.Equal(t, "Person", page.Fields[0].TypeName)

			var names []string
			require.NoError(t, c.ForEach(page, 2, func(item json.RawMessage) error {
				var row []string
				if err := json.Unmarshal(item, &row); err != nil {
					return err
				}
				names = append(names, row[0])
				return nil
			}))
			assert.Equal(t, []string{"person-6", "person-7", "person-8", "person-9", "person-10"}, names)

			// exhausted queries are released by the server
			assert.Equal(t, 0, srv.Service().Registry.Len())
			_, err = c.Fetch(page.QueryID, 2)
			assert.True(t, errors.Is(err, query.ErrNotFound))
			assert.EqualError(t, err, "cannot find query [qryId=0]")

			// typed query
			page, err = c.Execute("people", "Person", "id = ?", []any{3}, 0)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), page.QueryID)
			assert.True(t, page.Last)
			require.NotEmpty(t, page.Fields)
			assert.Equal(t, "Person", page.Fields[0].TypeName)
			require.Len(t, page.Items, 1)
			var entry struct {
				Key   string         `json:"key"`
				Value map[string]any `json:"value"`
			}
			require.NoError(t, json.Unmarshal(page.Items[0], &entry))
			assert.Equal(t, "3", entry.Key)
			assert.Equal(t, "person-3", entry.Value["name"])
		})
	}
}

func TestEndToEndCloseAndErrors(t *testing.T) {
	srv, c := startServer(t, serializer.NewBinarySerializer(), common.ServerConfig{})

	page, err := c.Execute("people", "", "SELECT * FROM Person", nil, 3)
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
	assert.Equal(t, 1, srv.Service().Registry.Len())

	ok, err := c.CloseQuery(page.QueryID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, srv.Service().Registry.Len())

	_, err = c.CloseQuery(page.QueryID)
	assert.True(t, errors.Is(err, query.ErrNotFound))

	// unknown cache, the id is consumed anyway
	_, err = c.Execute("missing", "", "SELECT * FROM Person", nil, 3)
	assert.True(t, errors.Is(err, query.ErrNotFound))
	assert.EqualError(t, err, "no cache with name [cacheName=missing]")

	// malformed sql
	_, err = c.Execute("people", "", "SELEKT", nil, 3)
	assert.True(t, errors.Is(err, query.ErrEngineExecution))

	page, err = c.Execute("people", "", "SELECT id FROM Person", nil, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), page.QueryID)

	// ForEach closes the query when the callback fails
	stop := errors.New("stop")
	err = c.ForEach(page, 1, func(json.RawMessage) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 0, srv.Service().Registry.Len())
}

func TestEndToEndEviction(t *testing.T) {
	srv, c := startServer(t, serializer.NewJSONSerializer(), common.ServerConfig{IdleTimeoutSecond: 1})

	page, err := c.Execute("people", "", "SELECT * FROM Person", nil, 1)
	require.NoError(t, err)
	require.False(t, page.Last)

	// idle for 1.5s, swept every 0.5s
	require.Eventually(t, func() bool {
		return srv.Service().Registry.Len() == 0
	}, 4*time.Second, 50*time.Millisecond)

	_, err = c.Fetch(page.QueryID, 1)
	assert.True(t, errors.Is(err, query.ErrNotFound))
}

func TestShutdownClosesOpenQueries(t *testing.T) {
	srv, c := startServer(t, serializer.NewBinarySerializer(), common.ServerConfig{})

	for i := 0; i < 3; i++ {
		_, err := c.Execute("people", "", "SELECT * FROM Person", nil, 1)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, srv.Service().Registry.Len())

	srv.Service().Shutdown()
	assert.Equal(t, 0, srv.Service().Registry.Len())
}

func TestAdapterRejectsInvalidMessages(t *testing.T) {
	svc := query.NewService(newPeopleEngine(t), query.Options{})
	adapter := NewQueryServerAdapter(svc.Handler)
	ctx := context.Background()

	resp := adapter.Handle(ctx, common.NewCustomRequest([]byte("x")))
	assert.Equal(t, common.MsgTError, resp.MsgType)
	assert.Equal(t, uint8(query.KindUnsupportedCommand), resp.ErrKind)

	resp = adapter.Handle(ctx, common.NewExecuteRequest("people", "", "SELECT * FROM Person", []byte("{not json"), 1))
	assert.Equal(t, common.MsgTError, resp.MsgType)
	assert.Equal(t, uint8(query.KindInvalidRequest), resp.ErrKind)

	resp = adapter.Handle(ctx, common.NewFetchRequest(42, 1))
	assert.Equal(t, common.MsgTError, resp.MsgType)
	assert.Equal(t, uint8(query.KindNotFound), resp.ErrKind)
	assert.Equal(t, "cannot find query [qryId=42]", resp.Err)

	resp = adapter.Handle(ctx, common.NewExecuteFieldsRequest("people", "SELECT id FROM Person WHERE id = ?", []byte("[1]"), 0))
	require.Empty(t, resp.Err)
	assert.Equal(t, common.MsgTQryExecuteFields, resp.MsgType)
	assert.True(t, resp.Last)
	assert.JSONEq(t, "[[1]]", string(resp.Items))
	assert.NotEmpty(t, resp.Fields)
}

func TestMetricsHandler(t *testing.T) {
	srv := NewRPCServer(common.ServerConfig{}, unix.NewUnixDefaultServerTransport(),
		serializer.NewJSONSerializer(), newPeopleEngine(t))

	_, err := srv.Service().Executor.Execute(context.Background(), query.ExecuteRequest{
		Cache: "people", SQL: "SELECT * FROM Person", PageSize: 100,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.metricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", MetricsPath, nil))

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "dqry_sessions_opened_total 1"), body)
	assert.True(t, strings.Contains(body, `dqry_sessions_closed_total{reason="exhausted"} 1`), body)
}
