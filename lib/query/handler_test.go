package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerProtocol(t *testing.T) {
	svc := newMemService(t, Options{})
	h := svc.Handler
	ctx := context.Background()

	resp := h.Handle(ctx, Request{
		Command: CmdExecuteFields,
		Execute: &ExecuteRequest{Cache: "cacheA", SQL: "SELECT * FROM T", PageSize: 2},
	})
	require.Equal(t, StatusSuccess, resp.Status, resp.Err)
	require.NotNil(t, resp.Page)
	assert.Equal(t, uint64(0), resp.Page.QueryID)
	assert.False(t, resp.Page.Last)
	assert.NotEmpty(t, resp.Page.Fields)

	resp = h.Handle(ctx, Request{Command: CmdFetch, Fetch: &FetchRequest{QueryID: 0, PageSize: 2}})
	require.Equal(t, StatusSuccess, resp.Status)
	assert.True(t, resp.Page.Last)

	resp = h.Handle(ctx, Request{Command: CmdFetch, Fetch: &FetchRequest{QueryID: 0, PageSize: 2}})
	assert.Equal(t, StatusFailed, resp.Status)
	assert.Equal(t, "cannot find query [qryId=0]", resp.Err)
	assert.Equal(t, KindNotFound, resp.Kind)
	assert.ErrorIs(t, resp.AsError(), ErrNotFound)
}

func TestHandlerClose(t *testing.T) {
	svc := newMemService(t, Options{})
	h := svc.Handler
	ctx := context.Background()

	resp := h.Handle(ctx, Request{
		Command: CmdExecute,
		Execute: &ExecuteRequest{Cache: "cacheA", TypeName: "T", SQL: "", PageSize: 1},
	})
	require.Equal(t, StatusSuccess, resp.Status, resp.Err)
	require.Len(t, resp.Page.Fields, 1)
	assert.Equal(t, "v", resp.Page.Fields[0].FieldName)
	id := resp.Page.QueryID

	resp = h.Handle(ctx, Request{Command: CmdClose, Close: &CloseRequest{QueryID: id}})
	assert.Equal(t, StatusSuccess, resp.Status)
	assert.True(t, resp.Closed)
	assert.NoError(t, resp.AsError())

	resp = h.Handle(ctx, Request{Command: CmdClose, Close: &CloseRequest{QueryID: id}})
	assert.Equal(t, StatusFailed, resp.Status)
	assert.Equal(t, "cannot find query [qryId=0]", resp.Err)

	resp = h.Handle(ctx, Request{Command: CmdFetch, Fetch: &FetchRequest{QueryID: id, PageSize: 1}})
	assert.Equal(t, KindNotFound, resp.Kind)
}

func TestHandlerCloseReportsCursorFailure(t *testing.T) {
	e, cache := newFakeEngine(10)
	cache.closeErr = errors.New("cursor leaked")
	svc := NewService(e, Options{})
	h := svc.Handler
	ctx := context.Background()

	resp := h.Handle(ctx, Request{Command: CmdExecute, Execute: &ExecuteRequest{Cache: "fake", SQL: "q", PageSize: 1}})
	require.Equal(t, StatusSuccess, resp.Status, resp.Err)
	id := resp.Page.QueryID

	resp = h.Handle(ctx, Request{Command: CmdClose, Close: &CloseRequest{QueryID: id}})
	assert.Equal(t, StatusFailed, resp.Status)
	assert.Equal(t, KindEngineExecution, resp.Kind)
	assert.Equal(t, "cursor leaked", resp.Err)
	assert.False(t, resp.Closed)

	// the session is removed all the same
	assert.Equal(t, 0, svc.Registry.Len())
	resp = h.Handle(ctx, Request{Command: CmdClose, Close: &CloseRequest{QueryID: id}})
	assert.Equal(t, KindNotFound, resp.Kind)
}

func TestHandlerRejectsBadRequests(t *testing.T) {
	svc := newMemService(t, Options{})
	h := svc.Handler

	tests := []struct {
		name string
		req  Request
		kind ErrorKind
	}{
		{"unknown command", Request{Command: CmdUnknown}, KindUnsupportedCommand},
		{"out of range command", Request{Command: Command(42)}, KindUnsupportedCommand},
		{"execute without payload", Request{Command: CmdExecute}, KindInvalidRequest},
		{"fetch without payload", Request{Command: CmdFetch}, KindInvalidRequest},
		{"close without payload", Request{Command: CmdClose}, KindInvalidRequest},
		{"missing cache", Request{Command: CmdExecute, Execute: &ExecuteRequest{Cache: "x", SQL: "SELECT * FROM T"}}, KindNotFound},
		{"bad sql", Request{Command: CmdExecute, Execute: &ExecuteRequest{Cache: "cacheA", SQL: "SELEC"}}, KindEngineExecution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.Handle(context.Background(), tt.req)
			assert.Equal(t, StatusFailed, resp.Status)
			assert.Equal(t, tt.kind, resp.Kind)
			assert.NotEmpty(t, resp.Err)
			assert.Nil(t, resp.Page)
		})
	}

	assert.Equal(t, 0, svc.Registry.Len())
}

func TestHandlerRecoversPanics(t *testing.T) {
	e, cache := newFakeEngine(10)
	cache.panicAt = 1
	svc := NewService(e, Options{})

	resp := svc.Handler.Handle(context.Background(), Request{
		Command: CmdExecute,
		Execute: &ExecuteRequest{Cache: "fake", SQL: "q", PageSize: 5},
	})
	assert.Equal(t, StatusFailed, resp.Status)
	assert.Equal(t, KindInternal, resp.Kind)
	assert.Contains(t, resp.Err, "iterator exploded")

	assert.Equal(t, 0, svc.Registry.Len(), "panicking execute must not leak a session")
	assert.Equal(t, int32(1), cache.closes.Load())
}

func TestSupportedCommands(t *testing.T) {
	svc := newMemService(t, Options{})
	assert.Equal(t, []Command{CmdExecute, CmdExecuteFields, CmdFetch, CmdClose}, svc.Handler.SupportedCommands())
}

func TestErrorKinds(t *testing.T) {
	cause := errors.New("boom")
	err := errEngine(cause)

	assert.ErrorIs(t, err, ErrEngineExecution)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "EngineExecutionError", err.Kind.String())

	var qe *Error
	require.True(t, errors.As(error(errQueryNotFound(7)), &qe))
	assert.Equal(t, KindNotFound, qe.Kind)
}
