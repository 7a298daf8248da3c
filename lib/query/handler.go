package query

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
)

// Command identifies a query command
type Command uint8

const (
	CmdUnknown Command = iota
	CmdExecute
	CmdExecuteFields
	CmdFetch
	CmdClose
)

func (c Command) String() string {
	switch c {
	case CmdExecute:
		return "execute"
	case CmdExecuteFields:
		return "execute_fields"
	case CmdFetch:
		return "fetch"
	case CmdClose:
		return "close"
	default:
		return "unknown"
	}
}

// Status of a Response
type Status int

const (
	StatusSuccess Status = 0
	StatusFailed  Status = 1
)

// CloseRequest asks to close an open query
type CloseRequest struct {
	QueryID uint64
}

// Request is a tagged union, the payload matching Command must be set
type Request struct {
	Command Command
	Execute *ExecuteRequest
	Fetch   *FetchRequest
	Close   *CloseRequest
}

// Response is the envelope returned for every request. On failure Err holds
// the error message and Kind its classification.
type Response struct {
	Status Status
	Err    string
	Kind   ErrorKind
	Page   *Page
	Closed bool
}

// AsError converts a failed response back into an *Error, nil on success
func (r Response) AsError() error {
	if r.Status == StatusSuccess {
		return nil
	}
	return &Error{Kind: r.Kind, Msg: r.Err}
}

type handlerFunc func(ctx context.Context, req Request) (Response, error)

// Handler routes requests to the executor, the pager and the registry. It
// never returns an error or panics, every failure becomes a failed Response.
type Handler struct {
	executor *Executor
	pager    *Pager
	registry *Registry
	handlers map[Command]handlerFunc
}

func NewHandler(executor *Executor, pager *Pager, registry *Registry) *Handler {
	h := &Handler{executor: executor, pager: pager, registry: registry}
	h.handlers = map[Command]handlerFunc{
		CmdExecute:       h.execute,
		CmdExecuteFields: h.execute,
		CmdFetch:         h.fetch,
		CmdClose:         h.close,
	}
	return h
}

// SupportedCommands returns the commands the handler accepts
func (h *Handler) SupportedCommands() []Command {
	cmds := make([]Command, 0, len(h.handlers))
	for cmd := range h.handlers {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i] < cmds[j] })
	return cmds
}

// Handle processes a single request
func (h *Handler) Handle(ctx context.Context, req Request) (resp Response) {
	h.registry.metrics.request(req.Command)

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic while handling %s: %v\n%s", req.Command, r, debug.Stack())
			resp = failure(&Error{Kind: KindInternal, Msg: fmt.Sprintf("internal error: %v", r)})
		}
		if resp.Status != StatusSuccess {
			h.registry.metrics.requestFailed(req.Command)
		}
	}()

	fn, ok := h.handlers[req.Command]
	if !ok {
		return failure(errUnsupported(req.Command))
	}

	resp, err := fn(ctx, req)
	if err != nil {
		return failure(err)
	}
	return resp
}

func (h *Handler) execute(ctx context.Context, req Request) (Response, error) {
	if req.Execute == nil {
		return Response{}, errInvalidRequest("missing execute payload for %s", req.Command)
	}
	exec := *req.Execute
	exec.Fields = req.Command == CmdExecuteFields

	page, err := h.executor.Execute(ctx, exec)
	if err != nil {
		return Response{}, err
	}
	return Response{Status: StatusSuccess, Page: page}, nil
}

func (h *Handler) fetch(ctx context.Context, req Request) (Response, error) {
	if req.Fetch == nil {
		return Response{}, errInvalidRequest("missing fetch payload")
	}
	page, err := h.pager.Fetch(ctx, *req.Fetch)
	if err != nil {
		return Response{}, err
	}
	return Response{Status: StatusSuccess, Page: page}, nil
}

func (h *Handler) close(_ context.Context, req Request) (Response, error) {
	if req.Close == nil {
		return Response{}, errInvalidRequest("missing close payload")
	}
	found, err := h.registry.Terminate(req.Close.QueryID, ReasonExplicit)
	if !found {
		return Response{}, errQueryNotFound(req.Close.QueryID)
	}
	if err != nil {
		// the session is removed anyway, a second close answers NotFound
		log.Warningf("query removed but cursor close failed [qryId=%d]: %v", req.Close.QueryID, err)
		return Response{}, errEngine(err)
	}
	return Response{Status: StatusSuccess, Closed: true}, nil
}

func failure(err error) Response {
	var qe *Error
	if errors.As(err, &qe) {
		return Response{Status: StatusFailed, Err: qe.Msg, Kind: qe.Kind}
	}
	return Response{Status: StatusFailed, Err: err.Error(), Kind: KindInternal}
}
