package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dQRY/lib/query"
	"github.com/ValentinKolb/dQRY/rpc/common"
)

// NewQueryServerAdapter returns an adapter that translates query messages into
// requests of the given handler
func NewQueryServerAdapter(handler *query.Handler) IRPCServerAdapter {
	return &queryServerAdapterImpl{handler: handler}
}

type queryServerAdapterImpl struct {
	handler *query.Handler
}

func (adapter *queryServerAdapterImpl) Handle(ctx context.Context, req *common.Message) *common.Message {
	// Check for nil handler
	if adapter.handler == nil {
		return errorResponse("handler: query handler is nil", query.KindInternal)
	}

	var request query.Request

	switch req.MsgType {
	case common.MsgTQryExecute, common.MsgTQryExecuteFields:
		args, err := decodeArgs(req.Args)
		if err != nil {
			return errorResponse(fmt.Sprintf("invalid query arguments: %v", err), query.KindInvalidRequest)
		}
		request = query.Request{
			Command: query.CmdExecute,
			Execute: &query.ExecuteRequest{
				Cache:    req.Cache,
				TypeName: req.TypeName,
				SQL:      req.Query,
				Args:     args,
				PageSize: int(req.PageSize),
				Fields:   req.MsgType == common.MsgTQryExecuteFields,
			},
		}
		if request.Execute.Fields {
			request.Command = query.CmdExecuteFields
		}
	case common.MsgTQryFetch:
		request = query.Request{
			Command: query.CmdFetch,
			Fetch:   &query.FetchRequest{QueryID: req.QueryID, PageSize: int(req.PageSize)},
		}
	case common.MsgTQryClose:
		request = query.Request{
			Command: query.CmdClose,
			Close:   &query.CloseRequest{QueryID: req.QueryID},
		}
	default:
		return errorResponse(
			fmt.Sprintf("RPC QueryAdapter - Unsupported message type: %s", req.MsgType),
			query.KindUnsupportedCommand,
		)
	}

	resp := adapter.handler.Handle(ctx, request)
	if resp.Status != query.StatusSuccess {
		return errorResponse(resp.Err, resp.Kind)
	}

	if request.Command == query.CmdClose {
		return common.NewCloseResponse(resp.Closed)
	}
	return pageResponse(req.MsgType, resp.Page)
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

func errorResponse(msg string, kind query.ErrorKind) *common.Message {
	return common.NewErrorResponse(msg).WithError(msg, uint8(kind))
}

// decodeArgs decodes the JSON array of positional arguments. Numbers are kept
// as json.Number so integers survive without float rounding.
func decodeArgs(raw []byte) ([]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var args []any
	if err := dec.Decode(&args); err != nil {
		return nil, err
	}
	return args, nil
}

func pageResponse(msgType common.MessageType, page *query.Page) *common.Message {
	if page == nil {
		return errorResponse("handler returned no page", query.KindInternal)
	}

	items := page.Items
	if items == nil {
		items = []any{}
	}
	itemBytes, err := json.Marshal(items)
	if err != nil {
		return errorResponse(fmt.Sprintf("failed to encode result items: %v", err), query.KindInternal)
	}

	var fieldBytes []byte
	if page.Fields != nil {
		if fieldBytes, err = json.Marshal(page.Fields); err != nil {
			return errorResponse(fmt.Sprintf("failed to encode field metadata: %v", err), query.KindInternal)
		}
	}

	return common.NewPageResponse(msgType, page.QueryID, itemBytes, fieldBytes, page.Last)
}
