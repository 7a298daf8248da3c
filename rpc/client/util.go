package client

import (
	"fmt"

	"github.com/ValentinKolb/dQRY/lib/query"
	"github.com/ValentinKolb/dQRY/rpc/common"
	"github.com/ValentinKolb/dQRY/rpc/serializer"
	"github.com/ValentinKolb/dQRY/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter bundles what every RPC client needs to talk to a server
type rpcClientAdapter struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// roundTrip sends req and decodes the answer. Error answers come back as
// *query.Error, so errors.Is works with the sentinels of package query.
// Any other answer must have the message type of the request.
func (a *rpcClientAdapter) roundTrip(req *common.Message) (*common.Message, error) {
	reqBytes, err := a.serializer.Serialize(*req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", req.MsgType, err)
	}

	respBytes, err := a.transport.Send(reqBytes)
	if err != nil {
		return nil, err
	}

	var resp common.Message
	if err := a.serializer.Deserialize(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", req.MsgType, err)
	}

	switch {
	case resp.MsgType == common.MsgTError || resp.Err != "":
		return nil, &query.Error{Kind: query.ErrorKind(resp.ErrKind), Msg: resp.Err}
	case resp.MsgType != req.MsgType:
		return nil, fmt.Errorf("unexpected response type %s to %s request", resp.MsgType, req.MsgType)
	}
	return &resp, nil
}
