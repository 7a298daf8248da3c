package serializer

import "github.com/ValentinKolb/dQRY/rpc/common"

// IRPCSerializer converts messages to their wire form and back.
type IRPCSerializer interface {
	// Serialize encodes msg. The returned slice is owned by the caller.
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize decodes b into msg, overwriting every field of msg.
	Deserialize(b []byte, msg *common.Message) error
}
