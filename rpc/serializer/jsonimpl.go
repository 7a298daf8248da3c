package serializer

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dQRY/rpc/common"
)

// NewJSONSerializer creates a new serializer using json encoding.
// Args, Items, Fields and Meta are []byte and therefore appear base64 encoded
// in the document.
func NewJSONSerializer() IRPCSerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the IRPCSerializer interface using json encoding
type jsonSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (j jsonSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	// json merges into existing values, omitted fields must not survive
	*msg = common.Message{}
	if err := json.Unmarshal(b, msg); err != nil {
		return fmt.Errorf("invalid json message: %w", err)
	}
	return nil
}
