package serializer

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/ValentinKolb/dQRY/rpc/common"
)

// NewGOBSerializer creates a new serializer using Go's binary gob format.
// Every message is a self-contained gob stream (type information included),
// so messages can be decoded independently and in any order.
func NewGOBSerializer() IRPCSerializer {
	return &gobSerializerImpl{
		buffers: &sync.Pool{
			New: func() interface{} { return new(bytes.Buffer) },
		},
	}
}

// gobSerializerImpl implements the IRPCSerializer interface using gob encoding
type gobSerializerImpl struct {
	buffers *sync.Pool
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (g gobSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	buf := g.buffers.Get().(*bytes.Buffer)
	buf.Reset()
	defer g.buffers.Put(buf)

	if err := gob.NewEncoder(buf).Encode(msg); err != nil {
		return nil, err
	}

	// the buffer is reused, hand out a copy
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func (g gobSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	// gob skips zero values, fields of a reused message must not survive
	*msg = common.Message{}
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(msg); err != nil {
		return fmt.Errorf("invalid gob message: %w", err)
	}
	return nil
}
