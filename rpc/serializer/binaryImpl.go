package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dQRY/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format:
//
//	MsgType (1 byte) | flags (2 bytes) | present fields in flag order
//
// Strings and byte slices are prefixed with a 4 byte length. Bool fields are
// encoded by their flag alone.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasCache    uint16 = 1 << 0
	hasTypeName uint16 = 1 << 1
	hasQuery    uint16 = 1 << 2
	hasArgs     uint16 = 1 << 3
	hasPageSize uint16 = 1 << 4
	hasQueryID  uint16 = 1 << 5
	hasItems    uint16 = 1 << 6
	hasFields   uint16 = 1 << 7
	isLast      uint16 = 1 << 8
	isOk        uint16 = 1 << 9
	hasErr      uint16 = 1 << 10
	hasErrKind  uint16 = 1 << 11
	hasMeta     uint16 = 1 << 12
)

const headerSize = 3

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	w := binWriter{buf: make([]byte, b.sizeBytes(msg)), pos: headerSize}
	var flags uint16

	w.buf[0] = byte(msg.MsgType)

	if msg.Cache != "" {
		flags |= hasCache
		w.putString(msg.Cache)
	}
	if msg.TypeName != "" {
		flags |= hasTypeName
		w.putString(msg.TypeName)
	}
	if msg.Query != "" {
		flags |= hasQuery
		w.putString(msg.Query)
	}
	if msg.Args != nil {
		flags |= hasArgs
		w.putBytes(msg.Args)
	}
	if msg.PageSize != 0 {
		flags |= hasPageSize
		w.putUint32(uint32(msg.PageSize))
	}
	if msg.QueryID != 0 {
		flags |= hasQueryID
		w.putUint64(msg.QueryID)
	}
	if msg.Items != nil {
		flags |= hasItems
		w.putBytes(msg.Items)
	}
	if msg.Fields != nil {
		flags |= hasFields
		w.putBytes(msg.Fields)
	}
	if msg.Last {
		flags |= isLast
	}
	if msg.Ok {
		flags |= isOk
	}
	if msg.Err != "" {
		flags |= hasErr
		w.putString(msg.Err)
	}
	if msg.ErrKind != 0 {
		flags |= hasErrKind
		w.buf[w.pos] = msg.ErrKind
		w.pos++
	}
	if msg.Meta != nil {
		flags |= hasMeta
		w.putBytes(msg.Meta)
	}

	// Set flags after knowing which fields are present
	binary.BigEndian.PutUint16(w.buf[1:3], flags)
	return w.buf, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	msg.MsgType = common.MessageType(data[0])
	flags := binary.BigEndian.Uint16(data[1:3])
	r := binReader{data: data, pos: headerSize}

	var err error
	readString := func(flag uint16, name string) string {
		if err != nil || flags&flag == 0 {
			return ""
		}
		var s string
		s, err = r.string(name)
		return s
	}
	readBytes := func(flag uint16, name string, dst []byte) []byte {
		if err != nil || flags&flag == 0 {
			return nil
		}
		var out []byte
		out, err = r.bytes(name, dst)
		return out
	}

	msg.Cache = readString(hasCache, "cache")
	msg.TypeName = readString(hasTypeName, "type name")
	msg.Query = readString(hasQuery, "query")
	msg.Args = readBytes(hasArgs, "args", msg.Args)

	msg.PageSize = 0
	if err == nil && flags&hasPageSize != 0 {
		var v uint32
		v, err = r.uint32("page size")
		msg.PageSize = int32(v)
	}

	msg.QueryID = 0
	if err == nil && flags&hasQueryID != 0 {
		msg.QueryID, err = r.uint64("query id")
	}

	msg.Items = readBytes(hasItems, "items", msg.Items)
	msg.Fields = readBytes(hasFields, "fields", msg.Fields)
	msg.Last = flags&isLast != 0
	msg.Ok = flags&isOk != 0
	msg.Err = readString(hasErr, "error")

	msg.ErrKind = 0
	if err == nil && flags&hasErrKind != 0 {
		msg.ErrKind, err = r.byte("error kind")
	}

	msg.Meta = readBytes(hasMeta, "meta", msg.Meta)
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := headerSize

	// 4 bytes length prefix + data
	for _, s := range []string{msg.Cache, msg.TypeName, msg.Query, msg.Err} {
		if s != "" {
			size += 4 + len(s)
		}
	}
	for _, bs := range [][]byte{msg.Args, msg.Items, msg.Fields, msg.Meta} {
		if bs != nil {
			size += 4 + len(bs)
		}
	}

	if msg.PageSize != 0 {
		size += 4
	}
	if msg.QueryID != 0 {
		size += 8
	}
	if msg.ErrKind != 0 {
		size += 1
	}
	return size
}

// binWriter writes into a buffer that is already large enough
type binWriter struct {
	buf []byte
	pos int
}

func (w *binWriter) putUint32(v uint32) {
	binary.BigEndian.PutUint32(w.buf[w.pos:w.pos+4], v)
	w.pos += 4
}

func (w *binWriter) putUint64(v uint64) {
	binary.BigEndian.PutUint64(w.buf[w.pos:w.pos+8], v)
	w.pos += 8
}

func (w *binWriter) putString(s string) {
	w.putUint32(uint32(len(s)))
	w.pos += copy(w.buf[w.pos:], s)
}

func (w *binWriter) putBytes(b []byte) {
	w.putUint32(uint32(len(b)))
	w.pos += copy(w.buf[w.pos:], b)
}

// binReader reads from a buffer and reports truncated data per field
type binReader struct {
	data []byte
	pos  int
}

func (r *binReader) need(n int, name string) error {
	if r.pos+n > len(r.data) {
		return fmt.Errorf("data too short for %s", name)
	}
	return nil
}

func (r *binReader) byte(name string) (byte, error) {
	if err := r.need(1, name); err != nil {
		return 0, err
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *binReader) uint32(name string) (uint32, error) {
	if err := r.need(4, name); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *binReader) uint64(name string) (uint64, error) {
	if err := r.need(8, name); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.data[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *binReader) string(name string) (string, error) {
	n, err := r.uint32(name + " length")
	if err != nil {
		return "", err
	}
	if err := r.need(int(n), name); err != nil {
		return "", err
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

// bytes copies the next length-prefixed slice, reusing dst if it is large
// enough. An empty slice is returned as empty, not nil.
func (r *binReader) bytes(name string, dst []byte) ([]byte, error) {
	n, err := r.uint32(name + " length")
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n), name); err != nil {
		return nil, err
	}
	if dst == nil || cap(dst) < int(n) {
		dst = make([]byte, n)
	} else {
		dst = dst[:n]
	}
	copy(dst, r.data[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return dst, nil
}
