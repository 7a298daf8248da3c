// Package serializer turns a common.Message into bytes and back.
//
// Result pages are JSON encoded by the server adapter before they reach a
// serializer, so the payload of a page is an opaque byte slice here. What
// differs between the implementations is the cost of the envelope, which
// dominates for fetch and close requests.
//
// Implementations:
//
//   - binary: hand written format. A 16 bit flag word lists the present
//     fields and only those are written; bool fields live in the flags.
//     Smallest and fastest, the default.
//   - json: encoding/json, readable on the wire. Byte slices appear base64
//     encoded.
//   - gob: encoding/gob with pooled buffers. Works, but is the slowest of
//     the three and produces the largest frames (see benchmark_test.go).
//
// Deserialize resets the target message first, so a message can be reused
// across calls. None of the serializers hold per-call state and all of them
// may be shared between goroutines.
//
//	s := serializer.NewBinarySerializer()
//	data, err := s.Serialize(*common.NewFetchRequest(7, 100))
//	...
//	var resp common.Message
//	err = s.Deserialize(data, &resp)
package serializer
