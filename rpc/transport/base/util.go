package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"time"
)

const (
	// frameHeaderSize is 8 bytes requestID + 4 bytes payload length
	frameHeaderSize = 12
	// maxFrameSize limits the payload of a single frame
	maxFrameSize = 256 * 1024 * 1024
)

// writeFrame writes a frame to the connection with the format:
// - 8 bytes: requestID (uint64, big endian)
// - 4 bytes: data length (uint32, big endian)
// - N bytes: data payload
func writeFrame(conn io.Writer, requestID uint64, data []byte) error {
	if len(data) > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds the limit of %d bytes", len(data), maxFrameSize)
	}

	header := make([]byte, frameHeaderSize)
	binary.BigEndian.PutUint64(header[:8], requestID)
	binary.BigEndian.PutUint32(header[8:12], uint32(len(data)))

	// header and payload in one write (writev on net.Conn)
	b := net.Buffers{header, data}
	_, err := b.WriteTo(conn)
	return err
}

// readFrame reads a frame from the connection using the provided buffer.
// If the buffer is too small a new one is allocated, the returned payload may
// therefore alias buf or not.
func readFrame(conn io.Reader, buf []byte) (requestID uint64, data []byte, err error) {
	if len(buf) < frameHeaderSize {
		buf = make([]byte, frameHeaderSize)
	}

	if _, err := io.ReadFull(conn, buf[:frameHeaderSize]); err != nil {
		return 0, nil, err
	}

	requestID = binary.BigEndian.Uint64(buf[:8])
	contentLength := binary.BigEndian.Uint32(buf[8:12])

	if contentLength == 0 {
		return requestID, []byte{}, nil
	}
	if contentLength > maxFrameSize {
		return 0, nil, fmt.Errorf("frame of %d bytes exceeds the limit of %d bytes", contentLength, maxFrameSize)
	}

	if len(buf) < int(contentLength) {
		buf = make([]byte, contentLength)
	}

	if _, err := io.ReadFull(conn, buf[:contentLength]); err != nil {
		return 0, nil, err
	}
	return requestID, buf[:contentLength], nil
}

// Backoff produces retry delays starting at 50ms and doubling per call, each
// with +-10% jitter. The zero value is ready to use.
type Backoff struct {
	next time.Duration
}

// Next returns the delay before the next attempt
func (b *Backoff) Next() time.Duration {
	if b.next == 0 {
		b.next = 50 * time.Millisecond
	}
	d := time.Duration(float64(b.next) * (0.9 + 0.2*rand.Float64()))
	b.next *= 2
	return d
}
