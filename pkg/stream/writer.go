package stream

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"

	"spacenet/pkg/packet"
)

// FrameWriter writes packets as frames to an io.Writer.
type FrameWriter struct {
	w io.Writer
}

func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// Write emits the length prefix and the body of p in one vectored write and
// returns HeaderSize + p.Length() on success. A packet carrying a write error
// is refused.
func (fw *FrameWriter) Write(p *packet.Packet) (int, error) {
	if err := p.Err(); err != nil {
		return 0, fmt.Errorf("stream: refusing broken packet: %w", err)
	}
	body := p.Bytes()
	if len(body) > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}
	var header [HeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))

	bufs := net.Buffers{header[:], body}
	n, err := bufs.WriteTo(fw.w)
	if err != nil {
		return int(n), fmt.Errorf("stream: write: %w", err)
	}
	return int(n), nil
}
