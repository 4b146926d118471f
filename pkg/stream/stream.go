// Package stream recovers discrete packets from byte streams such as TCP.
//
// Every packet travels as a frame: a 4-byte BigEndian signed length N
// followed by N bytes of packet body. FrameWriter emits frames, FrameReader
// reassembles them without ever blocking: it only consumes what its Source
// reports as available and returns a nil packet when no frame is complete
// yet, so it can be polled once per simulation tick.
package stream

import (
	"errors"

	"spacenet/pkg/packet"
)

const (
	// HeaderSize is the size of the frame length prefix.
	HeaderSize = 4

	// DefaultMaxFrameSize bounds the body a reader accepts before it stops
	// trusting the peer.
	DefaultMaxFrameSize = 16 << 20
)

var (
	// ErrNegativeLength means the stream is corrupt or hostile. Fatal.
	ErrNegativeLength = errors.New("stream: negative frame length")
	// ErrFrameTooLarge is returned for frames above the configured maximum. Fatal.
	ErrFrameTooLarge = errors.New("stream: frame too large")
	// ErrClosed is returned once the peer or the owner closed the stream. Fatal.
	ErrClosed = errors.New("stream: closed")
	// ErrEnvelope is returned when a transformed packet cannot be unwrapped.
	ErrEnvelope = errors.New("stream: invalid envelope")
)

// Transport is a packet-oriented, poll-driven connection. Read returns
// (nil, nil) when no packet is ready. Write returns the number of bytes put on
// the underlying stream.
type Transport interface {
	Read() (*packet.Packet, error)
	Write(p *packet.Packet) (int, error)
}
