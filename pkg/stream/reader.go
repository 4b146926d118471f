package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"spacenet/pkg/buffers"
	"spacenet/pkg/packet"
)

type readState uint8

const (
	awaitingLength readState = iota
	awaitingBody
)

func (s readState) String() string {
	if s == awaitingBody {
		return "AwaitingBody"
	}
	return "AwaitingLength"
}

// FrameReader reassembles frames from a Source. It is not safe for
// concurrent use. After a fatal error every Read returns that error.
type FrameReader struct {
	src Source
	max int

	buf  []byte // pooled read buffer, buf[r:w] is unconsumed
	r, w int

	state   readState
	header  [HeaderSize]byte
	headerN int
	body    []byte
	target  int

	err error
}

// NewFrameReader reads frames of at most DefaultMaxFrameSize bytes from src.
func NewFrameReader(src Source) *FrameReader {
	return &FrameReader{
		src: src,
		max: DefaultMaxFrameSize,
		buf: buffers.StreamPool.Get(),
	}
}

// SetMaxFrameSize changes the largest accepted body. n <= 0 restores the default.
func (fr *FrameReader) SetMaxFrameSize(n int) {
	if n <= 0 {
		n = DefaultMaxFrameSize
	}
	fr.max = n
}

// Err returns the fatal error that stopped the reader, if any.
func (fr *FrameReader) Err() error { return fr.err }

// Buffered is the number of bytes read from the source but not yet returned
// as part of a packet, length prefix included.
func (fr *FrameReader) Buffered() int {
	n := fr.w - fr.r + fr.headerN + len(fr.body)
	if fr.state == awaitingBody {
		n += HeaderSize
	}
	return n
}

// Read returns the next complete packet, or (nil, nil) when the bytes
// currently available do not complete one.
func (fr *FrameReader) Read() (*packet.Packet, error) {
	if fr.err != nil {
		return nil, fr.err
	}
	for {
		p, err := fr.consume()
		if err != nil {
			return nil, fr.fail(err)
		}
		if p != nil {
			return p, nil
		}
		more, err := fr.fill()
		if err != nil {
			return nil, fr.fail(err)
		}
		if !more {
			return nil, nil
		}
	}
}

// Close releases the read buffer. Later reads return ErrClosed.
func (fr *FrameReader) Close() {
	if fr.buf != nil {
		buffers.StreamPool.Put(fr.buf)
		fr.buf = nil
	}
	fr.r, fr.w = 0, 0
	if fr.err == nil {
		fr.err = ErrClosed
	}
}

func (fr *FrameReader) fail(err error) error {
	fr.err = err
	return err
}

// consume advances the state machine over buffered bytes until a frame
// completes or the buffer runs dry.
func (fr *FrameReader) consume() (*packet.Packet, error) {
	for fr.r < fr.w {
		switch fr.state {
		case awaitingLength:
			n := copy(fr.header[fr.headerN:], fr.buf[fr.r:fr.w])
			fr.r += n
			fr.headerN += n
			if fr.headerN < HeaderSize {
				continue
			}
			fr.headerN = 0
			length := int32(binary.BigEndian.Uint32(fr.header[:]))
			switch {
			case length < 0:
				return nil, fmt.Errorf("%w: %d", ErrNegativeLength, length)
			case int(length) > fr.max:
				return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, length, fr.max)
			case length == 0:
				return packet.New(), nil
			}
			fr.target = int(length)
			fr.body = make([]byte, 0, fr.target)
			fr.state = awaitingBody

		case awaitingBody:
			n := min(fr.target-len(fr.body), fr.w-fr.r)
			fr.body = append(fr.body, fr.buf[fr.r:fr.r+n]...)
			fr.r += n
			if len(fr.body) == fr.target {
				body := fr.body
				fr.body = nil
				fr.target = 0
				fr.state = awaitingLength
				return packet.NewFrom(body), nil
			}
		}
	}
	return nil, nil
}

// fill refills the read buffer once, if the source has data. A zero-byte
// read after data was reported means the peer is gone.
func (fr *FrameReader) fill() (bool, error) {
	avail, err := fr.src.Available()
	if err != nil {
		return false, fmt.Errorf("stream: %w", err)
	}
	if avail <= 0 {
		return false, nil
	}
	n, err := fr.src.Read(fr.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("stream: read: %w", err)
	}
	if n == 0 {
		return false, ErrClosed
	}
	fr.r, fr.w = 0, n
	return true, nil
}
