package stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"spacenet/internal/sockpoll"
	"spacenet/pkg/buffers"
)

// Source is a byte stream that can tell how much it holds without blocking.
//
// Available reports a lower bound of the bytes a Read would return right now.
// A closed stream reports at least one byte so that the following Read
// returns 0 and the closure is noticed.
type Source interface {
	Available() (int, error)
	Read(b []byte) (int, error)
}

// BufferSource is an in-memory Source fed by hand or through Write. It is
// safe for one feeding and one reading goroutine.
type BufferSource struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func NewBufferSource() *BufferSource {
	return &BufferSource{}
}

// Feed appends a copy of b.
func (s *BufferSource) Feed(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Write(b)
}

// Write implements io.Writer so a FrameWriter can target the source directly.
func (s *BufferSource) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	return s.buf.Write(b)
}

// Close marks the end of the stream. Buffered bytes can still be read.
func (s *BufferSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *BufferSource) Available() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.buf.Len(); n > 0 {
		return n, nil
	}
	if s.closed {
		return 1, nil
	}
	return 0, nil
}

func (s *BufferSource) Read(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf.Len() == 0 {
		if s.closed {
			return 0, io.EOF
		}
		return 0, nil
	}
	return s.buf.Read(b)
}

// fallbackWait is how long a ConnSource without readiness support waits for
// a byte before reporting an empty socket.
const fallbackWait = time.Millisecond

// ConnSource adapts a net.Conn. Readiness is queried from the socket where
// the platform allows it; otherwise the source peeks one byte under a short
// read deadline.
type ConnSource struct {
	conn     net.Conn
	raw      syscall.Conn
	br       *bufio.Reader
	fallback bool
}

func NewConnSource(conn net.Conn) *ConnSource {
	s := &ConnSource{
		conn: conn,
		br:   bufio.NewReaderSize(conn, buffers.StreamReadSize),
	}
	if raw, ok := conn.(syscall.Conn); ok {
		s.raw = raw
	} else {
		s.fallback = true
	}
	return s
}

func (s *ConnSource) Available() (int, error) {
	if n := s.br.Buffered(); n > 0 {
		return n, nil
	}
	if !s.fallback {
		n, err := sockpoll.Pending(s.raw)
		if err == nil {
			return n, nil
		}
		if !errors.Is(err, sockpoll.ErrUnsupported) {
			return 0, err
		}
		s.fallback = true
	}
	return s.peek()
}

func (s *ConnSource) peek() (int, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(fallbackWait)); err != nil {
		return 0, err
	}
	_, err := s.br.Peek(1)
	if derr := s.conn.SetReadDeadline(time.Time{}); derr != nil && err == nil {
		err = derr
	}
	switch {
	case err == nil:
		return s.br.Buffered(), nil
	case errors.Is(err, os.ErrDeadlineExceeded):
		return 0, nil
	case errors.Is(err, io.EOF):
		return 1, nil
	default:
		return 0, err
	}
}

func (s *ConnSource) Read(b []byte) (int, error) {
	return s.br.Read(b)
}
