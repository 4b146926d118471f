package stream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"spacenet/internal/sockpoll"
	"spacenet/pkg/log"
	"spacenet/pkg/packet"
)

// Stats counts framed traffic. Byte counts include the length prefixes.
type Stats struct {
	PacketsIn  uint64 `json:"packets_in"`
	PacketsOut uint64 `json:"packets_out"`
	BytesIn    uint64 `json:"bytes_in"`
	BytesOut   uint64 `json:"bytes_out"`
}

// Conn is a framed Transport over a net.Conn.
type Conn struct {
	conn   net.Conn
	reader *FrameReader
	writer *FrameWriter
	closed atomic.Bool

	packetsIn  atomic.Uint64
	packetsOut atomic.Uint64
	bytesIn    atomic.Uint64
	bytesOut   atomic.Uint64
}

// Option tunes a Conn.
type Option func(*Conn)

// WithMaxFrameSize bounds the frames the Conn accepts.
func WithMaxFrameSize(n int) Option {
	return func(c *Conn) { c.reader.SetMaxFrameSize(n) }
}

// NewConn frames conn. The Conn owns conn and closes it on Close.
func NewConn(conn net.Conn, opts ...Option) *Conn {
	c := &Conn{
		conn:   conn,
		reader: NewFrameReader(NewConnSource(conn)),
		writer: NewFrameWriter(conn),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to a framed TCP peer.
func Dial(ctx context.Context, addr string, opts ...Option) (*Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("stream: dial %s: %w", addr, err)
	}
	return NewConn(conn, opts...), nil
}

func (c *Conn) Read() (*packet.Packet, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	p, err := c.reader.Read()
	if err != nil {
		return nil, err
	}
	if p != nil {
		c.packetsIn.Add(1)
		c.bytesIn.Add(uint64(HeaderSize + p.Length()))
	}
	return p, nil
}

func (c *Conn) Write(p *packet.Packet) (int, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	n, err := c.writer.Write(p)
	c.bytesOut.Add(uint64(n))
	if err != nil {
		return n, err
	}
	c.packetsOut.Add(1)
	return n, nil
}

// Close closes the socket. Later reads and writes return ErrClosed.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := c.conn.Close()
	c.reader.Close()
	log.Debug().Str("component", "stream").
		Stringer("remote", c.conn.RemoteAddr()).
		Uint64("packets_in", c.packetsIn.Load()).
		Uint64("packets_out", c.packetsOut.Load()).
		Msg("connection closed")
	return err
}

func (c *Conn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *Conn) Stats() Stats {
	return Stats{
		PacketsIn:  c.packetsIn.Load(),
		PacketsOut: c.packetsOut.Load(),
		BytesIn:    c.bytesIn.Load(),
		BytesOut:   c.bytesOut.Load(),
	}
}

// Listener accepts framed TCP connections without blocking.
type Listener struct {
	ln   *net.TCPListener
	opts []Option
}

// Listen binds a TCP listener on addr. opts apply to every accepted Conn.
func Listen(addr string, opts ...Option) (*Listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("stream: resolve %s: %w", addr, err)
	}
	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, fmt.Errorf("stream: listen %s: %w", addr, err)
	}
	return &Listener{ln: ln, opts: opts}, nil
}

func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

func (l *Listener) Close() error { return l.ln.Close() }

// Poll accepts one pending connection, or returns (nil, nil) when none is
// waiting.
func (l *Listener) Poll() (*Conn, error) {
	ready, err := sockpoll.Readable(l.ln)
	switch {
	case errors.Is(err, sockpoll.ErrUnsupported):
		if err := l.ln.SetDeadline(time.Now().Add(fallbackWait)); err != nil {
			return nil, err
		}
		defer l.ln.SetDeadline(time.Time{})
	case err != nil:
		return nil, fmt.Errorf("stream: poll listener: %w", err)
	case !ready:
		return nil, nil
	}
	conn, err := l.ln.AcceptTCP()
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, nil
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("stream: accept: %w", err)
	}
	return NewConn(conn, l.opts...), nil
}
