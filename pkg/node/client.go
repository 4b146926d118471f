package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spacenet/pkg/packet"
	"spacenet/pkg/packetizer"
	"spacenet/pkg/protocol"
	"spacenet/pkg/stream"
)

const clientPollInterval = 2 * time.Millisecond

var ErrDisconnected = errors.New("node: disconnected by host")

// Client is the connecting side of a session. It is not safe for
// concurrent use.
type Client struct {
	s        *Session
	handlers HandlerMap
	welcome  Welcome
	seq      uint32
}

// Dial connects to a host at addr, introduces itself as name and waits for
// the host's Welcome. cfg provides the transport settings, which must match
// the host's.
func Dial(ctx context.Context, cfg Config, addr, name string, registry *packetizer.Registry) (*Client, error) {
	proc, err := cfg.Processor()
	if err != nil {
		return nil, err
	}
	var opts []stream.Option
	if cfg.MaxFrameSize > 0 {
		opts = append(opts, stream.WithMaxFrameSize(cfg.MaxFrameSize))
	}
	conn, err := stream.Dial(ctx, addr, opts...)
	if err != nil {
		return nil, err
	}
	var transport stream.Transport = conn
	if proc != nil {
		transport = stream.NewTransformed(conn, proc)
	}
	base := packetizer.New(registry, packetizer.NewSessionContext(packetizer.Session{}))
	c := &Client{
		s:        newSession(conn, transport, base),
		handlers: make(HandlerMap),
	}
	c.s.setName(name)

	if err := c.s.Send(&Hello{Name: name, Version: protocol.Version}); err != nil {
		conn.Close()
		return nil, err
	}
	v, err := c.await(ctx, TypeWelcome, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("node: handshake with %s: %w", addr, err)
	}
	c.welcome = *v.(*Welcome)
	return c, nil
}

// Welcome is the host's answer to the handshake.
func (c *Client) Welcome() Welcome { return c.welcome }

// Handle registers fn for messages of type id delivered by Poll.
func (c *Client) Handle(id packetizer.TypeID, fn MessageHandler) { c.handlers[id] = fn }

func (c *Client) Send(v packet.Packetizable) error { return c.s.Send(v) }

// Poll dispatches every ready message to its handler and returns how many
// were handled. Messages without a handler are dropped.
func (c *Client) Poll() (int, error) {
	n := 0
	for {
		id, v, err := c.s.Receive()
		if err != nil {
			return n, err
		}
		if v == nil {
			return n, nil
		}
		if err := c.dispatch(id, v); err != nil {
			return n, err
		}
		n++
	}
}

func (c *Client) dispatch(id packetizer.TypeID, v packet.Packetizable) error {
	if bye, ok := v.(*Bye); ok {
		c.s.Close()
		return fmt.Errorf("%w: %s", ErrDisconnected, bye.Reason)
	}
	if fn, ok := c.handlers[id]; ok {
		return fn(c.s, v)
	}
	return nil
}

// Ping measures the round trip to the host.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	c.seq++
	seq := c.seq
	if err := c.s.Send(&Ping{Seq: seq, SentAt: time.Now().UnixNano()}); err != nil {
		return 0, err
	}
	v, err := c.await(ctx, TypePong, func(v packet.Packetizable) bool { return v.(*Pong).Seq == seq })
	if err != nil {
		return 0, err
	}
	return v.(*Pong).RTT(time.Now()), nil
}

// await polls until a message of type id satisfying match arrives. Other
// messages are dispatched as Poll would.
func (c *Client) await(ctx context.Context, id packetizer.TypeID, match func(packet.Packetizable) bool) (packet.Packetizable, error) {
	ticker := time.NewTicker(clientPollInterval)
	defer ticker.Stop()
	for {
		for {
			got, v, err := c.s.Receive()
			if err != nil {
				return nil, err
			}
			if v == nil {
				break
			}
			if got == id && (match == nil || match(v)) {
				return v, nil
			}
			if err := c.dispatch(got, v); err != nil {
				return nil, err
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) Stats() stream.Stats { return c.s.Stats() }

// Close says goodbye and closes the connection.
func (c *Client) Close() error {
	c.s.Send(&Bye{Reason: "client closed"})
	return c.s.Close()
}
