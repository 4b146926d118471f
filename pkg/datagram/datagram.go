// Package datagram is the UDP transport of the simulation.
//
// A Transport never blocks: Receive hands every datagram already queued to
// the handler and returns. Transports sharing a loopback.Network deliver to
// each other in-process when the destination is a loopback address whose
// port is bound in that network, so a server and a client living in the same
// process exchange datagrams without socket I/O.
package datagram

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"spacenet/internal/sockpoll"
	"spacenet/pkg/buffers"
	"spacenet/pkg/log"
	"spacenet/pkg/loopback"
)

const (
	// DefaultMaxDrain bounds the socket reads of a single Receive.
	DefaultMaxDrain = 256

	// DefaultInboxSize bounds the loopback datagrams waiting for Receive.
	DefaultInboxSize = 4096

	fallbackWait = time.Millisecond

	// first port tried for offline transports without an explicit port
	ephemeralBase = 49152
)

var (
	ErrClosed  = errors.New("datagram: transport closed")
	ErrOffline = errors.New("datagram: offline transport cannot reach destination")
)

// Handler receives one datagram. data is only valid during the call.
type Handler func(data []byte, from *net.UDPAddr)

// Config describes a listening transport.
type Config struct {
	// Address is the local bind address, e.g. "0.0.0.0:7777".
	Address string `mapstructure:"address"`
	// MulticastGroup, when set, joins the group and binds the group's port.
	MulticastGroup string `mapstructure:"multicast_group"`
	// Interface names the multicast interface; empty lets the system choose.
	Interface string `mapstructure:"interface"`
	MaxDrain  int    `mapstructure:"max_drain"`
	InboxSize int    `mapstructure:"inbox_size"`
	// Offline transports open no socket and only take part in loopback
	// delivery.
	Offline bool `mapstructure:"offline"`
}

// Stats counts datagrams per path.
type Stats struct {
	Received    uint64 `json:"received"`
	Sent        uint64 `json:"sent"`
	LoopbackIn  uint64 `json:"loopback_in"`
	LoopbackOut uint64 `json:"loopback_out"`
	Dropped     uint64 `json:"dropped"`
	Errors      uint64 `json:"errors"`
}

// packetConn is the part of *net.UDPConn a Transport uses.
type packetConn interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

type queued struct {
	data []byte
	from *net.UDPAddr
}

// Transport is a UDP endpoint. Receive must be called from one goroutine;
// Send and DeliverLoopback may be called from any.
type Transport struct {
	conn     packetConn // nil when offline
	network  *loopback.Network
	handler  Handler
	local    *net.UDPAddr
	port     int
	maxDrain int
	buf      []byte

	mu        sync.Mutex
	inbox     []queued
	inboxSize int

	closed      atomic.Bool
	fallback    bool
	received    atomic.Uint64
	sent        atomic.Uint64
	loopbackIn  atomic.Uint64
	loopbackOut atomic.Uint64
	dropped     atomic.Uint64
	errs        atomic.Uint64
}

// Listen creates a transport bound to cfg.Address, joining cfg.MulticastGroup
// when set. A non-nil network registers the transport for in-process
// delivery.
func Listen(cfg Config, network *loopback.Network, handler Handler) (*Transport, error) {
	t := &Transport{
		network:   network,
		handler:   handler,
		maxDrain:  cfg.MaxDrain,
		inboxSize: cfg.InboxSize,
	}
	if t.maxDrain <= 0 {
		t.maxDrain = DefaultMaxDrain
	}
	if t.inboxSize <= 0 {
		t.inboxSize = DefaultInboxSize
	}

	var err error
	if cfg.Offline {
		err = t.bindOffline(cfg)
	} else {
		err = t.bindSocket(cfg)
	}
	if err != nil {
		return nil, err
	}

	if network != nil {
		if err := network.Bind(t.port, t); err != nil {
			if t.conn != nil {
				t.conn.Close()
			}
			return nil, fmt.Errorf("datagram: %w", err)
		}
	}
	if t.conn != nil {
		t.buf = buffers.DatagramPool.Get()
	}
	log.Debug().Str("component", "datagram").Int("port", t.port).Bool("offline", t.conn == nil).Msg("transport bound")
	return t, nil
}

// NewSender creates a transport on an ephemeral port, for clients that only
// talk to known servers. Replies still reach handler.
func NewSender(network *loopback.Network, handler Handler) (*Transport, error) {
	return Listen(Config{Address: ":0"}, network, handler)
}

func (t *Transport) bindSocket(cfg Config) error {
	if cfg.MulticastGroup != "" {
		group, err := net.ResolveUDPAddr("udp4", cfg.MulticastGroup)
		if err != nil {
			return fmt.Errorf("datagram: resolve group %s: %w", cfg.MulticastGroup, err)
		}
		var ifi *net.Interface
		if cfg.Interface != "" {
			if ifi, err = net.InterfaceByName(cfg.Interface); err != nil {
				return fmt.Errorf("datagram: interface %s: %w", cfg.Interface, err)
			}
		}
		conn, err := net.ListenMulticastUDP("udp4", ifi, group)
		if err != nil {
			return fmt.Errorf("datagram: join %s: %w", cfg.MulticastGroup, err)
		}
		t.conn, t.local = conn, conn.LocalAddr().(*net.UDPAddr)
	} else {
		laddr, err := net.ResolveUDPAddr("udp", cfg.Address)
		if err != nil {
			return fmt.Errorf("datagram: resolve %s: %w", cfg.Address, err)
		}
		conn, err := net.ListenUDP("udp", laddr)
		if err != nil {
			return fmt.Errorf("datagram: listen %s: %w", cfg.Address, err)
		}
		t.conn, t.local = conn, conn.LocalAddr().(*net.UDPAddr)
	}
	t.port = t.local.Port
	return nil
}

func (t *Transport) bindOffline(cfg Config) error {
	if t.network == nil {
		return fmt.Errorf("%w: offline transport needs a loopback network", ErrOffline)
	}
	laddr, err := net.ResolveUDPAddr("udp", cfg.Address)
	if err != nil {
		return fmt.Errorf("datagram: resolve %s: %w", cfg.Address, err)
	}
	t.port = laddr.Port
	if t.port == 0 {
		for p := ephemeralBase; p <= 65535; p++ {
			if !t.network.IsBound(p) {
				t.port = p
				break
			}
		}
		if t.port == 0 {
			return fmt.Errorf("datagram: no free loopback port")
		}
	}
	t.local = loopback.Addr(t.port)
	return nil
}

// Port is the bound local port.
func (t *Transport) Port() int { return t.port }

// LocalAddr is the socket address, or the loopback address when offline.
func (t *Transport) LocalAddr() *net.UDPAddr { return t.local }

// LoopbackAddr is the address peers in this process use to reach t.
func (t *Transport) LoopbackAddr() *net.UDPAddr { return loopback.Addr(t.port) }

// SetHandler replaces the handler. It must not race with Receive.
func (t *Transport) SetHandler(h Handler) { t.handler = h }

// Send delivers data to to, in-process when the loopback network routes it,
// through the socket otherwise. data may be reused once Send returns.
func (t *Transport) Send(data []byte, to *net.UDPAddr) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if ep, ok := t.network.Route(to); ok {
		ep.DeliverLoopback(append([]byte(nil), data...), t.LoopbackAddr())
		t.loopbackOut.Add(1)
		return nil
	}
	if t.conn == nil {
		return fmt.Errorf("%w: %v", ErrOffline, to)
	}
	if _, err := t.conn.WriteToUDP(data, to); err != nil {
		t.errs.Add(1)
		return fmt.Errorf("datagram: send to %v: %w", to, err)
	}
	t.sent.Add(1)
	return nil
}

// DeliverLoopback queues a datagram sent in-process. The transport takes
// ownership of data.
func (t *Transport) DeliverLoopback(data []byte, from *net.UDPAddr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() || len(t.inbox) >= t.inboxSize {
		t.dropped.Add(1)
		return
	}
	t.inbox = append(t.inbox, queued{data: data, from: from})
}

// Receive hands every datagram ready now to the handler and returns how many
// were delivered. Loopback datagrams come first, then the socket is drained
// while it reports pending data, at most MaxDrain reads. A failing read is
// logged and skipped.
func (t *Transport) Receive() int {
	if t.closed.Load() {
		return 0
	}
	t.mu.Lock()
	inbox := t.inbox
	t.inbox = nil
	t.mu.Unlock()

	n := 0
	for _, q := range inbox {
		t.loopbackIn.Add(1)
		t.deliver(q.data, q.from)
		n++
	}
	if t.conn == nil {
		return n
	}

	for i := 0; i < t.maxDrain; i++ {
		ready, err := t.ready()
		if err != nil {
			t.errs.Add(1)
			log.Warn().Str("component", "datagram").Int("port", t.port).Err(err).Msg("readiness check failed")
			break
		}
		if !ready {
			break
		}
		size, from, err := t.conn.ReadFromUDP(t.buf)
		if err != nil {
			if t.fallback && errors.Is(err, os.ErrDeadlineExceeded) {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			t.errs.Add(1)
			log.Warn().Str("component", "datagram").Int("port", t.port).Err(err).Msg("receive failed")
			continue
		}
		t.received.Add(1)
		t.deliver(t.buf[:size], from)
		n++
	}
	if t.fallback {
		t.conn.SetReadDeadline(time.Time{})
	}
	return n
}

func (t *Transport) ready() (bool, error) {
	if !t.fallback {
		sc, ok := t.conn.(syscall.Conn)
		if !ok {
			t.fallback = true
		} else {
			n, err := sockpoll.Pending(sc)
			if err == nil {
				return n > 0, nil
			}
			if !errors.Is(err, sockpoll.ErrUnsupported) {
				return false, err
			}
			t.fallback = true
		}
	}
	return true, t.conn.SetReadDeadline(time.Now().Add(fallbackWait))
}

func (t *Transport) deliver(data []byte, from *net.UDPAddr) {
	if t.handler == nil {
		t.dropped.Add(1)
		return
	}
	t.handler(data, from)
}

// Close unbinds the transport from the loopback network and closes the
// socket. Pending loopback datagrams are discarded.
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	if t.network != nil {
		t.network.Unbind(t.port, t)
	}
	t.mu.Lock()
	t.inbox = nil
	t.mu.Unlock()

	var err error
	if t.conn != nil {
		err = t.conn.Close()
		buffers.DatagramPool.Put(t.buf)
		t.buf = nil
	}
	log.Debug().Str("component", "datagram").Int("port", t.port).Msg("transport closed")
	return err
}

func (t *Transport) Stats() Stats {
	return Stats{
		Received:    t.received.Load(),
		Sent:        t.sent.Load(),
		LoopbackIn:  t.loopbackIn.Load(),
		LoopbackOut: t.loopbackOut.Load(),
		Dropped:     t.dropped.Load(),
		Errors:      t.errs.Load(),
	}
}
