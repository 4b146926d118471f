// Package node hosts game sessions on top of the transport stack: a poll
// driven TCP host whose sessions exchange packetized messages, with LAN
// discovery over datagrams and a small HTTP stats API.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"spacenet/pkg/datagram"
	"spacenet/pkg/log"
	"spacenet/pkg/loopback"
	"spacenet/pkg/machine"
	"spacenet/pkg/packet"
	"spacenet/pkg/packetizer"
	"spacenet/pkg/protocol"
	"spacenet/pkg/stream"
	"spacenet/pkg/transform"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/puzpuzpuz/xsync/v3"
)

// Stats is the API view of the host.
type Stats struct {
	ServerID  string          `json:"server_id"`
	Name      string          `json:"name"`
	Uptime    string          `json:"uptime"`
	Tick      uint64          `json:"tick"`
	Sessions  int             `json:"sessions"`
	Accepted  uint64          `json:"accepted"`
	Rejected  uint64          `json:"rejected"`
	Messages  uint64          `json:"messages"`
	Dropped   uint64          `json:"dropped"`
	Discovery *datagram.Stats `json:"discovery,omitempty"`
	Unmatched uint64          `json:"unmatched_datagrams"`
}

// Host accepts sessions and dispatches their messages. Handle must be
// called before Start; Tick is meant to be driven by a single goroutine,
// usually through Run.
type Host struct {
	cfg      Config
	id       uuid.UUID
	registry *packetizer.Registry
	base     *packetizer.Packetizer
	proc     *transform.PayloadProcessor
	network  *loopback.Network
	handlers HandlerMap

	listener  *stream.Listener
	discovery atomic.Pointer[datagram.Transport] // read by the API goroutine
	mux       *protocol.Mux
	api       *echo.Echo

	sessions *xsync.MapOf[uuid.UUID, *Session]
	started  time.Time
	tick     atomic.Uint64
	accepted atomic.Uint64
	rejected atomic.Uint64
	messages atomic.Uint64
	dropped  atomic.Uint64
}

// NewHost prepares a host. registry should come from NewRegistry so the node
// messages are known; network may be nil.
func NewHost(cfg Config, registry *packetizer.Registry, network *loopback.Network) (*Host, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	proc, err := cfg.Processor()
	if err != nil {
		return nil, err
	}
	id := uuid.New()
	if cfg.StableID {
		if id, err = machine.ServerID(cfg.Name); err != nil {
			return nil, err
		}
	}
	h := &Host{
		cfg:      cfg,
		id:       id,
		registry: registry,
		proc:     proc,
		network:  network,
		handlers: make(HandlerMap),
		mux:      protocol.NewMux(),
		sessions: xsync.NewMapOf[uuid.UUID, *Session](),
	}
	ctx := packetizer.NewSessionContext(packetizer.Session{})
	ctx.Set("server", cfg.Name)
	h.base = packetizer.New(registry, ctx)

	h.handlers[TypeHello] = h.handleHello
	h.handlers[TypePing] = h.handlePing
	h.handlers[TypeBye] = h.handleBye
	return h, nil
}

// Handle registers fn for messages of type id, replacing any previous
// handler including the built-in ones.
func (h *Host) Handle(id packetizer.TypeID, fn MessageHandler) {
	h.handlers[id] = fn
}

func (h *Host) ID() uuid.UUID { return h.id }

// Start opens the listener, the discovery transport when configured, and
// the API when an address is set.
func (h *Host) Start() error {
	var opts []stream.Option
	if h.cfg.MaxFrameSize > 0 {
		opts = append(opts, stream.WithMaxFrameSize(h.cfg.MaxFrameSize))
	}
	ln, err := stream.Listen(h.cfg.ListenAddr, opts...)
	if err != nil {
		return err
	}
	h.listener = ln

	if h.cfg.Discovery.Address != "" || h.cfg.Discovery.MulticastGroup != "" {
		if err := h.mux.Handle(protocol.DiscoveryQuery, h.handleQuery); err != nil {
			h.Close()
			return err
		}
		d, err := datagram.Listen(h.cfg.Discovery, h.network, h.mux.Handler())
		if err != nil {
			h.Close()
			return err
		}
		h.discovery.Store(d)
	}

	h.started = time.Now()
	if h.cfg.APIListenAddr != "" {
		h.api = NewAPI(h)
		go func() {
			if err := h.api.Start(h.cfg.APIListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Str("component", "api").Err(err).Msg("api server stopped")
			}
		}()
	}

	log.Info().Str("component", "node").Str("name", h.cfg.Name).Stringer("addr", ln.Addr()).
		Bool("encrypted", h.cfg.Encrypt).Bool("compressed", h.cfg.Compress).Str("compression", h.cfg.Compression).Msg("host started")
	return nil
}

// Addr is the game listener address.
func (h *Host) Addr() net.Addr {
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// DiscoveryAddr is the loopback address of the discovery transport, or nil.
func (h *Host) DiscoveryAddr() *net.UDPAddr {
	d := h.discovery.Load()
	if d == nil {
		return nil
	}
	return d.LoopbackAddr()
}

// Run ticks every TickInterval until ctx is done, then closes the host.
func (h *Host) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.TickInterval)
	defer ticker.Stop()
	defer h.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.Tick()
		}
	}
}

// Tick runs one simulation step of networking: accept pending connections,
// read and dispatch every ready message, answer discovery queries and drop
// idle sessions. It returns the number of messages handled.
func (h *Host) Tick() int {
	h.tick.Add(1)
	h.accept()

	handled := 0
	now := time.Now()
	h.sessions.Range(func(id uuid.UUID, s *Session) bool {
		handled += h.pump(s)
		if h.cfg.IdleTimeout > 0 && now.Sub(s.LastSeen()) > h.cfg.IdleTimeout {
			h.drop(s, "idle timeout")
		}
		return true
	})

	if d := h.discovery.Load(); d != nil {
		d.Receive()
	}
	return handled
}

func (h *Host) accept() {
	if h.listener == nil {
		return
	}
	for {
		conn, err := h.listener.Poll()
		if err != nil {
			log.Warn().Str("component", "node").Err(err).Msg("accept failed")
			return
		}
		if conn == nil {
			return
		}
		if h.sessions.Size() >= h.cfg.MaxPlayers {
			h.rejected.Add(1)
			log.Info().Str("component", "node").Stringer("remote", conn.RemoteAddr()).Msg("server full, rejecting connection")
			conn.Close()
			continue
		}
		var transport stream.Transport = conn
		if h.proc != nil {
			transport = stream.NewTransformed(conn, h.proc)
		}
		s := newSession(conn, transport, h.base)
		h.sessions.Store(s.ID, s)
		h.accepted.Add(1)
		log.Info().Str("component", "node").Stringer("session", s.ID).Stringer("remote", s.Remote).Msg("session opened")
	}
}

// pump handles up to MaxMessagesPerTick messages of s.
func (h *Host) pump(s *Session) int {
	limit := h.cfg.MaxMessagesPerTick
	if limit <= 0 {
		limit = DefaultConfig().MaxMessagesPerTick
	}
	n := 0
	for ; n < limit; n++ {
		id, v, err := s.Receive()
		switch {
		case errors.Is(err, stream.ErrEnvelope), errors.Is(err, packetizer.ErrNotRegistered), errors.Is(err, packet.ErrUnderflow):
			h.dropped.Add(1)
			log.Warn().Str("component", "node").Stringer("session", s.ID).Err(err).Msg("dropping message")
			continue
		case err != nil:
			h.drop(s, err.Error())
			return n
		case v == nil:
			return n
		}
		h.messages.Add(1)
		if err := h.handlers.Handle(s, id, v); err != nil {
			log.Warn().Str("component", "node").Stringer("session", s.ID).Err(err).Msg("handler failed")
		}
	}
	return n
}

func (h *Host) drop(s *Session, reason string) {
	if _, ok := h.sessions.LoadAndDelete(s.ID); !ok {
		return
	}
	s.Close()
	log.Info().Str("component", "node").Stringer("session", s.ID).Str("name", s.Name()).Str("reason", reason).Msg("session closed")
}

// Session returns a live session.
func (h *Host) Session(id uuid.UUID) (*Session, bool) {
	return h.sessions.Load(id)
}

// Sessions lists live sessions, oldest first.
func (h *Host) Sessions() []SessionInfo {
	var out []SessionInfo
	h.sessions.Range(func(_ uuid.UUID, s *Session) bool {
		out = append(out, s.Info())
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Broadcast sends v to every session and returns the first error.
func (h *Host) Broadcast(v packet.Packetizable) error {
	var first error
	h.sessions.Range(func(_ uuid.UUID, s *Session) bool {
		if err := s.Send(v); err != nil && first == nil {
			first = err
		}
		return true
	})
	return first
}

func (h *Host) Stats() Stats {
	st := Stats{
		ServerID:  h.id.String(),
		Name:      h.cfg.Name,
		Tick:      h.tick.Load(),
		Sessions:  h.sessions.Size(),
		Accepted:  h.accepted.Load(),
		Rejected:  h.rejected.Load(),
		Messages:  h.messages.Load(),
		Dropped:   h.dropped.Load(),
		Unmatched: h.mux.Unmatched(),
	}
	if !h.started.IsZero() {
		st.Uptime = time.Since(h.started).Round(time.Second).String()
	}
	if d := h.discovery.Load(); d != nil {
		ds := d.Stats()
		st.Discovery = &ds
	}
	return st
}

// Close ends every session and releases the sockets.
func (h *Host) Close() error {
	var errs []error
	h.sessions.Range(func(_ uuid.UUID, s *Session) bool {
		s.Send(&Bye{Reason: "server shutting down"})
		h.drop(s, "host closed")
		return true
	})
	if h.api != nil {
		errs = append(errs, h.api.Close())
		h.api = nil
	}
	if h.listener != nil {
		errs = append(errs, h.listener.Close())
		h.listener = nil
	}
	if d := h.discovery.Swap(nil); d != nil {
		errs = append(errs, d.Close())
	}
	return errors.Join(errs...)
}

func (h *Host) handleHello(s *Session, v packet.Packetizable) error {
	hello := v.(*Hello)
	if hello.Version != protocol.Version {
		h.drop(s, fmt.Sprintf("protocol version %d", hello.Version))
		return nil
	}
	s.setName(hello.Name)
	return s.Send(&Welcome{
		SessionID:  hello.Session.ID,
		ServerID:   h.id,
		ServerName: h.cfg.Name,
		Tick:       h.tick.Load(),
	})
}

func (h *Host) handlePing(s *Session, v packet.Packetizable) error {
	ping := v.(*Ping)
	return s.Send(&Pong{Seq: ping.Seq, SentAt: ping.SentAt, Tick: h.tick.Load()})
}

func (h *Host) handleBye(s *Session, v packet.Packetizable) error {
	h.drop(s, "bye: "+v.(*Bye).Reason)
	return nil
}

func (h *Host) handleQuery(payload []byte, from *net.UDPAddr) {
	var q protocol.Query
	if err := protocol.Decode(payload, &q); err != nil {
		log.Debug().Str("component", "discovery").Stringer("from", from).Err(err).Msg("bad query")
		return
	}
	if q.Version != protocol.Version {
		return
	}
	port := 0
	if addr, ok := h.Addr().(*net.TCPAddr); ok {
		port = addr.Port
	}
	wire, err := protocol.Encode(protocol.DiscoveryAnnounce, &protocol.Announce{
		Nonce:      q.Nonce,
		ServerID:   h.id,
		Name:       h.cfg.Name,
		GamePort:   uint16(port),
		Players:    uint16(h.sessions.Size()),
		MaxPlayers: uint16(h.cfg.MaxPlayers),
		Version:    protocol.Version,
	})
	if err != nil {
		log.Warn().Str("component", "discovery").Err(err).Msg("encode announce")
		return
	}
	d := h.discovery.Load()
	if d == nil {
		return
	}
	if err := d.Send(wire, from); err != nil {
		log.Warn().Str("component", "discovery").Stringer("to", from).Err(err).Msg("send announce")
	}
}
