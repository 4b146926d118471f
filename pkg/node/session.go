package node

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"spacenet/pkg/packet"
	"spacenet/pkg/packetizer"
	"spacenet/pkg/stream"

	"github.com/google/uuid"
)

// MessageHandler handles one decoded message of a session.
type MessageHandler func(s *Session, v packet.Packetizable) error

// HandlerMap routes messages by type identifier.
type HandlerMap map[packetizer.TypeID]MessageHandler

var ErrNoHandler = errors.New("node: no handler for message type")

func (hm HandlerMap) Handle(s *Session, id packetizer.TypeID, v packet.Packetizable) error {
	fn, ok := hm[id]
	if !ok {
		return fmt.Errorf("%w: %d (%T)", ErrNoHandler, id, v)
	}
	return fn(s, v)
}

// Session is one framed connection with its own packetizer.
type Session struct {
	ID        uuid.UUID
	Remote    net.Addr
	CreatedAt time.Time

	conn      *stream.Conn
	transport stream.Transport
	pz        *packetizer.Packetizer

	mu       sync.Mutex
	name     string
	lastSeen time.Time
}

func newSession(conn *stream.Conn, transport stream.Transport, base *packetizer.Packetizer) *Session {
	ps := packetizer.NewSession(conn.RemoteAddr())
	now := time.Now()
	return &Session{
		ID:        ps.ID,
		Remote:    ps.Remote,
		CreatedAt: now,
		conn:      conn,
		transport: transport,
		pz:        base.CopyFor(ps),
		lastSeen:  now,
	}
}

// Send packetizes v and writes it to the session.
func (s *Session) Send(v packet.Packetizable) error {
	p := packet.DefaultPool.Get()
	defer packet.DefaultPool.Put(p)
	if err := s.pz.Packetize(v, p); err != nil {
		return err
	}
	if _, err := s.transport.Write(p); err != nil {
		return fmt.Errorf("session %s: %w", s.ID, err)
	}
	return nil
}

// Receive returns the next decoded message, or nil when none is ready.
func (s *Session) Receive() (packetizer.TypeID, packet.Packetizable, error) {
	p, err := s.transport.Read()
	if err != nil || p == nil {
		return packetizer.NilTypeID, nil, err
	}
	s.touch()
	v, err := s.pz.Depacketize(p)
	if err != nil {
		return packetizer.NilTypeID, nil, err
	}
	id, _ := s.pz.Registry().IDOf(v)
	return id, v, nil
}

func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *Session) setName(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// Context is the packetizer context bound to this session.
func (s *Session) Context() packetizer.Context { return s.pz.Context() }

func (s *Session) Stats() stream.Stats { return s.conn.Stats() }

func (s *Session) Close() error { return s.conn.Close() }

// SessionInfo is the API view of a session.
type SessionInfo struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Remote    string       `json:"remote"`
	CreatedAt time.Time    `json:"created_at"`
	LastSeen  time.Time    `json:"last_seen"`
	Traffic   stream.Stats `json:"traffic"`
}

func (s *Session) Info() SessionInfo {
	remote := ""
	if s.Remote != nil {
		remote = s.Remote.String()
	}
	return SessionInfo{
		ID:        s.ID.String(),
		Name:      s.Name(),
		Remote:    remote,
		CreatedAt: s.CreatedAt,
		LastSeen:  s.LastSeen(),
		Traffic:   s.Stats(),
	}
}
