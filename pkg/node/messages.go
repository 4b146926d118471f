package node

import (
	"fmt"
	"time"

	"spacenet/pkg/packet"
	"spacenet/pkg/packetizer"

	"github.com/google/uuid"
)

// Type identifiers of the node's own messages. Applications register theirs
// from FirstUserTypeID on.
const (
	TypeHello   packetizer.TypeID = 1
	TypeWelcome packetizer.TypeID = 2
	TypePing    packetizer.TypeID = 3
	TypePong    packetizer.TypeID = 4
	TypeBye     packetizer.TypeID = 5

	FirstUserTypeID packetizer.TypeID = 64
)

// NewRegistry returns a registry holding the node messages.
func NewRegistry() *packetizer.Registry {
	r := packetizer.NewRegistry()
	packetizer.MustRegister(r, TypeHello, func() *Hello { return &Hello{} })
	packetizer.MustRegister(r, TypeWelcome, func() *Welcome { return &Welcome{} })
	packetizer.MustRegister(r, TypePing, func() *Ping { return &Ping{} })
	packetizer.MustRegister(r, TypePong, func() *Pong { return &Pong{} })
	packetizer.MustRegister(r, TypeBye, func() *Bye { return &Bye{} })
	return r
}

// Hello opens a session. On the host it is restored with the session it
// arrived on.
type Hello struct {
	Name    string
	Version uint16

	Session packetizer.Session // set on receipt, not sent
}

func (m *Hello) Packetize(p *packet.Packet) *packet.Packet {
	return p.WriteString(m.Name).WriteUint16(m.Version)
}

func (m *Hello) Depacketize(p *packet.Packet) error {
	var err error
	if m.Name, err = p.ReadString(); err != nil {
		return err
	}
	m.Version, err = p.ReadUint16()
	return err
}

func (m *Hello) DepacketizeContext(p *packet.Packet, ctx packetizer.Context) error {
	if err := m.Depacketize(p); err != nil {
		return err
	}
	if sc, ok := ctx.(*packetizer.SessionContext); ok {
		m.Session = sc.Session()
	}
	return nil
}

type Welcome struct {
	SessionID  uuid.UUID
	ServerID   uuid.UUID
	ServerName string
	Tick       uint64
}

func (m *Welcome) Packetize(p *packet.Packet) *packet.Packet {
	return p.WriteBytes(m.SessionID[:]).
		WriteBytes(m.ServerID[:]).
		WriteString(m.ServerName).
		WriteUint64(m.Tick)
}

func (m *Welcome) Depacketize(p *packet.Packet) error {
	var err error
	if m.SessionID, err = readUUID(p); err != nil {
		return err
	}
	if m.ServerID, err = readUUID(p); err != nil {
		return err
	}
	if m.ServerName, err = p.ReadString(); err != nil {
		return err
	}
	m.Tick, err = p.ReadUint64()
	return err
}

type Ping struct {
	Seq    uint32
	SentAt int64 // unix nanoseconds
}

func (m *Ping) Packetize(p *packet.Packet) *packet.Packet {
	return p.WriteUint32(m.Seq).WriteInt64(m.SentAt)
}

func (m *Ping) Depacketize(p *packet.Packet) error {
	var err error
	if m.Seq, err = p.ReadUint32(); err != nil {
		return err
	}
	m.SentAt, err = p.ReadInt64()
	return err
}

// Pong echoes a Ping.
type Pong struct {
	Seq    uint32
	SentAt int64
	Tick   uint64
}

func (m *Pong) Packetize(p *packet.Packet) *packet.Packet {
	return p.WriteUint32(m.Seq).WriteInt64(m.SentAt).WriteUint64(m.Tick)
}

func (m *Pong) Depacketize(p *packet.Packet) error {
	var err error
	if m.Seq, err = p.ReadUint32(); err != nil {
		return err
	}
	if m.SentAt, err = p.ReadInt64(); err != nil {
		return err
	}
	m.Tick, err = p.ReadUint64()
	return err
}

// RTT is the round trip measured at now.
func (m *Pong) RTT(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, m.SentAt))
}

// Bye announces an orderly disconnect.
type Bye struct {
	Reason string
}

func (m *Bye) Packetize(p *packet.Packet) *packet.Packet { return p.WriteString(m.Reason) }

func (m *Bye) Depacketize(p *packet.Packet) error {
	var err error
	m.Reason, err = p.ReadString()
	return err
}

func readUUID(p *packet.Packet) (uuid.UUID, error) {
	raw, err := p.ReadBytes()
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("uuid: %w", err)
	}
	return id, nil
}
