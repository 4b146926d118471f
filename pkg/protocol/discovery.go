package protocol

import (
	"fmt"

	"spacenet/pkg/packet"

	"github.com/google/uuid"
)

// Version is the protocol revision carried by discovery messages. Peers
// ignore announcements of another revision.
const Version uint16 = 1

var (
	DiscoveryQuery    = NewFilter("discovery-query", []byte("SNQ\x01"))
	DiscoveryAnnounce = NewFilter("discovery-announce", []byte("SNA\x01"))
)

// Query asks the servers of the local network to announce themselves.
type Query struct {
	Nonce   uint32
	Version uint16
}

func (q *Query) Packetize(p *packet.Packet) *packet.Packet {
	return p.WriteUint32(q.Nonce).WriteUint16(q.Version)
}

func (q *Query) Depacketize(p *packet.Packet) error {
	var err error
	if q.Nonce, err = p.ReadUint32(); err != nil {
		return err
	}
	q.Version, err = p.ReadUint16()
	return err
}

// Announce describes a server answering a Query.
type Announce struct {
	Nonce      uint32 // echoed from the query
	ServerID   uuid.UUID
	Name       string
	GamePort   uint16
	Players    uint16
	MaxPlayers uint16
	Version    uint16
}

func (a *Announce) Packetize(p *packet.Packet) *packet.Packet {
	return p.WriteUint32(a.Nonce).
		WriteBytes(a.ServerID[:]).
		WriteString(a.Name).
		WriteUint16(a.GamePort).
		WriteUint16(a.Players).
		WriteUint16(a.MaxPlayers).
		WriteUint16(a.Version)
}

func (a *Announce) Depacketize(p *packet.Packet) error {
	var err error
	if a.Nonce, err = p.ReadUint32(); err != nil {
		return err
	}
	raw, err := p.ReadBytes()
	if err != nil {
		return err
	}
	if a.ServerID, err = uuid.FromBytes(raw); err != nil {
		return fmt.Errorf("announce: server id: %w", err)
	}
	if a.Name, err = p.ReadString(); err != nil {
		return err
	}
	for _, v := range []*uint16{&a.GamePort, &a.Players, &a.MaxPlayers, &a.Version} {
		if *v, err = p.ReadUint16(); err != nil {
			return err
		}
	}
	return nil
}

func (a *Announce) String() string {
	return fmt.Sprintf("%s [%s] port=%d players=%d/%d", a.Name, a.ServerID, a.GamePort, a.Players, a.MaxPlayers)
}

// Encode wraps v for the datagram channel under f.
func Encode(f Filter, v packet.Packetizable) ([]byte, error) {
	return f.WrapPacket(v.Packetize(packet.New()))
}

// Decode restores v from a matched payload. Trailing bytes are an error.
func Decode(payload []byte, v packet.Packetizable) error {
	p := packet.NewFrom(payload)
	if err := v.Depacketize(p); err != nil {
		return err
	}
	if p.Available() != 0 {
		return fmt.Errorf("protocol: %d trailing bytes after %T", p.Available(), v)
	}
	return nil
}
