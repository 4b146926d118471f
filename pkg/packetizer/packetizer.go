// Package packetizer implements type-tagged polymorphic serialization on top
// of package packet.
//
// A value is written as its uint16 TypeID followed by its own body. Reading
// looks the tag up in a Registry, instantiates a fresh value through the
// registered factory and lets it depacketize itself, handing it the session
// Context when it implements ContextPacketizable.
//
// One Registry serves many sessions: CopyFor derives a Packetizer for a new
// session that shares the registry and owns a cloned context.
package packetizer

import (
	"fmt"

	"spacenet/pkg/packet"
)

// Packetizer is a registry bound to a session context.
type Packetizer struct {
	registry *Registry
	ctx      Context
}

// New returns a packetizer using r and ctx. ctx may be nil.
func New(r *Registry, ctx Context) *Packetizer {
	return &Packetizer{registry: r, ctx: ctx}
}

func (pz *Packetizer) Registry() *Registry { return pz.registry }

func (pz *Packetizer) Context() Context { return pz.ctx }

// CopyFor returns a packetizer for session sharing the same registry. The
// context is cloned and rebound; without a context the copy has none either.
func (pz *Packetizer) CopyFor(session Session) *Packetizer {
	var ctx Context
	if pz.ctx != nil {
		ctx = pz.ctx.CopyFor(session)
	}
	return &Packetizer{registry: pz.registry, ctx: ctx}
}

// Packetize writes the tag of v's runtime type followed by v. A nil v is
// written as NilTypeID. Nothing is written when the type is unknown.
func (pz *Packetizer) Packetize(v packet.Packetizable, p *packet.Packet) error {
	if isNil(v) {
		p.WriteUint16(uint16(NilTypeID))
		return p.Err()
	}
	id, ok := pz.registry.IDOf(v)
	if !ok {
		return fmt.Errorf("%w: %T", ErrNotRegistered, v)
	}
	v.Packetize(p.WriteUint16(uint16(id)))
	if err := p.Err(); err != nil {
		return fmt.Errorf("packetizer: writing %T: %w", v, err)
	}
	return nil
}

// Depacketize reads a tagged value. A NilTypeID tag yields nil. On failure the
// cursor is restored to the tag.
func (pz *Packetizer) Depacketize(p *packet.Packet) (packet.Packetizable, error) {
	start := p.Position()
	v, err := pz.depacketize(p)
	if err != nil {
		_ = p.SetPosition(start)
		return nil, err
	}
	return v, nil
}

func (pz *Packetizer) depacketize(p *packet.Packet) (packet.Packetizable, error) {
	tag, err := p.ReadUint16()
	if err != nil {
		return nil, err
	}
	id := TypeID(tag)
	if id == NilTypeID {
		return nil, nil
	}
	v, ok := pz.registry.New(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotRegistered, id)
	}
	if cv, ok := v.(ContextPacketizable); ok {
		err = cv.DepacketizeContext(p, pz.ctx)
	} else {
		err = v.Depacketize(p)
	}
	if err != nil {
		return nil, fmt.Errorf("packetizer: reading %T: %w", v, err)
	}
	return v, nil
}

// DepacketizeAs reads a tagged value and asserts it to T. A nil value yields
// the zero T without error.
func DepacketizeAs[T any](pz *Packetizer, p *packet.Packet) (T, error) {
	var zero T
	v, err := pz.Depacketize(p)
	if err != nil || v == nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %T, want %T", ErrUnexpectedType, v, zero)
	}
	return t, nil
}
