package packet

import (
	"encoding/binary"
	"fmt"
	"math"

	"spacenet/pkg/fixed"
)

func (p *Packet) grow(n int) []byte {
	l := len(p.buf)
	if cap(p.buf)-l < n {
		nb := make([]byte, l, 2*cap(p.buf)+n)
		copy(nb, p.buf)
		p.buf = nb
	}
	p.buf = p.buf[:l+n]
	return p.buf[l:]
}

func (p *Packet) WriteBool(v bool) *Packet {
	if v {
		return p.WriteUint8(1)
	}
	return p.WriteUint8(0)
}

func (p *Packet) WriteUint8(v uint8) *Packet {
	if p.err == nil {
		p.buf = append(p.buf, v)
	}
	return p
}

func (p *Packet) WriteInt8(v int8) *Packet { return p.WriteUint8(uint8(v)) }

func (p *Packet) WriteUint16(v uint16) *Packet {
	if p.err == nil {
		binary.BigEndian.PutUint16(p.grow(2), v)
	}
	return p
}

func (p *Packet) WriteInt16(v int16) *Packet { return p.WriteUint16(uint16(v)) }

func (p *Packet) WriteUint32(v uint32) *Packet {
	if p.err == nil {
		binary.BigEndian.PutUint32(p.grow(4), v)
	}
	return p
}

func (p *Packet) WriteInt32(v int32) *Packet { return p.WriteUint32(uint32(v)) }

func (p *Packet) WriteUint64(v uint64) *Packet {
	if p.err == nil {
		binary.BigEndian.PutUint64(p.grow(8), v)
	}
	return p
}

func (p *Packet) WriteInt64(v int64) *Packet { return p.WriteUint64(uint64(v)) }

func (p *Packet) WriteFloat32(v float32) *Packet { return p.WriteUint32(math.Float32bits(v)) }

func (p *Packet) WriteFloat64(v float64) *Packet { return p.WriteUint64(math.Float64bits(v)) }

// WriteFixed writes the raw Q31.32 representation of v.
func (p *Packet) WriteFixed(v fixed.Fixed) *Packet { return p.WriteInt64(v.Raw()) }

// WriteBytes writes b as a length-prefixed field. A nil slice is written as an
// empty field.
func (p *Packet) WriteBytes(b []byte) *Packet {
	if p.err != nil {
		return p
	}
	if len(b) > MaxFieldLength {
		p.err = fmt.Errorf("%w: %d bytes", ErrTooLarge, len(b))
		return p
	}
	dst := p.grow(lengthPrefixSize + len(b))
	binary.BigEndian.PutUint16(dst, uint16(len(b)))
	copy(dst[lengthPrefixSize:], b)
	return p
}

// WriteString writes s as UTF-8 in a length-prefixed field.
func (p *Packet) WriteString(s string) *Packet {
	if p.err != nil {
		return p
	}
	if len(s) > MaxFieldLength {
		p.err = fmt.Errorf("%w: string of %d bytes", ErrTooLarge, len(s))
		return p
	}
	dst := p.grow(lengthPrefixSize + len(s))
	binary.BigEndian.PutUint16(dst, uint16(len(s)))
	copy(dst[lengthPrefixSize:], s)
	return p
}

// WritePacket writes the full content of sub as a nested length-prefixed
// field. A write error recorded on sub is propagated.
func (p *Packet) WritePacket(sub *Packet) *Packet {
	if p.err != nil {
		return p
	}
	if sub.err != nil {
		p.err = fmt.Errorf("nested packet: %w", sub.err)
		return p
	}
	return p.WriteBytes(sub.buf)
}

// WritePacketizable lets v append itself to the packet.
func (p *Packet) WritePacketizable(v Packetizable) *Packet {
	if p.err != nil {
		return p
	}
	return v.Packetize(p)
}
