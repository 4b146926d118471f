package packet

import (
	"encoding/binary"
	"math"

	"spacenet/pkg/fixed"
)

// take consumes n bytes or fails without moving the cursor.
func (p *Packet) take(n int, what string) ([]byte, error) {
	if n > p.Available() {
		return nil, underflow(what, n, p.Available())
	}
	b := p.buf[p.pos : p.pos+n]
	p.pos += n
	return b, nil
}

// fieldLength reports the total size (prefix included) of the length-prefixed
// field at the cursor, or false if it is not fully available.
func (p *Packet) fieldLength() (int, bool) {
	if p.Available() < lengthPrefixSize {
		return lengthPrefixSize, false
	}
	n := lengthPrefixSize + int(binary.BigEndian.Uint16(p.buf[p.pos:]))
	return n, p.Available() >= n
}

// field consumes a length-prefixed field and returns its body, aliasing the
// packet buffer.
func (p *Packet) field(what string) ([]byte, error) {
	n, ok := p.fieldLength()
	if !ok {
		return nil, underflow(what, n, p.Available())
	}
	b := p.buf[p.pos+lengthPrefixSize : p.pos+n]
	p.pos += n
	return b, nil
}

func peek[T any](p *Packet, read func() (T, error)) (T, error) {
	pos := p.pos
	v, err := read()
	p.pos = pos
	return v, err
}

func (p *Packet) ReadBool() (bool, error) {
	b, err := p.take(1, "bool")
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func (p *Packet) ReadUint8() (uint8, error) {
	b, err := p.take(1, "uint8")
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (p *Packet) ReadInt8() (int8, error) {
	v, err := p.ReadUint8()
	return int8(v), err
}

func (p *Packet) ReadUint16() (uint16, error) {
	b, err := p.take(2, "uint16")
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (p *Packet) ReadInt16() (int16, error) {
	v, err := p.ReadUint16()
	return int16(v), err
}

func (p *Packet) ReadUint32() (uint32, error) {
	b, err := p.take(4, "uint32")
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (p *Packet) ReadInt32() (int32, error) {
	v, err := p.ReadUint32()
	return int32(v), err
}

func (p *Packet) ReadUint64() (uint64, error) {
	b, err := p.take(8, "uint64")
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (p *Packet) ReadInt64() (int64, error) {
	v, err := p.ReadUint64()
	return int64(v), err
}

func (p *Packet) ReadFloat32() (float32, error) {
	v, err := p.ReadUint32()
	return math.Float32frombits(v), err
}

func (p *Packet) ReadFloat64() (float64, error) {
	v, err := p.ReadUint64()
	return math.Float64frombits(v), err
}

func (p *Packet) ReadFixed() (fixed.Fixed, error) {
	v, err := p.ReadInt64()
	return fixed.FromRaw(v), err
}

// ReadBytes reads a length-prefixed field into a freshly allocated slice.
func (p *Packet) ReadBytes() ([]byte, error) {
	b, err := p.field("bytes")
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (p *Packet) ReadString() (string, error) {
	b, err := p.field("string")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadPacket reads a nested packet. The result owns its own copy of the bytes.
func (p *Packet) ReadPacket() (*Packet, error) {
	b, err := p.ReadBytes()
	if err != nil {
		return nil, err
	}
	return NewFrom(b), nil
}

// ReadPacketizable restores v from the cursor. On failure the cursor is put
// back where it was, so a partially decoded value never desynchronizes the
// rest of the packet.
func (p *Packet) ReadPacketizable(v Packetizable) error {
	pos := p.pos
	if err := v.Depacketize(p); err != nil {
		p.pos = pos
		return err
	}
	return nil
}

func (p *Packet) PeekBool() (bool, error)         { return peek(p, p.ReadBool) }
func (p *Packet) PeekUint8() (uint8, error)       { return peek(p, p.ReadUint8) }
func (p *Packet) PeekInt8() (int8, error)         { return peek(p, p.ReadInt8) }
func (p *Packet) PeekUint16() (uint16, error)     { return peek(p, p.ReadUint16) }
func (p *Packet) PeekInt16() (int16, error)       { return peek(p, p.ReadInt16) }
func (p *Packet) PeekUint32() (uint32, error)     { return peek(p, p.ReadUint32) }
func (p *Packet) PeekInt32() (int32, error)       { return peek(p, p.ReadInt32) }
func (p *Packet) PeekUint64() (uint64, error)     { return peek(p, p.ReadUint64) }
func (p *Packet) PeekInt64() (int64, error)       { return peek(p, p.ReadInt64) }
func (p *Packet) PeekFloat32() (float32, error)   { return peek(p, p.ReadFloat32) }
func (p *Packet) PeekFloat64() (float64, error)   { return peek(p, p.ReadFloat64) }
func (p *Packet) PeekFixed() (fixed.Fixed, error) { return peek(p, p.ReadFixed) }
func (p *Packet) PeekBytes() ([]byte, error)      { return peek(p, p.ReadBytes) }
func (p *Packet) PeekString() (string, error)     { return peek(p, p.ReadString) }
func (p *Packet) PeekPacket() (*Packet, error)    { return peek(p, p.ReadPacket) }

func (p *Packet) HasBool() bool    { return p.Available() >= 1 }
func (p *Packet) HasUint8() bool   { return p.Available() >= 1 }
func (p *Packet) HasInt8() bool    { return p.Available() >= 1 }
func (p *Packet) HasUint16() bool  { return p.Available() >= 2 }
func (p *Packet) HasInt16() bool   { return p.Available() >= 2 }
func (p *Packet) HasUint32() bool  { return p.Available() >= 4 }
func (p *Packet) HasInt32() bool   { return p.Available() >= 4 }
func (p *Packet) HasUint64() bool  { return p.Available() >= 8 }
func (p *Packet) HasInt64() bool   { return p.Available() >= 8 }
func (p *Packet) HasFloat32() bool { return p.Available() >= 4 }
func (p *Packet) HasFloat64() bool { return p.Available() >= 8 }
func (p *Packet) HasFixed() bool   { return p.Available() >= 8 }

// HasBytes reports whether both the length prefix and the body of the next
// field are available.
func (p *Packet) HasBytes() bool {
	_, ok := p.fieldLength()
	return ok
}

func (p *Packet) HasString() bool { return p.HasBytes() }
func (p *Packet) HasPacket() bool { return p.HasBytes() }
