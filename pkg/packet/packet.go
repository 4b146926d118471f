// Package packet implements the binary buffer every message of the simulation
// is serialized into.
//
// A Packet is a growable byte buffer with a single read cursor. Writes always
// append at the end; reads consume sequentially from the cursor and mirror the
// writes exactly. All integers are BigEndian. Variable-length fields (byte
// arrays, strings, nested packets) carry a uint16 length prefix and are capped
// at MaxFieldLength bytes.
//
// Reads are fallible: a read that needs more bytes than Available fails with
// ErrUnderflow and leaves the cursor where it was. Peek variants perform the
// same read and restore the cursor, Has variants only report whether the read
// would succeed.
//
// Writes chain. A variable-length write that exceeds MaxFieldLength leaves the
// packet untouched, records ErrTooLarge (see Err) and turns every later write
// into a no-op until Reset, so a chain can be checked once at its end.
//
// A Packet is single-owner and not safe for concurrent use.
package packet

import (
	"errors"
	"fmt"
	"math"
)

// MaxFieldLength is the largest byte array, string or nested packet a single
// length-prefixed field can hold.
const MaxFieldLength = math.MaxUint16

const lengthPrefixSize = 2

var (
	ErrUnderflow = errors.New("packet: buffer underflow")
	ErrTooLarge  = errors.New("packet: field exceeds maximum length")
)

// Packetizable is implemented by values that can write themselves to, and
// restore themselves from, a packet.
type Packetizable interface {
	// Packetize appends the value to p and returns p.
	Packetize(p *Packet) *Packet
	// Depacketize restores the value from the cursor of p.
	Depacketize(p *Packet) error
}

// Packet is a byte buffer with a read cursor.
type Packet struct {
	buf []byte
	pos int
	err error
}

// New returns an empty packet ready for writing.
func New() *Packet {
	return &Packet{}
}

// NewWithCapacity returns an empty packet with room for n bytes.
func NewWithCapacity(n int) *Packet {
	return &Packet{buf: make([]byte, 0, n)}
}

// NewFrom returns a packet reading data. The packet takes ownership of data;
// the caller must not modify it afterwards.
func NewFrom(data []byte) *Packet {
	return &Packet{buf: data}
}

// Length is the total number of bytes written.
func (p *Packet) Length() int { return len(p.buf) }

// Available is the number of unread bytes.
func (p *Packet) Available() int { return len(p.buf) - p.pos }

// Position is the read cursor.
func (p *Packet) Position() int { return p.pos }

// Bytes returns the whole buffer, read or not. The slice aliases the packet
// and is only valid until the next write or Reset.
func (p *Packet) Bytes() []byte { return p.buf }

// Err returns the first write error recorded on the packet.
func (p *Packet) Err() error { return p.err }

// Reset truncates the packet to empty, rewinds it and clears any write error.
func (p *Packet) Reset() {
	p.buf = p.buf[:0]
	p.pos = 0
	p.err = nil
}

// Rewind moves the read cursor back to the start, keeping the content.
func (p *Packet) Rewind() { p.pos = 0 }

// SetPosition moves the read cursor to pos, which must lie in [0, Length].
func (p *Packet) SetPosition(pos int) error {
	if pos < 0 || pos > len(p.buf) {
		return fmt.Errorf("packet: position %d out of range [0, %d]", pos, len(p.buf))
	}
	p.pos = pos
	return nil
}

// Skip advances the read cursor by n bytes.
func (p *Packet) Skip(n int) error {
	if n < 0 {
		return fmt.Errorf("packet: negative skip %d", n)
	}
	if _, err := p.take(n, "skip"); err != nil {
		return err
	}
	return nil
}

func (p *Packet) String() string {
	return fmt.Sprintf("Packet{len=%d pos=%d}", len(p.buf), p.pos)
}

func underflow(what string, need, have int) error {
	return fmt.Errorf("%w: %s needs %d bytes, %d available", ErrUnderflow, what, need, have)
}
