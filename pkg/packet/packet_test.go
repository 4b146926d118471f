package packet

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"spacenet/pkg/fixed"
)

func TestPrimitiveRoundTrip(t *testing.T) {
	p := New().
		WriteBool(true).
		WriteBool(false).
		WriteUint8(0xAB).
		WriteInt8(-7).
		WriteUint16(0xBEEF).
		WriteInt16(math.MinInt16).
		WriteUint32(0xDEADBEEF).
		WriteInt32(-123456).
		WriteUint64(math.MaxUint64).
		WriteInt64(math.MinInt64).
		WriteFloat32(3.5).
		WriteFloat64(-math.Pi).
		WriteFixed(fixed.FromFloat(-12.25))
	if err := p.Err(); err != nil {
		t.Fatalf("write chain failed: %v", err)
	}

	expectedLen := 1 + 1 + 1 + 1 + 2 + 2 + 4 + 4 + 8 + 8 + 4 + 8 + 8
	if p.Length() != expectedLen {
		t.Fatalf("Expected length %d, got %d", expectedLen, p.Length())
	}

	mustRead := func(v any, err error) any {
		t.Helper()
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		return v
	}

	if v := mustRead(p.ReadBool()); v != true {
		t.Errorf("bool mismatch: got %v", v)
	}
	if v := mustRead(p.ReadBool()); v != false {
		t.Errorf("bool mismatch: got %v", v)
	}
	if v := mustRead(p.ReadUint8()); v != uint8(0xAB) {
		t.Errorf("uint8 mismatch: got %v", v)
	}
	if v := mustRead(p.ReadInt8()); v != int8(-7) {
		t.Errorf("int8 mismatch: got %v", v)
	}
	if v := mustRead(p.ReadUint16()); v != uint16(0xBEEF) {
		t.Errorf("uint16 mismatch: got %v", v)
	}
	if v := mustRead(p.ReadInt16()); v != int16(math.MinInt16) {
		t.Errorf("int16 mismatch: got %v", v)
	}
	if v := mustRead(p.ReadUint32()); v != uint32(0xDEADBEEF) {
		t.Errorf("uint32 mismatch: got %v", v)
	}
	if v := mustRead(p.ReadInt32()); v != int32(-123456) {
		t.Errorf("int32 mismatch: got %v", v)
	}
	if v := mustRead(p.ReadUint64()); v != uint64(math.MaxUint64) {
		t.Errorf("uint64 mismatch: got %v", v)
	}
	if v := mustRead(p.ReadInt64()); v != int64(math.MinInt64) {
		t.Errorf("int64 mismatch: got %v", v)
	}
	if v := mustRead(p.ReadFloat32()); v != float32(3.5) {
		t.Errorf("float32 mismatch: got %v", v)
	}
	if v := mustRead(p.ReadFloat64()); v != -math.Pi {
		t.Errorf("float64 mismatch: got %v", v)
	}
	if v := mustRead(p.ReadFixed()); v != fixed.FromFloat(-12.25) {
		t.Errorf("fixed mismatch: got %v", v)
	}
	if p.Available() != 0 {
		t.Errorf("Expected packet fully consumed, %d bytes left", p.Available())
	}
}

func TestBigEndianLayout(t *testing.T) {
	p := New().WriteUint16(0x0102).WriteInt32(-2).WriteString("hi")
	want := []byte{0x01, 0x02, 0xFF, 0xFF, 0xFF, 0xFE, 0x00, 0x02, 'h', 'i'}
	if !bytes.Equal(p.Bytes(), want) {
		t.Fatalf("Expected wire bytes %x, got %x", want, p.Bytes())
	}
}

func TestVariableLengthRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"small", []byte("payload")},
		{"max", bytes.Repeat([]byte{0x5A}, MaxFieldLength)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New().WriteBytes(tt.data).WriteString(string(tt.data))
			if err := p.Err(); err != nil {
				t.Fatalf("write failed: %v", err)
			}
			b, err := p.ReadBytes()
			if err != nil {
				t.Fatalf("ReadBytes failed: %v", err)
			}
			if !bytes.Equal(b, tt.data) {
				t.Errorf("bytes mismatch: got %d bytes, expected %d", len(b), len(tt.data))
			}
			s, err := p.ReadString()
			if err != nil {
				t.Fatalf("ReadString failed: %v", err)
			}
			if s != string(tt.data) {
				t.Errorf("string mismatch: got %d bytes, expected %d", len(s), len(tt.data))
			}
		})
	}
}

func TestUnicodeString(t *testing.T) {
	s := "Größe ✈ 宇宙"
	p := New().WriteString(s)
	if p.Length() != 2+len(s) {
		t.Fatalf("Expected length %d, got %d", 2+len(s), p.Length())
	}
	got, err := p.ReadString()
	if err != nil {
		t.Fatalf("ReadString failed: %v", err)
	}
	if got != s {
		t.Errorf("Expected %q, got %q", s, got)
	}
}

func TestFieldLengthBoundary(t *testing.T) {
	ok := New().WriteBytes(make([]byte, MaxFieldLength))
	if err := ok.Err(); err != nil {
		t.Fatalf("Expected %d bytes to be accepted, got %v", MaxFieldLength, err)
	}

	p := New().WriteInt32(42)
	before := p.Length()
	p.WriteBytes(make([]byte, MaxFieldLength+1))
	if !errors.Is(p.Err(), ErrTooLarge) {
		t.Fatalf("Expected ErrTooLarge, got %v", p.Err())
	}
	if p.Length() != before {
		t.Errorf("Oversized write must not touch the buffer: length %d -> %d", before, p.Length())
	}

	// Sticky: later writes are dropped until Reset.
	p.WriteInt32(7)
	if p.Length() != before {
		t.Errorf("Write after error must be a no-op")
	}
	p.Reset()
	if p.Err() != nil || p.Length() != 0 {
		t.Errorf("Reset must clear the error and the content")
	}

	s := New().WriteString(strings.Repeat("x", MaxFieldLength+1))
	if !errors.Is(s.Err(), ErrTooLarge) {
		t.Errorf("Expected ErrTooLarge for oversized string, got %v", s.Err())
	}
}

func TestUnderflowOnEmpty(t *testing.T) {
	p := New()
	checks := []struct {
		name string
		has  func() bool
		read func() error
	}{
		{"bool", p.HasBool, func() error { _, err := p.ReadBool(); return err }},
		{"uint8", p.HasUint8, func() error { _, err := p.ReadUint8(); return err }},
		{"int16", p.HasInt16, func() error { _, err := p.ReadInt16(); return err }},
		{"uint32", p.HasUint32, func() error { _, err := p.ReadUint32(); return err }},
		{"int64", p.HasInt64, func() error { _, err := p.ReadInt64(); return err }},
		{"float32", p.HasFloat32, func() error { _, err := p.ReadFloat32(); return err }},
		{"float64", p.HasFloat64, func() error { _, err := p.ReadFloat64(); return err }},
		{"fixed", p.HasFixed, func() error { _, err := p.ReadFixed(); return err }},
		{"bytes", p.HasBytes, func() error { _, err := p.ReadBytes(); return err }},
		{"string", p.HasString, func() error { _, err := p.ReadString(); return err }},
		{"packet", p.HasPacket, func() error { _, err := p.ReadPacket(); return err }},
	}
	for _, c := range checks {
		if c.has() {
			t.Errorf("%s: Has must be false on an empty packet", c.name)
		}
		if err := c.read(); !errors.Is(err, ErrUnderflow) {
			t.Errorf("%s: expected ErrUnderflow, got %v", c.name, err)
		}
		if p.Available() != 0 || p.Position() != 0 {
			t.Errorf("%s: cursor moved on failed read", c.name)
		}
	}
}

func TestPartialReadDoesNotAdvance(t *testing.T) {
	p := New().WriteUint16(1).WriteUint8(9)
	if _, err := p.ReadUint32(); !errors.Is(err, ErrUnderflow) {
		t.Fatalf("Expected ErrUnderflow, got %v", err)
	}
	if p.Position() != 0 {
		t.Fatalf("Expected cursor at 0, got %d", p.Position())
	}

	// Length prefix present but body truncated.
	q := NewFrom([]byte{0x00, 0x05, 'a', 'b'})
	if q.HasBytes() {
		t.Errorf("HasBytes must be false for truncated body")
	}
	if _, err := q.ReadBytes(); !errors.Is(err, ErrUnderflow) {
		t.Errorf("Expected ErrUnderflow, got %v", err)
	}
	if q.Available() != 4 {
		t.Errorf("Expected 4 bytes still available, got %d", q.Available())
	}
}

func TestPeekLeavesCursor(t *testing.T) {
	p := New().WriteInt32(77).WriteString("next")
	v, err := p.PeekInt32()
	if err != nil || v != 77 {
		t.Fatalf("PeekInt32 = %d, %v", v, err)
	}
	if p.Position() != 0 {
		t.Fatalf("Peek moved the cursor to %d", p.Position())
	}
	if _, err := p.ReadInt32(); err != nil {
		t.Fatalf("ReadInt32 failed: %v", err)
	}
	s, err := p.PeekString()
	if err != nil || s != "next" {
		t.Fatalf("PeekString = %q, %v", s, err)
	}
	if p.Available() != 6 {
		t.Errorf("Expected 6 bytes available after peek, got %d", p.Available())
	}
}

func TestNestedPacket(t *testing.T) {
	inner := New().WriteString("inner").WriteUint32(5)
	outer := New().WriteUint8(1).WritePacket(inner).WriteUint8(2)
	if err := outer.Err(); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if _, err := outer.ReadUint8(); err != nil {
		t.Fatalf("ReadUint8 failed: %v", err)
	}
	sub, err := outer.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket failed: %v", err)
	}
	if !bytes.Equal(sub.Bytes(), inner.Bytes()) {
		t.Errorf("nested bytes mismatch")
	}
	if s, _ := sub.ReadString(); s != "inner" {
		t.Errorf("Expected inner string, got %q", s)
	}
	if v, _ := outer.ReadUint8(); v != 2 {
		t.Errorf("Expected trailing byte 2, got %d", v)
	}
}

func TestNestedPacketPropagatesError(t *testing.T) {
	bad := New().WriteBytes(make([]byte, MaxFieldLength+1))
	outer := New().WritePacket(bad)
	if !errors.Is(outer.Err(), ErrTooLarge) {
		t.Errorf("Expected nested ErrTooLarge, got %v", outer.Err())
	}
}

func TestResetAndRewind(t *testing.T) {
	p := New().WriteUint32(10).WriteUint32(20)
	_, _ = p.ReadUint32()
	p.Rewind()
	if p.Available() != 8 {
		t.Fatalf("Rewind must keep content, %d available", p.Available())
	}
	v, _ := p.ReadUint32()
	if v != 10 {
		t.Errorf("Expected 10 after rewind, got %d", v)
	}
	p.Reset()
	if p.Length() != 0 || p.Available() != 0 {
		t.Errorf("Reset must truncate, length=%d", p.Length())
	}
}

func TestSkipAndSetPosition(t *testing.T) {
	p := New().WriteUint16(1).WriteUint32(42).WriteUint8(7)
	if err := p.Skip(2); err != nil {
		t.Fatalf("Skip failed: %v", err)
	}
	if v, err := p.ReadUint32(); err != nil || v != 42 {
		t.Fatalf("Expected 42 after skipping the header, got %d (%v)", v, err)
	}
	if err := p.Skip(2); !errors.Is(err, ErrUnderflow) {
		t.Errorf("Expected ErrUnderflow skipping past the end, got %v", err)
	}
	if p.Position() != 6 {
		t.Errorf("A failed skip must not move the cursor, at %d", p.Position())
	}
	if err := p.Skip(-1); err == nil || p.Position() != 6 {
		t.Errorf("Expected a negative skip to fail in place, got %v at %d", err, p.Position())
	}
	if err := p.Skip(1); err != nil || p.Available() != 0 {
		t.Errorf("Expected to skip the last byte, got %v with %d left", err, p.Available())
	}

	if err := p.SetPosition(2); err != nil {
		t.Fatalf("SetPosition failed: %v", err)
	}
	if v, _ := p.PeekUint32(); v != 42 {
		t.Errorf("Expected 42 at position 2, got %d", v)
	}
	if err := p.SetPosition(p.Length() + 1); err == nil {
		t.Errorf("Expected SetPosition past the end to fail")
	}
}

type vec struct {
	X, Y float32
}

func (v *vec) Packetize(p *Packet) *Packet {
	return p.WriteFloat32(v.X).WriteFloat32(v.Y)
}

func (v *vec) Depacketize(p *Packet) error {
	var err error
	if v.X, err = p.ReadFloat32(); err != nil {
		return err
	}
	v.Y, err = p.ReadFloat32()
	return err
}

func TestPacketizable(t *testing.T) {
	p := New().WritePacketizable(&vec{X: 1.5, Y: -2})
	var got vec
	if err := p.ReadPacketizable(&got); err != nil {
		t.Fatalf("ReadPacketizable failed: %v", err)
	}
	if got != (vec{X: 1.5, Y: -2}) {
		t.Errorf("Expected {1.5 -2}, got %+v", got)
	}

	// Half a vector: the cursor must be restored.
	short := New().WriteFloat32(1)
	if err := short.ReadPacketizable(&got); !errors.Is(err, ErrUnderflow) {
		t.Fatalf("Expected ErrUnderflow, got %v", err)
	}
	if short.Position() != 0 {
		t.Errorf("Expected cursor restored to 0, got %d", short.Position())
	}
}

func TestPoolRecycles(t *testing.T) {
	pool := NewPool(64)
	p := pool.Get()
	p.WriteString("dirty")
	pool.Put(p)
	q := pool.Get()
	if q.Length() != 0 || q.Err() != nil {
		t.Errorf("pooled packet must come back empty")
	}
	pool.Put(NewWithCapacity(MaxPooledCapacity + 1))
}
