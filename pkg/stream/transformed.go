package stream

import (
	"fmt"
	"io"

	"spacenet/pkg/packet"
	"spacenet/pkg/transform"
)

// Transformed wraps a Transport and runs every packet body through a payload
// pipeline. The transformed bytes travel as a length-prefixed field inside a
// fresh packet, which the inner transport then frames again.
type Transformed struct {
	inner Transport
	proc  *transform.PayloadProcessor
}

// NewTransformed decorates inner with proc.
func NewTransformed(inner Transport, proc *transform.PayloadProcessor) *Transformed {
	return &Transformed{inner: inner, proc: proc}
}

// NewEncrypted decorates inner with a single cipher transform, usually
// transform.NewDefaultAESTransform().
func NewEncrypted(inner Transport, cipher transform.Transform) *Transformed {
	proc, err := transform.NewPayloadProcessor(cipher)
	if err != nil {
		panic(err)
	}
	return &Transformed{inner: inner, proc: proc}
}

func (t *Transformed) Inner() Transport { return t.inner }

// Read unwraps the next packet of the inner transport. A body that does not
// decode returns ErrEnvelope but leaves the transport usable.
func (t *Transformed) Read() (*packet.Packet, error) {
	env, err := t.inner.Read()
	if err != nil || env == nil {
		return nil, err
	}
	payload, err := env.ReadBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnvelope, err)
	}
	plain, err := t.proc.ParseInput(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnvelope, err)
	}
	return packet.NewFrom(plain), nil
}

// Write transforms p's bytes and hands the envelope to the inner transport.
// The returned count is what the inner transport wrote.
func (t *Transformed) Write(p *packet.Packet) (int, error) {
	if err := p.Err(); err != nil {
		return 0, fmt.Errorf("stream: refusing broken packet: %w", err)
	}
	out, err := t.proc.PrepareOutput(p.Bytes())
	if err != nil {
		return 0, fmt.Errorf("stream: %w", err)
	}
	env := packet.NewWithCapacity(len(out) + 2).WriteBytes(out)
	if err := env.Err(); err != nil {
		return 0, fmt.Errorf("stream: envelope: %w", err)
	}
	return t.inner.Write(env)
}

// Close closes the inner transport when it can be closed.
func (t *Transformed) Close() error {
	if c, ok := t.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
