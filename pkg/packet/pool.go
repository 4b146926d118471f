package packet

import "sync"

const (
	// DefaultPooledCapacity is the capacity of packets created by a Pool.
	DefaultPooledCapacity = 1024

	// MaxPooledCapacity bounds what a Pool keeps; bigger buffers are left to
	// the GC so one large message does not pin memory forever.
	MaxPooledCapacity = 64 * 1024
)

// Pool recycles packets to reduce GC pressure on per-tick messages.
type Pool struct {
	pool sync.Pool
}

// NewPool creates a pool handing out packets with capacity bytes preallocated.
func NewPool(capacity int) *Pool {
	return &Pool{
		pool: sync.Pool{
			New: func() interface{} {
				return NewWithCapacity(capacity)
			},
		},
	}
}

// Get returns an empty packet.
func (pl *Pool) Get() *Packet {
	p := pl.pool.Get().(*Packet)
	p.Reset()
	return p
}

// Put returns p to the pool. The caller must not use p afterwards.
func (pl *Pool) Put(p *Packet) {
	if p == nil || cap(p.buf) > MaxPooledCapacity {
		return
	}
	p.Reset()
	pl.pool.Put(p)
}

// DefaultPool is shared by the transports.
var DefaultPool = NewPool(DefaultPooledCapacity)
