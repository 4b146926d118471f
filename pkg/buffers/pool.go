package buffers

import (
	"sync"
)

const (
	// StreamReadSize is the fixed read buffer of a frame reader.
	StreamReadSize = 8192

	// DatagramSize fits the largest UDP payload.
	DatagramSize = 64 * 1024
)

// BufferPool maintains a pool of byte slices to reduce GC pressure
type BufferPool struct {
	pool sync.Pool
	size int
}

// NewBufferPool creates a new buffer pool with the specified buffer size
func NewBufferPool(size int) *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, size)
				return &buf
			},
		},
		size: size,
	}
}

// Size is the length of the buffers handed out by Get.
func (p *BufferPool) Size() int { return p.size }

// Get retrieves a buffer of exactly Size bytes. Its content is undefined.
func (p *BufferPool) Get() []byte {
	buffer := *(p.pool.Get().(*[]byte))
	if cap(buffer) < p.size {
		buffer = make([]byte, p.size)
	}
	return buffer[:p.size]
}

// Put returns a buffer to the pool
func (p *BufferPool) Put(buffer []byte) {
	if buffer == nil || cap(buffer) < p.size {
		return // Don't keep undersized buffers
	}
	buffer = buffer[:p.size]
	p.pool.Put(&buffer)
}

var (
	// StreamPool backs the read buffers of stream connections.
	StreamPool = NewBufferPool(StreamReadSize)

	// DatagramPool backs the receive buffers of datagram transports.
	DatagramPool = NewBufferPool(DatagramSize)
)
