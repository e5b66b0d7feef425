package stream

import "github.com/tcplb/tcplb/pkg/pool"

// DefaultBufferSize matches the teacher's sherpa proxy default stream buffer
// (internal/adapter/proxy/sherpa.DefaultStreamBufferSize) and spec.md §6's
// buffer_size_bytes default.
const DefaultBufferSize = 16 * 1024

// BufferPool hands out []byte buffers for half-duplex transfers.
// cmd/tcplb builds a single BufferPool and shares it across every listener.
//
// Go's goroutine-per-connection model means each CopyHalfDuplex call borrows
// its buffer for the lifetime of that direction's copy rather than for a
// single poll iteration, since there is no cooperative-scheduling boundary
// to release it at; the pool still bounds steady-state allocation the same
// way sync.Pool does for any other per-request scratch buffer.
type BufferPool struct {
	inner *pool.Pool[*[]byte]
	size  int
}

func NewBufferPool(size int) *BufferPool {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &BufferPool{
		size: size,
		inner: pool.NewLitePool(func() *[]byte {
			b := make([]byte, size)
			return &b
		}),
	}
}

func (b *BufferPool) Get() []byte {
	return *b.inner.Get()
}

func (b *BufferPool) Put(buf []byte) {
	if cap(buf) != b.size {
		return
	}
	buf = buf[:b.size]
	b.inner.Put(&buf)
}
