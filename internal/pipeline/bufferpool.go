package pipeline

import (
	"sync"
	"sync/atomic"
)

// BufferPool pools byte buffers all sized for one particular encrypted
// chunk size, to avoid an allocation per chunk on the hot path. Buffers
// are zeroized before being returned to the pool so that no plaintext or
// ciphertext outlives the object that produced it.
type BufferPool struct {
	size   int
	pool   sync.Pool
	misses uint64

	// OnGet, if set, is called on every Get with whether the buffer came
	// from the pool (hit) or was freshly allocated (miss). Callers wire
	// this to metrics.Metrics.RecordBufferPoolGet; it is nil by default
	// so BufferPool has no metrics dependency of its own.
	OnGet func(hit bool)
}

// NewBufferPool creates a pool that hands out buffers of exactly size
// bytes (length, not just capacity).
func NewBufferPool(size int) *BufferPool {
	p := &BufferPool{size: size}
	p.pool.New = func() interface{} {
		atomic.AddUint64(&p.misses, 1)
		return make([]byte, size)
	}
	return p
}

// Get returns a zeroed buffer of the pool's configured size.
func (p *BufferPool) Get() []byte {
	before := atomic.LoadUint64(&p.misses)
	buf := p.pool.Get().([]byte)
	if p.OnGet != nil {
		p.OnGet(atomic.LoadUint64(&p.misses) == before)
	}
	return buf[:p.size]
}

// Put zeroizes buf and returns it to the pool. Buffers of the wrong
// capacity are dropped rather than pooled.
func (p *BufferPool) Put(buf []byte) {
	if cap(buf) < p.size {
		return
	}
	buf = buf[:cap(buf)]
	for i := range buf {
		buf[i] = 0
	}
	p.pool.Put(buf[:p.size])
}
