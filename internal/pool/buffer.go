package pool

import (
	"sync"
	"sync/atomic"
)

// Tier sizes for ContentPool.
const (
	SmallBufferSize  = 4 * 1024
	MediumBufferSize = 64 * 1024
	LargeBufferSize  = 1024 * 1024
)

// BufferPool provides reusable fixed-size byte buffers.
type BufferPool struct {
	pool sync.Pool
	size int
	gets atomic.Int64
	puts atomic.Int64
	news atomic.Int64
}

// NewBufferPool creates a pool of byte buffers with the specified size.
func NewBufferPool(bufferSize int) *BufferPool {
	if bufferSize <= 0 {
		bufferSize = 32 * 1024
	}

	bp := &BufferPool{size: bufferSize}
	bp.pool = sync.Pool{
		New: func() interface{} {
			bp.news.Add(1)
			b := make([]byte, bufferSize)
			return &b
		},
	}
	return bp
}

// Get retrieves a full-length buffer.
func (bp *BufferPool) Get() []byte {
	bp.gets.Add(1)
	b := bp.pool.Get().(*[]byte)
	return (*b)[:bp.size]
}

// Put returns a buffer. Buffers of a different capacity are dropped.
func (bp *BufferPool) Put(buf []byte) {
	if cap(buf) != bp.size {
		return
	}
	bp.puts.Add(1)
	buf = buf[:bp.size]
	bp.pool.Put(&buf)
}

// Stats returns pool statistics.
func (bp *BufferPool) Stats() (gets, puts, news int64) {
	return bp.gets.Load(), bp.puts.Load(), bp.news.Load()
}

// HitRate returns the share of Get calls that reused a buffer.
func (bp *BufferPool) HitRate() float64 {
	gets, _, news := bp.Stats()
	if gets == 0 {
		return 0
	}
	return float64(max(gets-news, 0)) / float64(gets)
}

// ContentPool is a tiered set of buffer pools for file content.
// Requests above the largest tier are allocated directly and never pooled.
type ContentPool struct {
	small  *BufferPool
	medium *BufferPool
	large  *BufferPool
	direct atomic.Int64
}

// NewContentPool creates a tiered buffer pool.
func NewContentPool() *ContentPool {
	return &ContentPool{
		small:  NewBufferPool(SmallBufferSize),
		medium: NewBufferPool(MediumBufferSize),
		large:  NewBufferPool(LargeBufferSize),
	}
}

// GetForSize returns a buffer with capacity of at least size.
func (cp *ContentPool) GetForSize(size int64) []byte {
	switch {
	case size <= SmallBufferSize:
		return cp.small.Get()
	case size <= MediumBufferSize:
		return cp.medium.Get()
	case size <= LargeBufferSize:
		return cp.large.Get()
	default:
		cp.direct.Add(1)
		return make([]byte, size)
	}
}

// Put returns a buffer to the tier matching its capacity.
func (cp *ContentPool) Put(buf []byte) {
	switch cap(buf) {
	case SmallBufferSize:
		cp.small.Put(buf)
	case MediumBufferSize:
		cp.medium.Put(buf)
	case LargeBufferSize:
		cp.large.Put(buf)
	}
}

// HitRate returns the combined reuse rate across all tiers.
func (cp *ContentPool) HitRate() float64 {
	sg, _, sn := cp.small.Stats()
	mg, _, mn := cp.medium.Stats()
	lg, _, ln := cp.large.Stats()

	gets := sg + mg + lg + cp.direct.Load()
	news := sn + mn + ln + cp.direct.Load()
	if gets == 0 {
		return 0
	}
	return float64(max(gets-news, 0)) / float64(gets)
}
