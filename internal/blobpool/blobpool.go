// Package blobpool is a sync.Pool-backed reuse of the byte buffers
// FastqStreamer assembles for each four-line FASTQ record, cutting
// allocator pressure at the throughput the reader is meant to sustain.
package blobpool

import "sync"

// Pool hands out buffers sized around a common FASTQ record length. A
// buffer that turns out too small for a given record is grown in place;
// the grown capacity is retained (not reallocated back down) so pooled
// buffers converge on whatever size the input file actually needs.
type Pool struct {
	pool sync.Pool
	size int
}

// New creates a Pool whose buffers start at size bytes.
func New(size int) *Pool {
	return &Pool{
		size: size,
		pool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, 0, size)
				return &buf
			},
		},
	}
}

// Get returns a zero-length buffer with at least the pool's starting
// capacity.
func (p *Pool) Get() []byte {
	bp := p.pool.Get().(*[]byte)
	return (*bp)[:0]
}

// Put returns buf to the pool for reuse. Callers must not use buf after
// calling Put.
func (p *Pool) Put(buf []byte) {
	buf = buf[:0]
	p.pool.Put(&buf)
}

// Grow appends b to buf, growing buf's backing array if needed. It is a
// thin wrapper around append so callers building a blob line-by-line
// don't need to reason about append's reallocation rules themselves.
func Grow(buf []byte, b []byte) []byte {
	return append(buf, b...)
}
