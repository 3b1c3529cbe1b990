// Package pool provides object and buffer pooling for Quasar. The field
// engine recycles bulk scratch buffers through it and the page store draws
// its page buffers from the size-bucketed BufferPool, reducing garbage
// collection pressure on the hot append and bulk-read paths.
package pool

import (
	"sync"
	"sync/atomic"
)

// Pool represents a generic object pool with type safety. It wraps sync.Pool
// with statistics tracking and automatic reset functionality. The pool is
// safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	new   func() T
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
		hits      int64
	}
}

// New creates a typed pool. The new function builds fresh instances; the
// optional reset function cleans objects up before they return to the pool.
func New[T any](new func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{
		new:   new,
		reset: reset,
	}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		return new()
	}
	return p
}

// Get retrieves an object from the pool, creating one if the pool is empty.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.inUse, 1)
	obj := p.pool.Get().(T)
	atomic.AddInt64(&p.stats.hits, 1)
	return obj
}

// Put returns an object to the pool for reuse, running the reset function
// first when one was provided.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Stats returns the allocation count, the number of objects currently
// checked out and the number of successful Gets.
func (p *Pool[T]) Stats() (allocated, inUse, hits int64) {
	return atomic.LoadInt64(&p.stats.allocated),
		atomic.LoadInt64(&p.stats.inUse),
		atomic.LoadInt64(&p.stats.hits)
}

// BufferPool manages byte buffer pooling with size-based buckets, selecting
// the smallest bucket that can serve a request. Buffers larger than the
// biggest bucket are allocated directly.
type BufferPool struct {
	pools []*Pool[[]byte]
	sizes []int
}

// NewBufferPool creates a buffer pool with power-of-2 buckets from 512 bytes
// to 16MB.
func NewBufferPool() *BufferPool {
	sizes := []int{
		512,
		1024,
		4096,
		16384,
		65536,
		262144,
		1048576,
		4194304,
		16777216,
	}

	pools := make([]*Pool[[]byte], len(sizes))
	for i, size := range sizes {
		size := size
		pools[i] = New(
			func() []byte { return make([]byte, size) },
			nil,
		)
	}

	return &BufferPool{pools: pools, sizes: sizes}
}

// Get returns a buffer of at least the requested size; its length is set to
// the request, its capacity may be larger.
func (p *BufferPool) Get(size int) []byte {
	for i, s := range p.sizes {
		if s >= size {
			buf := p.pools[i].Get()
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns a buffer to its bucket; buffers whose capacity matches no
// bucket are left to the garbage collector.
func (p *BufferPool) Put(buf []byte) {
	size := cap(buf)
	for i, s := range p.sizes {
		if s == size {
			p.pools[i].Put(buf[:size])
			return
		}
	}
}

// GlobalBufferPool provides size-based byte buffer pooling for page I/O.
var GlobalBufferPool = NewBufferPool()
