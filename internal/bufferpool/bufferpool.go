// Package bufferpool provides a pool of fixed-size byte buffers.
package bufferpool

import "sync"

// Pool of reusable buffers of the same capacity.
type Pool struct {
	pool *sync.Pool
}

// New returns a new Pool. Buffers in the pool have a capacity of buflen.
func New(buflen int) *Pool {
	return &Pool{
		pool: &sync.Pool{
			New: func() any {
				return make([]byte, buflen)
			},
		},
	}
}

// Get a buffer of datalen length from the pool.
func (p *Pool) Get(datalen int) Buffer {
	buf := p.pool.Get().([]byte)
	return Buffer{
		Data: buf[:datalen],
		pool: p.pool,
	}
}

// Buffer is a view into a fixed-size buffer allocated by Pool.
type Buffer struct {
	Data []byte
	pool *sync.Pool
}

// Release the buffer back to the pool. Data must not be used after Release is called.
func (b Buffer) Release() {
	if b.pool != nil {
		b.pool.Put(b.Data[:cap(b.Data)]) // nolint: staticcheck
	}
}
