// Package counters provides a thread-safe counter store for swarm transfer totals.
package counters

import "sync/atomic"

// Counters is a set of monotonically increasing transfer counters.
// Values may be read and incremented concurrently.
type Counters struct {
	c [4]int64
}

// Counter types
const (
	BytesDownloaded = iota
	BytesUploaded
	BytesWasted
	SeededFor
)

// New returns a new Counters with preset values.
func New(downloaded, uploaded, wasted, seededFor int64) *Counters {
	c := new(Counters)
	atomic.StoreInt64(&c.c[BytesDownloaded], downloaded)
	atomic.StoreInt64(&c.c[BytesUploaded], uploaded)
	atomic.StoreInt64(&c.c[BytesWasted], wasted)
	atomic.StoreInt64(&c.c[SeededFor], seededFor)
	return c
}

// Read the value of counter i.
func (c *Counters) Read(i int) int64 {
	return atomic.LoadInt64(&c.c[i])
}

// Incr increments the value of counter i by n.
func (c *Counters) Incr(i int, n int64) {
	atomic.AddInt64(&c.c[i], n)
}
