// Package semaphore provides a channel-based counting semaphore.
package semaphore

// Semaphore is a synchronization primitive for limiting concurrent operations.
type Semaphore struct {
	c chan struct{}
}

// New returns a new Semaphore that allows n concurrent operations.
func New(n int) *Semaphore {
	return &Semaphore{
		c: make(chan struct{}, n),
	}
}

// Wait for a slot. Blocks until another goroutine calls Signal.
func (s *Semaphore) Wait() {
	s.c <- struct{}{}
}

// Signal that the operation holding a slot has finished.
func (s *Semaphore) Signal() {
	<-s.c
}
