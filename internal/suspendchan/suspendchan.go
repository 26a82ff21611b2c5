// Package suspendchan provides a channel that can be suspended.
package suspendchan

// Chan is a wrapper around a regular channel whose receive side can be
// suspended and resumed.
type Chan[T any] struct {
	ch        chan T
	suspended bool
}

// New returns a new Chan.
func New[T any](buflen int) *Chan[T] {
	return &Chan[T]{
		ch: make(chan T, buflen),
	}
}

// SendC returns the channel for sending.
func (c *Chan[T]) SendC() chan T {
	return c.ch
}

// ReceiveC returns the channel for receiving.
// Returns nil if the channel is suspended.
func (c *Chan[T]) ReceiveC() chan T {
	if c.suspended {
		return nil
	}
	return c.ch
}

// Suspend the channel. Receives do not work on suspended channels.
func (c *Chan[T]) Suspend() {
	c.suspended = true
}

// Resume the suspended channel.
func (c *Chan[T]) Resume() {
	c.suspended = false
}
