package clocksim

// Clock is a Lamport logical clock: a monotone counter advanced by local
// events (send, internal) and by message receipt.
type Clock struct {
	counter int64
}

// Increment advances the clock by exactly one, for a send or internal event.
func (c *Clock) Increment() int64 {
	c.counter++
	return c.counter
}

// ReceiveUpdate applies the Lamport receive rule: counter <- max(counter,
// received)+1. Returns the new counter value.
func (c *Clock) ReceiveUpdate(received int64) int64 {
	if received > c.counter {
		c.counter = received
	}
	c.counter++
	return c.counter
}

// Value returns the current counter without advancing it.
func (c *Clock) Value() int64 {
	return c.counter
}
