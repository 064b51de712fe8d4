// Package epoch models the oracle-advanced epoch counter that gates
// withdrawal maturity. The clock has no internal transition logic: an
// authorized oracle sets the counter and everything else only reads it.
package epoch

import (
	"errors"
	"sync"
)

// ErrEpochRewind is returned when an oracle update would move the counter
// backwards. The counter is practically expected to be monotonic even though
// downstream maturity checks do not depend on it.
var ErrEpochRewind = errors.New("epoch: counter must not decrease")

// Source is the read-only view consumed by the staking engine.
type Source interface {
	CurrentEpoch() uint64
	EpochDelay() uint64
}

// Clock is the concrete oracle-written epoch counter plus the configured
// withdrawal delay.
type Clock struct {
	mu      sync.RWMutex
	current uint64
	delay   uint64
}

// NewClock constructs a clock starting at the given epoch with the given
// withdrawal delay.
func NewClock(current, delay uint64) *Clock {
	return &Clock{current: current, delay: delay}
}

// CurrentEpoch returns the oracle-set epoch counter.
func (c *Clock) CurrentEpoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// EpochDelay returns the number of epochs a withdrawal must wait before it
// can be claimed.
func (c *Clock) EpochDelay() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.delay
}

// SetEpoch moves the counter forward. Rewinds are rejected so a misbehaving
// oracle cannot re-open settled maturity windows.
func (c *Clock) SetEpoch(epoch uint64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch < c.current {
		return c.current, ErrEpochRewind
	}
	previous := c.current
	c.current = epoch
	return previous, nil
}

// SetDelay updates the withdrawal delay applied to future tickets. Tickets
// already issued keep their stored maturity epochs.
func (c *Clock) SetDelay(delay uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delay = delay
}

// MaturityFor computes the maturity epoch for a request made now.
func (c *Clock) MaturityFor() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current + c.delay
}
