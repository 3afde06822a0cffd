package testutil

import (
	"sync"
	"time"
)

// Epoch is the first time returned by a new StepClock.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// StepClock is a deterministic clock for journal tests. Every call to Now
// advances it by one second, starting at Epoch.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepClock struct {
	mu    sync.Mutex
	steps int64
}

// NewStepClock creates a clock whose first Now() returns Epoch.
func NewStepClock() *StepClock {
	return &StepClock{}
}

// Now returns the next time and advances the clock.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := Epoch.Add(time.Duration(c.steps) * time.Second)
	c.steps++
	return t
}

// Steps returns how many times Now has been called.
func (c *StepClock) Steps() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.steps
}

// Reset rewinds the clock so the next Now() returns Epoch again.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = 0
}
