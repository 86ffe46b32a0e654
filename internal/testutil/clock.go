package testutil

import (
	"strconv"
	"sync"
	"time"
)

// FixedClock is a manually advanced wall clock for tests.
//
// Reconciliation stamps session locks with Now(); a FixedClock lets tests
// place a session inside or beyond the lock TTL without sleeping.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock creates a clock reading start. A zero start uses
// 2024-01-01T00:00:00Z.
func NewFixedClock(start time.Time) *FixedClock {
	if start.IsZero() {
		start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &FixedClock{now: start}
}

// Now returns the current reading. Its signature matches time.Now so it
// can be passed wherever a clock function is expected.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SequenceTokens generates session tokens "<prefix>-1", "<prefix>-2", ...
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequenceTokens struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceTokens creates a generator. An empty prefix uses "session".
func NewSequenceTokens(prefix string) *SequenceTokens {
	if prefix == "" {
		prefix = "session"
	}
	return &SequenceTokens{prefix: prefix}
}

// Generate returns the next token.
func (g *SequenceTokens) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return g.prefix + "-" + strconv.Itoa(g.n)
}
