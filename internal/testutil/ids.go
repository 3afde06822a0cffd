package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates predictable journal entry IDs: "<prefix>-0001",
// "<prefix>-0002", ...
//
// This enables golden snapshots of journals, which would otherwise differ
// on every run because of UUIDv7 timestamps.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewSequentialIDs creates a generator. An empty prefix becomes "entry".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "entry"
	}
	return &SequentialIDs{prefix: prefix, next: 1}
}

// NewID returns the next ID.
func (g *SequentialIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := fmt.Sprintf("%s-%04d", g.prefix, g.next)
	g.next++
	return id
}
