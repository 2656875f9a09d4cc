package testutil

import (
	"strconv"
	"sync"
)

// SequenceGenerator returns prefix-1, prefix-2, ... and never runs out.
// It satisfies both the record id and the pass token generator interfaces.
//
// Thread-safety: SequenceGenerator is safe for concurrent use.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a generator. An empty prefix yields "seq".
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "seq"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next value.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return g.prefix + "-" + strconv.Itoa(g.n)
}
