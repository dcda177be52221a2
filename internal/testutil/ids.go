package testutil

import (
	"fmt"
	"sync"
	"testing"

	"github.com/roach88/reactor/internal/ir"
)

// SequenceGenerator returns "<prefix>-0001", "<prefix>-0002", ... It
// implements ir.IDGenerator. The ids sort in generation order.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator returns a generator; an empty prefix means "id".
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// UseSequenceIDs installs a SequenceGenerator as the process id generator
// until the test ends. Tests using it must not run in parallel.
func UseSequenceIDs(t testing.TB, prefix string) *SequenceGenerator {
	t.Helper()
	g := NewSequenceGenerator(prefix)
	restore := ir.SetIDGenerator(g)
	t.Cleanup(restore)
	return g
}
