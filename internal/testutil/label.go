package testutil

import (
	"strconv"
	"sync"
)

// SequentialLabels generates "<prefix>-1", "<prefix>-2", ...
//
// Unlike engine.FixedGenerator it never runs out, which suits scenarios
// whose number of generated labels is not known up front. The same
// scenario always sees the same labels, so golden traces stay
// byte-identical.
//
// Thread-safety: SequentialLabels is safe for concurrent use.
type SequentialLabels struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialLabels creates a generator. An empty prefix uses "label".
func NewSequentialLabels(prefix string) *SequentialLabels {
	if prefix == "" {
		prefix = "label"
	}
	return &SequentialLabels{prefix: prefix}
}

// Generate returns the next label.
func (g *SequentialLabels) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return g.prefix + "-" + strconv.Itoa(g.n)
}
