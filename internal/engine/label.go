package engine

import (
	"sync"

	"github.com/google/uuid"
)

// LabelGenerator names things that need a unique, human-correlatable
// label: subscriptions opened without a caller-supplied label, and
// binding environments.
type LabelGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 labels.
//
// UUIDv7 embeds a timestamp in the most significant bits, so labels sort
// by creation time in server-side diagnostics.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Format: "550e8400-e29b-41d4-a716-446655440000" (36 characters)
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined labels for testing.
//
// Tests provide a known sequence so traces can be compared byte for byte.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	labels []string
	idx    int
}

// NewFixedGenerator creates a generator that returns labels in order.
//
// Example:
//
//	gen := NewFixedGenerator("w-1", "w-2")
//	gen.Generate() // "w-1"
//	gen.Generate() // "w-2"
//	gen.Generate() // panic: all labels exhausted
func NewFixedGenerator(labels ...string) *FixedGenerator {
	return &FixedGenerator{labels: labels}
}

// Generate returns the next predetermined label.
//
// Panics if all labels have been consumed, which means the test opened
// more subscriptions than it declared.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.labels) {
		panic("FixedGenerator: all labels exhausted")
	}
	label := g.labels[g.idx]
	g.idx++
	return label
}
