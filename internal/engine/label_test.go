package engine

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator_ValidLabel(t *testing.T) {
	label := UUIDv7Generator{}.Generate()

	parsed, err := uuid.Parse(label)
	require.NoError(t, err, "label should be a valid UUID")
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`, label)
}

func TestUUIDv7Generator_ConcurrentUnique(t *testing.T) {
	gen := UUIDv7Generator{}
	const goroutines = 100

	labels := make(chan string, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			labels <- gen.Generate()
		}()
	}
	wg.Wait()
	close(labels)

	seen := make(map[string]bool)
	for label := range labels {
		require.False(t, seen[label], "duplicate label generated")
		seen[label] = true
	}
	assert.Len(t, seen, goroutines)
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator("w-1", "w-2")

	assert.Equal(t, "w-1", gen.Generate())
	assert.Equal(t, "w-2", gen.Generate())
	assert.Panics(t, func() { gen.Generate() }, "should panic when all labels are used")
}

func TestEngine_NewLabel(t *testing.T) {
	e := New(WithLabelGenerator(NewFixedGenerator("a", "b")))

	assert.Equal(t, "watch-a", e.NewLabel("watch"))
	assert.Equal(t, "b", e.NewLabel(""))
}
