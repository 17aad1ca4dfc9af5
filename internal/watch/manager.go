package watch

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/haybind/internal/client"
	"github.com/roach88/haybind/internal/haystack"
)

// Manager opens polling handles over one Reader. It implements
// client.Subscriptions.
type Manager struct {
	reader Reader
	opts   []Option

	mu     sync.Mutex
	opened int
	open   map[*Handle]struct{}
}

var _ client.Subscriptions = (*Manager)(nil)

// NewManager returns a manager whose handles poll r.
func NewManager(r Reader, opts ...Option) *Manager {
	return &Manager{reader: r, opts: opts, open: make(map[*Handle]struct{})}
}

// Make opens a handle over ids.
func (m *Manager) Make(ctx context.Context, label string, ids []haystack.Ref) (client.Handle, error) {
	h, err := Open(ctx, m.reader, label, ids, m.opts...)
	if err != nil {
		return nil, fmt.Errorf("watch %q: %w", label, err)
	}
	m.mu.Lock()
	m.opened++
	m.open[h] = struct{}{}
	m.mu.Unlock()
	return &managedHandle{Handle: h, m: m}, nil
}

// Open returns the number of handles not yet closed.
func (m *Manager) Open() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

// Opened returns the number of handles ever opened.
func (m *Manager) Opened() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}

// PollAll polls every open handle once, in label order, and returns the
// first error. Change and error callbacks run before it returns.
func (m *Manager) PollAll(ctx context.Context) error {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.open))
	for h := range m.open {
		handles = append(handles, h)
	}
	m.mu.Unlock()
	slices.SortFunc(handles, func(a, b *Handle) int { return strings.Compare(a.Label(), b.Label()) })

	var firstErr error
	for _, h := range handles {
		if _, err := h.Poll(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("poll %q: %w", h.Label(), err)
		}
	}
	return firstErr
}

// CloseAll closes every open handle.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.open))
	for h := range m.open {
		handles = append(handles, h)
	}
	m.open = make(map[*Handle]struct{})
	m.mu.Unlock()

	var firstErr error
	for _, h := range handles {
		if err := h.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// managedHandle removes itself from the manager on Close.
type managedHandle struct {
	*Handle
	m *Manager
}

func (mh *managedHandle) Close(ctx context.Context) error {
	mh.m.mu.Lock()
	delete(mh.m.open, mh.Handle)
	mh.m.mu.Unlock()
	return mh.Handle.Close(ctx)
}
