package binding

import "sync/atomic"

// Token is the cancellation flag of one attempt. It starts live and is
// cancelled at most once.
type Token struct {
	cancelled atomic.Bool
}

// NewToken returns a live token.
func NewToken() *Token {
	return &Token{}
}

// Cancel marks the token cancelled. Returns true on the first call only.
func (t *Token) Cancel() bool {
	return t.cancelled.CompareAndSwap(false, true)
}

// Cancelled reports whether Cancel has been called. A nil token is never
// cancelled.
func (t *Token) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}
