package execution

import (
	"sync"
	"sync/atomic"
)

// CancellationToken is a cooperative cancellation signal shared by everything
// taking part in one operation. Cancelling a token cancels every token derived
// from it with CreateLinkedChild. Cancellation is monotonic.
type CancellationToken struct {
	cancelled atomic.Bool
	mu        sync.Mutex
	done      chan struct{}
	children  []*CancellationToken
}

// NewCancellationToken creates a token that is not cancelled.
func NewCancellationToken() *CancellationToken {
	return &CancellationToken{
		done: make(chan struct{}),
	}
}

// CreateLinkedChild returns a token that is cancelled whenever t or any of its
// ancestors is cancelled. Cancelling the child does not affect t.
func (t *CancellationToken) CreateLinkedChild() *CancellationToken {
	child := NewCancellationToken()

	t.mu.Lock()
	if t.cancelled.Load() {
		t.mu.Unlock()
		child.Cancel()
		return child
	}
	t.children = append(t.children, child)
	t.mu.Unlock()

	return child
}

// Cancel marks the token cancelled and wakes all waiters. Repeated calls are no-ops.
func (t *CancellationToken) Cancel() {
	t.mu.Lock()
	if t.cancelled.Load() {
		t.mu.Unlock()
		return
	}
	t.cancelled.Store(true)
	close(t.done)
	children := t.children
	t.children = nil
	t.mu.Unlock()

	for _, child := range children {
		child.Cancel()
	}
}

// IsCancelled reports whether the token has been cancelled.
func (t *CancellationToken) IsCancelled() bool {
	return t.cancelled.Load()
}

// ErrorIfCancelled returns ErrCancelled once the token is cancelled.
func (t *CancellationToken) ErrorIfCancelled() error {
	if t.cancelled.Load() {
		return ErrCancelled
	}
	return nil
}

// WhenCancelled returns a channel closed at the moment of cancellation.
// The channel is already closed if the token was cancelled before the call.
func (t *CancellationToken) WhenCancelled() <-chan struct{} {
	return t.done
}
