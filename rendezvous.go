package execution

import "sync"

type rendezvousSlot struct {
	ch   chan struct{}
	refs int
}

// Rendezvous holds single-fire signals keyed by client order id. A slot is
// created by whichever side reaches it first and is consumed by Fire, which
// removes and closes it in one atomic step. A waiter that gives up calls
// Release; the slot is dropped once its last waiter left.
type Rendezvous struct {
	mu    sync.Mutex
	slots map[ClientOrderID]*rendezvousSlot
}

// NewRendezvous creates an empty table.
func NewRendezvous() *Rendezvous {
	return &Rendezvous{
		slots: make(map[ClientOrderID]*rendezvousSlot),
	}
}

// Slot returns the signal for id, creating it if needed, and counts the
// caller as a waiter.
func (r *Rendezvous) Slot(id ClientOrderID) <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok {
		s = &rendezvousSlot{ch: make(chan struct{})}
		r.slots[id] = s
	}
	s.refs++
	return s.ch
}

// Release gives up one waiter's interest in the slot returned by Slot. It is
// a no-op when that slot was already fired.
func (r *Rendezvous) Release(id ClientOrderID, slot <-chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok || (<-chan struct{})(s.ch) != slot {
		return
	}
	s.refs--
	if s.refs <= 0 {
		delete(r.slots, id)
	}
}

// Fire wakes the waiters on id and removes the slot. It reports whether a slot
// existed; firing a missing slot is a no-op.
func (r *Rendezvous) Fire(id ClientOrderID) bool {
	r.mu.Lock()
	s, ok := r.slots[id]
	if ok {
		delete(r.slots, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	close(s.ch)
	return true
}

// Has reports whether a slot for id is waiting to be fired.
func (r *Rendezvous) Has(id ClientOrderID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.slots[id]
	return ok
}

// Len returns the number of pending slots.
func (r *Rendezvous) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}
