package execution

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// OrderRegistry indexes orders by client order id and, once the venue
// confirms them, by venue order id. Both indexes are lock-free maps; an entry
// is visible to every reader as soon as the inserting call returns.
//
// The registry never evicts. Retention belongs to the owner.
type OrderRegistry struct {
	byClientID sync.Map // ClientOrderID -> *Order
	byVenueID  sync.Map // VenueOrderID -> *Order
	count      atomic.Int64
}

// NewOrderRegistry creates an empty registry.
func NewOrderRegistry() *OrderRegistry {
	return &OrderRegistry{}
}

// RegisterProvisional inserts an order that is still Creating under its client order id.
func (r *OrderRegistry) RegisterProvisional(order *Order) error {
	if order == nil || order.ClientOrderID() == "" {
		return fmt.Errorf("%w: order without client_order_id", ErrInvalidParam)
	}
	if status := order.Status(); status != StatusCreating {
		return fmt.Errorf("%w: provisional order is %s", ErrUnexpectedStatus, status)
	}

	if _, loaded := r.byClientID.LoadOrStore(order.ClientOrderID(), order); loaded {
		return fmt.Errorf("%w: %s", ErrDuplicateClientID, order.ClientOrderID())
	}
	r.count.Add(1)
	return nil
}

// LookupByClientID returns the order registered under id.
func (r *OrderRegistry) LookupByClientID(id ClientOrderID) (*Order, bool) {
	v, ok := r.byClientID.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Order), true
}

// LookupByVenueID returns the order bound to the venue id.
func (r *OrderRegistry) LookupByVenueID(id VenueOrderID) (*Order, bool) {
	v, ok := r.byVenueID.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Order), true
}

// ContainsVenueID reports whether the venue id is already bound to some order.
func (r *OrderRegistry) ContainsVenueID(id VenueOrderID) bool {
	_, ok := r.byVenueID.Load(id)
	return ok
}

// BindVenueID records the venue id of an already created order and indexes
// it. A second bind for the same client order id fails with ErrAlreadyBound.
func (r *OrderRegistry) BindVenueID(clientID ClientOrderID, venueID VenueOrderID) error {
	if venueID == "" {
		return fmt.Errorf("%w: empty venue_order_id", ErrInvalidParam)
	}
	order, ok := r.LookupByClientID(clientID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, clientID)
	}

	return order.update(func(p *orderProps) error {
		if p.status == StatusCreating {
			return fmt.Errorf("%w: cannot bind venue id of a Creating order %s", ErrUnexpectedStatus, clientID)
		}
		return r.bindLocked(order, p, venueID)
	})
}

// bindLocked sets the venue id and inserts the venue index entry. The caller
// holds the order's lock and has already moved it out of Creating.
func (r *OrderRegistry) bindLocked(order *Order, p *orderProps, venueID VenueOrderID) error {
	if p.venueOrderID != "" {
		return fmt.Errorf("%w: %s is bound to %s", ErrAlreadyBound, order.ClientOrderID(), p.venueOrderID)
	}
	if existing, loaded := r.byVenueID.LoadOrStore(venueID, order); loaded && existing.(*Order) != order {
		return fmt.Errorf("%w: %s belongs to %s", ErrAlreadyBound, venueID, existing.(*Order).ClientOrderID())
	}
	p.venueOrderID = venueID
	return nil
}

// Len returns the number of registered orders.
func (r *OrderRegistry) Len() int {
	return int(r.count.Load())
}

// Range calls fn for every registered order until fn returns false.
func (r *OrderRegistry) Range(fn func(order *Order) bool) {
	r.byClientID.Range(func(_, value any) bool {
		return fn(value.(*Order))
	})
}
