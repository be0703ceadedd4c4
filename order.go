package execution

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Order is the authoritative local record of one order. The economic terms are
// fixed at construction; everything else changes only through update, which
// runs under the order's mutex.
type Order struct {
	header OrderSpec

	mu    sync.Mutex
	props orderProps
}

type orderProps struct {
	venueOrderID VenueOrderID
	status       OrderStatus
	changedAt    time.Time

	creationSource        EventSourceType
	lastCreationError     *VenueError
	cancellationSource    EventSourceType
	lastCancellationError *VenueError
	completionSource      EventSourceType
}

// OrderSnapshot is a consistent copy of an order, safe to hand out.
type OrderSnapshot struct {
	ClientOrderID         ClientOrderID   `json:"client_order_id"`
	VenueOrderID          VenueOrderID    `json:"venue_order_id,omitempty"`
	AccountID             AccountID       `json:"account_id"`
	CurrencyPair          CurrencyPair    `json:"currency_pair"`
	Side                  Side            `json:"side"`
	Type                  OrderType       `json:"type"`
	Price                 decimal.Decimal `json:"price"`
	Amount                decimal.Decimal `json:"amount"`
	ReservationID         ReservationID   `json:"reservation_id,omitempty"`
	StrategyName          string          `json:"strategy_name,omitempty"`
	Status                OrderStatus     `json:"status"`
	ChangedAt             time.Time       `json:"changed_at"`
	CreationSource        EventSourceType `json:"creation_source"`
	LastCreationError     *VenueError     `json:"last_creation_error,omitempty"`
	CancellationSource    EventSourceType `json:"cancellation_source"`
	LastCancellationError *VenueError     `json:"last_cancellation_error,omitempty"`
	CompletionSource      EventSourceType `json:"completion_source"`
}

// NewOrder creates an order in status Creating.
func NewOrder(spec OrderSpec) *Order {
	return &Order{
		header: spec,
		props: orderProps{
			status:    StatusCreating,
			changedAt: time.Now().UTC(),
		},
	}
}

func (o *Order) ClientOrderID() ClientOrderID {
	return o.header.ClientOrderID
}

func (o *Order) AccountID() AccountID {
	return o.header.AccountID
}

func (o *Order) CurrencyPair() CurrencyPair {
	return o.header.CurrencyPair
}

func (o *Order) ReservationID() ReservationID {
	return o.header.ReservationID
}

// Spec returns the immutable terms the order was created with.
func (o *Order) Spec() OrderSpec {
	return o.header
}

// Status returns the current status.
func (o *Order) Status() OrderStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.props.status
}

// VenueOrderID returns the venue id, or false if the venue has not confirmed the order yet.
func (o *Order) VenueOrderID() (VenueOrderID, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.props.venueOrderID, o.props.venueOrderID != ""
}

// Snapshot returns a copy of the order taken under its lock.
func (o *Order) Snapshot() OrderSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Order) snapshotLocked() OrderSnapshot {
	return OrderSnapshot{
		ClientOrderID:         o.header.ClientOrderID,
		VenueOrderID:          o.props.venueOrderID,
		AccountID:             o.header.AccountID,
		CurrencyPair:          o.header.CurrencyPair,
		Side:                  o.header.Side,
		Type:                  o.header.Type,
		Price:                 o.header.Price,
		Amount:                o.header.Amount,
		ReservationID:         o.header.ReservationID,
		StrategyName:          o.header.StrategyName,
		Status:                o.props.status,
		ChangedAt:             o.props.changedAt,
		CreationSource:        o.props.creationSource,
		LastCreationError:     o.props.lastCreationError,
		CancellationSource:    o.props.cancellationSource,
		LastCancellationError: o.props.lastCancellationError,
		CompletionSource:      o.props.completionSource,
	}
}

// update is the single mutation point of an order. fn sees and changes the
// mutable state under the lock, so a decision taken from p.status cannot be
// invalidated by a concurrent handler. fn must not block.
func (o *Order) update(fn func(p *orderProps) error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return fn(&o.props)
}

func (p *orderProps) setStatus(status OrderStatus) {
	p.status = status
	p.changedAt = time.Now().UTC()
}

// isFinished reports whether the order left the venue's book.
func (s OrderStatus) isFinished() bool {
	switch s {
	case StatusFailedToCreate, StatusCanceled, StatusCompleted:
		return true
	}
	return false
}
