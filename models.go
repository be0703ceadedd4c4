package execution

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/xid"
	"github.com/shopspring/decimal"
)

// ClientOrderID is assigned locally before the order is sent to the venue.
type ClientOrderID string

// VenueOrderID is assigned by the venue once it accepts the order.
type VenueOrderID string

// AccountID identifies one account on one venue, e.g. "Binance0".
type AccountID string

// ReservationID correlates an order with an external balance reservation.
type ReservationID string

// NewClientOrderID returns a globally unique, time sortable client order id.
func NewClientOrderID() ClientOrderID {
	return ClientOrderID(xid.New().String())
}

// NewReservationID returns a random reservation id.
func NewReservationID() ReservationID {
	return ReservationID(uuid.NewString())
}

// CurrencyPair is the instrument an order trades.
type CurrencyPair struct {
	Base  string `json:"base" yaml:"base"`
	Quote string `json:"quote" yaml:"quote"`
}

// NewCurrencyPair builds a pair from currency codes, normalized to lower case.
func NewCurrencyPair(base, quote string) CurrencyPair {
	return CurrencyPair{Base: strings.ToLower(base), Quote: strings.ToLower(quote)}
}

func (p CurrencyPair) String() string {
	return p.Base + "/" + p.Quote
}

type Side int8

const (
	Buy  Side = 1
	Sell Side = 2
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	}
	return fmt.Sprintf("side(%d)", int8(s))
}

type OrderType string

const (
	Market      OrderType = "market"
	Limit       OrderType = "limit"
	Liquidation OrderType = "liquidation"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus uint8

const (
	StatusCreating OrderStatus = iota
	StatusCreated
	StatusFailedToCreate
	StatusCanceling
	StatusCanceled
	StatusFailedToCancel
	StatusCompleted
)

func (s OrderStatus) String() string {
	switch s {
	case StatusCreating:
		return "Creating"
	case StatusCreated:
		return "Created"
	case StatusFailedToCreate:
		return "FailedToCreate"
	case StatusCanceling:
		return "Canceling"
	case StatusCanceled:
		return "Canceled"
	case StatusFailedToCancel:
		return "FailedToCancel"
	case StatusCompleted:
		return "Completed"
	}
	return fmt.Sprintf("OrderStatus(%d)", uint8(s))
}

// EventSourceType tags the channel a notification arrived through.
type EventSourceType uint8

const (
	SourceNone EventSourceType = iota
	// SourceDirect is the request/response acknowledgment.
	SourceDirect
	// SourceFallback is the asynchronous push channel.
	SourceFallback
	// SourcePoll is the periodic status poll.
	SourcePoll
)

func (s EventSourceType) String() string {
	switch s {
	case SourceNone:
		return "none"
	case SourceDirect:
		return "direct"
	case SourceFallback:
		return "fallback"
	case SourcePoll:
		return "poll"
	}
	return fmt.Sprintf("source(%d)", uint8(s))
}

// ParseEventSourceType maps the wire name of a source back to its tag.
func ParseEventSourceType(s string) (EventSourceType, error) {
	switch strings.ToLower(s) {
	case "direct":
		return SourceDirect, nil
	case "fallback":
		return SourceFallback, nil
	case "poll":
		return SourcePoll, nil
	}
	return SourceNone, fmt.Errorf("%w: unknown source %q", ErrInvalidParam, s)
}

// OrderSpec is everything the caller fixes before an order is submitted.
type OrderSpec struct {
	ClientOrderID ClientOrderID
	AccountID     AccountID
	CurrencyPair  CurrencyPair
	Side          Side
	Type          OrderType
	Price         decimal.Decimal
	Amount        decimal.Decimal
	ReservationID ReservationID
	StrategyName  string
}

func (s *OrderSpec) validate() error {
	switch {
	case s.ClientOrderID == "":
		return fmt.Errorf("%w: client_order_id required", ErrInvalidParam)
	case s.CurrencyPair.Base == "" || s.CurrencyPair.Quote == "":
		return fmt.Errorf("%w: currency pair required", ErrInvalidParam)
	case s.Side != Buy && s.Side != Sell:
		return fmt.Errorf("%w: side must be buy or sell", ErrInvalidParam)
	case s.Type == "":
		return fmt.Errorf("%w: order type required", ErrInvalidParam)
	case !s.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive", ErrInvalidParam)
	case s.Type != Market && s.Price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", ErrInvalidParam)
	}
	return nil
}

// CancelRequest identifies the order to cancel. Either id may be empty but not both.
type CancelRequest struct {
	ClientOrderID ClientOrderID
	VenueOrderID  VenueOrderID
}
