package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrorKind classifies a failure reported by or about a venue.
type ErrorKind string

const (
	ErrorKindUnknown           ErrorKind = "unknown"
	ErrorKindParsingError      ErrorKind = "parsing_error"
	ErrorKindNetwork           ErrorKind = "network"
	ErrorKindTimeout           ErrorKind = "timeout"
	ErrorKindRejected          ErrorKind = "rejected"
	ErrorKindInsufficientFunds ErrorKind = "insufficient_funds"
	ErrorKindInvalidOrder      ErrorKind = "invalid_order"
	ErrorKindOrderNotFound     ErrorKind = "order_not_found"
)

// VenueError carries the kind and message of a venue failure.
// Every VenueError matches ErrTransport with errors.Is.
type VenueError struct {
	Kind    ErrorKind
	Message string
}

// NewVenueError returns a VenueError of the given kind.
func NewVenueError(kind ErrorKind, message string) *VenueError {
	return &VenueError{Kind: kind, Message: message}
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("venue error %s: %s", e.Kind, e.Message)
}

func (e *VenueError) Is(target error) bool {
	return target == ErrTransport
}

// IsParsingError reports whether err is a venue response that could not be decoded.
// Parsing errors never trigger the failure handler because the order may well
// exist on the venue.
func IsParsingError(err error) bool {
	var venueErr *VenueError
	return errors.As(err, &venueErr) && venueErr.Kind == ErrorKindParsingError
}

// asVenueError converts any transport failure into a VenueError.
func asVenueError(err error) *VenueError {
	var venueErr *VenueError
	if errors.As(err, &venueErr) {
		return venueErr
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewVenueError(ErrorKindTimeout, err.Error())
	default:
		return NewVenueError(ErrorKindNetwork, err.Error())
	}
}

// CreateOrderAck is the venue's synchronous answer to a submission.
// Exactly one of VenueOrderID and Rejection is set.
type CreateOrderAck struct {
	VenueOrderID VenueOrderID
	Rejection    *VenueError
}

// CancelOrderAck is the venue's synchronous answer to a cancel request.
type CancelOrderAck struct {
	Rejection *VenueError
}

// VenueOrderState is the venue's view of an order as reported by a status query.
type VenueOrderState string

const (
	VenueOrderUnknown  VenueOrderState = "unknown"
	VenueOrderOpen     VenueOrderState = "open"
	VenueOrderRejected VenueOrderState = "rejected"
	VenueOrderCanceled VenueOrderState = "canceled"
	VenueOrderFilled   VenueOrderState = "filled"
)

// OrderInfo is the result of a status query.
type OrderInfo struct {
	ClientOrderID ClientOrderID
	VenueOrderID  VenueOrderID
	State         VenueOrderState
	Error         *VenueError
}

// VenueClient is the capability set of one venue. Implementations own the wire
// protocol; this package only sees decoded results.
//
// Transport failures are returned as errors. A failure to decode the venue's
// response must be returned as a VenueError with ErrorKindParsingError.
type VenueClient interface {
	SubmitOrder(ctx context.Context, spec OrderSpec) (CreateOrderAck, error)
	CancelOrder(ctx context.Context, clientOrderID ClientOrderID, venueOrderID VenueOrderID, pair CurrencyPair) (CancelOrderAck, error)
	GetOrderInfo(ctx context.Context, clientOrderID ClientOrderID, venueOrderID VenueOrderID, pair CurrencyPair) (OrderInfo, error)
	RequestMetadata(ctx context.Context) ([]byte, error)
	ParseMetadata(raw []byte) ([]*Symbol, error)
}

// Symbol describes one tradable pair on the venue.
type Symbol struct {
	Pair          CurrencyPair
	BaseCurrency  string
	QuoteCurrency string
	// PriceTick and AmountTick are zero when the venue did not report a precision.
	PriceTick  decimal.Decimal
	AmountTick decimal.Decimal
	MinAmount  decimal.Decimal
}

// HasPrecision reports whether both price and amount precision are known.
func (s *Symbol) HasPrecision() bool {
	return s.PriceTick.IsPositive() && s.AmountTick.IsPositive()
}
