package execution

import "errors"

var (
	ErrCancelled                  = errors.New("operation was cancelled")
	ErrTransport                  = errors.New("venue transport error")
	ErrMalformedNotification      = errors.New("malformed notification")
	ErrContradictoryNotification  = errors.New("contradictory notification")
	ErrOrderNotFound              = errors.New("order not found")
	ErrUnexpectedStatusForFailure = errors.New("unexpected order status for failure notification")
	ErrUnexpectedStatus           = errors.New("unexpected order status")
	ErrDuplicateClientID          = errors.New("client order id is already registered")
	ErrAlreadyBound               = errors.New("venue order id is already bound")
	ErrInvalidParam               = errors.New("the param is invalid")
	ErrShutdown                   = errors.New("exchange is shutting down")
	ErrMetadataUnavailable        = errors.New("venue metadata is unavailable")
)
