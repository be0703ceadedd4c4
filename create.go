package execution

import (
	"context"
	"fmt"
)

// CreateOrder registers the order, submits it to the venue and waits until
// the order left Creating, through the venue's response or through any
// notification that arrives first.
//
// The order is returned with every error raised after it was resolved: a venue
// rejection returns the FailedToCreate order together with the *VenueError.
// A transport failure returns an error matching ErrTransport and fails the
// order, except for a parsing error, which leaves the order Creating for the
// fallback channels to resolve. Cancelling token returns ErrCancelled and
// never changes the order's status.
func (ex *Exchange) CreateOrder(spec OrderSpec, token *CancellationToken) (*Order, error) {
	if ex.isShutdown.Load() {
		return nil, ErrShutdown
	}
	if err := token.ErrorIfCancelled(); err != nil {
		return nil, err
	}
	if spec.AccountID == "" {
		spec.AccountID = ex.settings.AccountID
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}

	order := NewOrder(spec)
	if err := ex.registry.RegisterProvisional(order); err != nil {
		return nil, err
	}
	id := order.ClientOrderID()

	logger().Info("submitting order", append(orderLogArgs(spec.AccountID, id, ""),
		"currency_pair", spec.CurrencyPair.String(),
		"side", spec.Side.String(),
		"type", spec.Type,
		"price", spec.Price.String(),
		"amount", spec.Amount.String(),
	)...)

	slot := ex.created.Slot(id)
	defer ex.created.Release(id, slot)

	// a notification may have resolved the order before the slot existed
	if order.Status() != StatusCreating {
		ex.created.Fire(id)
		return ex.createResult(order)
	}

	ex.poller.track(id)
	ex.metrics.OrdersSubmitted.WithLabelValues(string(spec.AccountID), "create").Inc()

	// the request outlives the caller's token, a late response is still reconciled
	response := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), ex.settings.RequestTimeout)
		defer cancel()
		ack, err := ex.client.SubmitOrder(ctx, spec)
		response <- ex.reconcileCreateResponse(order, ack, err)
	}()

	for {
		select {
		case err := <-response:
			response = nil
			if err != nil {
				if order.Status() == StatusCreating {
					return nil, err
				}
				return order, err
			}
			if order.Status() != StatusCreating {
				return ex.createResult(order)
			}
			// the response was a duplicate, wait for an authoritative notification
		case <-slot:
			return ex.createResult(order)
		case <-token.WhenCancelled():
			logger().Info("order creation abandoned by caller", orderLogArgs(spec.AccountID, id, "")...)
			return nil, ErrCancelled
		}
	}
}

// reconcileCreateResponse feeds the venue's answer to the handlers with source Direct.
func (ex *Exchange) reconcileCreateResponse(order *Order, ack CreateOrderAck, err error) error {
	id := order.ClientOrderID()

	if err != nil {
		venueErr := asVenueError(err)
		if venueErr.Kind != ErrorKindParsingError {
			if handlerErr := ex.HandleCreateOrderFailed(id, venueErr, SourceDirect); handlerErr != nil {
				return handlerErr
			}
		}
		return fmt.Errorf("submit order %s: %w", id, venueErr)
	}

	if ack.Rejection != nil {
		return ex.HandleCreateOrderFailed(id, ack.Rejection, SourceDirect)
	}
	return ex.HandleCreateOrderSucceeded(id, ack.VenueOrderID, SourceDirect)
}

func (ex *Exchange) createResult(order *Order) (*Order, error) {
	snapshot := order.Snapshot()
	if snapshot.Status == StatusFailedToCreate && snapshot.LastCreationError != nil {
		return order, snapshot.LastCreationError
	}
	return order, nil
}

// WaitOrderCreated blocks until the order left Creating or token is cancelled.
// It returns at once for an order that is already resolved.
func (ex *Exchange) WaitOrderCreated(order *Order, token *CancellationToken) error {
	return ex.waitResolved(ex.created, order, func(s OrderStatus) bool {
		return s != StatusCreating
	}, token)
}

// HandleCreateOrderSucceeded applies the venue's confirmation that the order
// exists under venueOrderID.
//
// Duplicate deliveries and notifications for orders this registry does not
// know are logged and ignored. A success for an order that already failed to
// create returns ErrContradictoryNotification and leaves the order as it is.
func (ex *Exchange) HandleCreateOrderSucceeded(clientOrderID ClientOrderID, venueOrderID VenueOrderID, source EventSourceType) error {
	accountID := ex.settings.AccountID
	args := append(orderLogArgs(accountID, clientOrderID, venueOrderID), "source", source.String())

	if clientOrderID == "" || venueOrderID == "" {
		ex.dropMalformed(handlerCreateSucceeded, fmt.Errorf("create succeeded without ids client=%q venue=%q", clientOrderID, venueOrderID))
		return nil
	}

	order, ok := ex.registry.LookupByClientID(clientOrderID)
	if !ok {
		logger().Warn("create succeeded for an order which is not in the registry", args...)
		ex.metrics.notification(accountID, handlerCreateSucceeded, source, outcomeUnknownOrder)
		return nil
	}

	var (
		snapshot OrderSnapshot
		status   OrderStatus
		outcome  = outcomeApplied
	)
	err := order.update(func(p *orderProps) error {
		status = p.status
		switch p.status {
		case StatusCreating:
			if ex.registry.ContainsVenueID(venueOrderID) {
				outcome = outcomeDuplicate
				return nil
			}
			if err := ex.registry.bindLocked(order, p, venueOrderID); err != nil {
				outcome = outcomeUnexpected
				return err
			}
			p.setStatus(StatusCreated)
			p.creationSource = source
			snapshot = order.snapshotLocked()
			return nil
		case StatusFailedToCreate:
			outcome = outcomeContradictory
			return fmt.Errorf("%w: create succeeded via %s for %s which failed to create via %s",
				ErrContradictoryNotification, source, clientOrderID, p.creationSource)
		default:
			outcome = outcomeDuplicate
			return nil
		}
	})
	ex.metrics.notification(accountID, handlerCreateSucceeded, source, outcome)

	switch outcome {
	case outcomeApplied:
		logger().Info("order created", args...)
		ex.publish(CreateOrderSucceeded, source, snapshot)
		ex.created.Fire(clientOrderID)
		return nil
	case outcomeDuplicate:
		logger().Warn("duplicate create succeeded notification ignored", append(args, "status", status.String())...)
		return nil
	default:
		logger().Error("create succeeded notification rejected", append(args, "status", status.String(), "error", err)...)
		return err
	}
}

// HandleCreateOrderFailed applies the venue's statement that the order was
// not created. A repeated failure is ignored. A failure for an unknown order
// returns ErrOrderNotFound and a failure for an order past creation returns
// ErrUnexpectedStatusForFailure.
func (ex *Exchange) HandleCreateOrderFailed(clientOrderID ClientOrderID, venueErr *VenueError, source EventSourceType) error {
	accountID := ex.settings.AccountID
	args := append(orderLogArgs(accountID, clientOrderID, ""), "source", source.String())

	if clientOrderID == "" {
		ex.dropMalformed(handlerCreateFailed, fmt.Errorf("create failed without client order id"))
		return nil
	}
	if venueErr == nil {
		venueErr = NewVenueError(ErrorKindUnknown, "")
	}
	args = append(args, "error_kind", venueErr.Kind, "error_message", venueErr.Message)

	order, ok := ex.registry.LookupByClientID(clientOrderID)
	if !ok {
		ex.metrics.notification(accountID, handlerCreateFailed, source, outcomeNotFound)
		logger().Error("create failed for an order which is not in the registry", args...)
		return fmt.Errorf("%w: %s", ErrOrderNotFound, clientOrderID)
	}

	var (
		snapshot OrderSnapshot
		status   OrderStatus
		outcome  = outcomeApplied
	)
	err := order.update(func(p *orderProps) error {
		status = p.status
		switch p.status {
		case StatusCreating:
			p.setStatus(StatusFailedToCreate)
			p.creationSource = source
			p.lastCreationError = venueErr
			snapshot = order.snapshotLocked()
			return nil
		case StatusFailedToCreate:
			outcome = outcomeDuplicate
			return nil
		default:
			outcome = outcomeUnexpected
			return fmt.Errorf("%w: create failed via %s for %s in status %s",
				ErrUnexpectedStatusForFailure, source, clientOrderID, p.status)
		}
	})
	ex.metrics.notification(accountID, handlerCreateFailed, source, outcome)

	switch outcome {
	case outcomeApplied:
		logger().Warn("order failed to create", args...)
		ex.publish(CreateOrderFailed, source, snapshot)
		ex.created.Fire(clientOrderID)
		return nil
	case outcomeDuplicate:
		logger().Warn("duplicate create failed notification ignored", args...)
		return nil
	default:
		logger().Error("create failed notification rejected", append(args, "status", status.String(), "error", err)...)
		return err
	}
}
