package execution

import (
	"context"
	"fmt"
)

// CancelOrder asks the venue to cancel the order and waits until the cancel
// resolved. A cancel already in flight is joined instead of sent twice, and an
// order that is already gone is returned at once.
//
// A venue rejection returns the FailedToCancel order together with the
// *VenueError. Cancelling token returns ErrCancelled and leaves the order
// Canceling.
func (ex *Exchange) CancelOrder(req CancelRequest, token *CancellationToken) (*Order, error) {
	if ex.isShutdown.Load() {
		return nil, ErrShutdown
	}
	if err := token.ErrorIfCancelled(); err != nil {
		return nil, err
	}

	order, err := ex.resolveOrder(req.ClientOrderID, req.VenueOrderID)
	if err != nil {
		return nil, err
	}
	id := order.ClientOrderID()

	var (
		snapshot OrderSnapshot
		join     bool
		done     bool
	)
	err = order.update(func(p *orderProps) error {
		switch p.status {
		case StatusCreated, StatusFailedToCancel:
			p.setStatus(StatusCanceling)
			p.lastCancellationError = nil
			snapshot = order.snapshotLocked()
			return nil
		case StatusCanceling:
			join = true
			return nil
		case StatusCanceled, StatusCompleted:
			done = true
			return nil
		default:
			return fmt.Errorf("%w: cannot cancel %s in status %s", ErrUnexpectedStatus, id, p.status)
		}
	})
	if err != nil {
		return nil, err
	}
	if done {
		return order, nil
	}

	venueID, _ := order.VenueOrderID()
	args := orderLogArgs(order.AccountID(), id, venueID)

	slot := ex.canceled.Slot(id)
	defer ex.canceled.Release(id, slot)
	if order.Status() != StatusCanceling {
		ex.canceled.Fire(id)
	}

	var response chan error
	if join {
		logger().Info("joining cancel already in flight", args...)
	} else {
		logger().Info("canceling order", args...)
		ex.recorder.Save(snapshot)
		ex.poller.track(id)
		ex.metrics.OrdersSubmitted.WithLabelValues(string(order.AccountID()), "cancel").Inc()

		response = make(chan error, 1)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), ex.settings.RequestTimeout)
			defer cancel()
			ack, err := ex.client.CancelOrder(ctx, id, venueID, order.CurrencyPair())
			response <- ex.reconcileCancelResponse(order, ack, err)
		}()
	}

	for {
		select {
		case err := <-response:
			response = nil
			if err != nil {
				return order, err
			}
			if order.Status() != StatusCanceling {
				return ex.cancelResult(order)
			}
		case <-slot:
			return ex.cancelResult(order)
		case <-token.WhenCancelled():
			logger().Info("order cancel abandoned by caller", args...)
			return nil, ErrCancelled
		}
	}
}

func (ex *Exchange) reconcileCancelResponse(order *Order, ack CancelOrderAck, err error) error {
	id := order.ClientOrderID()

	if err != nil {
		venueErr := asVenueError(err)
		if venueErr.Kind != ErrorKindParsingError {
			if handlerErr := ex.HandleCancelOrderFailed(id, venueErr, SourceDirect); handlerErr != nil {
				return handlerErr
			}
		}
		return fmt.Errorf("cancel order %s: %w", id, venueErr)
	}

	if ack.Rejection != nil {
		return ex.HandleCancelOrderFailed(id, ack.Rejection, SourceDirect)
	}
	venueID, _ := order.VenueOrderID()
	return ex.HandleCancelOrderSucceeded(id, venueID, SourceDirect)
}

func (ex *Exchange) cancelResult(order *Order) (*Order, error) {
	snapshot := order.Snapshot()
	if snapshot.Status == StatusFailedToCancel && snapshot.LastCancellationError != nil {
		return order, snapshot.LastCancellationError
	}
	return order, nil
}

// resolveOrder finds an order by client id, falling back to the venue id.
func (ex *Exchange) resolveOrder(clientOrderID ClientOrderID, venueOrderID VenueOrderID) (*Order, error) {
	if clientOrderID == "" && venueOrderID == "" {
		return nil, fmt.Errorf("%w: client_order_id or venue_order_id required", ErrInvalidParam)
	}
	if clientOrderID != "" {
		if order, ok := ex.registry.LookupByClientID(clientOrderID); ok {
			return order, nil
		}
	}
	if venueOrderID != "" {
		if order, ok := ex.registry.LookupByVenueID(venueOrderID); ok {
			return order, nil
		}
	}
	return nil, fmt.Errorf("%w: client=%s venue=%s", ErrOrderNotFound, clientOrderID, venueOrderID)
}

// WaitOrderCanceled blocks until a cancel of the order resolved, or the order
// completed, or token is cancelled. Orders that never got created return
// ErrUnexpectedStatus.
func (ex *Exchange) WaitOrderCanceled(order *Order, token *CancellationToken) error {
	switch status := order.Status(); status {
	case StatusCreating, StatusFailedToCreate:
		return fmt.Errorf("%w: %s is %s", ErrUnexpectedStatus, order.ClientOrderID(), status)
	}
	return ex.waitResolved(ex.canceled, order, isCancelResolved, token)
}

func isCancelResolved(s OrderStatus) bool {
	switch s {
	case StatusCanceled, StatusFailedToCancel, StatusCompleted:
		return true
	}
	return false
}

// HandleCancelOrderSucceeded applies the venue's statement that the order is
// no longer on the book because of a cancel. The venue is authoritative, so a
// Created order moves to Canceled even when no cancel was requested here.
func (ex *Exchange) HandleCancelOrderSucceeded(clientOrderID ClientOrderID, venueOrderID VenueOrderID, source EventSourceType) error {
	accountID := ex.settings.AccountID
	args := append(orderLogArgs(accountID, clientOrderID, venueOrderID), "source", source.String())

	if clientOrderID == "" && venueOrderID == "" {
		ex.dropMalformed(handlerCancelSucceeded, fmt.Errorf("cancel succeeded without ids"))
		return nil
	}

	order, err := ex.resolveOrder(clientOrderID, venueOrderID)
	if err != nil {
		logger().Warn("cancel succeeded for an order which is not in the registry", args...)
		ex.metrics.notification(accountID, handlerCancelSucceeded, source, outcomeUnknownOrder)
		return nil
	}
	clientOrderID = order.ClientOrderID()

	var (
		snapshot OrderSnapshot
		status   OrderStatus
		outcome  = outcomeApplied
	)
	err = order.update(func(p *orderProps) error {
		status = p.status
		switch p.status {
		case StatusCanceling, StatusCreated, StatusFailedToCancel:
			p.setStatus(StatusCanceled)
			p.cancellationSource = source
			snapshot = order.snapshotLocked()
			return nil
		case StatusCanceled, StatusCompleted:
			outcome = outcomeDuplicate
			return nil
		default:
			outcome = outcomeUnexpected
			return fmt.Errorf("%w: cancel succeeded via %s for %s in status %s",
				ErrUnexpectedStatus, source, clientOrderID, p.status)
		}
	})
	ex.metrics.notification(accountID, handlerCancelSucceeded, source, outcome)

	switch outcome {
	case outcomeApplied:
		logger().Info("order canceled", args...)
		ex.publish(CancelOrderSucceeded, source, snapshot)
		ex.canceled.Fire(clientOrderID)
		return nil
	case outcomeDuplicate:
		logger().Warn("cancel succeeded notification ignored", append(args, "status", status.String())...)
		return nil
	default:
		logger().Error("cancel succeeded notification rejected", append(args, "status", status.String(), "error", err)...)
		return err
	}
}

// HandleCancelOrderFailed applies the venue's refusal to cancel the order.
// A fill that won the race against the cancel is not an error. A failure for
// an order that is already canceled returns ErrContradictoryNotification.
func (ex *Exchange) HandleCancelOrderFailed(clientOrderID ClientOrderID, venueErr *VenueError, source EventSourceType) error {
	accountID := ex.settings.AccountID
	args := append(orderLogArgs(accountID, clientOrderID, ""), "source", source.String())

	if clientOrderID == "" {
		ex.dropMalformed(handlerCancelFailed, fmt.Errorf("cancel failed without client order id"))
		return nil
	}
	if venueErr == nil {
		venueErr = NewVenueError(ErrorKindUnknown, "")
	}
	args = append(args, "error_kind", venueErr.Kind, "error_message", venueErr.Message)

	order, ok := ex.registry.LookupByClientID(clientOrderID)
	if !ok {
		ex.metrics.notification(accountID, handlerCancelFailed, source, outcomeNotFound)
		logger().Error("cancel failed for an order which is not in the registry", args...)
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
		case StatusCanceling:
			p.setStatus(StatusFailedToCancel)
			p.cancellationSource = source
			p.lastCancellationError = venueErr
			snapshot = order.snapshotLocked()
			return nil
		case StatusFailedToCancel, StatusCompleted:
			outcome = outcomeDuplicate
			return nil
		case StatusCanceled:
			outcome = outcomeContradictory
			return fmt.Errorf("%w: cancel failed via %s for %s which was canceled via %s",
				ErrContradictoryNotification, source, clientOrderID, p.cancellationSource)
		default:
			outcome = outcomeUnexpected
			return fmt.Errorf("%w: cancel failed via %s for %s in status %s",
				ErrUnexpectedStatusForFailure, source, clientOrderID, p.status)
		}
	})
	ex.metrics.notification(accountID, handlerCancelFailed, source, outcome)

	switch outcome {
	case outcomeApplied:
		logger().Warn("order failed to cancel", args...)
		ex.publish(CancelOrderFailed, source, snapshot)
		ex.canceled.Fire(clientOrderID)
		return nil
	case outcomeDuplicate:
		if status == StatusCompleted {
			logger().Info("cancel failed for an order which completed first", args...)
		} else {
			logger().Warn("duplicate cancel failed notification ignored", args...)
		}
		return nil
	default:
		logger().Error("cancel failed notification rejected", append(args, "status", status.String(), "error", err)...)
		return err
	}
}

// HandleOrderCompleted records that the order was filled in full. Fill
// detection is not done here; this only owns the terminal state.
func (ex *Exchange) HandleOrderCompleted(clientOrderID ClientOrderID, source EventSourceType) error {
	accountID := ex.settings.AccountID
	args := append(orderLogArgs(accountID, clientOrderID, ""), "source", source.String())

	if clientOrderID == "" {
		ex.dropMalformed(handlerCompleted, fmt.Errorf("completed without client order id"))
		return nil
	}

	order, ok := ex.registry.LookupByClientID(clientOrderID)
	if !ok {
		logger().Warn("completion for an order which is not in the registry", args...)
		ex.metrics.notification(accountID, handlerCompleted, source, outcomeUnknownOrder)
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
		case StatusCreated, StatusCanceling, StatusFailedToCancel:
			p.setStatus(StatusCompleted)
			p.completionSource = source
			snapshot = order.snapshotLocked()
			return nil
		case StatusCompleted:
			outcome = outcomeDuplicate
			return nil
		default:
			outcome = outcomeUnexpected
			return fmt.Errorf("%w: completed via %s for %s in status %s",
				ErrUnexpectedStatus, source, clientOrderID, p.status)
		}
	})
	ex.metrics.notification(accountID, handlerCompleted, source, outcome)

	switch outcome {
	case outcomeApplied:
		logger().Info("order completed", args...)
		ex.publish(OrderCompleted, source, snapshot)
		ex.canceled.Fire(clientOrderID)
		return nil
	case outcomeDuplicate:
		logger().Warn("duplicate completion ignored", args...)
		return nil
	default:
		logger().Error("completion rejected", append(args, "status", status.String(), "error", err)...)
		return err
	}
}
