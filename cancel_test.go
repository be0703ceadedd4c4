package execution

import (
	"errors"
	"time"
)

func (s *ExchangeTestSuite) TestCancelOrder_Canceled() {
	order := s.createdOrder("c1", "v1")

	ch := s.cancelAsync(CancelRequest{ClientOrderID: "c1"}, NewCancellationToken())
	call := s.nextCancel()
	s.Equal(ClientOrderID("c1"), call.clientOrderID)
	s.Equal(VenueOrderID("v1"), call.venueOrderID)
	s.Equal(StatusCanceling, order.Status())

	call.reply <- cancelReply{}

	r := s.result(ch)
	s.Require().NoError(r.err)
	s.Same(order, r.order)
	s.Equal(StatusCanceled, order.Status())
	s.Equal(SourceDirect, order.Snapshot().CancellationSource)
	s.eventually(func() bool { return s.sink.CountOf(CancelOrderSucceeded, "c1") == 1 })
}

func (s *ExchangeTestSuite) TestCancelOrder_ByVenueID() {
	order := s.createdOrder("c1", "v1")

	ch := s.cancelAsync(CancelRequest{VenueOrderID: "v1"}, NewCancellationToken())
	s.nextCancel().reply <- cancelReply{}

	r := s.result(ch)
	s.Require().NoError(r.err)
	s.Same(order, r.order)
	s.Equal(StatusCanceled, order.Status())
}

func (s *ExchangeTestSuite) TestCancelOrder_RejectedThenRetried() {
	order := s.createdOrder("c1", "v1")

	ch := s.cancelAsync(CancelRequest{ClientOrderID: "c1"}, NewCancellationToken())
	s.nextCancel().reply <- cancelReply{ack: CancelOrderAck{Rejection: NewVenueError(ErrorKindRejected, "too late")}}

	r := s.result(ch)
	var venueErr *VenueError
	s.Require().True(errors.As(r.err, &venueErr))
	s.Equal(ErrorKindRejected, venueErr.Kind)
	s.Equal(StatusFailedToCancel, order.Status())
	s.eventually(func() bool { return s.sink.CountOf(CancelOrderFailed, "c1") == 1 })

	// a failed cancel may be retried
	ch = s.cancelAsync(CancelRequest{ClientOrderID: "c1"}, NewCancellationToken())
	s.nextCancel().reply <- cancelReply{}

	r = s.result(ch)
	s.Require().NoError(r.err)
	s.Equal(StatusCanceled, order.Status())
	s.Nil(order.Snapshot().LastCancellationError)
}

func (s *ExchangeTestSuite) TestCancelOrder_JoinsInFlightCancel() {
	order := s.createdOrder("c1", "v1")

	first := s.cancelAsync(CancelRequest{ClientOrderID: "c1"}, NewCancellationToken())
	call := s.nextCancel()

	second := s.cancelAsync(CancelRequest{ClientOrderID: "c1"}, NewCancellationToken())
	s.eventually(func() bool { return s.ex.canceled.Has("c1") })

	select {
	case <-s.venue.cancels:
		s.Fail("a joined cancel must not be sent twice")
	case <-time.After(20 * time.Millisecond):
	}

	call.reply <- cancelReply{}

	for _, ch := range []<-chan opResult{first, second} {
		r := s.result(ch)
		s.Require().NoError(r.err)
		s.Same(order, r.order)
	}
	s.Equal(StatusCanceled, order.Status())
}

func (s *ExchangeTestSuite) TestCancelOrder_NotificationFirst() {
	order := s.createdOrder("c1", "v1")

	ch := s.cancelAsync(CancelRequest{ClientOrderID: "c1"}, NewCancellationToken())
	call := s.nextCancel()

	s.NoError(s.ex.HandleCancelOrderSucceeded("", "v1", SourceFallback))

	r := s.result(ch)
	s.Require().NoError(r.err)
	s.Equal(StatusCanceled, order.Status())

	call.reply <- cancelReply{}
	s.eventually(func() bool {
		return s.outcomes(handlerCancelSucceeded, SourceDirect, outcomeDuplicate) == 1
	})
	s.Equal(SourceFallback, order.Snapshot().CancellationSource)
	s.eventually(func() bool { return s.sink.CountOf(CancelOrderSucceeded, "c1") == 1 })
}

func (s *ExchangeTestSuite) TestCancelOrder_FillWinsRace() {
	order := s.createdOrder("c1", "v1")

	ch := s.cancelAsync(CancelRequest{ClientOrderID: "c1"}, NewCancellationToken())
	call := s.nextCancel()

	s.NoError(s.ex.HandleOrderCompleted("c1", SourceFallback))

	r := s.result(ch)
	s.Require().NoError(r.err)
	s.Equal(StatusCompleted, order.Status())

	call.reply <- cancelReply{ack: CancelOrderAck{Rejection: NewVenueError(ErrorKindOrderNotFound, "filled")}}
	s.eventually(func() bool {
		return s.outcomes(handlerCancelFailed, SourceDirect, outcomeDuplicate) == 1
	})
	s.Equal(StatusCompleted, order.Status())
}

func (s *ExchangeTestSuite) TestCancelOrder_AlreadyGone() {
	order := s.createdOrder("c1", "v1")
	s.Require().NoError(s.ex.HandleCancelOrderSucceeded("c1", "v1", SourceFallback))

	r, err := s.ex.CancelOrder(CancelRequest{ClientOrderID: "c1"}, NewCancellationToken())
	s.NoError(err)
	s.Same(order, r)
	s.Empty(s.venue.cancels)
}

func (s *ExchangeTestSuite) TestCancelOrder_InvalidRequests() {
	_, err := s.ex.CancelOrder(CancelRequest{}, NewCancellationToken())
	s.ErrorIs(err, ErrInvalidParam)

	_, err = s.ex.CancelOrder(CancelRequest{ClientOrderID: "ghost"}, NewCancellationToken())
	s.ErrorIs(err, ErrOrderNotFound)

	order := NewOrder(newTestSpec("c1"))
	s.Require().NoError(s.ex.Registry().RegisterProvisional(order))
	_, err = s.ex.CancelOrder(CancelRequest{ClientOrderID: "c1"}, NewCancellationToken())
	s.ErrorIs(err, ErrUnexpectedStatus)
	s.Equal(StatusCreating, order.Status())
}

func (s *ExchangeTestSuite) TestCancelOrder_Cancelled() {
	order := s.createdOrder("c1", "v1")

	token := NewCancellationToken()
	ch := s.cancelAsync(CancelRequest{ClientOrderID: "c1"}, token)
	call := s.nextCancel()

	token.Cancel()

	r := s.result(ch)
	s.ErrorIs(r.err, ErrCancelled)
	s.Equal(StatusCanceling, order.Status())

	call.reply <- cancelReply{}
	s.eventually(func() bool { return order.Status() == StatusCanceled })
}

func (s *ExchangeTestSuite) TestCancelOrder_TransportError() {
	order := s.createdOrder("c1", "v1")

	ch := s.cancelAsync(CancelRequest{ClientOrderID: "c1"}, NewCancellationToken())
	s.nextCancel().reply <- cancelReply{err: NewVenueError(ErrorKindParsingError, "html error page")}

	r := s.result(ch)
	s.ErrorIs(r.err, ErrTransport)
	s.True(IsParsingError(r.err))
	s.Equal(StatusCanceling, order.Status())
}

func (s *ExchangeTestSuite) TestHandleCancelOrderSucceeded() {
	// the venue may cancel on its own
	order := s.createdOrder("c1", "v1")
	s.NoError(s.ex.HandleCancelOrderSucceeded("c1", "v1", SourceFallback))
	s.Equal(StatusCanceled, order.Status())

	s.NoError(s.ex.HandleCancelOrderSucceeded("c1", "v1", SourcePoll))
	s.Equal(float64(1), s.outcomes(handlerCancelSucceeded, SourcePoll, outcomeDuplicate))

	s.NoError(s.ex.HandleCancelOrderSucceeded("ghost", "", SourceFallback))
	s.Equal(float64(1), s.outcomes(handlerCancelSucceeded, SourceFallback, outcomeUnknownOrder))

	s.NoError(s.ex.HandleCancelOrderSucceeded("", "", SourceFallback))
	s.Equal(float64(1), s.outcomes(handlerCancelSucceeded, SourceNone, outcomeMalformed))

	creating := NewOrder(newTestSpec("c2"))
	s.Require().NoError(s.ex.Registry().RegisterProvisional(creating))
	s.ErrorIs(s.ex.HandleCancelOrderSucceeded("c2", "", SourceFallback), ErrUnexpectedStatus)
	s.Equal(StatusCreating, creating.Status())
}

func (s *ExchangeTestSuite) TestHandleCancelOrderFailed() {
	order := s.createdOrder("c1", "v1")

	s.ErrorIs(s.ex.HandleCancelOrderFailed("c1", NewVenueError(ErrorKindRejected, "no"), SourceFallback), ErrUnexpectedStatusForFailure)
	s.Equal(StatusCreated, order.Status())

	s.ErrorIs(s.ex.HandleCancelOrderFailed("ghost", nil, SourceFallback), ErrOrderNotFound)

	s.Require().NoError(s.ex.HandleCancelOrderSucceeded("c1", "v1", SourceFallback))
	s.ErrorIs(s.ex.HandleCancelOrderFailed("c1", nil, SourcePoll), ErrContradictoryNotification)
	s.Equal(StatusCanceled, order.Status())
	s.Equal(float64(1), s.outcomes(handlerCancelFailed, SourcePoll, outcomeContradictory))
}

func (s *ExchangeTestSuite) TestHandleOrderCompleted() {
	order := s.createdOrder("c1", "v1")

	s.NoError(s.ex.HandleOrderCompleted("c1", SourceFallback))
	s.Equal(StatusCompleted, order.Status())
	s.NoError(s.ex.HandleOrderCompleted("c1", SourcePoll))
	s.Equal(float64(1), s.outcomes(handlerCompleted, SourcePoll, outcomeDuplicate))

	s.NoError(s.ex.HandleOrderCompleted("ghost", SourceFallback))

	creating := NewOrder(newTestSpec("c2"))
	s.Require().NoError(s.ex.Registry().RegisterProvisional(creating))
	s.ErrorIs(s.ex.HandleOrderCompleted("c2", SourceFallback), ErrUnexpectedStatus)

	s.eventually(func() bool { return s.sink.CountOf(OrderCompleted, "c1") == 1 })
	s.eventually(func() bool {
		stats, ok := s.stats.Stats("Binance0|phb/btc")
		return ok && stats.CompletedOrdersCount == 1
	})
}

func (s *ExchangeTestSuite) TestWaitOrderCanceled() {
	order := s.createdOrder("c1", "v1")

	done := make(chan error, 1)
	go func() {
		done <- s.ex.WaitOrderCanceled(order, NewCancellationToken())
	}()
	s.eventually(func() bool { return s.ex.canceled.Has("c1") })

	s.NoError(s.ex.HandleCancelOrderSucceeded("c1", "v1", SourceFallback))

	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(time.Second):
		s.FailNow("waiter was not woken")
	}

	// resolved orders return at once
	s.NoError(s.ex.WaitOrderCanceled(order, NewCancellationToken()))
	s.False(s.ex.canceled.Has("c1"))
}

func (s *ExchangeTestSuite) TestWaitOrderCanceled_NotCreated() {
	order := NewOrder(newTestSpec("c1"))
	s.Require().NoError(s.ex.Registry().RegisterProvisional(order))

	s.ErrorIs(s.ex.WaitOrderCanceled(order, NewCancellationToken()), ErrUnexpectedStatus)
}

func (s *ExchangeTestSuite) TestWaitOrderCanceled_Cancelled() {
	order := s.createdOrder("c1", "v1")

	token := NewCancellationToken()
	token.Cancel()
	s.ErrorIs(s.ex.WaitOrderCanceled(order, token), ErrCancelled)
}
