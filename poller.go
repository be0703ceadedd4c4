package execution

import (
	"context"
	"sync"
	"time"

	"github.com/huandu/skiplist"
)

// poll results
const (
	pollResolved  = "resolved"
	pollPending   = "pending"
	pollError     = "error"
	pollExhausted = "exhausted"
)

type pollKey struct {
	due int64 // unix nano
	id  ClientOrderID
}

type pollTask struct {
	id       ClientOrderID
	attempts int
}

// poller asks the venue for the status of orders that stay Creating or
// Canceling, and feeds the answer to the reconciliation handlers with source
// Poll. Tasks are kept in a skiplist ordered by due time.
type poller struct {
	ex *Exchange

	mu       sync.Mutex
	schedule *skiplist.SkipList // pollKey -> *pollTask
	pending  map[ClientOrderID]pollKey
}

func newPoller(ex *Exchange) *poller {
	return &poller{
		ex: ex,
		schedule: skiplist.New(skiplist.GreaterThanFunc(func(lhs, rhs any) int {
			k1, _ := lhs.(pollKey)
			k2, _ := rhs.(pollKey)

			switch {
			case k1.due > k2.due:
				return 1
			case k1.due < k2.due:
				return -1
			case k1.id > k2.id:
				return 1
			case k1.id < k2.id:
				return -1
			}
			return 0
		})),
		pending: make(map[ClientOrderID]pollKey),
	}
}

// track schedules the first poll of an order. An order already scheduled keeps its slot.
func (p *poller) track(id ClientOrderID) {
	if !p.ex.settings.PollEnabled {
		return
	}
	p.enqueue(&pollTask{id: id}, time.Now().Add(p.ex.settings.PollDelay))
}

func (p *poller) enqueue(task *pollTask, due time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.pending[task.id]; ok {
		return
	}
	key := pollKey{due: due.UnixNano(), id: task.id}
	p.schedule.Set(key, task)
	p.pending[task.id] = key
}

// size returns the number of scheduled polls.
func (p *poller) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.schedule.Len()
}

// run polls due tasks every PollInterval until token is cancelled.
func (p *poller) run(token *CancellationToken) {
	ticker := time.NewTicker(p.ex.settings.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			p.pollDue(now, token)
		case <-token.WhenCancelled():
			return
		}
	}
}

// pollDue polls every task due at or before now.
func (p *poller) pollDue(now time.Time, token *CancellationToken) {
	for _, task := range p.takeDue(now) {
		if token.IsCancelled() {
			return
		}
		p.poll(task)
	}
}

func (p *poller) takeDue(now time.Time) []*pollTask {
	p.mu.Lock()
	defer p.mu.Unlock()

	var due []*pollTask
	for {
		el := p.schedule.Front()
		if el == nil {
			break
		}
		key, _ := el.Key().(pollKey)
		if key.due > now.UnixNano() {
			break
		}
		p.schedule.Remove(key)
		delete(p.pending, key.id)
		due = append(due, el.Value.(*pollTask))
	}
	return due
}

func (p *poller) poll(task *pollTask) {
	ex := p.ex
	order, ok := ex.registry.LookupByClientID(task.id)
	if !ok {
		return
	}
	status := order.Status()
	if !isPollable(status) {
		return
	}

	venueID, _ := order.VenueOrderID()
	args := append(orderLogArgs(order.AccountID(), task.id, venueID), "status", status.String(), "attempt", task.attempts+1)

	ctx, cancel := context.WithTimeout(context.Background(), ex.settings.RequestTimeout)
	info, err := ex.client.GetOrderInfo(ctx, task.id, venueID, order.CurrencyPair())
	cancel()

	if err != nil {
		venueErr := asVenueError(err)
		ex.metrics.Polls.WithLabelValues(string(ex.settings.AccountID), pollError).Inc()
		logger().Warn("order status poll failed", append(args, "error", venueErr)...)

		// the venue never saw the order
		if status == StatusCreating && venueErr.Kind == ErrorKindOrderNotFound && task.attempts+1 >= ex.settings.PollMaxAttempts {
			p.reconcile(ex.HandleCreateOrderFailed(task.id, venueErr, SourcePoll), args)
			return
		}
		p.reschedule(task, args)
		return
	}

	p.apply(order, status, info, args)

	if isPollable(order.Status()) {
		ex.metrics.Polls.WithLabelValues(string(ex.settings.AccountID), pollPending).Inc()
		p.reschedule(task, args)
		return
	}
	ex.metrics.Polls.WithLabelValues(string(ex.settings.AccountID), pollResolved).Inc()
}

// apply translates the venue's view of the order into notifications.
func (p *poller) apply(order *Order, status OrderStatus, info OrderInfo, args []any) {
	ex := p.ex
	id := order.ClientOrderID()

	if status == StatusCreating {
		switch info.State {
		case VenueOrderOpen, VenueOrderFilled, VenueOrderCanceled:
			if err := ex.HandleCreateOrderSucceeded(id, info.VenueOrderID, SourcePoll); err != nil {
				p.reconcile(err, args)
				return
			}
			// the reply was dropped, e.g. it carried no venue id
			if order.Status() == StatusCreating {
				return
			}
		case VenueOrderRejected:
			venueErr := info.Error
			if venueErr == nil {
				venueErr = NewVenueError(ErrorKindRejected, "rejected by venue")
			}
			p.reconcile(ex.HandleCreateOrderFailed(id, venueErr, SourcePoll), args)
			return
		default:
			return
		}
	}

	switch info.State {
	case VenueOrderFilled:
		p.reconcile(ex.HandleOrderCompleted(id, SourcePoll), args)
	case VenueOrderCanceled:
		p.reconcile(ex.HandleCancelOrderSucceeded(id, info.VenueOrderID, SourcePoll), args)
	}
}

func (p *poller) reconcile(err error, args []any) {
	if err != nil {
		logger().Warn("poll result not applied", append(args, "error", err)...)
	}
}

func (p *poller) reschedule(task *pollTask, args []any) {
	task.attempts++
	if task.attempts >= p.ex.settings.PollMaxAttempts {
		p.ex.metrics.Polls.WithLabelValues(string(p.ex.settings.AccountID), pollExhausted).Inc()
		logger().Error("order still unresolved after polling, giving up", args...)
		return
	}
	delay := calculateBackoff(p.ex.settings.PollInterval, task.attempts)
	p.enqueue(task, time.Now().Add(delay))
}

func isPollable(s OrderStatus) bool {
	return s == StatusCreating || s == StatusCanceling
}
