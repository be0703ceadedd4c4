package execution

import (
	"github.com/prometheus/client_golang/prometheus"
)

// reconciliation outcomes
const (
	outcomeApplied       = "applied"
	outcomeDuplicate     = "duplicate"
	outcomeMalformed     = "malformed"
	outcomeContradictory = "contradictory"
	outcomeNotFound      = "not_found"
	outcomeUnexpected    = "unexpected"
	outcomeUnknownOrder  = "unknown_order"
)

// handler names
const (
	handlerCreateSucceeded = "create_succeeded"
	handlerCreateFailed    = "create_failed"
	handlerCancelSucceeded = "cancel_succeeded"
	handlerCancelFailed    = "cancel_failed"
	handlerCompleted       = "completed"
)

// Metrics are the counters of one Exchange.
type Metrics struct {
	OrdersSubmitted *prometheus.CounterVec
	Notifications   *prometheus.CounterVec
	Polls           *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them on reg. A nil reg leaves
// them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "execution_orders_submitted_total",
				Help: "Total number of create and cancel requests sent to the venue",
			},
			[]string{"account_id", "action"},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "execution_notifications_total",
				Help: "Reconciled notifications by handler, source and outcome",
			},
			[]string{"account_id", "handler", "source", "outcome"},
		),
		Polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "execution_polls_total",
				Help: "Fallback order status polls by result",
			},
			[]string{"account_id", "result"},
		),
		EventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "execution_events_dropped_total",
				Help: "Lifecycle events dropped because the event ring was full",
			},
			[]string{"account_id", "type"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.OrdersSubmitted, m.Notifications, m.Polls, m.EventsDropped)
	}
	return m
}

func (m *Metrics) notification(accountID AccountID, handler string, source EventSourceType, outcome string) {
	m.Notifications.WithLabelValues(string(accountID), handler, source.String(), outcome).Inc()
}
