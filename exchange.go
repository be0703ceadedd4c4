package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/0x5487/order-execution/protocol"
)

// ExchangeOption configures an Exchange.
type ExchangeOption func(*Exchange)

// WithRecorder sets the hook called with every applied transition.
func WithRecorder(recorder Recorder) ExchangeOption {
	return func(ex *Exchange) {
		ex.recorder = recorder
	}
}

// WithMetrics sets the counters the exchange reports to.
func WithMetrics(metrics *Metrics) ExchangeOption {
	return func(ex *Exchange) {
		ex.metrics = metrics
	}
}

// WithSerializer sets the decoder used by ApplyRawNotification.
func WithSerializer(serializer protocol.Serializer) ExchangeOption {
	return func(ex *Exchange) {
		ex.serializer = serializer
	}
}

// WithEventSink subscribes a sink before the exchange starts.
func WithEventSink(sink EventSink) ExchangeOption {
	return func(ex *Exchange) {
		ex.emitter.Subscribe(sink)
	}
}

// Exchange is the execution facade of one venue account. It creates and
// cancels orders through a VenueClient and reconciles every notification about
// them, whatever channel it arrives through, into the shared OrderRegistry.
type Exchange struct {
	isShutdown atomic.Bool

	settings Settings
	client   VenueClient
	registry *OrderRegistry

	created  *Rendezvous
	canceled *Rendezvous

	emitter    *EventEmitter
	recorder   Recorder
	metrics    *Metrics
	serializer protocol.Serializer
	poller     *poller
	metadata   atomic.Pointer[Metadata]

	// lifetime is cancelled on Shutdown and stops background work.
	lifetime *CancellationToken
	wg       sync.WaitGroup
}

// NewExchange creates an exchange over an explicitly owned registry. Several
// exchanges may share one registry.
func NewExchange(settings Settings, client VenueClient, registry *OrderRegistry, opts ...ExchangeOption) (*Exchange, error) {
	settings.applyDefaults()
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("%w: venue client required", ErrInvalidParam)
	}
	if registry == nil {
		return nil, fmt.Errorf("%w: order registry required", ErrInvalidParam)
	}

	ex := &Exchange{
		settings:   settings,
		client:     client,
		registry:   registry,
		created:    NewRendezvous(),
		canceled:   NewRendezvous(),
		emitter:    NewEventEmitter(settings.EventBufferSize),
		recorder:   discardRecorder{},
		serializer: protocol.DefaultJSONSerializer{},
		lifetime:   NewCancellationToken(),
	}

	for _, opt := range opts {
		opt(ex)
	}

	if ex.metrics == nil {
		ex.metrics = NewMetrics(nil)
	}
	ex.poller = newPoller(ex)

	return ex, nil
}

// Start launches event delivery and, when enabled, the fallback poller.
func (ex *Exchange) Start() {
	ex.emitter.Start()

	if ex.settings.PollEnabled {
		ex.wg.Add(1)
		go func() {
			defer ex.wg.Done()
			ex.poller.run(ex.lifetime)
		}()
	}
}

// Shutdown stops accepting new operations, stops the poller and waits until
// queued events were delivered or ctx is done.
func (ex *Exchange) Shutdown(ctx context.Context) error {
	ex.isShutdown.Store(true)
	ex.lifetime.Cancel()

	done := make(chan struct{})
	go func() {
		ex.wg.Wait()
		close(done)
	}()

	var errs []error
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	if err := ex.emitter.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (ex *Exchange) AccountID() AccountID {
	return ex.settings.AccountID
}

// Events returns the emitter lifecycle events are broadcast on.
func (ex *Exchange) Events() *EventEmitter {
	return ex.emitter
}

// Registry returns the registry the exchange reconciles into.
func (ex *Exchange) Registry() *OrderRegistry {
	return ex.registry
}

// Lookup returns the order with the given client order id.
func (ex *Exchange) Lookup(clientOrderID ClientOrderID) (*Order, bool) {
	return ex.registry.LookupByClientID(clientOrderID)
}

// LookupByVenueID returns the order the venue knows under venueOrderID.
func (ex *Exchange) LookupByVenueID(venueOrderID VenueOrderID) (*Order, bool) {
	return ex.registry.LookupByVenueID(venueOrderID)
}

// ApplyNotification routes a decoded venue notification to its reconciliation
// handler. Notifications for other accounts are ignored.
func (ex *Exchange) ApplyNotification(n *protocol.Notification) error {
	if n == nil {
		return nil
	}
	if n.AccountID != "" && AccountID(n.AccountID) != ex.settings.AccountID {
		logger().Debug("notification for another account ignored",
			"account_id", ex.settings.AccountID,
			"notification_account_id", n.AccountID,
		)
		return nil
	}

	source := SourceFallback
	if n.Source != "" {
		parsed, err := ParseEventSourceType(n.Source)
		if err != nil {
			ex.dropMalformed(n.Type.String(), err)
			return nil
		}
		source = parsed
	}

	clientID := ClientOrderID(n.ClientOrderID)
	venueID := VenueOrderID(n.VenueOrderID)

	switch n.Type {
	case protocol.NotifyCreateSuccess:
		return ex.HandleCreateOrderSucceeded(clientID, venueID, source)
	case protocol.NotifyCreateFailure:
		return ex.HandleCreateOrderFailed(clientID, notificationError(n), source)
	case protocol.NotifyCancelSuccess:
		return ex.HandleCancelOrderSucceeded(clientID, venueID, source)
	case protocol.NotifyCancelFailure:
		return ex.HandleCancelOrderFailed(clientID, notificationError(n), source)
	case protocol.NotifyCompleted:
		return ex.HandleOrderCompleted(clientID, source)
	default:
		ex.dropMalformed(n.Type.String(), fmt.Errorf("unknown notification type %d", n.Type))
		return nil
	}
}

// ApplyRawNotification decodes a notification with the configured serializer
// and applies it. Undecodable payloads are dropped.
func (ex *Exchange) ApplyRawNotification(data []byte) error {
	n := &protocol.Notification{}
	if err := ex.serializer.Unmarshal(data, n); err != nil {
		ex.dropMalformed("raw", err)
		return nil
	}
	return ex.ApplyNotification(n)
}

func (ex *Exchange) dropMalformed(handler string, err error) {
	logger().Error("malformed notification dropped",
		"account_id", ex.settings.AccountID,
		"handler", handler,
		"error", fmt.Errorf("%w: %w", ErrMalformedNotification, err),
	)
	ex.metrics.notification(ex.settings.AccountID, handler, SourceNone, outcomeMalformed)
}

func notificationError(n *protocol.Notification) *VenueError {
	kind := ErrorKind(n.ErrorKind)
	if kind == "" {
		kind = ErrorKindUnknown
	}
	return NewVenueError(kind, n.Message)
}

// publish hands an applied transition to the recorder and the event stream.
// It must be called after the order's lock is released and never waits on
// the event sinks.
func (ex *Exchange) publish(eventType OrderEventType, source EventSourceType, snapshot OrderSnapshot) {
	ex.recorder.Save(snapshot)
	if !ex.emitter.Emit(newOrderEvent(eventType, source, snapshot)) {
		ex.metrics.EventsDropped.WithLabelValues(string(ex.settings.AccountID), string(eventType)).Inc()
	}
}

// waitResolved blocks until resolved reports true for the order's status,
// using table as the wake-up signal.
func (ex *Exchange) waitResolved(table *Rendezvous, order *Order, resolved func(OrderStatus) bool, token *CancellationToken) error {
	if resolved(order.Status()) {
		return nil
	}
	if err := token.ErrorIfCancelled(); err != nil {
		return err
	}

	id := order.ClientOrderID()
	slot := table.Slot(id)
	defer table.Release(id, slot)

	// the transition may have fired before the slot existed
	if resolved(order.Status()) {
		table.Fire(id)
		return nil
	}

	select {
	case <-slot:
		return nil
	case <-token.WhenCancelled():
		return ErrCancelled
	}
}
