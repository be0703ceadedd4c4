package execution

import (
	"context"
	"sync"
	"sync/atomic"
)

type submitCall struct {
	spec  OrderSpec
	reply chan submitReply
}

type submitReply struct {
	ack CreateOrderAck
	err error
}

type cancelCall struct {
	clientOrderID ClientOrderID
	venueOrderID  VenueOrderID
	reply         chan cancelReply
}

type cancelReply struct {
	ack CancelOrderAck
	err error
}

// fakeVenue is a VenueClient driven by the test: every submit and cancel
// request is handed out on a channel and blocks until the test replies.
type fakeVenue struct {
	submits chan submitCall
	cancels chan cancelCall

	mu       sync.Mutex
	infos    map[ClientOrderID]OrderInfo
	infoErr  error
	infoHits map[ClientOrderID]int

	metadataFailures atomic.Int32
	metadataCalls    atomic.Int32
	symbols          []*Symbol
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{
		submits:  make(chan submitCall, 16),
		cancels:  make(chan cancelCall, 16),
		infos:    make(map[ClientOrderID]OrderInfo),
		infoHits: make(map[ClientOrderID]int),
	}
}

func (v *fakeVenue) SubmitOrder(ctx context.Context, spec OrderSpec) (CreateOrderAck, error) {
	call := submitCall{spec: spec, reply: make(chan submitReply, 1)}
	v.submits <- call

	select {
	case r := <-call.reply:
		return r.ack, r.err
	case <-ctx.Done():
		return CreateOrderAck{}, ctx.Err()
	}
}

func (v *fakeVenue) CancelOrder(ctx context.Context, clientOrderID ClientOrderID, venueOrderID VenueOrderID, _ CurrencyPair) (CancelOrderAck, error) {
	call := cancelCall{clientOrderID: clientOrderID, venueOrderID: venueOrderID, reply: make(chan cancelReply, 1)}
	v.cancels <- call

	select {
	case r := <-call.reply:
		return r.ack, r.err
	case <-ctx.Done():
		return CancelOrderAck{}, ctx.Err()
	}
}

func (v *fakeVenue) GetOrderInfo(_ context.Context, clientOrderID ClientOrderID, venueOrderID VenueOrderID, _ CurrencyPair) (OrderInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.infoHits[clientOrderID]++
	if v.infoErr != nil {
		return OrderInfo{}, v.infoErr
	}
	info, ok := v.infos[clientOrderID]
	if !ok {
		return OrderInfo{ClientOrderID: clientOrderID, VenueOrderID: venueOrderID, State: VenueOrderUnknown}, nil
	}
	return info, nil
}

func (v *fakeVenue) RequestMetadata(_ context.Context) ([]byte, error) {
	v.metadataCalls.Add(1)
	if v.metadataFailures.Load() > 0 {
		v.metadataFailures.Add(-1)
		return nil, NewVenueError(ErrorKindNetwork, "connection reset")
	}
	return []byte("symbols"), nil
}

func (v *fakeVenue) ParseMetadata(raw []byte) ([]*Symbol, error) {
	if string(raw) != "symbols" {
		return nil, NewVenueError(ErrorKindParsingError, "unexpected payload")
	}
	return v.symbols, nil
}

func (v *fakeVenue) setInfo(info OrderInfo) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.infos[info.ClientOrderID] = info
}

func (v *fakeVenue) setInfoErr(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.infoErr = err
}

func (v *fakeVenue) hits(id ClientOrderID) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.infoHits[id]
}
