package execution

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"time"
)

// ErrDisruptorTimeout is returned when shutdown times out
var ErrDisruptorTimeout = errors.New("disruptor: shutdown timeout")

// EventHandler consumes events in publication order on the consumer goroutine.
type EventHandler[T any] interface {
	OnEvent(event T)
}

// spins before the idle consumer starts sleeping between polls
const idleSpins = 64

// RingBuffer is a multi-producer single-consumer ring. Producers never take a
// lock; they claim a sequence with CAS, write the slot and publish it.
type RingBuffer[T any] struct {
	_                [56]byte
	producerSequence atomic.Int64
	_                [56]byte
	consumerSequence atomic.Int64
	_                [56]byte

	buffer     []T
	bufferMask int64
	capacity   int64

	// published[i] holds the sequence last written to slot i
	published []int64

	handler EventHandler[T]

	isShutdown atomic.Bool
	running    atomic.Bool
	stopped    chan struct{}
}

// NewRingBuffer creates a ring of the given capacity, which must be a power of 2.
func NewRingBuffer[T any](capacity int64, handler EventHandler[T]) *RingBuffer[T] {
	if capacity <= 0 || (capacity&(capacity-1)) != 0 {
		panic("size must be a power of 2")
	}

	rb := &RingBuffer[T]{
		buffer:     make([]T, capacity),
		published:  make([]int64, capacity),
		capacity:   capacity,
		bufferMask: capacity - 1,
		handler:    handler,
		stopped:    make(chan struct{}),
	}

	rb.producerSequence.Store(-1)
	rb.consumerSequence.Store(-1)

	for i := range rb.published {
		atomic.StoreInt64(&rb.published[i], -1)
	}

	return rb
}

// Publish appends an event. It is safe for concurrent producers and returns
// false once the ring is shut down. When the ring is full Publish yields until
// the consumer frees a slot.
func (rb *RingBuffer[T]) Publish(event T) bool {
	if rb.isShutdown.Load() {
		return false
	}

	var nextSeq int64
	for {
		current := rb.producerSequence.Load()
		nextSeq = current + 1

		wrapPoint := nextSeq - rb.capacity
		if wrapPoint > rb.consumerSequence.Load() {
			if rb.isShutdown.Load() && !rb.running.Load() {
				return false
			}
			runtime.Gosched()
			continue
		}

		if rb.producerSequence.CompareAndSwap(current, nextSeq) {
			break
		}
		runtime.Gosched()
	}

	rb.store(nextSeq, event)
	return true
}

// TryPublish appends an event without waiting. It returns false when the ring
// is full or shut down, leaving the event to the caller.
func (rb *RingBuffer[T]) TryPublish(event T) bool {
	for {
		if rb.isShutdown.Load() {
			return false
		}

		current := rb.producerSequence.Load()
		nextSeq := current + 1
		if nextSeq-rb.capacity > rb.consumerSequence.Load() {
			return false
		}

		if rb.producerSequence.CompareAndSwap(current, nextSeq) {
			rb.store(nextSeq, event)
			return true
		}
	}
}

func (rb *RingBuffer[T]) store(seq int64, event T) {
	index := seq & rb.bufferMask
	rb.buffer[index] = event
	atomic.StoreInt64(&rb.published[index], seq)
}

// Start runs the consumer on a new goroutine.
func (rb *RingBuffer[T]) Start() {
	if !rb.running.CompareAndSwap(false, true) {
		return
	}
	go rb.loop()
}

// Run is the consumer loop. It returns after Shutdown once every claimed
// event has been handled.
func (rb *RingBuffer[T]) Run() {
	if !rb.running.CompareAndSwap(false, true) {
		return
	}
	rb.loop()
}

func (rb *RingBuffer[T]) loop() {
	defer close(rb.stopped)

	next := rb.consumerSequence.Load() + 1
	idle := 0

	for {
		shutdown := rb.isShutdown.Load()
		available := rb.producerSequence.Load()

		if next <= available {
			next = rb.consume(next, available)
			idle = 0
			continue
		}

		if shutdown {
			return
		}

		idle++
		if idle < idleSpins {
			runtime.Gosched()
		} else {
			time.Sleep(50 * time.Microsecond)
		}
	}
}

// consume hands events next..available to the handler and returns the next sequence.
func (rb *RingBuffer[T]) consume(next, available int64) int64 {
	var zero T
	for ; next <= available; next++ {
		index := next & rb.bufferMask

		// the producer claimed this slot but may not have written it yet
		for atomic.LoadInt64(&rb.published[index]) != next {
			runtime.Gosched()
		}

		event := rb.buffer[index]
		rb.buffer[index] = zero
		rb.handler.OnEvent(event)
		rb.consumerSequence.Store(next)
	}
	return next
}

// Shutdown stops accepting events and waits until the consumer drained the ring.
func (rb *RingBuffer[T]) Shutdown(ctx context.Context) error {
	rb.isShutdown.Store(true)

	if !rb.running.Load() {
		return nil
	}

	select {
	case <-rb.stopped:
		return nil
	case <-ctx.Done():
		return ErrDisruptorTimeout
	}
}

// ConsumerSequence returns the last handled sequence.
func (rb *RingBuffer[T]) ConsumerSequence() int64 {
	return rb.consumerSequence.Load()
}

// ProducerSequence returns the last claimed sequence.
func (rb *RingBuffer[T]) ProducerSequence() int64 {
	return rb.producerSequence.Load()
}

// PendingEvents returns the number of claimed but unhandled events.
func (rb *RingBuffer[T]) PendingEvents() int64 {
	return rb.producerSequence.Load() - rb.consumerSequence.Load()
}
