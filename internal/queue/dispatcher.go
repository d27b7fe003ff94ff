package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iliyamo/parking-reservation/internal/ledger"
)

// MessagePublisher is implemented by Publisher.
type MessagePublisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Dispatcher is the ledger's Emitter.  Emit places the event in a bounded
// buffer and returns immediately; a single worker publishes buffered
// events in order.  Events that do not fit in the buffer, or that fail to
// publish, are logged and dropped.
type Dispatcher struct {
	pub     MessagePublisher
	timeout time.Duration
	log     Logger

	events  chan ledger.Event
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewDispatcher starts the publishing worker.  buffer is the number of
// events that may wait for the worker; timeout bounds each publish.
func NewDispatcher(pub MessagePublisher, buffer int, timeout time.Duration, log Logger) *Dispatcher {
	if buffer < 1 {
		buffer = 1
	}
	d := &Dispatcher{
		pub:     pub,
		timeout: timeout,
		log:     log,
		events:  make(chan ledger.Event, buffer),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Emit never blocks.
func (d *Dispatcher) Emit(ev ledger.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		d.log.Warnf("event %s (%s) dropped: dispatcher closed", ev.ID, ev.Kind)
		return
	}
	select {
	case d.events <- ev:
	default:
		d.dropped.Add(1)
		d.log.Warnf("event %s (%s) dropped: buffer full", ev.ID, ev.Kind)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.events {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.pub.Publish(ctx, FromEvent(ev))
		cancel()
		if err != nil {
			d.failed.Add(1)
			d.log.Errorf("event %s (%s) not delivered: %v", ev.ID, ev.Kind, err)
		}
	}
}

// Close stops accepting events and waits until the buffered ones have
// been handed to the publisher or ctx expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.mu.Unlock()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns how many events were discarded without a publish attempt.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Failed returns how many publish attempts returned an error.
func (d *Dispatcher) Failed() uint64 { return d.failed.Load() }
