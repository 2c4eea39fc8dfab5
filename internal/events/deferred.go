package events

import (
	"context"
	"errors"
	"sync"
)

// Publisher is the subset of EventBus that deferred events are flushed to.
type Publisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type deferredKey struct{}

type deferredEvent struct {
	publisher Publisher
	eventType string
	payload   interface{}
}

// Deferred queues events raised inside a transaction until it commits.
type Deferred struct {
	mu     sync.Mutex
	events []deferredEvent
}

// WithDeferred returns a context under which publishers that check
// DeferredFrom queue their events on the returned Deferred.
func WithDeferred(ctx context.Context) (context.Context, *Deferred) {
	d := &Deferred{}
	return context.WithValue(ctx, deferredKey{}, d), d
}

// DeferredFrom returns the queue carried by ctx, or nil.
func DeferredFrom(ctx context.Context) *Deferred {
	d, _ := ctx.Value(deferredKey{}).(*Deferred)
	return d
}

func (d *Deferred) Add(publisher Publisher, eventType string, payload interface{}) {
	if publisher == nil {
		return
	}
	d.mu.Lock()
	d.events = append(d.events, deferredEvent{publisher: publisher, eventType: eventType, payload: payload})
	d.mu.Unlock()
}

// Flush publishes the queued events in order and empties the queue. Dropping
// the Deferred without flushing discards them.
func (d *Deferred) Flush() error {
	d.mu.Lock()
	pending := d.events
	d.events = nil
	d.mu.Unlock()

	var errs []error
	for _, e := range pending {
		if err := e.publisher.PublishJSON(e.eventType, e.payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
