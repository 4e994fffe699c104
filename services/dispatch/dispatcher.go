// Package dispatch fans decoded push events out to registered observers.
package dispatch

import (
	"sync"

	"partnerdesk/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Observer receives every event published after it subscribed.
type Observer func(models.Event)

type subscription struct {
	id       string
	observer Observer
}

// Dispatcher keeps observers in subscription order. Publish iterates a copy of
// the list, so subscribing or unsubscribing mid-pass only affects later events.
type Dispatcher struct {
	mu     sync.Mutex
	subs   []subscription
	logger *zap.Logger
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{logger: logger}
}

// Subscribe registers o and returns a function that removes it. The returned
// function is safe to call more than once.
func (d *Dispatcher) Subscribe(o Observer) func() {
	id := uuid.New().String()
	d.mu.Lock()
	d.subs = append(d.subs, subscription{id: id, observer: o})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { d.remove(id) })
	}
}

func (d *Dispatcher) remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, s := range d.subs {
		if s.id == id {
			next := make([]subscription, 0, len(d.subs)-1)
			next = append(next, d.subs[:i]...)
			d.subs = append(next, d.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers evt to every current observer.
func (d *Dispatcher) Publish(evt models.Event) {
	d.mu.Lock()
	pass := d.subs
	d.mu.Unlock()

	for _, s := range pass {
		d.deliver(s, evt)
	}
}

// Len returns the number of registered observers.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

func (d *Dispatcher) deliver(s subscription, evt models.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("observer panicked",
				zap.String("subscription", s.id),
				zap.String("event", string(evt.Type())),
				zap.Any("panic", r))
		}
	}()
	s.observer(evt)
}
