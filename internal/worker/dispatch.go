package worker

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/A6-9V/sw-proxy/internal/metrics"
)

// EventType is the tag of an inbound event
type EventType string

const (
	EventInstall           EventType = "install"
	EventActivate          EventType = "activate"
	EventFetch             EventType = "fetch"
	EventMessage           EventType = "message"
	EventPush              EventType = "push"
	EventNotificationClick EventType = "notificationclick"
)

// Event is one inbound event. Only the fields of its type are read.
type Event struct {
	Type EventType

	Request *http.Request // fetch
	Message Message       // message
	Port    Port          // message, optional
	Payload []byte        // push
	Tag     string        // notificationclick
}

// Pending is the outcome of a dispatched event. The host keeps the worker alive until it resolves.
type Pending struct {
	done   chan struct{}
	result *FetchResult
	err    error
}

// Done is closed once the event is handled
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the event is handled or ctx ends.
// The result is only set for fetch events.
func (p *Pending) Wait(ctx context.Context) (*FetchResult, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Handler handles one event type
type Handler func(ctx context.Context, ev Event) (*FetchResult, error)

// Dispatcher maps event tags to worker handlers
type Dispatcher struct {
	handlers map[EventType]Handler
}

// NewDispatcher routes the standard events to w
func NewDispatcher(w *Worker) *Dispatcher {
	d := &Dispatcher{handlers: map[EventType]Handler{}}

	d.Handle(EventInstall, func(ctx context.Context, _ Event) (*FetchResult, error) {
		if err := w.Install(ctx); err != nil {
			return nil, err
		}
		// An installed worker that asked to skip waiting activates right away
		if w.SkipWaitingRequested() {
			return nil, w.Activate(ctx)
		}
		return nil, nil
	})
	d.Handle(EventActivate, func(ctx context.Context, _ Event) (*FetchResult, error) {
		return nil, w.Activate(ctx)
	})
	d.Handle(EventFetch, func(ctx context.Context, ev Event) (*FetchResult, error) {
		if ev.Request == nil {
			return nil, fmt.Errorf("fetch event without request")
		}
		return w.Fetch(ctx, ev.Request)
	})
	d.Handle(EventMessage, func(ctx context.Context, ev Event) (*FetchResult, error) {
		return nil, w.HandleMessage(ctx, ev.Message, ev.Port)
	})
	d.Handle(EventPush, func(ctx context.Context, ev Event) (*FetchResult, error) {
		return nil, w.HandlePush(ctx, ev.Payload)
	})
	d.Handle(EventNotificationClick, func(ctx context.Context, ev Event) (*FetchResult, error) {
		return nil, w.HandleNotificationClick(ctx, ev.Tag)
	})
	return d
}

// Handle registers h for t, replacing any previous handler
func (d *Dispatcher) Handle(t EventType, h Handler) {
	d.handlers[t] = h
}

// Dispatch runs the handler of ev in its own goroutine
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) *Pending {
	p := &Pending{done: make(chan struct{})}

	h, ok := d.handlers[ev.Type]
	if !ok {
		p.err = fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
		close(p.done)
		return p
	}

	go func() {
		defer close(p.done)
		p.result, p.err = h(ctx, ev)

		result := "ok"
		if p.err != nil {
			result = "error"
			logrus.Debugf("Event %s failed: %v", ev.Type, p.err)
		}
		if ev.Type != EventFetch {
			metrics.LifecycleTotal.WithLabelValues(string(ev.Type), result).Inc()
		}
	}()
	return p
}
