package lws

import (
	"context"
	"net/http"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/dustin/go-humanize"
)

// observerRegistration holds information about a registered observer.
type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool // set of event types this observer is interested in
	registeredAt time.Time
}

// Aggregator fans verbose events from independently created sources (the
// server handle, sockets, the certificate watcher, user factories) into one
// ordered stream. It implements Subject, so aggregators compose: an
// aggregator can itself be propagated into a higher-level aggregator.
//
// The aggregator also owns the two monotonic id counters (connections and
// requests). Keeping them on the instance rather than in package state means
// multiple server instances in one process never share identifiers.
type Aggregator struct {
	mu        sync.Mutex
	observers []*observerRegistration // registration order = delivery order
	logger    Logger

	nextConnID    int64
	nextRequestID int64
}

var _ Subject = (*Aggregator)(nil)

// NewAggregator creates an event aggregator. A nil logger is replaced with a
// no-op logger.
func NewAggregator(logger Logger) *Aggregator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Aggregator{logger: logger}
}

// RegisterObserver adds an observer to receive notifications. Observers can
// optionally filter events by type; an empty eventTypes subscribes to all.
// A late subscriber misses events emitted before registration.
func (a *Aggregator) RegisterObserver(observer Observer, eventTypes ...string) error {
	if observer == nil {
		return ErrObserverNil
	}

	eventTypeMap := make(map[string]bool)
	for _, eventType := range eventTypes {
		eventTypeMap[eventType] = true
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Re-registering replaces the previous subscription in place so the
	// observer keeps its original position in the delivery order.
	for _, registration := range a.observers {
		if registration.observer.ObserverID() == observer.ObserverID() {
			registration.observer = observer
			registration.eventTypes = eventTypeMap
			return nil
		}
	}

	a.observers = append(a.observers, &observerRegistration{
		observer:     observer,
		eventTypes:   eventTypeMap,
		registeredAt: time.Now(),
	})
	return nil
}

// UnregisterObserver removes an observer. Idempotent.
func (a *Aggregator) UnregisterObserver(observer Observer) error {
	if observer == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for i, registration := range a.observers {
		if registration.observer.ObserverID() == observer.ObserverID() {
			a.observers = append(a.observers[:i], a.observers[i+1:]...)
			return nil
		}
	}
	return nil
}

// NotifyObservers delivers an event to every interested observer, in
// registration order. Delivery is synchronous: the stream's ordering
// guarantee is that each observer sees events in emission order, so events
// must not overtake each other inside the aggregator.
func (a *Aggregator) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	if event.Time().IsZero() {
		event.SetTime(time.Now())
	}

	a.mu.Lock()
	registrations := make([]*observerRegistration, len(a.observers))
	copy(registrations, a.observers)
	a.mu.Unlock()

	for _, registration := range registrations {
		if len(registration.eventTypes) > 0 && !registration.eventTypes[event.Type()] {
			continue
		}
		a.deliver(ctx, registration.observer, event)
	}
	return nil
}

// deliver invokes one observer, containing panics and errors so a misbehaving
// listener never breaks the stream for the others.
func (a *Aggregator) deliver(ctx context.Context, observer Observer, event cloudevents.Event) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Observer panicked", "observerID", observer.ObserverID(), "event", event.Type(), "panic", r)
		}
	}()

	if err := observer.OnEvent(ctx, event); err != nil {
		a.logger.Error("Observer error", "observerID", observer.ObserverID(), "event", event.Type(), "error", err)
	}
}

// GetObservers returns information about currently registered observers.
func (a *Aggregator) GetObservers() []ObserverInfo {
	a.mu.Lock()
	defer a.mu.Unlock()

	info := make([]ObserverInfo, 0, len(a.observers))
	for _, registration := range a.observers {
		eventTypes := make([]string, 0, len(registration.eventTypes))
		for eventType := range registration.eventTypes {
			eventTypes = append(eventTypes, eventType)
		}
		info = append(info, ObserverInfo{
			ID:           registration.observer.ObserverID(),
			EventTypes:   eventTypes,
			RegisteredAt: registration.registeredAt,
		})
	}
	return info
}

// Propagate subscribes to a source Subject and re-emits its events on this
// aggregator's stream, unchanged and in the source's emission order. Sources
// can themselves be aggregators, so propagation composes into arbitrarily
// nested fan-in trees; each emitted event is observed exactly once at the
// outermost listener.
func (a *Aggregator) Propagate(source Subject) error {
	forwarder := NewFunctionalObserver("propagate-"+generateEventID(), func(ctx context.Context, event cloudevents.Event) error {
		return a.NotifyObservers(ctx, event)
	})
	if err := source.RegisterObserver(forwarder); err != nil {
		return err
	}
	return nil
}

// Emit builds a verbose event with the given key and payload and delivers it.
func (a *Aggregator) Emit(ctx context.Context, key string, data any) {
	if err := a.NotifyObservers(ctx, NewVerboseEvent(key, "lws", data)); err != nil {
		a.logger.Debug("Failed to emit event", "key", key, "error", err)
	}
}

// connectionID assigns the next connection id. Ids start at 1, increase
// monotonically and are never reused within the aggregator's lifetime, even
// after the socket closes.
func (a *Aggregator) connectionID() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextConnID++
	return a.nextConnID
}

// requestID assigns the next request id from a counter independent of the
// connection counter.
func (a *Aggregator) requestID() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextRequestID++
	return a.nextRequestID
}

// socketPayload is the payload shape shared by all socket lifecycle events.
// Byte counters are always rendered as human-readable strings, never raw
// numbers.
type socketPayload struct {
	SocketID     int64  `json:"socketId"`
	BytesRead    string `json:"bytesRead"`
	BytesWritten string `json:"bytesWritten"`
}

// emitSocket emits one socket lifecycle event with refreshed byte counters.
func (a *Aggregator) emitSocket(ctx context.Context, key string, record *ConnectionRecord) {
	a.Emit(ctx, key, socketPayload{
		SocketID:     record.ID,
		BytesRead:    humanize.Bytes(uint64(record.BytesRead())),
		BytesWritten: humanize.Bytes(uint64(record.BytesWritten())),
	})
}

// emitSocketError reports a non-fatal socket error on the stream. Socket
// errors never propagate into the caller's control flow.
func (a *Aggregator) emitSocketError(ctx context.Context, err error) {
	a.Emit(ctx, EventSocketError, map[string]any{"err": err.Error()})
}

// requestIDKey carries the verbose request id through the request context.
type requestIDKey struct{}

// RequestID returns the verbose request id assigned to the request by the
// aggregator's request middleware, or 0 when the middleware is not installed.
func RequestID(ctx context.Context) int64 {
	if id, ok := ctx.Value(requestIDKey{}).(int64); ok {
		return id
	}
	return 0
}

// requestMiddleware assigns each inbound request its RequestRecord id, once,
// at first observation. The id rides the request context.
func (a *Aggregator) requestMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), requestIDKey{}, a.requestID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Instrument wires a server handle into this aggregator before it starts
// listening: the handle's own lifecycle events are propagated onto this
// stream, and every accepted socket is wrapped so its transitions become
// verbose events carrying ids from this aggregator's counters.
func (a *Aggregator) Instrument(handle *ServerHandle) error {
	if err := a.Propagate(handle); err != nil {
		return err
	}
	handle.monitor = a
	return nil
}
