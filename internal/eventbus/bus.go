package eventbus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity is the default per-subscriber channel buffer. Emission
// never blocks the producer: once a subscriber's buffer is full, further
// events are dropped for that subscriber and counted as lag until it
// catches up.
const DefaultCapacity = 256

// Subscription is a single consumer's view of the bus. Events arrive in
// emission order; a Lag event is spliced in whenever events were
// dropped for this subscriber, carrying the count so the consumer can
// resync (e.g. by requesting a snapshot out-of-band).
type Subscription struct {
	ID     string
	Events <-chan Event

	bus *Bus
	ch  chan Event

	// mu serializes send against close: a consumer may Close while a
	// producer is mid-Publish on another goroutine, and a send on a
	// closed channel panics even inside a select.
	mu      sync.Mutex
	closed  bool
	lagging int64
}

// Close unsubscribes and closes the event channel. Safe to call more
// than once, and safe concurrently with in-flight publishes.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s.ID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Bus is a typed multi-producer/multi-consumer broadcast channel.
// Emission with no subscribers is a no-op, never an error, so agent
// runs proceed whether or not a UI is attached.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
	cap  int
	log  *slog.Logger
}

// New creates an Event Bus. capacity is the per-subscriber buffer size;
// zero or negative selects DefaultCapacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		subs: make(map[string]*Subscription),
		cap:  capacity,
		log:  slog.Default(),
	}
}

// Subscribe registers a new consumer and returns its subscription. The
// caller must eventually call Close to release resources.
func (b *Bus) Subscribe() *Subscription {
	ch := make(chan Event, b.cap)
	sub := &Subscription{
		ID:     uuid.NewString(),
		Events: ch,
		bus:    b,
		ch:     ch,
	}

	b.mu.Lock()
	b.subs[sub.ID] = sub
	b.mu.Unlock()

	return sub
}

// unsubscribe removes the subscription from the fan-out set. The
// channel itself is closed by Subscription.Close under the
// subscription's own lock.
func (b *Bus) unsubscribe(id string) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Publish broadcasts an event to every current subscriber without
// blocking. Subscribers are snapshotted under a read lock so a slow
// consumer never stalls the producer or other consumers.
func (b *Bus) Publish(e Event) {
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}

	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		s.send(e)
	}
}

// send delivers one event to this subscriber's channel, never blocking.
// A closed subscription drops the event silently; a full channel drops
// it and records lag, which is flushed as a synthetic Lag event the
// next time a send succeeds.
func (s *Subscription) send(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if s.lagging > 0 {
		select {
		case s.ch <- Event{Type: Lag, RunID: e.RunID, Timestamp: e.Timestamp, LagCount: int(s.lagging)}:
			s.lagging = 0
		default:
			s.lagging++
			return
		}
	}

	select {
	case s.ch <- e:
	default:
		s.lagging++
		slog.Warn("event bus subscriber lagging, dropping event",
			slog.String("subscriber", s.ID),
			slog.String("event_type", string(e.Type)),
			slog.Int64("lag_count", s.lagging),
		)
	}
}

// SubscriberCount reports the number of currently attached consumers.
// Used by callers deciding whether a snapshot event is worth emitting.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
