package feed

import (
	"context"
	"errors"
	"sync"
	"time"
)

const defaultBufferSize = 64

// ErrLagged reports that a subscriber fell behind and its stream was closed.
var ErrLagged = errors.New("feed: subscriber lagged behind")

// EventType classifies a document change.
type EventType string

const (
	EventInserted EventType = "inserted"
	EventUpdated  EventType = "updated"
	EventDeleted  EventType = "deleted"
)

// Change describes a committed write to one document.
type Change struct {
	Collection string
	DocumentID string
	Type       EventType
	PartyIDs   []string
	Timestamp  time.Time
}

// Dispatcher fans committed changes out to the subscribers of every party they touch.
type Dispatcher struct {
	mu          sync.Mutex
	subscribers map[string]map[int64]*Subscription
	nextID      int64
	bufferSize  int
}

// Subscription is one live registration for a party id.
type Subscription struct {
	id       int64
	partyID  string
	stream   chan Change
	done     chan struct{}
	closed   bool
	lagged   bool
	dispatch *Dispatcher
}

func NewDispatcher(bufferSize int) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Dispatcher{
		subscribers: make(map[string]map[int64]*Subscription),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers interest in changes touching partyID until ctx ends or Close is called.
func (d *Dispatcher) Subscribe(ctx context.Context, partyID string) *Subscription {
	subscription := &Subscription{
		partyID:  partyID,
		stream:   make(chan Change, d.bufferSize),
		done:     make(chan struct{}),
		dispatch: d,
	}
	if partyID == "" {
		subscription.closed = true
		close(subscription.stream)
		close(subscription.done)
		return subscription
	}

	d.mu.Lock()
	d.nextID++
	subscription.id = d.nextID
	if _, ok := d.subscribers[partyID]; !ok {
		d.subscribers[partyID] = make(map[int64]*Subscription)
	}
	d.subscribers[partyID][subscription.id] = subscription
	d.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			subscription.Close()
		case <-subscription.done:
		}
	}()
	return subscription
}

// Publish delivers the change to every subscriber of its parties without blocking.
func (d *Dispatcher) Publish(change Change) {
	if change.Collection == "" || change.DocumentID == "" || change.Type == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	seen := make(map[string]struct{}, len(change.PartyIDs))
	for _, partyID := range change.PartyIDs {
		if _, dup := seen[partyID]; dup {
			continue
		}
		seen[partyID] = struct{}{}
		for _, subscriber := range d.subscribers[partyID] {
			select {
			case subscriber.stream <- change:
			default:
				subscriber.lagged = true
				d.unregisterLocked(subscriber)
			}
		}
	}
}

// SubscriberCount reports live subscriptions for partyID.
func (d *Dispatcher) SubscriberCount(partyID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subscribers[partyID])
}

func (d *Dispatcher) unregisterLocked(subscription *Subscription) {
	if subscription.closed {
		return
	}
	subscription.closed = true
	close(subscription.stream)
	close(subscription.done)
	subscribers := d.subscribers[subscription.partyID]
	if subscribers != nil {
		delete(subscribers, subscription.id)
		if len(subscribers) == 0 {
			delete(d.subscribers, subscription.partyID)
		}
	}
}

// C returns the change stream. It is closed on Close, context end or lag.
func (s *Subscription) C() <-chan Change {
	return s.stream
}

// Close stops delivery. Safe to call more than once.
func (s *Subscription) Close() {
	if s.dispatch == nil {
		return
	}
	s.dispatch.mu.Lock()
	s.dispatch.unregisterLocked(s)
	s.dispatch.mu.Unlock()
}

// Err returns ErrLagged when the stream was closed because the subscriber fell behind.
func (s *Subscription) Err() error {
	if s.dispatch == nil {
		return nil
	}
	s.dispatch.mu.Lock()
	defer s.dispatch.mu.Unlock()
	if s.lagged {
		return ErrLagged
	}
	return nil
}
