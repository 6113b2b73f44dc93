package auth

import (
	"context"
	"sync"
	"time"
)

// ChangeEvent names a session lifecycle transition.
type ChangeEvent string

const (
	EventSignedIn       ChangeEvent = "signed_in"
	EventSignedOut      ChangeEvent = "signed_out"
	EventTokenRefreshed ChangeEvent = "token_refreshed"
)

const defaultSubscriberBuffer = 16

// SessionChange is delivered to listeners and subscribers on every transition.
type SessionChange struct {
	Event     ChangeEvent
	Session   Session
	Timestamp time.Time
}

// ChangeListener is invoked synchronously for every published change.
type ChangeListener func(ctx context.Context, change SessionChange)

// ChangeNotifier fans session changes out to registered listeners and to
// per-identity stream subscribers.
type ChangeNotifier struct {
	mu          sync.RWMutex
	listeners   []ChangeListener
	subscribers map[string]map[int64]*changeSubscriber
	nextID      int64
	bufferSize  int
}

type changeSubscriber struct {
	id     int64
	stream chan SessionChange
}

func NewChangeNotifier() *ChangeNotifier {
	return &ChangeNotifier{
		subscribers: make(map[string]map[int64]*changeSubscriber),
		bufferSize:  defaultSubscriberBuffer,
	}
}

// OnChange registers a listener for every subsequent change.
func (n *ChangeNotifier) OnChange(listener ChangeListener) {
	if listener == nil {
		return
	}
	n.mu.Lock()
	n.listeners = append(n.listeners, listener)
	n.mu.Unlock()
}

// Subscribe streams changes for one identity until ctx is done or cleanup is called.
func (n *ChangeNotifier) Subscribe(ctx context.Context, identityID string) (<-chan SessionChange, func()) {
	if identityID == "" {
		ch := make(chan SessionChange)
		close(ch)
		return ch, func() {}
	}
	subscriber := &changeSubscriber{
		id:     n.nextSequence(),
		stream: make(chan SessionChange, n.bufferSize),
	}
	n.registerSubscriber(identityID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			n.unregisterSubscriber(identityID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers the change to listeners, then to the identity's subscribers.
// Slow subscribers drop changes rather than block the publisher.
func (n *ChangeNotifier) Publish(ctx context.Context, change SessionChange) {
	if change.Event == "" {
		return
	}
	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now().UTC()
	}

	n.mu.RLock()
	listeners := append([]ChangeListener(nil), n.listeners...)
	subscribers := n.subscribers[change.Session.Identity.ID]
	copies := make([]*changeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	n.mu.RUnlock()

	for _, listener := range listeners {
		listener(ctx, change)
	}

	// subscribers never see raw token material
	change.Session.Token = ""
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- change:
		default:
		}
	}
}

func (n *ChangeNotifier) nextSequence() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	return n.nextID
}

func (n *ChangeNotifier) registerSubscriber(identityID string, subscriber *changeSubscriber) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.subscribers[identityID]; !ok {
		n.subscribers[identityID] = make(map[int64]*changeSubscriber)
	}
	n.subscribers[identityID][subscriber.id] = subscriber
}

func (n *ChangeNotifier) unregisterSubscriber(identityID string, subscriberID int64) {
	n.mu.Lock()
	subscribers := n.subscribers[identityID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(n.subscribers, identityID)
		}
	}
	n.mu.Unlock()
}
