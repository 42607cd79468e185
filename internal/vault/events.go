package vault

import (
	"sync"
	"time"
)

// EventType names a store lifecycle event.
type EventType string

const (
	EventIndexLoaded         EventType = "index-loaded"
	EventConversationSaved   EventType = "conversation-saved"
	EventSyncStarted         EventType = "sync-started"
	EventSyncCompleted       EventType = "sync-completed"
	EventSyncError           EventType = "sync-error"
	EventTitleUpdated        EventType = "title-updated"
	EventConversationDeleted EventType = "conversation-deleted"
)

// Event is one store lifecycle notification. Only the fields relevant to the
// event type are set.
type Event struct {
	Type           EventType   `json:"type"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Title          string      `json:"title,omitempty"`
	Conversations  int         `json:"conversations,omitempty"`
	Sync           *SyncResult `json:"sync,omitempty"`
	Error          string      `json:"error,omitempty"`
	Time           time.Time   `json:"time"`
}

// eventSubscriberBuffer is the per-subscriber channel depth. A subscriber
// that falls further behind loses events rather than stalling the store.
const eventSubscriberBuffer = 16

type eventBus struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[chan Event]struct{})}
}

func (b *eventBus) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, eventSubscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, unsubscribe
}

// emit delivers the event to every subscriber without blocking: a full
// channel drops the event for that subscriber.
func (b *eventBus) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	b.mu.Unlock()
}

// close tears down every subscriber channel. Later subscribe calls receive
// an already-closed channel.
func (b *eventBus) close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}
