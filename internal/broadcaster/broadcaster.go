// Package broadcaster implements the Event Broadcaster (C6): a topic-based
// pub/sub bus with bounded per-subscriber buffers and drop-oldest overflow,
// so a slow subscriber can never block a writer.
package broadcaster

import (
	"log/slog"
	"sync"
)

// Topic names for lifecycle events, per spec.md §4.6.
const (
	TopicAlertNew     = "alert.new"
	TopicAlertUpdate  = "alert.update"
	TopicAlertExpire  = "alert.expire"
	TopicSourceNew    = "source.new"
	TopicSourceUpdate = "source.update"
	TopicSourceDelete = "source.delete"
)

// DefaultSubscriberBuffer is the default bounded channel size per
// subscriber before drop-oldest kicks in.
const DefaultSubscriberBuffer = 64

// Event is one published message: a topic name and its canonical payload
// (a full alert or source record).
type Event struct {
	Topic   string
	Payload any
}

// Broadcaster fans events out to subscribers. Per-topic emission order
// matches the order Publish was called for that topic; there is no
// ordering guarantee across topics (spec.md §4.6).
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[int]*subscriber
	nextID      int
	bufferSize  int
	log         *slog.Logger
}

type subscriber struct {
	ch chan Event
}

// New builds a Broadcaster. log may be nil.
func New(log *slog.Logger) *Broadcaster {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Broadcaster{
		subscribers: make(map[int]*subscriber),
		bufferSize:  DefaultSubscriberBuffer,
		log:         log,
	}
}

// Subscribe registers a new subscriber and returns its event channel plus
// an unsubscribe function. The channel is never closed by Publish; call
// unsubscribe to release it.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan Event, b.bufferSize)}
	b.subscribers[id] = sub

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subscribers[id]; ok {
			close(s.ch)
			delete(b.subscribers, id)
		}
	}
	return sub.ch, unsubscribe
}

// Publish delivers an event to every current subscriber. Delivery is
// non-blocking: if a subscriber's buffer is full, its oldest queued event
// is dropped to make room, so a slow consumer never blocks the writer
// (spec.md §5 "prefer a bounded per-subscriber outbound buffer and
// drop-oldest on overflow").
func (b *Broadcaster) Publish(topic string, payload any) {
	event := Event{Topic: topic, Payload: payload}

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subscribers {
		select {
		case sub.ch <- event:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- event:
			default:
				b.log.Warn("broadcaster: dropping event for saturated subscriber", "subscriber", id, "topic", topic)
			}
		}
	}
}

// SubscriberCount reports the number of currently connected subscribers,
// exposed through the stats snapshot.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
