// Package events carries form state changes to whoever renders the form.
package events

import (
	"sync"
	"time"
)

type Kind string

const (
	KindFieldChanged     Kind = "field_changed"
	KindImagesChanged    Kind = "images_changed"
	KindUploadingChanged Kind = "uploading_changed"
	KindUploadFailed     Kind = "upload_failed"
	KindSaved            Kind = "saved"
	KindSaveFailed       Kind = "save_failed"
	KindNavigate         Kind = "navigate"
)

// Event is a single state change. Value holds the new field value, the image list,
// the uploading flag or the navigation target depending on Kind.
type Event struct {
	Kind    Kind        `json:"kind"`
	Field   string      `json:"field,omitempty"`
	Value   interface{} `json:"value,omitempty"`
	BatchID string      `json:"batch_id,omitempty"`
	Error   string      `json:"error,omitempty"`
	At      time.Time   `json:"at"`
}

// Publisher is implemented by Broker; components only need to emit.
type Publisher interface {
	Publish(e Event)
}

// Broker fans events out to subscribers. Slow subscribers lose events instead of
// blocking the publisher.
type Broker struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	buffer int
	closed bool
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broker{
		subs:   make(map[int]chan Event),
		buffer: buffer,
	}
}

// Subscribe registers a listener. The returned cancel func is idempotent.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

func (b *Broker) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close ends every subscription.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
