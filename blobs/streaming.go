package blobs

import (
	"context"
	"sync"

	"github.com/Sarthakshelke9895/Cloud/model"
)

// BlobEventType is the kind of change recorded by a BlobEvent
type BlobEventType string

const (
	// EventUploaded is published once a blob's index entry is committed
	EventUploaded BlobEventType = "uploaded"
	// EventDeleted is published once a blob's index entry is removed
	EventDeleted BlobEventType = "deleted"
)

// BlobEvent describes a committed change to the index
type BlobEvent struct {
	Type   BlobEventType `json:"type"`
	BlobID string        `json:"id"`
	Blob   *model.Blob   `json:"blob,omitempty"`
}

// Subscription is a handle returned by EventStream.Subscribe
type Subscription struct {
	fn func(*BlobEvent)
}

// EventStream fans BlobEvents out to subscribers. The zero value is ready to use.
type EventStream struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// Subscribe registers fn for every subsequently published event
func (es *EventStream) Subscribe(fn func(*BlobEvent)) *Subscription {
	es.mu.Lock()
	defer es.mu.Unlock()
	if es.subs == nil {
		es.subs = make(map[*Subscription]struct{})
	}
	sub := &Subscription{fn: fn}
	es.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes a subscription, it is safe to call more than once
func (es *EventStream) Unsubscribe(sub *Subscription) {
	es.mu.Lock()
	delete(es.subs, sub)
	es.mu.Unlock()
}

// Publish delivers evt to all current subscribers on the calling goroutine
func (es *EventStream) Publish(evt *BlobEvent) {
	es.mu.RLock()
	fns := make([]func(*BlobEvent), 0, len(es.subs))
	for sub := range es.subs {
		fns = append(fns, sub.fn)
	}
	es.mu.RUnlock()

	for _, fn := range fns {
		fn(evt)
	}
}

// Length returns the number of subscribers
func (es *EventStream) Length() int {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return len(es.subs)
}

// StreamingIndex decorates an Index by publishing committed changes to an EventStream
type StreamingIndex struct {
	Index
	stream *EventStream
}

// NewStreamingIndex wraps an existing index to provide a stream of events
func NewStreamingIndex(target Index) *StreamingIndex {
	return &StreamingIndex{Index: target, stream: &EventStream{}}
}

// GetEventStream returns the stream events are published to
func (s *StreamingIndex) GetEventStream() *EventStream {
	return s.stream
}

// Create implements Index
func (s *StreamingIndex) Create(ctx context.Context, blob *model.Blob) error {
	if err := s.Index.Create(ctx, blob); err != nil {
		return err
	}
	s.stream.Publish(&BlobEvent{Type: EventUploaded, BlobID: blob.ID, Blob: blob.Clone()})
	return nil
}

// Delete implements Index, publishing only when an entry was actually removed
func (s *StreamingIndex) Delete(ctx context.Context, blobID string) (bool, error) {
	removed, err := s.Index.Delete(ctx, blobID)
	if err != nil || !removed {
		return removed, err
	}
	s.stream.Publish(&BlobEvent{Type: EventDeleted, BlobID: blobID})
	return true, nil
}
