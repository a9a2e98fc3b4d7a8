package blobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []*BlobEvent
}

func (r *eventRecorder) record(evt *BlobEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) types() []BlobEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var types []BlobEventType
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}

func TestStreamingIndexPublishesCommittedChanges(t *testing.T) {
	index := NewStreamingIndex(givenStore())
	rec := &eventRecorder{}
	index.GetEventStream().Subscribe(rec.record)

	blob := givenBlob(time.Now())
	require.NoError(t, index.Create(context.Background(), blob))
	removed, err := index.Delete(context.Background(), blob.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	assert.Equal(t, []BlobEventType{EventUploaded, EventDeleted}, rec.types())
	assert.Equal(t, blob.ID, rec.events[0].Blob.ID)
	assert.Equal(t, blob.ID, rec.events[1].BlobID)
	assert.Nil(t, rec.events[1].Blob)
}

func TestStreamingIndexIgnoresNoOpChanges(t *testing.T) {
	index := NewStreamingIndex(givenStore())
	rec := &eventRecorder{}
	index.GetEventStream().Subscribe(rec.record)

	blob := givenBlob(time.Now())
	require.NoError(t, index.Create(context.Background(), blob))
	assert.Error(t, index.Create(context.Background(), blob))
	for i := 0; i < 2; i++ {
		_, err := index.Delete(context.Background(), blob.ID)
		require.NoError(t, err)
	}

	assert.Equal(t, []BlobEventType{EventUploaded, EventDeleted}, rec.types())
}

func TestStreamingIndexPublishesOneDeleteForConcurrentDeletes(t *testing.T) {
	withStores(t, func(t *testing.T, store Store) {
		index := NewStreamingIndex(store)
		rec := &eventRecorder{}
		index.GetEventStream().Subscribe(rec.record)

		blob := givenBlob(time.Now())
		require.NoError(t, index.Create(context.Background(), blob))

		var wg sync.WaitGroup
		errs := make([]error, 8)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = index.Delete(context.Background(), blob.ID)
			}(i)
		}
		wg.Wait()

		for _, err := range errs {
			assert.NoError(t, err)
		}
		assert.Equal(t, []BlobEventType{EventUploaded, EventDeleted}, rec.types())
	})
}

func TestServicePublishesThroughStreamingIndex(t *testing.T) {
	store := givenStore()
	index := NewStreamingIndex(store)
	rec := &eventRecorder{}
	index.GetEventStream().Subscribe(rec.record)
	svc := NewService(store, index, WithChunkSize(testChunkSize))

	blob, err := svc.Upload(context.Background(), givenUpload("f", randomBytes(50)))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), blob.ID))

	assert.Equal(t, []BlobEventType{EventUploaded, EventDeleted}, rec.types())
}

func TestEventStreamUnsubscribe(t *testing.T) {
	var stream EventStream
	first, second := &eventRecorder{}, &eventRecorder{}
	sub := stream.Subscribe(first.record)
	stream.Subscribe(second.record)
	assert.Equal(t, 2, stream.Length())

	stream.Publish(&BlobEvent{Type: EventDeleted, BlobID: "a"})
	stream.Unsubscribe(sub)
	stream.Unsubscribe(sub)
	stream.Publish(&BlobEvent{Type: EventDeleted, BlobID: "b"})

	assert.Len(t, first.events, 1)
	assert.Len(t, second.events, 2)
	assert.Equal(t, 1, stream.Length())
}
