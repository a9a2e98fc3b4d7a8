package blobs

import (
	"context"
	"io"
	"time"

	"github.com/Sarthakshelke9895/Cloud/model"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("logger", "blob_store")

// ChunkStore is durable storage for the ordered chunks of blobs.
// Chunks are correlated with index entries only by blob id.
type ChunkStore interface {
	// PutChunk stores chunk seq of a blob
	PutChunk(ctx context.Context, blobID string, seq int, data []byte) error

	// ReadChunks returns a lazy iterator over chunks 0..count-1 of a blob.
	// Each call starts a fresh sequence at seq 0.
	ReadChunks(ctx context.Context, blobID string, count int) ChunkIterator

	// DeleteChunks removes every chunk of a blob, deleting an unknown blob is not an error
	DeleteChunks(ctx context.Context, blobID string) error

	// OrphanCandidates lists blobs whose newest chunk was written before the given time
	OrphanCandidates(ctx context.Context, writtenBefore time.Time) ([]string, error)
}

// ChunkIterator yields the chunks of one blob in sequence order
type ChunkIterator interface {
	// Next fetches the next chunk, returning false at the end of the sequence or on error
	Next() bool
	// Chunk returns the chunk fetched by the last successful Next
	Chunk() *model.Chunk
	// Err returns the error that stopped the iteration, if any
	Err() error
	// Close releases the iterator, it never modifies stored state
	Close() error
}

// Index is the metadata catalog of stored blobs
type Index interface {
	// Create adds an entry, failing with model.ErrBlobExists if the id is taken
	Create(ctx context.Context, blob *model.Blob) error
	// Get returns the entry for a blob or model.ErrBlobNotFound
	Get(ctx context.Context, blobID string) (*model.Blob, error)
	// List returns all entries, most recently uploaded first
	List(ctx context.Context) ([]*model.Blob, error)
	// Delete removes an entry and reports whether one was present, deleting
	// an unknown blob is not an error
	Delete(ctx context.Context, blobID string) (bool, error)
}

// Store is a backend providing both chunk storage and the index
type Store interface {
	ChunkStore
	Index
	io.Closer
}

type fetchFunc func(ctx context.Context, seq int) ([]byte, error)

// chunkIterator fetches one chunk per Next call so that nothing beyond the
// current chunk is held on behalf of the consumer
type chunkIterator struct {
	ctx    context.Context
	blobID string
	count  int
	next   int
	fetch  fetchFunc
	cur    *model.Chunk
	err    error
	closed bool
}

func newChunkIterator(ctx context.Context, blobID string, count int, fetch fetchFunc) *chunkIterator {
	return &chunkIterator{ctx: ctx, blobID: blobID, count: count, fetch: fetch}
}

func (it *chunkIterator) Next() bool {
	it.cur = nil
	if it.closed || it.err != nil || it.next >= it.count {
		return false
	}
	if err := it.ctx.Err(); err != nil {
		it.err = err
		return false
	}
	data, err := it.fetch(it.ctx, it.next)
	if err != nil {
		it.err = err
		return false
	}
	it.cur = &model.Chunk{BlobID: it.blobID, Seq: it.next, Data: data}
	it.next++
	return true
}

func (it *chunkIterator) Chunk() *model.Chunk {
	return it.cur
}

func (it *chunkIterator) Err() error {
	return it.err
}

func (it *chunkIterator) Close() error {
	it.closed = true
	it.cur = nil
	return nil
}
