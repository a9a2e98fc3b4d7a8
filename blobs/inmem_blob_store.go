package blobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sarthakshelke9895/Cloud/model"
	"github.com/Sarthakshelke9895/Cloud/sharding"
	"github.com/cespare/xxhash/v2"
)

type memChunk struct {
	data      []byte
	checksum  uint64
	writtenAt time.Time
}

type memEntry struct {
	blob      *model.Blob
	insertSeq uint64
}

type memShard struct {
	mu     sync.RWMutex
	chunks map[string]map[int]*memChunk
	index  map[string]*memEntry
}

// InMemBlobStore keeps chunks and index entries in memory, partitioned into
// shards that are locked independently
type InMemBlobStore struct {
	shards    []*memShard
	extractor sharding.ShardExtractor
	insertSeq uint64
	now       func() time.Time
}

// NewInMemBlobStore creates an in-mem blob store - use this for testing or
// throwaway deployments, content is lost on exit
func NewInMemBlobStore(extractor sharding.ShardExtractor) *InMemBlobStore {
	shards := make([]*memShard, extractor.ShardCount())
	for i := range shards {
		shards[i] = &memShard{
			chunks: make(map[string]map[int]*memChunk),
			index:  make(map[string]*memEntry),
		}
	}
	log.WithField("shard_count", len(shards)).Info("Creating in-memory blob store")
	return &InMemBlobStore{shards: shards, extractor: extractor, now: time.Now}
}

func (s *InMemBlobStore) shard(blobID string) *memShard {
	idx, err := s.extractor.ShardID(blobID)
	if err != nil {
		idx = int(xxhash.Sum64String(blobID) % uint64(len(s.shards)))
	}
	return s.shards[idx]
}

// PutChunk implements ChunkStore
func (s *InMemBlobStore) PutChunk(ctx context.Context, blobID string, seq int, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	chunk := &memChunk{data: stored, checksum: xxhash.Sum64(stored), writtenAt: s.now()}

	sh := s.shard(blobID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	chunks, ok := sh.chunks[blobID]
	if !ok {
		chunks = make(map[int]*memChunk)
		sh.chunks[blobID] = chunks
	}
	if _, exists := chunks[seq]; exists {
		return model.ErrBlobExists
	}
	chunks[seq] = chunk
	return nil
}

// ReadChunks implements ChunkStore
func (s *InMemBlobStore) ReadChunks(ctx context.Context, blobID string, count int) ChunkIterator {
	sh := s.shard(blobID)
	return newChunkIterator(ctx, blobID, count, func(ctx context.Context, seq int) ([]byte, error) {
		sh.mu.RLock()
		chunk, ok := sh.chunks[blobID][seq]
		sh.mu.RUnlock()
		if !ok {
			return nil, model.ErrBlobNotFound
		}
		if xxhash.Sum64(chunk.data) != chunk.checksum {
			return nil, model.NewStorageError("read_chunk", blobID, fmt.Errorf("checksum mismatch on chunk %d", seq))
		}
		return chunk.data, nil
	})
}

// DeleteChunks implements ChunkStore
func (s *InMemBlobStore) DeleteChunks(ctx context.Context, blobID string) error {
	sh := s.shard(blobID)
	sh.mu.Lock()
	delete(sh.chunks, blobID)
	sh.mu.Unlock()
	return nil
}

// OrphanCandidates implements ChunkStore
func (s *InMemBlobStore) OrphanCandidates(ctx context.Context, writtenBefore time.Time) ([]string, error) {
	var ids []string
	for _, sh := range s.shards {
		sh.mu.RLock()
		for blobID, chunks := range sh.chunks {
			var newest time.Time
			for _, c := range chunks {
				if c.writtenAt.After(newest) {
					newest = c.writtenAt
				}
			}
			if newest.Before(writtenBefore) {
				ids = append(ids, blobID)
			}
		}
		sh.mu.RUnlock()
	}
	return ids, nil
}

// Create implements Index
func (s *InMemBlobStore) Create(ctx context.Context, blob *model.Blob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sh := s.shard(blob.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, exists := sh.index[blob.ID]; exists {
		return model.ErrBlobExists
	}
	sh.index[blob.ID] = &memEntry{blob: blob.Clone(), insertSeq: atomic.AddUint64(&s.insertSeq, 1)}
	return nil
}

// Get implements Index
func (s *InMemBlobStore) Get(ctx context.Context, blobID string) (*model.Blob, error) {
	sh := s.shard(blobID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	entry, ok := sh.index[blobID]
	if !ok {
		return nil, model.ErrBlobNotFound
	}
	return entry.blob.Clone(), nil
}

// List implements Index
func (s *InMemBlobStore) List(ctx context.Context) ([]*model.Blob, error) {
	var entries []*memEntry
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, e := range sh.index {
			entries = append(entries, e)
		}
		sh.mu.RUnlock()
	}

	sort.Slice(entries, func(i, j int) bool {
		ti, tj := entries[i].blob.UploadedAt, entries[j].blob.UploadedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return entries[i].insertSeq > entries[j].insertSeq
	})

	result := make([]*model.Blob, 0, len(entries))
	for _, e := range entries {
		result = append(result, e.blob.Clone())
	}
	return result, nil
}

// Delete implements Index
func (s *InMemBlobStore) Delete(ctx context.Context, blobID string) (bool, error) {
	sh := s.shard(blobID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, found := sh.index[blobID]
	delete(sh.index, blobID)
	return found, nil
}

// Close implements Store
func (s *InMemBlobStore) Close() error {
	return nil
}
