package blobs

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Sarthakshelke9895/Cloud/model"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
)

const (
	// DefaultMaxBlobSize bounds the in-memory upload buffer
	DefaultMaxBlobSize int64 = 64 << 20

	maxIDAttempts   = 2
	rollbackTimeout = 30 * time.Second
)

// Service implements the upload, download, listing and deletion pipelines
// over a ChunkStore and an Index
type Service struct {
	chunks      ChunkStore
	index       Index
	chunkSize   int
	maxBlobSize int64
	newID       func() (string, error)
	now         func() time.Time

	clockMu    sync.Mutex
	lastUpload time.Time

	pendingMu sync.Mutex
	pending   map[string]struct{}
}

// Option configures a Service
type Option func(*Service)

// WithChunkSize sets the number of bytes written per chunk
func WithChunkSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithMaxBlobSize sets the largest accepted upload
func WithMaxBlobSize(size int64) Option {
	return func(s *Service) {
		if size > 0 {
			s.maxBlobSize = size
		}
	}
}

// WithIDGenerator replaces the blob id generator
func WithIDGenerator(fn func() (string, error)) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// WithClock replaces the source of upload timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a blob service over the given chunk store and index
func NewService(chunks ChunkStore, index Index, opts ...Option) *Service {
	s := &Service{
		chunks:      chunks,
		index:       index,
		chunkSize:   model.DefaultChunkSize,
		maxBlobSize: DefaultMaxBlobSize,
		newID:       model.NewBlobID,
		now:         time.Now,
		pending:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ChunkSize returns the chunk size used for new uploads
func (s *Service) ChunkSize() int {
	return s.chunkSize
}

// MaxBlobSize returns the largest accepted upload
func (s *Service) MaxBlobSize() int64 {
	return s.maxBlobSize
}

// Upload writes an in-memory upload as a sequence of chunks and then commits
// its index entry. The blob is not visible until the entry is committed, and
// a failed or cancelled upload leaves neither an entry nor chunks behind.
func (s *Service) Upload(ctx context.Context, upload *model.Upload) (*model.Blob, error) {
	if upload == nil {
		return nil, model.ErrMissingFile
	}
	if int64(len(upload.Data)) > s.maxBlobSize {
		return nil, model.ErrBlobTooLarge
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		blobID, err := s.freshID(ctx)
		if errors.Is(err, model.ErrBlobExists) {
			log.WithField("blob_id", blobID).Warn("Generated blob id collides with an existing blob, regenerating")
			continue
		}
		if err != nil {
			return nil, err
		}

		blob, err := s.writeBlob(ctx, blobID, upload)
		s.release(blobID)
		if errors.Is(err, model.ErrBlobExists) {
			log.WithField("blob_id", blobID).Warn("Blob id was taken during upload, regenerating")
			continue
		}
		if err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{"blob_id": blob.ID, "blob_length": blob.Length, "content_type": blob.ContentType}).Info("Stored blob")
		return blob, nil
	}
	return nil, model.ErrIDExhausted
}

// freshID generates an id and reserves it for the calling upload. A reserved
// id must be released once the upload has committed or failed.
func (s *Service) freshID(ctx context.Context) (string, error) {
	blobID, err := s.newID()
	if err != nil {
		return "", fmt.Errorf("generating blob id: %w", err)
	}
	if !s.reserve(blobID) {
		return blobID, model.ErrBlobExists
	}
	_, err = s.index.Get(ctx, blobID)
	switch {
	case err == nil:
		s.release(blobID)
		return blobID, model.ErrBlobExists
	case errors.Is(err, model.ErrBlobNotFound):
		return blobID, nil
	default:
		s.release(blobID)
		return "", asStorageError("get_index", blobID, err)
	}
}

// reserve claims blobID for an in-flight upload, failing if another upload
// of this service holds it
func (s *Service) reserve(blobID string) bool {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if _, taken := s.pending[blobID]; taken {
		return false
	}
	s.pending[blobID] = struct{}{}
	return true
}

func (s *Service) release(blobID string) {
	s.pendingMu.Lock()
	delete(s.pending, blobID)
	s.pendingMu.Unlock()
}

func (s *Service) writeBlob(ctx context.Context, blobID string, upload *model.Upload) (*model.Blob, error) {
	data := upload.Data
	rollback := func(cause error) error {
		if errors.Is(cause, model.ErrBlobExists) {
			// the id belongs to another writer, its chunks are not ours to remove
			log.WithField("blob_id", blobID).Warn("Abandoned upload on an id owned by another writer, leaving chunks to garbage collection")
			return cause
		}
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
		defer cancel()
		if err := s.chunks.DeleteChunks(cleanupCtx, blobID); err != nil {
			log.WithField("blob_id", blobID).WithError(err).Error("Failed to roll back chunks of failed upload")
		} else {
			log.WithField("blob_id", blobID).WithError(cause).Warn("Rolled back failed upload")
		}
		return cause
	}

	for seq, off := 0, 0; off < len(data); seq, off = seq+1, off+s.chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, rollback(err)
		}
		end := min(off+s.chunkSize, len(data))
		if err := s.chunks.PutChunk(ctx, blobID, seq, data[off:end]); err != nil {
			return nil, rollback(asStorageError("put_chunk", blobID, err))
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, rollback(err)
	}

	digest := blake3.Sum256(data)
	uploadedAt := s.uploadTime()
	metadata := make(map[string]string, len(upload.Metadata)+1)
	for k, v := range upload.Metadata {
		metadata[k] = v
	}
	metadata[model.MetadataUploadedAt] = uploadedAt.Format(time.RFC3339Nano)
	blob := &model.Blob{
		ID:          blobID,
		Filename:    upload.Filename,
		ContentType: DetectContentType(upload.Filename, upload.ContentType, data),
		Length:      int64(len(data)),
		UploadedAt:  uploadedAt,
		Metadata:    metadata,
		ChunkSize:   s.chunkSize,
		Digest:      hex.EncodeToString(digest[:]),
	}
	if err := s.index.Create(ctx, blob); err != nil {
		return nil, rollback(asStorageError("create_index", blobID, err))
	}
	return blob, nil
}

// uploadTime returns a strictly increasing timestamp so that listing order
// matches commit order even within one clock tick
func (s *Service) uploadTime() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	now := s.now().UTC().Round(0)
	if !now.After(s.lastUpload) {
		now = s.lastUpload.Add(time.Nanosecond)
	}
	s.lastUpload = now
	return now
}

// Stat returns the index entry of a blob
func (s *Service) Stat(ctx context.Context, rawID string) (*model.Blob, error) {
	blobID, err := model.ParseBlobID(rawID)
	if err != nil {
		return nil, err
	}
	blob, err := s.index.Get(ctx, blobID)
	if err != nil {
		return nil, asStorageError("get_index", blobID, err)
	}
	return blob, nil
}

// Open resolves a blob and returns a reader streaming its content chunk by
// chunk. The caller must Close the reader; closing early is safe.
func (s *Service) Open(ctx context.Context, rawID string) (*model.Blob, io.ReadCloser, error) {
	blob, err := s.Stat(ctx, rawID)
	if err != nil {
		return nil, nil, err
	}
	it := s.chunks.ReadChunks(ctx, blob.ID, blob.ChunkCount())
	return blob, newBlobReader(blob, it), nil
}

// List returns all committed blobs, most recently uploaded first
func (s *Service) List(ctx context.Context) ([]*model.Blob, error) {
	blobs, err := s.index.List(ctx)
	if err != nil {
		return nil, asStorageError("list_index", "", err)
	}
	return blobs, nil
}

// Delete removes a blob's index entry and then its chunks. Deleting an
// unknown blob succeeds.
func (s *Service) Delete(ctx context.Context, rawID string) error {
	blobID, err := model.ParseBlobID(rawID)
	if err != nil {
		return err
	}
	removed, err := s.index.Delete(ctx, blobID)
	if err != nil {
		return asStorageError("delete_index", blobID, err)
	}
	if err := s.chunks.DeleteChunks(ctx, blobID); err != nil {
		return asStorageError("delete_chunks", blobID, err)
	}
	log.WithField("blob_id", blobID).WithField("removed", removed).Info("Deleted blob")
	return nil
}

// CollectGarbage removes chunks that belong to no index entry and were last
// written more than grace ago, returning the number of blobs reclaimed
func (s *Service) CollectGarbage(ctx context.Context, grace time.Duration) (int, error) {
	candidates, err := s.chunks.OrphanCandidates(ctx, s.now().Add(-grace))
	if err != nil {
		return 0, asStorageError("orphan_candidates", "", err)
	}

	collected := 0
	for _, blobID := range candidates {
		_, err := s.index.Get(ctx, blobID)
		if err == nil {
			continue
		}
		if !errors.Is(err, model.ErrBlobNotFound) {
			return collected, asStorageError("get_index", blobID, err)
		}
		if err := s.chunks.DeleteChunks(ctx, blobID); err != nil {
			return collected, asStorageError("delete_chunks", blobID, err)
		}
		log.WithField("blob_id", blobID).Info("Collected orphaned chunks")
		collected++
	}
	return collected, nil
}

// RunGarbageCollector calls CollectGarbage every interval until ctx is done
func (s *Service) RunGarbageCollector(ctx context.Context, interval time.Duration, grace time.Duration, collected func(int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.CollectGarbage(ctx, grace)
			if err != nil && ctx.Err() == nil {
				log.WithError(err).Error("Garbage collection failed")
			}
			if collected != nil && n > 0 {
				collected(n)
			}
		}
	}
}

// asStorageError leaves sentinel, context and already typed errors alone and
// wraps anything else as a StorageError
func asStorageError(op string, blobID string, err error) error {
	var storageErr *model.StorageError
	switch {
	case errors.Is(err, model.ErrBlobNotFound), errors.Is(err, model.ErrBlobExists),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &storageErr):
		return err
	}
	return model.NewStorageError(op, blobID, err)
}
