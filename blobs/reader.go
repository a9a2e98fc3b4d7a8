package blobs

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/Sarthakshelke9895/Cloud/model"
	"github.com/zeebo/blake3"
)

// blobReader reassembles a blob from its chunk iterator, pulling one chunk
// at a time as the consumer reads
type blobReader struct {
	blob   *model.Blob
	it     ChunkIterator
	buf    []byte
	seq    int
	hasher *blake3.Hasher
	err    error
}

func newBlobReader(blob *model.Blob, it ChunkIterator) *blobReader {
	return &blobReader{blob: blob, it: it, hasher: blake3.New()}
}

func (r *blobReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(r.buf) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		if !r.it.Next() {
			r.err = r.finish()
			continue
		}
		chunk := r.it.Chunk()
		if chunk.Seq != r.seq || len(chunk.Data) != r.blob.ChunkLength(chunk.Seq) {
			r.err = model.NewStorageError("read_chunk", r.blob.ID,
				fmt.Errorf("chunk %d has length %d, expected chunk %d of length %d", chunk.Seq, len(chunk.Data), r.seq, r.blob.ChunkLength(r.seq)))
			continue
		}
		r.hasher.Write(chunk.Data)
		r.buf = chunk.Data
		r.seq++
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *blobReader) finish() error {
	if err := r.it.Err(); err != nil {
		var storageErr *model.StorageError
		switch {
		case errors.Is(err, model.ErrBlobNotFound), errors.Is(err, context.Canceled),
			errors.Is(err, context.DeadlineExceeded), errors.As(err, &storageErr):
			return err
		}
		return model.NewStorageError("read_chunk", r.blob.ID, err)
	}
	if r.seq != r.blob.ChunkCount() {
		return model.NewStorageError("read_chunk", r.blob.ID, fmt.Errorf("stream ended after %d of %d chunks", r.seq, r.blob.ChunkCount()))
	}
	if r.blob.Digest != "" && hex.EncodeToString(r.hasher.Sum(nil)) != r.blob.Digest {
		return model.NewStorageError("read_chunk", r.blob.ID, errors.New("content digest mismatch"))
	}
	return io.EOF
}

// Close releases the underlying chunk iterator
func (r *blobReader) Close() error {
	return r.it.Close()
}
