package model

import (
	"time"
)

// DefaultChunkSize is the number of bytes stored per chunk (255 KiB)
const DefaultChunkSize = 255 * 1024

// MetadataUploadedAt is the metadata tag recording the commit time of a blob (RFC 3339)
const MetadataUploadedAt = "uploadedAt"

// Blob is the index entry describing one stored blob
type Blob struct {
	ID          string            `json:"id"`
	Filename    string            `json:"filename"`
	ContentType string            `json:"contentType"`
	Length      int64             `json:"length"`
	UploadedAt  time.Time         `json:"uploadDate"`
	Metadata    map[string]string `json:"metadata"`

	// ChunkSize is the chunk size the blob was written with
	ChunkSize int `json:"-"`
	// Digest is the hex BLAKE3 digest of the whole content
	Digest string `json:"-"`
}

// ChunkCount returns the number of chunks holding the blob's content
func (b *Blob) ChunkCount() int {
	if b.Length == 0 || b.ChunkSize <= 0 {
		return 0
	}
	return int((b.Length + int64(b.ChunkSize) - 1) / int64(b.ChunkSize))
}

// ChunkLength returns the expected length of chunk seq
func (b *Blob) ChunkLength(seq int) int {
	count := b.ChunkCount()
	if seq < 0 || seq >= count {
		return 0
	}
	if seq < count-1 {
		return b.ChunkSize
	}
	return int(b.Length - int64(seq)*int64(b.ChunkSize))
}

// Chunk is a bounded fragment of a blob's content
type Chunk struct {
	BlobID string
	Seq    int
	Data   []byte
}

// Upload is an in-memory upload handed to the upload pipeline
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
	Metadata    map[string]string
}

// Clone returns a deep copy of the entry
func (b *Blob) Clone() *Blob {
	c := *b
	c.Metadata = make(map[string]string, len(b.Metadata))
	for k, v := range b.Metadata {
		c.Metadata[k] = v
	}
	return &c
}
