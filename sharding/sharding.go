package sharding

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// ShardExtractor maps a blob id onto one of a fixed number of shards
type ShardExtractor interface {
	ShardID(blobID string) (int, error)
	ShardCount() int
}

type moduloShardExtractor struct {
	shardCount int
}

// NewFixedSizeExtractor creates a ShardExtractor over shardCount shards
func NewFixedSizeExtractor(shardCount int) ShardExtractor {
	if shardCount < 1 {
		shardCount = 1
	}
	return &moduloShardExtractor{shardCount: shardCount}
}

func (m *moduloShardExtractor) ShardCount() int {
	return m.shardCount
}

func (m *moduloShardExtractor) ShardID(blobID string) (int, error) {
	UUID, err := uuid.Parse(blobID)
	if err != nil {
		return 0, err
	}
	lowBits := binary.BigEndian.Uint64(UUID[:8])
	hiBits := binary.BigEndian.Uint64(UUID[8:])
	hilo := lowBits ^ hiBits
	shard := hilo % uint64(m.shardCount)
	return int(shard), nil
}
