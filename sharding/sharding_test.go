package sharding

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

const (
	invalidBlobID = "invalid-id"
)

var (
	validBlobID    = uuid.New().String()
	shardExtractor = NewFixedSizeExtractor(10)
)

func TestShardIsStable(t *testing.T) {
	shard, e := shardExtractor.ShardID(validBlobID)
	assert.Nil(t, e)
	assert.True(t, shard >= 0 && shard < 10)
	again, e := shardExtractor.ShardID(validBlobID)
	assert.Nil(t, e)
	assert.Equal(t, shard, again)
}

func TestShardForInvalidBlobId(t *testing.T) {
	_, e := shardExtractor.ShardID(invalidBlobID)
	assert.Error(t, e)
}

func TestShardCountIsAtLeastOne(t *testing.T) {
	extractor := NewFixedSizeExtractor(0)
	assert.Equal(t, 1, extractor.ShardCount())
	shard, err := extractor.ShardID(validBlobID)
	assert.NoError(t, err)
	assert.Equal(t, 0, shard)
}
