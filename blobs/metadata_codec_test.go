package blobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataEncodingIsDeterministic(t *testing.T) {
	a := map[string]string{"b": "2", "a": "1", "originalName": "cat.png"}
	b := map[string]string{"originalName": "cat.png", "a": "1", "b": "2"}

	encA, err := encodeMetadata(a)
	require.NoError(t, err)
	encB, err := encodeMetadata(b)
	require.NoError(t, err)
	assert.Equal(t, encA, encB)

	decoded, err := decodeMetadata(encA)
	require.NoError(t, err)
	assert.Equal(t, a, decoded)
}

func TestNilMetadataDecodesAsEmpty(t *testing.T) {
	enc, err := encodeMetadata(nil)
	require.NoError(t, err)

	decoded, err := decodeMetadata(enc)
	require.NoError(t, err)
	assert.NotNil(t, decoded)
	assert.Empty(t, decoded)

	decoded, err = decodeMetadata(nil)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestCorruptMetadataFails(t *testing.T) {
	_, err := decodeMetadata([]byte{0xff, 0x00})
	assert.Error(t, err)
}
