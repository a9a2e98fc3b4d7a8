package blobs

import (
	"github.com/fxamacker/cbor/v2"
)

// metadata tags are stored as deterministic CBOR so equal tag sets always
// produce identical column bytes
var metadataEncMode cbor.EncMode

func init() {
	var err error
	metadataEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("blobs: CBOR encoder initialization failed: " + err.Error())
	}
}

func encodeMetadata(metadata map[string]string) ([]byte, error) {
	if metadata == nil {
		metadata = map[string]string{}
	}
	return metadataEncMode.Marshal(metadata)
}

func decodeMetadata(data []byte) (map[string]string, error) {
	metadata := map[string]string{}
	if len(data) == 0 {
		return metadata, nil
	}
	if err := cbor.Unmarshal(data, &metadata); err != nil {
		return nil, err
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	return metadata, nil
}
