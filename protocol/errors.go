package protocol

type badProtoMessage struct {
	message string
}

func (bp *badProtoMessage) UserMessage() string {
	return bp.Error()
}
func (bp *badProtoMessage) Error() string {
	return bp.message
}

var (
	// ErrInvalidForm is returned for a malformed multipart body
	ErrInvalidForm = &badProtoMessage{
		message: "Invalid multipart form",
	}
	// ErrMultipleFiles is returned when more than one file part is sent
	ErrMultipleFiles = &badProtoMessage{
		message: "Only one " + FormFieldFile + " may be uploaded per request",
	}
	// ErrTooManyMetadataFields is returned when an upload carries too many metadata tags
	ErrTooManyMetadataFields = &badProtoMessage{
		message: "Too many " + FormFieldMetadataPrefix + "* fields",
	}
	// ErrMetadataTooLarge is returned when a metadata value exceeds its limit
	ErrMetadataTooLarge = &badProtoMessage{
		message: "Metadata value too large",
	}
	// ErrInvalidMetadataKey is returned for an empty metadata tag name
	ErrInvalidMetadataKey = &badProtoMessage{
		message: "Invalid metadata key",
	}
)
