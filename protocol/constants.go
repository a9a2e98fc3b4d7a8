package protocol

const (
	// HeaderContentType - content type header
	HeaderContentType = "Content-Type"
	// HeaderContentLength - content length header
	HeaderContentLength = "Content-Length"
	// HeaderContentDisposition - inline or attachment disposition of a download
	HeaderContentDisposition = "Content-Disposition"
	// HeaderETag - the blob's content digest
	HeaderETag = "ETag"
	// HeaderLastModified - the blob's upload date
	HeaderLastModified = "Last-Modified"
	// HeaderContentTypeOptions - disables client side sniffing of downloads
	HeaderContentTypeOptions = "X-Content-Type-Options"

	// FormFieldFile - multipart field carrying the uploaded file
	FormFieldFile = "file"
	// FormFieldMetadataPrefix - multipart fields with this prefix become metadata tags
	FormFieldMetadataPrefix = "metadata."

	// QueryDownload - query parameter requesting an attachment download
	QueryDownload = "download"

	// MetadataOriginalName - tag recording the client's file name
	MetadataOriginalName = "originalName"
	// MetadataMimeType - tag recording the content type declared by the client
	MetadataMimeType = "mimeType"
	// MetadataSize - tag recording the uploaded size in bytes
	MetadataSize = "size"

	// DispositionInline - Content-Disposition for in-browser display
	DispositionInline = "inline"
	// DispositionAttachment - Content-Disposition for downloads
	DispositionAttachment = "attachment"

	// DefaultContentType is served for blobs without a recorded type
	DefaultContentType = "application/octet-stream"

	// MessageUploaded - upload response message
	MessageUploaded = "Uploaded"
	// MessageDeleted - delete response message
	MessageDeleted = "Deleted"

	maxMetadataFields     = 64
	maxMetadataValueBytes = 4096
)
