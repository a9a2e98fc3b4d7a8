package protocol

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Sarthakshelke9895/Cloud/model"
)

// UploadResult is the response body of a successful upload
type UploadResult struct {
	FileID      string `json:"fileId"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Length      int64  `json:"length"`
	Message     string `json:"message"`
}

// NewUploadResult describes a committed blob to the uploading client
func NewUploadResult(blob *model.Blob) *UploadResult {
	return &UploadResult{
		FileID:      blob.ID,
		Filename:    blob.Filename,
		ContentType: blob.ContentType,
		Length:      blob.Length,
		Message:     MessageUploaded,
	}
}

// MessageResult is a response body carrying only a message
type MessageResult struct {
	Message string `json:"message"`
}

// ShareResult is the response body of a share link request
type ShareResult struct {
	ShareURL string `json:"shareUrl"`
}

// ErrorResult is the response body of every failed request
type ErrorResult struct {
	Error string `json:"error"`
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"", "\r", "", "\n", "")

// ContentDisposition renders the Content-Disposition value for a blob
func ContentDisposition(filename string, attachment bool) string {
	if !attachment {
		return DispositionInline
	}
	if filename == "" {
		return DispositionAttachment
	}
	if isASCII(filename) {
		return DispositionAttachment + `; filename="` + quoteEscaper.Replace(filename) + `"`
	}
	return DispositionAttachment + "; filename*=UTF-8''" + url.PathEscape(filename)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// WriteBlobHeaders sets the response headers describing a blob download
func WriteBlobHeaders(h http.Header, blob *model.Blob, attachment bool) {
	contentType := blob.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}
	h.Set(HeaderContentType, contentType)
	h.Set(HeaderContentLength, strconv.FormatInt(blob.Length, 10))
	h.Set(HeaderContentDisposition, ContentDisposition(blob.Filename, attachment))
	h.Set(HeaderContentTypeOptions, "nosniff")
	if blob.Digest != "" {
		h.Set(HeaderETag, `"`+blob.Digest+`"`)
	}
	if !blob.UploadedAt.IsZero() {
		h.Set(HeaderLastModified, blob.UploadedAt.UTC().Format(http.TimeFormat))
	}
}
