package blobs

import (
	"mime"
	"net/http"
	"path/filepath"
)

const defaultContentType = "application/octet-stream"

// DetectContentType resolves the content type to store for an upload: the
// declared type when it is specific, else the filename extension, else a
// sniff of the content
func DetectContentType(filename string, declared string, data []byte) string {
	if declared != "" && declared != defaultContentType {
		if _, _, err := mime.ParseMediaType(declared); err == nil {
			return declared
		}
	}
	if ext := filepath.Ext(filename); ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt
		}
	}
	if len(data) == 0 {
		return defaultContentType
	}
	return http.DetectContentType(data)
}
