package protocol

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/Sarthakshelke9895/Cloud/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type formPart struct {
	field       string
	filename    string
	contentType string
	body        string
}

func createUploadRequest(t *testing.T, parts ...formPart) *http.Request {
	buf := new(bytes.Buffer)
	w := multipart.NewWriter(buf)
	for _, p := range parts {
		h := textproto.MIMEHeader{}
		if p.filename != "" {
			h.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.filename+`"`)
		} else {
			h.Set("Content-Disposition", `form-data; name="`+p.field+`"`)
		}
		if p.contentType != "" {
			h.Set(HeaderContentType, p.contentType)
		}
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write([]byte(p.body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/upload", buf)
	req.Header.Set(HeaderContentType, w.FormDataContentType())
	return req
}

func TestReadsFileUpload(t *testing.T) {
	req := createUploadRequest(t, formPart{field: "file", filename: "cat.png", contentType: "image/png", body: "meow"})

	upload, err := UploadFromRequest(req, 1024)

	require.NoError(t, err)
	assert.Equal(t, "cat.png", upload.Filename)
	assert.Equal(t, "image/png", upload.ContentType)
	assert.Equal(t, []byte("meow"), upload.Data)
	assert.Equal(t, map[string]string{
		MetadataOriginalName: "cat.png",
		MetadataMimeType:     "image/png",
		MetadataSize:         "4",
	}, upload.Metadata)
}

func TestReadsEmptyFile(t *testing.T) {
	req := createUploadRequest(t, formPart{field: "file", filename: "empty.txt"})

	upload, err := UploadFromRequest(req, 1024)

	require.NoError(t, err)
	assert.Empty(t, upload.Data)
	assert.Equal(t, DefaultContentType, upload.ContentType)
	assert.Equal(t, "0", upload.Metadata[MetadataSize])
}

func TestReadsMetadataFields(t *testing.T) {
	req := createUploadRequest(t,
		formPart{field: "metadata.album", body: "holiday"},
		formPart{field: "ignored", body: "whatever"},
		formPart{field: "file", filename: "cat.png", body: "meow"},
		formPart{field: "metadata.size", body: "spoofed"},
	)

	upload, err := UploadFromRequest(req, 1024)

	require.NoError(t, err)
	assert.Equal(t, "holiday", upload.Metadata["album"])
	assert.Equal(t, "4", upload.Metadata[MetadataSize])
	assert.NotContains(t, upload.Metadata, "ignored")
}

func TestRejectsRequestWithoutFile(t *testing.T) {
	_, err := UploadFromRequest(createUploadRequest(t, formPart{field: "metadata.a", body: "b"}), 1024)
	assert.Equal(t, model.ErrMissingFile, err)

	_, err = UploadFromRequest(createUploadRequest(t, formPart{field: "file", body: "not a file part"}), 1024)
	assert.Equal(t, model.ErrMissingFile, err)

	_, err = UploadFromRequest(createUploadRequest(t, formPart{field: "other", filename: "x.txt", body: "x"}), 1024)
	assert.Equal(t, model.ErrMissingFile, err)
}

func TestRejectsNonMultipartRequest(t *testing.T) {
	req := httptest.NewRequest("POST", "/upload", strings.NewReader(`{"file":"x"}`))
	req.Header.Set(HeaderContentType, "application/json")

	_, err := UploadFromRequest(req, 1024)
	assert.Equal(t, model.ErrMissingFile, err)
}

func TestRejectsOversizedFile(t *testing.T) {
	req := createUploadRequest(t, formPart{field: "file", filename: "big.bin", body: "12345"})
	_, err := UploadFromRequest(req, 4)
	assert.Equal(t, model.ErrBlobTooLarge, err)

	req = createUploadRequest(t, formPart{field: "file", filename: "fits.bin", body: "1234"})
	_, err = UploadFromRequest(req, 4)
	assert.NoError(t, err)
}

func TestRejectsMultipleFiles(t *testing.T) {
	req := createUploadRequest(t,
		formPart{field: "file", filename: "a.txt", body: "a"},
		formPart{field: "file", filename: "b.txt", body: "b"},
	)
	_, err := UploadFromRequest(req, 1024)
	assert.Equal(t, ErrMultipleFiles, err)
}

func TestRejectsBadMetadata(t *testing.T) {
	req := createUploadRequest(t, formPart{field: "metadata.", body: "x"}, formPart{field: "file", filename: "a", body: "a"})
	_, err := UploadFromRequest(req, 1024)
	assert.Equal(t, ErrInvalidMetadataKey, err)

	req = createUploadRequest(t, formPart{field: "metadata.big", body: strings.Repeat("x", maxMetadataValueBytes+1)})
	_, err = UploadFromRequest(req, 1024)
	assert.Equal(t, ErrMetadataTooLarge, err)
}

func TestRejectsTruncatedForm(t *testing.T) {
	req := createUploadRequest(t, formPart{field: "file", filename: "a.txt", body: "abc"})
	body := new(bytes.Buffer)
	_, err := body.ReadFrom(req.Body)
	require.NoError(t, err)
	truncated := httptest.NewRequest("POST", "/upload", bytes.NewReader(body.Bytes()[:body.Len()-10]))
	truncated.Header.Set(HeaderContentType, req.Header.Get(HeaderContentType))

	_, err = UploadFromRequest(truncated, 1024)
	assert.Equal(t, ErrInvalidForm, err)
}

func TestValidationErrorsCarryUserMessages(t *testing.T) {
	var err error = ErrMultipleFiles
	validationErr, ok := err.(model.ValidationError)
	require.True(t, ok)
	assert.Equal(t, err.Error(), validationErr.UserMessage())
}

func TestDownloadRequested(t *testing.T) {
	assert.True(t, DownloadRequested(httptest.NewRequest("GET", "/files/x?download=true", nil)))
	assert.False(t, DownloadRequested(httptest.NewRequest("GET", "/files/x?download=1", nil)))
	assert.False(t, DownloadRequested(httptest.NewRequest("GET", "/files/x", nil)))
}
