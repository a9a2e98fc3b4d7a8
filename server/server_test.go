package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Sarthakshelke9895/Cloud/blobs"
	"github.com/Sarthakshelke9895/Cloud/model"
	"github.com/Sarthakshelke9895/Cloud/protocol"
	"github.com/Sarthakshelke9895/Cloud/sharding"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func givenServer(t *testing.T, opts ...blobs.Option) *Server {
	store := blobs.NewInMemBlobStore(sharding.NewFixedSizeExtractor(4))
	index := blobs.NewStreamingIndex(store)
	opts = append([]blobs.Option{blobs.WithChunkSize(1024)}, opts...)
	s, err := New(blobs.NewService(store, index, opts...), index.GetEventStream(), Config{
		Listen:         ":0",
		ClientOrigin:   "http://localhost:3000",
		RequestTimeout: 10 * time.Second,
	})
	require.NoError(t, err)
	return s
}

func uploadRequest(t *testing.T, filename string, contentType string, data []byte) *http.Request {
	buf := new(bytes.Buffer)
	w := multipart.NewWriter(buf)
	if filename != "" {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
		h["Content-Type"] = []string{contentType}
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.WriteField("metadata.album", "holiday"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Engine.ServeHTTP(rec, req)
	return rec
}

func givenUploadedFile(t *testing.T, s *Server, filename string, contentType string, data []byte) string {
	rec := serve(s, uploadRequest(t, filename, contentType, data))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result protocol.UploadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	return result.FileID
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	var result protocol.ErrorResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result), rec.Body.String())
	return result.Error
}

func TestShouldUploadFile(t *testing.T) {
	s := givenServer(t)

	rec := serve(s, uploadRequest(t, "cat.png", "image/png", []byte("meow")))

	require.Equal(t, http.StatusOK, rec.Code)
	var result protocol.UploadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "cat.png", result.Filename)
	assert.Equal(t, "image/png", result.ContentType)
	assert.Equal(t, "Uploaded", result.Message)
	_, err := uuid.Parse(result.FileID)
	assert.NoError(t, err)
}

func TestShouldRejectUploadWithoutFile(t *testing.T) {
	s := givenServer(t)

	rec := serve(s, uploadRequest(t, "", "", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file provided", errorMessage(t, rec))
}

func TestShouldRejectOversizedUpload(t *testing.T) {
	s := givenServer(t, blobs.WithMaxBlobSize(10))

	rec := serve(s, uploadRequest(t, "big.bin", "application/octet-stream", make([]byte, 11)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.ErrBlobTooLarge.Error(), errorMessage(t, rec))
}

func TestShouldListFilesNewestFirst(t *testing.T) {
	s := givenServer(t)
	first := givenUploadedFile(t, s, "a.txt", "text/plain", []byte("a"))
	second := givenUploadedFile(t, s, "b.txt", "text/plain", []byte("bb"))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/files", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var files []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	require.Len(t, files, 2)
	assert.Equal(t, second, files[0]["id"])
	assert.Equal(t, first, files[1]["id"])
	assert.Equal(t, "b.txt", files[0]["filename"])
	assert.Equal(t, "text/plain", files[0]["contentType"])
	assert.Equal(t, float64(2), files[0]["length"])
	assert.NotEmpty(t, files[0]["uploadDate"])
	metadata := files[0]["metadata"].(map[string]interface{})
	assert.Equal(t, "b.txt", metadata["originalName"])
	assert.Equal(t, "holiday", metadata["album"])
}

func TestShouldListEmptyStoreAsEmptyArray(t *testing.T) {
	rec := serve(givenServer(t), httptest.NewRequest(http.MethodGet, "/files", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestShouldServeFileInlineAndAsAttachment(t *testing.T) {
	s := givenServer(t)
	data := bytes.Repeat([]byte("0123456789"), 5000)
	id := givenUploadedFile(t, s, "digits.txt", "text/plain", data)

	inline := serve(s, httptest.NewRequest(http.MethodGet, "/files/"+id, nil))
	require.Equal(t, http.StatusOK, inline.Code)
	assert.Equal(t, "inline", inline.Header().Get("Content-Disposition"))
	assert.Equal(t, "text/plain", inline.Header().Get("Content-Type"))
	assert.Equal(t, "50000", inline.Header().Get("Content-Length"))
	assert.NotEmpty(t, inline.Header().Get("ETag"))
	assert.Equal(t, data, inline.Body.Bytes())

	attachment := serve(s, httptest.NewRequest(http.MethodGet, "/files/"+id+"?download=true", nil))
	require.Equal(t, http.StatusOK, attachment.Code)
	assert.Equal(t, `attachment; filename="digits.txt"`, attachment.Header().Get("Content-Disposition"))
	assert.Equal(t, data, attachment.Body.Bytes())
}

func TestShouldServeHeadWithoutBody(t *testing.T) {
	s := givenServer(t)
	id := givenUploadedFile(t, s, "a.txt", "text/plain", []byte("hello"))

	rec := serve(s, httptest.NewRequest(http.MethodHead, "/files/"+id, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Content-Length"))
	assert.Empty(t, rec.Body.Bytes())
}

func TestShouldRejectMalformedFileID(t *testing.T) {
	s := givenServer(t)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec := serve(s, httptest.NewRequest(method, "/files/not-a-valid-id", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid id", errorMessage(t, rec))
	}
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/share/not-a-valid-id", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestShouldDeleteFile(t *testing.T) {
	s := givenServer(t)
	id := givenUploadedFile(t, s, "a.txt", "text/plain", []byte("hello"))

	rec := serve(s, httptest.NewRequest(http.MethodDelete, "/files/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Deleted"}`, rec.Body.String())

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/files/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "File not found", errorMessage(t, rec))

	rec = serve(s, httptest.NewRequest(http.MethodDelete, "/files/"+id, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestShouldShareFile(t *testing.T) {
	s := givenServer(t)
	id := uuid.New().String()

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/share/"+id, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"shareUrl":"http://localhost:3000/preview/`+id+`"}`, rec.Body.String())
}

func TestShouldRenderUnknownRouteAsJSON(t *testing.T) {
	rec := serve(givenServer(t), httptest.NewRequest(http.MethodGet, "/nothing/here", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", errorMessage(t, rec))
}

func TestShouldAllowCrossOriginRequests(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/files", nil)
	req.Header.Set("Origin", "http://localhost:3000")

	rec := serve(givenServer(t), req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestShouldRejectInvalidOrigins(t *testing.T) {
	store := blobs.NewInMemBlobStore(sharding.NewFixedSizeExtractor(1))
	svc := blobs.NewService(store, store)

	_, err := New(svc, nil, Config{ClientOrigin: "localhost"})
	assert.Equal(t, ErrInvalidClientOrigin, err)

	_, err = New(svc, nil, Config{ClientOrigin: "http://localhost:3000", CORSOrigins: []string{"nope"}})
	assert.Equal(t, ErrInvalidCORSOrigin, err)
}

func TestRenderErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{model.ErrInvalidBlobID, http.StatusBadRequest},
		{model.ErrMissingFile, http.StatusBadRequest},
		{protocol.ErrInvalidForm, http.StatusBadRequest},
		{model.ErrBlobNotFound, http.StatusNotFound},
		{model.ErrIDExhausted, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{model.NewStorageError("put_chunk", "id", context.Canceled), http.StatusServiceUnavailable},
		{model.NewStorageError("put_chunk", "id", errors.New("disk on fire")), http.StatusInternalServerError},
		{ErrUnknownRoute, http.StatusNotFound},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		ctx, _ := gin.CreateTestContext(rec)
		renderError(c.err, ctx)
		assert.Equal(t, c.status, rec.Code, "Case %v", c.err)
		assert.NotEmpty(t, errorMessage(t, rec))
	}
}

type failingWriter struct {
	header http.Header
	status int
}

func (w *failingWriter) Header() http.Header {
	return w.header
}

func (w *failingWriter) WriteHeader(status int) {
	w.status = status
}

func (w *failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("connection reset by peer")
}

func TestShouldCountAbortedDownloads(t *testing.T) {
	s := givenServer(t)
	id := givenUploadedFile(t, s, "big.bin", "application/octet-stream", make([]byte, 100*1024))
	before := testutil.ToFloat64(downloadAbortsCounter)

	w := &failingWriter{header: http.Header{}}
	s.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files/"+id, nil))

	assert.Equal(t, http.StatusOK, w.status)
	assert.Equal(t, before+1, testutil.ToFloat64(downloadAbortsCounter))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/files/"+id, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, rec.Body.Bytes(), 100*1024)
}

func TestServerRunStopsWithContext(t *testing.T) {
	s := givenServer(t)
	s.listen = "127.0.0.1:0"
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
