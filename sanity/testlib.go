package sanity

// sanity is a simple testing framework for the blob service - it allows easy chaining of dependent calls by retaining object placeholders for previous calls

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"

	"github.com/Sarthakshelke9895/Cloud/blobs"
	"github.com/Sarthakshelke9895/Cloud/model"
	"github.com/Sarthakshelke9895/Cloud/protocol"
	"github.com/Sarthakshelke9895/Cloud/server"
	"github.com/Sarthakshelke9895/Cloud/sharding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ClientOrigin is the share link origin of test servers
const ClientOrigin = "http://localhost:3000"

type testCtx struct {
	failed       bool
	narrative    []string
	t            *testing.T
	fileID       string
	fileIDs      []string
	lastResponse *HTTPResp
	server       *server.Server
}

func (tc *testCtx) String() string {
	return strings.Join(tc.narrative, " > ")
}

func (tc *testCtx) PushNarrative(narrative string) *testCtx {
	newTc := *tc
	newTc.narrative = append(append([]string{}, tc.narrative...), narrative)
	return &newTc
}

// TestCase is a Server API test case that can be recorded and run
type TestCase struct {
	narrative string
	tests     []*APIChain
}

// NewCase starts a test case with a given name
func NewCase(narrative string) *TestCase {
	return &TestCase{narrative: narrative}
}

// HTTPResp wraps an httpResponse with a buffered body
type HTTPResp struct {
	resp *http.Response
	body []byte
}

func (r *HTTPResp) String() string {
	body := r.body
	if len(body) > 512 {
		body = body[:512]
	}
	return fmt.Sprintf("code:%d  h: %v  body: %s", r.resp.StatusCode, r.resp.Header, string(body))
}

type resultFunc func(ctx *testCtx, response *HTTPResp)

type resultAction struct {
	narrative string
	action    resultFunc
}

type formPart struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

// APIChain is an operation on root API
type APIChain struct {
	narrative string
	path      string
	method    string
	headers   map[string]string
	body      []byte
	parts     []formPart
	expect    []*resultAction
	cmd       []*APIChain
}

func (tc *testCtx) Errorf(msg string, args ...interface{}) {
	tc.failed = true
	tc.t.Logf("Expectation failed: \n\t\t%s ", strings.Join(tc.narrative, "\n\t\t ->  "))
	tc.t.Logf(msg, args...)
	tc.t.Logf("Last Response was: %v", tc.lastResponse)
	tc.t.Fail()
}

func (tc *testCtx) FailNow() {
	tc.t.FailNow()
}

// With adds a middleware to a test that updates the current command in-place
func (c *APIChain) With(op func(*APIChain)) *APIChain {
	op(c)
	return c
}

// WithHeader appends a header to the current request
func (c *APIChain) WithHeader(k string, v string) *APIChain {
	c.headers[k] = v
	return c
}

// WithHeaders appends a map of headers to the current request
func (c *APIChain) WithHeaders(h map[string]string) *APIChain {
	for k, v := range h {
		c.headers[k] = v
	}
	return c
}

// WithBodyString adds a raw body string to the current command
func (c *APIChain) WithBodyString(data string) *APIChain {
	c.body = []byte(data)
	return c
}

// WithFile adds a file part to the multipart body of the current command
func (c *APIChain) WithFile(filename string, contentType string, data []byte) *APIChain {
	c.parts = append(c.parts, formPart{field: protocol.FormFieldFile, filename: filename, contentType: contentType, data: data})
	return c
}

// WithFormField adds a plain field to the multipart body of the current command
func (c *APIChain) WithFormField(field string, value string) *APIChain {
	c.parts = append(c.parts, formPart{field: field, data: []byte(value)})
	return c
}

// WithMetadata adds a metadata tag to the upload in the current command
func (c *APIChain) WithMetadata(key string, value string) *APIChain {
	return c.WithFormField(protocol.FormFieldMetadataPrefix+key, value)
}

// Expect appends an expectation to the current case
func (c *APIChain) Expect(fn resultFunc, msg string, args ...interface{}) *APIChain {
	c.expect = append(c.expect, &resultAction{fmt.Sprintf(msg, args...), fn})
	return c
}

// ExpectStatus creates an HTTP code expectation
func (c *APIChain) ExpectStatus(status int) *APIChain {
	return c.Expect(func(ctx *testCtx, resp *HTTPResp) {
		assert.Equal(ctx, status, resp.resp.StatusCode, "Http status should be %d", status)
	}, "status matches %d", status)
}

// ExpectHeader expects a response header to have a given value
func (c *APIChain) ExpectHeader(k string, v string) *APIChain {
	return c.Expect(func(ctx *testCtx, resp *HTTPResp) {
		assert.Equal(ctx, v, resp.resp.Header.Get(k), "Header %s should be %s", k, v)
	}, "header %s is %s", k, v)
}

// ExpectBody expects the response body to match data exactly
func (c *APIChain) ExpectBody(data []byte) *APIChain {
	return c.Expect(func(ctx *testCtx, resp *HTTPResp) {
		assert.True(ctx, bytes.Equal(data, resp.body), "Body of %d bytes did not match expected %d bytes", len(resp.body), len(data))
	}, "body matches %d bytes", len(data))
}

// ExpectJSON expects the response body to be the given JSON document after placeholder substitution
func (c *APIChain) ExpectJSON(doc string) *APIChain {
	return c.Expect(func(ctx *testCtx, resp *HTTPResp) {
		assert.JSONEq(ctx, ctx.substitute(doc), string(resp.body))
	}, "body is %s", doc)
}

// ExpectFileUploaded verifies that the server reported a file was stored
func (c *APIChain) ExpectFileUploaded() *APIChain {
	return c.ExpectStatus(200).
		Expect(func(ctx *testCtx, resp *HTTPResp) {
			var result protocol.UploadResult
			require.NoError(ctx, json.Unmarshal(resp.body, &result), "Upload response must be JSON")
			require.NotEmpty(ctx, result.FileID, "fileId must be present in response")
			assert.Equal(ctx, protocol.MessageUploaded, result.Message)
			ctx.fileID = result.FileID
			ctx.fileIDs = append(append([]string{}, ctx.fileIDs...), result.FileID)
		}, "File was uploaded")
}

// ExpectFileList adds an expectation on the decoded file listing
func (c *APIChain) ExpectFileList(test func(*testCtx, []*model.Blob)) *APIChain {
	return c.ExpectStatus(200).
		Expect(func(ctx *testCtx, resp *HTTPResp) {
			var files []*model.Blob
			require.NoError(ctx, json.Unmarshal(resp.body, &files), "Listing must be a JSON array")
			test(ctx, files)
		}, "Expecting file list")
}

// ExpectRequestErr expects a request error matching a given validation error
func (c *APIChain) ExpectRequestErr(err model.ValidationError) *APIChain {
	return c.expectError(http.StatusBadRequest, err.UserMessage())
}

// ExpectNotFound expects the file to be reported missing
func (c *APIChain) ExpectNotFound() *APIChain {
	return c.expectError(http.StatusNotFound, model.ErrBlobNotFound.Error())
}

// ExpectServerErr expects a server-side error matching a given error
func (c *APIChain) ExpectServerErr(serverErr *server.Error) *APIChain {
	return c.expectError(serverErr.HTTPStatus, serverErr.Message)
}

func (c *APIChain) expectError(status int, message string) *APIChain {
	return c.Expect(func(ctx *testCtx, resp *HTTPResp) {
		assert.Equal(ctx, status, resp.resp.StatusCode)
		assert.Contains(ctx, resp.resp.Header.Get("content-type"), "application/json")
		var result protocol.ErrorResult
		require.NoError(ctx, json.Unmarshal(resp.body, &result), "Error body must be JSON")
		assert.Equal(ctx, message, result.Error, "Error body did not match")
	}, "Error : %d %s", status, message)
}

// ThenCall chains a new api-call on to the state of the previous call - placeholders (e.g. :fileID)  inherited from the previous call will be substituted into the next path
func (c *APIChain) ThenCall(method string, path string) *APIChain {
	newCmd := &APIChain{method: method, path: path, headers: map[string]string{}}
	c.cmd = append(c.cmd, newCmd)
	return newCmd
}

// ThenGET is a shorthand for c.ThenCall("GET",path)
func (c *APIChain) ThenGET(path string) *APIChain {
	return c.ThenCall(http.MethodGet, path)
}

// ThenDELETE is a shorthand for c.ThenCall("DELETE",path)
func (c *APIChain) ThenDELETE(path string) *APIChain {
	return c.ThenCall(http.MethodDelete, path)
}

// ThenUpload chains a file upload
func (c *APIChain) ThenUpload(filename string, contentType string, data []byte) *APIChain {
	return c.ThenCall(http.MethodPost, "/upload").WithFile(filename, contentType, data).ExpectFileUploaded()
}

func (tc *testCtx) substitute(s string) string {
	return strings.Replace(s, ":fileID", tc.fileID, -1)
}

func (c *APIChain) toReq(ctx *testCtx) *http.Request {
	headers := map[string][]string{}

	for k, v := range c.headers {
		headers[http.CanonicalHeaderKey(ctx.substitute(k))] = []string{ctx.substitute(v)}
	}

	u, err := url.Parse(ctx.substitute(c.path))
	require.NoError(ctx, err, " invalid URL ")

	body := c.body
	if len(c.parts) > 0 {
		buf := new(bytes.Buffer)
		w := multipart.NewWriter(buf)
		for _, p := range c.parts {
			h := textproto.MIMEHeader{}
			if p.filename != "" {
				h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, p.field, p.filename))
				h.Set("Content-Type", p.contentType)
			} else {
				h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, p.field))
			}
			pw, err := w.CreatePart(h)
			require.NoError(ctx, err)
			_, err = pw.Write(p.data)
			require.NoError(ctx, err)
		}
		require.NoError(ctx, w.Close())
		body = buf.Bytes()
		headers["Content-Type"] = []string{w.FormDataContentType()}
	}

	r := httptest.NewRequest(c.method, u.String(), bytes.NewReader(body))
	for k, v := range headers {
		r.Header[k] = v
	}
	return r
}

func (c *APIChain) run(ctx testCtx, s *server.Server) {
	ctx.server = s
	nuCtx := (&ctx).PushNarrative(c.narrative)

	req := c.toReq(nuCtx)
	resp := httptest.NewRecorder()

	nuCtx = nuCtx.PushNarrative(fmt.Sprintf("%s %s", req.Method, req.URL))
	fmt.Printf("Test : %s\n", nuCtx)

	s.Engine.ServeHTTP(resp, req)
	body, err := io.ReadAll(resp.Body)
	require.NoError(ctx.t, err)

	nuCtx.lastResponse = &HTTPResp{resp: resp.Result(), body: body}

	for _, check := range c.expect {
		nuCtx = nuCtx.PushNarrative(check.narrative)
		check.action(nuCtx, nuCtx.lastResponse)
	}

	for _, cmd := range c.cmd {
		cmd.run(*nuCtx, s)
	}
}

// Call Starts a test tree with an arbitrary HTTP call
func (c *TestCase) Call(description string, method string, path string) *APIChain {
	cmd := &APIChain{narrative: c.narrative + ":" + description, method: method, path: path, headers: map[string]string{}}
	c.tests = append(c.tests, cmd)
	return cmd
}

// StartWithUpload creates a new test tree with an uploaded file
func (c *TestCase) StartWithUpload(description string, filename string, contentType string, data []byte) *APIChain {
	return c.Call(description, http.MethodPost, "/upload").WithFile(filename, contentType, data).ExpectFileUploaded()
}

// Run runs an whole test tree.
func (c *TestCase) Run(t *testing.T, server *server.Server) {
	for _, tc := range c.tests {
		t.Run(tc.narrative, func(t *testing.T) {
			ctx := testCtx{t: t}
			tc.run(ctx, server)
		})
	}
}

// NewTestServer creates a blob server over the given store
func NewTestServer(store blobs.Store, opts ...blobs.Option) (*server.Server, error) {
	index := blobs.NewStreamingIndex(store)
	return server.New(blobs.NewService(store, index, opts...), index.GetEventStream(), server.Config{
		Listen:       ":0",
		ClientOrigin: ClientOrigin,
	})
}

// NewInMemTestServer creates a blob server over a fresh in-memory store
func NewInMemTestServer(opts ...blobs.Option) (*server.Server, error) {
	return NewTestServer(blobs.NewInMemBlobStore(sharding.NewFixedSizeExtractor(4)), opts...)
}
