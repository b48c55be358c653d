package api

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"docqa/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func testServer() *Server {
	return &Server{cfg: config.Config{MaxUploadBytes: 1 << 20, UploadRoot: "/tmp"}}
}

func TestUploadRejectsUnsupportedFormat(t *testing.T) {
	s := testServer()
	body, contentType := multipartBody(t, "file", "malware.exe", "MZ...")

	req := httptest.NewRequest("POST", "/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.handleUpload(rec, req)

	assert.Equal(t, 400, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported file format")
}

func TestUploadRejectsOversizeFile(t *testing.T) {
	s := testServer()
	s.cfg.MaxUploadBytes = 8

	body, contentType := multipartBody(t, "file", "big.txt", "this file is larger than eight bytes")
	req := httptest.NewRequest("POST", "/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.handleUpload(rec, req)

	assert.Equal(t, 413, rec.Code)
}

func TestUploadRequiresFile(t *testing.T) {
	s := testServer()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.WriteField("note", "no file here"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/documents/upload", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.handleUpload(rec, req)

	assert.Equal(t, 400, rec.Code)
}

func TestUploadRejectsGet(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest("GET", "/documents/upload", nil)
	rec := httptest.NewRecorder()
	s.handleUpload(rec, req)

	assert.Equal(t, 405, rec.Code)
}

func TestQueryRequiresText(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"query_text":"   "}`))
	rec := httptest.NewRecorder()
	s.handleQuery(rec, req)

	assert.Equal(t, 400, rec.Code)
	assert.Contains(t, rec.Body.String(), "query_text is required")
}

func TestQueryRejectsBadThreshold(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"query_text":"q","similarity_threshold":5}`))
	rec := httptest.NewRecorder()
	s.handleQuery(rec, req)

	assert.Equal(t, 400, rec.Code)
}

func TestQueryRejectsMalformedJSON(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"query_text":`))
	rec := httptest.NewRecorder()
	s.handleQuery(rec, req)

	assert.Equal(t, 400, rec.Code)
}

func TestPaginationBounds(t *testing.T) {
	req := httptest.NewRequest("GET", "/documents?limit=1000&offset=-5", nil)
	limit, offset := pagination(req, 50)
	assert.Equal(t, 50, limit)
	assert.Equal(t, 0, offset)

	req = httptest.NewRequest("GET", "/documents?limit=25&offset=10", nil)
	limit, offset = pagination(req, 50)
	assert.Equal(t, 25, limit)
	assert.Equal(t, 10, offset)
}

func TestCORSPreflight(t *testing.T) {
	h := withCORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	req := httptest.NewRequest("OPTIONS", "/query", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
