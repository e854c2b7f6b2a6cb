package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(env *testEnv, bodyLimit int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	api := router.Group("/api")
	api.POST("/upload", LegacyUploadHandler)
	api.POST("/jobs", func(c *gin.Context) {
		if bodyLimit > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, bodyLimit)
		}
		c.Next()
	}, SubmitHandler(env.service))
	api.GET("/jobs/:id", StatusHandler(env.service))
	api.GET("/jobs/:id/download", DownloadHandler(env.service))
	return router
}

func multipartRequest(t *testing.T, fields map[string]string, fileField string, uploads ...upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, u := range uploads {
		part, err := w.CreateFormFile(fileField, u.name)
		require.NoError(t, err)
		_, err = part.Write(u.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestHTTP_SubmitStatusDownload(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env, 0)

	rec := serve(router, multipartRequest(t,
		map[string]string{"operation": "merge", "output_name": "combined"},
		"file",
		pdfUpload("a.pdf", 1), pdfUpload("b.pdf", 2),
	))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	jobID, _ := body["job_id"].(string)
	token, _ := body["download_token"].(string)
	require.NotEmpty(t, jobID)
	require.NotEmpty(t, token)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "queued", decodeBody(t, rec)["status"])
	assert.NotContains(t, rec.Body.String(), "download_token")

	// 未完了なら 409
	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID+"/download?token="+token, nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.NoError(t, env.executor.Process(context.Background(), jobID))

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeBody(t, rec)
	assert.Equal(t, "done", status["status"])
	assert.Equal(t, "/api/jobs/"+jobID+"/download", status["download_url"])

	// クエリでもヘッダーでも渡せる、何度でも取得できる
	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID+"/download?token="+token, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="combined.pdf"; filename*=UTF-8''combined.pdf`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, jobID, rec.Header().Get("X-Job-Id"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF-"))

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID+"/download", nil)
	req.Header.Set(DownloadTokenHeader, token)
	rec = serve(router, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTP_DownloadRejectsBadToken(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env, 0)
	res := env.processed(t, SubmitRequest{
		Operation: "keep",
		Pages:     "1",
		Files:     fileHeaders(t, pdfUpload("a.pdf", 2)),
	})

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/jobs/"+res.JobID+"/download?token=wrong", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Body.String(), res.JobID)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/jobs/"+res.JobID+"/download", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "DOWNLOAD_TOKEN_MISSING", decodeBody(t, rec)["code"])

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/jobs/0123456789abcdef0123456789abcdef", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTP_SubmitErrors(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		env := newTestEnv(t)
		rec := serve(newTestRouter(env, 0), multipartRequest(t,
			map[string]string{"operation": "swap", "pages": "1"},
			"file",
			pdfUpload("a.pdf", 2),
		))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_PAGES", decodeBody(t, rec)["code"])
	})

	t.Run("merge details", func(t *testing.T) {
		env := newTestEnv(t)
		rec := serve(newTestRouter(env, 0), multipartRequest(t,
			map[string]string{"operation": "merge"},
			"files[]",
			pdfUpload("a.pdf", 1), upload{name: "b.pdf", data: []byte("nope")},
		))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "INVALID_PDF", body["code"])
		assert.Equal(t, "b.pdf", body["invalid_file"])
		assert.EqualValues(t, 1, body["invalid_index"])
	})

	t.Run("queue unavailable", func(t *testing.T) {
		env := newTestEnv(t)
		env.queue.err = errQueueDown
		rec := serve(newTestRouter(env, 0), multipartRequest(t,
			map[string]string{"operation": "keep", "pages": "1"},
			"file",
			pdfUpload("a.pdf", 2),
		))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection refused")
		assert.Empty(t, env.artifactNames(t))
	})

	t.Run("body too large", func(t *testing.T) {
		env := newTestEnv(t)
		rec := serve(newTestRouter(env, 512), multipartRequest(t,
			map[string]string{"operation": "keep", "pages": "1"},
			"file",
			pdfUpload("a.pdf", 10),
		))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, "UPLOAD_TOO_LARGE", decodeBody(t, rec)["code"])
	})

	t.Run("not multipart", func(t *testing.T) {
		env := newTestEnv(t)
		req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(`{"operation":"keep"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := serve(newTestRouter(env, 0), req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHTTP_LegacyUploadIsGone(t *testing.T) {
	env := newTestEnv(t)
	rec := serve(newTestRouter(env, 0), httptest.NewRequest(http.MethodPost, "/api/upload", nil))
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "/api/jobs", decodeBody(t, rec)["next"])
}
