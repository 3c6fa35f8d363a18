package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/video-gateway/internal/data/repos"
	"github.com/yungbote/video-gateway/internal/data/repos/testutil"
	httpH "github.com/yungbote/video-gateway/internal/http/handlers"
	"github.com/yungbote/video-gateway/internal/http/response"
	"github.com/yungbote/video-gateway/internal/platform/localmedia"
	"github.com/yungbote/video-gateway/internal/services/analytics"
	"github.com/yungbote/video-gateway/internal/services/media"
	"github.com/yungbote/video-gateway/internal/services/media/mediatest"
)

func init() { gin.SetMode(gin.TestMode) }

type gateway struct {
	engine    *gin.Engine
	store     *mediatest.MemoryStore
	scheduler *mediatest.QueueScheduler
	repos     *repos.Set
}

func newGateway(t *testing.T, features httpH.Features, withRepo bool) *gateway {
	t.Helper()
	log := testutil.Logger(t)
	g := &gateway{store: mediatest.NewMemoryStore(), scheduler: &mediatest.QueueScheduler{}}
	if withRepo {
		g.repos = repos.NewSet(testutil.DB(t), log)
	}
	svc := media.New(media.Deps{
		Log:   log,
		Store: g.store,
		Repos: g.repos,
		Inspector: &mediatest.StubInspector{Result: &localmedia.ProbeResult{
			DurationSeconds: 8, Width: 1920, Height: 1080, Codec: "h264",
		}},
		Transcoder: &mediatest.StubTranscoder{Image: []byte("jpeg"), Output: []byte("out"), Dir: t.TempDir()},
		Scheduler:  g.scheduler,
	}, media.Config{
		MaxUploadBytes:     1 << 20,
		ThumbnailsEnabled:  features.Thumbnails,
		TranscodingEnabled: features.Transcoding,
	}, nil)

	g.engine = NewRouter(RouterConfig{
		AllowedOrigins:   []string{"*"},
		HealthHandler:    httpH.NewHealthHandler(httpH.HealthConfig{Features: features, Bucket: g.store.Bucket()}),
		FileHandler:      httpH.NewFileHandler(log, svc, features, 1<<20),
		AnalyticsHandler: httpH.NewAnalyticsHandler(analytics.New(log, g.repos, 0), features.Analytics),
	})
	return g
}

func (g *gateway) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	g.engine.ServeHTTP(w, req)
	return w
}

func keyPath(key, suffix string) string {
	return "/files/" + url.PathEscape(key) + suffix
}

func multipartUpload(t *testing.T, name string, body []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(body)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/files/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func TestUploadReturnsPendingKeyUnderUploadPrefix(t *testing.T) {
	g := newGateway(t, httpH.AllFeatures(), true)

	w := g.do(multipartUpload(t, "clip.mp4", bytes.Repeat([]byte{1}, 512)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res media.UploadResult
	decode(t, w, &res)
	assert.True(t, strings.HasPrefix(res.Key, "360-videos/"), res.Key)
	assert.True(t, strings.HasSuffix(res.Key, "-clip.mp4"), res.Key)
	assert.Equal(t, "pending", res.Status)
	assert.NotNil(t, res.ID)
	assert.Equal(t, 1, g.scheduler.Pending())

	_, ok := g.store.Get(res.Key)
	assert.True(t, ok)
}

func TestUploadWithoutFile(t *testing.T) {
	g := newGateway(t, httpH.AllFeatures(), false)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("quality", "720p"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/files/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	w := g.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body response.ErrorBody
	decode(t, w, &body)
	assert.Equal(t, "No file provided", body.Error)
}

func TestUploadRejectsNonVideo(t *testing.T) {
	g := newGateway(t, httpH.AllFeatures(), false)

	w := g.do(multipartUpload(t, "notes.txt", []byte("hello")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, g.store.Keys())
}

func TestSignedURLForMissingFile(t *testing.T) {
	g := newGateway(t, httpH.AllFeatures(), false)

	w := g.do(httptest.NewRequest(http.MethodGet, keyPath("360-videos/nope.mp4", "/signed-url"), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	var body response.ErrorBody
	decode(t, w, &body)
	assert.Equal(t, "File not found", body.Error)
}

func TestSignedURLClampsExpiry(t *testing.T) {
	g := newGateway(t, httpH.AllFeatures(), false)
	g.store.Put("360-videos/a.mp4", []byte("data"), "video/mp4")

	w := g.do(httptest.NewRequest(http.MethodGet, keyPath("360-videos/a.mp4", "/signed-url?expiresInMinutes=999999"), nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res media.SignedURLResult
	decode(t, w, &res)
	assert.Equal(t, "360-videos/a.mp4", res.Key)
	assert.Contains(t, res.URL, "ttl=168h0m0s")

	w = g.do(httptest.NewRequest(http.MethodGet, keyPath("360-videos/a.mp4", "/signed-url?expiresInMinutes=soon"), nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStreamRange(t *testing.T) {
	g := newGateway(t, httpH.AllFeatures(), false)
	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	g.store.Put("360-videos/a.mp4", payload, "video/mp4")

	req := httptest.NewRequest(http.MethodGet, keyPath("360-videos/a.mp4", "/stream"), nil)
	req.Header.Set("Range", "bytes=0-99")
	w := g.do(req)

	require.Equal(t, http.StatusPartialContent, w.Code, w.Body.String())
	assert.Equal(t, "bytes 0-99/1000", w.Header().Get("Content-Range"))
	assert.Equal(t, "100", w.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Equal(t, "video/mp4", w.Header().Get("Content-Type"))
	assert.Equal(t, payload[:100], w.Body.Bytes())
}

func TestStreamWholeObject(t *testing.T) {
	g := newGateway(t, httpH.AllFeatures(), false)
	g.store.Put("360-videos/a.mp4", []byte("0123456789"), "video/mp4")

	w := g.do(httptest.NewRequest(http.MethodGet, keyPath("360-videos/a.mp4", "/stream"), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0123456789", w.Body.String())
	assert.Empty(t, w.Header().Get("Content-Range"))
}

func TestStreamUnsatisfiableRange(t *testing.T) {
	g := newGateway(t, httpH.AllFeatures(), false)
	g.store.Put("360-videos/a.mp4", make([]byte, 1000), "video/mp4")

	req := httptest.NewRequest(http.MethodGet, keyPath("360-videos/a.mp4", "/stream"), nil)
	req.Header.Set("Range", "bytes=5000-")
	w := g.do(req)

	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code)
	assert.Equal(t, "bytes */1000", w.Header().Get("Content-Range"))
}

func TestStreamMissingFile(t *testing.T) {
	g := newGateway(t, httpH.AllFeatures(), false)

	w := g.do(httptest.NewRequest(http.MethodGet, keyPath("360-videos/none.mp4", "/stream"), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDisabledFeaturesAnswerUnavailable(t *testing.T) {
	g := newGateway(t, httpH.Features{}, true)
	g.store.Put("360-videos/a.mp4", []byte("data"), "video/mp4")

	cases := []struct {
		method, path string
	}{
		{http.MethodGet, keyPath("360-videos/a.mp4", "/stream")},
		{http.MethodPost, keyPath("360-videos/a.mp4", "/transcode")},
		{http.MethodPost, keyPath("360-videos/a.mp4", "/thumbnail")},
		{http.MethodPost, "/sessions/s-1/end"},
		{http.MethodGet, "/analytics/dashboard"},
	}
	for _, tc := range cases {
		w := g.do(httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, tc.path)
	}

	// Session creation still answers, without persistence.
	w := g.do(httptest.NewRequest(http.MethodPost, "/sessions/create", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestEphemeralSessionWithoutRepository(t *testing.T) {
	g := newGateway(t, httpH.AllFeatures(), false)

	w := g.do(httptest.NewRequest(http.MethodPost, "/sessions/create", strings.NewReader(`{"userId":"u-1"}`)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res analytics.SessionResult
	decode(t, w, &res)
	assert.NotEmpty(t, res.SessionID)
	assert.False(t, res.Persisted)

	w = g.do(httptest.NewRequest(http.MethodGet, "/analytics/dashboard", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestTranscodeQueuesJob(t *testing.T) {
	g := newGateway(t, httpH.AllFeatures(), true)
	w := g.do(multipartUpload(t, "clip.mp4", []byte("video")))
	require.Equal(t, http.StatusOK, w.Code)
	var up media.UploadResult
	decode(t, w, &up)

	req := httptest.NewRequest(http.MethodPost, keyPath(up.Key, "/transcode"), strings.NewReader(`{"quality":"720p"}`))
	req.Header.Set("Content-Type", "application/json")
	w = g.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res media.TranscodeResult
	decode(t, w, &res)
	assert.Equal(t, "720p", res.Quality)

	for _, err := range g.scheduler.RunAll(context.Background()) {
		require.NoError(t, err)
	}

	w = g.do(httptest.NewRequest(http.MethodGet, keyPath(up.Key, "/transcodes"), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"completed"`)
}

func TestListAndDelete(t *testing.T) {
	g := newGateway(t, httpH.AllFeatures(), false)
	g.store.Put("360-videos/a.mp4", []byte("aa"), "video/mp4")
	g.store.Put("360-videos/b.mp4", []byte("bbbb"), "video/mp4")

	w := g.do(httptest.NewRequest(http.MethodGet, "/files", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list media.ListResult
	decode(t, w, &list)
	assert.Len(t, list.Files, 2)
	assert.EqualValues(t, 6, list.Summary.TotalSize)

	w = g.do(httptest.NewRequest(http.MethodDelete, keyPath("360-videos/a.mp4", ""), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"360-videos/b.mp4"}, g.store.Keys())
}

func TestHealthReportsFeatures(t *testing.T) {
	g := newGateway(t, httpH.AllFeatures(), false)

	w := g.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	decode(t, w, &body)
	assert.Equal(t, "test-bucket", body["bucket"])
	assert.Contains(t, body, "features")
}

func TestUploadQualityIgnoredWhenTranscodingDisabled(t *testing.T) {
	features := httpH.AllFeatures()
	features.Transcoding = false
	g := newGateway(t, features, true)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "clip.mp4")
	require.NoError(t, err)
	_, err = fw.Write([]byte("video"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("quality", "720p"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/files/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	w := g.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var up media.UploadResult
	decode(t, w, &up)
	assert.Nil(t, up.JobID)
	assert.Equal(t, 1, g.scheduler.Pending())

	w = g.do(httptest.NewRequest(http.MethodGet, keyPath(up.Key, "/transcodes"), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"jobs":[]}`, w.Body.String())
}

func TestGenerateUploadURLThenComplete(t *testing.T) {
	g := newGateway(t, httpH.AllFeatures(), true)

	w := g.do(httptest.NewRequest(http.MethodPost, "/files/generate-upload-url",
		strings.NewReader(`{"fileName":"big.mp4","fileType":"video/mp4","fileSize":2097152}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var errBody response.ErrorBody
	decode(t, w, &errBody)
	assert.Equal(t, "file_too_large", errBody.Code)

	w = g.do(httptest.NewRequest(http.MethodPost, "/files/generate-upload-url",
		strings.NewReader(`{"fileName":"clip.mp4","fileType":"video/mp4","fileSize":2048}`)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var pre media.PresignResult
	decode(t, w, &pre)
	require.NotNil(t, pre.ID)
	assert.Contains(t, pre.UploadURL, "action=write")
	assert.Equal(t, "video/mp4", pre.Headers["Content-Type"])
	assert.Equal(t, "0,1048576", pre.Headers["x-goog-content-length-range"])

	complete := `{"key":"` + pre.Key + `"}`
	w = g.do(httptest.NewRequest(http.MethodPost, "/files/complete-upload", strings.NewReader(complete)))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Zero(t, g.scheduler.Pending())

	g.store.Put(pre.Key, make([]byte, 300), "video/mp4")
	w = g.do(httptest.NewRequest(http.MethodPost, "/files/complete-upload", strings.NewReader(complete)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var done media.UploadResult
	decode(t, w, &done)
	assert.EqualValues(t, 300, done.Size)
	assert.Equal(t, "pending", done.Status)
	assert.Equal(t, 1, g.scheduler.Pending())
}

func TestMetadataEndpoint(t *testing.T) {
	g := newGateway(t, httpH.AllFeatures(), true)
	w := g.do(multipartUpload(t, "clip.mp4", []byte("video")))
	require.Equal(t, http.StatusOK, w.Code)
	var up media.UploadResult
	decode(t, w, &up)
	for _, err := range g.scheduler.RunAll(context.Background()) {
		require.NoError(t, err)
	}

	w = g.do(httptest.NewRequest(http.MethodGet, keyPath(up.Key, "/metadata"), nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Key      string `json:"key"`
		Size     int64  `json:"size"`
		Metadata struct {
			ProcessingStatus string  `json:"processingStatus"`
			Resolution       string  `json:"resolution"`
			Duration         float64 `json:"duration"`
		} `json:"metadata"`
	}
	decode(t, w, &body)
	assert.Equal(t, up.Key, body.Key)
	assert.EqualValues(t, 5, body.Size)
	assert.Equal(t, "completed", body.Metadata.ProcessingStatus)
	assert.Equal(t, "1920x1080", body.Metadata.Resolution)
	assert.InDelta(t, 8, body.Metadata.Duration, 0.001)

	w = g.do(httptest.NewRequest(http.MethodGet, keyPath("360-videos/none.mp4", "/metadata"), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestThumbnailOffsetBeyondDuration(t *testing.T) {
	g := newGateway(t, httpH.AllFeatures(), true)
	w := g.do(multipartUpload(t, "clip.mp4", []byte("video")))
	require.Equal(t, http.StatusOK, w.Code)
	var up media.UploadResult
	decode(t, w, &up)
	for _, err := range g.scheduler.RunAll(context.Background()) {
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodPost, keyPath(up.Key, "/thumbnail"), strings.NewReader(`{"timeOffset":100}`))
	req.Header.Set("Content-Type", "application/json")
	w = g.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body response.ErrorBody
	decode(t, w, &body)
	assert.Equal(t, "thumbnail_extraction_failed", body.Code)

	req = httptest.NewRequest(http.MethodPost, keyPath(up.Key, "/thumbnail"), strings.NewReader(`{"timeOffset":2}`))
	req.Header.Set("Content-Type", "application/json")
	w = g.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "_2s.jpg")
}
