package gcp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/video-gateway/internal/platform/logger"
)

func newEmulatorStore(t *testing.T, host string) *gcsStore {
	t.Helper()
	return &gcsStore{
		log:          logger.Nop(),
		bucket:       "videos",
		storageMode:  ObjectStorageModeGCSEmulator,
		emulatorHost: host,
	}
}

func TestEmulatorSignedURLs(t *testing.T) {
	s := newEmulatorStore(t, "http://fake-gcs:4443")
	s.publicBaseURL = "http://localhost:4443"

	read, err := s.SignedURL(context.Background(), "360-videos/a b.mp4", SignedURLOptions{Action: SignedActionRead})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4443/storage/v1/b/videos/o/360-videos%2Fa%20b.mp4?alt=media", read)

	write, err := s.SignedURL(context.Background(), "360-videos/a.mp4", SignedURLOptions{Action: SignedActionWrite, ContentType: "video/mp4"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4443/upload/storage/v1/b/videos/o?uploadType=media&name=360-videos%2Fa.mp4", write)
}

func TestEmulatorOpenReaderSendsRange(t *testing.T) {
	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.EscapedPath(), "missing") {
			http.NotFound(w, r)
			return
		}
		gotRange = r.Header.Get("Range")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = io.WriteString(w, "0123456789")
	}))
	defer srv.Close()

	s := newEmulatorStore(t, srv.URL)
	rc, err := s.OpenReader(context.Background(), "k.mp4", ReadRange{Offset: 10, Length: 10})
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "bytes=10-19", gotRange)
	assert.Equal(t, "0123456789", string(body))

	rc, err = s.OpenReader(context.Background(), "k.mp4", ReadRange{Offset: 5, Length: -1})
	require.NoError(t, err)
	_ = rc.Close()
	assert.Equal(t, "bytes=5-", gotRange)

	_, err = s.OpenReader(context.Background(), "missing.mp4", ReadRange{})
	assert.True(t, errors.Is(err, ErrObjectNotFound))
}

func TestContentTypeForKey(t *testing.T) {
	assert.Equal(t, "video/mp4", ContentTypeForKey("transcoded/a_720p.MP4"))
	assert.Equal(t, "image/jpeg", ContentTypeForKey("thumbnails/a_1s.jpg"))
	assert.Equal(t, "application/octet-stream", ContentTypeForKey("blob"))
}
