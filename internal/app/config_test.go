package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yungbote/video-gateway/internal/platform/logger"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "APP_ENV", "ENABLE_STREAMING", "ENABLE_TRANSCODING", "ENABLE_ANALYTICS", "ENABLE_THUMBNAILS", "MAX_UPLOAD_BYTES", "SESSION_TTL_MINUTES", "SIGNED_URL_TTL_MINUTES"} {
		t.Setenv(k, "")
	}
	cfg := LoadConfig(logger.Nop())

	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.Development())
	assert.True(t, cfg.Features.Streaming && cfg.Features.Transcoding && cfg.Features.Analytics && cfg.Features.Thumbnails)
	assert.Equal(t, int64(5<<30), cfg.Media.MaxUploadBytes)
	assert.Equal(t, "360-videos", cfg.Media.UploadPrefix)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, time.Hour, cfg.Media.ReadURLTTL)
	assert.True(t, cfg.Media.ThumbnailsEnabled)
	assert.True(t, cfg.Media.TranscodingEnabled)
	assert.Equal(t, 30*time.Minute, cfg.WorkerTaskTimeout)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("ENABLE_THUMBNAILS", "false")
	t.Setenv("ENABLE_ANALYTICS", "0")
	t.Setenv("ENABLE_TRANSCODING", "false")
	t.Setenv("MAX_UPLOAD_BYTES", "1048576")
	t.Setenv("ALLOWED_VIDEO_TYPES", "video/mp4, video/webm")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://viewer.example.com")
	t.Setenv("SESSION_TTL_MINUTES", "5")

	cfg := LoadConfig(logger.Nop())
	assert.False(t, cfg.Development())
	assert.False(t, cfg.Features.Thumbnails)
	assert.False(t, cfg.Media.ThumbnailsEnabled)
	assert.False(t, cfg.Media.TranscodingEnabled)
	assert.False(t, cfg.Features.Analytics)
	assert.Equal(t, int64(1<<20), cfg.Media.MaxUploadBytes)
	assert.Equal(t, []string{"video/mp4", "video/webm"}, cfg.Media.AllowedTypes)
	assert.Equal(t, []string{"https://viewer.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL)
}
