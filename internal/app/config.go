package app

import (
	"strings"
	"time"

	"github.com/yungbote/video-gateway/internal/http/handlers"
	"github.com/yungbote/video-gateway/internal/http/middleware"
	"github.com/yungbote/video-gateway/internal/platform/envutil"
	"github.com/yungbote/video-gateway/internal/platform/logger"
	"github.com/yungbote/video-gateway/internal/services/analytics"
	"github.com/yungbote/video-gateway/internal/services/media"
)

type Config struct {
	Port    string
	AppEnv  string
	Version string

	Features       handlers.Features
	AllowedOrigins []string

	Media media.Config

	WorkerConcurrency int
	WorkerQueueSize   int
	WorkerTaskTimeout time.Duration
	SessionTTL        time.Duration

	FFmpegPath         string
	FFprobePath        string
	MediaWorkDir       string
	QualityPresetsFile string
}

func (c Config) Development() bool {
	return strings.EqualFold(c.AppEnv, "development")
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:    envutil.String("PORT", "8080"),
		AppEnv:  envutil.String("APP_ENV", "development"),
		Version: envutil.String("APP_VERSION", ""),
		Features: handlers.Features{
			Streaming:   envutil.Bool("ENABLE_STREAMING", true),
			Transcoding: envutil.Bool("ENABLE_TRANSCODING", true),
			Analytics:   envutil.Bool("ENABLE_ANALYTICS", true),
			Thumbnails:  envutil.Bool("ENABLE_THUMBNAILS", true),
		},
		AllowedOrigins: envutil.List("CORS_ALLOWED_ORIGINS", middleware.DefaultOrigins),
		Media: media.Config{
			UploadPrefix:    envutil.String("UPLOAD_PREFIX", "360-videos"),
			ThumbnailPrefix: envutil.String("THUMBNAIL_PREFIX", "thumbnails"),
			TranscodePrefix: envutil.String("TRANSCODE_PREFIX", "transcoded"),
			MaxUploadBytes:  envutil.Int64("MAX_UPLOAD_BYTES", 5<<30),
			AllowedTypes:    envutil.List("ALLOWED_VIDEO_TYPES", media.DefaultAllowedTypes),
			ReadURLTTL:      envutil.Minutes("SIGNED_URL_TTL_MINUTES", 60*time.Minute),
			ProbeURLTTL:     envutil.Minutes("PROBE_URL_TTL_MINUTES", 15*time.Minute),
			TranscodeURLTTL: envutil.Minutes("TRANSCODE_URL_TTL_MINUTES", 6*time.Hour),
		},
		WorkerConcurrency:  envutil.Int("WORKER_CONCURRENCY", 2),
		WorkerQueueSize:    envutil.Int("WORKER_QUEUE_SIZE", 64),
		WorkerTaskTimeout:  envutil.Minutes("WORKER_TASK_TIMEOUT_MINUTES", 30*time.Minute),
		SessionTTL:         envutil.Minutes("SESSION_TTL_MINUTES", analytics.DefaultSessionTTL),
		FFmpegPath:         envutil.String("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:        envutil.String("FFPROBE_PATH", "ffprobe"),
		MediaWorkDir:       envutil.String("MEDIA_WORK_DIR", ""),
		QualityPresetsFile: envutil.String("QUALITY_PRESETS_FILE", ""),
	}
	cfg.Media.ThumbnailsEnabled = cfg.Features.Thumbnails
	cfg.Media.TranscodingEnabled = cfg.Features.Transcoding
	cfg.Media.ProcessingThumbnailOffset = 1

	log.Info("Configuration loaded",
		"port", cfg.Port,
		"app_env", cfg.AppEnv,
		"streaming", cfg.Features.Streaming,
		"transcoding", cfg.Features.Transcoding,
		"analytics", cfg.Features.Analytics,
		"thumbnails", cfg.Features.Thumbnails,
		"max_upload_bytes", cfg.Media.MaxUploadBytes,
		"worker_concurrency", cfg.WorkerConcurrency,
	)
	return cfg
}
