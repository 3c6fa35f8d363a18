package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/video-gateway/internal/http/handlers"
	httpMW "github.com/yungbote/video-gateway/internal/http/middleware"
	"github.com/yungbote/video-gateway/internal/observability"
	"github.com/yungbote/video-gateway/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	AllowedOrigins []string
	Metrics        *observability.Metrics

	HealthHandler    *httpH.HealthHandler
	FileHandler      *httpH.FileHandler
	AnalyticsHandler *httpH.AnalyticsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	// Storage keys arrive percent-encoded ("360-videos%2Fclip.mp4") and must
	// bind to a single :key segment.
	r.UseRawPath = true
	r.UnescapePathValues = true

	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/health", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	// Files
	if h := cfg.FileHandler; h != nil {
		files := r.Group("/files")
		files.GET("", h.List)
		files.POST("/upload", h.Upload)
		files.POST("/generate-upload-url", h.GenerateUploadURL)
		files.POST("/complete-upload", h.CompleteUpload)
		files.GET("/:key/signed-url", h.SignedURL)
		files.GET("/:key/stream", h.Stream)
		files.GET("/:key/metadata", h.Metadata)
		files.POST("/:key/transcode", h.Transcode)
		files.GET("/:key/transcodes", h.TranscodeJobs)
		files.POST("/:key/thumbnail", h.Thumbnail)
		files.DELETE("/:key", h.Delete)
	}

	// Sessions + analytics
	if h := cfg.AnalyticsHandler; h != nil {
		r.POST("/sessions/create", h.CreateSession)
		r.POST("/sessions/:id/end", h.EndSession)
		r.POST("/analytics/track", h.Track)
		r.GET("/analytics/files/:id/stats", h.FileStats)
		r.GET("/analytics/dashboard", h.Dashboard)
	}

	return r
}
