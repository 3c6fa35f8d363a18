package media

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/video-gateway/internal/data/repos"
	"github.com/yungbote/video-gateway/internal/jobs/locks"
	"github.com/yungbote/video-gateway/internal/jobs/worker"
	"github.com/yungbote/video-gateway/internal/platform/apierr"
	"github.com/yungbote/video-gateway/internal/platform/gcp"
	"github.com/yungbote/video-gateway/internal/platform/localmedia"
	"github.com/yungbote/video-gateway/internal/platform/logger"
)

type Config struct {
	UploadPrefix    string
	ThumbnailPrefix string
	TranscodePrefix string

	MaxUploadBytes int64
	AllowedTypes   []string

	ReadURLTTL      time.Duration
	ProbeURLTTL     time.Duration
	TranscodeURLTTL time.Duration

	ThumbnailsEnabled  bool
	TranscodingEnabled bool
	// ProcessingThumbnailOffset is where the processing task grabs its poster frame.
	ProcessingThumbnailOffset float64
}

func (c Config) withDefaults() Config {
	if c.UploadPrefix == "" {
		c.UploadPrefix = "360-videos"
	}
	if c.ThumbnailPrefix == "" {
		c.ThumbnailPrefix = "thumbnails"
	}
	if c.TranscodePrefix == "" {
		c.TranscodePrefix = "transcoded"
	}
	c.UploadPrefix = strings.Trim(c.UploadPrefix, "/")
	c.ThumbnailPrefix = strings.Trim(c.ThumbnailPrefix, "/")
	c.TranscodePrefix = strings.Trim(c.TranscodePrefix, "/")
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 5 << 30
	}
	if len(c.AllowedTypes) == 0 {
		c.AllowedTypes = DefaultAllowedTypes
	}
	if c.ReadURLTTL <= 0 {
		c.ReadURLTTL = gcp.DefaultSignedURLTTL
	}
	if c.ProbeURLTTL <= 0 {
		c.ProbeURLTTL = 15 * time.Minute
	}
	if c.TranscodeURLTTL <= 0 {
		c.TranscodeURLTTL = 6 * time.Hour
	}
	if c.ProcessingThumbnailOffset <= 0 {
		c.ProcessingThumbnailOffset = 1
	}
	return c
}

// Scheduler accepts fire-and-forget background tasks.
type Scheduler interface {
	Submit(t worker.Task) error
}

// Recorder receives pipeline outcomes for metrics. Nil disables recording.
type Recorder interface {
	ProcessingFinished(outcome string)
	TranscodeFinished(quality, outcome string, d time.Duration)
	BytesStreamed(n int64)
}

type Deps struct {
	Log        *logger.Logger
	Store      gcp.ObjectStore
	Repos      *repos.Set
	Inspector  localmedia.Inspector
	Transcoder localmedia.Transcoder
	Scheduler  Scheduler
	Locker     locks.Locker
	Recorder   Recorder
}

type core struct {
	log        *logger.Logger
	cfg        Config
	store      gcp.ObjectStore
	repos      *repos.Set
	inspector  localmedia.Inspector
	transcoder localmedia.Transcoder
	scheduler  Scheduler
	locker     locks.Locker
	recorder   Recorder
}

func newCore(deps Deps, cfg Config, name string) *core {
	locker := deps.Locker
	if locker == nil {
		locker = locks.NewKeyedMutex()
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &core{
		log:        deps.Log.With("service", name),
		cfg:        cfg.withDefaults(),
		store:      deps.Store,
		repos:      deps.Repos,
		inspector:  deps.Inspector,
		transcoder: deps.Transcoder,
		scheduler:  deps.Scheduler,
		locker:     locker,
		recorder:   recorder,
	}
}

type nopRecorder struct{}

func (nopRecorder) ProcessingFinished(string)                        {}
func (nopRecorder) TranscodeFinished(string, string, time.Duration) {}
func (nopRecorder) BytesStreamed(int64)                             {}

var errFileNotFound = errors.New("File not found")

// ErrRecordNotFound is returned by the metadata repositories for missing rows.
var ErrRecordNotFound = repos.ErrNotFound

func fileNotFound() *apierr.Error {
	return apierr.NotFound("file_not_found", errFileNotFound)
}

// storeErr maps object store failures: missing objects are 404, everything else 500.
func storeErr(code string, err error) error {
	if errors.Is(err, gcp.ErrObjectNotFound) {
		return fileNotFound()
	}
	return apierr.New(http.StatusInternalServerError, code, err)
}

// bestEffort bounds repository side effects that must not hold up a response.
func bestEffort(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Services is the gateway's media surface wired from one set of dependencies.
type Services struct {
	Uploads    UploadService
	Processing ProcessingService
	Transcodes TranscodeService
	Thumbnails ThumbnailService
	Streams    StreamService
	Catalog    CatalogService
}

func New(deps Deps, cfg Config, presets func() *localmedia.PresetTable) *Services {
	processing := NewProcessingService(deps, cfg)
	transcodes := NewTranscodeService(deps, cfg, presets)
	return &Services{
		Uploads:    NewUploadService(deps, cfg, processing, transcodes),
		Processing: processing,
		Transcodes: transcodes,
		Thumbnails: NewThumbnailService(deps, cfg),
		Streams:    NewStreamService(deps, cfg),
		Catalog:    NewCatalogService(deps, cfg),
	}
}
