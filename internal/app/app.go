package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"

	redisclient "github.com/yungbote/video-gateway/internal/clients/redis"
	"github.com/yungbote/video-gateway/internal/data/repos"
	"github.com/yungbote/video-gateway/internal/db"
	apphttp "github.com/yungbote/video-gateway/internal/http"
	httpH "github.com/yungbote/video-gateway/internal/http/handlers"
	"github.com/yungbote/video-gateway/internal/http/response"
	"github.com/yungbote/video-gateway/internal/jobs/locks"
	"github.com/yungbote/video-gateway/internal/jobs/worker"
	"github.com/yungbote/video-gateway/internal/observability"
	"github.com/yungbote/video-gateway/internal/platform/envutil"
	"github.com/yungbote/video-gateway/internal/platform/gcp"
	"github.com/yungbote/video-gateway/internal/platform/localmedia"
	"github.com/yungbote/video-gateway/internal/platform/logger"
	"github.com/yungbote/video-gateway/internal/services/analytics"
	"github.com/yungbote/video-gateway/internal/services/media"
)

const sessionSweepInterval = time.Minute

type App struct {
	Log       *logger.Logger
	Cfg       Config
	Store     gcp.ObjectStore
	DB        *db.Service
	Repos     *repos.Set
	Redis     *goredis.Client
	Tools     *localmedia.Tools
	Pool      *worker.Pool
	Media     *media.Services
	Analytics analytics.Service
	Metrics   *observability.Metrics
	Server    *apphttp.Server

	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New(ctx context.Context) (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)
	response.ExposeInternalErrors(cfg.Development())
	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}

	a := &App{Log: log, Cfg: cfg}
	a.otelShutdown = observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: envutil.String("OTEL_SERVICE_NAME", "video-gateway"),
		Environment: cfg.AppEnv,
		Version:     cfg.Version,
	})
	a.Metrics = observability.Init(log)

	store, err := resolveObjectStore(ctx, log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	a.Store = store

	a.wireDatabase(ctx)
	a.wireRedis(ctx)
	a.wireTools()

	a.Pool = worker.NewPool(log, worker.Config{
		Concurrency: cfg.WorkerConcurrency,
		QueueSize:   cfg.WorkerQueueSize,
		TaskTimeout: cfg.WorkerTaskTimeout,
	}, a.Metrics)

	var locker locks.Locker = locks.NewKeyedMutex()
	if a.Redis != nil {
		locker = locks.NewRedisLocker(a.Redis, log)
	}
	a.Media = media.New(media.Deps{
		Log:        log,
		Store:      store,
		Repos:      a.Repos,
		Inspector:  a.Tools,
		Transcoder: a.Tools,
		Scheduler:  a.Pool,
		Locker:     locker,
		Recorder:   a.Metrics,
	}, cfg.Media, a.Tools.Presets)

	// Disabled analytics still hands out ephemeral session ids.
	if cfg.Features.Analytics {
		a.Analytics = analytics.New(log, a.Repos, cfg.SessionTTL)
	} else {
		a.Analytics = analytics.New(log, nil, cfg.SessionTTL)
	}

	a.Server = apphttp.NewServer(log, ":"+cfg.Port, apphttp.RouterConfig{
		Log:              log,
		ServiceName:      envutil.String("OTEL_SERVICE_NAME", "video-gateway"),
		AllowedOrigins:   cfg.AllowedOrigins,
		Metrics:          a.Metrics,
		HealthHandler:    httpH.NewHealthHandler(a.healthConfig()),
		FileHandler:      httpH.NewFileHandler(log, a.Media, cfg.Features, cfg.Media.MaxUploadBytes),
		AnalyticsHandler: httpH.NewAnalyticsHandler(a.Analytics, cfg.Features.Analytics),
	})
	return a, nil
}

// wireDatabase never fails startup: without a working database the gateway
// serves storage-only.
func (a *App) wireDatabase(ctx context.Context) {
	dbCfg, ok := db.ConfigFromEnv()
	if !ok {
		a.Log.Warn("No database configured; running in storage-only mode")
		return
	}
	svc, err := db.Open(ctx, a.Log, dbCfg)
	if err != nil {
		a.Log.Warn("Database unavailable; running in storage-only mode", "driver", dbCfg.Driver, "error", err)
		return
	}
	if err := svc.AutoMigrateAll(); err != nil {
		a.Log.Warn("Database migration failed; running in storage-only mode", "error", err)
		_ = svc.Close()
		return
	}
	a.DB = svc
	a.Repos = repos.NewSet(svc.DB(), a.Log)
}

func (a *App) wireRedis(ctx context.Context) {
	rdb, err := redisclient.NewClientFromEnv(ctx, a.Log)
	if err != nil {
		a.Log.Warn("Redis unavailable; using in-process task locks", "error", err)
		return
	}
	a.Redis = rdb
}

func (a *App) wireTools() {
	var presets *localmedia.PresetTable
	if path := a.Cfg.QualityPresetsFile; path != "" {
		t, err := localmedia.LoadPresetsFile(path)
		if err != nil {
			a.Log.Warn("Quality presets file ignored", "path", path, "error", err)
		} else {
			presets = t
		}
	}
	a.Tools = localmedia.New(a.Log, localmedia.Config{
		FFmpegPath:  a.Cfg.FFmpegPath,
		FFprobePath: a.Cfg.FFprobePath,
		WorkDir:     a.Cfg.MediaWorkDir,
		Presets:     presets,
	})
}

func (a *App) healthConfig() httpH.HealthConfig {
	hc := httpH.HealthConfig{
		Features: a.Cfg.Features,
		Version:  a.Cfg.Version,
		Bucket:   a.Store.Bucket(),
		Tools:    a.Tools.AssertReady,
		WorkDir:  a.Tools.WorkDir(),
	}
	if a.DB != nil {
		hc.DBDriver = a.DB.Driver()
		hc.DB = a.DB.Ping
	}
	if a.Redis != nil {
		rdb := a.Redis
		hc.Redis = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return hc
}

// Start launches background machinery. It is a no-op after the first call.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if err := a.Tools.AssertReady(ctx); err != nil {
		a.Log.Warn("Media tools not ready; processing and transcoding will fail", "error", err)
	}
	a.Pool.Start()

	if a.DB != nil {
		a.Metrics.StartDBCollector(ctx, a.Log, a.DB.DB())
	}
	a.Metrics.StartRedisCollector(ctx, a.Log, a.Redis)

	if a.Cfg.Features.Analytics && a.Repos != nil {
		go analytics.RunSweeper(ctx, a.Log, a.Analytics, sessionSweepInterval)
	}
	if path := a.Cfg.QualityPresetsFile; path != "" {
		go func() {
			if err := a.Tools.WatchPresets(ctx, path); err != nil {
				a.Log.Warn("Quality presets hot reload disabled", "path", path, "error", err)
			}
		}()
	}
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Server.Run()
}

// Shutdown stops accepting requests, drains queued tasks, then releases clients.
func (a *App) Shutdown(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if a.Pool != nil {
		if err := a.Pool.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("worker pool: %w", err))
		}
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("otel shutdown: %w", err))
		}
	}
	a.Log.Sync()
	return errors.Join(errs...)
}
