package observability

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/video-gateway/internal/platform/envutil"
	"github.com/yungbote/video-gateway/internal/platform/logger"
)

// Metrics owns a private registry; it implements worker.Observer and the media
// Recorder so the pool and services report through it.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	taskTotal    *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	queueDepth   prometheus.Gauge

	processingTotal   *prometheus.CounterVec
	transcodeTotal    *prometheus.CounterVec
	transcodeDuration *prometheus.HistogramVec
	bytesStreamed     prometheus.Counter

	dbStats   *prometheus.GaugeVec
	redisUp   prometheus.Gauge
	redisPing prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", true)
}

func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	n := envutil.Int("METRICS_SCRAPE_INTERVAL_SECONDS", 10)
	if n <= 0 {
		n = 10
	}
	return time.Duration(n) * time.Second
}

// Init builds the process-wide metrics once. It returns nil when disabled.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics()
		if log != nil {
			log.Info("Prometheus metrics enabled")
		}
	})
	return instance
}

// NewMetrics builds an independent set of collectors, mostly for tests.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		apiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vg_api_requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vg_api_request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method", "route", "status"}),
		apiInflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "vg_api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		taskTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vg_worker_tasks_total",
			Help: "Background tasks by kind/outcome.",
		}, []string{"kind", "outcome"}),
		taskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vg_worker_task_duration_seconds",
			Help:    "Background task duration in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 1800, 3600},
		}, []string{"kind", "outcome"}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "vg_worker_queue_depth",
			Help: "Tasks waiting in the worker queue.",
		}),
		processingTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vg_processing_total",
			Help: "Metadata extraction runs by outcome.",
		}, []string{"outcome"}),
		transcodeTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vg_transcodes_total",
			Help: "Transcoding jobs by quality/outcome.",
		}, []string{"quality", "outcome"}),
		transcodeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vg_transcode_duration_seconds",
			Help:    "Transcode wall time in seconds by quality.",
			Buckets: prometheus.ExponentialBuckets(5, 2, 11),
		}, []string{"quality"}),
		bytesStreamed: f.NewCounter(prometheus.CounterOpts{
			Name: "vg_stream_bytes_total",
			Help: "Bytes served by the stream endpoint.",
		}),
		dbStats: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vg_db_stats",
			Help: "Database connection pool stats.",
		}, []string{"metric"}),
		redisUp: f.NewGauge(prometheus.GaugeOpts{
			Name: "vg_redis_up",
			Help: "Redis connectivity (1=up, 0=down).",
		}),
		redisPing: f.NewGauge(prometheus.GaugeOpts{
			Name: "vg_redis_ping_seconds",
			Help: "Redis ping latency in seconds.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.apiRequests.WithLabelValues(method, route, code).Inc()
	m.apiLatency.WithLabelValues(method, route, code).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) ApiInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

func (m *Metrics) TaskFinished(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.taskTotal.WithLabelValues(kind, outcome).Inc()
	m.taskDuration.WithLabelValues(kind, outcome).Observe(d.Seconds())
}

func (m *Metrics) QueueDepth(n int) {
	if m != nil {
		m.queueDepth.Set(float64(n))
	}
}

func (m *Metrics) ProcessingFinished(outcome string) {
	if m != nil {
		m.processingTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) TranscodeFinished(quality, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.transcodeTotal.WithLabelValues(quality, outcome).Inc()
	if outcome == "completed" {
		m.transcodeDuration.WithLabelValues(quality).Observe(d.Seconds())
	}
}

func (m *Metrics) BytesStreamed(n int64) {
	if m != nil && n > 0 {
		m.bytesStreamed.Add(float64(n))
	}
}

// StartDBCollector samples pool stats until ctx is done.
func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		if log != nil {
			log.Warn("db metrics collector disabled", "error", err)
		}
		return
	}
	go func() {
		t := time.NewTicker(scrapeInterval())
		defer t.Stop()
		for {
			stats := sqlDB.Stats()
			m.dbStats.WithLabelValues("open_connections").Set(float64(stats.OpenConnections))
			m.dbStats.WithLabelValues("in_use").Set(float64(stats.InUse))
			m.dbStats.WithLabelValues("idle").Set(float64(stats.Idle))
			m.dbStats.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
			m.dbStats.WithLabelValues("wait_duration_seconds").Set(stats.WaitDuration.Seconds())
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *goredis.Client) {
	if m == nil || rdb == nil {
		return
	}
	go func() {
		t := time.NewTicker(scrapeInterval())
		defer t.Stop()
		for {
			start := time.Now()
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := rdb.Ping(pctx).Err()
			cancel()
			if err != nil {
				m.redisUp.Set(0)
				if log != nil && ctx.Err() == nil {
					log.Debug("redis ping failed", "error", err)
				}
			} else {
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
}
