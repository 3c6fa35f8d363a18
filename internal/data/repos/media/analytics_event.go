package media

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/video-gateway/internal/domain/media"
	"github.com/yungbote/video-gateway/internal/platform/dbctx"
	"github.com/yungbote/video-gateway/internal/platform/logger"
)

type FileEventStats struct {
	TotalEvents    int64            `json:"totalEvents"`
	ByType         map[string]int64 `json:"byType"`
	UniqueSessions int64            `json:"uniqueSessions"`
	AvgVideoTime   *float64         `json:"avgVideoTime,omitempty"`
	MaxVideoTime   *float64         `json:"maxVideoTime,omitempty"`
}

type AnalyticsEventRepo interface {
	Create(dbc dbctx.Context, e *types.AnalyticsEvent) error
	StatsForFile(dbc dbctx.Context, fileID uuid.UUID) (*FileEventStats, error)
	CountByTypeSince(dbc dbctx.Context, since time.Time) (map[string]int64, error)
}

type analyticsEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnalyticsEventRepo(db *gorm.DB, baseLog *logger.Logger) AnalyticsEventRepo {
	return &analyticsEventRepo{db: db, log: baseLog.With("repo", "AnalyticsEventRepo")}
}

func (r *analyticsEventRepo) Create(dbc dbctx.Context, e *types.AnalyticsEvent) error {
	return conn(r.db, dbc).Create(e).Error
}

type typeCount struct {
	EventType string
	N         int64
}

func (r *analyticsEventRepo) StatsForFile(dbc dbctx.Context, fileID uuid.UUID) (*FileEventStats, error) {
	var counts []typeCount
	err := conn(r.db, dbc).Model(&types.AnalyticsEvent{}).
		Select("event_type, COUNT(*) AS n").
		Where("file_id = ?", fileID).
		Group("event_type").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	stats := &FileEventStats{ByType: map[string]int64{}}
	for _, c := range counts {
		stats.ByType[c.EventType] = c.N
		stats.TotalEvents += c.N
	}

	if err := conn(r.db, dbc).Model(&types.AnalyticsEvent{}).
		Where("file_id = ?", fileID).
		Distinct("session_id").
		Count(&stats.UniqueSessions).Error; err != nil {
		return nil, err
	}

	var agg struct {
		AvgTime *float64
		MaxTime *float64
	}
	if err := conn(r.db, dbc).Model(&types.AnalyticsEvent{}).
		Select("AVG(video_time) AS avg_time, MAX(video_time) AS max_time").
		Where("file_id = ? AND video_time IS NOT NULL", fileID).
		Scan(&agg).Error; err != nil {
		return nil, err
	}
	stats.AvgVideoTime = agg.AvgTime
	stats.MaxVideoTime = agg.MaxTime
	return stats, nil
}

func (r *analyticsEventRepo) CountByTypeSince(dbc dbctx.Context, since time.Time) (map[string]int64, error) {
	var counts []typeCount
	err := conn(r.db, dbc).Model(&types.AnalyticsEvent{}).
		Select("event_type, COUNT(*) AS n").
		Where("occurred_at >= ?", since).
		Group("event_type").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	out := map[string]int64{}
	for _, c := range counts {
		out[c.EventType] = c.N
	}
	return out, nil
}
