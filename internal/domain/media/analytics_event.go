package media

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EventType string

const (
	EventViewStart     EventType = "view_start"
	EventViewEnd       EventType = "view_end"
	EventPause         EventType = "pause"
	EventResume        EventType = "resume"
	EventSeek          EventType = "seek"
	EventQualityChange EventType = "quality_change"
	EventError         EventType = "error"
)

var EventTypes = []EventType{
	EventViewStart, EventViewEnd, EventPause, EventResume, EventSeek, EventQualityChange, EventError,
}

func (e EventType) Valid() bool {
	for _, t := range EventTypes {
		if t == e {
			return true
		}
	}
	return false
}

// AnalyticsEvent is append-only.
type AnalyticsEvent struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	FileID    uuid.UUID         `gorm:"type:uuid;not null;index" json:"fileId"`
	SessionID string            `gorm:"column:session_id;not null;index" json:"sessionId"`
	EventType EventType         `gorm:"column:event_type;not null;index" json:"eventType"`
	Timestamp time.Time         `gorm:"column:occurred_at;not null;index" json:"timestamp"`
	VideoTime *float64          `gorm:"column:video_time" json:"videoTime,omitempty"`
	Quality   string            `gorm:"column:quality" json:"quality,omitempty"`
	Metadata  datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	UserAgent string            `gorm:"column:user_agent" json:"userAgent,omitempty"`
	ClientIP  string            `gorm:"column:client_ip" json:"clientIp,omitempty"`
}

func (AnalyticsEvent) TableName() string { return "analytics_event" }

func (e *AnalyticsEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return nil
}
