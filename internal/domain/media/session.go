package media

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Session struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"-"`
	SessionID      string     `gorm:"column:session_id;not null;uniqueIndex" json:"sessionId"`
	UserID         *string    `gorm:"column:user_id;index" json:"userId,omitempty"`
	DeviceType     string     `gorm:"column:device_type" json:"deviceType,omitempty"`
	Platform       string     `gorm:"column:platform" json:"platform,omitempty"`
	StartedAt      time.Time  `gorm:"column:started_at;not null" json:"startedAt"`
	LastActivityAt time.Time  `gorm:"column:last_activity_at;not null;index" json:"lastActivityAt"`
	EndedAt        *time.Time `gorm:"column:ended_at" json:"endedAt,omitempty"`
	IsActive       bool       `gorm:"column:is_active;not null;default:true;index" json:"isActive"`
}

func (Session) TableName() string { return "playback_session" }

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.SessionID == "" {
		s.SessionID = uuid.NewString()
	}
	now := time.Now().UTC()
	if s.StartedAt.IsZero() {
		s.StartedAt = now
	}
	if s.LastActivityAt.IsZero() {
		s.LastActivityAt = s.StartedAt
	}
	return nil
}
