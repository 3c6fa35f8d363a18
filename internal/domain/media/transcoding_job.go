package media

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TranscodingJob struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	FileID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"fileId"`
	Quality     string     `gorm:"column:quality;not null" json:"quality"`
	Status      JobStatus  `gorm:"column:status;not null;index" json:"status"`
	OutputKey   *string    `gorm:"column:output_key" json:"outputKey,omitempty"`
	Progress    int        `gorm:"column:progress;not null;default:0" json:"progress"`
	Error       string     `gorm:"column:error" json:"error,omitempty"`
	StartedAt   *time.Time `gorm:"column:started_at" json:"startedAt,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completedAt,omitempty"`
	CreatedAt   time.Time  `gorm:"not null;index" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updatedAt"`
}

func (TranscodingJob) TableName() string { return "transcoding_job" }

func (j *TranscodingJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.Status == "" {
		j.Status = JobQueued
	}
	return nil
}
