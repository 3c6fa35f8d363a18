package media

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FileRendition is one entry of a file's quality mapping. Rows are only ever
// inserted; (file_id, quality) is unique.
type FileRendition struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FileID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_file_rendition_quality" json:"fileId"`
	Quality   string    `gorm:"column:quality;not null;uniqueIndex:idx_file_rendition_quality" json:"quality"`
	StoredKey string    `gorm:"column:stored_key;not null" json:"key"`
	Width     int       `gorm:"column:width" json:"width,omitempty"`
	Height    int       `gorm:"column:height" json:"height,omitempty"`
	Bitrate   int64     `gorm:"column:bitrate" json:"bitrate,omitempty"`
	SizeBytes int64     `gorm:"column:size_bytes" json:"size,omitempty"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
}

func (FileRendition) TableName() string { return "file_rendition" }

func (r *FileRendition) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
