package media

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type FileRecord struct {
	ID               uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	StoredKey        string                      `gorm:"column:stored_key;not null;uniqueIndex" json:"key"`
	OriginalName     string                      `gorm:"column:original_name;not null" json:"originalName"`
	SizeBytes        int64                       `gorm:"column:size_bytes;not null;default:0" json:"size"`
	MimeType         string                      `gorm:"column:mime_type" json:"mimeType"`
	DurationSeconds  *float64                    `gorm:"column:duration_seconds" json:"duration,omitempty"`
	Resolution       string                      `gorm:"column:resolution" json:"resolution,omitempty"`
	Width            int                         `gorm:"column:width" json:"width,omitempty"`
	Height           int                         `gorm:"column:height" json:"height,omitempty"`
	FrameRate        float64                     `gorm:"column:frame_rate" json:"frameRate,omitempty"`
	Bitrate          int64                       `gorm:"column:bitrate" json:"bitrate,omitempty"`
	Codec            string                      `gorm:"column:codec" json:"codec,omitempty"`
	HasAudio         bool                        `gorm:"column:has_audio;not null;default:false" json:"hasAudio"`
	Is360            bool                        `gorm:"column:is_360;not null;default:false;index" json:"is360"`
	Projection       Projection                  `gorm:"column:projection;not null;default:'none'" json:"projection"`
	ThumbnailKey     *string                     `gorm:"column:thumbnail_key" json:"thumbnailKey,omitempty"`
	Renditions       []FileRendition             `gorm:"foreignKey:FileID;constraint:OnDelete:CASCADE" json:"-"`
	ProcessingStatus ProcessingStatus            `gorm:"column:processing_status;not null;default:'pending';index" json:"processingStatus"`
	ProcessingError  string                      `gorm:"column:processing_error" json:"processingError,omitempty"`
	ViewCount        int64                       `gorm:"column:view_count;not null;default:0" json:"viewCount"`
	LastViewedAt     *time.Time                  `gorm:"column:last_viewed_at" json:"lastViewedAt,omitempty"`
	UploaderID       *string                     `gorm:"column:uploader_id;index" json:"uploaderId,omitempty"`
	Tags             datatypes.JSONSlice[string] `gorm:"column:tags" json:"tags"`
	CreatedAt        time.Time                   `gorm:"not null;index" json:"createdAt"`
	UpdatedAt        time.Time                   `gorm:"not null" json:"updatedAt"`
}

func (FileRecord) TableName() string { return "file_record" }

func (f *FileRecord) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.ProcessingStatus == "" {
		f.ProcessingStatus = StatusPending
	}
	if f.Projection == "" {
		f.Projection = ProjectionNone
	}
	if f.Tags == nil {
		f.Tags = datatypes.JSONSlice[string]{}
	}
	return nil
}

// QualityMap returns quality label -> stored key for the loaded renditions.
func (f *FileRecord) QualityMap() map[string]string {
	out := make(map[string]string, len(f.Renditions))
	for _, r := range f.Renditions {
		out[r.Quality] = r.StoredKey
	}
	return out
}

// RenditionKey returns the stored key for quality, falling back to the original.
func (f *FileRecord) RenditionKey(quality string) (key string, found bool) {
	if quality != "" {
		for _, r := range f.Renditions {
			if r.Quality == quality {
				return r.StoredKey, true
			}
		}
	}
	return f.StoredKey, false
}
