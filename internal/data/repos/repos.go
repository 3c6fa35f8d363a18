package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/video-gateway/internal/data/repos/media"
	"github.com/yungbote/video-gateway/internal/platform/logger"
)

type FileRecordRepo = media.FileRecordRepo
type FileRenditionRepo = media.FileRenditionRepo
type TranscodingJobRepo = media.TranscodingJobRepo
type AnalyticsEventRepo = media.AnalyticsEventRepo
type SessionRepo = media.SessionRepo

var ErrNotFound = media.ErrNotFound

// Set groups the metadata repositories. A nil *Set means no database is
// configured and callers must degrade accordingly.
type Set struct {
	Files      FileRecordRepo
	Renditions FileRenditionRepo
	Jobs       TranscodingJobRepo
	Events     AnalyticsEventRepo
	Sessions   SessionRepo
}

func NewSet(db *gorm.DB, log *logger.Logger) *Set {
	return &Set{
		Files:      media.NewFileRecordRepo(db, log),
		Renditions: media.NewFileRenditionRepo(db, log),
		Jobs:       media.NewTranscodingJobRepo(db, log),
		Events:     media.NewAnalyticsEventRepo(db, log),
		Sessions:   media.NewSessionRepo(db, log),
	}
}
