package media

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/video-gateway/internal/domain/media"
	"github.com/yungbote/video-gateway/internal/platform/dbctx"
	"github.com/yungbote/video-gateway/internal/platform/logger"
)

type FileRenditionRepo interface {
	Add(dbc dbctx.Context, r *types.FileRendition) (bool, error)
	ListByFileIDs(dbc dbctx.Context, fileIDs []uuid.UUID) ([]*types.FileRendition, error)
}

type fileRenditionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFileRenditionRepo(db *gorm.DB, baseLog *logger.Logger) FileRenditionRepo {
	return &fileRenditionRepo{db: db, log: baseLog.With("repo", "FileRenditionRepo")}
}

// Add appends to a file's quality mapping. An existing entry for the same
// quality wins; the return value reports whether r was inserted.
func (r *fileRenditionRepo) Add(dbc dbctx.Context, rendition *types.FileRendition) (bool, error) {
	res := conn(r.db, dbc).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "file_id"}, {Name: "quality"}},
			DoNothing: true,
		}).
		Create(rendition)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *fileRenditionRepo) ListByFileIDs(dbc dbctx.Context, fileIDs []uuid.UUID) ([]*types.FileRendition, error) {
	out := []*types.FileRendition{}
	if len(fileIDs) == 0 {
		return out, nil
	}
	err := conn(r.db, dbc).Where("file_id IN ?", fileIDs).Order("created_at ASC").Find(&out).Error
	return out, err
}
