package media

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/video-gateway/internal/domain/media"
	"github.com/yungbote/video-gateway/internal/platform/dbctx"
	"github.com/yungbote/video-gateway/internal/platform/logger"
)

type FileQuery struct {
	Prefix string
	Limit  int
	Offset int
}

type FileTotals struct {
	Count      int64 `json:"totalFiles"`
	TotalBytes int64 `json:"totalSize"`
	TotalViews int64 `json:"totalViews"`
}

type FileRecordRepo interface {
	Create(dbc dbctx.Context, f *types.FileRecord) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.FileRecord, error)
	GetByStoredKey(dbc dbctx.Context, key string) (*types.FileRecord, error)
	GetByStoredKeys(dbc dbctx.Context, keys []string) ([]*types.FileRecord, error)
	List(dbc dbctx.Context, q FileQuery) ([]*types.FileRecord, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	TransitionStatus(dbc dbctx.Context, id uuid.UUID, from, to types.ProcessingStatus, updates map[string]interface{}) (bool, error)
	IncrementViews(dbc dbctx.Context, id uuid.UUID, at time.Time) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
	CountByStatus(dbc dbctx.Context) (map[types.ProcessingStatus]int64, error)
	Totals(dbc dbctx.Context) (*FileTotals, error)
	TopViewed(dbc dbctx.Context, limit int) ([]*types.FileRecord, error)
}

type fileRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFileRecordRepo(db *gorm.DB, baseLog *logger.Logger) FileRecordRepo {
	return &fileRecordRepo{db: db, log: baseLog.With("repo", "FileRecordRepo")}
}

func (r *fileRecordRepo) Create(dbc dbctx.Context, f *types.FileRecord) error {
	return conn(r.db, dbc).Create(f).Error
}

func (r *fileRecordRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.FileRecord, error) {
	var f types.FileRecord
	if err := conn(r.db, dbc).Preload("Renditions").Where("id = ?", id).First(&f).Error; err != nil {
		return nil, notFound(err)
	}
	return &f, nil
}

func (r *fileRecordRepo) GetByStoredKey(dbc dbctx.Context, key string) (*types.FileRecord, error) {
	var f types.FileRecord
	if err := conn(r.db, dbc).Preload("Renditions").Where("stored_key = ?", key).First(&f).Error; err != nil {
		return nil, notFound(err)
	}
	return &f, nil
}

func (r *fileRecordRepo) GetByStoredKeys(dbc dbctx.Context, keys []string) ([]*types.FileRecord, error) {
	out := []*types.FileRecord{}
	if len(keys) == 0 {
		return out, nil
	}
	// Renditions are not preloaded; callers batch them through FileRenditionRepo.ListByFileIDs.
	if err := conn(r.db, dbc).Where("stored_key IN ?", keys).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fileRecordRepo) List(dbc dbctx.Context, q FileQuery) ([]*types.FileRecord, error) {
	if q.Limit <= 0 || q.Limit > 1000 {
		q.Limit = 100
	}
	tx := conn(r.db, dbc).Preload("Renditions")
	if q.Prefix != "" {
		tx = tx.Where(`stored_key LIKE ? ESCAPE '\'`, likePrefix(q.Prefix))
	}
	out := []*types.FileRecord{}
	err := tx.Order("created_at DESC").Limit(q.Limit).Offset(q.Offset).Find(&out).Error
	return out, err
}

func (r *fileRecordRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := conn(r.db, dbc).Model(&types.FileRecord{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TransitionStatus applies updates together with the status change only when the
// row is still in from. It reports whether the row was changed.
func (r *fileRecordRepo) TransitionStatus(dbc dbctx.Context, id uuid.UUID, from, to types.ProcessingStatus, updates map[string]interface{}) (bool, error) {
	if !types.CanTransition(from, to) {
		return false, nil
	}
	fields := map[string]interface{}{}
	for k, v := range updates {
		fields[k] = v
	}
	fields["processing_status"] = to
	fields["updated_at"] = time.Now().UTC()
	res := conn(r.db, dbc).Model(&types.FileRecord{}).
		Where("id = ? AND processing_status = ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *fileRecordRepo) IncrementViews(dbc dbctx.Context, id uuid.UUID, at time.Time) error {
	return conn(r.db, dbc).Model(&types.FileRecord{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"view_count":     gorm.Expr("view_count + 1"),
			"last_viewed_at": at,
		}).Error
}

func (r *fileRecordRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	return conn(r.db, dbc).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("file_id = ?", id).Delete(&types.FileRendition{}).Error; err != nil {
			return err
		}
		if err := txx.Where("file_id = ?", id).Delete(&types.TranscodingJob{}).Error; err != nil {
			return err
		}
		res := txx.Where("id = ?", id).Delete(&types.FileRecord{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *fileRecordRepo) CountByStatus(dbc dbctx.Context) (map[types.ProcessingStatus]int64, error) {
	var rows []struct {
		ProcessingStatus types.ProcessingStatus
		N                int64
	}
	err := conn(r.db, dbc).Model(&types.FileRecord{}).
		Select("processing_status, COUNT(*) AS n").
		Group("processing_status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := map[types.ProcessingStatus]int64{}
	for _, row := range rows {
		out[row.ProcessingStatus] = row.N
	}
	return out, nil
}

func (r *fileRecordRepo) Totals(dbc dbctx.Context) (*FileTotals, error) {
	var t FileTotals
	err := conn(r.db, dbc).Model(&types.FileRecord{}).
		Select("COUNT(*) AS count, COALESCE(SUM(size_bytes), 0) AS total_bytes, COALESCE(SUM(view_count), 0) AS total_views").
		Scan(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *fileRecordRepo) TopViewed(dbc dbctx.Context, limit int) ([]*types.FileRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	out := []*types.FileRecord{}
	err := conn(r.db, dbc).
		Where("view_count > 0").
		Order("view_count DESC, created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
