package media

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/video-gateway/internal/domain/media"
	"github.com/yungbote/video-gateway/internal/platform/dbctx"
	"github.com/yungbote/video-gateway/internal/platform/logger"
)

type TranscodingJobRepo interface {
	CreateQueued(dbc dbctx.Context, fileID uuid.UUID, quality string) (*types.TranscodingJob, bool, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.TranscodingJob, error)
	GetActive(dbc dbctx.Context, fileID uuid.UUID, quality string) (*types.TranscodingJob, error)
	ListByFile(dbc dbctx.Context, fileID uuid.UUID) ([]*types.TranscodingJob, error)
	Transition(dbc dbctx.Context, id uuid.UUID, from, to types.JobStatus, updates map[string]interface{}) (bool, error)
	CountByFile(dbc dbctx.Context, fileID uuid.UUID) (int64, error)
	CountByStatus(dbc dbctx.Context) (map[types.JobStatus]int64, error)
}

type transcodingJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTranscodingJobRepo(db *gorm.DB, baseLog *logger.Logger) TranscodingJobRepo {
	return &transcodingJobRepo{db: db, log: baseLog.With("repo", "TranscodingJobRepo")}
}

// CreateQueued inserts a queued job unless an active one exists for the same
// (file, quality); in that case the active job is returned with created=false.
// The partial unique index on active jobs settles concurrent callers.
func (r *transcodingJobRepo) CreateQueued(dbc dbctx.Context, fileID uuid.UUID, quality string) (*types.TranscodingJob, bool, error) {
	if existing, err := r.GetActive(dbc, fileID, quality); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	job := &types.TranscodingJob{FileID: fileID, Quality: quality, Status: types.JobQueued}
	createErr := conn(r.db, dbc).Create(job).Error
	if createErr == nil {
		return job, true, nil
	}
	if existing, err := r.GetActive(dbc, fileID, quality); err == nil {
		return existing, false, nil
	}
	if errors.Is(createErr, gorm.ErrDuplicatedKey) {
		r.log.Warn("Active job vanished after duplicate insert", "file_id", fileID, "quality", quality)
	}
	return nil, false, createErr
}

func (r *transcodingJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.TranscodingJob, error) {
	var job types.TranscodingJob
	if err := conn(r.db, dbc).Where("id = ?", id).First(&job).Error; err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

func (r *transcodingJobRepo) GetActive(dbc dbctx.Context, fileID uuid.UUID, quality string) (*types.TranscodingJob, error) {
	var job types.TranscodingJob
	err := conn(r.db, dbc).
		Where("file_id = ? AND quality = ? AND status IN ?", fileID, quality, []types.JobStatus{types.JobQueued, types.JobProcessing}).
		Order("created_at DESC").
		First(&job).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

func (r *transcodingJobRepo) ListByFile(dbc dbctx.Context, fileID uuid.UUID) ([]*types.TranscodingJob, error) {
	out := []*types.TranscodingJob{}
	err := conn(r.db, dbc).Where("file_id = ?", fileID).Order("created_at DESC").Find(&out).Error
	return out, err
}

// Transition is a compare-and-set on status; it reports whether the row moved.
func (r *transcodingJobRepo) Transition(dbc dbctx.Context, id uuid.UUID, from, to types.JobStatus, updates map[string]interface{}) (bool, error) {
	if !types.CanTransitionJob(from, to) {
		return false, nil
	}
	fields := map[string]interface{}{}
	for k, v := range updates {
		fields[k] = v
	}
	fields["status"] = to
	fields["updated_at"] = time.Now().UTC()
	res := conn(r.db, dbc).Model(&types.TranscodingJob{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *transcodingJobRepo) CountByFile(dbc dbctx.Context, fileID uuid.UUID) (int64, error) {
	var n int64
	err := conn(r.db, dbc).Model(&types.TranscodingJob{}).Where("file_id = ?", fileID).Count(&n).Error
	return n, err
}

func (r *transcodingJobRepo) CountByStatus(dbc dbctx.Context) (map[types.JobStatus]int64, error) {
	var rows []struct {
		Status types.JobStatus
		N      int64
	}
	err := conn(r.db, dbc).Model(&types.TranscodingJob{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := map[types.JobStatus]int64{}
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}
