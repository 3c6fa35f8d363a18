package media

import (
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/video-gateway/internal/domain/media"
	"github.com/yungbote/video-gateway/internal/platform/dbctx"
	"github.com/yungbote/video-gateway/internal/platform/logger"
)

type SessionRepo interface {
	Create(dbc dbctx.Context, s *types.Session) error
	GetBySessionID(dbc dbctx.Context, sessionID string) (*types.Session, error)
	Touch(dbc dbctx.Context, sessionID string, at time.Time) error
	End(dbc dbctx.Context, sessionID string, at time.Time) (bool, error)
	ExpireIdle(dbc dbctx.Context, idleBefore time.Time, at time.Time) (int64, error)
	CountActive(dbc dbctx.Context) (int64, error)
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: baseLog.With("repo", "SessionRepo")}
}

func (r *sessionRepo) Create(dbc dbctx.Context, s *types.Session) error {
	return conn(r.db, dbc).Create(s).Error
}

func (r *sessionRepo) GetBySessionID(dbc dbctx.Context, sessionID string) (*types.Session, error) {
	var s types.Session
	if err := conn(r.db, dbc).Where("session_id = ?", sessionID).First(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// Touch bumps last activity on an active session. Unknown or ended sessions are ignored.
func (r *sessionRepo) Touch(dbc dbctx.Context, sessionID string, at time.Time) error {
	return conn(r.db, dbc).Model(&types.Session{}).
		Where("session_id = ? AND is_active = ?", sessionID, true).
		Update("last_activity_at", at).Error
}

func (r *sessionRepo) End(dbc dbctx.Context, sessionID string, at time.Time) (bool, error) {
	res := conn(r.db, dbc).Model(&types.Session{}).
		Where("session_id = ? AND is_active = ?", sessionID, true).
		Updates(map[string]interface{}{
			"is_active":        false,
			"ended_at":         at,
			"last_activity_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *sessionRepo) ExpireIdle(dbc dbctx.Context, idleBefore time.Time, at time.Time) (int64, error) {
	res := conn(r.db, dbc).Model(&types.Session{}).
		Where("is_active = ? AND last_activity_at < ?", true, idleBefore).
		Updates(map[string]interface{}{
			"is_active": false,
			"ended_at":  at,
		})
	return res.RowsAffected, res.Error
}

func (r *sessionRepo) CountActive(dbc dbctx.Context) (int64, error) {
	var n int64
	err := conn(r.db, dbc).Model(&types.Session{}).Where("is_active = ?", true).Count(&n).Error
	return n, err
}
