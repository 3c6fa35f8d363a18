package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/video-gateway/internal/data/repos"
	mediarepo "github.com/yungbote/video-gateway/internal/data/repos/media"
	types "github.com/yungbote/video-gateway/internal/domain/media"
	"github.com/yungbote/video-gateway/internal/platform/apierr"
	"github.com/yungbote/video-gateway/internal/platform/dbctx"
	"github.com/yungbote/video-gateway/internal/platform/logger"
)

const DefaultSessionTTL = 30 * time.Minute

type SessionInput struct {
	UserID     string
	DeviceType string
	Platform   string
}

type SessionResult struct {
	SessionID string    `json:"sessionId"`
	StartedAt time.Time `json:"startedAt"`
	Persisted bool      `json:"persisted"`
}

type TrackInput struct {
	// FileID or FileKey identifies the video.
	FileID    string
	FileKey   string
	SessionID string
	EventType string
	VideoTime *float64
	Quality   string
	Metadata  map[string]interface{}
	Timestamp *time.Time
	UserAgent string
	ClientIP  string
}

type TrackResult struct {
	EventID uuid.UUID `json:"eventId"`
	FileID  uuid.UUID `json:"fileId"`
}

type FileStats struct {
	FileID       uuid.UUID                 `json:"fileId"`
	Key          string                    `json:"key"`
	ViewCount    int64                     `json:"viewCount"`
	LastViewedAt *time.Time                `json:"lastViewedAt,omitempty"`
	Events       *mediarepo.FileEventStats `json:"events"`
}

type Dashboard struct {
	TotalFiles     int64                            `json:"totalFiles"`
	TotalBytes     int64                            `json:"totalSize"`
	TotalViews     int64                            `json:"totalViews"`
	ByStatus       map[types.ProcessingStatus]int64 `json:"filesByStatus"`
	JobsByStatus   map[types.JobStatus]int64        `json:"jobsByStatus"`
	TopViewed      []*types.FileRecord              `json:"topViewed"`
	EventsLast24h  map[string]int64                 `json:"eventsLast24h"`
	ActiveSessions int64                            `json:"activeSessions"`
	GeneratedAt    time.Time                        `json:"generatedAt"`
}

type Service interface {
	CreateSession(ctx context.Context, in SessionInput) (*SessionResult, error)
	EndSession(ctx context.Context, sessionID string) error
	Track(ctx context.Context, in TrackInput) (*TrackResult, error)
	FileStats(ctx context.Context, fileID string) (*FileStats, error)
	Dashboard(ctx context.Context) (*Dashboard, error)
	// ExpireIdle ends sessions idle past the TTL and returns how many.
	ExpireIdle(ctx context.Context) (int64, error)
}

type service struct {
	log        *logger.Logger
	repos      *repos.Set
	sessionTTL time.Duration
	now        func() time.Time
}

func New(log *logger.Logger, rs *repos.Set, sessionTTL time.Duration) Service {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &service{
		log:        log.With("service", "AnalyticsService"),
		repos:      rs,
		sessionTTL: sessionTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession persists a playback session, or hands out an ephemeral id when
// no database is configured.
func (s *service) CreateSession(ctx context.Context, in SessionInput) (*SessionResult, error) {
	now := s.now()
	if s.repos == nil {
		return &SessionResult{SessionID: uuid.NewString(), StartedAt: now, Persisted: false}, nil
	}
	sess := &types.Session{
		SessionID:  uuid.NewString(),
		DeviceType: truncate(strings.TrimSpace(in.DeviceType), 64),
		Platform:   truncate(strings.TrimSpace(in.Platform), 64),
		StartedAt:  now,
		IsActive:   true,
	}
	if uid := strings.TrimSpace(in.UserID); uid != "" {
		sess.UserID = &uid
	}
	if err := s.repos.Sessions.Create(dbctx.From(ctx), sess); err != nil {
		s.log.Warn("Session not persisted; returning ephemeral id", "error", err)
		return &SessionResult{SessionID: sess.SessionID, StartedAt: now, Persisted: false}, nil
	}
	return &SessionResult{SessionID: sess.SessionID, StartedAt: sess.StartedAt, Persisted: true}, nil
}

func (s *service) EndSession(ctx context.Context, sessionID string) error {
	if s.repos == nil {
		return apierr.RepositoryUnavailable()
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return apierr.Validation("missing_session_id", errors.New("sessionId is required"))
	}
	dbc := dbctx.From(ctx)
	ended, err := s.repos.Sessions.End(dbc, sessionID, s.now())
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if ended {
		return nil
	}
	if _, err := s.repos.Sessions.GetBySessionID(dbc, sessionID); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return apierr.NotFound("session_not_found", errors.New("Session not found"))
		}
		return err
	}
	// Already ended.
	return nil
}

func (s *service) Track(ctx context.Context, in TrackInput) (*TrackResult, error) {
	if s.repos == nil {
		return nil, apierr.RepositoryUnavailable()
	}
	evType := types.EventType(strings.TrimSpace(in.EventType))
	if !evType.Valid() {
		return nil, apierr.Validation("invalid_event_type", fmt.Errorf("Unknown eventType %q", in.EventType))
	}
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, apierr.Validation("missing_session_id", errors.New("sessionId is required"))
	}
	if in.VideoTime != nil && *in.VideoTime < 0 {
		return nil, apierr.Validation("invalid_video_time", errors.New("videoTime must not be negative"))
	}

	dbc := dbctx.From(ctx)
	rec, err := s.resolveFile(dbc, in.FileID, in.FileKey)
	if err != nil {
		return nil, err
	}

	ts := s.now()
	if in.Timestamp != nil && !in.Timestamp.IsZero() {
		ts = in.Timestamp.UTC()
	}
	ev := &types.AnalyticsEvent{
		FileID:    rec.ID,
		SessionID: sessionID,
		EventType: evType,
		Timestamp: ts,
		VideoTime: in.VideoTime,
		Quality:   strings.TrimSpace(in.Quality),
		Metadata:  in.Metadata,
		UserAgent: truncate(in.UserAgent, 512),
		ClientIP:  in.ClientIP,
	}
	if err := s.repos.Events.Create(dbc, ev); err != nil {
		return nil, fmt.Errorf("record event: %w", err)
	}
	if err := s.repos.Sessions.Touch(dbc, sessionID, s.now()); err != nil {
		s.log.Debug("Session touch failed", "session_id", sessionID, "error", err)
	}
	return &TrackResult{EventID: ev.ID, FileID: rec.ID}, nil
}

func (s *service) resolveFile(dbc dbctx.Context, fileID, fileKey string) (*types.FileRecord, error) {
	var (
		rec *types.FileRecord
		err error
	)
	switch {
	case strings.TrimSpace(fileID) != "":
		id, perr := uuid.Parse(strings.TrimSpace(fileID))
		if perr != nil {
			return nil, apierr.Validation("invalid_file_id", errors.New("fileId must be a UUID"))
		}
		rec, err = s.repos.Files.GetByID(dbc, id)
	case strings.TrimSpace(fileKey) != "":
		rec, err = s.repos.Files.GetByStoredKey(dbc, strings.TrimSpace(fileKey))
	default:
		return nil, apierr.Validation("missing_file", errors.New("fileId or fileKey is required"))
	}
	if errors.Is(err, repos.ErrNotFound) {
		return nil, apierr.NotFound("file_not_found", errors.New("File not found"))
	}
	return rec, err
}

func (s *service) FileStats(ctx context.Context, fileID string) (*FileStats, error) {
	if s.repos == nil {
		return nil, apierr.RepositoryUnavailable()
	}
	dbc := dbctx.From(ctx)
	rec, err := s.resolveFile(dbc, fileID, "")
	if err != nil {
		return nil, err
	}
	events, err := s.repos.Events.StatsForFile(dbc, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("event stats: %w", err)
	}
	return &FileStats{
		FileID:       rec.ID,
		Key:          rec.StoredKey,
		ViewCount:    rec.ViewCount,
		LastViewedAt: rec.LastViewedAt,
		Events:       events,
	}, nil
}

func (s *service) Dashboard(ctx context.Context) (*Dashboard, error) {
	if s.repos == nil {
		return nil, apierr.RepositoryUnavailable()
	}
	out := &Dashboard{GeneratedAt: s.now()}
	g, gctx := errgroup.WithContext(ctx)
	dbc := dbctx.From(gctx)

	g.Go(func() error {
		t, err := s.repos.Files.Totals(dbc)
		if err != nil {
			return fmt.Errorf("totals: %w", err)
		}
		out.TotalFiles, out.TotalBytes, out.TotalViews = t.Count, t.TotalBytes, t.TotalViews
		return nil
	})
	g.Go(func() error {
		m, err := s.repos.Files.CountByStatus(dbc)
		out.ByStatus = m
		return err
	})
	g.Go(func() error {
		m, err := s.repos.Jobs.CountByStatus(dbc)
		out.JobsByStatus = m
		return err
	})
	g.Go(func() error {
		top, err := s.repos.Files.TopViewed(dbc, 10)
		out.TopViewed = top
		return err
	})
	g.Go(func() error {
		m, err := s.repos.Events.CountByTypeSince(dbc, out.GeneratedAt.Add(-24*time.Hour))
		out.EventsLast24h = m
		return err
	})
	g.Go(func() error {
		n, err := s.repos.Sessions.CountActive(dbc)
		out.ActiveSessions = n
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	return out, nil
}

func (s *service) ExpireIdle(ctx context.Context) (int64, error) {
	if s.repos == nil {
		return 0, nil
	}
	now := s.now()
	n, err := s.repos.Sessions.ExpireIdle(dbctx.From(ctx), now.Add(-s.sessionTTL), now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("Expired idle sessions", "count", n, "ttl", s.sessionTTL.String())
	}
	return n, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
