package media

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"time"

	types "github.com/yungbote/video-gateway/internal/domain/media"
	"github.com/yungbote/video-gateway/internal/platform/apierr"
	"github.com/yungbote/video-gateway/internal/platform/dbctx"
	"github.com/yungbote/video-gateway/internal/platform/gcp"
)

type SignedURLInput struct {
	Key         string
	Quality     string
	Action      gcp.SignedAction
	TTL         time.Duration
	ContentType string
}

type SignedURLResult struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	Action    string    `json:"action"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Stream is an open object body plus what a handler needs for the headers.
type Stream struct {
	Body        io.ReadCloser
	Key         string
	Size        int64
	ContentType string
	ETag        string
	Updated     time.Time
	Range       ByteRange
	Partial     bool
}

// Length is the number of body bytes that will be served.
func (s *Stream) Length() int64 {
	if s.Partial {
		return s.Range.Length()
	}
	return s.Size
}

type ViewInput struct {
	Key       string
	SessionID string
	Quality   string
	UserAgent string
	ClientIP  string
}

type StreamService interface {
	// ResolveKey maps (key, quality) to a rendition key, or back to key itself.
	ResolveKey(ctx context.Context, key, quality string) string
	SignedURL(ctx context.Context, in SignedURLInput) (*SignedURLResult, error)
	Open(ctx context.Context, key, rangeHeader string) (*Stream, error)
	RecordView(ctx context.Context, in ViewInput)
}

type streamService struct {
	*core
}

func NewStreamService(deps Deps, cfg Config) StreamService {
	return &streamService{core: newCore(deps, cfg, "StreamService")}
}

func (s *streamService) ResolveKey(ctx context.Context, key, quality string) string {
	quality = strings.ToLower(strings.TrimSpace(quality))
	if quality == "" || s.repos == nil {
		return key
	}
	rec, err := s.repos.Files.GetByStoredKey(dbctx.From(ctx), key)
	if err != nil {
		if !errors.Is(err, ErrRecordNotFound) {
			s.log.Warn("Quality lookup failed; serving original", "key", key, "quality", quality, "error", err)
		}
		return key
	}
	resolved, _ := rec.RenditionKey(quality)
	return resolved
}

func (s *streamService) SignedURL(ctx context.Context, in SignedURLInput) (*SignedURLResult, error) {
	ttl := in.TTL
	if ttl <= 0 {
		ttl = s.cfg.ReadURLTTL
	}
	action := in.Action
	if action == "" {
		action = gcp.SignedActionRead
	}

	opts := gcp.SignedURLOptions{Action: action, TTL: ttl}
	key := in.Key
	switch action {
	case gcp.SignedActionRead:
		key = s.ResolveKey(ctx, in.Key, in.Quality)
		exists, err := s.store.Exists(ctx, key)
		if err != nil {
			return nil, storeErr("exists_failed", err)
		}
		if !exists {
			return nil, fileNotFound()
		}
	case gcp.SignedActionWrite:
		if in.ContentType != "" {
			if err := s.validateUpload(in.ContentType, 0, false); err != nil {
				return nil, err
			}
			opts.ContentType = normalizeContentType(in.ContentType)
		}
		opts.MaxBytes = s.cfg.MaxUploadBytes
	default:
		return nil, apierr.Validation("invalid_action", errors.New("action must be read or write"))
	}

	u, err := s.store.SignedURL(ctx, key, opts)
	if err != nil {
		return nil, storeErr("signing_failed", err)
	}
	return &SignedURLResult{
		URL:       u,
		Key:       key,
		Action:    string(action),
		ExpiresAt: time.Now().Add(ttl).UTC(),
	}, nil
}

func (s *streamService) Open(ctx context.Context, key, rangeHeader string) (*Stream, error) {
	attrs, err := s.store.Attrs(ctx, key)
	if err != nil {
		return nil, storeErr("attrs_failed", err)
	}
	rng, partial, err := ParseRange(rangeHeader, attrs.Size)
	if err != nil {
		return &Stream{Key: key, Size: attrs.Size}, apierr.Unsatisfiable(err)
	}
	read := gcp.ReadRange{}
	if partial {
		read = gcp.ReadRange{Offset: rng.Start, Length: rng.Length()}
	}
	body, err := s.store.OpenReader(ctx, key, read)
	if err != nil {
		return nil, storeErr("read_failed", err)
	}
	contentType := attrs.ContentType
	if contentType == "" {
		contentType = gcp.ContentTypeForKey(key)
	}
	return &Stream{
		Body:        &countingBody{ReadCloser: body, report: s.recorder.BytesStreamed},
		Key:         key,
		Size:        attrs.Size,
		ContentType: contentType,
		ETag:        attrs.ETag,
		Updated:     attrs.Updated,
		Range:       rng,
		Partial:     partial,
	}, nil
}

// RecordView bumps the view counter and, with a session, logs view_start.
// Failures are logged only.
func (s *streamService) RecordView(ctx context.Context, in ViewInput) {
	if s.repos == nil {
		return
	}
	ctx, cancel := bestEffort(ctx)
	defer cancel()
	dbc := dbctx.From(ctx)

	rec, err := s.repos.Files.GetByStoredKey(dbc, in.Key)
	if err != nil {
		if !errors.Is(err, ErrRecordNotFound) {
			s.log.Warn("View not recorded", "key", in.Key, "error", err)
		}
		return
	}
	now := time.Now().UTC()
	if err := s.repos.Files.IncrementViews(dbc, rec.ID, now); err != nil {
		s.log.Warn("View count not incremented", "file_id", rec.ID, "error", err)
	}
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return
	}
	if err := s.repos.Events.Create(dbc, &types.AnalyticsEvent{
		FileID:    rec.ID,
		SessionID: sessionID,
		EventType: types.EventViewStart,
		Timestamp: now,
		Quality:   in.Quality,
		UserAgent: truncate(in.UserAgent, 512),
		ClientIP:  in.ClientIP,
	}); err != nil {
		s.log.Warn("view_start not recorded", "file_id", rec.ID, "session_id", sessionID, "error", err)
	}
	if err := s.repos.Sessions.Touch(dbc, sessionID, now); err != nil && !errors.Is(err, ErrRecordNotFound) {
		s.log.Debug("Session touch failed", "session_id", sessionID, "error", err)
	}
}

type countingBody struct {
	io.ReadCloser
	n      int64
	report func(int64)
	closed atomic.Bool
}

func (c *countingBody) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingBody) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.report(c.n)
	}
	return c.ReadCloser.Close()
}
