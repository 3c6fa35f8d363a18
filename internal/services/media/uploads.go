package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/video-gateway/internal/domain/media"
	"github.com/yungbote/video-gateway/internal/platform/apierr"
	"github.com/yungbote/video-gateway/internal/platform/dbctx"
	"github.com/yungbote/video-gateway/internal/platform/gcp"
)

type UploadInput struct {
	Name        string
	ContentType string
	// Size is the declared size; -1 when unknown.
	Size       int64
	Reader     io.Reader
	Quality    string
	UploaderID string
	Tags       []string
}

type UploadResult struct {
	ID          *uuid.UUID `json:"id,omitempty"`
	Key         string     `json:"key"`
	Name        string     `json:"name"`
	Size        int64      `json:"size"`
	ContentType string     `json:"contentType"`
	Status      string     `json:"status"`
	URL         string     `json:"url,omitempty"`
	JobID       *uuid.UUID `json:"jobId,omitempty"`
}

type PresignInput struct {
	Name        string
	ContentType string
	Size        int64
	UploaderID  string
}

type PresignResult struct {
	UploadURL string     `json:"uploadUrl"`
	Key       string     `json:"key"`
	ID        *uuid.UUID `json:"id,omitempty"`
	ExpiresAt time.Time  `json:"expiresAt"`
	Headers   map[string]string `json:"requiredHeaders"`
}

type UploadService interface {
	UploadDirect(ctx context.Context, in UploadInput) (*UploadResult, error)
	PresignUpload(ctx context.Context, in PresignInput) (*PresignResult, error)
	CompleteUpload(ctx context.Context, key string) (*UploadResult, error)
}

type uploadService struct {
	*core
	processing ProcessingService
	transcodes TranscodeService
}

func NewUploadService(deps Deps, cfg Config, processing ProcessingService, transcodes TranscodeService) UploadService {
	return &uploadService{
		core:       newCore(deps, cfg, "UploadService"),
		processing: processing,
		transcodes: transcodes,
	}
}

func (s *uploadService) UploadDirect(ctx context.Context, in UploadInput) (*UploadResult, error) {
	if in.Reader == nil {
		return nil, apierr.Validation("missing_file", errors.New("No file provided"))
	}
	if err := s.validateUpload(in.ContentType, in.Size, in.Size >= 0); err != nil {
		return nil, err
	}
	contentType := normalizeContentType(in.ContentType)
	key := GenerateStoredKey(s.cfg.UploadPrefix, in.Name, time.Now())

	body := &limitedReader{r: in.Reader, max: s.cfg.MaxUploadBytes}
	n, err := s.store.Upload(ctx, key, body, gcp.WriteOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"originalName": in.Name},
	})
	if err != nil {
		var ae *apierr.Error
		if errors.As(err, &ae) {
			return nil, ae
		}
		s.log.Error("Upload to object store failed", "key", key, "error", err)
		return nil, apierr.Upstream("upload_failed", fmt.Errorf("store upload: %w", err))
	}
	s.log.Info("Upload stored", "key", key, "size", n, "content_type", contentType)

	res := &UploadResult{
		Key:         key,
		Name:        in.Name,
		Size:        n,
		ContentType: contentType,
		Status:      string(types.StatusPending),
	}
	if u, err := s.store.SignedURL(ctx, key, gcp.SignedURLOptions{Action: gcp.SignedActionRead, TTL: s.cfg.ReadURLTTL}); err == nil {
		res.URL = u
	} else {
		s.log.Warn("Read URL for new upload failed", "key", key, "error", err)
	}

	if s.repos == nil {
		return res, nil
	}
	rec := &types.FileRecord{
		StoredKey:    key,
		OriginalName: in.Name,
		SizeBytes:    n,
		MimeType:     contentType,
		UploaderID:   optionalString(in.UploaderID),
		Tags:         normalizeTags(in.Tags),
	}
	rctx, cancel := bestEffort(ctx)
	defer cancel()
	if err := s.repos.Files.Create(dbctx.From(rctx), rec); err != nil {
		s.log.Warn("File record create failed; continuing storage-only", "key", key, "error", err)
		return res, nil
	}
	res.ID = &rec.ID

	if err := s.processing.Schedule(rctx, rec.ID); err != nil {
		s.log.Warn("Processing not scheduled", "file_id", rec.ID, "error", err)
	}
	if q := strings.TrimSpace(in.Quality); q != "" && s.transcodes != nil {
		if !s.cfg.TranscodingEnabled {
			s.log.Info("Transcoding disabled; ignoring upload quality", "key", key, "quality", q)
			return res, nil
		}
		tr, err := s.transcodes.Request(rctx, key, q)
		if err != nil {
			s.log.Warn("Transcode on upload not queued", "key", key, "quality", q, "error", err)
		} else if tr.JobID != nil {
			res.JobID = tr.JobID
		}
	}
	return res, nil
}

func (s *uploadService) PresignUpload(ctx context.Context, in PresignInput) (*PresignResult, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, apierr.Validation("missing_file_name", errors.New("fileName is required"))
	}
	if err := s.validateUpload(in.ContentType, in.Size, true); err != nil {
		return nil, err
	}
	contentType := normalizeContentType(in.ContentType)
	key := GenerateStoredKey(s.cfg.UploadPrefix, in.Name, time.Now())
	ttl := s.cfg.ReadURLTTL

	u, err := s.store.SignedURL(ctx, key, gcp.SignedURLOptions{
		Action:      gcp.SignedActionWrite,
		TTL:         ttl,
		ContentType: contentType,
		MaxBytes:    s.cfg.MaxUploadBytes,
	})
	if err != nil {
		s.log.Error("Write URL signing failed", "key", key, "error", err)
		return nil, apierr.Upstream("signing_failed", err)
	}
	res := &PresignResult{
		UploadURL: u,
		Key:       key,
		ExpiresAt: time.Now().Add(ttl).UTC(),
		Headers: map[string]string{
			"Content-Type":               contentType,
			"x-goog-content-length-range": fmt.Sprintf("0,%d", s.cfg.MaxUploadBytes),
		},
	}

	if s.repos != nil {
		rec := &types.FileRecord{
			StoredKey:    key,
			OriginalName: in.Name,
			SizeBytes:    in.Size,
			MimeType:     contentType,
			UploaderID:   optionalString(in.UploaderID),
		}
		rctx, cancel := bestEffort(ctx)
		defer cancel()
		if err := s.repos.Files.Create(dbctx.From(rctx), rec); err != nil {
			s.log.Warn("Pre-created file record failed", "key", key, "error", err)
		} else {
			res.ID = &rec.ID
		}
	}
	return res, nil
}

// CompleteUpload is called after a client finished a signed PUT. It refreshes
// the recorded size from the store and starts processing.
func (s *uploadService) CompleteUpload(ctx context.Context, key string) (*UploadResult, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, apierr.Validation("missing_key", errors.New("key is required"))
	}
	attrs, err := s.store.Attrs(ctx, key)
	if err != nil {
		return nil, storeErr("attrs_failed", err)
	}
	res := &UploadResult{
		Key:         key,
		Name:        attrs.Metadata["originalName"],
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		Status:      string(types.StatusPending),
	}
	if s.repos == nil {
		return res, nil
	}
	dbc := dbctx.From(ctx)
	rec, err := s.repos.Files.GetByStoredKey(dbc, key)
	if err != nil {
		s.log.Warn("No record for completed upload", "key", key, "error", err)
		return res, nil
	}
	res.ID = &rec.ID
	res.Name = rec.OriginalName
	res.Status = string(rec.ProcessingStatus)
	if err := s.repos.Files.UpdateFields(dbc, rec.ID, map[string]interface{}{"size_bytes": attrs.Size}); err != nil {
		s.log.Warn("Size refresh failed", "file_id", rec.ID, "error", err)
	}
	if rec.ProcessingStatus == types.StatusPending {
		if err := s.processing.Schedule(ctx, rec.ID); err != nil {
			s.log.Warn("Processing not scheduled", "file_id", rec.ID, "error", err)
		}
	}
	return res, nil
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func normalizeTags(tags []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
