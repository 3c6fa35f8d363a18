package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/video-gateway/internal/platform/apierr"
	"github.com/yungbote/video-gateway/internal/platform/dbctx"
	"github.com/yungbote/video-gateway/internal/platform/gcp"
	"github.com/yungbote/video-gateway/internal/platform/localmedia"
)

type ThumbnailResult struct {
	Key        string    `json:"thumbnailKey"`
	URL        string    `json:"thumbnailUrl"`
	TimeOffset float64   `json:"timeOffset"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type ThumbnailService interface {
	Generate(ctx context.Context, key string, offsetSeconds float64) (*ThumbnailResult, error)
}

type thumbnailService struct {
	*core
}

func NewThumbnailService(deps Deps, cfg Config) ThumbnailService {
	return &thumbnailService{core: newCore(deps, cfg, "ThumbnailService")}
}

// Generate extracts a frame synchronously; callers wait for the encoder.
func (s *thumbnailService) Generate(ctx context.Context, key string, offsetSeconds float64) (*ThumbnailResult, error) {
	if !s.cfg.ThumbnailsEnabled || s.transcoder == nil {
		return nil, apierr.FeatureDisabled("thumbnails")
	}
	if offsetSeconds < 0 {
		return nil, apierr.Validation("invalid_time_offset", errors.New("timeOffset must not be negative"))
	}
	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return nil, storeErr("exists_failed", err)
	}
	if !exists {
		return nil, fileNotFound()
	}

	var fileID uuid.UUID
	if s.repos != nil {
		if rec, err := s.repos.Files.GetByStoredKey(dbctx.From(ctx), key); err == nil {
			fileID = rec.ID
			if rec.DurationSeconds != nil && *rec.DurationSeconds > 0 && offsetSeconds > *rec.DurationSeconds {
				return nil, extractionErr(fmt.Errorf("%w: offset %.3fs beyond duration %.3fs", localmedia.ErrExtraction, offsetSeconds, *rec.DurationSeconds))
			}
		}
	}

	source, err := s.store.SignedURL(ctx, key, gcp.SignedURLOptions{Action: gcp.SignedActionRead, TTL: s.cfg.ProbeURLTTL})
	if err != nil {
		return nil, storeErr("signing_failed", err)
	}
	img, err := s.transcoder.Thumbnail(ctx, source, offsetSeconds)
	if err != nil {
		s.log.Warn("Thumbnail extraction failed", "key", key, "offset", offsetSeconds, "error", err)
		return nil, extractionErr(err)
	}

	thumbKey := ThumbnailKey(s.cfg.ThumbnailPrefix, key, offsetSeconds)
	if _, err := s.store.Upload(ctx, thumbKey, bytes.NewReader(img), gcp.WriteOptions{ContentType: "image/jpeg"}); err != nil {
		return nil, apierr.Upstream("thumbnail_upload_failed", err)
	}

	if fileID != uuid.Nil {
		rctx, cancel := bestEffort(ctx)
		defer cancel()
		if err := s.repos.Files.UpdateFields(dbctx.From(rctx), fileID, map[string]interface{}{"thumbnail_key": thumbKey}); err != nil {
			s.log.Warn("Thumbnail key not recorded", "file_id", fileID, "error", err)
		}
	}

	u, err := s.store.SignedURL(ctx, thumbKey, gcp.SignedURLOptions{Action: gcp.SignedActionRead, TTL: s.cfg.ReadURLTTL})
	if err != nil {
		return nil, storeErr("signing_failed", err)
	}
	return &ThumbnailResult{
		Key:        thumbKey,
		URL:        u,
		TimeOffset: offsetSeconds,
		ExpiresAt:  time.Now().Add(s.cfg.ReadURLTTL).UTC(),
	}, nil
}

func extractionErr(err error) error {
	if errors.Is(err, localmedia.ErrExtraction) {
		return apierr.Validation("thumbnail_extraction_failed", err)
	}
	return apierr.Upstream("thumbnail_failed", err)
}
