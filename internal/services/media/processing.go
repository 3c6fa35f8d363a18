package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/video-gateway/internal/domain/media"
	"github.com/yungbote/video-gateway/internal/jobs/locks"
	"github.com/yungbote/video-gateway/internal/jobs/worker"
	"github.com/yungbote/video-gateway/internal/platform/apierr"
	"github.com/yungbote/video-gateway/internal/platform/dbctx"
	"github.com/yungbote/video-gateway/internal/platform/gcp"
	"github.com/yungbote/video-gateway/internal/platform/localmedia"
)

const (
	taskKindProcess = "process"
	processLockTTL  = 30 * time.Minute
	maxErrorText    = 2000
)

type ProcessingService interface {
	// Schedule enqueues metadata extraction for a pending file.
	Schedule(ctx context.Context, fileID uuid.UUID) error
	// Run executes extraction inline. It is what scheduled tasks call.
	Run(ctx context.Context, fileID uuid.UUID) error
}

type processingService struct {
	*core
}

func NewProcessingService(deps Deps, cfg Config) ProcessingService {
	return &processingService{core: newCore(deps, cfg, "ProcessingService")}
}

func (s *processingService) Schedule(ctx context.Context, fileID uuid.UUID) error {
	if s.repos == nil {
		return apierr.RepositoryUnavailable()
	}
	if s.scheduler == nil {
		return apierr.FeatureDisabled("processing")
	}
	return s.scheduler.Submit(worker.Task{
		Kind: taskKindProcess,
		Key:  fileID.String(),
		Run: func(ctx context.Context) error {
			return s.Run(ctx, fileID)
		},
		Timeout: processLockTTL,
	})
}

func (s *processingService) Run(ctx context.Context, fileID uuid.UUID) error {
	if s.repos == nil {
		return apierr.RepositoryUnavailable()
	}
	release, ok, err := s.locker.TryLock(ctx, locks.ProcessKey(fileID.String()), processLockTTL)
	if err != nil {
		return fmt.Errorf("acquire process lock: %w", err)
	}
	if !ok {
		s.log.Debug("Processing already owned elsewhere", "file_id", fileID)
		return nil
	}
	defer release()

	dbc := dbctx.From(ctx)
	started, err := s.repos.Files.TransitionStatus(dbc, fileID, types.StatusPending, types.StatusProcessing, nil)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	if !started {
		s.log.Debug("File not pending; skipping processing", "file_id", fileID)
		return nil
	}

	rec, err := s.repos.Files.GetByID(dbc, fileID)
	if err != nil {
		return s.fail(ctx, fileID, fmt.Errorf("load record: %w", err))
	}

	exists, err := s.store.Exists(ctx, rec.StoredKey)
	if err != nil {
		return s.fail(ctx, fileID, fmt.Errorf("check object: %w", err))
	}
	if !exists {
		return s.fail(ctx, fileID, fmt.Errorf("object %s not found in storage", rec.StoredKey))
	}
	source, err := s.store.SignedURL(ctx, rec.StoredKey, gcp.SignedURLOptions{Action: gcp.SignedActionRead, TTL: s.cfg.ProbeURLTTL})
	if err != nil {
		return s.fail(ctx, fileID, fmt.Errorf("sign probe url: %w", err))
	}

	probe, err := s.inspector.Probe(ctx, source)
	if err != nil {
		return s.fail(ctx, fileID, err)
	}
	cls := localmedia.Classify360(probe.Width, probe.Height)

	updates := map[string]interface{}{
		"resolution":       probe.Resolution(),
		"width":            probe.Width,
		"height":           probe.Height,
		"frame_rate":       probe.FrameRate,
		"bitrate":          probe.Bitrate,
		"codec":            probe.Codec,
		"has_audio":        probe.HasAudio,
		"is_360":           cls.Is360,
		"projection":       cls.Projection,
		"processing_error": "",
	}
	if probe.DurationSeconds > 0 {
		updates["duration_seconds"] = probe.DurationSeconds
	}

	if s.cfg.ThumbnailsEnabled && s.transcoder != nil {
		if key, err := s.poster(ctx, rec.StoredKey, source, probe.DurationSeconds); err != nil {
			s.log.Warn("Poster thumbnail failed", "file_id", fileID, "error", err)
		} else {
			updates["thumbnail_key"] = key
		}
	}

	done, err := s.repos.Files.TransitionStatus(dbc, fileID, types.StatusProcessing, types.StatusCompleted, updates)
	if err != nil {
		return s.fail(ctx, fileID, fmt.Errorf("mark completed: %w", err))
	}
	if !done {
		s.log.Warn("Processing result discarded; status moved underneath", "file_id", fileID)
		return nil
	}
	s.recorder.ProcessingFinished("completed")
	s.log.Info("Processing completed",
		"file_id", fileID,
		"resolution", probe.Resolution(),
		"duration_seconds", probe.DurationSeconds,
		"is_360", cls.Is360,
	)
	return nil
}

// poster grabs an early frame; the offset is clamped to half the duration so
// short clips still yield an image.
func (s *processingService) poster(ctx context.Context, storedKey, source string, duration float64) (string, error) {
	offset := s.cfg.ProcessingThumbnailOffset
	if duration > 0 {
		offset = math.Min(offset, duration/2)
	}
	img, err := s.transcoder.Thumbnail(ctx, source, offset)
	if err != nil {
		return "", err
	}
	key := ThumbnailKey(s.cfg.ThumbnailPrefix, storedKey, offset)
	if _, err := s.store.Upload(ctx, key, bytes.NewReader(img), gcp.WriteOptions{ContentType: "image/jpeg"}); err != nil {
		return "", fmt.Errorf("upload thumbnail: %w", err)
	}
	return key, nil
}

func (s *processingService) fail(ctx context.Context, fileID uuid.UUID, cause error) error {
	msg := cause.Error()
	if errors.Is(cause, localmedia.ErrProbe) {
		s.log.Warn("Probe failed", "file_id", fileID, "error", cause)
	} else {
		s.log.Error("Processing failed", "file_id", fileID, "error", cause)
	}
	rctx, cancel := bestEffort(ctx)
	defer cancel()
	if _, err := s.repos.Files.TransitionStatus(dbctx.From(rctx), fileID, types.StatusProcessing, types.StatusFailed, map[string]interface{}{
		"processing_error": truncate(msg, maxErrorText),
	}); err != nil {
		s.log.Error("Could not record processing failure", "file_id", fileID, "error", err)
	}
	s.recorder.ProcessingFinished("failed")
	return cause
}
