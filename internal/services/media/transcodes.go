package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
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
	taskKindTranscode = "transcode"
	transcodeLockTTL  = 6 * time.Hour
)

type TranscodeResult struct {
	JobID   *uuid.UUID `json:"jobId,omitempty"`
	Status  string     `json:"status"`
	Quality string     `json:"quality"`
	Key     string     `json:"key,omitempty"`
	Message string     `json:"message,omitempty"`
}

type TranscodeService interface {
	// Request asks for a rendition of the file stored at key. At most one job
	// per (file, quality) is active at any time.
	Request(ctx context.Context, key, quality string) (*TranscodeResult, error)
	Run(ctx context.Context, jobID uuid.UUID) error
	Jobs(ctx context.Context, key string) ([]*types.TranscodingJob, error)
}

type transcodeService struct {
	*core
	presets func() *localmedia.PresetTable
}

// NewTranscodeService takes the preset table through a getter so hot-reloaded
// presets apply to the next request.
func NewTranscodeService(deps Deps, cfg Config, presets func() *localmedia.PresetTable) TranscodeService {
	if presets == nil {
		presets = localmedia.DefaultPresets
	}
	return &transcodeService{core: newCore(deps, cfg, "TranscodeService"), presets: presets}
}

func (s *transcodeService) Request(ctx context.Context, key, quality string) (*TranscodeResult, error) {
	if !s.cfg.TranscodingEnabled {
		return nil, apierr.FeatureDisabled("transcoding")
	}
	if s.repos == nil {
		return nil, apierr.RepositoryUnavailable()
	}
	quality = strings.ToLower(strings.TrimSpace(quality))
	if quality == "" {
		quality = localmedia.DefaultQuality
	}
	// Unknown labels resolve to the default preset and are recorded under its label.
	if preset, known := s.presets().Lookup(quality); !known {
		s.log.Info("Unknown quality; using default preset", "requested", quality, "preset", preset.Label)
		quality = preset.Label
	}

	dbc := dbctx.From(ctx)
	rec, err := s.repos.Files.GetByStoredKey(dbc, key)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, fileNotFound()
		}
		return nil, fmt.Errorf("load file: %w", err)
	}
	if existing, found := rec.RenditionKey(quality); found {
		return &TranscodeResult{
			Status:  string(types.JobCompleted),
			Quality: quality,
			Key:     existing,
			Message: "Rendition already available",
		}, nil
	}

	job, created, err := s.repos.Jobs.CreateQueued(dbc, rec.ID, quality)
	if err != nil {
		return nil, fmt.Errorf("queue transcode: %w", err)
	}
	res := &TranscodeResult{JobID: &job.ID, Status: string(job.Status), Quality: quality}
	if !created && job.Status != types.JobQueued {
		res.Message = "Transcode already in progress"
		return res, nil
	}

	if err := s.schedule(job.ID); err != nil {
		if !created {
			// Another request owns the queued job; it may still get picked up.
			s.log.Warn("Resubmit of queued job failed", "job_id", job.ID, "error", err)
			return res, nil
		}
		s.failJob(ctx, job.ID, types.JobQueued, err)
		if errors.Is(err, worker.ErrQueueFull) {
			return nil, apierr.New(http.StatusServiceUnavailable, "queue_full", errors.New("Transcoding queue is full, try again later"))
		}
		return nil, fmt.Errorf("schedule transcode: %w", err)
	}
	if created {
		res.Message = "Transcode queued"
		s.log.Info("Transcode queued", "job_id", job.ID, "file_id", rec.ID, "quality", quality)
	} else {
		res.Message = "Transcode already queued"
	}
	return res, nil
}

func (s *transcodeService) schedule(jobID uuid.UUID) error {
	if s.scheduler == nil {
		return apierr.FeatureDisabled("transcoding")
	}
	return s.scheduler.Submit(worker.Task{
		Kind: taskKindTranscode,
		Key:  jobID.String(),
		Run: func(ctx context.Context) error {
			return s.Run(ctx, jobID)
		},
		Timeout: transcodeLockTTL,
	})
}

func (s *transcodeService) Run(ctx context.Context, jobID uuid.UUID) error {
	if s.repos == nil {
		return apierr.RepositoryUnavailable()
	}
	dbc := dbctx.From(ctx)
	job, err := s.repos.Jobs.GetByID(dbc, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	release, ok, err := s.locker.TryLock(ctx, locks.TranscodeKey(job.FileID.String(), job.Quality), transcodeLockTTL)
	if err != nil {
		return fmt.Errorf("acquire transcode lock: %w", err)
	}
	if !ok {
		s.log.Debug("Transcode already owned elsewhere", "job_id", jobID)
		return nil
	}
	defer release()

	startedAt := time.Now().UTC()
	moved, err := s.repos.Jobs.Transition(dbc, jobID, types.JobQueued, types.JobProcessing, map[string]interface{}{
		"started_at": startedAt,
	})
	if err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}
	if !moved {
		return nil
	}

	outputKey, err := s.transcode(ctx, job)
	if err != nil {
		s.failJob(ctx, jobID, types.JobProcessing, err)
		s.recorder.TranscodeFinished(job.Quality, "failed", time.Since(startedAt))
		return err
	}

	completedAt := time.Now().UTC()
	if _, err := s.repos.Jobs.Transition(dbc, jobID, types.JobProcessing, types.JobCompleted, map[string]interface{}{
		"output_key":   outputKey,
		"progress":     100,
		"completed_at": completedAt,
	}); err != nil {
		s.log.Error("Could not mark job completed", "job_id", jobID, "error", err)
		return err
	}
	s.recorder.TranscodeFinished(job.Quality, "completed", completedAt.Sub(startedAt))
	s.log.Info("Transcode completed", "job_id", jobID, "quality", job.Quality, "output_key", outputKey, "elapsed", completedAt.Sub(startedAt).String())
	return nil
}

func (s *transcodeService) transcode(ctx context.Context, job *types.TranscodingJob) (string, error) {
	dbc := dbctx.From(ctx)
	rec, err := s.repos.Files.GetByID(dbc, job.FileID)
	if err != nil {
		return "", fmt.Errorf("load file: %w", err)
	}
	source, err := s.store.SignedURL(ctx, rec.StoredKey, gcp.SignedURLOptions{Action: gcp.SignedActionRead, TTL: s.cfg.TranscodeURLTTL})
	if err != nil {
		return "", fmt.Errorf("sign source url: %w", err)
	}
	duration := 0.0
	if rec.DurationSeconds != nil {
		duration = *rec.DurationSeconds
	}

	lastLogged := -10
	out, err := s.transcoder.Transcode(ctx, localmedia.TranscodeRequest{
		Source:          source,
		Quality:         job.Quality,
		Is360:           rec.Is360,
		DurationSeconds: duration,
		OnProgress: func(percent int) {
			if percent/10 == lastLogged/10 {
				return
			}
			lastLogged = percent
			s.log.Debug("Transcode progress", "job_id", job.ID, "percent", percent)
		},
	})
	if err != nil {
		return "", err
	}
	defer out.Cleanup()

	f, err := os.Open(out.Path)
	if err != nil {
		return "", fmt.Errorf("open output: %w", err)
	}
	defer f.Close()

	key := RenditionKey(s.cfg.TranscodePrefix, rec.StoredKey, job.Quality)
	size, err := s.store.Upload(ctx, key, f, gcp.WriteOptions{
		ContentType: "video/mp4",
		Metadata:    map[string]string{"sourceKey": rec.StoredKey, "quality": job.Quality},
	})
	if err != nil {
		return "", fmt.Errorf("upload rendition: %w", err)
	}
	if _, err := s.repos.Renditions.Add(dbc, &types.FileRendition{
		FileID:    rec.ID,
		Quality:   job.Quality,
		StoredKey: key,
		Width:     out.Width,
		Height:    out.Height,
		Bitrate:   out.Bitrate,
		SizeBytes: size,
	}); err != nil {
		return "", fmt.Errorf("record rendition: %w", err)
	}
	return key, nil
}

func (s *transcodeService) failJob(ctx context.Context, jobID uuid.UUID, from types.JobStatus, cause error) {
	s.log.Error("Transcode failed", "job_id", jobID, "error", cause)
	rctx, cancel := bestEffort(ctx)
	defer cancel()
	if _, err := s.repos.Jobs.Transition(dbctx.From(rctx), jobID, from, types.JobFailed, map[string]interface{}{
		"error":        truncate(cause.Error(), maxErrorText),
		"completed_at": time.Now().UTC(),
	}); err != nil {
		s.log.Error("Could not record transcode failure", "job_id", jobID, "error", err)
	}
}

func (s *transcodeService) Jobs(ctx context.Context, key string) ([]*types.TranscodingJob, error) {
	if s.repos == nil {
		return nil, apierr.RepositoryUnavailable()
	}
	dbc := dbctx.From(ctx)
	rec, err := s.repos.Files.GetByStoredKey(dbc, key)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, fileNotFound()
		}
		return nil, err
	}
	return s.repos.Jobs.ListByFile(dbc, rec.ID)
}
