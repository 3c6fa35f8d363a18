package mediatest

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/yungbote/video-gateway/internal/jobs/worker"
	"github.com/yungbote/video-gateway/internal/platform/localmedia"
)

// StubInspector returns Result, or Err when set.
type StubInspector struct {
	Result *localmedia.ProbeResult
	Err    error

	mu      sync.Mutex
	Sources []string
}

func (s *StubInspector) Probe(_ context.Context, source string) (*localmedia.ProbeResult, error) {
	s.mu.Lock()
	s.Sources = append(s.Sources, source)
	s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	r := *s.Result
	return &r, nil
}

// StubTranscoder writes fixed bytes instead of running ffmpeg.
type StubTranscoder struct {
	Image        []byte
	ThumbnailErr error
	Output       []byte
	TranscodeErr error
	Dir          string

	mu         sync.Mutex
	Transcodes []localmedia.TranscodeRequest
}

func (s *StubTranscoder) Thumbnail(_ context.Context, _ string, _ float64) ([]byte, error) {
	if s.ThumbnailErr != nil {
		return nil, s.ThumbnailErr
	}
	return s.Image, nil
}

func (s *StubTranscoder) Transcode(_ context.Context, req localmedia.TranscodeRequest) (*localmedia.TranscodeOutput, error) {
	s.mu.Lock()
	s.Transcodes = append(s.Transcodes, req)
	s.mu.Unlock()
	if s.TranscodeErr != nil {
		return nil, s.TranscodeErr
	}
	dir := s.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "rendition-*.mp4")
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(s.Output); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	if req.OnProgress != nil {
		req.OnProgress(50)
		req.OnProgress(99)
	}
	preset, _ := localmedia.DefaultPresets().Lookup(req.Quality)
	w, h := preset.OutputSize(req.Is360)
	return localmedia.NewTranscodeOutput(filepath.Clean(f.Name()), int64(len(s.Output)), w, h, preset), nil
}

// QueueScheduler collects tasks so tests decide when they run.
type QueueScheduler struct {
	mu    sync.Mutex
	tasks []worker.Task
	// Err, when set, rejects every Submit.
	Err error
}

func (q *QueueScheduler) Submit(t worker.Task) error {
	if q.Err != nil {
		return q.Err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
	return nil
}

func (q *QueueScheduler) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// RunAll drains the queue, including tasks submitted while draining, and
// returns the task errors in order.
func (q *QueueScheduler) RunAll(ctx context.Context) []error {
	var errs []error
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return errs
		}
		t := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()
		if err := t.Run(ctx); err != nil {
			errs = append(errs, err)
		}
	}
}
