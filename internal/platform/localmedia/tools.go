package localmedia

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"github.com/yungbote/video-gateway/internal/platform/ctxutil"
	"github.com/yungbote/video-gateway/internal/platform/logger"
)

// Inspector derives technical metadata from a video reachable by URL or path.
type Inspector interface {
	Probe(ctx context.Context, source string) (*ProbeResult, error)
}

// Transcoder produces derived assets from a source video.
type Transcoder interface {
	Thumbnail(ctx context.Context, source string, offsetSeconds float64) ([]byte, error)
	Transcode(ctx context.Context, req TranscodeRequest) (*TranscodeOutput, error)
}

type Config struct {
	FFmpegPath  string
	FFprobePath string
	WorkDir     string
	Presets     *PresetTable
	// ProbeTimeout and TranscodeTimeout bound a single external tool run.
	ProbeTimeout     time.Duration
	TranscodeTimeout time.Duration
}

// Tools shells out to ffprobe and ffmpeg. Calls block until the tool exits and
// belong in background tasks, the thumbnail path excepted.
type Tools struct {
	log *logger.Logger

	ffmpegPath  string
	ffprobePath string
	workRoot    string
	presets     atomic.Pointer[PresetTable]

	probeTimeout     time.Duration
	transcodeTimeout time.Duration
}

func New(log *logger.Logger, cfg Config) *Tools {
	t := &Tools{
		log:              log.With("service", "MediaTools"),
		ffmpegPath:       strings.TrimSpace(cfg.FFmpegPath),
		ffprobePath:      strings.TrimSpace(cfg.FFprobePath),
		workRoot:         strings.TrimSpace(cfg.WorkDir),
		probeTimeout:     cfg.ProbeTimeout,
		transcodeTimeout: cfg.TranscodeTimeout,
	}
	if t.ffmpegPath == "" {
		t.ffmpegPath = "ffmpeg"
	}
	if t.ffprobePath == "" {
		t.ffprobePath = "ffprobe"
	}
	if t.workRoot == "" {
		t.workRoot = os.TempDir() + "/video-gateway"
	}
	if cfg.Presets != nil {
		t.presets.Store(cfg.Presets)
	} else {
		t.presets.Store(DefaultPresets())
	}
	if t.probeTimeout <= 0 {
		t.probeTimeout = 2 * time.Minute
	}
	if t.transcodeTimeout <= 0 {
		t.transcodeTimeout = 6 * time.Hour
	}
	return t
}

// Presets returns the active table. It may be swapped by WatchPresets at any time.
func (m *Tools) Presets() *PresetTable { return m.presets.Load() }

func (m *Tools) SetPresets(t *PresetTable) {
	if t != nil {
		m.presets.Store(t)
	}
}

func (m *Tools) WorkDir() string { return m.workRoot }

// AssertReady reports whether both binaries resolve and the work directory is writable.
func (m *Tools) AssertReady(ctx context.Context) error {
	_ = ctxutil.Default(ctx)
	for _, bin := range []string{m.ffprobePath, m.ffmpegPath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q in PATH: %w", bin, err)
		}
	}
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return fmt.Errorf("create workRoot: %w", err)
	}
	return nil
}

// tail keeps the end of noisy tool output for error messages.
func tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
