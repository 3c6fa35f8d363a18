package localmedia

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/video-gateway/internal/platform/ctxutil"
)

type TranscodeRequest struct {
	Source  string
	Quality string
	Is360   bool
	// DurationSeconds enables percentage progress; zero disables it.
	DurationSeconds float64
	OnProgress      func(percent int)
}

type TranscodeOutput struct {
	Path    string
	Size    int64
	Width   int
	Height  int
	Bitrate int64
	Preset  Preset
	cleanup func()
}

// NewTranscodeOutput describes an already written local file; Cleanup removes it.
func NewTranscodeOutput(path string, size int64, width, height int, preset Preset) *TranscodeOutput {
	return &TranscodeOutput{
		Path:    path,
		Size:    size,
		Width:   width,
		Height:  height,
		Bitrate: preset.BitrateBps(),
		Preset:  preset,
		cleanup: func() { _ = os.Remove(path) },
	}
}

// Cleanup removes the local output file.
func (o *TranscodeOutput) Cleanup() {
	if o != nil && o.cleanup != nil {
		o.cleanup()
	}
}

// Transcode encodes Source into an H.264/AAC MP4 under the work directory. The
// caller owns the returned file and must call Cleanup.
func (m *Tools) Transcode(ctx context.Context, req TranscodeRequest) (*TranscodeOutput, error) {
	ctx = ctxutil.Default(ctx)
	if strings.TrimSpace(req.Source) == "" {
		return nil, fmt.Errorf("source required")
	}
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir workRoot: %w", err)
	}
	preset, known := m.Presets().Lookup(req.Quality)
	if !known {
		m.log.Warn("Unknown quality, using fallback preset", "quality", req.Quality, "preset", preset.Label)
	}

	outPath := filepath.Join(m.workRoot, fmt.Sprintf("transcode-%s-%s.mp4", preset.Label, uuid.NewString()))
	cleanup := func() { _ = os.Remove(outPath) }

	ctx, cancel := context.WithTimeout(ctx, m.transcodeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.ffmpegPath, transcodeArgs(req.Source, outPath, preset, req.Is360)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start: %w", err)
	}
	readProgress(stdout, req.DurationSeconds, req.OnProgress)
	if err := cmd.Wait(); err != nil {
		cleanup()
		return nil, fmt.Errorf("ffmpeg transcode failed: %w; out=%s", err, tail(stderr.Bytes(), 1024))
	}

	st, err := os.Stat(outPath)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("transcode output missing: %w", err)
	}
	width, height := preset.OutputSize(req.Is360)
	bitrate := preset.BitrateBps()
	if probed, perr := m.Probe(ctx, outPath); perr == nil {
		width, height = probed.Width, probed.Height
		if probed.Bitrate > 0 {
			bitrate = probed.Bitrate
		}
	}
	return &TranscodeOutput{
		Path:    outPath,
		Size:    st.Size(),
		Width:   width,
		Height:  height,
		Bitrate: bitrate,
		Preset:  preset,
		cleanup: cleanup,
	}, nil
}

func transcodeArgs(source, outPath string, p Preset, is360 bool) []string {
	bufsize := strconv.FormatInt(p.BitrateBps()*2/1000, 10) + "k"
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", source,
		"-vf", p.ScaleFilter(is360),
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", strconv.Itoa(p.CRF),
		"-maxrate", p.Bitrate,
		"-bufsize", bufsize,
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		"-nostats",
		outPath,
	}
}

// readProgress consumes ffmpeg's -progress key=value stream and reports whole
// percentages, at most once per percent.
func readProgress(r io.Reader, durationSeconds float64, onProgress func(int)) {
	sc := bufio.NewScanner(r)
	last := -1
	report := func(pct int) {
		if onProgress == nil || pct <= last {
			return
		}
		last = pct
		onProgress(pct)
	}
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			if durationSeconds <= 0 {
				continue
			}
			us, err := strconv.ParseInt(value, 10, 64)
			if err != nil || us < 0 {
				continue
			}
			pct := int(float64(us) / 1e6 / durationSeconds * 100)
			if pct > 99 {
				pct = 99
			}
			report(pct)
		case "progress":
			if value == "end" {
				report(100)
			}
		}
	}
	// Drain so ffmpeg never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
}
