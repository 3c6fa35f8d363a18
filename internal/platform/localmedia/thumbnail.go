package localmedia

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/yungbote/video-gateway/internal/platform/ctxutil"
)

var ErrExtraction = errors.New("frame extraction failed")

// Thumbnail grabs a single JPEG frame at offsetSeconds. Seeking past the end
// makes ffmpeg exit cleanly with no output, which is reported as ErrExtraction.
func (m *Tools) Thumbnail(ctx context.Context, source string, offsetSeconds float64) ([]byte, error) {
	ctx = ctxutil.Default(ctx)
	if offsetSeconds < 0 {
		return nil, fmt.Errorf("%w: negative offset", ErrExtraction)
	}
	ctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.ffmpegPath,
		"-hide_banner",
		"-nostdin",
		"-ss", strconv.FormatFloat(offsetSeconds, 'f', 3, 64),
		"-i", source,
		"-frames:v", "1",
		"-q:v", "2",
		"-f", "image2",
		"-c:v", "mjpeg",
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg thumbnail failed: %w; out=%s", err, tail(stderr.Bytes(), 512))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: no frame at %.3fs", ErrExtraction, offsetSeconds)
	}
	return stdout.Bytes(), nil
}
