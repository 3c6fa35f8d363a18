package localmedia

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/yungbote/video-gateway/internal/platform/ctxutil"
)

var ErrProbe = errors.New("probe failed")

type ProbeResult struct {
	DurationSeconds float64 `json:"durationSeconds"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	FrameRate       float64 `json:"frameRate"`
	Bitrate         int64   `json:"bitrate"`
	Codec           string  `json:"codec"`
	HasAudio        bool    `json:"hasAudio"`
}

// Resolution renders the frame size as "WxH", or "" when unknown.
func (p *ProbeResult) Resolution() string {
	if p == nil || p.Width <= 0 || p.Height <= 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", p.Width, p.Height)
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
		AvgRate    string `json:"avg_frame_rate"`
		BitRate    string `json:"bit_rate"`
		Duration   string `json:"duration"`
	} `json:"streams"`
}

func (m *Tools) Probe(ctx context.Context, source string) (*ProbeResult, error) {
	ctx = ctxutil.Default(ctx)
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("%w: source required", ErrProbe)
	}
	ctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		source,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: ffprobe: %v; out=%s", ErrProbe, err, tail(stderr.Bytes(), 512))
	}
	return parseProbeOutput(stdout.Bytes())
}

func parseProbeOutput(raw []byte) (*ProbeResult, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode ffprobe output: %v", ErrProbe, err)
	}

	res := &ProbeResult{}
	foundVideo := false
	for _, st := range out.Streams {
		switch st.CodecType {
		case "video":
			if foundVideo {
				continue
			}
			foundVideo = true
			res.Codec = st.CodecName
			res.Width = st.Width
			res.Height = st.Height
			res.FrameRate = parseFrameRate(st.RFrameRate)
			if res.FrameRate == 0 {
				res.FrameRate = parseFrameRate(st.AvgRate)
			}
			res.Bitrate = parseInt64(st.BitRate)
			res.DurationSeconds = parseFloat(st.Duration)
		case "audio":
			res.HasAudio = true
		}
	}
	if !foundVideo {
		return nil, fmt.Errorf("%w: no video stream", ErrProbe)
	}
	if d := parseFloat(out.Format.Duration); d > 0 {
		res.DurationSeconds = d
	}
	if b := parseInt64(out.Format.BitRate); b > 0 {
		res.Bitrate = b
	}
	return res, nil
}

// parseFrameRate accepts ffprobe rationals like "30000/1001" as well as plain numbers.
func parseFrameRate(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	n, d := parseFloat(num), parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func parseInt64(s string) int64 {
	i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return i
}
