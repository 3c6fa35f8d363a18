package localmedia

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/video-gateway/internal/platform/logger"
)

func TestPresetLookupFallsBackTo1080p(t *testing.T) {
	table := DefaultPresets()

	p, known := table.Lookup("720P")
	assert.True(t, known)
	assert.Equal(t, 1280, p.Width)

	p, known = table.Lookup("8k")
	assert.False(t, known)
	assert.Equal(t, "1080p", p.Label)
	assert.Equal(t, int64(8_000_000), p.BitrateBps())
}

func TestPresetScaleKeeps360Aspect(t *testing.T) {
	p, _ := DefaultPresets().Lookup("1440p")
	assert.Equal(t, "scale=2560:-2", p.ScaleFilter(true))
	w, h := p.OutputSize(true)
	assert.Equal(t, 2560, w)
	assert.Equal(t, 1280, h)
}

func TestParsePresetsOverrides(t *testing.T) {
	table, err := parsePresets([]byte(`
default: 720p
presets:
  - label: 720p
    width: 1280
    height: 720
    bitrate: 4000k
    crf: 24
  - label: 360p
    width: 640
    height: 360
    bitrate: 1000k
    crf: 28
`))
	require.NoError(t, err)
	p, known := table.Lookup("360p")
	assert.True(t, known)
	assert.Equal(t, 640, p.Width)

	p, _ = table.Lookup("unknown")
	assert.Equal(t, "720p", p.Label)
	assert.Equal(t, "4000k", p.Bitrate)

	_, err = parsePresets([]byte("default: 9000p\n"))
	assert.Error(t, err)
}

func TestReadProgressReportsMonotonicPercent(t *testing.T) {
	stream := strings.Join([]string{
		"frame=10",
		"out_time_us=1000000",
		"progress=continue",
		"out_time_us=1000000",
		"out_time_us=5000000",
		"out_time_us=bogus",
		"progress=end",
	}, "\n")
	var got []int
	readProgress(strings.NewReader(stream), 10, func(p int) { got = append(got, p) })
	assert.Equal(t, []int{10, 50, 100}, got)
}

func TestTranscodeArgs(t *testing.T) {
	p, _ := DefaultPresets().Lookup("720p")
	args := strings.Join(transcodeArgs("https://src", "/tmp/out.mp4", p, false), " ")
	assert.Contains(t, args, "-crf 23")
	assert.Contains(t, args, "-maxrate 5000k -bufsize 10000k")
	assert.Contains(t, args, "-progress pipe:1")
	assert.True(t, strings.HasSuffix(args, "/tmp/out.mp4"))
}

func TestWatchPresetsSwapsTableOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default: 1080p\n"), 0o644))

	tools := New(logger.Nop(), Config{WorkDir: dir})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- tools.WatchPresets(ctx, path) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("default: 720p\npresets:\n  - {label: 4k, width: 3840, height: 2160, bitrate: 30000k, crf: 18}\n"), 0o644))

	require.Eventually(t, func() bool {
		_, known := tools.Presets().Lookup("4k")
		return known
	}, 5*time.Second, 50*time.Millisecond)
	p, _ := tools.Presets().Lookup("unknown")
	assert.Equal(t, "720p", p.Label)

	// A broken file keeps the previous table.
	require.NoError(t, os.WriteFile(path, []byte("presets: [::"), 0o644))
	time.Sleep(presetReloadDelay + 300*time.Millisecond)
	_, known := tools.Presets().Lookup("4k")
	assert.True(t, known)

	cancel()
	require.NoError(t, <-done)
}
