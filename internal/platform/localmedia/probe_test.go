package localmedia

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProbe = `{
  "streams": [
    {"codec_type": "video", "codec_name": "h264", "width": 3840, "height": 1920, "r_frame_rate": "30000/1001", "bit_rate": "20000000"},
    {"codec_type": "audio", "codec_name": "aac"}
  ],
  "format": {"duration": "12.500000", "bit_rate": "21000000"}
}`

func TestParseProbeOutput(t *testing.T) {
	res, err := parseProbeOutput([]byte(sampleProbe))
	require.NoError(t, err)
	assert.Equal(t, 3840, res.Width)
	assert.Equal(t, 1920, res.Height)
	assert.Equal(t, "h264", res.Codec)
	assert.True(t, res.HasAudio)
	assert.InDelta(t, 12.5, res.DurationSeconds, 1e-9)
	assert.InDelta(t, 29.97, res.FrameRate, 0.01)
	assert.Equal(t, int64(21000000), res.Bitrate)
	assert.Equal(t, "3840x1920", res.Resolution())
}

func TestParseProbeOutputRejectsAudioOnly(t *testing.T) {
	_, err := parseProbeOutput([]byte(`{"streams":[{"codec_type":"audio"}],"format":{}}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProbe))

	_, err = parseProbeOutput([]byte(`not json`))
	assert.True(t, errors.Is(err, ErrProbe))
}

func TestParseFrameRate(t *testing.T) {
	assert.Equal(t, 25.0, parseFrameRate("25/1"))
	assert.Equal(t, 24.0, parseFrameRate("24"))
	assert.Equal(t, 0.0, parseFrameRate("0/0"))
	assert.Equal(t, 0.0, parseFrameRate(""))
}

func TestClassify360(t *testing.T) {
	cases := []struct {
		w, h  int
		is360 bool
		proj  string
	}{
		{3840, 1920, true, ProjectionEquirectangular},
		{1920, 1080, false, ProjectionNone},
		{1800, 1000, true, ProjectionEquirectangular},
		{2100, 1000, true, ProjectionEquirectangular},
		{2200, 1000, false, ProjectionNone},
		{1080, 1920, false, ProjectionNone},
		{0, 0, false, ProjectionNone},
	}
	for _, tc := range cases {
		got := Classify360(tc.w, tc.h)
		assert.Equal(t, tc.is360, got.Is360, "%dx%d", tc.w, tc.h)
		assert.Equal(t, tc.proj, got.Projection, "%dx%d", tc.w, tc.h)
	}
}
