package localmedia

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultQuality = "1080p"

type Preset struct {
	Label   string `yaml:"label" json:"label"`
	Width   int    `yaml:"width" json:"width"`
	Height  int    `yaml:"height" json:"height"`
	Bitrate string `yaml:"bitrate" json:"bitrate"`
	CRF     int    `yaml:"crf" json:"crf"`
}

// ScaleFilter returns the ffmpeg scale expression. 360 sources keep their 2:1
// frame, so only the width is pinned.
func (p Preset) ScaleFilter(is360 bool) string {
	if is360 {
		return fmt.Sprintf("scale=%d:-2", p.Width)
	}
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=ceil(iw/2)*2:ceil(ih/2)*2", p.Width, p.Height)
}

// OutputSize is the nominal frame size for a source of the given shape.
func (p Preset) OutputSize(is360 bool) (int, int) {
	if is360 {
		h := p.Width / 2
		if h%2 != 0 {
			h++
		}
		return p.Width, h
	}
	return p.Width, p.Height
}

// BitrateBps parses "8000k" / "35M" style rates into bits per second.
func (p Preset) BitrateBps() int64 {
	s := strings.ToLower(strings.TrimSpace(p.Bitrate))
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "k"):
		mult, s = 1000, strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "m"):
		mult, s = 1000_000, strings.TrimSuffix(s, "m")
	}
	return parseInt64(s) * mult
}

type PresetTable struct {
	byLabel  map[string]Preset
	fallback string
}

func DefaultPresets() *PresetTable {
	return NewPresetTable([]Preset{
		{Label: "2160p", Width: 3840, Height: 2160, Bitrate: "35000k", CRF: 18},
		{Label: "1440p", Width: 2560, Height: 1440, Bitrate: "16000k", CRF: 20},
		{Label: "1080p", Width: 1920, Height: 1080, Bitrate: "8000k", CRF: 22},
		{Label: "720p", Width: 1280, Height: 720, Bitrate: "5000k", CRF: 23},
		{Label: "480p", Width: 854, Height: 480, Bitrate: "2500k", CRF: 26},
	}, DefaultQuality)
}

func NewPresetTable(presets []Preset, fallback string) *PresetTable {
	t := &PresetTable{byLabel: map[string]Preset{}, fallback: fallback}
	for _, p := range presets {
		label := normalizeLabel(p.Label)
		if label == "" {
			continue
		}
		p.Label = label
		t.byLabel[label] = p
	}
	return t
}

// Lookup returns the preset for label, or the fallback preset for unknown labels.
// known reports whether label itself matched.
func (t *PresetTable) Lookup(label string) (preset Preset, known bool) {
	if p, ok := t.byLabel[normalizeLabel(label)]; ok {
		return p, true
	}
	return t.byLabel[t.fallback], false
}

func (t *PresetTable) Labels() []string {
	out := make([]string, 0, len(t.byLabel))
	for k := range t.byLabel {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type presetFile struct {
	Default string   `yaml:"default"`
	Presets []Preset `yaml:"presets"`
}

// LoadPresetsFile merges YAML overrides on top of the built-in table:
//
//	default: 720p
//	presets:
//	  - {label: 720p, width: 1280, height: 720, bitrate: 4000k, crf: 24}
func LoadPresetsFile(path string) (*PresetTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets file: %w", err)
	}
	return parsePresets(raw)
}

func parsePresets(raw []byte) (*PresetTable, error) {
	var f presetFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode presets: %w", err)
	}
	base := DefaultPresets()
	merged := make([]Preset, 0, len(base.byLabel)+len(f.Presets))
	for _, p := range base.byLabel {
		merged = append(merged, p)
	}
	for _, p := range f.Presets {
		if p.Width <= 0 || p.Height <= 0 {
			return nil, fmt.Errorf("preset %q: width and height must be positive", p.Label)
		}
		merged = append(merged, p)
	}
	fallback := normalizeLabel(f.Default)
	if fallback == "" {
		fallback = DefaultQuality
	}
	t := NewPresetTable(merged, fallback)
	if _, ok := t.byLabel[fallback]; !ok {
		return nil, fmt.Errorf("default preset %q is not defined", fallback)
	}
	return t, nil
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
