// Package render draws a transit map layout as an SVG document.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Layer names, drawn in the order listed in Settings.Layers.
const (
	LayerBusLines   = "bus_lines"
	LayerBusLabels  = "bus_labels"
	LayerStopPoints = "stop_points"
	LayerStopLabels = "stop_labels"
)

// DefaultLayers is used when Settings.Layers is empty.
var DefaultLayers = []string{LayerBusLines, LayerBusLabels, LayerStopPoints, LayerStopLabels}

// Color is an SVG paint value. In JSON it is either a name string, an
// [r, g, b] triple or an [r, g, b, opacity] quadruple.
type Color string

// UnmarshalJSON accepts the three color encodings.
func (c *Color) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Color(s)
		return nil
	}

	var parts []float64
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("color: want string or array, got %s", data)
	}
	for i, p := range parts[:min(3, len(parts))] {
		if p < 0 || p > 255 || p != float64(int(p)) {
			return fmt.Errorf("color: component %d out of range: %v", i, p)
		}
	}
	switch len(parts) {
	case 3:
		*c = Color(fmt.Sprintf("rgb(%d,%d,%d)", int(parts[0]), int(parts[1]), int(parts[2])))
	case 4:
		a := strconv.FormatFloat(parts[3], 'f', -1, 64)
		*c = Color(fmt.Sprintf("rgba(%d,%d,%d,%s)", int(parts[0]), int(parts[1]), int(parts[2]), a))
	default:
		return fmt.Errorf("color: want 3 or 4 components, got %d", len(parts))
	}
	return nil
}

// Offset is a label displacement [dx, dy] in pixels.
type Offset [2]float64

// Settings controls map geometry and styling.
type Settings struct {
	Width             float64  `json:"width"`
	Height            float64  `json:"height"`
	Padding           float64  `json:"padding"`
	OuterMargin       float64  `json:"outer_margin"`
	StopRadius        float64  `json:"stop_radius"`
	LineWidth         float64  `json:"line_width"`
	StopLabelFontSize int      `json:"stop_label_font_size"`
	StopLabelOffset   Offset   `json:"stop_label_offset"`
	BusLabelFontSize  int      `json:"bus_label_font_size"`
	BusLabelOffset    Offset   `json:"bus_label_offset"`
	UnderlayerColor   Color    `json:"underlayer_color"`
	UnderlayerWidth   float64  `json:"underlayer_width"`
	ColorPalette      []Color  `json:"color_palette"`
	Layers            []string `json:"layers,omitempty"`
	Interpolate       bool     `json:"interpolate,omitempty"`
}

// DefaultSettings returns a usable style for callers without render settings.
func DefaultSettings() Settings {
	return Settings{
		Width:             1200,
		Height:            1200,
		Padding:           50,
		StopRadius:        5,
		LineWidth:         14,
		StopLabelFontSize: 20,
		StopLabelOffset:   Offset{7, -3},
		BusLabelFontSize:  20,
		BusLabelOffset:    Offset{7, 15},
		UnderlayerColor:   "rgba(255,255,255,0.85)",
		UnderlayerWidth:   3,
		ColorPalette:      []Color{"green", "rgb(255,160,0)", "red"},
	}
}

// Validate checks geometry and layer names.
func (s Settings) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("render: width and height must be positive, got %vx%v", s.Width, s.Height)
	}
	if s.Padding < 0 || 2*s.Padding > min(s.Width, s.Height) {
		return fmt.Errorf("render: padding %v does not fit a %vx%v canvas", s.Padding, s.Width, s.Height)
	}
	if s.StopRadius < 0 || s.LineWidth < 0 || s.UnderlayerWidth < 0 || s.OuterMargin < 0 {
		return fmt.Errorf("render: sizes must not be negative")
	}
	for _, l := range s.Layers {
		if !slices.Contains(DefaultLayers, l) {
			return fmt.Errorf("render: unknown layer %q (want one of %s)", l, strings.Join(DefaultLayers, ", "))
		}
	}
	return nil
}

func (s Settings) layers() []string {
	if len(s.Layers) == 0 {
		return DefaultLayers
	}
	return s.Layers
}

// PaletteColor returns the color for the i-th drawn bus, cycling the palette.
func (s Settings) PaletteColor(i int) Color {
	if len(s.ColorPalette) == 0 {
		return "black"
	}
	return s.ColorPalette[i%len(s.ColorPalette)]
}
