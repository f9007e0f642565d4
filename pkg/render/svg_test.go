package render

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/azybler/transit_router/pkg/layout"
)

func TestColorUnmarshal(t *testing.T) {
	tests := []struct {
		in      string
		want    Color
		wantErr bool
	}{
		{`"green"`, "green", false},
		{`[255, 160, 0]`, "rgb(255,160,0)", false},
		{`[255, 200, 23, 0.85]`, "rgba(255,200,23,0.85)", false},
		{`[1, 2]`, "", true},
		{`[256, 0, 0]`, "", true},
		{`[1.5, 0, 0]`, "", true},
		{`12`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var c Color
			err := json.Unmarshal([]byte(tt.in), &c)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && c != tt.want {
				t.Errorf("Color = %q, want %q", c, tt.want)
			}
		})
	}
}

func TestSettingsDecode(t *testing.T) {
	doc := `{
		"width": 600, "height": 400, "padding": 50,
		"stop_radius": 5, "line_width": 14,
		"stop_label_font_size": 20, "stop_label_offset": [7, -3],
		"bus_label_font_size": 20, "bus_label_offset": [7, 15],
		"underlayer_color": [255, 255, 255, 0.85], "underlayer_width": 3,
		"color_palette": ["green", [255, 160, 0], "red"]
	}`
	var s Settings
	if err := json.Unmarshal([]byte(doc), &s); err != nil {
		t.Fatal(err)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if s.StopLabelOffset != (Offset{7, -3}) {
		t.Errorf("StopLabelOffset = %v", s.StopLabelOffset)
	}
	if s.UnderlayerColor != "rgba(255,255,255,0.85)" {
		t.Errorf("UnderlayerColor = %q", s.UnderlayerColor)
	}
	if got := s.PaletteColor(4); got != "rgb(255,160,0)" {
		t.Errorf("PaletteColor(4) = %q", got)
	}
}

func TestSettingsValidate(t *testing.T) {
	base := DefaultSettings()
	if err := base.Validate(); err != nil {
		t.Fatalf("default settings invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"zero width", func(s *Settings) { s.Width = 0 }},
		{"padding too large", func(s *Settings) { s.Padding = s.Height }},
		{"negative radius", func(s *Settings) { s.StopRadius = -1 }},
		{"unknown layer", func(s *Settings) { s.Layers = []string{"companies"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			if err := s.Validate(); err == nil {
				t.Error("Validate accepted invalid settings")
			}
		})
	}
}

func testMap() Map {
	return Map{
		Buses: []BusLine{{
			Name:   "14",
			Color:  "green",
			Points: []layout.Point{{X: 50, Y: 350}, {X: 300, Y: 350}, {X: 50, Y: 350}},
			Labels: []layout.Point{{X: 50, Y: 350}},
		}},
		Stops: []StopMark{
			{Name: "A & B", Point: layout.Point{X: 50, Y: 350}},
			{Name: "C", Point: layout.Point{X: 300, Y: 350}},
		},
	}
}

func TestSVGLayers(t *testing.T) {
	s := DefaultSettings()
	out := string(SVG(testMap(), s))

	if !strings.HasPrefix(out, "<?xml") || !strings.HasSuffix(out, "</svg>\n") {
		t.Fatalf("not a complete document:\n%s", out)
	}
	checks := []string{
		`<polyline points="50,350 300,350 50,350" fill="none" stroke="green" stroke-width="14"`,
		`<circle cx="300" cy="350" r="5" fill="white"/>`,
		`font-weight="bold" fill="green">14</text>`,
		`fill="black">A &amp; B</text>`,
	}
	for _, c := range checks {
		if !strings.Contains(out, c) {
			t.Errorf("missing %q in:\n%s", c, out)
		}
	}

	// Layer order follows DefaultLayers.
	line := strings.Index(out, "<polyline")
	circle := strings.Index(out, "<circle")
	if line < 0 || circle < 0 || line > circle {
		t.Errorf("bus lines must precede stop points")
	}
}

func TestSVGLayerSelection(t *testing.T) {
	s := DefaultSettings()
	s.Layers = []string{LayerStopPoints}
	out := string(SVG(testMap(), s))
	if strings.Contains(out, "<polyline") || strings.Contains(out, "<text") {
		t.Errorf("unexpected layers in:\n%s", out)
	}
	if strings.Count(out, "<circle") != 2 {
		t.Errorf("want 2 circles in:\n%s", out)
	}
}

func TestSVGEmptyMap(t *testing.T) {
	out := string(SVG(Map{}, DefaultSettings()))
	if strings.Contains(out, "<polyline") || strings.Contains(out, "<circle") {
		t.Errorf("empty map drew shapes:\n%s", out)
	}
}

func TestNum(t *testing.T) {
	tests := map[float64]string{
		299.99999999999994: "300",
		-0.0:               "0",
		12.5:               "12.5",
	}
	for in, want := range tests {
		if got := num(in); got != want {
			t.Errorf("num(%v) = %q, want %q", in, got, want)
		}
	}
}
