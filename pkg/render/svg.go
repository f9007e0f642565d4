package render

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"math"
	"strconv"

	"github.com/azybler/transit_router/pkg/layout"
)

const fontFamily = "Verdana"

// Map is a laid-out transit map ready to draw.
type Map struct {
	Buses []BusLine
	Stops []StopMark
}

// BusLine is one bus polyline in travel order with its endpoint labels.
type BusLine struct {
	Name   string
	Color  Color
	Points []layout.Point
	Labels []layout.Point // one per final stop
}

// StopMark is a drawn stop.
type StopMark struct {
	Name  string
	Point layout.Point
}

// SVG renders m with the layers in s, in order.
func SVG(m Map, s Settings) []byte {
	var buf bytes.Buffer

	w, h := s.Width+2*s.OuterMargin, s.Height+2*s.OuterMargin
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8" ?>` + "\n")
	fmt.Fprintf(&buf, `<svg xmlns="http://www.w3.org/2000/svg" version="1.1" viewBox="%s %s %s %s" width="%s" height="%s">`+"\n",
		num(-s.OuterMargin), num(-s.OuterMargin), num(w), num(h), num(w), num(h))

	for _, layer := range s.layers() {
		switch layer {
		case LayerBusLines:
			renderBusLines(&buf, m, s)
		case LayerBusLabels:
			renderBusLabels(&buf, m, s)
		case LayerStopPoints:
			renderStopPoints(&buf, m, s)
		case LayerStopLabels:
			renderStopLabels(&buf, m, s)
		}
	}

	buf.WriteString("</svg>\n")
	return buf.Bytes()
}

func renderBusLines(buf *bytes.Buffer, m Map, s Settings) {
	for _, b := range m.Buses {
		if len(b.Points) == 0 {
			continue
		}
		buf.WriteString(`  <polyline points="`)
		for i, p := range b.Points {
			if i > 0 {
				buf.WriteByte(' ')
			}
			fmt.Fprintf(buf, "%s,%s", num(p.X), num(p.Y))
		}
		fmt.Fprintf(buf, `" fill="none" stroke="%s" stroke-width="%s" stroke-linecap="round" stroke-linejoin="round"/>`+"\n",
			escape(string(b.Color)), num(s.LineWidth))
	}
}

func renderBusLabels(buf *bytes.Buffer, m Map, s Settings) {
	for _, b := range m.Buses {
		for _, p := range b.Labels {
			t := text{
				at:     p,
				offset: s.BusLabelOffset,
				size:   s.BusLabelFontSize,
				bold:   true,
				label:  b.Name,
			}
			t.write(buf, s, b.Color)
		}
	}
}

func renderStopPoints(buf *bytes.Buffer, m Map, s Settings) {
	for _, st := range m.Stops {
		fmt.Fprintf(buf, `  <circle cx="%s" cy="%s" r="%s" fill="white"/>`+"\n",
			num(st.Point.X), num(st.Point.Y), num(s.StopRadius))
	}
}

func renderStopLabels(buf *bytes.Buffer, m Map, s Settings) {
	for _, st := range m.Stops {
		t := text{
			at:     st.Point,
			offset: s.StopLabelOffset,
			size:   s.StopLabelFontSize,
			label:  st.Name,
		}
		t.write(buf, s, "black")
	}
}

type text struct {
	at     layout.Point
	offset Offset
	size   int
	bold   bool
	label  string
}

// write emits the underlayer copy followed by the label itself.
func (t text) write(buf *bytes.Buffer, s Settings, fill Color) {
	attrs := fmt.Sprintf(`x="%s" y="%s" dx="%s" dy="%s" font-size="%d" font-family="%s"`,
		num(t.at.X), num(t.at.Y), num(t.offset[0]), num(t.offset[1]), t.size, fontFamily)
	if t.bold {
		attrs += ` font-weight="bold"`
	}
	label := escape(t.label)
	under := escape(string(s.UnderlayerColor))

	fmt.Fprintf(buf, `  <text %s fill="%s" stroke="%s" stroke-width="%s" stroke-linecap="round" stroke-linejoin="round">%s</text>`+"\n",
		attrs, under, under, num(s.UnderlayerWidth), label)
	fmt.Fprintf(buf, `  <text %s fill="%s">%s</text>`+"\n", attrs, escape(string(fill)), label)
}

// num formats a coordinate without float noise.
func num(v float64) string {
	v = math.Round(v*1e6) / 1e6
	if v == 0 {
		v = 0 // no "-0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func escape(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
