package storage

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/san-kum/bdsim/internal/dynamo"
)

const (
	svgWidth  = 800
	svgHeight = 240
)

// ExportSVG draws the energy and distance traces of a run, one panel each,
// iteration on the x axis. Non-finite values leave a gap in the line.
func ExportSVG(w io.Writer, samples []dynamo.Sample) error {
	energies := make([]float64, len(samples))
	distances := make([]float64, len(samples))
	for i, s := range samples {
		energies[i] = s.Energy
		distances[i] = s.Distance
	}

	panels := []struct {
		title  string
		color  string
		values []float64
	}{
		{"energy", "#00ff88", energies},
		{"distance", "#ffaa00", distances},
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, svgWidth, svgHeight*len(panels), svgWidth, svgHeight*len(panels))
	for i, p := range panels {
		fmt.Fprintf(&sb, `<g transform="translate(0,%d)">
<text x="8" y="16" fill="#888888" font-family="monospace" font-size="12">%s</text>
%s</g>
`, i*svgHeight, p.title, tracePath(p.values, svgWidth, svgHeight, p.color))
	}
	sb.WriteString("</svg>\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

// tracePath returns an SVG path for values, padded by 10% of the range.
// It returns "" when fewer than two values are finite.
func tracePath(values []float64, width, height int, stroke string) string {
	lo, hi := math.Inf(1), math.Inf(-1)
	finite := 0
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo, hi = math.Min(lo, v), math.Max(hi, v)
		finite++
	}
	if finite < 2 {
		return ""
	}

	span := hi - lo
	if span == 0 {
		span = 1
	}
	lo -= span * 0.1
	span *= 1.2
	xStep := float64(width) / float64(max(len(values)-1, 1))

	var d strings.Builder
	move := true
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			move = true
			continue
		}
		x := float64(i) * xStep
		y := float64(height) - (v-lo)/span*float64(height)
		if move {
			fmt.Fprintf(&d, "M%.1f,%.1f ", x, y)
			move = false
		} else {
			fmt.Fprintf(&d, "L%.1f,%.1f ", x, y)
		}
	}
	return fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1.5" d="%s"/>
`, stroke, strings.TrimSpace(d.String()))
}
