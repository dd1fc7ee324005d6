package render

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/TFMV/bikedash/present"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Endpoints of the diverging palette, from -1 through 0 to +1.
var (
	cool    = drawing.Color{R: 59, G: 76, B: 192, A: 255}
	neutral = drawing.Color{R: 221, G: 221, B: 221, A: 255}
	warm    = drawing.Color{R: 180, G: 4, B: 38, A: 255}
	blank   = drawing.Color{R: 200, G: 200, B: 200, A: 255}
)

// coolwarm maps a coefficient in [-1, 1] to a color. NaN maps to grey.
func coolwarm(r float64) drawing.Color {
	switch {
	case math.IsNaN(r):
		return blank
	case r < 0:
		return lerp(neutral, cool, math.Min(-r, 1))
	default:
		return lerp(neutral, warm, math.Min(r, 1))
	}
}

func lerp(a, b drawing.Color, t float64) drawing.Color {
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*t))
	}
	return drawing.Color{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 255}
}

// heatmap draws the matrix as a grid of colored cells, each annotated with
// its coefficient, labelled by column name on both axes.
func heatmap(c present.Chart, width, height int) (image.Image, error) {
	if c.Matrix == nil {
		return nil, errors.New("heatmap without matrix")
	}
	cols := c.Matrix.Columns
	vals := c.Matrix.Rows()
	n := len(cols)
	if n == 0 {
		return placeholder(c.Title, "no columns", width, height), nil
	}

	labelW := 0
	for _, col := range cols {
		if w := textWidth(col); w > labelW {
			labelW = w
		}
	}
	const top, legendW = 44, 60
	left := labelW + 16
	bottom := face.Height + 16

	cell := (width - left - legendW) / n
	if h := (height - top - bottom) / n; h < cell {
		cell = h
	}
	if cell < 8 {
		return nil, fmt.Errorf("%dx%d too small for %d columns", width, height, n)
	}

	canvas := newCanvas(width, height)
	drawCentered(canvas, c.Title, width/2, 24, ink)

	for i := range vals {
		y0 := top + i*cell
		drawText(canvas, cols[i], left-8-textWidth(cols[i]), y0+cell/2+face.Ascent/2, ink)
		for j, r := range vals[i] {
			x0 := left + j*cell
			bg := coolwarm(r)
			fill(canvas, image.Rect(x0, y0, x0+cell-1, y0+cell-1), bg)

			text := "n/a"
			if !math.IsNaN(r) {
				text = fmt.Sprintf("%.2f", r)
			}
			fg := ink
			if math.Abs(r) > 0.6 {
				fg = drawing.ColorWhite
			}
			drawCentered(canvas, text, x0+cell/2, y0+cell/2+face.Ascent/2, fg)
		}
	}
	for j, col := range cols {
		drawCentered(canvas, col, left+j*cell+cell/2, top+n*cell+face.Height+4, ink)
	}

	// Color scale from +1 at the top to -1 at the bottom.
	x0 := left + n*cell + 16
	scale := n * cell
	for k := 0; k < scale; k++ {
		r := 1 - 2*float64(k)/float64(scale-1)
		fill(canvas, image.Rect(x0, top+k, x0+14, top+k+1), coolwarm(r))
	}
	drawText(canvas, "1", x0+18, top+face.Ascent, ink)
	drawText(canvas, "-1", x0+18, top+scale, ink)
	return canvas, nil
}
