// Package render draws chart descriptions as PNG images.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"github.com/TFMV/bikedash/present"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	DefaultWidth  = 800
	DefaultHeight = 480

	captionHeight = 22
)

var (
	face       = basicfont.Face7x13
	background = drawing.ColorWhite
	ink        = drawing.Color{R: 40, G: 40, B: 40, A: 255}

	// hues colors bar series in order of appearance.
	hues = []drawing.Color{
		{R: 76, G: 114, B: 176, A: 255},
		{R: 221, G: 132, B: 82, A: 255},
		{R: 85, G: 168, B: 104, A: 255},
		{R: 196, G: 78, B: 82, A: 255},
	}
)

// pointStyle returns a style that renders points only (no connecting line)
func pointStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: chart.Disabled,
		DotWidth:    4,
		DotColor:    col,
	}
}

// PNG renders c to w. Non-positive dimensions fall back to the defaults.
func PNG(w io.Writer, c present.Chart, width, height int) error {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	var (
		img image.Image
		err error
	)
	switch c.Kind {
	case present.KindBar:
		img, err = bars(c, width, height)
	case present.KindScatter:
		img, err = scatter(c, width, height)
	case present.KindHeatmap:
		img, err = heatmap(c, width, height)
	case present.KindPlaceholder:
		img = placeholder(c.Title, c.Message, width, height)
	default:
		return fmt.Errorf("unsupported chart kind %q", c.Kind)
	}
	if err != nil {
		return fmt.Errorf("render %q: %w", c.Title, err)
	}
	return png.Encode(w, img)
}

func bars(c present.Chart, width, height int) (image.Image, error) {
	if len(c.Bars) == 0 {
		return placeholder(c.Title, "no groups to plot", width, height), nil
	}

	series := make(map[string]drawing.Color)
	var legend []string
	values := make([]chart.Value, len(c.Bars))
	for i, b := range c.Bars {
		label := b.Category
		col := hues[0]
		if c.Hue != "" {
			var ok bool
			if col, ok = series[b.Series]; !ok {
				col = hues[len(series)%len(hues)]
				series[b.Series] = col
				legend = append(legend, b.Series)
			}
			label = fmt.Sprintf("%s (%s=%s)", b.Category, c.Hue, b.Series)
		}
		values[i] = chart.Value{
			Label: label,
			Value: b.Value,
			Style: chart.Style{FillColor: col, StrokeColor: col, StrokeWidth: 1},
		}
	}

	barWidth := (width - 120) / (len(values) * 2)
	if barWidth < 8 {
		barWidth = 8
	}
	bc := chart.BarChart{
		Title:      c.Title,
		Width:      width,
		Height:     height - captionHeight,
		BarWidth:   barWidth,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 8}},
		YAxis:      chart.YAxis{Name: c.YLabel, Range: barRange(c.Bars)},
		Bars:       values,
	}
	var buf bytes.Buffer
	if err := bc.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	img, err := png.Decode(&buf)
	if err != nil {
		return nil, err
	}

	canvas := newCanvas(width, height)
	draw.Draw(canvas, img.Bounds(), img, image.Point{}, draw.Src)
	y := height - 7
	drawCentered(canvas, c.XLabel, width/2, y, ink)
	if len(legend) > 0 {
		x := width - 8
		for i := len(legend) - 1; i >= 0; i-- {
			label := fmt.Sprintf("%s=%s", c.Hue, legend[i])
			x -= textWidth(label)
			drawText(canvas, label, x, y, ink)
			x -= 14
			fill(canvas, image.Rect(x, y-10, x+10, y), series[legend[i]])
			x -= 10
		}
	}
	return canvas, nil
}

func scatter(c present.Chart, width, height int) (image.Image, error) {
	if len(c.Points) == 0 {
		return placeholder(c.Title, "no rows to plot", width, height), nil
	}

	xs := make([]float64, len(c.Points))
	ys := make([]float64, len(c.Points))
	for i, p := range c.Points {
		xs[i], ys[i] = p.X, p.Y
	}

	ch := chart.Chart{
		Title:      c.Title,
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 8}},
		XAxis:      chart.XAxis{Name: c.XLabel, Range: span(xs)},
		YAxis:      chart.YAxis{Name: c.YLabel, Range: span(ys)},
		Series: []chart.Series{
			chart.ContinuousSeries{XValues: xs, YValues: ys, Style: pointStyle(hues[0])},
		},
	}
	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return png.Decode(&buf)
}

// span returns an explicit axis range when every value is equal, which the
// automatic ranging cannot plot.
func span(vals []float64) *chart.ContinuousRange {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo < hi {
		return nil
	}
	pad := math.Max(math.Abs(lo)*0.1, 1)
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}

// barRange anchors the value axis at zero so bar heights stay comparable.
func barRange(bs []present.Bar) *chart.ContinuousRange {
	lo, hi := 0.0, 0.0
	for _, b := range bs {
		lo = math.Min(lo, b.Value)
		hi = math.Max(hi, b.Value)
	}
	if lo == hi {
		hi = lo + 1
	}
	return &chart.ContinuousRange{Min: lo, Max: hi + (hi-lo)*0.05}
}

func placeholder(title, msg string, width, height int) image.Image {
	canvas := newCanvas(width, height)
	fill(canvas, image.Rect(8, 8, width-8, height-8), drawing.Color{R: 245, G: 245, B: 245, A: 255})
	drawCentered(canvas, title, width/2, 28, ink)
	drawCentered(canvas, msg, width/2, height/2, drawing.ColorBlack.WithAlpha(160))
	return canvas
}

func newCanvas(width, height int) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	fill(canvas, canvas.Bounds(), background)
	return canvas
}

func fill(dst draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Src)
}

func textWidth(s string) int {
	return font.MeasureString(face, s).Ceil()
}

// drawText writes s with its baseline starting at (x, y).
func drawText(dst draw.Image, s string, x, y int, c color.Color) {
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(c), Face: face, Dot: fixed.P(x, y)}
	d.DrawString(s)
}

func drawCentered(dst draw.Image, s string, cx, y int, c color.Color) {
	drawText(dst, s, cx-textWidth(s)/2, y, c)
}
