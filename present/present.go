// Package present maps a view selection and the rentals table to the charts
// that make up one dashboard page. Nothing here draws pixels; see package render.
package present

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/TFMV/bikedash/db"
	"github.com/TFMV/bikedash/query"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	Title      = "Bike Sharing Data Analysis Dashboard"
	DataSource = `Fanaee-T, Hadi, and Gama, Joao, "Event labeling combining ensemble detectors and background knowledge", Progress in Artificial Intelligence (2013): pp. 1-15, Springer Berlin Heidelberg`

	// PreviewRows is the number of leading rows shown in the data preview.
	PreviewRows = 5
)

var buildLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name: "bikedash_view_build_latency_seconds",
	Help: "Time to compute the charts of a view",
}, []string{"view"})

func init() {
	prometheus.MustRegister(buildLatency)
}

// Kind identifies how a chart is drawn.
type Kind string

const (
	KindBar         Kind = "bar"
	KindScatter     Kind = "scatter"
	KindHeatmap     Kind = "heatmap"
	KindPlaceholder Kind = "placeholder"
)

// Bar is one bar of a bar chart. Series is set on grouped charts only.
type Bar struct {
	Category string  `json:"category"`
	Series   string  `json:"series,omitempty"`
	Value    float64 `json:"value"`
	Count    int     `json:"count"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Chart describes a single figure: its kind, labels and data.
type Chart struct {
	Kind   Kind   `json:"kind"`
	Title  string `json:"title"`
	XLabel string `json:"x_label,omitempty"`
	YLabel string `json:"y_label,omitempty"`

	// Hue names the column that splits grouped bars into series.
	Hue     string            `json:"hue,omitempty"`
	Bars    []Bar             `json:"bars,omitempty"`
	Points  []Point           `json:"points,omitempty"`
	Matrix  *query.CorrMatrix `json:"matrix,omitempty"`
	Message string            `json:"message,omitempty"`
}

// Page is everything displayed for one view.
type Page struct {
	Title   string  `json:"title"`
	View    View    `json:"view"`
	Label   string  `json:"label"`
	Heading string  `json:"heading"`
	Charts  []Chart `json:"charts"`
	Source  string  `json:"source"`
}

// Build computes the charts of view v from t. A missing column fails the
// whole view; too few rows for a correlation yields a placeholder chart.
func Build(v View, t *db.Table) (*Page, error) {
	if !v.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownView, int(v))
	}

	start := time.Now()
	defer func() {
		buildLatency.WithLabelValues(v.Slug()).Observe(time.Since(start).Seconds())
	}()

	var (
		charts []Chart
		err    error
	)
	switch v {
	case HolidaysAndWeekends:
		charts, err = holidayCharts(t)
	case WeatherFactors:
		charts, err = weatherCharts(t)
	}
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", v.Slug(), err)
	}

	return &Page{
		Title:   Title,
		View:    v,
		Label:   v.String(),
		Heading: v.Heading(),
		Charts:  charts,
		Source:  DataSource,
	}, nil
}

// Preview returns the leading rows of t for the data preview table.
func Preview(t *db.Table) db.Preview {
	return t.Head(PreviewRows)
}

func holidayCharts(t *db.Table) ([]Chart, error) {
	byDay, err := query.GroupMean(t, []string{db.ColWorkingday, db.ColHoliday, db.ColWeekend}, db.ColCount)
	if err != nil {
		return nil, err
	}
	byWeekend, err := query.GroupMean(t, []string{db.ColWeekend}, db.ColCount)
	if err != nil {
		return nil, err
	}

	weekendBars := make([]Bar, 0, len(byWeekend.Groups))
	for _, g := range byWeekend.Groups {
		weekendBars = append(weekendBars, Bar{
			Category: strconv.FormatInt(g.Key[0], 10),
			Value:    g.Value,
			Count:    g.Count,
		})
	}

	return []Chart{
		{
			Kind:   KindBar,
			Title:  "Average Bike Rentals: Working Days vs Holidays",
			XLabel: "Working Day (1 = Working Day, 0 = Non-Working Day)",
			YLabel: "Average Total Bike Rentals",
			Hue:    db.ColHoliday,
			Bars:   collapse(byDay),
		},
		{
			Kind:   KindBar,
			Title:  "Average Bike Rentals on Weekends vs Weekdays",
			XLabel: "Weekend (1 = Weekend, 0 = Weekday)",
			YLabel: "Average Total Bike Rentals",
			Bars:   weekendBars,
		},
	}, nil
}

// collapse folds groups keyed by (category, series, ...) into one bar per
// (category, series), combining the trailing key columns by count-weighted
// mean.
func collapse(g *query.GroupedMeans) []Bar {
	type pair struct{ x, hue int64 }
	sums := make(map[pair]float64)
	counts := make(map[pair]int)
	var order []pair
	for _, grp := range g.Groups {
		p := pair{grp.Key[0], grp.Key[1]}
		if _, ok := counts[p]; !ok {
			order = append(order, p)
		}
		sums[p] += grp.Value * float64(grp.Count)
		counts[p] += grp.Count
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].x != order[j].x {
			return order[i].x < order[j].x
		}
		return order[i].hue < order[j].hue
	})

	bars := make([]Bar, len(order))
	for i, p := range order {
		bars[i] = Bar{
			Category: strconv.FormatInt(p.x, 10),
			Series:   strconv.FormatInt(p.hue, 10),
			Value:    sums[p] / float64(counts[p]),
			Count:    counts[p],
		}
	}
	return bars
}

var scatters = []struct {
	col, title, label string
}{
	{db.ColTemp, "Bike Rentals vs Temperature", "Normalized Temperature"},
	{db.ColHum, "Bike Rentals vs Humidity", "Normalized Humidity"},
	{db.ColWindspeed, "Bike Rentals vs Windspeed", "Normalized Windspeed"},
}

const heatmapTitle = "Correlation Matrix for Bike Rentals and Weather Conditions"

func weatherCharts(t *db.Table) ([]Chart, error) {
	counts, err := t.Float64s(db.ColCount)
	if err != nil {
		return nil, err
	}

	charts := make([]Chart, 0, len(scatters)+1)
	for _, s := range scatters {
		xs, err := t.Float64s(s.col)
		if err != nil {
			return nil, err
		}
		points := make([]Point, 0, len(xs))
		for i, x := range xs {
			if math.IsNaN(x) || math.IsNaN(counts[i]) {
				continue
			}
			points = append(points, Point{X: x, Y: counts[i]})
		}
		if len(points) == 0 {
			charts = append(charts, placeholder(s.title, "no rows to plot"))
			continue
		}
		charts = append(charts, Chart{
			Kind:   KindScatter,
			Title:  s.title,
			XLabel: s.label,
			YLabel: "Total Bike Rentals",
			Points: points,
		})
	}

	m, err := query.CorrelationMatrix(t, db.WeatherColumns)
	switch {
	case errors.Is(err, db.ErrInsufficientData):
		charts = append(charts, placeholder(heatmapTitle, err.Error()))
	case err != nil:
		return nil, err
	default:
		charts = append(charts, Chart{
			Kind:   KindHeatmap,
			Title:  heatmapTitle,
			Matrix: m,
		})
	}
	return charts, nil
}

func placeholder(title, msg string) Chart {
	return Chart{Kind: KindPlaceholder, Title: title, Message: msg}
}
