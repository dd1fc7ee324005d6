package present

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownView is returned when a selection names no known view.
var ErrUnknownView = errors.New("unknown view")

// View is the analysis selected for display. Exactly one view is shown at a
// time.
type View int

const (
	HolidaysAndWeekends View = iota
	WeatherFactors
)

var views = []struct {
	label, slug, heading string
}{
	HolidaysAndWeekends: {
		label:   "Holidays and Weekends Impact",
		slug:    "holidays-weekends",
		heading: "Impact of Holidays and Weekends on Bike Rentals",
	},
	WeatherFactors: {
		label:   "Weather Factors Impact",
		slug:    "weather-factors",
		heading: "Impact of Weather Factors on Bike Rentals",
	},
}

// Views returns every view in presentation order. The first is the initial
// selection.
func Views() []View {
	return []View{HolidaysAndWeekends, WeatherFactors}
}

func (v View) valid() bool { return v >= 0 && int(v) < len(views) }

// String returns the label shown in the view selector.
func (v View) String() string {
	if !v.valid() {
		return fmt.Sprintf("View(%d)", int(v))
	}
	return views[v].label
}

// Slug returns the URL-safe name of the view.
func (v View) Slug() string {
	if !v.valid() {
		return ""
	}
	return views[v].slug
}

// Heading returns the subheader displayed above the view's charts.
func (v View) Heading() string {
	if !v.valid() {
		return ""
	}
	return views[v].heading
}

// ParseView resolves a label or slug, ignoring case.
func ParseView(s string) (View, error) {
	s = strings.TrimSpace(s)
	for _, v := range Views() {
		if strings.EqualFold(s, views[v].label) || strings.EqualFold(s, views[v].slug) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownView, s)
}

func (v View) MarshalText() ([]byte, error) {
	if !v.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownView, int(v))
	}
	return []byte(v.Slug()), nil
}

func (v *View) UnmarshalText(text []byte) error {
	parsed, err := ParseView(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
