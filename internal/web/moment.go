package web

import (
	"fmt"
	"html/template"
	"math"
	"time"
)

// Moment renders timestamps in UTC and as relative "from now" text
type Moment struct {
	Now func() time.Time
}

// NewMoment creates a Moment using the wall clock
func NewMoment() *Moment {
	return &Moment{Now: time.Now}
}

// Wrap prepares t for display
func (m *Moment) Wrap(t time.Time) MomentValue {
	return MomentValue{t: t, now: m.Now()}
}

// FuncMap returns the "moment" template helper
func (m *Moment) FuncMap() template.FuncMap {
	return template.FuncMap{"moment": m.Wrap}
}

// MomentValue is a timestamp prepared for display relative to now
type MomentValue struct {
	t   time.Time
	now time.Time
}

// Format formats the timestamp in UTC
func (v MomentValue) Format(layout string) string {
	return v.t.UTC().Format(layout)
}

// ISO returns the RFC 3339 UTC form
func (v MomentValue) ISO() string {
	return v.t.UTC().Format(time.RFC3339)
}

// FromNow describes the timestamp relative to now, e.g. "5 minutes ago"
// or "in an hour"
func (v MomentValue) FromNow() string {
	d := v.now.Sub(v.t)
	future := d < 0
	if future {
		d = -d
	}

	text := humanize(d)
	if future {
		return "in " + text
	}
	return text + " ago"
}

func humanize(d time.Duration) string {
	seconds := d.Seconds()
	minutes := d.Minutes()
	hours := d.Hours()
	days := hours / 24

	switch {
	case seconds < 45:
		return "a few seconds"
	case seconds < 90:
		return "a minute"
	case minutes < 45:
		return fmt.Sprintf("%d minutes", int(math.Round(minutes)))
	case minutes < 90:
		return "an hour"
	case hours < 22:
		return fmt.Sprintf("%d hours", int(math.Round(hours)))
	case hours < 36:
		return "a day"
	case days < 26:
		return fmt.Sprintf("%d days", int(math.Round(days)))
	case days < 46:
		return "a month"
	case days < 320:
		return fmt.Sprintf("%d months", int(math.Round(days/30.4)))
	case days < 548:
		return "a year"
	default:
		return fmt.Sprintf("%d years", int(math.Round(days/365)))
	}
}
