package web

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMoment_FromNow(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := &Moment{Now: func() time.Time { return now }}

	tests := []struct {
		offset time.Duration
		want   string
	}{
		{-10 * time.Second, "a few seconds ago"},
		{-60 * time.Second, "a minute ago"},
		{-5 * time.Minute, "5 minutes ago"},
		{-time.Hour, "an hour ago"},
		{-3 * time.Hour, "3 hours ago"},
		{-30 * time.Hour, "a day ago"},
		{-5 * 24 * time.Hour, "5 days ago"},
		{-35 * 24 * time.Hour, "a month ago"},
		{-90 * 24 * time.Hour, "3 months ago"},
		{-400 * 24 * time.Hour, "a year ago"},
		{-3 * 365 * 24 * time.Hour, "3 years ago"},
		{5 * time.Minute, "in 5 minutes"},
		{time.Hour, "in an hour"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Wrap(now.Add(tt.offset)).FromNow())
		})
	}
}

func TestMoment_Format(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	v := NewMoment().Wrap(time.Date(2024, 5, 1, 15, 0, 0, 0, loc))

	assert.Equal(t, "2024-05-01 12:00", v.Format("2006-01-02 15:04"))
	assert.Equal(t, "2024-05-01T12:00:00Z", v.ISO())
}

func TestBootstrap(t *testing.T) {
	b := NewBootstrap()
	assert.Contains(t, string(b.CSS()), "bootstrap@"+BootstrapVersion)
	assert.True(t, strings.HasPrefix(string(b.JS()), "<script"))

	b.ServeLocal = true
	assert.Contains(t, string(b.CSS()), `href="/static/bootstrap/css/bootstrap.min.css"`)
	assert.Len(t, b.FuncMap(), 2)
}
