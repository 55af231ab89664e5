package render

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/herbieproject/herbie-dash/internal/snapshot"
)

// Default chart canvas size in pixels.
const (
	DefaultWidth  = 1024
	DefaultHeight = 400
)

// ErrNoChartData is returned when no retained row carries a timestamp.
var ErrNoChartData = errors.New("render: no timestamped rows to chart")

// ChartOptions controls Chart.
type ChartOptions struct {
	Title string

	// Tail limits the chart to the most recent rows. Zero plots every row.
	Tail int

	// Colors maps channel name to a colour name or #hex value. Channels
	// without an entry take the default palette.
	Colors map[string]string

	Width  int
	Height int
}

// namedColors are the colour names accepted in chart configuration.
var namedColors = map[string]drawing.Color{
	"black":  chart.ColorBlack,
	"blue":   chart.ColorBlue,
	"cyan":   chart.ColorCyan,
	"gray":   chart.ColorAlternateGray,
	"green":  chart.ColorGreen,
	"orange": chart.ColorOrange,
	"red":    chart.ColorRed,
	"yellow": chart.ColorYellow,
	"purple": drawing.ColorFromHex("800080"),
	"brown":  drawing.ColorFromHex("8b4513"),
}

// Chart draws one solid line per channel over the last opts.Tail rows and
// writes the PNG to w. Rows without a timestamp are skipped.
func Chart(snap *snapshot.Snapshot, opts ChartOptions, w io.Writer) error {
	if snap.Empty() {
		return snapshot.ErrEmptySnapshot
	}

	var times []time.Time
	var timed []snapshot.Row
	for _, r := range snap.Tail(opts.Tail) {
		if !r.HasTime() {
			continue
		}
		times = append(times, r.Time)
		timed = append(timed, r)
	}
	if len(timed) == 0 {
		return ErrNoChartData
	}
	if zeroSpan(times) {
		// go-chart rejects an empty X range.
		last := len(times) - 1
		times = append(times, times[last].Add(time.Second))
		timed = append(timed, timed[last])
	}

	series := make([]chart.Series, 0, len(snap.Columns))
	for i, col := range snap.Columns {
		series = append(series, chart.TimeSeries{
			Name:    col,
			XValues: times,
			YValues: snap.Series(col, timed),
			Style: chart.Style{
				StrokeColor: channelColor(col, i, opts.Colors),
				StrokeWidth: 2,
			},
		})
	}

	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	ch := chart.Chart{
		Title:      opts.Title,
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		XAxis:      chart.XAxis{Name: "Time", ValueFormatter: chart.TimeValueFormatter},
		YAxis:      chart.YAxis{Name: "Value"},
		Series:     series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	if err := ch.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

// channelColor resolves the configured colour for col, falling back to the
// default palette by column position.
func channelColor(col string, i int, colors map[string]string) drawing.Color {
	if c, ok := ParseColor(colors[col]); ok {
		return c
	}
	return chart.GetDefaultColor(i)
}

// ParseColor accepts a colour name or a #rgb / #rrggbb value.
func ParseColor(s string) (drawing.Color, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return drawing.Color{}, false
	}
	if c, ok := namedColors[s]; ok {
		return c, true
	}
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 3 && len(hex) != 6 {
		return drawing.Color{}, false
	}
	for _, r := range hex {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return drawing.Color{}, false
		}
	}
	return drawing.ColorFromHex(hex), true
}

// zeroSpan reports whether every timestamp is the same instant.
func zeroSpan(times []time.Time) bool {
	for _, t := range times[1:] {
		if !t.Equal(times[0]) {
			return false
		}
	}
	return true
}
