package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/herbieproject/herbie-dash/internal/config"
	"github.com/herbieproject/herbie-dash/internal/snapshot"
)

// channelLabel, when present on a series, names the channel it feeds.
// Series without it are summed into a channel named after their family.
const channelLabel = "channel"

// Exporter runtime families that never carry sensor readings.
var promIgnoredPrefixes = []string{"go_", "process_", "promhttp_"}

// promReader scrapes a live exporter. Each successful scrape becomes one row;
// the reader keeps the last limit rows so the dashboard has a history to plot.
type promReader struct {
	src    config.Source
	client *http.Client
	limit  int
	now    func() time.Time

	mu       sync.Mutex
	rows     []snapshot.Record
	channels map[string]struct{}
}

// Fetch scrapes the endpoint, appends one row and returns the retained history.
// A failed scrape leaves the history untouched.
func (r *promReader) Fetch(ctx context.Context) (snapshot.Raw, error) {
	mfs, err := fetchMetrics(ctx, r.client, r.src.Endpoint)
	if err != nil {
		return snapshot.Raw{}, unavailable(r.src, err)
	}

	timeField := r.src.Normalize.TimeField
	if timeField == "" {
		timeField = config.DefaultPromTimeField
	}

	rec := snapshot.Record{timeField: r.now().UTC().Format(time.RFC3339Nano)}
	for name, v := range channelValues(mfs) {
		rec[name] = v
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channels == nil {
		r.channels = make(map[string]struct{})
	}
	for k := range rec {
		if k != timeField {
			r.channels[k] = struct{}{}
		}
	}
	r.rows = append(r.rows, rec)
	if r.limit > 0 && len(r.rows) > r.limit {
		r.rows = append(r.rows[:0:0], r.rows[len(r.rows)-r.limit:]...)
	}

	fields := make([]string, 0, len(r.channels)+1)
	for k := range r.channels {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	fields = append([]string{timeField}, fields...)

	records := make([]snapshot.Record, len(r.rows))
	copy(records, r.rows)
	return snapshot.Raw{Fields: fields, Records: records}, nil
}

// channelValues maps every gauge or untyped family to channel values.
func channelValues(mfs map[string]*dto.MetricFamily) map[string]float64 {
	out := make(map[string]float64)
	for name, mf := range mfs {
		if ignoredFamily(name) {
			continue
		}
		switch mf.GetType() {
		case dto.MetricType_GAUGE, dto.MetricType_UNTYPED:
		default:
			continue
		}

		var unlabeled []*dto.Metric
		for _, m := range mf.GetMetric() {
			ch := labelValue(m, channelLabel)
			if ch == "" {
				unlabeled = append(unlabeled, m)
				continue
			}
			out[ch] += metricValue(m)
		}
		if len(unlabeled) > 0 {
			out[name] += sumFamily(&dto.MetricFamily{Metric: unlabeled})
		}
	}
	return out
}

func ignoredFamily(name string) bool {
	for _, p := range promIgnoredPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func metricValue(m *dto.Metric) float64 {
	switch {
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	case m.Counter != nil:
		return m.Counter.GetValue()
	}
	return 0
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up all counter, gauge, or untyped values in a MetricFamily.
// Returns 0 if mf is nil.
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		total += metricValue(m)
	}
	return total
}
