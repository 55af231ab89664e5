package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/herbieproject/herbie-dash/internal/config"
	"github.com/herbieproject/herbie-dash/internal/snapshot"
)

// herbieExposition is a sensor exporter scrape: one labelled gauge family,
// one bare gauge, and runtime families that must be ignored.
const herbieExposition = `
# HELP herbie_sensor_value Current sensor reading.
# TYPE herbie_sensor_value gauge
herbie_sensor_value{channel="Light"} 5
herbie_sensor_value{channel="Water"} 0
herbie_sensor_value{channel="Temp"} 27.5

# HELP herbie_pump_on Pump relay state.
# TYPE herbie_pump_on gauge
herbie_pump_on 1

# HELP herbie_reads_total Reads since boot.
# TYPE herbie_reads_total counter
herbie_reads_total 1200

# HELP go_goroutines Number of goroutines.
# TYPE go_goroutines gauge
go_goroutines 12
`

func newPromTestReader(url string, limit int) *promReader {
	clock := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &promReader{
		src:    config.Source{ID: "herbie-live", Type: "prometheus", Endpoint: url},
		client: http.DefaultClient,
		limit:  limit,
		now: func() time.Time {
			clock = clock.Add(5 * time.Second)
			return clock
		},
	}
}

func TestPromReader_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(herbieExposition))
	}))
	defer srv.Close()

	r := newPromTestReader(srv.URL, 10)
	raw, err := r.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	want := []string{"Time", "Light", "Temp", "Water", "herbie_pump_on"}
	if len(raw.Fields) != len(want) {
		t.Fatalf("Fields = %v, want %v", raw.Fields, want)
	}
	for i := range want {
		if raw.Fields[i] != want[i] {
			t.Errorf("Fields[%d] = %q, want %q", i, raw.Fields[i], want[i])
		}
	}

	snap := snapshot.Normalize(raw, snapshot.Options{TimeField: "Time"})
	latest := snap.Latest()
	if latest["Light"] != 5 || latest["Temp"] != 27.5 || latest["herbie_pump_on"] != 1 {
		t.Errorf("Latest = %v", latest)
	}
	if _, ok := latest["herbie_reads_total"]; ok {
		t.Error("counter family should not become a channel")
	}
	if _, ok := latest["go_goroutines"]; ok {
		t.Error("runtime family should be ignored")
	}
	last, _ := snap.Last()
	if !last.HasTime() {
		t.Error("row should carry the scrape time")
	}
}

func TestPromReader_HistoryBounded(t *testing.T) {
	var n atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		v := n.Add(1)
		_, _ = w.Write([]byte("# TYPE herbie_sensor_value gauge\nherbie_sensor_value{channel=\"Light\"} " +
			strconv.FormatInt(v, 10) + "\n"))
	}))
	defer srv.Close()

	r := newPromTestReader(srv.URL, 3)
	var raw snapshot.Raw
	for i := 0; i < 5; i++ {
		var err error
		if raw, err = r.Fetch(context.Background()); err != nil {
			t.Fatalf("Fetch %d: %v", i, err)
		}
	}
	if len(raw.Records) != 3 {
		t.Fatalf("Records = %d, want 3", len(raw.Records))
	}

	snap := snapshot.Normalize(raw, snapshot.Options{TimeField: "Time"})
	if got := snap.Series("Light", snap.Rows); got[0] != 3 || got[2] != 5 {
		t.Errorf("Light series = %v, want [3 4 5]", got)
	}
}

func TestPromReader_FailureKeepsHistory(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(herbieExposition))
	}))
	defer srv.Close()

	r := newPromTestReader(srv.URL, 10)
	if _, err := r.Fetch(context.Background()); err != nil {
		t.Fatal(err)
	}

	fail.Store(true)
	if _, err := r.Fetch(context.Background()); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}

	fail.Store(false)
	raw, err := r.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(raw.Records) != 2 {
		t.Errorf("Records = %d, want 2", len(raw.Records))
	}
}

func TestSumFamily_Nil(t *testing.T) {
	if got := sumFamily(nil); got != 0 {
		t.Errorf("sumFamily(nil) = %v, want 0", got)
	}
}
