package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/herbieproject/herbie-dash/internal/snapshot"
	"github.com/herbieproject/herbie-dash/internal/source"
)

// scriptedReader returns its steps in order, repeating the last one.
type scriptedReader struct {
	mu    sync.Mutex
	steps []step
	calls int
}

type step struct {
	raw snapshot.Raw
	err error
}

func (r *scriptedReader) Fetch(ctx context.Context) (snapshot.Raw, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.calls
	if i >= len(r.steps) {
		i = len(r.steps) - 1
	}
	r.calls++
	if err := ctx.Err(); err != nil {
		return snapshot.Raw{}, err
	}
	return r.steps[i].raw, r.steps[i].err
}

type recorder struct {
	mu     sync.Mutex
	frames []*Frame
}

func (r *recorder) Render(f *Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

type countingObserver struct {
	mu      sync.Mutex
	results map[string]int
	rows    int
}

func (o *countingObserver) ObservePoll(_, result string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.results == nil {
		o.results = make(map[string]int)
	}
	o.results[result]++
}

func (o *countingObserver) ObserveSnapshot(_ string, snap *snapshot.Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rows = snap.Len()
}

func rows(vals ...float64) snapshot.Raw {
	raw := snapshot.Raw{Fields: []string{"Time", "Light", "Water"}}
	for i := 0; i+1 < len(vals); i += 2 {
		raw.Records = append(raw.Records, snapshot.Record{
			"Time":  fmt.Sprintf("2024-03-01 10:%02d:00", len(raw.Records)),
			"Light": vals[i],
			"Water": vals[i+1],
		})
	}
	return raw
}

var testOpts = snapshot.Options{TimeField: "Time"}

func TestAdvance_FirstSnapshotHasNoDelta(t *testing.T) {
	cur, delta, err := Advance(nil, rows(5, 0), testOpts)
	if err != nil {
		t.Fatal(err)
	}
	if delta != nil {
		t.Errorf("delta = %+v, want nil", delta)
	}
	if cur.Latest()["Light"] != 5 {
		t.Errorf("Light = %v, want 5", cur.Latest()["Light"])
	}
}

func TestAdvance_Delta(t *testing.T) {
	prev, _, _ := Advance(nil, rows(5, 0), testOpts)
	_, delta, err := Advance(prev, rows(5, 0, 8, 2), testOpts)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := delta.Value("Light"); v != 3 {
		t.Errorf("Light delta = %v, want 3", v)
	}
	if v, _ := delta.Value("Water"); v != 2 {
		t.Errorf("Water delta = %v, want 2", v)
	}
}

func TestAdvance_EmptyAfterCutoff(t *testing.T) {
	opts := testOpts
	opts.SkipBeforeIndex = 0
	cur, delta, err := Advance(nil, snapshot.Raw{}, opts)
	if !errors.Is(err, snapshot.ErrEmptySnapshot) {
		t.Fatalf("err = %v, want ErrEmptySnapshot", err)
	}
	if delta != nil || cur == nil || !cur.Empty() {
		t.Errorf("cur = %+v delta = %+v", cur, delta)
	}
}

func TestPoller_Sequence(t *testing.T) {
	fail := fmt.Errorf("%w: boom", source.ErrSourceUnavailable)
	reader := &scriptedReader{steps: []step{
		{raw: rows(5, 0)},
		{raw: rows(5, 0, 8, 2)},
		{err: fail},
		{raw: snapshot.Raw{Fields: []string{"Time", "Light"}}},
		{raw: rows(5, 0, 8, 2, 10, 1)},
	}}
	rec := &recorder{}
	obs := &countingObserver{}
	p := New("herbie-01", reader, rec, Settings{Normalize: testOpts, Observer: obs})

	if p.State() != StateAwaiting {
		t.Fatalf("initial state = %q, want awaiting", p.State())
	}

	ctx := context.Background()

	f := p.Poll(ctx)
	if f == nil || f.State != StatePolling || f.Delta != nil || f.Seq != 1 {
		t.Fatalf("first frame = %+v", f)
	}
	if p.State() != StatePolling {
		t.Errorf("state = %q, want polling", p.State())
	}

	f = p.Poll(ctx)
	if v, _ := f.Delta.Value("Light"); v != 3 {
		t.Errorf("second Light delta = %v, want 3", v)
	}

	good := f.Snapshot
	f = p.Poll(ctx)
	if f.State != StateUnavailable || !f.Stale || f.Snapshot != good || f.Err == "" {
		t.Errorf("unavailable frame = %+v", f)
	}
	if p.State() != StatePolling {
		t.Errorf("state after failure = %q, want polling", p.State())
	}

	if f = p.Poll(ctx); f != nil {
		t.Errorf("empty snapshot should not publish, got %+v", f)
	}
	if rec.count() != 3 {
		t.Errorf("renders = %d, want 3", rec.count())
	}

	// The empty poll must not replace the last good snapshot.
	f = p.Poll(ctx)
	if v, _ := f.Delta.Value("Light"); v != 2 {
		t.Errorf("Light delta after empty poll = %v, want 2", v)
	}
	if f.Seq != 4 {
		t.Errorf("Seq = %d, want 4", f.Seq)
	}

	if obs.results[ResultOK] != 3 || obs.results[ResultUnavailable] != 1 || obs.results[ResultEmpty] != 1 {
		t.Errorf("observer results = %v", obs.results)
	}
	if obs.rows != 3 {
		t.Errorf("observer rows = %d, want 3", obs.rows)
	}
}

func TestPoller_FailureBeforeFirstSnapshot(t *testing.T) {
	reader := &scriptedReader{steps: []step{{err: source.ErrSourceUnavailable}}}
	rec := &recorder{}
	p := New("s", reader, rec, Settings{Normalize: testOpts})

	f := p.Poll(context.Background())
	if f.State != StateUnavailable || f.Snapshot != nil || f.Stale {
		t.Errorf("frame = %+v", f)
	}
	if p.State() != StateAwaiting {
		t.Errorf("state = %q, want awaiting", p.State())
	}
}

func TestPoller_SetOptions(t *testing.T) {
	reader := &scriptedReader{steps: []step{{raw: rows(5, 0)}}}
	p := New("s", reader, &recorder{}, Settings{Normalize: testOpts})

	opts := testOpts
	opts.Rename = map[string]string{"Light": "Lux"}
	p.SetOptions(opts)

	f := p.Poll(context.Background())
	if _, ok := f.Snapshot.Latest()["Lux"]; !ok {
		t.Errorf("columns = %v, want renamed Lux", f.Snapshot.Columns)
	}
}

func TestPoller_RunZeroIntervalRepeats(t *testing.T) {
	reader := &scriptedReader{steps: []step{{raw: rows(1, 1)}}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rendered := make(chan struct{}, 16)
	renderer := RendererFunc(func(*Frame) {
		select {
		case rendered <- struct{}{}:
		default:
		}
	})
	p := New("s", reader, renderer, Settings{Normalize: testOpts})

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-rendered:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d frames rendered", i)
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPoller_RunStopsDuringWait(t *testing.T) {
	reader := &scriptedReader{steps: []step{{raw: rows(1, 1)}}}
	rec := &recorder{}
	p := New("s", reader, rec, Settings{Interval: time.Hour, Normalize: testOpts})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for rec.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("no frame rendered")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if rec.count() != 1 {
		t.Errorf("renders = %d, want 1", rec.count())
	}
}

func TestPoller_CancelledFetchPublishesNothing(t *testing.T) {
	reader := &scriptedReader{steps: []step{{raw: rows(1, 1)}}}
	rec := &recorder{}
	p := New("s", reader, rec, Settings{Normalize: testOpts})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if f := p.Poll(ctx); f != nil {
		t.Errorf("frame = %+v, want nil", f)
	}
	if rec.count() != 0 {
		t.Errorf("renders = %d, want 0", rec.count())
	}
}
