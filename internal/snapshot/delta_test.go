package snapshot

import (
	"errors"
	"math"
	"testing"
)

// single builds a one-row snapshot from column/value pairs.
func single(cols []string, vals ...float64) *Snapshot {
	return &Snapshot{
		Columns: cols,
		Rows:    []Row{{Values: vals}},
	}
}

func TestComputeDelta_Scenario(t *testing.T) {
	cols := []string{"Light", "Water"}
	prev := single(cols, 5, 0)
	cur := single(cols, 8, 2)

	d, err := ComputeDelta(prev, cur)
	if err != nil {
		t.Fatalf("ComputeDelta: %v", err)
	}
	if v, _ := d.Value("Light"); v != 3 {
		t.Errorf("Light delta = %v, want 3", v)
	}
	if v, _ := d.Value("Water"); v != 2 {
		t.Errorf("Water delta = %v, want 2", v)
	}
	if len(d.Missing) != 0 {
		t.Errorf("Missing = %v, want none", d.Missing)
	}
}

func TestComputeDelta_UsesLastRowOnly(t *testing.T) {
	prev := &Snapshot{Columns: []string{"v"}, Rows: []Row{{Values: []float64{100}}, {Values: []float64{1}}}}
	cur := &Snapshot{Columns: []string{"v"}, Rows: []Row{{Values: []float64{-50}}, {Values: []float64{4}}}}

	d, err := ComputeDelta(prev, cur)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := d.Value("v"); v != 3 {
		t.Errorf("delta = %v, want 3", v)
	}
}

func TestComputeDelta_SameSnapshotIsZero(t *testing.T) {
	s := single([]string{"Light", "Water", "Moist", "Temp", "Humid"}, 5, 1.5, -3, 27.25, 80)
	d, err := ComputeDelta(s, s)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range d.Values {
		if v != 0 {
			t.Errorf("%s delta = %v, want 0", d.Columns[i], v)
		}
	}
}

func TestComputeDelta_Antisymmetric(t *testing.T) {
	a := single([]string{"x", "y", "z"}, 1.25, -7, 1e6)
	b := single([]string{"x", "y", "z"}, 3.5, 2, -4)

	ab, err := ComputeDelta(a, b)
	if err != nil {
		t.Fatal(err)
	}
	ba, err := ComputeDelta(b, a)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range []string{"x", "y", "z"} {
		v1, _ := ab.Value(c)
		v2, _ := ba.Value(c)
		if v1 != -v2 {
			t.Errorf("%s: delta(a,b) = %v, delta(b,a) = %v", c, v1, v2)
		}
	}
}

func TestComputeDelta_ColumnMismatchIsNaN(t *testing.T) {
	prev := single([]string{"Light", "Water"}, 1, 2)
	cur := single([]string{"Light", "Temp"}, 4, 30)

	d, err := ComputeDelta(prev, cur)
	if err != nil {
		t.Fatal(err)
	}

	wantCols := []string{"Light", "Temp", "Water"}
	if len(d.Columns) != len(wantCols) {
		t.Fatalf("Columns = %v, want %v", d.Columns, wantCols)
	}
	for i := range wantCols {
		if d.Columns[i] != wantCols[i] {
			t.Errorf("Columns[%d] = %q, want %q", i, d.Columns[i], wantCols[i])
		}
	}
	if v, ok := d.Value("Light"); !ok || v != 3 {
		t.Errorf("Light = %v ok=%v, want 3", v, ok)
	}
	if _, ok := d.Value("Temp"); ok {
		t.Error("Temp should be reported as missing")
	}
	if !math.IsNaN(d.Values[2]) {
		t.Errorf("Water delta = %v, want NaN", d.Values[2])
	}
	if len(d.Missing) != 2 {
		t.Errorf("Missing = %v, want [Temp Water]", d.Missing)
	}
	if m := d.Map(); len(m) != 1 || m["Light"] != 3 {
		t.Errorf("Map = %v, want only Light", m)
	}
}

func TestComputeDelta_EmptySnapshot(t *testing.T) {
	full := single([]string{"v"}, 1)
	empty := &Snapshot{Columns: []string{"v"}}

	if _, err := ComputeDelta(empty, full); !errors.Is(err, ErrEmptySnapshot) {
		t.Errorf("empty previous: err = %v, want ErrEmptySnapshot", err)
	}
	if _, err := ComputeDelta(full, empty); !errors.Is(err, ErrEmptySnapshot) {
		t.Errorf("empty current: err = %v, want ErrEmptySnapshot", err)
	}
	if _, err := ComputeDelta(nil, full); !errors.Is(err, ErrEmptySnapshot) {
		t.Errorf("nil previous: err = %v, want ErrEmptySnapshot", err)
	}
}

func TestDelta_NilReceiver(t *testing.T) {
	var d *Delta
	if _, ok := d.Value("x"); ok {
		t.Error("nil delta Value should not be ok")
	}
	if d.Map() != nil {
		t.Error("nil delta Map should be nil")
	}
}
