package geospatial_test

import (
	"math"
	"reflect"
	"testing"

	"github.com/samirrijal/fleetmap/internal/core/domain"
	"github.com/samirrijal/fleetmap/internal/pkg/geospatial"
)

func pts(coords ...[2]float64) []domain.Point {
	out := make([]domain.Point, len(coords))
	for i, c := range coords {
		out[i] = domain.Point{Lat: c[0], Lng: c[1]}
	}
	return out
}

func TestSimplify_Collinear(t *testing.T) {
	path := pts([2]float64{0, 0}, [2]float64{0, 1}, [2]float64{0, 2}, [2]float64{0, 3})
	got := geospatial.Simplify(path, 0.01)
	want := pts([2]float64{0, 0}, [2]float64{0, 3})
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestSimplify_ShortInputs(t *testing.T) {
	if got := geospatial.Simplify(nil, 0.1); len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
	single := pts([2]float64{1, 2})
	if got := geospatial.Simplify(single, 0.1); !reflect.DeepEqual(got, single) {
		t.Errorf("expected %v, got %v", single, got)
	}
	pair := pts([2]float64{1, 2}, [2]float64{3, 4})
	got := geospatial.Simplify(pair, 0.1)
	if !reflect.DeepEqual(got, pair) {
		t.Errorf("expected %v, got %v", pair, got)
	}
	got[0].Lat = 99
	if pair[0].Lat != 1 {
		t.Error("result must not alias the input")
	}
}

func TestSimplify_KeepsSignificantVertex(t *testing.T) {
	// an L-shaped route: the corner must survive, the straight runs collapse
	path := pts(
		[2]float64{0, 0}, [2]float64{0, 0.5}, [2]float64{0, 1},
		[2]float64{0.5, 1}, [2]float64{1, 1},
	)
	got := geospatial.Simplify(path, 0.01)
	want := pts([2]float64{0, 0}, [2]float64{0, 1}, [2]float64{1, 1})
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestSimplify_ZeroLengthReference(t *testing.T) {
	// closed loop: the reference segment collapses to a point
	loop := pts([2]float64{0, 0}, [2]float64{1, 0}, [2]float64{0, 0})
	got := geospatial.Simplify(loop, 0.5)
	if len(got) != 3 {
		t.Fatalf("expected the far vertex to be kept, got %v", got)
	}
	got = geospatial.Simplify(loop, 2)
	if len(got) != 2 {
		t.Fatalf("expected collapse to endpoints with a large tolerance, got %v", got)
	}
}

func TestSimplify_Properties(t *testing.T) {
	paths := [][]domain.Point{
		pts([2]float64{0, 0}, [2]float64{1, 1}, [2]float64{0, 2}, [2]float64{1, 3}, [2]float64{0, 4}),
		pts([2]float64{33.5731, -7.5898}, [2]float64{33.5735, -7.5901}, [2]float64{33.5740, -7.5899},
			[2]float64{33.5752, -7.5870}, [2]float64{33.5760, -7.5868}, [2]float64{33.5761, -7.5840}),
		spiral(60),
	}
	for i, path := range paths {
		for _, tol := range []float64{0, 0.0001, 0.01, 0.5} {
			once := geospatial.Simplify(path, tol)
			if len(once) > len(path) {
				t.Errorf("path %d tol %v: result longer than input", i, tol)
			}
			if once[0] != path[0] || once[len(once)-1] != path[len(path)-1] {
				t.Errorf("path %d tol %v: endpoints not preserved", i, tol)
			}
			twice := geospatial.Simplify(once, tol)
			if !reflect.DeepEqual(once, twice) {
				t.Errorf("path %d tol %v: not idempotent: %v then %v", i, tol, once, twice)
			}
		}
	}
}

func TestSimplify_ThresholdIsStrict(t *testing.T) {
	// the middle vertex sits exactly 0.5 degrees off the chord
	path := pts([2]float64{0, 0}, [2]float64{0.5, 1}, [2]float64{0, 2})
	if got := geospatial.Simplify(path, 0.5); len(got) != 2 {
		t.Errorf("a vertex at the tolerance must be dropped, got %v", got)
	}
	if got := geospatial.Simplify(path, 0.49); len(got) != 3 {
		t.Errorf("a vertex beyond the tolerance must be kept, got %v", got)
	}
}

func TestSimplify_LeavesInputUntouched(t *testing.T) {
	path := spiral(40)
	before := append([]domain.Point(nil), path...)
	got := geospatial.Simplify(path, 0.002)
	if len(got) >= len(path) {
		t.Fatalf("expected the spiral to lose vertices, got %d of %d", len(got), len(path))
	}
	if !reflect.DeepEqual(path, before) {
		t.Error("input path was modified")
	}
}

func TestLineStringRoundTrip(t *testing.T) {
	path := pts([2]float64{33.5731, -7.5898}, [2]float64{34.02, -6.84})
	ls := geospatial.LineString(path)
	if ls[0][0] != -7.5898 || ls[0][1] != 33.5731 {
		t.Errorf("expected [lng, lat] order, got %v", ls[0])
	}
	if got := geospatial.FromLineString(ls); !reflect.DeepEqual(got, path) {
		t.Errorf("expected %v, got %v", path, got)
	}
}

func TestSimplifyValid_DropsInvalid(t *testing.T) {
	path := pts([2]float64{0, 0}, [2]float64{95, 0}, [2]float64{0, 1}, [2]float64{0, 2})
	got, dropped := geospatial.SimplifyValid(path, 0.01)
	if !reflect.DeepEqual(dropped, []int{1}) {
		t.Errorf("expected index 1 dropped, got %v", dropped)
	}
	want := pts([2]float64{0, 0}, [2]float64{0, 2})
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestPerpendicularDistance(t *testing.T) {
	start := domain.Point{Lat: 0, Lng: 0}
	end := domain.Point{Lat: 0, Lng: 2}

	if d := geospatial.PerpendicularDistance(domain.Point{Lat: 1, Lng: 1}, start, end); math.Abs(d-1) > 1e-12 {
		t.Errorf("expected 1, got %f", d)
	}
	// beyond the end the distance is measured to the endpoint
	if d := geospatial.PerpendicularDistance(domain.Point{Lat: 0, Lng: 3}, start, end); math.Abs(d-1) > 1e-12 {
		t.Errorf("expected 1, got %f", d)
	}
	if d := geospatial.PerpendicularDistance(domain.Point{Lat: 3, Lng: 4}, start, start); math.Abs(d-5) > 1e-12 {
		t.Errorf("expected 5 for zero-length segment, got %f", d)
	}
}

func spiral(n int) []domain.Point {
	out := make([]domain.Point, n)
	for i := range out {
		a := float64(i) * 0.3
		r := 0.001 * float64(i)
		out[i] = domain.Point{Lat: 40 + r*math.Sin(a), Lng: -3 + r*math.Cos(a)}
	}
	return out
}
