package geospatial_test

import (
	"errors"
	"math"
	"testing"

	"github.com/samirrijal/fleetmap/internal/core/domain"
	"github.com/samirrijal/fleetmap/internal/pkg/geospatial"
)

var (
	casablanca = domain.Point{Lat: 33.5731, Lng: -7.5898}
	rabat      = domain.Point{Lat: 34.0209, Lng: -6.8416}
)

func TestDistance_KnownPairs(t *testing.T) {
	tests := []struct {
		name string
		a, b domain.Point
		want float64
		tol  float64
	}{
		{"one degree of latitude", domain.Point{Lat: 0, Lng: 0}, domain.Point{Lat: 1, Lng: 0}, 111194.93, 0.1},
		{"casablanca to rabat", casablanca, rabat, 85200.96, 1},
		{"same point", casablanca, casablanca, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := geospatial.Distance(tt.a, tt.b)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > tt.tol {
				t.Errorf("expected %.2f m, got %.2f m", tt.want, got)
			}
		})
	}
}

func TestDistance_Symmetric(t *testing.T) {
	points := []domain.Point{casablanca, rabat, {Lat: -33.9, Lng: 18.4}, {Lat: 89.9, Lng: 179.9}, {Lat: 0, Lng: -180}}
	for _, a := range points {
		for _, b := range points {
			ab, _ := geospatial.Distance(a, b)
			ba, _ := geospatial.Distance(b, a)
			if ab != ba {
				t.Errorf("distance(%v,%v)=%f but distance(%v,%v)=%f", a, b, ab, b, a, ba)
			}
		}
		if d, _ := geospatial.Distance(a, a); d != 0 {
			t.Errorf("distance(%v,%v) = %f, want 0", a, a, d)
		}
	}
}

func TestDistance_InvalidCoordinate(t *testing.T) {
	_, err := geospatial.Distance(domain.Point{Lat: 91, Lng: 0}, casablanca)
	if !errors.Is(err, domain.ErrInvalidCoordinate) {
		t.Fatalf("expected ErrInvalidCoordinate, got %v", err)
	}
	_, err = geospatial.Distance(casablanca, domain.Point{Lat: 0, Lng: math.NaN()})
	if !errors.Is(err, domain.ErrInvalidCoordinate) {
		t.Fatalf("expected ErrInvalidCoordinate for NaN, got %v", err)
	}
}

func TestBearing_CardinalDirections(t *testing.T) {
	origin := domain.Point{}
	tests := []struct {
		to   domain.Point
		want float64
	}{
		{domain.Point{Lat: 10, Lng: 0}, 0},
		{domain.Point{Lat: 0, Lng: 10}, 90},
		{domain.Point{Lat: -10, Lng: 0}, 180},
		{domain.Point{Lat: 0, Lng: -10}, 270},
	}
	for _, tt := range tests {
		got, err := geospatial.Bearing(origin, tt.to)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("bearing to %v: expected %f, got %f", tt.to, tt.want, got)
		}
		if got < 0 || got >= 360 {
			t.Errorf("bearing %f outside [0,360)", got)
		}
	}
}

func TestBearing_PointOnSegment(t *testing.T) {
	full, err := geospatial.Bearing(casablanca, rabat)
	if err != nil {
		t.Fatal(err)
	}
	d, _ := geospatial.Distance(casablanca, rabat)

	for _, frac := range []float64{0.1, 0.5, 0.9} {
		mid, err := geospatial.Destination(casablanca, d*frac, full)
		if err != nil {
			t.Fatal(err)
		}
		got, _ := geospatial.Bearing(casablanca, mid)
		if math.Abs(got-full) > 1e-6 {
			t.Errorf("fraction %.1f: bearing %f, want %f", frac, got, full)
		}
	}
}

func TestDestination_RoundTrip(t *testing.T) {
	got, err := geospatial.Destination(domain.Point{}, 111194.93, 0)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got.Lat-1) > 1e-5 || math.Abs(got.Lng) > 1e-9 {
		t.Errorf("expected ~(1,0), got %v", got)
	}
}

func TestPathLength_SkipsInvalid(t *testing.T) {
	path := []domain.Point{{Lat: 0, Lng: 0}, {Lat: 200, Lng: 0}, {Lat: 1, Lng: 0}}
	got := geospatial.PathLength(path)
	if math.Abs(got-111194.93) > 0.1 {
		t.Errorf("expected ~111194.93, got %f", got)
	}
}

func TestBoundingBox(t *testing.T) {
	minLat, minLon, maxLat, maxLon := geospatial.BoundingBox(0, 0, 111320)
	if math.Abs(minLat+1) > 1e-9 || math.Abs(maxLat-1) > 1e-9 {
		t.Errorf("unexpected lat range %f..%f", minLat, maxLat)
	}
	if math.Abs(minLon+1) > 1e-9 || math.Abs(maxLon-1) > 1e-9 {
		t.Errorf("unexpected lon range %f..%f", minLon, maxLon)
	}
}

func TestCompassDirection(t *testing.T) {
	tests := map[float64]string{
		0:     "N",
		22.4:  "N",
		22.5:  "NE",
		90:    "E",
		135:   "SE",
		180:   "S",
		225:   "SW",
		270:   "W",
		315:   "NW",
		337.6: "N",
		359:   "N",
		-90:   "W",
		450:   "E",
	}
	for bearing, want := range tests {
		if got := geospatial.CompassDirection(bearing); got != want {
			t.Errorf("CompassDirection(%v) = %s, want %s", bearing, got, want)
		}
	}
}

func TestMetersPerPixel(t *testing.T) {
	if got := geospatial.MetersPerPixel(0, 1); math.Abs(got-156542.96875) > 1e-6 {
		t.Errorf("zoom 0: got %f", got)
	}
	got := geospatial.MetersPerPixel(10, 50)
	if math.Abs(got-7643.6996) > 1e-3 {
		t.Errorf("zoom 10 radius 50: got %f", got)
	}
	deg := geospatial.RadiusDegrees(got, casablanca.Lat)
	if math.Abs(deg-0.082412) > 1e-5 {
		t.Errorf("radius degrees: got %f", deg)
	}
}
