package geospatial_test

import (
	"math"
	"testing"

	"github.com/samirrijal/fleetmap/internal/core/domain"
	"github.com/samirrijal/fleetmap/internal/pkg/geospatial"
)

func TestIsValidCoordinate(t *testing.T) {
	tests := []struct {
		lat, lng float64
		want     bool
	}{
		{0, 0, true},
		{90, 180, true},
		{-90, -180, true},
		{90.0001, 0, false},
		{0, -180.0001, false},
		{math.NaN(), 0, false},
	}
	for _, tt := range tests {
		if got := geospatial.IsValidCoordinate(tt.lat, tt.lng); got != tt.want {
			t.Errorf("IsValidCoordinate(%v, %v) = %v, want %v", tt.lat, tt.lng, got, tt.want)
		}
	}
}

func TestFormatCoordinates(t *testing.T) {
	tests := []struct {
		name      string
		lat, lng  float64
		precision int
		want      string
	}{
		{"default precision", 33.5731, -7.5898, -1, "33.573100, -7.589800"},
		{"two decimals", 33.5731, -7.5898, 2, "33.57, -7.59"},
		{"invalid latitude", 120, 0, 6, geospatial.InvalidCoordinates},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := geospatial.FormatCoordinates(tt.lat, tt.lng, tt.precision); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestFormatDMSAndDDM(t *testing.T) {
	if got := geospatial.FormatDMS(33.5731, -7.5898); got != `33°34'23.2"N 7°35'23.3"W` {
		t.Errorf("unexpected DMS %q", got)
	}
	if got := geospatial.FormatDDM(33.5731, -7.5898); got != `33°34.386'N 7°35.388'W` {
		t.Errorf("unexpected DDM %q", got)
	}
	if got := geospatial.FormatDMS(-91, 0); got != geospatial.InvalidCoordinates {
		t.Errorf("expected sentinel, got %q", got)
	}
}

func TestConvertSpeed(t *testing.T) {
	tests := []struct {
		unit geospatial.SpeedUnit
		want float64
	}{
		{geospatial.SpeedMph, 62.1371},
		{geospatial.SpeedMs, 27.7778},
		{geospatial.SpeedKnots, 53.9957},
		{geospatial.SpeedKmh, 100},
		{"furlongs", 100},
	}
	for _, tt := range tests {
		if got := geospatial.ConvertSpeed(100, tt.unit); math.Abs(got-tt.want) > 1e-3 {
			t.Errorf("ConvertSpeed(100, %s) = %f, want %f", tt.unit, got, tt.want)
		}
	}
}

func TestFormatDistance(t *testing.T) {
	tests := map[float64]string{
		0:     "0 m",
		850:   "850 m",
		2400:  "2.4 km",
		37400: "37 km",
	}
	for meters, want := range tests {
		if got := geospatial.FormatDistance(meters); got != want {
			t.Errorf("FormatDistance(%v) = %q, want %q", meters, got, want)
		}
	}
}

func TestZoomForDistance(t *testing.T) {
	tests := map[float64]int{
		50:     18,
		250:    16,
		750:    15,
		3000:   13,
		8000:   12,
		15000:  11,
		30000:  10,
		75000:  9,
		500000: 8,
	}
	for meters, want := range tests {
		if got := geospatial.ZoomForDistance(meters); got != want {
			t.Errorf("ZoomForDistance(%v) = %d, want %d", meters, got, want)
		}
	}
}

func TestFitZoom(t *testing.T) {
	b := domain.Bounds{North: 1, South: 0, East: 1, West: 0}
	if got := geospatial.FitZoom(b, 1024, 768, 16); got != 10 {
		t.Errorf("expected zoom 10, got %d", got)
	}
	if got := geospatial.FitZoom(b, 1024, 768, 5); got != 5 {
		t.Errorf("expected cap at 5, got %d", got)
	}
	point := domain.Bounds{North: 10, South: 10, East: 10, West: 10}
	if got := geospatial.FitZoom(point, 1024, 768, 16); got != 16 {
		t.Errorf("degenerate bounds should use max zoom, got %d", got)
	}
	if got := geospatial.FitZoom(b, 0, 768, 16); got != 0 {
		t.Errorf("empty viewport should give zoom 0, got %d", got)
	}
}
