package geospatial

import (
	"math"

	"github.com/samirrijal/fleetmap/internal/core/domain"
)

const (
	equatorMeters = 40075000.0
	tileSize      = 256.0

	// maxMercatorLat is where Web-Mercator tiles end.
	maxMercatorLat = 85.05112878
)

var compassPoints = [8]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// CompassDirection maps a bearing to the nearest of the eight compass points.
func CompassDirection(bearing float64) string {
	b := math.Mod(bearing, 360)
	if b < 0 {
		b += 360
	}
	return compassPoints[int(math.Round(b/45))%8]
}

// MetersPerPixel converts a pixel radius to ground meters at the equator for a zoom level.
func MetersPerPixel(zoom int, radiusPixels float64) float64 {
	return (radiusPixels * equatorMeters) / (tileSize * math.Pow(2, float64(zoom)))
}

// RadiusDegrees converts a ground distance to longitude degrees at refLat.
func RadiusDegrees(meters, refLat float64) float64 {
	return meters / (metersPerDegree * math.Cos(ToRadians(refLat)))
}

// ZoomForDistance suggests a zoom level that frames the given distance.
func ZoomForDistance(meters float64) int {
	switch {
	case meters < 100:
		return 18
	case meters < 500:
		return 16
	case meters < 1000:
		return 15
	case meters < 5000:
		return 13
	case meters < 10000:
		return 12
	case meters < 20000:
		return 11
	case meters < 50000:
		return 10
	case meters < 100000:
		return 9
	default:
		return 8
	}
}

// FitZoom returns the highest zoom at which b fits in a widthPx x heightPx viewport,
// capped at maxZoom.
func FitZoom(b domain.Bounds, widthPx, heightPx, maxZoom int) int {
	if widthPx <= 0 || heightPx <= 0 {
		return 0
	}
	latFraction := (mercatorY(b.North) - mercatorY(b.South)) / (2 * math.Pi)
	lngFraction := (b.East - b.West) / 360

	zoom := maxZoom
	if z, ok := zoomFor(float64(heightPx), latFraction); ok && z < zoom {
		zoom = z
	}
	if z, ok := zoomFor(float64(widthPx), lngFraction); ok && z < zoom {
		zoom = z
	}
	if zoom < 0 {
		return 0
	}
	return zoom
}

func zoomFor(px, fraction float64) (int, bool) {
	if fraction <= 0 {
		return 0, false
	}
	return int(math.Floor(math.Log2(px / tileSize / fraction))), true
}

func mercatorY(lat float64) float64 {
	lat = math.Max(-maxMercatorLat, math.Min(maxMercatorLat, lat))
	sin := math.Sin(ToRadians(lat))
	return math.Log((1+sin)/(1-sin)) / 2
}
