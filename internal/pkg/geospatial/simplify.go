package geospatial

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"

	"github.com/samirrijal/fleetmap/internal/core/domain"
)

// Simplify reduces a polyline with the Douglas-Peucker algorithm.
//
// Distances are planar in (lat, lng) degrees, which is adequate for the small
// tolerances used at street scale but is not geodesic. The first and last
// points are always kept and the result is never longer than the input.
// Paths of two points or fewer are returned as a copy.
func Simplify(points []domain.Point, tolerance float64) []domain.Point {
	if len(points) <= 2 {
		out := make([]domain.Point, len(points))
		copy(out, points)
		return out
	}
	if tolerance < 0 {
		tolerance = 0
	}

	ls := simplify.DouglasPeucker(tolerance).LineString(LineString(points))
	return FromLineString(ls)
}

// SimplifyValid drops invalid points before simplifying and reports their input indexes.
func SimplifyValid(points []domain.Point, tolerance float64) ([]domain.Point, []int) {
	var dropped []int
	valid := make([]domain.Point, 0, len(points))
	for i, p := range points {
		if !p.Valid() {
			dropped = append(dropped, i)
			continue
		}
		valid = append(valid, p)
	}
	return Simplify(valid, tolerance), dropped
}

// PerpendicularDistance is the planar distance from p to the segment start-end.
// The projection is clamped to the segment, and a zero-length segment degrades
// to the plain distance from start.
func PerpendicularDistance(p, start, end domain.Point) float64 {
	return planar.DistanceFromSegment(orbPoint(start), orbPoint(end), orbPoint(p))
}

// LineString converts points to an orb line in [lng, lat] order. The result
// never aliases the input.
func LineString(points []domain.Point) orb.LineString {
	ls := make(orb.LineString, len(points))
	for i, p := range points {
		ls[i] = orbPoint(p)
	}
	return ls
}

// FromLineString converts an orb line back to points.
func FromLineString(ls orb.LineString) []domain.Point {
	out := make([]domain.Point, len(ls))
	for i, p := range ls {
		out[i] = domain.Point{Lat: p.Lat(), Lng: p.Lon()}
	}
	return out
}

func orbPoint(p domain.Point) orb.Point {
	return orb.Point{p.Lng, p.Lat}
}
