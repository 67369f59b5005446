package geospatial

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/samirrijal/fleetmap/internal/core/domain"
)

// BoundsOf returns the min/max extent of the valid points.
// ok is false when no point is valid.
func BoundsOf(points []domain.Point) (b domain.Bounds, ok bool) {
	mp := make(orb.MultiPoint, 0, len(points))
	for _, p := range points {
		if p.Valid() {
			mp = append(mp, orbPoint(p))
		}
	}
	if len(mp) == 0 {
		return b, false
	}
	return fromBound(mp.Bound()), true
}

// PaddedBounds is BoundsOf grown by ratio of its span on every side.
// An axis with zero span (a single point) is padded by minPad degrees instead.
func PaddedBounds(points []domain.Point, ratio, minPad float64) (domain.Bounds, bool) {
	b, ok := BoundsOf(points)
	if !ok {
		return b, false
	}
	latPad := (b.North - b.South) * ratio
	if latPad == 0 {
		latPad = minPad
	}
	lngPad := (b.East - b.West) * ratio
	if lngPad == 0 {
		lngPad = minPad
	}
	return clamp(domain.Bounds{
		North: b.North + latPad,
		South: b.South - latPad,
		East:  b.East + lngPad,
		West:  b.West - lngPad,
	}), true
}

// BoundsAround returns the box enclosing a circle of radiusMeters around p.
func BoundsAround(p domain.Point, radiusMeters float64) (domain.Bounds, error) {
	if !p.Valid() {
		return domain.Bounds{}, domain.ErrInvalidCoordinate
	}
	minLat, minLon, maxLat, maxLon := BoundingBox(p.Lat, p.Lng, radiusMeters)
	return clamp(domain.Bounds{North: maxLat, South: minLat, East: maxLon, West: minLon}), nil
}

// Expand grows b by pct of its span on every side.
func Expand(b domain.Bounds, pct float64) domain.Bounds {
	latPad := (b.North - b.South) * pct
	lngPad := (b.East - b.West) * pct
	return clamp(domain.Bounds{
		North: b.North + latPad,
		South: b.South - latPad,
		East:  b.East + lngPad,
		West:  b.West - lngPad,
	})
}

// Merge returns the smallest box enclosing every input box.
func Merge(first domain.Bounds, rest ...domain.Bounds) domain.Bounds {
	out := toBound(first)
	for _, b := range rest {
		out = out.Union(toBound(b))
	}
	return fromBound(out)
}

// AreaKm2 approximates the surface of b in square kilometers.
func AreaKm2(b domain.Bounds) float64 {
	mid := (b.North + b.South) / 2
	width := Haversine(mid, b.West, mid, b.East) / 1000
	height := Haversine(b.South, b.West, b.North, b.West) / 1000
	return width * height
}

func clamp(b domain.Bounds) domain.Bounds {
	b.North = math.Min(90, b.North)
	b.South = math.Max(-90, b.South)
	b.East = math.Min(180, b.East)
	b.West = math.Max(-180, b.West)
	return b
}

func toBound(b domain.Bounds) orb.Bound {
	return orb.Bound{Min: orb.Point{b.West, b.South}, Max: orb.Point{b.East, b.North}}
}

func fromBound(b orb.Bound) domain.Bounds {
	return domain.Bounds{North: b.Top(), South: b.Bottom(), East: b.Right(), West: b.Left()}
}
