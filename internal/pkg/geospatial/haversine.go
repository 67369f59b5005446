package geospatial

import (
	"math"

	"github.com/samirrijal/fleetmap/internal/core/domain"
)

const (
	earthRadiusKm = 6371.0

	// metersPerDegree is the length of one degree of latitude.
	metersPerDegree = 111320.0
)

// Haversine calculates the great-circle distance in meters between two points.
// Inputs are not validated; use Distance for untrusted coordinates.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := ToRadians(lat2 - lat1)
	dLon := ToRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(ToRadians(lat1))*math.Cos(ToRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c * 1000 // meters
}

// Distance returns the great-circle distance in meters between a and b.
func Distance(a, b domain.Point) (float64, error) {
	if !a.Valid() || !b.Valid() {
		return 0, domain.ErrInvalidCoordinate
	}
	return Haversine(a.Lat, a.Lng, b.Lat, b.Lng), nil
}

// Bearing returns the initial bearing from a to b in degrees, in [0, 360).
func Bearing(a, b domain.Point) (float64, error) {
	if !a.Valid() || !b.Valid() {
		return 0, domain.ErrInvalidCoordinate
	}
	phi1 := ToRadians(a.Lat)
	phi2 := ToRadians(b.Lat)
	dLon := ToRadians(b.Lng - a.Lng)

	y := math.Sin(dLon) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLon)

	theta := ToDegrees(math.Atan2(y, x))
	return math.Mod(theta+360, 360), nil
}

// Destination returns the point reached by travelling meters from p along bearing.
func Destination(p domain.Point, meters, bearing float64) (domain.Point, error) {
	if !p.Valid() {
		return domain.Point{}, domain.ErrInvalidCoordinate
	}
	delta := meters / (earthRadiusKm * 1000)
	theta := ToRadians(bearing)
	phi1 := ToRadians(p.Lat)
	lambda1 := ToRadians(p.Lng)

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2),
	)

	lng := math.Mod(ToDegrees(lambda2)+540, 360) - 180
	return domain.Point{Lat: ToDegrees(phi2), Lng: lng}, nil
}

// PathLength sums the great-circle length of a polyline in meters. Invalid points are skipped.
func PathLength(points []domain.Point) float64 {
	var total float64
	var prev *domain.Point
	for i := range points {
		if !points[i].Valid() {
			continue
		}
		if prev != nil {
			total += Haversine(prev.Lat, prev.Lng, points[i].Lat, points[i].Lng)
		}
		prev = &points[i]
	}
	return total
}

// BoundingBox returns a bounding box around a point with the given radius in meters.
func BoundingBox(lat, lon, radiusMeters float64) (minLat, minLon, maxLat, maxLon float64) {
	latDelta := radiusMeters / metersPerDegree
	lonDelta := radiusMeters / (metersPerDegree * math.Cos(ToRadians(lat)))

	return lat - latDelta, lon - lonDelta, lat + latDelta, lon + lonDelta
}

// ToRadians converts degrees to radians.
func ToRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// ToDegrees converts radians to degrees.
func ToDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
