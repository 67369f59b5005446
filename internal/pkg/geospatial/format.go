package geospatial

import (
	"fmt"
	"math"
	"strings"

	"github.com/samirrijal/fleetmap/internal/core/domain"
)

// InvalidCoordinates is what the formatters return for out-of-range input.
const InvalidCoordinates = "Invalid coordinates"

// SpeedUnit names a unit ConvertSpeed can produce.
type SpeedUnit string

const (
	SpeedKmh   SpeedUnit = "kmh"
	SpeedMph   SpeedUnit = "mph"
	SpeedMs    SpeedUnit = "ms"
	SpeedKnots SpeedUnit = "knots"
)

// IsValidCoordinate reports whether lat and lng are in range.
func IsValidCoordinate(lat, lng float64) bool {
	return domain.Point{Lat: lat, Lng: lng}.Valid()
}

// FormatCoordinates renders "lat, lng" with the given number of decimals.
// A negative precision means 6.
func FormatCoordinates(lat, lng float64, precision int) string {
	if !IsValidCoordinate(lat, lng) {
		return InvalidCoordinates
	}
	if precision < 0 {
		precision = 6
	}
	return fmt.Sprintf("%.*f, %.*f", precision, lat, precision, lng)
}

// FormatDMS renders degrees, minutes and seconds, e.g. 33°34'23.2"N 7°35'23.3"W.
func FormatDMS(lat, lng float64) string {
	if !IsValidCoordinate(lat, lng) {
		return InvalidCoordinates
	}
	return dms(lat, "N", "S") + " " + dms(lng, "E", "W")
}

// FormatDDM renders degrees and decimal minutes, e.g. 33°34.386'N 7°35.388'W.
func FormatDDM(lat, lng float64) string {
	if !IsValidCoordinate(lat, lng) {
		return InvalidCoordinates
	}
	return ddm(lat, "N", "S") + " " + ddm(lng, "E", "W")
}

func hemisphere(v float64, pos, neg string) string {
	if v < 0 {
		return neg
	}
	return pos
}

func dms(v float64, pos, neg string) string {
	// work in tenths of a second so rounding never yields 60"
	tenths := int64(math.Round(math.Abs(v) * 36000))
	deg := tenths / 36000
	mins := (tenths % 36000) / 600
	sec := float64(tenths%600) / 10
	return fmt.Sprintf("%d°%d'%.1f\"%s", deg, mins, sec, hemisphere(v, pos, neg))
}

func ddm(v float64, pos, neg string) string {
	thousandths := int64(math.Round(math.Abs(v) * 60000))
	deg := thousandths / 60000
	mins := float64(thousandths%60000) / 1000
	return fmt.Sprintf("%d°%.3f'%s", deg, mins, hemisphere(v, pos, neg))
}

// ConvertSpeed converts a speed in km/h to unit. Unknown units return km/h.
func ConvertSpeed(kmh float64, unit SpeedUnit) float64 {
	switch SpeedUnit(strings.ToLower(string(unit))) {
	case SpeedMph:
		return kmh * 0.621371
	case SpeedMs:
		return kmh / 3.6
	case SpeedKnots:
		return kmh * 0.539957
	default:
		return kmh
	}
}

// FormatDistance renders meters for display: "850 m", "2.4 km", "37 km".
func FormatDistance(meters float64) string {
	switch {
	case meters < 1000:
		return fmt.Sprintf("%d m", int(math.Round(meters)))
	case meters < 10000:
		return fmt.Sprintf("%.1f km", meters/1000)
	default:
		return fmt.Sprintf("%d km", int(math.Round(meters/1000)))
	}
}
