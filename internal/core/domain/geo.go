package domain

import "math"

// Point represents a geographic coordinate (WGS 84).
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies inside the latitude and longitude ranges.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Bounds represents an axis-aligned box in lat/lng space.
// Computed bounds never wrap the antimeridian, so West <= East.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Valid reports whether both corners are valid points and the box is not inverted.
func (b Bounds) Valid() bool {
	sw := Point{Lat: b.South, Lng: b.West}
	ne := Point{Lat: b.North, Lng: b.East}
	return sw.Valid() && ne.Valid() && b.North >= b.South && b.East >= b.West
}

// Center returns the midpoint of the box.
func (b Bounds) Center() Point {
	return Point{Lat: (b.North + b.South) / 2, Lng: (b.East + b.West) / 2}
}

// Contains reports whether p lies inside the box, edges included.
func (b Bounds) Contains(p Point) bool {
	return p.Lat >= b.South && p.Lat <= b.North && p.Lng >= b.West && p.Lng <= b.East
}

// FitOptions controls how a camera encloses a bounding box.
type FitOptions struct {
	Padding int  `json:"padding"`  // pixels on every side
	MaxZoom int  `json:"max_zoom"` // never zoom in past this level
	Animate bool `json:"animate"`
}

// DefaultFitOptions returns padding 20px, max zoom 16, animated.
func DefaultFitOptions() FitOptions {
	return FitOptions{Padding: 20, MaxZoom: 16, Animate: true}
}
