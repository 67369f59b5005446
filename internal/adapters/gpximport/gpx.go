// Package gpximport turns GPX tracks into position history.
package gpximport

import (
	"fmt"
	"time"

	"github.com/tkrajina/gpxgo/gpx"

	"github.com/samirrijal/fleetmap/internal/core/domain"
	"github.com/samirrijal/fleetmap/internal/pkg/geospatial"
)

// Options controls how track points become position updates.
type Options struct {
	EntityID string
	Kind     string
	// Start stamps points that carry no time; each such point is one second
	// after the previous. Zero means one second per point ending now.
	Start time.Time
}

// ParseFile reads a GPX file and converts its track points.
func ParseFile(path string, opts Options) ([]domain.PositionUpdate, error) {
	g, err := gpx.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse GPX %s: %w", path, err)
	}
	return Updates(g, opts)
}

// ParseBytes converts an in-memory GPX document.
func ParseBytes(data []byte, opts Options) ([]domain.PositionUpdate, error) {
	g, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse GPX: %w", err)
	}
	return Updates(g, opts)
}

// Updates flattens every track segment into updates in file order. Speed (km/h)
// and heading are derived from consecutive timed points.
func Updates(g *gpx.GPX, opts Options) ([]domain.PositionUpdate, error) {
	if opts.EntityID == "" {
		return nil, fmt.Errorf("entity id is required: %w", domain.ErrInvalidArgument)
	}

	var pts []gpx.GPXPoint
	for _, track := range g.Tracks {
		for _, segment := range track.Segments {
			pts = append(pts, segment.Points...)
		}
	}

	start := opts.Start
	if start.IsZero() {
		start = time.Now().UTC().Add(-time.Duration(len(pts)) * time.Second)
	}

	updates := make([]domain.PositionUpdate, 0, len(pts))
	for i, p := range pts {
		u := domain.PositionUpdate{
			EntityID:  opts.EntityID,
			Kind:      opts.Kind,
			Lat:       p.Latitude,
			Lng:       p.Longitude,
			Timestamp: p.Timestamp.UTC(),
		}
		if p.Timestamp.IsZero() {
			u.Timestamp = start.Add(time.Duration(i) * time.Second)
		}
		if i > 0 {
			prev := updates[i-1]
			deriveMotion(&u, prev)
		}
		updates = append(updates, u)
	}
	return updates, nil
}

func deriveMotion(u *domain.PositionUpdate, prev domain.PositionUpdate) {
	meters, err := geospatial.Distance(prev.Point(), u.Point())
	if err != nil {
		return
	}
	if secs := u.Timestamp.Sub(prev.Timestamp).Seconds(); secs > 0 {
		u.Speed = meters / secs * 3.6
	}
	if meters > 0 {
		if b, err := geospatial.Bearing(prev.Point(), u.Point()); err == nil {
			u.Heading = b
		}
	}
}
