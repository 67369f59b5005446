// Package geojson renders markers, entities and trails as GeoJSON using orb.
package geojson

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/fleetmap/internal/core/domain"
)

// ContentType is the media type of GeoJSON responses.
const ContentType = "application/geo+json"

func toOrb(p domain.Point) orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

func toBound(b domain.Bounds) orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

// Markers converts a clustering pass into a FeatureCollection of points.
// Cluster features carry "cluster": true, a member count and a bbox; entity
// features carry the entity's kind and metadata.
func Markers(markers []domain.Marker) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, m := range markers {
		switch {
		case m.Cluster != nil:
			fc.Append(clusterFeature(m.Cluster))
		case m.Entity != nil:
			fc.Append(entityFeature(m.Entity))
		}
	}
	return fc
}

// Entities converts entities into a FeatureCollection of points.
func Entities(entities []domain.Entity) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i := range entities {
		fc.Append(entityFeature(&entities[i]))
	}
	return fc
}

func clusterFeature(c *domain.Cluster) *geojson.Feature {
	f := geojson.NewFeature(toOrb(c.Position))
	f.ID = c.ID
	f.BBox = geojson.NewBBox(toBound(c.Bounds))

	ids := make([]string, 0, len(c.Members))
	for _, m := range c.Members {
		ids = append(ids, m.ID)
	}
	f.Properties["cluster"] = true
	f.Properties["count"] = c.Count()
	f.Properties["member_ids"] = ids
	return f
}

func entityFeature(e *domain.Entity) *geojson.Feature {
	f := geojson.NewFeature(toOrb(e.Position))
	f.ID = e.ID
	f.Properties["cluster"] = false
	if e.Kind != "" {
		f.Properties["kind"] = e.Kind
	}
	for k, v := range e.Metadata {
		if _, reserved := f.Properties[k]; reserved {
			continue
		}
		f.Properties[k] = v
	}
	if !e.UpdatedAt.IsZero() {
		f.Properties["updated_at"] = e.UpdatedAt
	}
	return f
}

// LineString converts a path into an orb line string in lng/lat order.
func LineString(points []domain.Point) orb.LineString {
	ls := make(orb.LineString, 0, len(points))
	for _, p := range points {
		ls = append(ls, toOrb(p))
	}
	return ls
}

// Trail converts a simplified trail into a LineString feature.
func Trail(t *domain.Trail) *geojson.Feature {
	f := geojson.NewFeature(LineString(t.Points))
	f.ID = t.EntityID
	if t.Bounds != nil {
		f.BBox = geojson.NewBBox(toBound(*t.Bounds))
	}
	f.Properties["entity_id"] = t.EntityID
	f.Properties["from"] = t.From
	f.Properties["to"] = t.To
	f.Properties["tolerance"] = t.Tolerance
	f.Properties["original_count"] = t.OriginalCount
	f.Properties["point_count"] = len(t.Points)
	f.Properties["length_m"] = t.LengthMeters
	return f
}

// TrailCollection wraps a single trail so clients can load it as a layer.
func TrailCollection(t *domain.Trail) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Append(Trail(t))
	return fc
}
