// Package clustering groups nearby map entities into clusters for a zoom level.
package clustering

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/samirrijal/fleetmap/internal/core/domain"
	"github.com/samirrijal/fleetmap/internal/pkg/geospatial"
)

// Options configures an Engine.
type Options struct {
	// MaxZoom is the zoom at or above which entities are never grouped.
	MaxZoom int
	// RadiusPixels is the on-screen clustering radius.
	RadiusPixels float64
}

// DefaultOptions clusters below zoom 16 with a 50px radius.
func DefaultOptions() Options {
	return Options{MaxZoom: 16, RadiusPixels: 50}
}

// Result is the output of one clustering pass.
type Result struct {
	Markers  []domain.Marker    `json:"markers"`
	Rejected []domain.Rejection `json:"rejected,omitempty"`
}

// ClusterCount returns how many markers are multi-entity clusters.
func (r Result) ClusterCount() int {
	n := 0
	for _, m := range r.Markers {
		if m.IsCluster() {
			n++
		}
	}
	return n
}

// Cluster groups entities with a greedy single-seed pass.
//
// Entities are visited in input order. Each unvisited entity seeds a cluster
// and absorbs every later unvisited entity whose planar distance to the seed is
// within the radius. Absorbed entities are never re-evaluated, so the outcome
// depends on input order and is not a minimal or transitive clustering.
//
// At zoom >= maxZoom, or with at most one valid entity, every entity is returned
// as a singleton. Entities with invalid coordinates are reported in Rejected.
func Cluster(entities []domain.Entity, center domain.Point, zoom, maxZoom int, radiusPixels float64) Result {
	valid, rejected := partition(entities)
	res := Result{
		Markers:  make([]domain.Marker, 0, len(valid)),
		Rejected: rejected,
	}

	if zoom >= maxZoom || len(valid) <= 1 {
		for i := range valid {
			res.Markers = append(res.Markers, singleton(valid[i]))
		}
		return res
	}

	refLat := center.Lat
	if !center.Valid() {
		refLat = meanLat(valid)
	}
	radius := geospatial.RadiusDegrees(geospatial.MetersPerPixel(zoom, radiusPixels), refLat)

	processed := make([]bool, len(valid))
	for i := range valid {
		if processed[i] {
			continue
		}
		processed[i] = true
		seed := valid[i].Position
		members := []domain.Entity{valid[i]}

		for j := i + 1; j < len(valid); j++ {
			if processed[j] {
				continue
			}
			if planarDistance(seed, valid[j].Position) <= radius {
				processed[j] = true
				members = append(members, valid[j])
			}
		}

		if len(members) == 1 {
			res.Markers = append(res.Markers, singleton(members[0]))
			continue
		}
		res.Markers = append(res.Markers, domain.Marker{
			Cluster: newCluster(fmt.Sprintf("cluster-%d", i), members),
		})
	}
	return res
}

// Engine runs clustering passes with fixed options.
type Engine struct {
	opts   Options
	logger *slog.Logger
}

// NewEngine creates an Engine. A nil logger uses slog.Default().
func NewEngine(opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{opts: opts, logger: logger}
}

// Options returns the engine configuration.
func (e *Engine) Options() Options {
	return e.opts
}

// Cluster groups entities around center at zoom.
func (e *Engine) Cluster(entities []domain.Entity, center domain.Point, zoom int) Result {
	res := Cluster(entities, center, zoom, e.opts.MaxZoom, e.opts.RadiusPixels)
	e.logRejected(res.Rejected)
	return res
}

// ClusterInView drops entities outside view, then clusters the rest using the
// view center as reference latitude.
func (e *Engine) ClusterInView(entities []domain.Entity, view domain.Bounds, zoom int) Result {
	visible := make([]domain.Entity, 0, len(entities))
	var rejected []domain.Rejection
	for i, ent := range entities {
		if !ent.Position.Valid() {
			rejected = append(rejected, rejection(i, ent))
			continue
		}
		if view.Contains(ent.Position) {
			visible = append(visible, ent)
		}
	}

	res := Cluster(visible, view.Center(), zoom, e.opts.MaxZoom, e.opts.RadiusPixels)
	res.Rejected = rejected
	e.logRejected(rejected)
	return res
}

func (e *Engine) logRejected(rejected []domain.Rejection) {
	if len(rejected) > 0 {
		e.logger.Debug("entities skipped by clustering", "count", len(rejected), "first", rejected[0].EntityID)
	}
}

func partition(entities []domain.Entity) ([]domain.Entity, []domain.Rejection) {
	valid := make([]domain.Entity, 0, len(entities))
	var rejected []domain.Rejection
	for i, ent := range entities {
		if !ent.Position.Valid() {
			rejected = append(rejected, rejection(i, ent))
			continue
		}
		valid = append(valid, ent)
	}
	return valid, rejected
}

func rejection(index int, ent domain.Entity) domain.Rejection {
	return domain.Rejection{
		EntityID: ent.ID,
		Index:    index,
		Reason:   domain.ErrInvalidCoordinate.Error(),
	}
}

func singleton(ent domain.Entity) domain.Marker {
	return domain.Marker{Entity: &ent}
}

func newCluster(id string, members []domain.Entity) *domain.Cluster {
	first := members[0].Position
	b := domain.Bounds{North: first.Lat, South: first.Lat, East: first.Lng, West: first.Lng}
	var sumLat, sumLng float64
	for _, m := range members {
		p := m.Position
		sumLat += p.Lat
		sumLng += p.Lng
		b.North = math.Max(b.North, p.Lat)
		b.South = math.Min(b.South, p.Lat)
		b.East = math.Max(b.East, p.Lng)
		b.West = math.Min(b.West, p.Lng)
	}
	n := float64(len(members))
	return &domain.Cluster{
		ID:       id,
		Position: domain.Point{Lat: sumLat / n, Lng: sumLng / n},
		Bounds:   b,
		Members:  members,
	}
}

func planarDistance(a, b domain.Point) float64 {
	return math.Hypot(a.Lat-b.Lat, a.Lng-b.Lng)
}

func meanLat(entities []domain.Entity) float64 {
	var sum float64
	for _, e := range entities {
		sum += e.Position.Lat
	}
	return sum / float64(len(entities))
}
