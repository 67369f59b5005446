package domain

import (
	"time"
)

// Entity is a positioned map object: a rental vehicle, a business or an event.
// Metadata (name, category, speed, heading) is carried through clustering untouched.
type Entity struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind,omitempty"`
	Position  Point          `json:"position"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// EntityFilter narrows an entity listing.
type EntityFilter struct {
	Kind   string
	Bounds *Bounds
	Limit  int
}

// Cluster groups spatially close entities at a given zoom level.
// IDs are only meaningful within a single clustering pass.
type Cluster struct {
	ID       string   `json:"id"`
	Position Point    `json:"position"` // centroid
	Bounds   Bounds   `json:"bounds"`
	Members  []Entity `json:"members"`
}

// Count returns the number of members.
func (c *Cluster) Count() int {
	return len(c.Members)
}

// Marker is one drawable item: either a cluster of two or more entities or a single entity.
type Marker struct {
	Cluster *Cluster `json:"cluster,omitempty"`
	Entity  *Entity  `json:"entity,omitempty"`
}

// IsCluster reports whether the marker wraps a cluster.
func (m Marker) IsCluster() bool {
	return m.Cluster != nil
}

// Position returns where the marker is drawn.
func (m Marker) Position() Point {
	if m.Cluster != nil {
		return m.Cluster.Position
	}
	if m.Entity != nil {
		return m.Entity.Position
	}
	return Point{}
}

// Count returns how many entities the marker stands for.
func (m Marker) Count() int {
	switch {
	case m.Cluster != nil:
		return m.Cluster.Count()
	case m.Entity != nil:
		return 1
	}
	return 0
}

// Rejection explains why an entity or point was left out of a computation.
type Rejection struct {
	EntityID string `json:"entity_id,omitempty"`
	Index    int    `json:"index"`
	Reason   string `json:"reason"`
}

// ViewportState is the camera state of one map session.
// TrackingEntityID is set if and only if FollowMode is true.
type ViewportState struct {
	Center           Point  `json:"center"`
	Zoom             int    `json:"zoom"`
	FollowMode       bool   `json:"follow_mode"`
	TrackingEntityID string `json:"tracking_entity_id,omitempty"`
}

// PositionUpdate is a single location reading for an entity.
type PositionUpdate struct {
	EntityID  string    `json:"entity_id"`
	Kind      string    `json:"kind,omitempty"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Accuracy  float64   `json:"accuracy,omitempty"` // meters
	Speed     float64   `json:"speed,omitempty"`    // km/h
	Heading   float64   `json:"heading,omitempty"`  // degrees
	Timestamp time.Time `json:"timestamp"`
}

// Point returns the update's coordinate.
func (u PositionUpdate) Point() Point {
	return Point{Lat: u.Lat, Lng: u.Lng}
}

// CameraEvent is reported by the rendering surface after the camera moved or zoomed.
// Programmatic marks events that echo a command the session itself issued.
type CameraEvent struct {
	Center       Point   `json:"center"`
	Zoom         int     `json:"zoom"`
	Bounds       *Bounds `json:"bounds,omitempty"`
	Programmatic bool    `json:"programmatic,omitempty"`
}

// TrailPoint is a stored historical position.
type TrailPoint struct {
	Time     time.Time `json:"time"`
	Position Point     `json:"position"`
	Speed    float64   `json:"speed"`
	Heading  float64   `json:"heading"`
}

// Trail is the simplified travelled path of an entity over a time window.
type Trail struct {
	EntityID      string      `json:"entity_id"`
	From          time.Time   `json:"from"`
	To            time.Time   `json:"to"`
	Tolerance     float64     `json:"tolerance"`
	Points        []Point     `json:"points"`
	OriginalCount int         `json:"original_count"`
	LengthMeters  float64     `json:"length_meters"`
	Bounds        *Bounds     `json:"bounds,omitempty"`
	Rejected      []Rejection `json:"rejected,omitempty"`
}
