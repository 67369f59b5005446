package http

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	geojsonenc "github.com/samirrijal/fleetmap/internal/adapters/geojson"
	"github.com/samirrijal/fleetmap/internal/core/domain"
	"github.com/samirrijal/fleetmap/internal/core/usecases"
	"github.com/samirrijal/fleetmap/internal/pkg/geospatial"
)

const (
	maxSimplifyPoints = 100_000
	maxPositionBatch  = 1_000
	maxEntityFetch    = 5_000
)

// ClustersResponse is the JSON body of GET /v1/clusters.
type ClustersResponse struct {
	Zoom         int                `json:"zoom"`
	ClusterCount int                `json:"cluster_count"`
	Markers      []domain.Marker    `json:"markers"`
	Rejected     []domain.Rejection `json:"rejected,omitempty"`
}

// ClustersHandler clusters the stored entities for a zoom level.
// Query: zoom (required), lat+lng (reference point), bbox=west,south,east,north,
// kind, format=geojson.
func ClustersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Query("zoom") == "" {
			return errBadRequest(c, "zoom is required")
		}
		zoom, err := strconv.Atoi(c.Query("zoom"))
		if err != nil {
			return errBadRequest(c, "zoom must be an integer")
		}
		center, err := optionalPoint(c, "lat", "lng")
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		view, err := parseBBox(c.Query("bbox"))
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		res, err := deps.Map.Clusters(c.UserContext(), usecases.ClusterQuery{
			Zoom:   zoom,
			Center: center,
			View:   view,
			Kind:   c.Query("kind"),
		})
		if err != nil {
			return errFromDomain(c, err)
		}

		if wantsGeoJSON(c) {
			return sendGeoJSON(c, geojsonenc.Markers(res.Markers))
		}
		return c.JSON(ClustersResponse{
			Zoom:         zoom,
			ClusterCount: res.ClusterCount(),
			Markers:      res.Markers,
			Rejected:     res.Rejected,
		})
	}
}

// ListEntitiesHandler lists entities with offset/limit pagination.
func ListEntitiesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		view, err := parseBBox(c.Query("bbox"))
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 100)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 500 {
			limit = 100
		}

		fetch := offset + limit
		if fetch > maxEntityFetch {
			fetch = maxEntityFetch
		}
		entities, err := deps.Map.Entities(c.UserContext(), c.Query("kind"), view, fetch)
		if err != nil {
			return errFromDomain(c, err)
		}

		// The repository caps the listing, so total counts what was loaded.
		total := len(entities)
		if offset >= total {
			entities = []domain.Entity{}
		} else {
			end := offset + limit
			if end > total {
				end = total
			}
			entities = entities[offset:end]
		}

		if wantsGeoJSON(c) {
			return sendGeoJSON(c, geojsonenc.Entities(entities))
		}
		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: entities, Pagination: pg})
	}
}

// GetEntityHandler returns a single entity by ID.
func GetEntityHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ent, err := deps.Map.Entity(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(ent)
	}
}

// EntityTrailHandler returns the simplified path of an entity.
// Query: from, to (RFC 3339), tolerance (degrees), format=geojson.
func EntityTrailHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		from, err := optionalTime(c.Query("from"))
		if err != nil {
			return errBadRequest(c, "from must be an RFC 3339 timestamp")
		}
		to, err := optionalTime(c.Query("to"))
		if err != nil {
			return errBadRequest(c, "to must be an RFC 3339 timestamp")
		}
		tolerance := c.QueryFloat("tolerance", 0)

		trail, err := deps.Trails.Trail(c.UserContext(), c.Params("id"), from, to, tolerance)
		if err != nil {
			return errFromDomain(c, err)
		}

		if wantsGeoJSON(c) {
			return sendGeoJSON(c, geojsonenc.TrailCollection(trail))
		}
		return c.JSON(trail)
	}
}

// SimplifyRequest is the body of POST /v1/paths/simplify.
type SimplifyRequest struct {
	Points    []domain.Point `json:"points"`
	Tolerance float64        `json:"tolerance"`
}

// SimplifyResponse is the result of an ad-hoc simplification.
type SimplifyResponse struct {
	Points          []domain.Point     `json:"points"`
	OriginalCount   int                `json:"original_count"`
	SimplifiedCount int                `json:"simplified_count"`
	LengthMeters    float64            `json:"length_m"`
	Rejected        []domain.Rejection `json:"rejected,omitempty"`
}

// SimplifyPathHandler runs Douglas–Peucker over a client supplied path.
func SimplifyPathHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req SimplifyRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Points) > maxSimplifyPoints {
			return errBadRequest(c, fmt.Sprintf("too many points (max %d)", maxSimplifyPoints))
		}

		out, rejected, err := deps.Trails.Simplify(c.UserContext(), req.Points, req.Tolerance)
		if err != nil {
			return errFromDomain(c, err)
		}
		if out == nil {
			out = []domain.Point{}
		}
		return c.JSON(SimplifyResponse{
			Points:          out,
			OriginalCount:   len(req.Points),
			SimplifiedCount: len(out),
			LengthMeters:    geospatial.PathLength(out),
			Rejected:        rejected,
		})
	}
}

// DistanceResponse is the body of GET /v1/geo/distance.
type DistanceResponse struct {
	Meters    float64 `json:"meters"`
	Formatted string  `json:"formatted"`
	Bearing   float64 `json:"bearing"`
	Compass   string  `json:"compass"`
}

// DistanceHandler returns the great-circle distance and initial bearing
// between two points.
func DistanceHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		from, err := requiredPoint(c, "from_lat", "from_lng")
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		to, err := requiredPoint(c, "to_lat", "to_lng")
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		meters, err := geospatial.Distance(from, to)
		if err != nil {
			return errFromDomain(c, err)
		}
		bearing, err := geospatial.Bearing(from, to)
		if err != nil {
			return errFromDomain(c, err)
		}

		c.Set("Cache-Control", "public, max-age=3600")
		return c.JSON(DistanceResponse{
			Meters:    meters,
			Formatted: geospatial.FormatDistance(meters),
			Bearing:   bearing,
			Compass:   geospatial.CompassDirection(bearing),
		})
	}
}

// PositionsRequest is the body of POST /v1/positions.
type PositionsRequest struct {
	Positions []domain.PositionUpdate `json:"positions"`
}

// PositionsResponse reports how many positions were stored.
type PositionsResponse struct {
	Accepted int                `json:"accepted"`
	Rejected []domain.Rejection `json:"rejected,omitempty"`
}

// PositionsHandler ingests a batch of position reports.
func PositionsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Ingest == nil {
			return errUnavailable(c, "ingestion not configured")
		}
		var req PositionsRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Positions) == 0 {
			return errBadRequest(c, "positions must not be empty")
		}
		if len(req.Positions) > maxPositionBatch {
			return errBadRequest(c, fmt.Sprintf("too many positions (max %d)", maxPositionBatch))
		}

		accepted, rejected, err := deps.Ingest.ProcessBatch(c.UserContext(), req.Positions, "http")
		if err != nil {
			return errFromDomain(c, err)
		}
		status := fiber.StatusAccepted
		if accepted == 0 {
			status = fiber.StatusUnprocessableEntity
		}
		return c.Status(status).JSON(PositionsResponse{Accepted: accepted, Rejected: rejected})
	}
}

// ---- query helpers ----

func wantsGeoJSON(c *fiber.Ctx) bool {
	return strings.EqualFold(c.Query("format"), "geojson")
}

func sendGeoJSON(c *fiber.Ctx, v any) error {
	if err := c.JSON(v); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, geojsonenc.ContentType)
	return nil
}

// optionalPoint reads a coordinate pair; both parameters absent yields nil.
func optionalPoint(c *fiber.Ctx, latKey, lngKey string) (*domain.Point, error) {
	if c.Query(latKey) == "" && c.Query(lngKey) == "" {
		return nil, nil
	}
	p, err := requiredPoint(c, latKey, lngKey)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func requiredPoint(c *fiber.Ctx, latKey, lngKey string) (domain.Point, error) {
	lat, err := strconv.ParseFloat(c.Query(latKey), 64)
	if err != nil {
		return domain.Point{}, fmt.Errorf("%s is required and must be a number", latKey)
	}
	lng, err := strconv.ParseFloat(c.Query(lngKey), 64)
	if err != nil {
		return domain.Point{}, fmt.Errorf("%s is required and must be a number", lngKey)
	}
	p := domain.Point{Lat: lat, Lng: lng}
	if !p.Valid() {
		return domain.Point{}, fmt.Errorf("%s/%s out of range", latKey, lngKey)
	}
	return p, nil
}

// parseBBox parses "west,south,east,north". An empty string yields nil.
func parseBBox(raw string) (*domain.Bounds, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bbox must be west,south,east,north")
	}
	var v [4]float64
	for i, s := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("bbox must be west,south,east,north")
		}
		v[i] = f
	}
	b := domain.Bounds{West: v[0], South: v[1], East: v[2], North: v[3]}
	if !b.Valid() {
		return nil, fmt.Errorf("bbox: %w", domain.ErrInvalidBounds)
	}
	return &b, nil
}

func optionalTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
