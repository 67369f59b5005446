package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/fleetmap/internal/core/domain"
	"github.com/samirrijal/fleetmap/internal/core/usecases"
	"github.com/samirrijal/fleetmap/internal/pkg/geospatial"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	pointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Point",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lng": &graphql.Field{Type: graphql.Float},
		},
	})

	boundsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Bounds",
		Fields: graphql.Fields{
			"north": &graphql.Field{Type: graphql.Float},
			"south": &graphql.Field{Type: graphql.Float},
			"east":  &graphql.Field{Type: graphql.Float},
			"west":  &graphql.Field{Type: graphql.Float},
		},
	})

	entityType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Entity",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.String},
			"kind":       &graphql.Field{Type: graphql.String},
			"position":   &graphql.Field{Type: pointType},
			"updated_at": &graphql.Field{Type: graphql.DateTime},
			"name": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if e, ok := p.Source.(domain.Entity); ok {
						name, _ := e.Metadata["name"].(string)
						return name, nil
					}
					return nil, nil
				},
			},
		},
	})

	markerType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Marker",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.String},
			"cluster":    &graphql.Field{Type: graphql.Boolean},
			"count":      &graphql.Field{Type: graphql.Int},
			"position":   &graphql.Field{Type: pointType},
			"bounds":     &graphql.Field{Type: boundsType},
			"member_ids": &graphql.Field{Type: graphql.NewList(graphql.String)},
			"entity":     &graphql.Field{Type: entityType},
		},
	})

	trailType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Trail",
		Fields: graphql.Fields{
			"entity_id":      &graphql.Field{Type: graphql.String},
			"from":           &graphql.Field{Type: graphql.DateTime},
			"to":             &graphql.Field{Type: graphql.DateTime},
			"tolerance":      &graphql.Field{Type: graphql.Float},
			"points":         &graphql.Field{Type: graphql.NewList(pointType)},
			"original_count": &graphql.Field{Type: graphql.Int},
			"length_meters":  &graphql.Field{Type: graphql.Float},
			"bounds":         &graphql.Field{Type: boundsType},
		},
	})

	distanceType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Distance",
		Fields: graphql.Fields{
			"meters":    &graphql.Field{Type: graphql.Float},
			"formatted": &graphql.Field{Type: graphql.String},
			"bearing":   &graphql.Field{Type: graphql.Float},
			"compass":   &graphql.Field{Type: graphql.String},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"clusters": &graphql.Field{
				Type:        graphql.NewList(markerType),
				Description: "Cluster entities for a zoom level",
				Args: graphql.FieldConfigArgument{
					"zoom": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
					"lat":  &graphql.ArgumentConfig{Type: graphql.Float},
					"lng":  &graphql.ArgumentConfig{Type: graphql.Float},
					"kind": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					q := usecases.ClusterQuery{
						Zoom: p.Args["zoom"].(int),
						Kind: p.Args["kind"].(string),
					}
					lat, hasLat := p.Args["lat"].(float64)
					lng, hasLng := p.Args["lng"].(float64)
					if hasLat != hasLng {
						return nil, errors.New("lat and lng must be given together")
					}
					if hasLat {
						q.Center = &domain.Point{Lat: lat, Lng: lng}
					}
					res, err := deps.Map.Clusters(p.Context, q)
					if err != nil {
						return nil, err
					}
					return markerRows(res.Markers), nil
				},
			},
			"entity": &graphql.Field{
				Type:        entityType,
				Description: "Get an entity by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					ent, err := deps.Map.Entity(p.Context, p.Args["id"].(string))
					if err != nil {
						return nil, err
					}
					return *ent, nil
				},
			},
			"trail": &graphql.Field{
				Type:        trailType,
				Description: "Simplified path of an entity",
				Args: graphql.FieldConfigArgument{
					"entity_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"from":      &graphql.ArgumentConfig{Type: graphql.DateTime},
					"to":        &graphql.ArgumentConfig{Type: graphql.DateTime},
					"tolerance": &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: 0.0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					from, _ := p.Args["from"].(time.Time)
					to, _ := p.Args["to"].(time.Time)
					return deps.Trails.Trail(p.Context, p.Args["entity_id"].(string), from, to, p.Args["tolerance"].(float64))
				},
			},
			"distance": &graphql.Field{
				Type:        distanceType,
				Description: "Great-circle distance and initial bearing between two points",
				Args: graphql.FieldConfigArgument{
					"from_lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"from_lng": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"to_lat":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"to_lng":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					from := domain.Point{Lat: p.Args["from_lat"].(float64), Lng: p.Args["from_lng"].(float64)}
					to := domain.Point{Lat: p.Args["to_lat"].(float64), Lng: p.Args["to_lng"].(float64)}
					meters, err := geospatial.Distance(from, to)
					if err != nil {
						return nil, err
					}
					bearing, _ := geospatial.Bearing(from, to)
					return DistanceResponse{
						Meters:    meters,
						Formatted: geospatial.FormatDistance(meters),
						Bearing:   bearing,
						Compass:   geospatial.CompassDirection(bearing),
					}, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// markerRows flattens markers for the Marker type.
func markerRows(markers []domain.Marker) []map[string]interface{} {
	rows := make([]map[string]interface{}, 0, len(markers))
	for _, m := range markers {
		row := map[string]interface{}{
			"cluster":  m.IsCluster(),
			"count":    m.Count(),
			"position": m.Position(),
		}
		switch {
		case m.Cluster != nil:
			ids := make([]string, 0, len(m.Cluster.Members))
			for _, e := range m.Cluster.Members {
				ids = append(ids, e.ID)
			}
			row["id"] = m.Cluster.ID
			row["bounds"] = m.Cluster.Bounds
			row["member_ids"] = ids
		case m.Entity != nil:
			row["id"] = m.Entity.ID
			row["entity"] = *m.Entity
		}
		rows = append(rows, row)
	}
	return rows
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
