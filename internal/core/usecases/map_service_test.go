package usecases_test

import (
	"context"
	"errors"
	"testing"

	"github.com/samirrijal/fleetmap/internal/core/clustering"
	"github.com/samirrijal/fleetmap/internal/core/domain"
	"github.com/samirrijal/fleetmap/internal/core/usecases"
)

func casablancaEntities() []domain.Entity {
	return []domain.Entity{
		{ID: "1", Kind: "vehicle", Position: domain.Point{Lat: 33.5731, Lng: -7.5898}},
		{ID: "2", Kind: "vehicle", Position: domain.Point{Lat: 33.5735, Lng: -7.5901}},
		{ID: "3", Kind: "vehicle", Position: domain.Point{Lat: 40.0, Lng: 10.0}},
	}
}

func newMapService(repo *mockEntityRepo, cache *memCache) *usecases.MapService {
	engine := clustering.NewEngine(clustering.DefaultOptions(), nil)
	if cache == nil {
		return usecases.NewMapService(repo, nil, engine)
	}
	return usecases.NewMapService(repo, cache, engine)
}

func TestMapService_Clusters(t *testing.T) {
	repo := &mockEntityRepo{
		listFn: func(ctx context.Context, f domain.EntityFilter) ([]domain.Entity, error) {
			if f.Kind != "vehicle" {
				t.Errorf("expected kind filter vehicle, got %q", f.Kind)
			}
			return casablancaEntities(), nil
		},
	}
	svc := newMapService(repo, nil)

	center := domain.Point{Lat: 33.5731, Lng: -7.5898}
	res, err := svc.Clusters(context.Background(), usecases.ClusterQuery{Zoom: 10, Center: &center, Kind: "vehicle"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Markers) != 2 {
		t.Fatalf("expected 2 markers, got %d", len(res.Markers))
	}
	if !res.Markers[0].IsCluster() || res.Markers[0].Count() != 2 {
		t.Errorf("expected a 2-member cluster first, got %+v", res.Markers[0])
	}
	if res.Markers[1].IsCluster() || res.Markers[1].Entity.ID != "3" {
		t.Errorf("expected entity 3 as singleton, got %+v", res.Markers[1])
	}
}

func TestMapService_Clusters_ViewFiltersAndNoCenter(t *testing.T) {
	var filters []domain.EntityFilter
	repo := &mockEntityRepo{
		listFn: func(ctx context.Context, f domain.EntityFilter) ([]domain.Entity, error) {
			filters = append(filters, f)
			return casablancaEntities(), nil
		},
	}
	svc := newMapService(repo, nil)

	view := domain.Bounds{North: 34, South: 33, East: -7, West: -8}
	res, err := svc.Clusters(context.Background(), usecases.ClusterQuery{Zoom: 10, View: &view})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Markers) != 1 || res.Markers[0].Count() != 2 {
		t.Errorf("expected only the in-view cluster, got %+v", res.Markers)
	}
	if len(filters) != 1 || filters[0].Bounds == nil || *filters[0].Bounds != view {
		t.Fatalf("expected view bounds to reach the repository, got %+v", filters)
	}

	res, err = svc.Clusters(context.Background(), usecases.ClusterQuery{Zoom: 18})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Markers) != 3 {
		t.Errorf("expected singletons at high zoom, got %d markers", len(res.Markers))
	}
	if len(filters) != 2 || filters[1].Bounds != nil {
		t.Errorf("expected an unbounded listing without a view, got %+v", filters)
	}
}

func TestMapService_Clusters_CacheHit(t *testing.T) {
	calls := 0
	repo := &mockEntityRepo{
		listFn: func(ctx context.Context, f domain.EntityFilter) ([]domain.Entity, error) {
			calls++
			return casablancaEntities(), nil
		},
	}
	cache := newMemCache()
	svc := newMapService(repo, cache)

	center := domain.Point{Lat: 33.5731, Lng: -7.5898}
	q := usecases.ClusterQuery{Zoom: 10, Center: &center}
	first, err := svc.Clusters(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Clusters(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if calls != 1 {
		t.Errorf("expected repository to be hit once, got %d", calls)
	}
	if cache.Len() != 1 {
		t.Errorf("expected one cache entry, got %d", cache.Len())
	}
	for _, ttl := range cache.ttls {
		if ttl != 15 {
			t.Errorf("expected 15s TTL, got %d", ttl)
		}
	}
	if len(second.Markers) != len(first.Markers) || second.Markers[0].Count() != 2 {
		t.Errorf("cached result differs: %+v", second.Markers)
	}
}

func TestMapService_Clusters_Validation(t *testing.T) {
	svc := newMapService(&mockEntityRepo{}, nil)
	ctx := context.Background()

	if _, err := svc.Clusters(ctx, usecases.ClusterQuery{Zoom: -1}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	inverted := domain.Bounds{North: 1, South: 2}
	if _, err := svc.Clusters(ctx, usecases.ClusterQuery{Zoom: 5, View: &inverted}); !errors.Is(err, domain.ErrInvalidBounds) {
		t.Errorf("expected ErrInvalidBounds, got %v", err)
	}
	bad := domain.Point{Lat: 91}
	if _, err := svc.Clusters(ctx, usecases.ClusterQuery{Zoom: 5, Center: &bad}); !errors.Is(err, domain.ErrInvalidCoordinate) {
		t.Errorf("expected ErrInvalidCoordinate, got %v", err)
	}
}

func TestMapService_Clusters_RepoError(t *testing.T) {
	boom := errors.New("db down")
	repo := &mockEntityRepo{
		listFn: func(ctx context.Context, f domain.EntityFilter) ([]domain.Entity, error) {
			return nil, boom
		},
	}
	svc := newMapService(repo, nil)
	if _, err := svc.Clusters(context.Background(), usecases.ClusterQuery{Zoom: 5}); !errors.Is(err, boom) {
		t.Errorf("expected wrapped repo error, got %v", err)
	}
}

func TestMapService_Entities_ClampLimit(t *testing.T) {
	var got int
	repo := &mockEntityRepo{
		listFn: func(ctx context.Context, f domain.EntityFilter) ([]domain.Entity, error) {
			got = f.Limit
			return nil, nil
		},
	}
	svc := newMapService(repo, nil)
	if _, err := svc.Entities(context.Background(), "", nil, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 500 {
		t.Errorf("expected default limit 500, got %d", got)
	}
	if _, err := svc.Entity(context.Background(), ""); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for empty id, got %v", err)
	}
}
