package positions_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/fleetmap/internal/core/domain"
	"github.com/samirrijal/fleetmap/internal/core/ports"
	"github.com/samirrijal/fleetmap/internal/core/positions"
)

var (
	_ ports.EventPublisher = (*positions.Hub)(nil)
	_ ports.PositionSource = (*positions.Feed)(nil)
)

func TestHub_RoutesByEntity(t *testing.T) {
	hub := positions.NewHub(4)
	defer hub.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	car, err := hub.Source("car-7").Watch(ctx)
	require.NoError(t, err)
	bike, err := hub.Source("bike-2").Watch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, hub.Watchers())

	u := update("car-7", 33.57, -7.58)
	require.NoError(t, hub.PublishPosition(ctx, &u))

	assert.Equal(t, "car-7", (<-car).EntityID)
	select {
	case got := <-bike:
		t.Fatalf("bike watcher received %s", got.EntityID)
	default:
	}
}

func TestHub_SubmitUnsupported(t *testing.T) {
	hub := positions.NewHub(0)
	u := update("car-7", 1, 2)

	err := hub.SubmitPosition(context.Background(), &u)
	assert.True(t, errors.Is(err, domain.ErrUnsupportedCapability))
	assert.NoError(t, hub.PublishBroadcast(context.Background(), []byte("{}")))
}

func TestHub_ClosedRejectsWatch(t *testing.T) {
	hub := positions.NewHub(1)
	hub.Close()

	_, err := hub.Source("late").Watch(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnsupportedCapability)
}

func TestHub_ForgetsIdleEntities(t *testing.T) {
	hub := positions.NewHub(1)
	defer hub.Close()

	u := update("ghost", 1, 2)
	require.NoError(t, hub.PublishPosition(context.Background(), &u))
	assert.Equal(t, 0, hub.Entities(), "publishing must not allocate a feed")

	ctx, cancel := context.WithCancel(context.Background())
	first, err := hub.Source("car-7").Watch(ctx)
	require.NoError(t, err)
	_, err = hub.Source("car-7").Watch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Entities())

	cancel()
	for range first {
	}
	require.Eventually(t, func() bool { return hub.Entities() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, hub.Watchers())

	again, err := hub.Source("car-7").Watch(context.Background())
	require.NoError(t, err)
	u = update("car-7", 33.57, -7.58)
	require.NoError(t, hub.PublishPosition(context.Background(), &u))
	assert.Equal(t, "car-7", (<-again).EntityID)
}
