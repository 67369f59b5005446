package usecases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/facebookgo/clock"

	"github.com/samirrijal/fleetmap/internal/core/domain"
	"github.com/samirrijal/fleetmap/internal/core/ports"
	"github.com/samirrijal/fleetmap/internal/core/positions"
	"github.com/samirrijal/fleetmap/internal/core/usecases"
	"github.com/samirrijal/fleetmap/internal/core/viewport"
)

func entityRepoWith(e domain.Entity) *mockEntityRepo {
	return &mockEntityRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Entity, error) {
			if id != e.ID {
				return nil, domain.ErrNotFound
			}
			return &e, nil
		},
	}
}

func TestSessionService_OpenClose(t *testing.T) {
	svc := usecases.NewSessionService(viewport.DefaultConfig(), &mockEntityRepo{}, nil)

	a := svc.Open(nopCamera{})
	b := svc.Open(nopCamera{})
	if a.ID == b.ID {
		t.Fatal("session IDs must be unique")
	}
	if svc.Active() != 2 {
		t.Fatalf("expected 2 active sessions, got %d", svc.Active())
	}

	svc.Close(a.ID)
	if _, err := svc.Get(a.ID); !errors.Is(err, usecases.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	svc.Close(a.ID)

	svc.CloseAll()
	if svc.Active() != 0 {
		t.Errorf("expected no sessions after CloseAll, got %d", svc.Active())
	}
}

func TestSessionService_Follow_TracksLivePositions(t *testing.T) {
	car := domain.Entity{ID: "car-7", Position: domain.Point{Lat: 34.02, Lng: -6.84}}
	feed := positions.NewFeed(4)
	defer feed.Close()

	svc := usecases.NewSessionService(viewport.DefaultConfig(), entityRepoWith(car),
		func(entityID string) ports.PositionSource { return feed },
	).WithClock(clock.NewMock())
	sess := svc.Open(nopCamera{})
	defer svc.CloseAll()

	following, err := svc.Follow(context.Background(), sess.ID, "car-7", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !following || sess.Controller.Mode() != viewport.Following {
		t.Fatal("expected session to follow car-7")
	}
	if feed.Watchers() != 1 {
		t.Fatalf("expected one watcher on the feed, got %d", feed.Watchers())
	}

	feed.Publish(domain.PositionUpdate{EntityID: "car-7", Lat: 34.03, Lng: -6.85})
	deadline := time.Now().Add(time.Second)
	for {
		p, _ := sess.Controller.TrackedPosition()
		if p == (domain.Point{Lat: 34.03, Lng: -6.85}) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("tracked position not updated, got %+v", p)
		}
		time.Sleep(5 * time.Millisecond)
	}

	following, err = svc.Follow(context.Background(), sess.ID, "car-7", nil)
	if err != nil || following {
		t.Fatalf("second follow should stop following, got %v %v", following, err)
	}
}

func TestSessionService_Follow_WithoutSourceIsUnsupported(t *testing.T) {
	svc := usecases.NewSessionService(viewport.DefaultConfig(), &mockEntityRepo{}, nil).WithClock(clock.NewMock())
	sess := svc.Open(nopCamera{})
	defer svc.CloseAll()

	pos := domain.Point{Lat: 33.57, Lng: -7.58}
	following, err := svc.Follow(context.Background(), sess.ID, "car-7", &pos)
	if !errors.Is(err, domain.ErrUnsupportedCapability) {
		t.Fatalf("expected ErrUnsupportedCapability, got %v", err)
	}
	if following || sess.Controller.Mode() != viewport.Idle {
		t.Error("follow must be reverted when no live source exists")
	}
}

func TestSessionService_Follow_Errors(t *testing.T) {
	svc := usecases.NewSessionService(viewport.DefaultConfig(), &mockEntityRepo{}, nil)
	sess := svc.Open(nopCamera{})
	defer svc.CloseAll()
	ctx := context.Background()

	if _, err := svc.Follow(ctx, "missing", "car-7", nil); !errors.Is(err, usecases.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := svc.Follow(ctx, sess.ID, "", nil); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := svc.Follow(ctx, sess.ID, "ghost", nil); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionService_Follow_CameraFailureReverts(t *testing.T) {
	feed := positions.NewFeed(1)
	defer feed.Close()
	camErr := errors.New("surface detached")

	svc := usecases.NewSessionService(viewport.DefaultConfig(), &mockEntityRepo{},
		func(entityID string) ports.PositionSource { return feed },
	).WithClock(clock.NewMock())
	sess := svc.Open(brokenCamera{err: camErr})
	defer svc.CloseAll()

	pos := domain.Point{Lat: 33.57, Lng: -7.58}
	following, err := svc.Follow(context.Background(), sess.ID, "car-7", &pos)
	if !errors.Is(err, camErr) {
		t.Fatalf("expected the camera error, got %v", err)
	}
	if following || sess.Controller.Mode() != viewport.Idle {
		t.Error("follow must be reverted when the camera rejects the move")
	}
	if feed.Watchers() != 0 {
		t.Errorf("no live source should be attached, got %d watchers", feed.Watchers())
	}
	deadline := time.Now().Add(time.Second)
	for sess.Controller.FollowTickActive() {
		if time.Now().After(deadline) {
			t.Fatal("follow tick still running after the revert")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
