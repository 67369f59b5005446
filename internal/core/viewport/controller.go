// Package viewport owns the camera state of a map session, including follow mode.
package viewport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/facebookgo/clock"
	"github.com/sourcegraph/conc"

	"github.com/samirrijal/fleetmap/internal/core/domain"
	"github.com/samirrijal/fleetmap/internal/core/ports"
	"github.com/samirrijal/fleetmap/internal/pkg/geospatial"
	"github.com/samirrijal/fleetmap/internal/pkg/metrics"
)

// ErrClosed is returned by operations on a closed controller.
var ErrClosed = errors.New("viewport: controller closed")

// Mode is the follow state of a controller.
type Mode int

const (
	Idle Mode = iota
	Following
)

func (m Mode) String() string {
	if m == Following {
		return "following"
	}
	return "idle"
}

// Config holds camera defaults for a session.
type Config struct {
	InitialCenter domain.Point
	InitialZoom   int
	DefaultZoom   int // used when no zoom is known yet
	FollowZoom    int
	EntityZoom    int
	MinZoom       int
	MaxZoom       int

	FollowInterval  time.Duration
	FollowThreshold float64 // degrees, roughly 50 m at 0.0005

	ViewportWidth  int
	ViewportHeight int
	RoutePadding   int
}

// DefaultConfig returns the defaults used by the fleet map.
func DefaultConfig() Config {
	return Config{
		InitialCenter:   domain.Point{Lat: 33.5731, Lng: -7.5898},
		InitialZoom:     6,
		DefaultZoom:     10,
		FollowZoom:      16,
		EntityZoom:      15,
		MinZoom:         1,
		MaxZoom:         19,
		FollowInterval:  2 * time.Second,
		FollowThreshold: 0.0005,
		ViewportWidth:   1024,
		ViewportHeight:  768,
		RoutePadding:    30,
	}
}

// Option customises a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock driving the follow tick.
func WithClock(c clock.Clock) Option {
	return func(ctrl *Controller) { ctrl.clock = c }
}

// WithLogger sets the controller's logger.
func WithLogger(l *slog.Logger) Option {
	return func(ctrl *Controller) { ctrl.logger = l }
}

// Controller is the camera state machine of one map session.
// All methods are safe for concurrent use; they are serialised internally.
type Controller struct {
	camera ports.CameraControl
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	mu        sync.Mutex
	state     domain.ViewportState
	tracked   *domain.Entity
	view      *domain.Bounds
	stopTick  context.CancelFunc
	stopWatch context.CancelFunc
	closed    bool

	ticks atomic.Int32
	wg    conc.WaitGroup
}

// New creates a Controller in the Idle state at the configured initial camera.
func New(camera ports.CameraControl, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		camera: camera,
		cfg:    cfg,
		clock:  clock.New(),
		logger: slog.Default(),
		state: domain.ViewportState{
			Center: cfg.InitialCenter,
			Zoom:   cfg.InitialZoom,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns a copy of the current camera state.
func (c *Controller) State() domain.ViewportState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Mode returns Idle or Following.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.FollowMode {
		return Following
	}
	return Idle
}

// FollowTickActive reports whether a follow-tick goroutine is still running.
func (c *Controller) FollowTickActive() bool {
	return c.ticks.Load() > 0
}

// TrackedPosition returns the latest known position of the followed entity.
func (c *Controller) TrackedPosition() (domain.Point, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tracked == nil {
		return domain.Point{}, false
	}
	return c.tracked.Position, true
}

// CenterOn moves the camera to p. A zoom <= 0 keeps the current zoom.
// Manual centering leaves follow mode.
func (c *Controller) CenterOn(ctx context.Context, p domain.Point, zoom int, animate bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !p.Valid() {
		return domain.ErrInvalidCoordinate
	}
	c.stopFollowLocked()
	return c.moveLocked(ctx, p, c.resolveZoom(zoom), animate)
}

// CenterOnEntity centers on e, at the entity zoom when zoom <= 0.
func (c *Controller) CenterOnEntity(ctx context.Context, e domain.Entity, zoom int) error {
	if zoom <= 0 {
		zoom = c.cfg.EntityZoom
	}
	return c.CenterOn(ctx, e.Position, zoom, true)
}

// CenterOnAll frames every valid entity: one entity is centered on, several are fitted.
func (c *Controller) CenterOnAll(ctx context.Context, entities []domain.Entity) error {
	points := make([]domain.Point, 0, len(entities))
	var only domain.Entity
	for _, e := range entities {
		if e.Position.Valid() {
			points = append(points, e.Position)
			only = e
		}
	}
	switch len(points) {
	case 0:
		return nil
	case 1:
		return c.CenterOnEntity(ctx, only, 0)
	}
	b, _ := geospatial.PaddedBounds(points, 0.1, 0.01)
	return c.FitBounds(ctx, b, domain.DefaultFitOptions())
}

// CenterOnRoute fits the camera to a travelled path.
func (c *Controller) CenterOnRoute(ctx context.Context, path []domain.Point) error {
	b, ok := geospatial.PaddedBounds(path, 0, 0.001)
	if !ok {
		return domain.ErrInvalidCoordinate
	}
	opts := domain.DefaultFitOptions()
	opts.Padding = c.cfg.RoutePadding
	return c.FitBounds(ctx, b, opts)
}

// FitBounds moves the camera to enclose b. Zero Padding or MaxZoom take the defaults.
// Fitting always leaves follow mode.
func (c *Controller) FitBounds(ctx context.Context, b domain.Bounds, opts domain.FitOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !b.Valid() {
		return domain.ErrInvalidBounds
	}
	defaults := domain.DefaultFitOptions()
	if opts.Padding <= 0 {
		opts.Padding = defaults.Padding
	}
	if opts.MaxZoom <= 0 {
		opts.MaxZoom = defaults.MaxZoom
	}

	c.stopFollowLocked()

	zoom := geospatial.FitZoom(b,
		c.cfg.ViewportWidth-2*opts.Padding,
		c.cfg.ViewportHeight-2*opts.Padding,
		opts.MaxZoom,
	)
	if err := c.camera.FitBounds(ctx, b, opts); err != nil {
		return fmt.Errorf("fit bounds: %w", err)
	}
	c.state.Center = b.Center()
	c.state.Zoom = c.clampZoom(zoom)
	return nil
}

// ZoomTo changes the zoom, clamped to the configured range. Follow mode is kept.
func (c *Controller) ZoomTo(ctx context.Context, zoom int, animate bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	zoom = c.clampZoom(zoom)
	if err := c.camera.SetZoom(ctx, zoom, animate); err != nil {
		return fmt.Errorf("set zoom: %w", err)
	}
	c.state.Zoom = zoom
	return nil
}

// ToggleFollow starts following e, or stops when e is already followed.
// It returns whether the controller is Following afterwards.
func (c *Controller) ToggleFollow(ctx context.Context, e domain.Entity) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}
	if c.state.FollowMode && c.state.TrackingEntityID == e.ID {
		c.stopFollowLocked()
		c.logger.Debug("follow stopped", "entity_id", e.ID)
		return false, nil
	}
	if e.ID == "" {
		return false, errors.New("viewport: entity id is required to follow")
	}
	if !e.Position.Valid() {
		return false, domain.ErrInvalidCoordinate
	}

	c.startFollowLocked(e)
	c.logger.Debug("follow started", "entity_id", e.ID)
	if err := c.moveLocked(ctx, e.Position, c.clampZoom(c.cfg.FollowZoom), true); err != nil {
		return true, err
	}
	return true, nil
}

// AutoFollow recenters on e when it has drifted past the follow threshold.
// It only acts while following e and never leaves follow mode.
// It returns whether a camera command was issued.
func (c *Controller) AutoFollow(ctx context.Context, e domain.Entity) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}
	return c.autoFollowLocked(ctx, e)
}

// HandleCameraMoved records a camera move reported by the rendering surface.
// A move the user made cancels follow mode; programmatic echoes do not.
func (c *Controller) HandleCameraMoved(ev domain.CameraEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !ev.Center.Valid() {
		return domain.ErrInvalidCoordinate
	}
	c.state.Center = ev.Center
	c.applyCameraEventLocked(ev)

	if !ev.Programmatic && c.state.FollowMode {
		c.logger.Debug("follow cancelled by user pan", "entity_id", c.state.TrackingEntityID)
		c.stopFollowLocked()
	}
	return nil
}

// HandleCameraZoomed records a zoom change. It never cancels follow mode.
func (c *Controller) HandleCameraZoomed(ev domain.CameraEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.applyCameraEventLocked(ev)
	return nil
}

// Reset leaves follow mode and flies back to the initial camera.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.stopFollowLocked()
	c.view = nil
	return c.moveLocked(ctx, c.cfg.InitialCenter, c.cfg.InitialZoom, true)
}

// IsInView reports whether p is inside the last bounds reported by the surface.
func (c *Controller) IsInView(p domain.Point) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view != nil && p.Valid() && c.view.Contains(p)
}

// CurrentBounds returns the last bounds reported by the surface.
func (c *Controller) CurrentBounds() (domain.Bounds, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view == nil {
		return domain.Bounds{}, false
	}
	return *c.view, true
}

// Observe refreshes the followed entity's position from a feed snapshot.
func (c *Controller) Observe(entities []domain.Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.FollowMode {
		return
	}
	for _, e := range entities {
		if e.ID == c.state.TrackingEntityID && e.Position.Valid() {
			tracked := e
			c.tracked = &tracked
			return
		}
	}
}

// UpdatePosition applies a live update for the followed entity.
// Invalid updates and updates for other entities are ignored.
func (c *Controller) UpdatePosition(u domain.PositionUpdate) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.FollowMode || c.tracked == nil {
		return false
	}
	if u.EntityID != "" && u.EntityID != c.state.TrackingEntityID {
		return false
	}
	if !u.Point().Valid() {
		return false
	}
	c.tracked.Position = u.Point()
	if !u.Timestamp.IsZero() {
		c.tracked.UpdatedAt = u.Timestamp
	}
	return true
}

// Track subscribes to src and feeds its updates into UpdatePosition until
// the controller is closed, Untrack is called or ctx ends.
// A source that cannot be watched returns domain.ErrUnsupportedCapability.
func (c *Controller) Track(ctx context.Context, src ports.PositionSource) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	watchCtx, cancel := context.WithCancel(ctx)
	updates, err := src.Watch(watchCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("watch positions: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return ErrClosed
	}
	if c.stopWatch != nil {
		c.stopWatch()
	}
	c.stopWatch = cancel
	c.wg.Go(func() {
		for {
			select {
			case <-watchCtx.Done():
				return
			case u, ok := <-updates:
				if !ok {
					return
				}
				c.UpdatePosition(u)
			}
		}
	})
	c.mu.Unlock()
	return nil
}

// Untrack stops the current position subscription, if any.
func (c *Controller) Untrack() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopWatch != nil {
		c.stopWatch()
		c.stopWatch = nil
	}
}

// Close cancels the follow tick and position subscription and waits for
// their goroutines to exit. It is safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopFollowLocked()
	if c.stopWatch != nil {
		c.stopWatch()
		c.stopWatch = nil
	}
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Controller) startFollowLocked(e domain.Entity) {
	c.stopFollowLocked()

	tracked := e
	c.tracked = &tracked
	c.state.FollowMode = true
	c.state.TrackingEntityID = e.ID

	ctx, cancel := context.WithCancel(context.Background())
	c.stopTick = cancel

	// created here rather than in the goroutine so a mock clock sees it immediately
	ticker := c.clock.Ticker(c.cfg.FollowInterval)
	c.ticks.Add(1)
	c.wg.Go(func() {
		defer c.ticks.Add(-1)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.followTick(ctx)
			}
		}
	})
}

func (c *Controller) stopFollowLocked() {
	if c.stopTick != nil {
		c.stopTick()
		c.stopTick = nil
	}
	c.state.FollowMode = false
	c.state.TrackingEntityID = ""
	c.tracked = nil
}

func (c *Controller) followTick(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil || c.tracked == nil {
		return
	}
	if _, err := c.autoFollowLocked(ctx, *c.tracked); err != nil {
		c.logger.Warn("auto-follow failed", "entity_id", c.state.TrackingEntityID, "error", err)
	}
}

func (c *Controller) autoFollowLocked(ctx context.Context, e domain.Entity) (bool, error) {
	if !c.state.FollowMode || e.ID != c.state.TrackingEntityID {
		return false, nil
	}
	if !e.Position.Valid() {
		return false, domain.ErrInvalidCoordinate
	}
	tracked := e
	c.tracked = &tracked

	dLat := e.Position.Lat - c.state.Center.Lat
	dLng := e.Position.Lng - c.state.Center.Lng
	if math.Hypot(dLat, dLng) <= c.cfg.FollowThreshold {
		return false, nil
	}
	if err := c.camera.FlyTo(ctx, e.Position, c.state.Zoom); err != nil {
		return false, fmt.Errorf("auto-follow: %w", err)
	}
	c.state.Center = e.Position
	metrics.FollowRecenters.Inc()
	return true, nil
}

func (c *Controller) moveLocked(ctx context.Context, p domain.Point, zoom int, animate bool) error {
	var err error
	if animate {
		err = c.camera.FlyTo(ctx, p, zoom)
	} else {
		err = c.camera.SetView(ctx, p, zoom)
	}
	if err != nil {
		return fmt.Errorf("move camera: %w", err)
	}
	c.state.Center = p
	c.state.Zoom = zoom
	return nil
}

func (c *Controller) applyCameraEventLocked(ev domain.CameraEvent) {
	if ev.Zoom > 0 {
		c.state.Zoom = ev.Zoom
	}
	if ev.Bounds != nil && ev.Bounds.Valid() {
		b := *ev.Bounds
		c.view = &b
	}
}

func (c *Controller) resolveZoom(zoom int) int {
	if zoom <= 0 {
		zoom = c.state.Zoom
	}
	if zoom <= 0 {
		zoom = c.cfg.DefaultZoom
	}
	return c.clampZoom(zoom)
}

func (c *Controller) clampZoom(zoom int) int {
	if c.cfg.MaxZoom > 0 && zoom > c.cfg.MaxZoom {
		return c.cfg.MaxZoom
	}
	if zoom < c.cfg.MinZoom {
		return c.cfg.MinZoom
	}
	return zoom
}
