package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/quakemap/internal/domain"
	"github.com/couchcryptid/quakemap/internal/observability"
	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
)

// SceneRenderer produces a scene for a window.
type SceneRenderer interface {
	Render(ctx context.Context, window domain.TimeWindow) (domain.Scene, error)
}

// Publisher forwards a mounted scene downstream.
type Publisher interface {
	PublishScene(ctx context.Context, scene domain.Scene) error
}

// Options configures a Controller.
type Options struct {
	DefaultWindow   domain.TimeWindow
	RenderTimeout   time.Duration
	RefreshInterval time.Duration
	PublishTimeout  time.Duration // default 10s
	Clock           clockwork.Clock
}

// Controller owns the single mounted map session. Every render takes the next
// generation number; a finished render is mounted only if no newer render has
// started since, and starting a render cancels the one in flight.
type Controller struct {
	renderer  SceneRenderer
	publisher Publisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	opts      Options

	generation atomic.Uint64
	ready      atomic.Bool
	publishing sync.WaitGroup

	mu          sync.Mutex
	current     *MapSession
	cancelPrev  context.CancelFunc
	inFlightGen uint64
}

// NewController creates a Controller. publisher may be nil.
func NewController(r SceneRenderer, publisher Publisher, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.DefaultWindow == "" {
		opts.DefaultWindow = domain.WindowWeek
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 10 * time.Second
	}
	return &Controller{
		renderer:  r,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		opts:      opts,
	}
}

// CheckReadiness returns nil once a map session has been mounted.
func (c *Controller) CheckReadiness(_ context.Context) error {
	if !c.ready.Load() {
		return errors.New("no map session mounted yet")
	}
	return nil
}

// Current returns the mounted session, or nil before the first successful render.
func (c *Controller) Current() *MapSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// DefaultWindow is the window rendered at startup.
func (c *Controller) DefaultWindow() domain.TimeWindow {
	return c.opts.DefaultWindow
}

// Render renders the window and mounts the result, replacing and closing the
// previous session. On error the previous session stays mounted. A render
// overtaken by a newer one returns domain.ErrSuperseded and mounts nothing.
func (c *Controller) Render(ctx context.Context, window domain.TimeWindow) (*MapSession, error) {
	var (
		rctx   context.Context
		cancel context.CancelFunc
	)
	if c.opts.RenderTimeout > 0 {
		rctx, cancel = context.WithTimeout(ctx, c.opts.RenderTimeout)
	} else {
		rctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	// Generation order must match the order renders take over the in-flight
	// slot, so the increment happens under the lock.
	c.mu.Lock()
	gen := c.generation.Add(1)
	c.metrics.RenderGeneration.Set(float64(gen))
	if c.cancelPrev != nil {
		c.cancelPrev()
	}
	c.cancelPrev = cancel
	c.inFlightGen = gen
	c.mu.Unlock()

	c.logger.Debug("render started", "window", window, "generation", gen)
	scene, err := c.renderer.Render(rctx, window)

	c.mu.Lock()
	if c.inFlightGen == gen {
		c.cancelPrev = nil
	}
	if latest := c.generation.Load(); gen != latest {
		c.mu.Unlock()
		c.metrics.StaleRenders.Inc()
		c.logger.Info("discarding stale render", "window", window, "generation", gen, "latest", latest)
		return nil, fmt.Errorf("%w: generation %d, latest %d", domain.ErrSuperseded, gen, latest)
	}
	if err != nil {
		c.mu.Unlock()
		c.logger.Warn("render failed, keeping previous map", "window", window, "generation", gen, "error", err)
		return nil, err
	}

	scene.Generation = gen
	session := &MapSession{
		Generation: gen,
		Window:     window,
		Scene:      scene,
		MountedAt:  c.opts.Clock.Now(),
	}
	prev := c.current
	c.current = session
	c.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	c.ready.Store(true)
	c.metrics.MarkersMounted.Set(float64(len(scene.Markers)))
	c.logger.Info("map session mounted",
		"window", window,
		"generation", gen,
		"markers", humanize.Comma(int64(len(scene.Markers))),
		"skipped", scene.Skipped,
		"fingerprint", scene.Fingerprint,
	)

	c.publish(ctx, scene)
	return session, nil
}

// publish hands the scene to the publisher in the background, detached from
// the caller's context and bounded by PublishTimeout.
func (c *Controller) publish(ctx context.Context, scene domain.Scene) {
	if c.publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.PublishTimeout)
	c.publishing.Add(1)
	go func() {
		defer c.publishing.Done()
		defer cancel()
		if err := c.publisher.PublishScene(pctx, scene); err != nil {
			c.metrics.PublishErrors.Inc()
			c.logger.Warn("publish scene failed", "generation", scene.Generation, "error", err)
		}
	}()
}

// Wait blocks until background publishes have finished.
func (c *Controller) Wait() {
	c.publishing.Wait()
}

// Run mounts the default window at startup, retrying with exponential backoff
// until a session is mounted, then re-renders the mounted window every
// RefreshInterval (when positive) until the context is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("controller started",
		"default_window", c.opts.DefaultWindow,
		"refresh_interval", c.opts.RefreshInterval,
	)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for c.Current() == nil {
		_, err := c.Render(ctx, c.opts.DefaultWindow)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			c.logger.Info("controller stopping", "reason", ctx.Err())
			return nil
		}
		if errors.Is(err, domain.ErrSuperseded) {
			continue
		}
		c.logger.Error("initial render failed", "error", err, "retry_in", backoff)
		if !c.sleepWithContext(ctx, backoff) {
			return nil
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}

	if c.opts.RefreshInterval <= 0 {
		<-ctx.Done()
		c.logger.Info("controller stopping", "reason", ctx.Err())
		return nil
	}

	ticker := c.opts.Clock.NewTicker(c.opts.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("controller stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			window := c.opts.DefaultWindow
			if s := c.Current(); s != nil {
				window = s.Window
			}
			if _, err := c.Render(ctx, window); err != nil && !errors.Is(err, domain.ErrSuperseded) && ctx.Err() == nil {
				c.logger.Warn("refresh render failed", "window", window, "error", err)
			}
		}
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func (c *Controller) sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := c.opts.Clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
