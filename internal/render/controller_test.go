package render_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/quakemap/internal/domain"
	"github.com/couchcryptid/quakemap/internal/observability"
	"github.com/couchcryptid/quakemap/internal/render"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

// scriptedRenderer returns results in order; a nil entry past the end means success.
type scriptedRenderer struct {
	mu      sync.Mutex
	errs    []error
	calls   int
	windows []domain.TimeWindow
}

func (r *scriptedRenderer) Render(_ context.Context, window domain.TimeWindow) (domain.Scene, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.calls
	r.calls++
	r.windows = append(r.windows, window)
	if i < len(r.errs) && r.errs[i] != nil {
		return domain.Scene{}, r.errs[i]
	}
	return sceneFor(window, i+1), nil
}

func (r *scriptedRenderer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// gatedRenderer blocks its first call until the context ends or release is closed.
type gatedRenderer struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int64
}

func newGatedRenderer() *gatedRenderer {
	return &gatedRenderer{started: make(chan struct{}), release: make(chan struct{})}
}

func (r *gatedRenderer) Render(ctx context.Context, window domain.TimeWindow) (domain.Scene, error) {
	if r.calls.Add(1) == 1 {
		close(r.started)
		select {
		case <-ctx.Done():
			return domain.Scene{}, ctx.Err()
		case <-r.release:
		}
	}
	return sceneFor(window, 1), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	scenes []domain.Scene
	err    error
}

func (p *recordingPublisher) PublishScene(_ context.Context, scene domain.Scene) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scenes = append(p.scenes, scene)
	return p.err
}

// windowRenderer holds renders of slow windows until their context ends and
// lets the rest finish after a short delay.
type windowRenderer struct {
	slow  domain.TimeWindow
	delay time.Duration
}

func (r *windowRenderer) Render(ctx context.Context, window domain.TimeWindow) (domain.Scene, error) {
	wait := r.delay
	if window == r.slow {
		wait = time.Hour
	}
	select {
	case <-ctx.Done():
		return domain.Scene{}, ctx.Err()
	case <-time.After(wait):
	}
	return sceneFor(window, 1), nil
}

// stallingGauge pauses the first Set, holding that render between taking its
// generation and claiming the in-flight slot.
type stallingGauge struct {
	prometheus.Gauge
	once    sync.Once
	entered chan struct{}
	stall   time.Duration
}

func (g *stallingGauge) Set(v float64) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		time.Sleep(g.stall)
	}
	g.Gauge.Set(v)
}

// blockingPublisher blocks until released or its context ends.
type blockingPublisher struct {
	release chan struct{}
	done    chan error
}

func (p *blockingPublisher) PublishScene(ctx context.Context, _ domain.Scene) error {
	var err error
	select {
	case <-p.release:
	case <-ctx.Done():
		err = ctx.Err()
	}
	p.done <- err
	return err
}

func sceneFor(window domain.TimeWindow, markers int) domain.Scene {
	s := domain.Scene{Window: window, Total: markers}
	for i := 0; i < markers; i++ {
		s.Markers = append(s.Markers, domain.Marker{Lat: float64(i), Lng: float64(i)})
	}
	return s
}

func newController(r render.SceneRenderer, p render.Publisher, opts render.Options) (*render.Controller, *observability.Metrics) {
	metrics := observability.NewMetricsForTesting()
	return render.NewController(r, p, discardLogger(), metrics, opts), metrics
}

// --- tests ---

func TestController_Render_MountsSession(t *testing.T) {
	c, metrics := newController(&scriptedRenderer{}, nil, render.Options{})

	require.Error(t, c.CheckReadiness(context.Background()))
	assert.Nil(t, c.Current())

	s, err := c.Render(context.Background(), domain.WindowDay)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), s.Generation)
	assert.Equal(t, uint64(1), s.Scene.Generation)
	assert.Equal(t, domain.WindowDay, s.Window)
	assert.Same(t, s, c.Current())
	require.NoError(t, c.CheckReadiness(context.Background()))
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.MarkersMounted), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RenderGeneration), 0)
}

func TestController_Render_ReplacesAndClosesPrevious(t *testing.T) {
	c, metrics := newController(&scriptedRenderer{}, nil, render.Options{})

	first, err := c.Render(context.Background(), domain.WindowHour)
	require.NoError(t, err)
	second, err := c.Render(context.Background(), domain.WindowMonth)
	require.NoError(t, err)

	assert.True(t, first.Closed())
	assert.False(t, second.Closed())
	assert.Same(t, second, c.Current())
	assert.Equal(t, uint64(2), second.Generation)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.MarkersMounted), 0)
}

func TestController_Render_ErrorKeepsPreviousSession(t *testing.T) {
	netErr := errors.Join(domain.ErrNetwork, errors.New("connection reset"))
	c, _ := newController(&scriptedRenderer{errs: []error{nil, netErr}}, nil, render.Options{})

	first, err := c.Render(context.Background(), domain.WindowWeek)
	require.NoError(t, err)

	_, err = c.Render(context.Background(), domain.WindowDay)
	require.ErrorIs(t, err, domain.ErrNetwork)
	assert.Same(t, first, c.Current())
	assert.False(t, first.Closed())
	require.NoError(t, c.CheckReadiness(context.Background()))
}

func TestController_Render_StaleRenderDiscarded(t *testing.T) {
	r := newGatedRenderer()
	c, metrics := newController(r, nil, render.Options{})

	type result struct {
		s   *render.MapSession
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, err := c.Render(context.Background(), domain.WindowMonth)
		done <- result{s, err}
	}()
	<-r.started

	latest, err := c.Render(context.Background(), domain.WindowHour)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), latest.Generation)

	stale := <-done
	require.ErrorIs(t, stale.err, domain.ErrSuperseded)
	assert.Nil(t, stale.s)
	assert.Same(t, latest, c.Current())
	assert.Equal(t, domain.WindowHour, c.Current().Window)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.StaleRenders), 0)
}

func TestController_Render_StaleSuccessNotMounted(t *testing.T) {
	r := newGatedRenderer()
	c, _ := newController(r, nil, render.Options{})

	done := make(chan error, 1)
	go func() {
		_, err := c.Render(context.WithoutCancel(context.Background()), domain.WindowMonth)
		done <- err
	}()
	<-r.started

	// The newer render cancels the older one; whichever way the older one
	// finishes, it must not replace the newer session.
	latest, err := c.Render(context.Background(), domain.WindowDay)
	require.NoError(t, err)
	close(r.release)

	require.ErrorIs(t, <-done, domain.ErrSuperseded)
	assert.Same(t, latest, c.Current())
	assert.False(t, latest.Closed())
}

func TestController_Render_Timeout(t *testing.T) {
	r := newGatedRenderer()
	c, _ := newController(r, nil, render.Options{RenderTimeout: 20 * time.Millisecond})

	_, err := c.Render(context.Background(), domain.WindowWeek)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, c.Current())
}

func TestController_Render_Publishes(t *testing.T) {
	pub := &recordingPublisher{}
	c, metrics := newController(&scriptedRenderer{}, pub, render.Options{})

	_, err := c.Render(context.Background(), domain.WindowWeek)
	require.NoError(t, err)
	c.Wait()
	require.Len(t, pub.scenes, 1)
	assert.Equal(t, uint64(1), pub.scenes[0].Generation)
	assert.Zero(t, testutil.ToFloat64(metrics.PublishErrors))
}

func TestController_Render_PublishErrorDoesNotFailRender(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker unavailable")}
	c, metrics := newController(&scriptedRenderer{}, pub, render.Options{})

	s, err := c.Render(context.Background(), domain.WindowWeek)
	require.NoError(t, err)
	assert.Same(t, s, c.Current())
	c.Wait()
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.PublishErrors), 0)
}

func TestController_Run_RetriesInitialRenderWithBackoff(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	netErr := errors.Join(domain.ErrNetwork, errors.New("timeout"))
	r := &scriptedRenderer{errs: []error{netErr, netErr}}
	c, _ := newController(r, nil, render.Options{DefaultWindow: domain.WindowDay, Clock: fakeClock})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.NoError(t, fakeClock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 1, r.Calls())
	fakeClock.Advance(200 * time.Millisecond)

	require.NoError(t, fakeClock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 2, r.Calls())
	fakeClock.Advance(400 * time.Millisecond)

	require.Eventually(t, func() bool { return c.Current() != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, r.Calls())
	assert.Equal(t, domain.WindowDay, c.Current().Window)

	cancel()
	require.NoError(t, <-done)
}

func TestController_Run_RefreshesMountedWindow(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	r := &scriptedRenderer{}
	c, _ := newController(r, nil, render.Options{
		DefaultWindow:   domain.WindowWeek,
		RefreshInterval: time.Minute,
		Clock:           fakeClock,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// Wait for the refresh ticker, then switch windows before it fires.
	require.NoError(t, fakeClock.BlockUntilContext(ctx, 1))
	_, err := c.Render(ctx, domain.WindowHour)
	require.NoError(t, err)

	fakeClock.Advance(time.Minute)
	require.Eventually(t, func() bool { return r.Calls() == 3 }, time.Second, 5*time.Millisecond)

	r.mu.Lock()
	assert.Equal(t, []domain.TimeWindow{domain.WindowWeek, domain.WindowHour, domain.WindowHour}, r.windows)
	r.mu.Unlock()

	cancel()
	require.NoError(t, <-done)
}

func TestController_Run_StopsOnCancel(t *testing.T) {
	c, _ := newController(&scriptedRenderer{}, nil, render.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, c.Run(ctx))
}

func TestController_Render_NewestGenerationWinsWhenStartsInterleave(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	gauge := &stallingGauge{Gauge: metrics.RenderGeneration, entered: make(chan struct{}), stall: 50 * time.Millisecond}
	metrics.RenderGeneration = gauge
	r := &windowRenderer{slow: domain.WindowMonth, delay: 100 * time.Millisecond}
	c := render.NewController(r, nil, discardLogger(), metrics, render.Options{})

	older := make(chan error, 1)
	go func() {
		_, err := c.Render(context.Background(), domain.WindowMonth)
		older <- err
	}()
	<-gauge.entered

	newer, err := c.Render(context.Background(), domain.WindowHour)
	require.NoError(t, err)
	require.ErrorIs(t, <-older, domain.ErrSuperseded)

	require.NotNil(t, c.Current())
	assert.Same(t, newer, c.Current())
	assert.Equal(t, domain.WindowHour, c.Current().Window)
	assert.Equal(t, uint64(2), newer.Generation)
}

func TestController_Render_ConcurrentRendersMountLatest(t *testing.T) {
	r := &windowRenderer{slow: domain.WindowMonth, delay: 20 * time.Millisecond}
	c, _ := newController(r, nil, render.Options{})

	const n = 8
	var (
		wg       sync.WaitGroup
		mounted  atomic.Int64
		sessions = make(chan *render.MapSession, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := c.Render(context.Background(), domain.WindowDay)
			if err == nil {
				mounted.Add(1)
				sessions <- s
				return
			}
			assert.ErrorIs(t, err, domain.ErrSuperseded)
		}()
	}
	wg.Wait()
	close(sessions)

	require.NotNil(t, c.Current())
	assert.Equal(t, uint64(n), c.Current().Generation)
	assert.GreaterOrEqual(t, mounted.Load(), int64(1))
	for s := range sessions {
		if s != c.Current() {
			assert.True(t, s.Closed())
		}
	}
}

func TestController_Render_PublishDoesNotBlockRender(t *testing.T) {
	pub := &blockingPublisher{release: make(chan struct{}), done: make(chan error, 1)}
	c, metrics := newController(&scriptedRenderer{}, pub, render.Options{PublishTimeout: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()
	s, err := c.Render(ctx, domain.WindowWeek)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Same(t, s, c.Current())

	// The request context ending must not abort the publish.
	cancel()
	close(pub.release)
	require.NoError(t, <-pub.done)
	c.Wait()
	assert.Zero(t, testutil.ToFloat64(metrics.PublishErrors))
}

func TestController_Render_PublishTimeout(t *testing.T) {
	pub := &blockingPublisher{release: make(chan struct{}), done: make(chan error, 1)}
	c, metrics := newController(&scriptedRenderer{}, pub, render.Options{PublishTimeout: 20 * time.Millisecond})

	_, err := c.Render(context.Background(), domain.WindowWeek)
	require.NoError(t, err)

	require.ErrorIs(t, <-pub.done, context.DeadlineExceeded)
	c.Wait()
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.PublishErrors), 0)
}
