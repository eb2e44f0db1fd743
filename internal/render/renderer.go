package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/quakemap/internal/domain"
	"github.com/couchcryptid/quakemap/internal/observability"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"
)

// Renderer turns a time window into a fully assembled map scene.
type Renderer struct {
	source  domain.FeedSource
	bases   []domain.BaseLayer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRenderer creates a Renderer. bases must already be validated, see LoadBaseLayers.
func NewRenderer(source domain.FeedSource, bases []domain.BaseLayer, logger *slog.Logger, metrics *observability.Metrics) *Renderer {
	return &Renderer{
		source:  source,
		bases:   bases,
		logger:  logger,
		metrics: metrics,
	}
}

// Render fetches both feeds concurrently and assembles the scene once both
// have arrived. A failure of either fetch cancels the other.
func (r *Renderer) Render(ctx context.Context, window domain.TimeWindow) (domain.Scene, error) {
	start := time.Now()
	scene, err := r.render(ctx, window)
	r.metrics.Renders.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		return domain.Scene{}, err
	}
	r.metrics.RenderDuration.Observe(time.Since(start).Seconds())
	return scene, nil
}

func (r *Renderer) render(ctx context.Context, window domain.TimeWindow) (domain.Scene, error) {
	if _, err := domain.ParseTimeWindow(string(window)); err != nil {
		return domain.Scene{}, err
	}

	var quakes, plates []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		body, err := r.source.FetchEarthquakes(gctx, window)
		if err != nil {
			return fmt.Errorf("fetch earthquakes: %w", err)
		}
		quakes = body
		return nil
	})
	g.Go(func() error {
		body, err := r.source.FetchPlates(gctx)
		if err != nil {
			return fmt.Errorf("fetch plates: %w", err)
		}
		plates = body
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.Scene{}, err
	}

	feed, err := domain.DecodeEarthquakeFeed(quakes, r.logger)
	if err != nil {
		return domain.Scene{}, err
	}
	boundaries, err := domain.ValidateBoundaries(plates)
	if err != nil {
		return domain.Scene{}, err
	}
	if feed.Skipped > 0 {
		r.metrics.FeaturesSkipped.Add(float64(feed.Skipped))
		r.logger.Debug("features skipped", "window", window, "skipped", feed.Skipped, "malformed", feed.Malformed)
	}

	scene := domain.NewScene(window, r.bases, feed, boundaries)
	fp, err := Fingerprint(scene)
	if err != nil {
		return domain.Scene{}, err
	}
	scene.Fingerprint = fp
	return scene, nil
}

// Fingerprint hashes the scene content, ignoring generation and timestamps,
// so identical upstream data yields the same value.
func Fingerprint(scene domain.Scene) (string, error) {
	scene.Generation = 0
	scene.Fingerprint = ""
	scene.GeneratedAt = time.Time{}
	data, err := json.Marshal(scene)
	if err != nil {
		return "", fmt.Errorf("%w: encode scene: %v", domain.ErrRender, err)
	}
	return fmt.Sprintf("%016x", xxh3.Hash(data)), nil
}

// outcome maps a render error to its metrics label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, domain.ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return "network_error"
	case errors.Is(err, domain.ErrDataShape):
		return "data_shape_error"
	case errors.Is(err, domain.ErrInvalidWindow):
		return "invalid_window"
	default:
		return "render_error"
	}
}
