package domain

import "context"

// FeedSource fetches the raw upstream documents a render needs.
type FeedSource interface {
	// FetchEarthquakes returns the USGS summary feed for the window.
	FetchEarthquakes(ctx context.Context, window TimeWindow) ([]byte, error)

	// FetchPlates returns the tectonic plate boundary document.
	FetchPlates(ctx context.Context) ([]byte, error)
}
