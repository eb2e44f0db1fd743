package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/quakemap/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Default upstream feeds.
const (
	DefaultFeedBaseURL = "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary"
	DefaultPlatesURL   = "https://raw.githubusercontent.com/fraxen/tectonicplates/refs/heads/master/GeoJSON/PB2002_boundaries.json"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	// Upstream feeds.
	FeedBaseURL   string
	PlatesURL     string
	FeedTimeout   time.Duration
	FeedCacheTTL  time.Duration
	FeedCacheSize int

	// Rendering.
	DefaultWindow   domain.TimeWindow
	RenderTimeout   time.Duration
	RefreshInterval time.Duration // 0 disables periodic re-render
	BasemapsFile    string

	// Optional marker publishing.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	feedTimeout, err := parseDuration("FEED_TIMEOUT", "10s", false)
	if err != nil {
		return nil, err
	}
	renderTimeout, err := parseDuration("RENDER_TIMEOUT", "20s", false)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parseDuration("FEED_CACHE_TTL", "60s", true)
	if err != nil {
		return nil, err
	}
	refresh, err := parseDuration("REFRESH_INTERVAL", "0s", true)
	if err != nil {
		return nil, err
	}

	window, err := domain.ParseTimeWindow(sharedcfg.EnvOrDefault("DEFAULT_WINDOW", string(domain.WindowWeek)))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_WINDOW: %w", err)
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}
	kafkaEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		CORSOrigins:     parseCSV(os.Getenv("CORS_ORIGINS")),

		FeedBaseURL:   strings.TrimRight(sharedcfg.EnvOrDefault("USGS_FEED_BASE_URL", DefaultFeedBaseURL), "/"),
		PlatesURL:     sharedcfg.EnvOrDefault("PLATES_URL", DefaultPlatesURL),
		FeedTimeout:   feedTimeout,
		FeedCacheTTL:  cacheTTL,
		FeedCacheSize: parseFeedCacheSize(),

		DefaultWindow:   window,
		RenderTimeout:   renderTimeout,
		RefreshInterval: refresh,
		BasemapsFile:    os.Getenv("BASEMAPS_FILE"),

		KafkaEnabled: kafkaEnabled,
		KafkaBrokers: brokers,
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "earthquake-markers"),
	}

	if cfg.FeedBaseURL == "" {
		return nil, errors.New("USGS_FEED_BASE_URL is required")
	}
	if cfg.PlatesURL == "" {
		return nil, errors.New("PLATES_URL is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when Kafka is enabled")
	}

	return cfg, nil
}

// parseDuration reads a positive duration, or a non-negative one when allowZero is set.
func parseDuration(key, def string, allowZero bool) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseFeedCacheSize() int {
	if s := os.Getenv("FEED_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 16
}

func parseCSV(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
