package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config represents the complete application configuration.
// Configuration is loaded from a JSON file with environment overrides.
type Config struct {
	Feed      FeedConfig      `json:"feed"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Styling   StylingConfig   `json:"styling"`
	View      ViewConfig      `json:"view"`
}

// FeedConfig contains the position-feed source settings.
type FeedConfig struct {
	// BaseURL is the feed endpoint
	// (default: "https://api.airplanes.live/v2/point")
	BaseURL string `json:"base_url"`

	// RateLimitSeconds is the minimum time between feed calls in seconds
	// 0 = no rate limit, >0 = enforce minimum delay between calls
	// airplanes.live: recommend 1 second to avoid 429 errors
	RateLimitSeconds float64 `json:"rate_limit_seconds"`

	// TimeoutSeconds bounds a single feed request
	TimeoutSeconds float64 `json:"timeout_seconds"`
}

// SchedulerConfig contains the fetch-scheduling timings. All values
// are in milliseconds; 0 selects the built-in default.
type SchedulerConfig struct {
	// MinIntervalMS is the minimum spacing between fetch starts
	// (default: 1000)
	MinIntervalMS int `json:"min_interval_ms"`

	// BackoffMS is the wait applied after a failed fetch
	// (default: 2000)
	BackoffMS int `json:"backoff_ms"`

	// DebounceMS is the settle time after a pan/zoom before the
	// viewport fetch fires (default: 300)
	DebounceMS int `json:"debounce_ms"`

	// IdleIntervalMS is the background re-poll cadence (default: 5000)
	IdleIntervalMS int `json:"idle_interval_ms"`
}

// StylingConfig contains marker appearance settings.
type StylingConfig struct {
	// EmergencyStyling forces aircraft squawking 7500/7600/7700 to a
	// fixed red regardless of altitude
	EmergencyStyling bool `json:"emergency_styling"`

	// OutlineColor is the icon stroke color (default: "#1a1a1a")
	OutlineColor string `json:"outline_color"`

	// OutlineWidth is the icon stroke width in pixels (default: 1)
	OutlineWidth int `json:"outline_width"`
}

// ViewConfig contains the initial map view for the terminal clients.
type ViewConfig struct {
	// Latitude of the initial view center in decimal degrees (-90 to +90)
	Latitude float64 `json:"latitude"`

	// Longitude of the initial view center in decimal degrees (-180 to +180)
	Longitude float64 `json:"longitude"`

	// RadiusNM is the initial view radius in nautical miles
	RadiusNM float64 `json:"radius_nm"`
}

// Load reads configuration from a JSON file.
// If the file doesn't exist, returns a default configuration.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.applyEnvironmentOverrides(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.applyEnvironmentOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Feed: FeedConfig{
			BaseURL:          "https://api.airplanes.live/v2/point",
			RateLimitSeconds: 1.0,
			TimeoutSeconds:   10.0,
		},
		Scheduler: SchedulerConfig{
			MinIntervalMS:  1000,
			BackoffMS:      2000,
			DebounceMS:     300,
			IdleIntervalMS: 5000,
		},
		Styling: StylingConfig{
			EmergencyStyling: true,
			OutlineColor:     "#1a1a1a",
			OutlineWidth:     1,
		},
		View: ViewConfig{
			Latitude:  38.03,
			Longitude: -78.50,
			RadiusNM:  25.0,
		},
	}
}

// Validate checks value ranges that would otherwise fail silently at
// fetch time.
func (c *Config) Validate() error {
	if c.View.Latitude < -90 || c.View.Latitude > 90 {
		return fmt.Errorf("invalid view latitude: %f (must be -90 to +90)", c.View.Latitude)
	}
	if c.View.Longitude < -180 || c.View.Longitude > 180 {
		return fmt.Errorf("invalid view longitude: %f (must be -180 to +180)", c.View.Longitude)
	}
	if c.View.RadiusNM < 0 || c.View.RadiusNM > 250 {
		return fmt.Errorf("invalid view radius: %f NM (must be 0 to 250)", c.View.RadiusNM)
	}
	if c.Feed.RateLimitSeconds < 0 {
		return fmt.Errorf("invalid feed rate limit: %f seconds", c.Feed.RateLimitSeconds)
	}
	if c.Feed.TimeoutSeconds < 0 {
		return fmt.Errorf("invalid feed timeout: %f seconds", c.Feed.TimeoutSeconds)
	}
	for name, ms := range map[string]int{
		"min_interval_ms":  c.Scheduler.MinIntervalMS,
		"backoff_ms":       c.Scheduler.BackoffMS,
		"debounce_ms":      c.Scheduler.DebounceMS,
		"idle_interval_ms": c.Scheduler.IdleIntervalMS,
	} {
		if ms < 0 {
			return fmt.Errorf("invalid scheduler %s: %d", name, ms)
		}
	}
	return nil
}

// applyEnvironmentOverrides applies environment variable overrides to
// the config, so deployment-specific values stay out of config files.
// A malformed numeric override is an error, not a silent fallback to
// the file value.
func (c *Config) applyEnvironmentOverrides() error {
	if url := os.Getenv("SKY_OVERLAY_FEED_URL"); url != "" {
		c.Feed.BaseURL = url
	}
	if lat := os.Getenv("SKY_OVERLAY_LAT"); lat != "" {
		f, err := strconv.ParseFloat(lat, 64)
		if err != nil {
			return fmt.Errorf("invalid SKY_OVERLAY_LAT %q: %w", lat, err)
		}
		c.View.Latitude = f
	}
	if lon := os.Getenv("SKY_OVERLAY_LON"); lon != "" {
		f, err := strconv.ParseFloat(lon, 64)
		if err != nil {
			return fmt.Errorf("invalid SKY_OVERLAY_LON %q: %w", lon, err)
		}
		c.View.Longitude = f
	}
	return nil
}
