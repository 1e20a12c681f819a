package booklib

import "time"

// Config holds the configuration shared by the retrying transport and the
// batch refresher.
type Config struct {
	// Remote endpoint configuration
	BaseURL        string        // Base URL of the catalog API, default http://localhost:8000
	RequestTimeout time.Duration // Per-request timeout, default 30s

	// Retry configuration
	MaxAttempts   int           // Maximum attempt count per request, default 3
	BaseDelay     time.Duration // Base backoff delay, default 1s
	MaxDelay      time.Duration // Cap for exponential backoff, default 60s
	BackoffFactor float64       // Multiplier for exponential backoff, default 2.0
	Jitter        float64       // Jitter factor (0-1) added to backoff, default 0
	MaxConcurrent int64         // Concurrency permit pool capacity, default 5
	TriggerPath   string        // Path of the recommendation refresh trigger, default /recommendations/refresh
	BooksPath     string        // Path of the book collection, default /books
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "http://localhost:8000",
		RequestTimeout: 30 * time.Second,
		MaxAttempts:    3,
		BaseDelay:      1 * time.Second,
		MaxDelay:       60 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         0,
		MaxConcurrent:  5,
		TriggerPath:    "/recommendations/refresh",
		BooksPath:      "/books",
	}
}

// Option is a function that modifies the Config.
type Option func(*Config)

// WithBaseURL sets the base URL of the catalog API.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithRequestTimeout sets the per-request timeout.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.RequestTimeout = timeout
	}
}

// WithMaxAttempts sets the maximum attempt count per request.
func WithMaxAttempts(attempts int) Option {
	return func(c *Config) {
		c.MaxAttempts = attempts
	}
}

// WithBaseDelay sets the base backoff delay.
func WithBaseDelay(delay time.Duration) Option {
	return func(c *Config) {
		c.BaseDelay = delay
	}
}

// WithMaxDelay sets the cap for exponential backoff.
func WithMaxDelay(delay time.Duration) Option {
	return func(c *Config) {
		c.MaxDelay = delay
	}
}

// WithBackoffFactor sets the multiplier for exponential backoff.
func WithBackoffFactor(factor float64) Option {
	return func(c *Config) {
		c.BackoffFactor = factor
	}
}

// WithJitter sets the jitter factor for backoff delays.
func WithJitter(jitter float64) Option {
	return func(c *Config) {
		c.Jitter = jitter
	}
}

// WithMaxConcurrent sets the permit pool capacity.
// The capacity is fixed for the lifetime of the refresher.
func WithMaxConcurrent(n int64) Option {
	return func(c *Config) {
		c.MaxConcurrent = n
	}
}

// WithConfig applies a complete Config, overriding all values.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// ApplyOptions applies the given options to a default config and returns the result.
func ApplyOptions(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrInvalidConfig
	}
	if c.RequestTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.MaxAttempts <= 0 {
		return ErrInvalidConfig
	}
	if c.BaseDelay < 0 {
		return ErrInvalidConfig
	}
	if c.MaxDelay < 0 {
		return ErrInvalidConfig
	}
	if c.BackoffFactor < 1.0 {
		return ErrInvalidConfig
	}
	if c.Jitter < 0 || c.Jitter > 1.0 {
		return ErrInvalidConfig
	}
	if c.MaxConcurrent <= 0 {
		return ErrInvalidConfig
	}
	return nil
}
