package cascade

import "time"

// Config holds engine-wide execution defaults. Per-call options on
// Execute override these for a single run.
type Config struct {
	// MaxRetries is the maximum number of retry attempts for a step that
	// returns a retryable failure.
	MaxRetries int

	// MetricsEnabled controls whether run metrics are aggregated from the
	// execution history at completion and suspension boundaries.
	MetricsEnabled bool

	// MinStepTimeout is the smallest step or workflow timeout the builder
	// accepts. Sub-second timeouts are configuration mistakes.
	MinTimeout time.Duration

	// MaxTimeout is the largest timeout the builder accepts. Multi-month
	// deadlines are configuration mistakes.
	MaxTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		MetricsEnabled: true,
		MinTimeout:     1 * time.Second,
		MaxTimeout:     30 * 24 * time.Hour,
	}
}
