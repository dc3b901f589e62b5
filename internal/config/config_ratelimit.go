package config

// RateLimitConfig configures the per-tenant API request limiter applied by
// internal/server. Mirrors internal/ratelimit.Config's shape so it can be
// converted directly without field-by-field translation at the call site.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
	Enabled           bool    `yaml:"enabled"`
}

func applyRateLimitDefaults(cfg *RateLimitConfig) {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10.0
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 20
	}
}
