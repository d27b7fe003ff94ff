package config

import "time"

// ViewCacheConfig defines settings for the availability view cache.
// When Enabled is false or no Redis client is configured, every read is
// served from the database.  TTL is the safety net behind explicit
// invalidation and is clamped to [MinViewTTL, MaxViewTTL].  Prefix
// namespaces keys so several deployments can share one Redis.  Timeout
// bounds every Redis round trip made by the cache.
type ViewCacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
	Timeout time.Duration
}

// Bounds applied to the configured view TTL.
const (
	MinViewTTL = 30 * time.Second
	MaxViewTTL = 60 * time.Second
)

// LoadViewCacheConfig reads environment variables to build a
// ViewCacheConfig.  Defaults are used when variables are not set.
func LoadViewCacheConfig() ViewCacheConfig {
	cfg := ViewCacheConfig{
		Enabled: envBool("VIEW_CACHE_ENABLED", true),
		TTL:     envDur("VIEW_CACHE_TTL", 45*time.Second),
		Prefix:  envStr("VIEW_CACHE_PREFIX", "parking:view"),
		Timeout: envDur("VIEW_CACHE_TIMEOUT", 250*time.Millisecond),
	}
	cfg.TTL = ClampViewTTL(cfg.TTL)
	if cfg.Timeout <= 0 {
		cfg.Timeout = 250 * time.Millisecond
	}
	return cfg
}

// ClampViewTTL keeps a TTL within the supported staleness window.
func ClampViewTTL(d time.Duration) time.Duration {
	if d < MinViewTTL {
		return MinViewTTL
	}
	if d > MaxViewTTL {
		return MaxViewTTL
	}
	return d
}
