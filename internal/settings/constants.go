package settings

// DB config keys and defaults for settings.
const (
	// SiteNameKey is the DB config key for the service display name.
	SiteNameKey = "SITE_NAME"
	// DefaultSiteName is the fallback service display name.
	DefaultSiteName = "AllMovies UltraPro"
	// RateLimitMaxRequestsKey overrides the per-identity admission limit.
	RateLimitMaxRequestsKey = "RATE_LIMIT_MAX_REQUESTS"
	// RateLimitWindowSecondsKey overrides the admission window in seconds.
	RateLimitWindowSecondsKey = "RATE_LIMIT_WINDOW_SECONDS"
	// CacheTTLSecondsKey overrides the result cache TTL in seconds.
	CacheTTLSecondsKey = "CACHE_TTL_SECONDS"
	// SearchLogRetentionDaysKey controls how long search logs are kept.
	SearchLogRetentionDaysKey = "SEARCH_LOG_RETENTION_DAYS"
	// DefaultSearchLogRetentionDays is the fallback retention period.
	DefaultSearchLogRetentionDays = 30
	// DefaultRateLimitMaxRequests is the settings fallback (0 means use static config).
	DefaultRateLimitMaxRequests = 0
	// DefaultRateLimitWindowSeconds is the settings fallback (0 means use static config).
	DefaultRateLimitWindowSeconds = 0
	// DefaultCacheTTLSeconds is the settings fallback (0 means use static config).
	DefaultCacheTTLSeconds = 0
)
