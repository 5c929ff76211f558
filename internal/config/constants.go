package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// MessagingWindow is the period after a correspondent's last inbound message
// during which the provider permits free-form outbound replies.
const MessagingWindow = 24 * time.Hour

// StateTokenTTL bounds the time between the authorize redirect and the
// provider callback.
const StateTokenTTL = 10 * time.Minute

// Outbound provider call timeout
const ProviderCallTimeout = 10 * time.Second

// MinPhoneDigits is the minimum canonical phone length accepted for outbound sends.
const MinPhoneDigits = 10

// Default rate limiting
const DefaultRateLimitPerMin = 60
