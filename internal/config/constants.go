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

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Device authorization grant defaults (RFC 8628)
const (
	DeviceGrantLifetime = 30 * time.Minute
	DevicePollInterval  = 5 * time.Second
	// SlowDownIncrement is the amount added to the polling interval when the
	// server answers slow_down.
	SlowDownIncrement = 5 * time.Second
)

// Session lifetime for access tokens issued by the token endpoint
const SessionLifetime = 7 * 24 * time.Hour

// Timeout for individual requests the CLI makes to the authorization server
const DeviceHTTPTimeout = 30 * time.Second

// Conversation titles derive from the first user message, truncated here
const TitleMaxLen = 50
