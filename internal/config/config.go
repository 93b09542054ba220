// Package config loads application settings from environment variables,
// applies defaults, and validates everything at startup so misconfiguration
// fails fast.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Diagnosis DiagnosisConfig
	Upload    UploadConfig
	Session   SessionConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
	Audit     AuditConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including draining
	// in-flight diagnosis calls (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests. Keep it above
	// DIAGNOSIS_TIMEOUT or calls are cut short (default: 45s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"45s"`
}

// DiagnosisConfig points at the remote classifier.
type DiagnosisConfig struct {
	// ServiceURL is the base URL of the diagnosis service
	ServiceURL string `env:"DIAGNOSIS_SERVICE_URL" envAlt:"API_URL" default:"http://127.0.0.1:8000"`

	SinglePath string `env:"DIAGNOSIS_SINGLE_PATH" default:"/diagnose"`
	BatchPath  string `env:"DIAGNOSIS_BATCH_PATH" default:"/api/batch-diagnose"`

	// Timeout bounds each call (default: 30s)
	Timeout time.Duration `env:"DIAGNOSIS_TIMEOUT" default:"30s"`

	// MaxConcurrent caps in-flight calls across all sessions (default: 8)
	MaxConcurrent int `env:"DIAGNOSIS_MAX_CONCURRENT" default:"8"`

	// MaxWait is how long a call waits for a free slot (default: 10s)
	MaxWait time.Duration `env:"DIAGNOSIS_MAX_WAIT" default:"10s"`

	// SubmitPolicy is what a resubmission does while a call is pending:
	// supersede or reject (default: supersede)
	SubmitPolicy string `env:"DIAGNOSIS_SUBMIT_POLICY" default:"supersede"`
}

// UploadConfig holds batch file settings.
type UploadConfig struct {
	// MaxFileSize accepts plain bytes or a KB/MB/GB suffix (default: 10MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"10MB" unit:"bytes"`

	// ValidationPolicy is reject_all or partial (default: reject_all)
	ValidationPolicy string `env:"UPLOAD_VALIDATION_POLICY" default:"reject_all"`
}

// SessionConfig controls per-browser state.
type SessionConfig struct {
	// TTL is how long an idle session keeps its form state (default: 30m)
	TTL time.Duration `env:"SESSION_TTL" default:"30m"`

	// ResultTTL is how long an unviewed result waits (default: 10m)
	ResultTTL time.Duration `env:"RESULT_TTL" default:"10m"`

	// SecureCookie sets the Secure flag on the session cookie (default: false)
	SecureCookie bool `env:"SESSION_SECURE_COOKIE" default:"false"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the limit per client IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// SubmitLimit is the per-minute limit for submission endpoints (default: 20)
	SubmitLimit int `env:"RATE_LIMIT_SUBMIT" default:"20"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// AuditConfig controls the optional submission audit trail. Leaving
// DATABASE_URL empty disables it.
type AuditConfig struct {
	DatabaseURL string `env:"DATABASE_URL" envAlt:"DB_URL" secret:"true"`

	MaxConns int `env:"DB_MAX_CONNS" default:"10"`
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// RetentionDays is how long entries are kept (default: 90)
	RetentionDays int `env:"AUDIT_RETENTION_DAYS" default:"90"`

	// CheckInterval is how often old entries are purged (default: 24h)
	CheckInterval time.Duration `env:"AUDIT_CHECK_INTERVAL" default:"24h"`
}

// Enabled reports whether a database is configured.
func (a *AuditConfig) Enabled() bool { return a.DatabaseURL != "" }

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
