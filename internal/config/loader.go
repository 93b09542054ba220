package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/cytodx/internal/core"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), os.Getenv); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// loadStruct populates struct fields from env, recursing into nested
// structs. Every bad variable is reported, not just the first.
func loadStruct(v reflect.Value, getenv func(string) string) error {
	t := v.Type()
	var errs []error

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			if err := loadStruct(fieldVal, getenv); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value := getenv(envName)
		if value == "" {
			if alt := field.Tag.Get("envAlt"); alt != "" {
				value = getenv(alt)
			}
		}
		if value == "" {
			if field.Tag.Get("required") == "true" {
				errs = append(errs, fmt.Errorf("required environment variable %s is not set", envName))
				continue
			}
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value, field.Tag.Get("unit")); err != nil {
			shown := value
			if field.Tag.Get("secret") == "true" {
				shown = "[MASKED]"
			}
			errs = append(errs, fmt.Errorf("invalid value for %s=%q: %w", envName, shown, err))
		}
	}

	return errors.Join(errs...)
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value, unit string) error {
	switch {
	case field.Type() == durationType:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		field.SetInt(int64(d))

	case unit == "bytes":
		n, err := parseByteSize(value)
		if err != nil {
			return err
		}
		field.SetInt(n)

	case field.Kind() == reflect.String:
		field.SetString(value)

	case field.Kind() == reflect.Int || field.Kind() == reflect.Int64:
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case field.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String:
		var result []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Type())
	}

	return nil
}

// parseByteSize accepts "1048576", "512KB", "10MB" or "1GB" (binary units).
func parseByteSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	mult := int64(1)
	for _, u := range []struct {
		suffix string
		mult   int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	} {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			mult = u.mult
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size: %w", err)
	}
	return n * mult, nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.RequestTimeout > 0 && c.Server.RequestTimeout <= c.Diagnosis.Timeout {
		errs = append(errs, fmt.Sprintf("SERVER_REQUEST_TIMEOUT (%s) must exceed DIAGNOSIS_TIMEOUT (%s)",
			c.Server.RequestTimeout, c.Diagnosis.Timeout))
	}

	// Diagnosis service
	if !strings.HasPrefix(c.Diagnosis.ServiceURL, "http://") && !strings.HasPrefix(c.Diagnosis.ServiceURL, "https://") {
		errs = append(errs, fmt.Sprintf("DIAGNOSIS_SERVICE_URL (%q) must be an http or https URL", c.Diagnosis.ServiceURL))
	}
	if !strings.HasPrefix(c.Diagnosis.SinglePath, "/") || !strings.HasPrefix(c.Diagnosis.BatchPath, "/") {
		errs = append(errs, "DIAGNOSIS_SINGLE_PATH and DIAGNOSIS_BATCH_PATH must start with /")
	}
	if c.Diagnosis.Timeout <= 0 {
		errs = append(errs, "DIAGNOSIS_TIMEOUT must be positive")
	}
	if c.Diagnosis.MaxConcurrent <= 0 {
		errs = append(errs, "DIAGNOSIS_MAX_CONCURRENT must be positive")
	}
	if c.Diagnosis.MaxWait <= 0 {
		errs = append(errs, "DIAGNOSIS_MAX_WAIT must be positive")
	}
	if _, ok := core.ParseSubmitPolicy(c.Diagnosis.SubmitPolicy); !ok {
		errs = append(errs, fmt.Sprintf("DIAGNOSIS_SUBMIT_POLICY (%q) must be one of: supersede, reject", c.Diagnosis.SubmitPolicy))
	}

	// Upload
	if c.Upload.MaxFileSize <= 0 {
		errs = append(errs, "UPLOAD_MAX_FILE_SIZE must be positive")
	}
	if _, ok := core.ParseValidationPolicy(c.Upload.ValidationPolicy); !ok {
		errs = append(errs, fmt.Sprintf("UPLOAD_VALIDATION_POLICY (%q) must be one of: reject_all, partial", c.Upload.ValidationPolicy))
	}

	// Session
	if c.Session.TTL <= 0 || c.Session.ResultTTL <= 0 {
		errs = append(errs, "SESSION_TTL and RESULT_TTL must be positive")
	}

	// Rate limit
	if c.Rate.Enabled && (c.Rate.RequestsPerMinute <= 0 || c.Rate.SubmitLimit <= 0) {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE and RATE_LIMIT_SUBMIT must be positive when rate limiting is enabled")
	}

	// Audit
	if c.Audit.Enabled() {
		if c.Audit.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.Audit.MinConns < 0 || c.Audit.MaxConns < c.Audit.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MIN_CONNS (%d) must be between 0 and DB_MAX_CONNS (%d)",
				c.Audit.MinConns, c.Audit.MaxConns))
		}
		if c.Audit.RetentionDays <= 0 {
			errs = append(errs, "AUDIT_RETENTION_DAYS must be positive")
		}
		if c.Audit.CheckInterval <= 0 {
			errs = append(errs, "AUDIT_CHECK_INTERVAL must be positive")
		}
	}

	// Logging
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// SubmitPolicy returns the parsed resubmission policy.
func (c *Config) SubmitPolicy() core.SubmitPolicy {
	p, _ := core.ParseSubmitPolicy(c.Diagnosis.SubmitPolicy)
	return p
}

// ValidationPolicy returns the parsed batch validation policy.
func (c *Config) ValidationPolicy() core.ValidationPolicy {
	p, _ := core.ParseValidationPolicy(c.Upload.ValidationPolicy)
	return p
}

// String returns a safe representation of the config for logging.
// The database URL is masked.
func (c *Config) String() string {
	dbURL := ""
	if c.Audit.Enabled() {
		dbURL = "[MASKED]"
	}
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Addr: %q}, ", c.Server.Addr())
	fmt.Fprintf(&b, "Diagnosis: {URL: %q, Timeout: %s, MaxConcurrent: %d, Policy: %s}, ",
		c.Diagnosis.ServiceURL, c.Diagnosis.Timeout, c.Diagnosis.MaxConcurrent, c.Diagnosis.SubmitPolicy)
	fmt.Fprintf(&b, "Upload: {MaxFileSize: %d, Policy: %s}, ", c.Upload.MaxFileSize, c.Upload.ValidationPolicy)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ", c.Rate.Enabled, c.Rate.RequestsPerMinute)
	fmt.Fprintf(&b, "Audit: {URL: %q, RetentionDays: %d}, ", dbURL, c.Audit.RetentionDays)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
